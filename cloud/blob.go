/*
Copyright © 2025 the EMC2 authors.
This file is part of EMC2.

EMC2 is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

EMC2 is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with EMC2.  If not, see <http://www.gnu.org/licenses/>.
*/
package cloud

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
)

// Read copies the blob at path, in the format 'provider://bucket/key',
// to w.
func Read(ctx context.Context, path string, w io.Writer) error {
	bucketName, key, err := SplitBlobPath(path)
	if err != nil {
		return err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return err
	}
	defer bucket.Close()
	return readBlob(ctx, bucket, key, w)
}

// Write copies the contents of r to the blob at path, in the format
// 'provider://bucket/key'.
func Write(ctx context.Context, path string, r io.Reader) error {
	bucketName, key, err := SplitBlobPath(path)
	if err != nil {
		return err
	}
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return err
	}
	defer bucket.Close()
	return writeBlob(ctx, bucket, key, r)
}

// readBlob copies the given blob from the given bucket to w.
func readBlob(ctx context.Context, bucket *blob.Bucket, key string, w io.Writer) error {
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("cloud: reading blob key %s: %v", key, err)
	}
	defer r.Close()
	if _, err = io.Copy(w, r); err != nil {
		return fmt.Errorf("cloud: reading blob key %s: %v", key, err)
	}
	return nil
}

// writeBlob writes the contents of r to the given bucket.
func writeBlob(ctx context.Context, bucket *blob.Bucket, key string, r io.Reader) error {
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("cloud: creating writer for blob %s: %v", key, err)
	}
	if _, err = io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("cloud: copying blob %s: %v", key, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("cloud: writing blob %s: %v", key, err)
	}
	return nil
}
