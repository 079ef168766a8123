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
// Package cloud reads and writes simulator input and output files in
// blob storage.
package cloud

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"

	// Storage providers that are opened by URL.
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

// IsBlob returns whether the given filename represents a blob
// (i.e., if it starts with 'gs://', 's3://', or 'file://').
func IsBlob(p string) bool {
	for _, s := range []string{"gs://", "s3://", "file://"} {
		if strings.HasPrefix(p, s) {
			return true
		}
	}
	return false
}

// SplitBlobPath splits a blob path of the form 'provider://bucket/key'
// into the bucket name 'provider://bucket' and the key. For the "file"
// provider the bucket is a directory: if the host part is empty, as in
// 'file:///data/wrfout.nc', the directory holding the file is used.
func SplitBlobPath(p string) (bucketName, key string, err error) {
	u, err := url.Parse(p)
	if err != nil {
		return "", "", fmt.Errorf("cloud: parsing blob path %s: %v", p, err)
	}
	if u.Scheme == "file" && u.Host == "" {
		dir, file := path.Split(u.Path)
		return "file://" + strings.TrimSuffix(dir, "/"), file, nil
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("cloud: blob path %s has no key", p)
	}
	return u.Scheme + "://" + u.Host, key, nil
}

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name' where provider
// is the name of the storage provider and name is the name of the bucket.
// The currently accepted storage providers are "file" for the local
// filesystem (e.g., for testing), "gs" for Google Cloud Storage, and "s3"
// for AWS S3. Credentials for "gs" and
// "s3" are taken from the environment in the usual way for each provider.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("cloud.OpenBucket: %v", err)
	}
	switch u.Scheme {
	case "file":
		dir := u.Host + u.Path
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("cloud.OpenBucket: %v", err)
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("cloud.OpenBucket: %v", err)
		}
		return fileblob.OpenBucket(abs, nil)
	case "gs", "s3":
		b, err := blob.OpenBucket(ctx, bucketName)
		if err != nil {
			return nil, fmt.Errorf("cloud.OpenBucket: %v", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("cloud.OpenBucket: invalid provider %s", u.Scheme)
	}
}
