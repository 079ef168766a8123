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
package emc2util

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/emc2sim/emc2/cloud"
)

type uploader struct {
	// files is a set of file path pairs. The first of each pair
	// is a local file path and the second is a blob storage
	// path where it should be uploaded to.
	files [][2]string
	err   error
	dir   string
}

// uploadOutput uploads the files registered by maybeUpload.
func (u *uploader) uploadOutput(ctx context.Context) error {
	if u.err != nil {
		return u.err
	}
	for _, files := range u.files {
		if err := uploadFile(ctx, files[0], files[1]); err != nil {
			return err
		}
	}
	return nil
}

func uploadFile(ctx context.Context, local, dest string) error {
	r, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("emc2: opening file '%s' for upload: %v", local, err)
	}
	defer r.Close()
	if err := cloud.Write(ctx, dest, r); err != nil {
		return fmt.Errorf("emc2: uploading file '%s' to '%s': %v", local, dest, err)
	}
	return nil
}

// maybeUpload checks whether the given output file path refers to
// a blob storage location. If it does, then a temporary file location
// is returned. The file will then be uploaded to blob storage when
// uploadOutput method is run.
func (u *uploader) maybeUpload(p string) string {
	if u.err != nil {
		return ""
	}
	if !cloud.IsBlob(p) {
		return p
	}
	if u.dir == "" {
		u.dir, u.err = os.MkdirTemp("", "emc2")
		if u.err != nil {
			return ""
		}
	}
	local := filepath.Join(u.dir, path.Base(p))
	u.files = append(u.files, [2]string{local, p})
	return local
}
