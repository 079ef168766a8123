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
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/emc2sim/emc2/cloud"
	"github.com/sirupsen/logrus"
)

// newBackOff returns the retry policy for downloads.
var newBackOff = func() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
}

// maybeDownload checks if the input is an existing file locally.
// If not, it checks if the file is a URL or a blob storage location.
// If so, it downloads the file to a temporary directory, retrying
// failures, and returns the path to the downloaded file.
func maybeDownload(ctx context.Context, p string, log logrus.FieldLogger) (string, error) {
	// Check if local file exists. If it does, return the given path.
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		return p, nil
	}
	var get func(w io.Writer) error
	switch {
	case strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://"):
		get = func(w io.Writer) error { return downloadHTTP(ctx, p, w) }
	case cloud.IsBlob(p):
		get = func(w io.Writer) error { return cloud.Read(ctx, p, w) }
	default:
		return p, nil
	}

	dir, err := os.MkdirTemp("", "emc2")
	if err != nil {
		return p, fmt.Errorf("emc2: failed creating temporary download directory: %v", err)
	}
	name, err := baseName(p)
	if err != nil {
		return p, err
	}
	local := filepath.Join(dir, name)
	log.WithField("url", p).Info("downloading")
	err = backoff.RetryNotify(
		func() error {
			w, err := os.Create(local)
			if err != nil {
				return backoff.Permanent(err)
			}
			if err := get(w); err != nil {
				w.Close()
				return err
			}
			return w.Close()
		},
		backoff.WithContext(newBackOff(), ctx),
		func(err error, d time.Duration) {
			log.WithError(err).Warnf("download failed; retrying in %v", d)
		},
	)
	if err != nil {
		return p, fmt.Errorf("emc2: downloading %s: %v", p, err)
	}
	return local, nil
}

// baseName returns the file name at the end of URL u.
func baseName(u string) (string, error) {
	pu, err := url.Parse(u)
	if err != nil {
		return "", fmt.Errorf("emc2: parsing url %s: %v", u, err)
	}
	name := path.Base(pu.Path)
	if name == "/" || name == "." {
		return "", fmt.Errorf("emc2: url %s does not name a file", u)
	}
	return name, nil
}

// downloadHTTP copies the file at the specified URL to w. Client errors
// are not retried.
func downloadHTTP(ctx context.Context, u string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("%s: %s", u, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	_, err = io.Copy(w, resp.Body)
	return err
}
