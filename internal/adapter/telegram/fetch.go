// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package telegram

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// fileSizeLimit bounds inbound file downloads.
const fileSizeLimit = 32 << 20

var fetchClient = &http.Client{Timeout: 60 * time.Second}

func fetchURL(url string) ([]byte, error) {
	resp, err := fetchClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, fileSizeLimit))
}
