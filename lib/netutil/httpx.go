// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides bounded I/O helpers.
//
// ReadResponse bounds Matrix client-server API response reads at
// MaxResponseSize. ReadAtMost is the general form, used for compiler
// output where a runaway process must not exhaust memory.
package netutil

import (
	"errors"
	"fmt"
	"io"
)

// MaxResponseSize is the bound on JSON API response body reads: 256 MB.
// Legitimate responses (including large initial /sync batches) are
// orders of magnitude smaller.
const MaxResponseSize int64 = 256 << 20

// ErrTooLarge is returned by ReadAtMost when the stream holds more than
// the allowed number of bytes.
var ErrTooLarge = errors.New("netutil: stream exceeds size limit")

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// ReadAtMost reads r to EOF and returns its contents, failing with
// ErrTooLarge if more than limit bytes are available. Bytes read before
// the failure are returned alongside the error.
func ReadAtMost(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("netutil: limit must be positive, got %d", limit)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return data, err
	}
	if int64(len(data)) > limit {
		return data[:limit], ErrTooLarge
	}
	return data, nil
}
