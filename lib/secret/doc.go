// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds credentials (the login password and the Matrix
// access token) outside the Go heap.
//
// [Buffer] allocates memory via mmap(MAP_ANONYMOUS), locks it into RAM
// with mlock so it never reaches swap, and marks it MADV_DONTDUMP so it
// is left out of core dumps. Close zeroes, unlocks and unmaps the
// region. After Close, any access panics. Close is idempotent.
//
// [ReadFile] loads a secret from a mounted file (PASSWORD_FILE).
//
// [Zero] scrubs transient heap copies, such as the raw bytes of a
// session record after the token has been moved into a Buffer.
//
// Depends on golang.org/x/sys/unix.
package secret
