// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionstore persists typbot's Matrix session in a single
// JSON file:
//
//	{"credentials": {...}, "cursor": "s72594_4483_1934"}
//
// The credentials object is written once by [Store.Create] on first
// login and never modified afterwards. The cursor is the /sync
// next_batch token, replaced wholesale by [Store.PersistCursor] after
// every sync batch so a restart resumes where the previous process
// stopped.
//
// Every write is atomic: the new content goes to "<path>.tmp", is
// fsynced, and is renamed over the old file, after which the parent
// directory is fsynced. A crash leaves either the old or the new
// record, never a torn one. Files are created with mode 0600 because
// the credentials include the access token.
//
// A Store has a single writer (the sync engine) and does no locking.
package sessionstore
