// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for typbot packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with a timer fallback) so
// that individual tests do not need direct time.After calls. Tests
// drive their own timing through lib/clock.FakeClock; the wall-clock
// timeouts here only stop a broken test from hanging.
//
// [Logger] returns a logger that discards output, for components that
// require one.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
