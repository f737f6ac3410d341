// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that wait or read the wall clock (the join backoff, the
// sync retry pause, the render deadline, the message freshness check)
// take a Clock instead of calling the time package. Production code
// passes Real(); tests pass Fake() and drive time with Advance.
//
// # FakeClock Synchronization
//
// A goroutine that calls After or Sleep on a FakeClock registers a
// pending waiter. Tests call WaitForTimers to block until the expected
// number of waiters exist before calling Advance, which removes the
// race between registration and advancement:
//
//	go joiner.Handle(ctx, invite)
//	fakeClock.WaitForTimers(1)         // backoff sleep registered
//	fakeClock.Advance(2 * time.Second) // fire it
package clock
