// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time source for every timer in typbot: sync backoff,
// join retries, render timeouts and message freshness.
type Clock interface {
	Now() time.Time

	// After delivers the time once d has elapsed. A non-positive d
	// delivers immediately.
	After(d time.Duration) <-chan time.Time

	Sleep(d time.Duration)
}

// Real returns the wall clock.
func Real() Clock { return wallClock{} }

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (wallClock) Sleep(d time.Duration) { time.Sleep(d) }
