// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(5 * time.Second)
	if got, want := clock.Now(), epoch.Add(5*time.Second); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockAfter(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(5 * time.Second)

	clock.Advance(3 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	clock.Advance(2 * time.Second)
	select {
	case fired := <-channel:
		if !fired.Equal(epoch.Add(5 * time.Second)) {
			t.Errorf("fired at %v, want %v", fired, epoch.Add(5*time.Second))
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}

	if clock.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after firing, want 0", clock.PendingCount())
	}
}

func TestFakeClockAfterNonPositive(t *testing.T) {
	clock := Fake(epoch)
	for _, d := range []time.Duration{0, -time.Second} {
		select {
		case <-clock.After(d):
		default:
			t.Fatalf("After(%v) should fire immediately", d)
		}
	}
	if clock.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", clock.PendingCount())
	}
}

func TestFakeClockSleepWithWaitForTimers(t *testing.T) {
	clock := Fake(epoch)

	var wg sync.WaitGroup
	wg.Add(1)
	woke := make(chan time.Time, 1)
	go func() {
		defer wg.Done()
		clock.Sleep(10 * time.Second)
		woke <- clock.Now()
	}()

	clock.WaitForTimers(1)
	clock.Advance(10 * time.Second)
	wg.Wait()

	if got := <-woke; !got.Equal(epoch.Add(10 * time.Second)) {
		t.Errorf("woke at %v, want %v", got, epoch.Add(10*time.Second))
	}
}

func TestFakeClockAdvanceFiresMultiple(t *testing.T) {
	clock := Fake(epoch)
	short := clock.After(time.Second)
	long := clock.After(time.Minute)
	later := clock.After(time.Hour)

	clock.Advance(time.Minute)

	for name, channel := range map[string]<-chan time.Time{"short": short, "long": long} {
		select {
		case <-channel:
		default:
			t.Errorf("%s waiter did not fire", name)
		}
	}
	select {
	case <-later:
		t.Error("hour waiter fired early")
	default:
	}
	if clock.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", clock.PendingCount())
	}
}

func TestFakeClockNextTimer(t *testing.T) {
	clock := Fake(epoch)
	if _, ok := clock.NextTimer(); ok {
		t.Fatal("NextTimer reported a waiter on a fresh clock")
	}

	clock.After(10 * time.Second)
	clock.After(3 * time.Second)
	remaining, ok := clock.NextTimer()
	if !ok || remaining != 3*time.Second {
		t.Fatalf("NextTimer = %v, %v; want 3s, true", remaining, ok)
	}

	clock.Advance(2 * time.Second)
	remaining, _ = clock.NextTimer()
	if remaining != time.Second {
		t.Errorf("NextTimer after Advance = %v, want 1s", remaining)
	}
}
