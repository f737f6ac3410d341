// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package autojoin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/typbot/lib/clock"
	"github.com/bureau-foundation/typbot/lib/ref"
	"github.com/bureau-foundation/typbot/lib/syncengine"
	"github.com/bureau-foundation/typbot/lib/testutil"
	"github.com/bureau-foundation/typbot/messaging"
)

var (
	botID   = ref.MustParseUserID("@typbot:local")
	aliceID = ref.MustParseUserID("@alice:local")
	roomID  = ref.MustParseRoomID("!room:local")
)

// scriptedJoiner fails the first failures attempts per room, then
// succeeds. failures < 0 fails forever.
type scriptedJoiner struct {
	mu       sync.Mutex
	failures int
	attempts map[ref.RoomID]int
}

func (j *scriptedJoiner) JoinRoom(_ context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.attempts == nil {
		j.attempts = make(map[ref.RoomID]int)
	}
	j.attempts[roomID]++
	if j.failures < 0 || j.attempts[roomID] <= j.failures {
		return ref.RoomID{}, &messaging.MatrixError{Code: messaging.ErrCodeForbidden, StatusCode: 403}
	}
	return roomID, nil
}

func (j *scriptedJoiner) count(roomID ref.RoomID) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempts[roomID]
}

func newJoiner(t *testing.T, joiner Joiner, fake *clock.FakeClock) *AutoJoiner {
	t.Helper()
	autoJoiner, err := New(Config{
		Joiner: joiner,
		UserID: botID,
		Clock:  fake,
		Logger: testutil.Logger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return autoJoiner
}

func invite(target ref.UserID) *syncengine.MembershipChange {
	return &syncengine.MembershipChange{
		RoomID:     roomID,
		Target:     target,
		Sender:     aliceID,
		Membership: messaging.MembershipInvite,
	}
}

// waitDone waits for every join task with a safety timeout.
func waitDone(t *testing.T, autoJoiner *AutoJoiner) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		autoJoiner.Wait()
		close(done)
	}()
	testutil.RequireClosed(t, done, 5*time.Second, "waiting for join tasks")
}

func TestBackoffSchedule(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	joiner := &scriptedJoiner{failures: -1}
	autoJoiner := newJoiner(t, joiner, fake)

	if err := autoJoiner.Handle(context.Background(), invite(botID)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	want := 2 * time.Second
	for sleep := 1; sleep <= 11; sleep++ {
		fake.WaitForTimers(1)
		delay, _ := fake.NextTimer()
		if delay != want {
			t.Fatalf("sleep %d = %v, want %v", sleep, delay, want)
		}
		fake.Advance(delay)
		want *= 2
	}

	waitDone(t, autoJoiner)
	if got := joiner.count(roomID); got != 12 {
		t.Errorf("attempts = %d, want 12", got)
	}
	if fake.PendingCount() != 0 {
		t.Errorf("task left %d timers after giving up", fake.PendingCount())
	}
}

// limitedJoiner is rate limited on its first attempt, then succeeds.
type limitedJoiner struct {
	mu       sync.Mutex
	attempts int
}

func (j *limitedJoiner) JoinRoom(_ context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts++
	if j.attempts == 1 {
		return ref.RoomID{}, &messaging.MatrixError{Code: messaging.ErrCodeLimitExceeded, RetryAfterMS: 9000, StatusCode: 429}
	}
	return roomID, nil
}

func TestRateLimitedJoinWaitsRetryAfter(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	joiner := &limitedJoiner{}
	autoJoiner := newJoiner(t, joiner, fake)

	autoJoiner.Join(context.Background(), roomID)

	fake.WaitForTimers(1)
	delay, _ := fake.NextTimer()
	if delay != 9*time.Second {
		t.Fatalf("delay = %v, want the server's 9s", delay)
	}
	fake.Advance(delay)
	waitDone(t, autoJoiner)

	joiner.mu.Lock()
	defer joiner.mu.Unlock()
	if joiner.attempts != 2 {
		t.Errorf("attempts = %d, want 2", joiner.attempts)
	}
}

func TestJoinRecordsMembership(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rooms := syncengine.NewRooms()
	autoJoiner, err := New(Config{
		Joiner: &scriptedJoiner{},
		UserID: botID,
		Rooms:  rooms,
		Clock:  fake,
		Logger: testutil.Logger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if rooms.IsJoined(roomID) {
		t.Fatal("room joined before any invitation")
	}
	autoJoiner.Handle(context.Background(), invite(botID))
	waitDone(t, autoJoiner)

	if !rooms.IsJoined(roomID) {
		t.Error("room not recorded as joined after a successful join")
	}
}

func TestFailedJoinRecordsNothing(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rooms := syncengine.NewRooms()
	autoJoiner, err := New(Config{
		Joiner:      &scriptedJoiner{failures: -1},
		UserID:      botID,
		GiveUpDelay: 2 * time.Second,
		Rooms:       rooms,
		Clock:       fake,
		Logger:      testutil.Logger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	autoJoiner.Join(context.Background(), roomID)
	waitDone(t, autoJoiner)

	if rooms.Len() != 0 {
		t.Errorf("recorded %d rooms after giving up", rooms.Len())
	}
}

func TestJoinSucceedsAfterRetries(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	joiner := &scriptedJoiner{failures: 2}
	autoJoiner := newJoiner(t, joiner, fake)

	autoJoiner.Handle(context.Background(), invite(botID))

	fake.WaitForTimers(1)
	fake.Advance(2 * time.Second)
	fake.WaitForTimers(1)
	fake.Advance(4 * time.Second)

	waitDone(t, autoJoiner)
	if got := joiner.count(roomID); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestFirstAttemptIsImmediate(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	joiner := &scriptedJoiner{}
	autoJoiner := newJoiner(t, joiner, fake)

	autoJoiner.Handle(context.Background(), invite(botID))
	waitDone(t, autoJoiner)

	if got := joiner.count(roomID); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestIgnoresOtherEvents(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	joiner := &scriptedJoiner{}
	autoJoiner := newJoiner(t, joiner, fake)

	events := []syncengine.InboundEvent{
		invite(aliceID),
		&syncengine.MembershipChange{RoomID: roomID, Target: botID, Membership: messaging.MembershipJoin},
		&syncengine.MembershipChange{RoomID: roomID, Target: botID, Membership: messaging.MembershipLeave},
		&syncengine.TextMessage{RoomID: roomID, Sender: aliceID, Body: "invite me"},
		&syncengine.OtherEvent{RoomID: roomID},
	}
	for _, event := range events {
		if err := autoJoiner.Handle(context.Background(), event); err != nil {
			t.Fatalf("Handle(%T): %v", event, err)
		}
	}
	waitDone(t, autoJoiner)

	if got := joiner.count(roomID); got != 0 {
		t.Errorf("joined %d times for events not inviting the bot", got)
	}
}

func TestInvitationsAreIndependent(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	joiner := &scriptedJoiner{failures: 1}
	autoJoiner := newJoiner(t, joiner, fake)

	other := ref.MustParseRoomID("!other:local")
	autoJoiner.Join(context.Background(), roomID)
	autoJoiner.Join(context.Background(), other)

	// Both tasks fail once and wait on their own 2s timer.
	fake.WaitForTimers(2)
	fake.Advance(2 * time.Second)
	waitDone(t, autoJoiner)

	if joiner.count(roomID) != 2 || joiner.count(other) != 2 {
		t.Errorf("attempts = %d and %d, want 2 each", joiner.count(roomID), joiner.count(other))
	}
}

func TestCancelStopsTask(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	joiner := &scriptedJoiner{failures: -1}
	autoJoiner := newJoiner(t, joiner, fake)

	ctx, cancel := context.WithCancel(context.Background())
	autoJoiner.Join(ctx, roomID)
	fake.WaitForTimers(1)
	cancel()
	waitDone(t, autoJoiner)

	if got := joiner.count(roomID); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{UserID: botID}); err == nil {
		t.Error("expected error without Joiner")
	}
	if _, err := New(Config{Joiner: &scriptedJoiner{}}); err == nil {
		t.Error("expected error without UserID")
	}
}
