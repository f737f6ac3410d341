// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package autojoin accepts room invitations addressed to the bot.
//
// Each invitation starts its own task that retries the join with
// exponential backoff: after a failed attempt the task sleeps for the
// current delay (starting at InitialDelay) and doubles it, and once the
// delay has reached GiveUpDelay a failure is final. With the defaults
// (2s, 1h) the sleeps are 2s, 4s, ... 2048s and a task makes at most
// twelve attempts. A rate-limited attempt waits at least the
// homeserver's retry_after_ms, without changing the schedule. Tasks
// share no state.
package autojoin

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/typbot/lib/clock"
	"github.com/bureau-foundation/typbot/lib/metrics"
	"github.com/bureau-foundation/typbot/lib/ref"
	"github.com/bureau-foundation/typbot/lib/syncengine"
	"github.com/bureau-foundation/typbot/messaging"
)

// Joiner joins rooms. *messaging.DirectSession implements it.
type Joiner interface {
	JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error)
}

// MembershipRecorder receives the membership of rooms joined here.
// *syncengine.Rooms implements it.
type MembershipRecorder interface {
	Set(roomID ref.RoomID, membership string)
}

// Config configures an AutoJoiner. Joiner and UserID are required.
type Config struct {
	Joiner Joiner
	// UserID is the bot's own user; invitations for anyone else are
	// ignored.
	UserID ref.UserID

	// InitialDelay is the first retry delay. Default: 2 seconds.
	InitialDelay time.Duration
	// GiveUpDelay stops retrying once the delay reaches it. Default: 1 hour.
	GiveUpDelay time.Duration

	// Rooms, if set, is marked joined as soon as a join succeeds, so
	// commands in the room are answered before the join arrives via
	// /sync.
	Rooms MembershipRecorder

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// AutoJoiner turns invitations into join tasks.
type AutoJoiner struct {
	joiner       Joiner
	userID       ref.UserID
	initialDelay time.Duration
	giveUpDelay  time.Duration
	rooms        MembershipRecorder
	clock        clock.Clock
	logger       *slog.Logger
	metrics      *metrics.Metrics

	tasks sync.WaitGroup
}

// New validates config and returns an AutoJoiner.
func New(config Config) (*AutoJoiner, error) {
	if config.Joiner == nil {
		return nil, errors.New("autojoin: Joiner is required")
	}
	if config.UserID.IsZero() {
		return nil, errors.New("autojoin: UserID is required")
	}
	joiner := &AutoJoiner{
		joiner:       config.Joiner,
		userID:       config.UserID,
		initialDelay: config.InitialDelay,
		giveUpDelay:  config.GiveUpDelay,
		rooms:        config.Rooms,
		clock:        config.Clock,
		logger:       config.Logger,
		metrics:      config.Metrics,
	}
	if joiner.initialDelay == 0 {
		joiner.initialDelay = 2 * time.Second
	}
	if joiner.giveUpDelay == 0 {
		joiner.giveUpDelay = time.Hour
	}
	if joiner.clock == nil {
		joiner.clock = clock.Real()
	}
	if joiner.logger == nil {
		joiner.logger = slog.Default()
	}
	return joiner, nil
}

// Handle is a syncengine.Handler. It starts a join task for every
// invitation of the bot and ignores all other events.
func (a *AutoJoiner) Handle(ctx context.Context, event syncengine.InboundEvent) error {
	change, ok := event.(*syncengine.MembershipChange)
	if !ok {
		return nil
	}
	if change.Target != a.userID || change.Membership != messaging.MembershipInvite {
		return nil
	}
	a.logger.Info("received invitation",
		"room_id", change.RoomID,
		"inviter", change.Sender,
	)
	a.Join(ctx, change.RoomID)
	return nil
}

// Join starts a background task that joins roomID with backoff.
func (a *AutoJoiner) Join(ctx context.Context, roomID ref.RoomID) {
	a.tasks.Add(1)
	go func() {
		defer a.tasks.Done()
		a.join(ctx, roomID)
	}()
}

// Wait blocks until every started task has finished.
func (a *AutoJoiner) Wait() {
	a.tasks.Wait()
}

func (a *AutoJoiner) join(ctx context.Context, roomID ref.RoomID) {
	delay := a.initialDelay
	for attempt := 1; ; attempt++ {
		_, err := a.joiner.JoinRoom(ctx, roomID)
		if err == nil {
			if a.rooms != nil {
				a.rooms.Set(roomID, messaging.MembershipJoin)
			}
			a.metrics.JoinAttempt(metrics.JoinSuccess)
			a.logger.Info("joined room", "room_id", roomID, "attempt", attempt)
			return
		}
		if ctx.Err() != nil {
			return
		}
		a.metrics.JoinAttempt(metrics.JoinFailure)

		if delay >= a.giveUpDelay {
			a.metrics.JoinAttempt(metrics.JoinGaveUp)
			a.logger.Error("giving up joining room",
				"room_id", roomID,
				"attempts", attempt,
				"error", err,
			)
			return
		}

		wait := max(delay, messaging.RetryAfter(err))
		a.logger.Warn("failed to join room, retrying",
			"room_id", roomID,
			"attempt", attempt,
			"delay", wait,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return
		case <-a.clock.After(wait):
		}
		delay *= 2
	}
}
