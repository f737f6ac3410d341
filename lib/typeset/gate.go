// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package typeset

import (
	"strings"
	"time"

	"github.com/bureau-foundation/typbot/lib/clock"
	"github.com/bureau-foundation/typbot/lib/ref"
	"github.com/bureau-foundation/typbot/lib/syncengine"
	"github.com/bureau-foundation/typbot/messaging"
)

// DefaultPrefix is the command token.
const DefaultPrefix = ",typ"

// DefaultFreshness is how old a message may be and still be answered.
const DefaultFreshness = 5 * time.Second

// MembershipChecker reports whether the bot is joined to a room.
// *syncengine.Rooms implements it.
type MembershipChecker interface {
	IsJoined(roomID ref.RoomID) bool
}

// Gate decides which messages are typeset commands.
type Gate struct {
	Rooms     MembershipChecker
	Clock     clock.Clock
	Prefix    string
	Freshness time.Duration
}

// Check applies, in order: joined room, freshness, m.text, prefix. It
// returns the text after the prefix and true for a command; the
// remainder may be blank.
func (g Gate) Check(message *syncengine.TextMessage) (remainder string, ok bool) {
	if !g.Rooms.IsJoined(message.RoomID) {
		return "", false
	}
	// A timestamp ahead of the local clock yields a negative age and
	// counts as fresh.
	if g.Clock.Now().Sub(message.Timestamp) >= g.Freshness {
		return "", false
	}
	if message.MsgType != messaging.MsgTypeText {
		return "", false
	}
	return strings.CutPrefix(message.Body, g.Prefix)
}
