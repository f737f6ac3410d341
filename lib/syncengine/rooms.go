// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"sync"

	"github.com/bureau-foundation/typbot/lib/ref"
	"github.com/bureau-foundation/typbot/messaging"
)

// Rooms tracks the bot's own membership in every room /sync has
// reported. Safe for concurrent use: the engine writes, handlers read.
type Rooms struct {
	mu         sync.RWMutex
	membership map[ref.RoomID]string
}

// NewRooms returns an empty tracker.
func NewRooms() *Rooms {
	return &Rooms{membership: make(map[ref.RoomID]string)}
}

// Membership returns the bot's membership in roomID ("join",
// "invite", "leave"), or false if the room has never been seen.
func (r *Rooms) Membership(roomID ref.RoomID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	membership, ok := r.membership[roomID]
	return membership, ok
}

// IsJoined reports whether the bot is joined to roomID.
func (r *Rooms) IsJoined(roomID ref.RoomID) bool {
	membership, _ := r.Membership(roomID)
	return membership == messaging.MembershipJoin
}

// Set records a membership directly, ahead of the /sync batch that
// will confirm it. The auto-joiner calls it after a successful join.
func (r *Rooms) Set(roomID ref.RoomID, membership string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.membership[roomID] = membership
}

// Len returns the number of tracked rooms.
func (r *Rooms) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.membership)
}

// apply records the memberships implied by the sections of response.
// Leaves are applied before invites and joins so that a room that was
// left and rejoined within one batch ends up joined.
func (r *Rooms) apply(response *messaging.SyncResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for roomID := range response.Rooms.Leave {
		r.membership[roomID] = messaging.MembershipLeave
	}
	for roomID := range response.Rooms.Invite {
		r.membership[roomID] = messaging.MembershipInvite
	}
	for roomID := range response.Rooms.Join {
		r.membership[roomID] = messaging.MembershipJoin
	}
}
