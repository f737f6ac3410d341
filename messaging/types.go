// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/typbot/lib/ref"
)

// LoginRequest is the body of a password login.
type LoginRequest struct {
	Type                     string         `json:"type"`
	Identifier               UserIdentifier `json:"identifier"`
	Password                 string         `json:"password"`
	DeviceID                 string         `json:"device_id,omitempty"`
	InitialDeviceDisplayName string         `json:"initial_device_display_name,omitempty"`
}

// UserIdentifier identifies the account for m.login.password.
type UserIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// AuthResponse is returned by /login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// Event is a Matrix room event as delivered by /sync. Stripped state
// events in invite sections carry only type, sender, state_key and
// content; the other fields are zero for those.
type Event struct {
	EventID        ref.EventID     `json:"event_id,omitzero"`
	Type           ref.EventType   `json:"type"`
	Sender         ref.UserID      `json:"sender"`
	OriginServerTS int64           `json:"origin_server_ts,omitempty"`
	StateKey       *string         `json:"state_key,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
	Unsigned       *EventUnsigned  `json:"unsigned,omitempty"`
}

// EventUnsigned holds server-computed fields that are not part of the
// signed event.
type EventUnsigned struct {
	Age           int64  `json:"age,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// DecodeContent unmarshals the event content into target.
func (e Event) DecodeContent(target any) error {
	if len(e.Content) == 0 {
		return fmt.Errorf("messaging: event %s (%s) has no content", e.EventID, e.Type)
	}
	if err := json.Unmarshal(e.Content, target); err != nil {
		return fmt.Errorf("messaging: decoding %s content: %w", e.Type, err)
	}
	return nil
}

// IsState reports whether the event carries a state key.
func (e Event) IsState() bool {
	return e.StateKey != nil
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data grouped by membership.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
	Leave  map[ref.RoomID]LeftRoom    `json:"leave,omitempty"`
}

// JoinedRoom is the sync data for a room the user has joined.
type JoinedRoom struct {
	State    StateSection    `json:"state"`
	Timeline TimelineSection `json:"timeline"`
}

// InvitedRoom is the sync data for a room the user is invited to. The
// invite state is a stripped subset of the room's state that includes
// the m.room.member event carrying the invitation.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// LeftRoom is the sync data for a room the user has left or been
// removed from.
type LeftRoom struct {
	State    StateSection    `json:"state"`
	Timeline TimelineSection `json:"timeline"`
}

// TimelineSection is the timeline portion of a room's sync data.
type TimelineSection struct {
	Events    []Event `json:"events"`
	Limited   bool    `json:"limited,omitempty"`
	PrevBatch string  `json:"prev_batch,omitempty"`
}

// StateSection is a list of state events.
type StateSection struct {
	Events []Event `json:"events"`
}

// SendEventResponse is returned by the send event endpoint.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// JoinResponse is returned by the join endpoint.
type JoinResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// WhoAmIResponse is returned by /account/whoami.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// UploadResponse is returned by the media upload endpoint.
type UploadResponse struct {
	ContentURI string `json:"content_uri"`
}

// ServerVersionsResponse is returned by /_matrix/client/versions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}
