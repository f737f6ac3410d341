// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix event type. It is a named string so
// that event types and state keys cannot be swapped by accident.
type EventType string

// String returns the event type string.
func (t EventType) String() string { return string(t) }

// Event types typbot reads or sends.
const (
	EventTypeMessage EventType = "m.room.message"
	EventTypeMember  EventType = "m.room.member"
)
