// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/typbot/lib/ref"
	"github.com/bureau-foundation/typbot/messaging"
)

// InboundEvent is one event delivered by /sync. The concrete type is
// one of *TextMessage, *MembershipChange or *OtherEvent.
type InboundEvent interface {
	// Room returns the room the event belongs to.
	Room() ref.RoomID
	inboundEvent()
}

// TextMessage is an m.room.message event. MsgType distinguishes
// m.text from notices, images and the rest.
type TextMessage struct {
	RoomID     ref.RoomID
	Sender     ref.UserID
	EventID    ref.EventID
	Body       string
	MsgType    string
	Timestamp  time.Time
	ThreadRoot ref.EventID
}

// MembershipChange is an m.room.member state event.
type MembershipChange struct {
	RoomID     ref.RoomID
	Target     ref.UserID
	Sender     ref.UserID
	Membership string
}

// OtherEvent is any event typbot does not interpret, including
// messages and member events whose content failed to decode.
type OtherEvent struct {
	RoomID ref.RoomID
	Event  messaging.Event
}

func (e *TextMessage) Room() ref.RoomID      { return e.RoomID }
func (e *MembershipChange) Room() ref.RoomID { return e.RoomID }
func (e *OtherEvent) Room() ref.RoomID       { return e.RoomID }

func (*TextMessage) inboundEvent()      {}
func (*MembershipChange) inboundEvent() {}
func (*OtherEvent) inboundEvent()       {}

// EventsFromSync flattens a sync response into inbound events. Rooms
// are visited in room ID order within each section (invites, joined,
// left); inside a room, invite state comes first, then state, then
// timeline, each in server order.
func EventsFromSync(response *messaging.SyncResponse) []InboundEvent {
	var events []InboundEvent

	for _, roomID := range sortedRooms(response.Rooms.Invite) {
		for _, event := range response.Rooms.Invite[roomID].InviteState.Events {
			events = append(events, convert(roomID, event))
		}
	}
	for _, roomID := range sortedRooms(response.Rooms.Join) {
		room := response.Rooms.Join[roomID]
		for _, event := range room.State.Events {
			events = append(events, convert(roomID, event))
		}
		for _, event := range room.Timeline.Events {
			events = append(events, convert(roomID, event))
		}
	}
	for _, roomID := range sortedRooms(response.Rooms.Leave) {
		room := response.Rooms.Leave[roomID]
		for _, event := range room.State.Events {
			events = append(events, convert(roomID, event))
		}
		for _, event := range room.Timeline.Events {
			events = append(events, convert(roomID, event))
		}
	}
	return events
}

// pendingInvites returns the invite membership events targeting
// userID in the response's invite section.
func pendingInvites(response *messaging.SyncResponse, userID ref.UserID) []InboundEvent {
	var invites []InboundEvent
	for _, roomID := range sortedRooms(response.Rooms.Invite) {
		for _, event := range response.Rooms.Invite[roomID].InviteState.Events {
			change, ok := convert(roomID, event).(*MembershipChange)
			if ok && change.Target == userID && change.Membership == messaging.MembershipInvite {
				invites = append(invites, change)
			}
		}
	}
	return invites
}

func convert(roomID ref.RoomID, event messaging.Event) InboundEvent {
	switch event.Type {
	case ref.EventTypeMessage:
		var content messaging.MessageContent
		if event.DecodeContent(&content) != nil {
			break
		}
		return &TextMessage{
			RoomID:     roomID,
			Sender:     event.Sender,
			EventID:    event.EventID,
			Body:       content.Body,
			MsgType:    content.MsgType,
			Timestamp:  time.UnixMilli(event.OriginServerTS),
			ThreadRoot: content.ThreadRoot(),
		}

	case ref.EventTypeMember:
		if event.StateKey == nil {
			break
		}
		target, err := ref.ParseUserID(*event.StateKey)
		if err != nil {
			break
		}
		var content messaging.MemberContent
		if event.DecodeContent(&content) != nil {
			break
		}
		return &MembershipChange{
			RoomID:     roomID,
			Target:     target,
			Sender:     event.Sender,
			Membership: content.Membership,
		}
	}
	return &OtherEvent{RoomID: roomID, Event: event}
}

func sortedRooms[V any](rooms map[ref.RoomID]V) []ref.RoomID {
	roomIDs := make([]ref.RoomID, 0, len(rooms))
	for roomID := range rooms {
		roomIDs = append(roomIDs, roomID)
	}
	slices.SortFunc(roomIDs, func(a, b ref.RoomID) int {
		return strings.Compare(a.String(), b.String())
	})
	return roomIDs
}
