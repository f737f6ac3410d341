// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import "github.com/bureau-foundation/typbot/lib/ref"

// Message types carried in the msgtype field of m.room.message.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
	MsgTypeImage  = "m.image"
)

// FormatHTML is the only rich body format Matrix defines.
const FormatHTML = "org.matrix.custom.html"

// RelationThread is the rel_type for thread membership.
const RelationThread = "m.thread"

// MessageContent is the content of an m.room.message event. The same
// struct serves inbound decoding and outbound sends; fields not
// relevant to a msgtype are omitted on the wire.
type MessageContent struct {
	MsgType       string     `json:"msgtype"`
	Body          string     `json:"body"`
	Format        string     `json:"format,omitempty"`
	FormattedBody string     `json:"formatted_body,omitempty"`
	URL           string     `json:"url,omitempty"`
	Info          *ImageInfo `json:"info,omitempty"`
	Mentions      *Mentions  `json:"m.mentions,omitempty"`
	RelatesTo     *RelatesTo `json:"m.relates_to,omitempty"`
}

// ImageInfo describes an uploaded image.
type ImageInfo struct {
	Width    int    `json:"w,omitempty"`
	Height   int    `json:"h,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	Size     int    `json:"size,omitempty"`
}

// Mentions lists the users a message intentionally notifies.
type Mentions struct {
	UserIDs []ref.UserID `json:"user_ids,omitempty"`
	Room    bool         `json:"room,omitempty"`
}

// RelatesTo links an event to another: a reply, a thread, or both.
type RelatesTo struct {
	RelType       string      `json:"rel_type,omitempty"`
	EventID       ref.EventID `json:"event_id,omitzero"`
	IsFallingBack bool        `json:"is_falling_back,omitempty"`
	InReplyTo     *InReplyTo  `json:"m.in_reply_to,omitempty"`
}

// InReplyTo identifies the event a rich reply answers.
type InReplyTo struct {
	EventID ref.EventID `json:"event_id"`
}

// ThreadRoot returns the thread root event ID if this message belongs
// to a thread, or the zero EventID.
func (c MessageContent) ThreadRoot() ref.EventID {
	if c.RelatesTo != nil && c.RelatesTo.RelType == RelationThread {
		return c.RelatesTo.EventID
	}
	return ref.EventID{}
}

// ReplyTarget identifies the message a reply answers.
type ReplyTarget struct {
	EventID ref.EventID
	Sender  ref.UserID
	// ThreadRoot is set when the original message was inside a thread;
	// the reply then stays in that thread.
	ThreadRoot ref.EventID
}

// ReplyTo returns a copy of c set up as a rich reply to target: it
// relates to the original event, mentions the original sender, and
// stays in the original's thread when there is one. Inside a thread
// the in-reply-to still names the original event and is not a
// fallback, so thread-aware clients show it as a reply.
func (c MessageContent) ReplyTo(target ReplyTarget) MessageContent {
	reply := c
	relation := &RelatesTo{
		InReplyTo: &InReplyTo{EventID: target.EventID},
	}
	if !target.ThreadRoot.IsZero() {
		relation.RelType = RelationThread
		relation.EventID = target.ThreadRoot
	}
	reply.RelatesTo = relation
	if !target.Sender.IsZero() {
		reply.Mentions = &Mentions{UserIDs: []ref.UserID{target.Sender}}
	}
	return reply
}

// NewTextMessage creates a plain m.text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: MsgTypeText,
		Body:    body,
	}
}

// NewHTMLMessage creates an m.text message with an HTML formatted body
// and a plain-text fallback body.
func NewHTMLMessage(plain, html string) MessageContent {
	return MessageContent{
		MsgType:       MsgTypeText,
		Body:          plain,
		Format:        FormatHTML,
		FormattedBody: html,
	}
}

// NewImageMessage creates an m.image message pointing at an uploaded
// MXC URI.
func NewImageMessage(name, contentURI string, info ImageInfo) MessageContent {
	return MessageContent{
		MsgType: MsgTypeImage,
		Body:    name,
		URL:     contentURI,
		Info:    &info,
	}
}

// Membership values of m.room.member events.
const (
	MembershipInvite = "invite"
	MembershipJoin   = "join"
	MembershipLeave  = "leave"
	MembershipBan    = "ban"
	MembershipKnock  = "knock"
)

// MemberContent is the content of an m.room.member state event.
type MemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
	Reason      string `json:"reason,omitempty"`
	IsDirect    bool   `json:"is_direct,omitempty"`
}
