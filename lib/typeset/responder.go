// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package typeset

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/bureau-foundation/typbot/lib/ref"
	"github.com/bureau-foundation/typbot/messaging"
)

// Sender is the part of a Matrix session replies need.
// *messaging.DirectSession implements it.
type Sender interface {
	SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error)
	UploadMedia(ctx context.Context, contentType, filename string, body io.Reader) (string, error)
}

// ImageFilename names uploaded renders.
const ImageFilename = "typst.png"

// Responder sends replies.
type Responder struct {
	Session Sender
}

// Send delivers reply to roomID as a rich reply to target. Image data
// is uploaded to the media repository first.
func (r Responder) Send(ctx context.Context, roomID ref.RoomID, target messaging.ReplyTarget, reply Reply) (ref.EventID, error) {
	var content messaging.MessageContent
	switch reply := reply.(type) {
	case PlainText:
		content = messaging.NewTextMessage(reply.Body)
	case FormattedError:
		content = messaging.NewHTMLMessage(reply.Raw, reply.HTML)
	case Image:
		contentURI, err := r.Session.UploadMedia(ctx, reply.MimeType, ImageFilename, bytes.NewReader(reply.Data))
		if err != nil {
			return ref.EventID{}, fmt.Errorf("uploading render: %w", err)
		}
		content = messaging.NewImageMessage(ImageFilename, contentURI, messaging.ImageInfo{
			Width:    reply.Width,
			Height:   reply.Height,
			MimeType: reply.MimeType,
			Size:     len(reply.Data),
		})
	default:
		return ref.EventID{}, fmt.Errorf("unsupported reply type %T", reply)
	}

	eventID, err := r.Session.SendMessage(ctx, roomID, content.ReplyTo(target))
	if err != nil {
		return ref.EventID{}, fmt.Errorf("sending reply: %w", err)
	}
	return eventID, nil
}
