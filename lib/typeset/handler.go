// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package typeset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bureau-foundation/typbot/lib/clock"
	"github.com/bureau-foundation/typbot/lib/metrics"
	"github.com/bureau-foundation/typbot/lib/syncengine"
	"github.com/bureau-foundation/typbot/messaging"
)

// DefaultPreamble sets up the page before the user's source.
const DefaultPreamble = `#import "@preview/catppuccin:1.0.0": catppuccin, flavors;
#show: catppuccin.with(flavors.mocha);
#set page(height: auto, width: auto, margin: 28pt);
#set text(size: 44pt);`

// Config configures a Handler. Session, Rooms and Compiler are required.
type Config struct {
	Session  Sender
	Rooms    MembershipChecker
	Compiler *Compiler

	// Prefix is the command token. Default: ",typ".
	Prefix string
	// Preamble is prepended to every source, separated by a newline.
	// Default: DefaultPreamble.
	Preamble string
	// Freshness is the maximum message age. Default: 5 seconds.
	Freshness time.Duration

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Handler answers typeset commands.
type Handler struct {
	gate      Gate
	compiler  *Compiler
	responder Responder
	preamble  string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New validates config and returns a Handler.
func New(config Config) (*Handler, error) {
	if config.Session == nil {
		return nil, errors.New("typeset: Session is required")
	}
	if config.Rooms == nil {
		return nil, errors.New("typeset: Rooms is required")
	}
	if config.Compiler == nil {
		return nil, errors.New("typeset: Compiler is required")
	}
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	if config.Preamble == "" {
		config.Preamble = DefaultPreamble
	}
	if config.Freshness == 0 {
		config.Freshness = DefaultFreshness
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Handler{
		gate: Gate{
			Rooms:     config.Rooms,
			Clock:     config.Clock,
			Prefix:    config.Prefix,
			Freshness: config.Freshness,
		},
		compiler:  config.Compiler,
		responder: Responder{Session: config.Session},
		preamble:  config.Preamble,
		logger:    config.Logger,
		metrics:   config.Metrics,
	}, nil
}

// Handle is a syncengine.Handler. Events other than qualifying text
// messages are ignored.
func (h *Handler) Handle(ctx context.Context, event syncengine.InboundEvent) error {
	message, ok := event.(*syncengine.TextMessage)
	if !ok {
		return nil
	}
	remainder, ok := h.gate.Check(message)
	if !ok {
		return nil
	}

	logger := h.logger.With("room_id", message.RoomID, "event_id", message.EventID, "sender", message.Sender)
	reply, outcome, err := h.Render(ctx, remainder)
	if err != nil {
		h.metrics.Render(metrics.RenderFailed)
		return fmt.Errorf("rendering %s: %w", message.EventID, err)
	}
	h.metrics.Render(outcome)

	target := messaging.ReplyTarget{
		EventID:    message.EventID,
		Sender:     message.Sender,
		ThreadRoot: message.ThreadRoot,
	}
	eventID, err := h.responder.Send(ctx, message.RoomID, target, reply)
	if err != nil {
		return fmt.Errorf("replying to %s: %w", message.EventID, err)
	}
	logger.Info("answered typeset command", "outcome", outcome, "reply_event_id", eventID)
	return nil
}

// Render produces the reply for the text after the command prefix,
// along with its metrics outcome. A timeout is a reply, not an error.
func (h *Handler) Render(ctx context.Context, remainder string) (Reply, string, error) {
	if strings.TrimSpace(remainder) == "" {
		return PlainText{Body: EmptySourceMessage}, metrics.RenderEmpty, nil
	}

	result, err := h.compiler.Compile(ctx, h.preamble+"\n"+remainder)
	if errors.Is(err, ErrRenderTimeout) {
		h.metrics.RenderDuration(h.compiler.timeout)
		return PlainText{Body: TimeoutMessage}, metrics.RenderTimeout, nil
	}
	if err != nil {
		return nil, "", err
	}
	h.metrics.RenderDuration(result.Duration)

	reply, err := BuildReply(result)
	if err != nil {
		return nil, "", err
	}
	if _, ok := reply.(FormattedError); ok {
		return reply, metrics.RenderCompileError, nil
	}
	return reply, metrics.RenderImage, nil
}
