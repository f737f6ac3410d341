// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/typbot/lib/clock"
	"github.com/bureau-foundation/typbot/lib/metrics"
	"github.com/bureau-foundation/typbot/lib/ref"
	"github.com/bureau-foundation/typbot/messaging"
)

// Handler processes one inbound event. It runs on its own goroutine;
// a returned error is logged and otherwise ignored.
type Handler func(ctx context.Context, event InboundEvent) error

// Syncer is the part of a Matrix session the engine needs.
type Syncer interface {
	UserID() ref.UserID
	Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error)
}

// CursorStore persists the sync cursor after every batch.
type CursorStore interface {
	PersistCursor(cursor string) error
}

// Config configures an Engine. Session and Store are required.
type Config struct {
	Session Syncer
	Store   CursorStore

	// Cursor is the restored sync token. Empty starts from scratch.
	Cursor string

	// Rooms receives membership updates. If nil a new tracker is
	// created; callers that gate on membership pass their own.
	Rooms *Rooms

	// Filter is the inline /sync filter. Default: lazy-load members.
	Filter string

	// Timeout is the long-poll hold in milliseconds. Default: 30000.
	Timeout int

	// InitialRetryDelay is the constant pause between failed initial
	// syncs. Default: 1 second.
	InitialRetryDelay time.Duration

	// MaxBackoff caps the exponential backoff between failed streaming
	// syncs, which starts at 1 second. Default: 30 seconds.
	MaxBackoff time.Duration

	// Reconnect, if set, is called after every failed request so the
	// next one does not reuse a broken connection.
	Reconnect func()

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type namedHandler struct {
	name    string
	handler Handler
}

// Engine runs the sync loop. Create with New, register handlers, then
// call Run once.
type Engine struct {
	session   Syncer
	store     CursorStore
	rooms     *Rooms
	filter    string
	timeout   int
	initDelay time.Duration
	maxDelay  time.Duration
	reconnect func()
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics

	cursor   atomic.Value // string
	state    atomic.Int32
	handlers []namedHandler
	inflight sync.WaitGroup
}

// New validates config and returns an engine in StateUninitialized.
func New(config Config) (*Engine, error) {
	if config.Session == nil {
		return nil, errors.New("syncengine: Session is required")
	}
	if config.Store == nil {
		return nil, errors.New("syncengine: Store is required")
	}

	engine := &Engine{
		session:   config.Session,
		store:     config.Store,
		rooms:     config.Rooms,
		filter:    config.Filter,
		timeout:   config.Timeout,
		initDelay: config.InitialRetryDelay,
		maxDelay:  config.MaxBackoff,
		reconnect: config.Reconnect,
		clock:     config.Clock,
		logger:    config.Logger,
		metrics:   config.Metrics,
	}
	if engine.rooms == nil {
		engine.rooms = NewRooms()
	}
	if engine.filter == "" {
		engine.filter = messaging.BuildFilter(messaging.FilterOptions{LazyLoadMembers: true})
	}
	if engine.timeout == 0 {
		engine.timeout = 30000
	}
	if engine.initDelay == 0 {
		engine.initDelay = time.Second
	}
	if engine.maxDelay == 0 {
		engine.maxDelay = 30 * time.Second
	}
	if engine.reconnect == nil {
		engine.reconnect = func() {}
	}
	if engine.clock == nil {
		engine.clock = clock.Real()
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}
	engine.cursor.Store(config.Cursor)
	return engine, nil
}

// Register adds a handler. Every handler sees every event. Must be
// called before Run.
func (e *Engine) Register(name string, handler Handler) {
	e.handlers = append(e.handlers, namedHandler{name: name, handler: handler})
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Rooms returns the membership tracker the engine updates.
func (e *Engine) Rooms() *Rooms {
	return e.rooms
}

// Cursor returns the most recently persisted sync token.
func (e *Engine) Cursor() string {
	return e.cursor.Load().(string)
}

// Wait blocks until every dispatched handler goroutine has returned.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// Run performs the initial sync and then streams until ctx is
// cancelled, returning ctx.Err(), or until persisting a cursor fails,
// returning that error. Handler goroutines may still be running when
// Run returns; call Wait to drain them.
func (e *Engine) Run(ctx context.Context) error {
	e.state.Store(int32(StateInitialSync))
	e.logger.Info("starting initial sync", "resuming", e.Cursor() != "")

	response, err := e.initialSync(ctx)
	if err != nil {
		return err
	}

	e.rooms.apply(response)
	invites := pendingInvites(response, e.session.UserID())
	e.dispatch(ctx, invites)
	if err := e.persist(response.NextBatch); err != nil {
		return err
	}
	e.metrics.SyncBatch()

	e.state.Store(int32(StateStreaming))
	e.logger.Info("initial sync complete",
		"rooms", e.rooms.Len(),
		"pending_invites", len(invites),
	)

	return e.stream(ctx)
}

// initialSync retries the first /sync forever at a constant interval.
func (e *Engine) initialSync(ctx context.Context) (*messaging.SyncResponse, error) {
	for {
		response, err := e.syncOnce(ctx, false)
		if err == nil {
			return response, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.metrics.SyncError(metrics.PhaseInitial)
		delay := max(e.initDelay, messaging.RetryAfter(err))
		e.logger.Error("initial sync failed, retrying", "error", err, "delay", delay)
		e.reconnect()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.clock.After(delay):
		}
	}
}

// stream runs the long-poll loop.
func (e *Engine) stream(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		response, err := e.syncOnce(ctx, true)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.metrics.SyncError(metrics.PhaseStreaming)
			delay := max(backoff, messaging.RetryAfter(err))
			e.logger.Error("sync failed, retrying", "error", err, "delay", delay)
			e.reconnect()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.clock.After(delay):
			}
			backoff *= 2
			if backoff > e.maxDelay {
				backoff = e.maxDelay
			}
			continue
		}
		backoff = time.Second

		e.rooms.apply(response)
		e.dispatch(ctx, EventsFromSync(response))
		if err := e.persist(response.NextBatch); err != nil {
			return err
		}
		e.metrics.SyncBatch()
	}
}

func (e *Engine) syncOnce(ctx context.Context, longPoll bool) (*messaging.SyncResponse, error) {
	options := messaging.SyncOptions{
		Since:  e.Cursor(),
		Filter: e.filter,
	}
	if longPoll {
		options.Timeout = e.timeout
		options.SetTimeout = true
	}
	response, err := e.session.Sync(ctx, options)
	if err != nil {
		return nil, err
	}
	if response.NextBatch == "" {
		return nil, errors.New("sync response has no next_batch")
	}
	return response, nil
}

func (e *Engine) persist(cursor string) error {
	if err := e.store.PersistCursor(cursor); err != nil {
		return fmt.Errorf("persisting sync cursor: %w", err)
	}
	e.cursor.Store(cursor)
	return nil
}

// dispatch starts one goroutine per event per handler.
func (e *Engine) dispatch(ctx context.Context, events []InboundEvent) {
	if len(events) == 0 {
		return
	}
	e.metrics.Dispatched(len(events))
	for _, event := range events {
		for _, registered := range e.handlers {
			e.inflight.Add(1)
			go e.invoke(ctx, registered, event)
		}
	}
}

func (e *Engine) invoke(ctx context.Context, registered namedHandler, event InboundEvent) {
	defer e.inflight.Done()
	defer func() {
		if recovered := recover(); recovered != nil {
			e.metrics.HandlerPanic()
			e.logger.Error("event handler panicked",
				"handler", registered.name,
				"room_id", event.Room(),
				"panic", fmt.Sprint(recovered),
			)
		}
	}()

	if err := registered.handler(ctx, event); err != nil {
		e.logger.Error("event handler failed",
			"handler", registered.name,
			"room_id", event.Room(),
			"error", err,
		)
	}
}
