// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncengine drives the Matrix /sync loop and dispatches
// inbound events to handlers.
//
// An [Engine] moves through three states. In [StateInitialSync] it
// issues one /sync from the restored cursor (or from scratch) without
// a server hold, so startup is not delayed by an idle long-poll, and
// retries it forever with a constant one-second pause; the timeline of
// that batch is history and is not dispatched, but room memberships
// are recorded and pending invitations for the bot are handed to the
// handlers. In [StateStreaming] it long-polls with the current cursor,
// converts each response into [InboundEvent] values in server order,
// starts one goroutine per event per handler, and persists the new
// cursor before the next request. Request errors back off
// exponentially from one second to MaxBackoff. A rate-limited request
// waits at least the retry_after_ms the homeserver asked for. A cursor
// persistence failure stops the engine.
//
// Handlers never affect the loop: their errors are logged and panics
// are recovered.
package syncengine
