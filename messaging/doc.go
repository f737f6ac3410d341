// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the slice of the Matrix client-server API that
// typbot needs.
//
// [Client] is an unauthenticated client holding the homeserver URL and
// HTTP transport. It probes the homeserver ([Client.ServerVersions]),
// performs password login, and restores sessions from a stored access
// token. Both paths return a [DirectSession].
//
// [DirectSession] carries the access token in a secret.Buffer and
// performs the authenticated calls: incremental /sync with
// long-polling, joining rooms, sending m.room.message events with
// idempotent transaction IDs, and uploading media. Consumers declare
// the narrow interface they need (a syncer, a joiner, a sender) and
// tests substitute fakes for it.
//
// All API errors are returned as [*MatrixError] carrying the Matrix
// error code (M_FORBIDDEN, M_LIMIT_EXCEEDED, ...) and HTTP status.
// [RetryAfter] extracts the server's requested wait from a rate-limit
// error so retry loops never come back sooner than asked.
// Request URLs are built by string concatenation with url.PathEscape
// on each path segment rather than url.URL, to avoid double-encoding
// identifiers that contain reserved characters.
//
// Message content is typed ([MessageContent]): text, HTML-formatted
// text and images, with rich-reply relations ([MessageContent.ReplyTo])
// that keep threads intact and mention the original sender.
package messaging
