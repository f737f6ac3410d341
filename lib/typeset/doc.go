// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package typeset answers ",typ" chat commands with rendered typst
// output.
//
// The pipeline for one message is:
//
//   - [Gate] decides whether a message is a command: the bot must be
//     joined to the room, the message must be younger than the
//     freshness window, be m.text, and start with the prefix.
//   - [Compiler] runs the external compiler in its own process group,
//     feeds the source on stdin and drains stdout and stderr
//     concurrently. If stdout is not closed within the render timeout
//     the whole group is killed and [ErrRenderTimeout] is returned.
//   - [BuildReply] turns the compiler result into a [Reply]: an
//     [Image] on success, a [FormattedError] carrying the diagnostics
//     otherwise.
//   - [Responder] sends the reply as a threaded rich reply that
//     mentions the sender, uploading image bytes first.
//
// [Handler] ties the steps together and is registered with the sync
// engine. Failures (spawn errors, undecodable images, upload or send
// errors) affect only the message being handled.
package typeset
