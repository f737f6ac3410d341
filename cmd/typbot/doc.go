// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Typbot is a Matrix bot that renders Typst snippets. A message that
// starts with the command prefix (",typ" by default) in a joined room
// is compiled by the typst binary and answered in the same thread with
// the rendered PNG, or with the compiler diagnostics when compilation
// fails. Invitations are accepted automatically.
//
// On first start the bot logs in with USERNAME and PASSWORD and writes
// a session record to SESSION_FILE. Later starts restore the access
// token and sync cursor from that record, so messages sent while the
// bot was offline are not answered.
package main
