// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, immutable value types for the Matrix
// identifiers typbot handles: room IDs (!opaque:server), user IDs
// (@localpart:server), event IDs ($opaque) and event types.
//
// Identifiers arrive from the homeserver in /sync responses and API
// replies. They are parsed into these types at the JSON boundary via
// encoding.TextUnmarshaler, so a malformed identifier fails the decode
// instead of propagating as a bare string. The zero value of each type
// means "unset"; use IsZero to check.
package ref
