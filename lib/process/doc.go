// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the binary entrypoint exit helper. It is the
// one place allowed to write to stderr without the structured logger,
// because startup errors (bad configuration, unreachable homeserver)
// can occur before the logger is configured.
package process
