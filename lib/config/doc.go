// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads typbot configuration.
//
// Configuration comes from three layers, applied in order:
//
//   - an optional dotenv file, loaded into the process environment
//     without overriding variables that are already set
//   - the process environment (HOMESERVER, DB_DIR, USERNAME, PASSWORD,
//     PASSWORD_FILE, SESSION_FILE, LOG_LEVEL, METRICS_ADDR, TYPBOT_CONFIG)
//   - an optional YAML renderer file named by --config or
//     TYPBOT_CONFIG, merged over [Default]
//
// Credentials stay in the environment and are never read from the
// YAML file. The YAML file only tunes rendering: the compiler binary
// and arguments, the preamble, the command prefix, the render
// timeout, and the freshness window.
//
// Key exports:
//
//   - [Config] -- environment settings plus the [Renderer] section
//   - [Default] -- renderer defaults
//   - [Load] -- the single entry point used by cmd/typbot
//
// This package depends on no other typbot packages.
package config
