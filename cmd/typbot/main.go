// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/typbot/lib/config"
	"github.com/bureau-foundation/typbot/lib/process"
	"github.com/bureau-foundation/typbot/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		envFile     string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("typbot", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "renderer YAML file (overrides TYPBOT_CONFIG)")
	flagSet.StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file read before the environment (missing file is ignored)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		version.Print("typbot")
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.Load(config.Options{
		EnvFile:      envFile,
		RendererFile: configPath,
	})
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runBot(ctx, cfg, logger)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `typbot renders Typst snippets posted in Matrix rooms.

Usage:
  typbot [flags]

Environment:
  HOMESERVER     homeserver base URL (required)
  DB_DIR         directory for the session record (default: .)
  SESSION_FILE   session record path (default: $DB_DIR/session.json)
  USERNAME       login name, used when no session record exists
  PASSWORD       login password, used when no session record exists
  PASSWORD_FILE  file holding the login password (overrides PASSWORD)
  LOG_LEVEL      debug, info, warn or error (default: info)
  METRICS_ADDR   serve Prometheus metrics on this address
  TYPBOT_CONFIG  renderer YAML file

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
