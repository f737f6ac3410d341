// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bureau-foundation/typbot/lib/autojoin"
	"github.com/bureau-foundation/typbot/lib/clock"
	"github.com/bureau-foundation/typbot/lib/config"
	"github.com/bureau-foundation/typbot/lib/metrics"
	"github.com/bureau-foundation/typbot/lib/sessionstore"
	"github.com/bureau-foundation/typbot/lib/syncengine"
	"github.com/bureau-foundation/typbot/lib/typeset"
	"github.com/bureau-foundation/typbot/messaging"
)

// requestTimeout bounds every homeserver request. It must exceed the
// 30 second /sync long-poll hold.
const requestTimeout = 90 * time.Second

// runBot connects to the homeserver and runs the sync engine until ctx
// is cancelled or the session record can no longer be written.
func runBot(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver,
		HTTPClient:    &http.Client{Timeout: requestTimeout},
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("invalid homeserver: %w", err)
	}

	versions, err := client.ServerVersions(ctx)
	if err != nil {
		return fmt.Errorf("homeserver %s unreachable: %w", cfg.Homeserver, err)
	}
	logger.Info("homeserver reachable",
		"homeserver", client.HomeserverURL(),
		"versions", versions.Versions,
	)

	store := sessionstore.New(cfg.SessionFile)
	session, cursor, err := openSession(ctx, client, store, cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	clk := clock.Real()
	botMetrics := metrics.New()

	serveContext, stopServing := context.WithCancel(ctx)
	defer stopServing()

	metricsDone := make(chan struct{})
	if cfg.MetricsAddress != "" {
		go func() {
			defer close(metricsDone)
			if err := botMetrics.Serve(serveContext, cfg.MetricsAddress, logger); err != nil {
				logger.Error("metrics endpoint failed", "address", cfg.MetricsAddress, "error", err)
			}
		}()
	} else {
		close(metricsDone)
	}

	rooms := syncengine.NewRooms()
	engine, err := syncengine.New(syncengine.Config{
		Session:   session,
		Store:     store,
		Cursor:    cursor,
		Rooms:     rooms,
		Reconnect: session.CloseIdleConnections,
		Clock:     clk,
		Logger:    logger,
		Metrics:   botMetrics,
	})
	if err != nil {
		return err
	}

	joiner, err := autojoin.New(autojoin.Config{
		Joiner:  session,
		UserID:  session.UserID(),
		Rooms:   rooms,
		Clock:   clk,
		Logger:  logger,
		Metrics: botMetrics,
	})
	if err != nil {
		return err
	}

	compiler := typeset.NewCompiler(typeset.CompilerConfig{
		Binary:  cfg.Renderer.Binary,
		Args:    cfg.Renderer.Args,
		Timeout: cfg.Renderer.Timeout,
		Clock:   clk,
		Logger:  logger,
	})
	renderer, err := typeset.New(typeset.Config{
		Session:   session,
		Rooms:     rooms,
		Compiler:  compiler,
		Prefix:    cfg.Renderer.Prefix,
		Preamble:  cfg.Renderer.Preamble,
		Freshness: cfg.Renderer.Freshness,
		Clock:     clk,
		Logger:    logger,
		Metrics:   botMetrics,
	})
	if err != nil {
		return err
	}

	engine.Register("autojoin", joiner.Handle)
	engine.Register("typeset", renderer.Handle)

	logger.Info("typbot running",
		"user_id", session.UserID(),
		"session_file", store.Path(),
		"prefix", cfg.Renderer.Prefix,
		"resumed", cursor != "",
	)

	runErr := engine.Run(ctx)

	engine.Wait()
	joiner.Wait()
	stopServing()
	<-metricsDone

	if ctx.Err() != nil && errors.Is(runErr, ctx.Err()) {
		logger.Info("shutting down")
		return nil
	}
	return runErr
}
