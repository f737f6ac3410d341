// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines typbot's Prometheus collectors and the
// HTTP endpoint that exposes them.
//
// A nil *Metrics is valid: every recording method is a no-op on nil,
// so components can be constructed without metrics in tests.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "typbot"

// Render outcomes, used as the "outcome" label of renders_total.
const (
	RenderImage        = "image"
	RenderCompileError = "compile_error"
	RenderTimeout      = "timeout"
	RenderEmpty        = "empty"
	RenderFailed       = "failed"
)

// Join results, used as the "result" label of join_attempts_total.
const (
	JoinSuccess = "success"
	JoinFailure = "failure"
	JoinGaveUp  = "gave_up"
)

// Sync phases, used as the "phase" label of sync_errors_total.
const (
	PhaseInitial   = "initial"
	PhaseStreaming = "streaming"
)

// Metrics holds every collector typbot records to.
type Metrics struct {
	gatherer prometheus.Gatherer

	syncBatches    prometheus.Counter
	syncErrors     *prometheus.CounterVec
	dispatched     prometheus.Counter
	handlerPanics  prometheus.Counter
	renders        *prometheus.CounterVec
	renderDuration prometheus.Histogram
	joinAttempts   *prometheus.CounterVec
}

// New creates the collectors and registers them with a fresh registry
// that also carries the Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		gatherer: registry,
		syncBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_batches_total",
			Help:      "Sync responses processed, including the initial sync.",
		}),
		syncErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Failed /sync requests by phase.",
		}, []string{"phase"}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Inbound events handed to handlers.",
		}),
		handlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Event handler invocations that panicked.",
		}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Typeset commands handled, by outcome.",
		}, []string{"outcome"}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Wall time of compiler runs.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 25},
		}),
		joinAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_attempts_total",
			Help:      "Auto-join attempts by result.",
		}, []string{"result"}),
	}
	registry.MustRegister(
		m.syncBatches,
		m.syncErrors,
		m.dispatched,
		m.handlerPanics,
		m.renders,
		m.renderDuration,
		m.joinAttempts,
	)
	return m
}

// SyncBatch records one processed sync response.
func (m *Metrics) SyncBatch() {
	if m == nil {
		return
	}
	m.syncBatches.Inc()
}

// SyncError records a failed /sync request in the given phase.
func (m *Metrics) SyncError(phase string) {
	if m == nil {
		return
	}
	m.syncErrors.WithLabelValues(phase).Inc()
}

// Dispatched records events handed to handlers.
func (m *Metrics) Dispatched(count int) {
	if m == nil {
		return
	}
	m.dispatched.Add(float64(count))
}

// HandlerPanic records a recovered handler panic.
func (m *Metrics) HandlerPanic() {
	if m == nil {
		return
	}
	m.handlerPanics.Inc()
}

// Render records a handled typeset command.
func (m *Metrics) Render(outcome string) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(outcome).Inc()
}

// RenderDuration records how long one compiler run took.
func (m *Metrics) RenderDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.Observe(duration.Seconds())
}

// JoinAttempt records one auto-join attempt result.
func (m *Metrics) JoinAttempt(result string) {
	if m == nil {
		return
	}
	m.joinAttempts.WithLabelValues(result).Inc()
}

// Handler returns the /metrics HTTP handler for these collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on address until ctx is cancelled. Returns
// nil after a clean shutdown.
func (m *Metrics) Serve(ctx context.Context, address string, logger *slog.Logger) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return m.serve(ctx, listener, logger)
}

func (m *Metrics) serve(ctx context.Context, listener net.Listener, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownContext)
	}()

	logger.Info("metrics endpoint listening", "address", listener.Addr().String())
	err := server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		<-shutdownDone
		return nil
	}
	return err
}
