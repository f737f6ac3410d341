// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", recorder.Code)
	}
	return recorder.Body.String()
}

func TestRecording(t *testing.T) {
	m := New()
	m.SyncBatch()
	m.SyncBatch()
	m.SyncError(PhaseStreaming)
	m.Dispatched(3)
	m.Render(RenderImage)
	m.Render(RenderTimeout)
	m.RenderDuration(1500 * time.Millisecond)
	m.JoinAttempt(JoinFailure)
	m.HandlerPanic()

	body := scrape(t, m.Handler())
	for _, want := range []string{
		"typbot_sync_batches_total 2",
		`typbot_sync_errors_total{phase="streaming"} 1`,
		"typbot_events_dispatched_total 3",
		`typbot_renders_total{outcome="image"} 1`,
		`typbot_renders_total{outcome="timeout"} 1`,
		"typbot_render_duration_seconds_count 1",
		`typbot_join_attempts_total{result="failure"} 1`,
		"typbot_handler_panics_total 1",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	m.SyncBatch()
	m.SyncError(PhaseInitial)
	m.Dispatched(1)
	m.HandlerPanic()
	m.Render(RenderFailed)
	m.RenderDuration(time.Second)
	m.JoinAttempt(JoinGaveUp)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	m := New()
	m.SyncBatch()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.serve(ctx, listener, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	response, err := http.Get("http://" + listener.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(response.Body)
	response.Body.Close()
	if !strings.Contains(string(body), "typbot_sync_batches_total 1") {
		t.Errorf("unexpected body: %s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
