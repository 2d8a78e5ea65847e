package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fleet_watch/internal/config"
	"fleet_watch/internal/pipeline"
	"fleet_watch/internal/storage"
	"fleet_watch/internal/visits"
)

func testServer(t *testing.T, source ReportSource) *Server {
	t.Helper()
	history, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = history.Close() })

	runner := &pipeline.Runner{
		Config:  config.Default(),
		History: history,
	}
	return NewServer(runner, source, Config{Port: 0})
}

func emptySource(context.Context) (map[string][]visits.RawVisit, error) {
	return map[string][]visits.RawVisit{}, nil
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t, emptySource)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", body["status"])
	}
}

func TestTriggerEndpoint(t *testing.T) {
	srv := testServer(t, emptySource)
	req := httptest.NewRequest("POST", "/trigger", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["mode"] != "full" {
		t.Errorf("mode = %v, want full", body["mode"])
	}
	if body["failed"] != false {
		t.Errorf("failed = %v, want false", body["failed"])
	}

	// Status now carries the last run.
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))
	var status map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status["busy"] != false {
		t.Errorf("busy = %v, want false after the run", status["busy"])
	}
	if status["last_mode"] != "full" {
		t.Errorf("last_mode = %v, want full", status["last_mode"])
	}
}

func TestRefreshEndpoint(t *testing.T) {
	srv := testServer(t, emptySource)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/refresh", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["mode"] != "refresh" {
		t.Errorf("mode = %v, want refresh", body["mode"])
	}
}

func TestConcurrentTriggerRejected(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	slowSource := func(ctx context.Context) (map[string][]visits.RawVisit, error) {
		close(entered)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return map[string][]visits.RawVisit{}, nil
	}
	srv := testServer(t, slowSource)
	router := srv.Router()

	done := make(chan struct{})
	go func() {
		defer close(done)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/trigger", nil))
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first trigger never started")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/trigger", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("overlapping trigger status = %d, want 409", rec.Code)
	}

	close(release)
	<-done
}

func TestTriggerSourceFailure(t *testing.T) {
	srv := testServer(t, func(context.Context) (map[string][]visits.RawVisit, error) {
		return nil, context.DeadlineExceeded
	})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/trigger", nil))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 when the report source fails", rec.Code)
	}
}
