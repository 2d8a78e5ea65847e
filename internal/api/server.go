// Package api provides the thin HTTP trigger shell around the
// analytics engine. It exists for external schedulers: it exposes
// health, a full-run trigger, a light-refresh trigger, and a status
// endpoint, and it serializes runs behind a busy flag. Nothing in here
// computes anything.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fleet_watch/internal/pipeline"
	"fleet_watch/internal/visits"
)

// ReportSource materializes the raw visit reports for a run, keyed by
// unit name. Acquisition itself (portal scraping, file drops) is the
// caller's concern.
type ReportSource func(ctx context.Context) (map[string][]visits.RawVisit, error)

// Server is the HTTP trigger shell.
type Server struct {
	runner  *pipeline.Runner
	source  ReportSource
	port    int
	timeout time.Duration

	mu      sync.Mutex
	busy    bool
	lastRun *pipeline.RunSummary
}

// Config holds trigger server settings.
type Config struct {
	Port    int
	Timeout time.Duration // per-run deadline; the run is abandoned on expiry
}

// NewServer creates the trigger shell around a runner and a report
// source.
func NewServer(runner *pipeline.Runner, source ReportSource, cfg Config) *Server {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Minute
	}
	return &Server{
		runner:  runner,
		source:  source,
		port:    cfg.Port,
		timeout: timeout,
	}
}

// Router builds the chi router for the trigger endpoints.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/trigger", s.handleRun(true))
	r.Post("/refresh", s.handleRun(false))
	return r
}

// Run starts the trigger server and blocks until the listener fails.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.port)
	log.Printf("[api] trigger server listening on %s", addr)
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "fleet_watch",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	busy := s.busy
	last := s.lastRun
	s.mu.Unlock()

	resp := map[string]interface{}{"busy": busy}
	if last != nil {
		resp["last_mode"] = last.Mode
		resp["last_started"] = last.Started
		resp["last_finished"] = last.Finished
		resp["last_failed"] = last.Failed()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRun gates a run behind the busy flag. Overlapping triggers get
// 409 rather than a second concurrent run; the shared store cannot
// take concurrent writers.
func (s *Server) handleRun(full bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		if s.busy {
			s.mu.Unlock()
			writeJSON(w, http.StatusConflict, map[string]string{"error": "run already in progress"})
			return
		}
		s.busy = true
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			s.busy = false
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()

		started := time.Now()
		reports, err := s.source(ctx)
		if err != nil {
			log.Printf("[api] report source failed: %v", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "report source: " + err.Error()})
			return
		}

		var summary *pipeline.RunSummary
		if full {
			summary = s.runner.Run(ctx, reports)
		} else {
			summary = s.runner.Refresh(ctx, reports)
		}

		s.mu.Lock()
		s.lastRun = summary
		s.mu.Unlock()

		status := http.StatusOK
		if summary.Failed() {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, map[string]interface{}{
			"mode":             summary.Mode,
			"duration_seconds": time.Since(started).Seconds(),
			"units":            summary.Units,
			"failed":           summary.Failed(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}
