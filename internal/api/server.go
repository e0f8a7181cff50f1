// Package api exposes the operational HTTP surface of the harvester:
// health probes, Prometheus metrics, and read-only run state.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ksaito/jobharvest/internal/adapter"
	"github.com/ksaito/jobharvest/internal/harvest"
)

// Server serves the ops endpoints. It holds no crawl state of its own, only
// a snapshot of the most recent run.
type Server struct {
	router  chi.Router
	logger  *zap.Logger
	sites   map[string]adapter.Site
	lastRun atomic.Pointer[harvest.RunResult]
}

// NewServer builds the router. Sites are listed read-only on /v1/sources.
func NewServer(sites map[string]adapter.Site, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{logger: logger, sites: sites}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sources", s.listSources)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/last", s.lastRunSummary)
			r.Get("/last/tasks", s.lastRunTasks)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// RecordRun stores a finished run as the snapshot served by /v1/runs/last.
func (s *Server) RecordRun(run harvest.RunResult) {
	s.lastRun.Store(&run)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(s.sites))
	for name := range s.sites {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]any{"sources": names})
}

type runSummary struct {
	RunID      string    `json:"run_id"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
	Tasks      int       `json:"tasks"`
	RawCount   int       `json:"raw_count"`
	FinalCount int       `json:"final_count"`
	NewCount   int       `json:"new_count"`
	SavedCount int       `json:"saved_count"`
}

func (s *Server) lastRunSummary(w http.ResponseWriter, _ *http.Request) {
	run := s.lastRun.Load()
	if run == nil {
		writeError(w, http.StatusNotFound, "no run recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, runSummary{
		RunID:      run.RunID,
		Started:    run.Started,
		Finished:   run.Finished,
		Tasks:      len(run.Tasks),
		RawCount:   run.RawCount,
		FinalCount: run.FinalCount,
		NewCount:   run.NewCount,
		SavedCount: run.SavedCount,
	})
}

type taskSummary struct {
	Source       string `json:"source"`
	Keyword      string `json:"keyword"`
	Area         string `json:"area,omitempty"`
	Status       string `json:"status"`
	Records      int    `json:"records"`
	PagesFetched int    `json:"pages_fetched"`
	PagesFailed  int    `json:"pages_failed"`
	Error        string `json:"error,omitempty"`
}

func (s *Server) lastRunTasks(w http.ResponseWriter, _ *http.Request) {
	run := s.lastRun.Load()
	if run == nil {
		writeError(w, http.StatusNotFound, "no run recorded yet")
		return
	}
	tasks := make([]taskSummary, 0, len(run.Tasks))
	for _, t := range run.Tasks {
		tasks = append(tasks, taskSummary{
			Source:       t.Task.Source,
			Keyword:      t.Task.Keyword,
			Area:         t.Task.Area,
			Status:       string(t.Status),
			Records:      len(t.Records),
			PagesFetched: t.PagesFetched,
			PagesFailed:  t.PagesFailed,
			Error:        t.FirstError(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": run.RunID, "tasks": tasks})
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
