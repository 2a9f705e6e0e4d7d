// Package httpapi serves the worker's health, readiness and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tendant/adm-engine-worker/internal/ledger"
	"github.com/tendant/adm-engine-worker/internal/process"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

// JobLookup is satisfied by *ledger.Ledger.
type JobLookup interface {
	Get(ctx context.Context, jobID string) (*ledger.Entry, error)
}

type Deps struct {
	Descriptor process.Descriptor
	// Checks is keyed by dependency name, e.g. "nats", "redis", "postgres".
	Checks  map[string]Check
	Metrics http.Handler
	// Jobs serves GET /jobs/{jobId} when set.
	Jobs   JobLookup
	Logger *slog.Logger
	// CheckTimeout bounds each readiness check. Defaults to 5s.
	CheckTimeout time.Duration
}

type handler struct {
	descriptor   process.Descriptor
	checks       map[string]Check
	jobs         JobLookup
	logger       *slog.Logger
	checkTimeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := d.CheckTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	h := &handler{
		descriptor:   d.Descriptor,
		checks:       d.Checks,
		jobs:         d.Jobs,
		logger:       logger,
		checkTimeout: timeout,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Get("/readyz", h.ready)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	if d.Jobs != nil {
		r.Get("/jobs/{jobId}", h.getJob)
	}
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"name":              h.descriptor.Name,
		"short_description": h.descriptor.ShortDescription,
		"description":       h.descriptor.Description,
		"version":           h.descriptor.Version,
	})
}

func (h *handler) ready(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	checks := make(map[string]any, len(names))
	for _, name := range names {
		result := h.runCheck(r.Context(), h.checks[name])
		if result["status"] != "ok" {
			status = "degraded"
		}
		checks[name] = result
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
		h.logger.Warn("readiness check degraded", "checks", checks)
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

func (h *handler) runCheck(ctx context.Context, check Check) map[string]any {
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()

	if err := check(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	entry, err := h.jobs.Get(r.Context(), jobID)
	if errors.Is(err, ledger.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		h.logger.Error("get job failed", "job_id", jobID, "err", err)
		writeErr(w, http.StatusInternalServerError, "internal", "could not load job")
		return
	}

	body := map[string]any{
		"id":     entry.ID,
		"status": entry.Status,
	}
	if entry.Message != "" {
		body["message"] = entry.Message
	}
	if entry.FailureType != "" {
		body["failure_type"] = entry.FailureType
	}
	if entry.FinishedAt != nil {
		body["finished_at"] = entry.FinishedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, body)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
