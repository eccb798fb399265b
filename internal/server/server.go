// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maargasystems/timesheet-ai/internal/analysis"
	"github.com/maargasystems/timesheet-ai/internal/msgraph"
	"github.com/maargasystems/timesheet-ai/internal/timesheet"
)

// Handler serves the analysis endpoint and health checks.
type Handler struct {
	pipeline *analysis.Pipeline
	store    *timesheet.Store
	timeout  time.Duration
	logger   *slog.Logger
}

// NewHandler creates a Handler. timeout bounds one request end-to-end,
// including every generative call; 0 means 5 minutes.
func NewHandler(pipeline *analysis.Pipeline, store *timesheet.Store, timeout time.Duration, logger *slog.Logger) *Handler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{pipeline: pipeline, store: store, timeout: timeout, logger: logger}
}

// RegisterRoutes registers the API routes on the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/timesheetanalyze", h.handleAnalyze)
	mux.HandleFunc("/healthz", h.handleHealth)
}

// WithCORS wraps next with the permissive CORS headers the frontend expects.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type analyzeRequest struct {
	Question string `json:"question"`
}

type analyzeResponse struct {
	Result string `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req analyzeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question must not be empty")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	start := time.Now()
	result, err := h.pipeline.Analyze(ctx, req.Question)
	if err != nil {
		h.writeAnalyzeError(w, req.Question, err)
		return
	}

	h.logger.Info("analysis complete", "elapsed", time.Since(start), "report_len", len(result))
	writeJSON(w, http.StatusOK, analyzeResponse{Result: result})
}

// writeAnalyzeError maps the pipeline error taxonomy onto user-facing
// responses. Anything unrecognized becomes a generic failure; no partial
// report ever leaves this handler.
func (h *Handler) writeAnalyzeError(w http.ResponseWriter, question string, err error) {
	var noMatch *analysis.NoMatchRowsError
	switch {
	case errors.As(err, &noMatch):
		h.logger.Warn("no rows for subject", "subject", noMatch.Subject)
		writeError(w, http.StatusNotFound, "no timesheet data found for '"+noMatch.Subject+"'")
	case errors.Is(err, timesheet.ErrNoData):
		h.logger.Warn("no timesheet data loaded")
		writeError(w, http.StatusNotFound, "no timesheet data found")
	case errors.Is(err, msgraph.ErrAuth):
		h.logger.Error("graph authentication failed", "error", err)
		writeError(w, http.StatusBadGateway, "authentication with the data source failed — please try again later")
	default:
		h.logger.Error("analysis failed", "question", question, "error", err)
		writeError(w, http.StatusInternalServerError, "an error occurred during analysis — please try again later")
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := h.store.Current()
	status := map[string]any{"status": "ok"}
	if snap == nil {
		status["status"] = "no data"
	} else {
		status["snapshot_version"] = snap.Version
		status["snapshot_rows"] = snap.Table.Len()
		status["snapshot_age_seconds"] = int(time.Since(snap.FetchedAt).Seconds())
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
