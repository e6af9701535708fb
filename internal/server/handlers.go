package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-github/v57/github"

	"gha-exporter/internal/config"
	"gha-exporter/internal/exporter"
	"gha-exporter/internal/metrics"
)

const defaultExportsLimit = 20

// Handler holds the server dependencies
type Handler struct {
	secret  []byte
	queue   *Queue
	ledger  Ledger
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHandler creates a new handler. ledger may be nil.
func NewHandler(cfg *config.Config, queue *Queue, ledger Ledger, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		secret:  []byte(cfg.Server.WebhookSecret),
		queue:   queue,
		ledger:  ledger,
		metrics: m,
		logger:  logger,
	}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook", h.HandleWebhook)
	r.Get("/exports", h.HandleExports)
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
}

// HandleWebhook receives GitHub workflow_run events and queues completed runs for export.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	// Verifies X-Hub-Signature-256 when a secret is configured.
	payload, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		h.logger.Warn("Rejected webhook payload", "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "rejected", "message": "invalid payload signature"})
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		h.logger.Warn("Failed to parse webhook payload", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "rejected", "message": "invalid webhook payload"})
		return
	}

	e, ok := event.(*github.WorkflowRunEvent)
	if !ok || e.GetAction() != "completed" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	run := e.GetWorkflowRun()
	job := Job{
		Request: exporter.Request{
			Owner:   e.GetRepo().GetOwner().GetLogin(),
			Repo:    e.GetRepo().GetName(),
			RunID:   run.GetID(),
			RunName: run.GetName(),
		},
		Attempt: run.GetRunAttempt(),
	}
	if job.Request.Owner == "" || job.Request.Repo == "" || job.Request.RunID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "rejected", "message": "workflow run is missing repository or id"})
		return
	}

	if !h.queue.Enqueue(job) {
		h.logger.Warn("Export queue full, dropping run", "repository", job.Request.Repository(), "run_id", job.Request.RunID)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "busy"})
		return
	}

	h.logger.Info("Queued workflow run", "repository", job.Request.Repository(), "run_id", job.Request.RunID, "attempt", job.Attempt)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"run_id": strconv.FormatInt(job.Request.RunID, 10),
	})
}

// HandleExports lists recent ledger entries.
func (h *Handler) HandleExports(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "ledger disabled"})
		return
	}

	limit := defaultExportsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	exports, err := h.ledger.ListExports(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list exports", "error", err)
		http.Error(w, "failed to list exports", http.StatusInternalServerError)
		return
	}

	type entry struct {
		ID         string    `json:"id"`
		Repository string    `json:"repository"`
		RunID      int64     `json:"run_id"`
		RunAttempt int       `json:"run_attempt"`
		Result     string    `json:"result"`
		Spans      int       `json:"spans"`
		Error      string    `json:"error,omitempty"`
		CreatedAt  time.Time `json:"created_at"`
	}
	out := make([]entry, 0, len(exports))
	for _, e := range exports {
		out = append(out, entry(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleHealth returns health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReady reports whether the export ledger is reachable.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.ledger != nil {
		if err := h.ledger.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "message": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
