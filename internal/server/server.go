// Package server exposes the daemon over HTTP: component health and the
// notify hook that archives one conversation immediately.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/harunnryd/archivist/internal/archiver"
	"github.com/harunnryd/archivist/internal/logger"
)

const maxNotifyBody = 64 << 10

// ComponentState is one entry of the health report.
type ComponentState struct {
	Healthy bool                   `json:"healthy"`
	Error   string                 `json:"error,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthFunc reports the current state of every daemon component.
type HealthFunc func(ctx context.Context) map[string]ComponentState

// Notifier archives a single conversation on request.
type Notifier interface {
	ArchiveOne(ctx context.Context, req archiver.NotifyRequest) archiver.Result
}

type Handler struct {
	health   HealthFunc
	notifier Notifier
	version  string
	mux      *http.ServeMux
}

func NewHandler(health HealthFunc, notifier Notifier, version string) *Handler {
	h := &Handler{health: health, notifier: notifier, version: version, mux: http.NewServeMux()}
	h.mux.HandleFunc("/health", h.handleHealth)
	h.mux.HandleFunc("/notify", h.handleNotify)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	components := map[string]ComponentState{}
	if h.health != nil {
		components = h.health(r.Context())
	}

	status := "ok"
	for _, c := range components {
		if !c.Healthy {
			status = "degraded"
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}

func (h *Handler) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if h.notifier == nil {
		writeJSON(w, http.StatusServiceUnavailable, archiver.Result{Status: archiver.StatusError, Detail: "archiver not running"})
		return
	}

	var req archiver.NotifyRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxNotifyBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, archiver.Result{Status: archiver.StatusError, Detail: "invalid json body"})
		return
	}
	if strings.TrimSpace(req.ChatID) == "" {
		writeJSON(w, http.StatusBadRequest, archiver.Result{Status: archiver.StatusError, Detail: "chat_id is required"})
		return
	}

	ctx := logger.WithCycleID(r.Context(), logger.NewCycleID())
	res := h.notifier.ArchiveOne(ctx, req)
	slog.Info("Notify handled", "chat_id", req.ChatID, "status", string(res.Status), "detail", res.Detail)

	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Response not written", "error", err)
	}
}
