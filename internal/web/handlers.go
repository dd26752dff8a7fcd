package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/report"
	"github.com/user/pingwatch/internal/storage"
)

// maxLimit caps the limit query parameter.
const maxLimit = 1000

var errBadLimit = errors.New("limit must be a non-negative integer")

// Handlers contains HTTP handlers.
type Handlers struct {
	store  Store
	logger *zap.Logger
}

// NewHandlers creates new handlers.
func NewHandlers(store Store, logger *zap.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListIncidents returns recent incidents, or a host's incidents when the
// host query parameter is set.
func (h *Handlers) ListIncidents(w http.ResponseWriter, r *http.Request) {
	host := strings.TrimSpace(r.URL.Query().Get("host"))

	def := storage.DefaultRecentLimit
	if host != "" {
		def = storage.DefaultHostLimit
	}
	limit, err := parseLimit(r, def)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if host != "" {
		writeJSON(w, http.StatusOK, h.store.GetIncidentsByHost(r.Context(), host, limit))
		return
	}
	writeJSON(w, http.StatusOK, h.store.GetRecentIncidents(r.Context(), limit))
}

// IncidentsByHost returns incidents for the host in the path.
func (h *Handlers) IncidentsByHost(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, storage.DefaultHostLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	host := chi.URLParam(r, "host")
	writeJSON(w, http.StatusOK, h.store.GetIncidentsByHost(r.Context(), host, limit))
}

// UnresolvedIncidents returns every open incident.
func (h *Handlers) UnresolvedIncidents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.GetUnresolvedIncidents(r.Context()))
}

// LatestIncident returns the most recent incident.
func (h *Handlers) LatestIncident(w http.ResponseWriter, r *http.Request) {
	inc := h.store.GetLatestIncident(r.Context())
	if inc == nil {
		writeError(w, r, http.StatusNotFound, errors.New("no incidents recorded"))
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// GetIncident returns a single incident by id.
func (h *Handlers) GetIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}
	inc := h.store.GetIncident(r.Context(), id)
	if inc == nil {
		writeError(w, r, http.StatusNotFound, storage.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// ResolveIncident marks an incident resolved. Resolving an already
// resolved incident succeeds with changed=false.
func (h *Handlers) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}

	changed, err := h.store.MarkIncidentResolved(r.Context(), id)
	if err != nil {
		h.logger.Error("resolve_incident_failed", zap.Int64("id", id), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if !changed && h.store.GetIncident(r.Context(), id) == nil {
		writeError(w, r, http.StatusNotFound, storage.ErrNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "resolved": true, "changed": changed})
}

// ClearIncidents deletes every incident.
func (h *Handlers) ClearIncidents(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.ClearAllIncidents(r.Context())
	if err != nil {
		h.logger.Error("clear_incidents_failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	h.logger.Info("incidents_cleared", zap.Int64("deleted", n))
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// Statistics returns aggregate incident counts.
func (h *Handlers) Statistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.GetStatistics(r.Context()))
}

// DownloadReport renders a Markdown incident report for the last window
// (default 24h).
func (h *Handlers) DownloadReport(w http.ResponseWriter, r *http.Request) {
	last := r.URL.Query().Get("last")
	if last == "" {
		last = "24h"
	}
	window, err := report.ParseWindow(last)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	now := time.Now()
	data, err := report.NewGenerator(h.store).Generate(r.Context(), model.ReportOptions{
		Since:  now.Add(-window),
		Until:  now,
		Format: report.MarkdownFormat,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=pingwatch_report.md")
	w.Write([]byte(report.FormatMarkdown(data)))
}

func incidentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, errors.New("invalid incident id"))
		return 0, false
	}
	return id, true
}

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errBadLimit
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error":      err.Error(),
		"request_id": middleware.GetReqID(r.Context()),
	})
}
