package queue

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clinicdesk/navbat/pkg/logging"
)

// Handler handles HTTP requests for the queue service interface.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates a new queue handler
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// ListResponse wraps list results.
type ListResponse struct {
	Entries []*QueueEntry `json:"entries"`
	Count   int           `json:"count"`
}

// ClearOldResponse reports how many entries a purge removed.
type ClearOldResponse struct {
	Removed int `json:"removed"`
}

// Join handles POST /queue/join.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	entry, err := h.svc.Join(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entry)
}

// Current handles GET /queue/current.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Current(r.Context(), r.URL.Query().Get("doctor_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ListResponse{Entries: entries, Count: len(entries)})
}

// Stats handles GET /queue/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context(), r.URL.Query().Get("doctor_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// MyPosition handles GET /queue/my-position.
func (h *Handler) MyPosition(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.MyPosition(r.Context(), r.URL.Query().Get("patient_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// Call handles PUT /queue/{id}/call.
func (h *Handler) Call(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.Call(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// Start handles PUT /queue/{id}/start.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.StartService(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// Complete handles PUT /queue/{id}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// Cancel handles PUT /queue/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, &ValidationError{Field: "body", Reason: "invalid JSON"})
			return
		}
	}

	entry, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// ChangePriority handles PUT /queue/{id}/priority.
func (h *Handler) ChangePriority(w http.ResponseWriter, r *http.Request) {
	var req ChangePriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	entry, err := h.svc.ChangePriority(r.Context(), chi.URLParam(r, "id"), req.Priority)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// ClearOld handles DELETE /queue/clear-old.
func (h *Handler) ClearOld(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil {
		h.writeError(w, &ValidationError{Field: "days", Reason: "must be an integer"})
		return
	}

	removed, err := h.svc.ClearOld(r.Context(), days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ClearOldResponse{Removed: removed})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses: validation 400,
// unknown id / no active entry 404, illegal transition 409.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var ve *ValidationError
	var ite *InvalidTransitionError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.As(err, &ite):
		status = http.StatusConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoActiveEntry):
		status = http.StatusNotFound
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("queue request failed", "error", err)
		msg = "internal server error"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
