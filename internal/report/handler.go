package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"testprep/internal/app/apiresp"
	"testprep/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc reportService
}

type reportService interface {
	GetTest(ctx context.Context, id string) (*Test, error)
	GetOwner(ctx context.Context, id string) (string, error)
	History(ctx context.Context, userID string, limit, offset int) ([]Summary, int, error)
	Summarize(ctx context.Context, userID string) (*UserSummary, error)
	ExportHistoryExcel(ctx context.Context, userID string) ([]byte, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func NewHandler(svc reportService) *Handler {
	return &Handler{svc: svc}
}

// GetTest serves one completed test with its question snapshots. Only the
// owner or an admin may read it.
func (h *Handler) GetTest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	testID := chi.URLParam(r, "id")
	if testID == "" {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid test id"})
		return
	}

	record, err := h.svc.GetTest(r.Context(), testID)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrTestNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	if record.UserID != user.ID && user.Role != "admin" {
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: record})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	limit := intQuery(r, "limit", 20)
	offset := intQuery(r, "skip", 0)
	items, total, err := h.svc.History(r.Context(), user.ID, limit, offset)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]any{
		"items": items,
		"total": total,
	}})
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	summary, err := h.svc.Summarize(r.Context(), user.ID)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: summary})
}

func (h *Handler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	data, err := h.svc.ExportHistoryExcel(r.Context(), user.ID)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="test-history.xlsx"`)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func intQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
