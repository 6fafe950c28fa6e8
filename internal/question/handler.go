package question

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"testprep/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc questionService
}

type questionService interface {
	Create(ctx context.Context, in Input) (*Question, error)
	Update(ctx context.Context, id string, in Input) (*Question, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Question, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]Question, int, error)
	Topics(ctx context.Context) ([]string, map[string][]string, error)
	BulkImport(ctx context.Context, inputs []Input) (*ImportReport, error)
	ExportExcel(ctx context.Context, f Filter) ([]byte, error)
	ImportExcel(ctx context.Context, r io.Reader) (*ImportReport, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func NewHandler(svc questionService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Topics(w http.ResponseWriter, r *http.Request) {
	topics, byTopic, err := h.svc.Topics(r.Context())
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]any{
		"topics":             topics,
		"subtopics_by_topic": byTopic,
	}})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	f := filterFromQuery(r)
	limit := intQuery(r, "limit", 50)
	offset := intQuery(r, "offset", 0)

	items, total, err := h.svc.List(r.Context(), f, limit, offset)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]any{
		"items": items,
		"total": total,
	}})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid question id"})
		case errors.Is(err, ErrQuestionNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: item})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req Input
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	item, err := h.svc.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: item})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req Input
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	item, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrQuestionNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: item})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid question id"})
		case errors.Is(err, ErrQuestionNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) BulkImport(w http.ResponseWriter, r *http.Request) {
	var req []Input
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "request body must be a JSON array of questions"})
		return
	}
	report, err := h.svc.BulkImport(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: report})
}

func (h *Handler) ExportExcel(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.ExportExcel(r.Context(), filterFromQuery(r))
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="questions.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) ImportExcel(w http.ResponseWriter, r *http.Request) {
	var body io.Reader = r.Body
	if file, _, err := r.FormFile("file"); err == nil {
		defer func() { _ = file.Close() }()
		body = file
	}
	report, err := h.svc.ImportExcel(r.Context(), body)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: report})
}

func filterFromQuery(r *http.Request) Filter {
	q := r.URL.Query()
	f := Filter{
		Topics:    splitQuery(q.Get("topics")),
		Subtopics: splitQuery(q.Get("subtopics")),
	}
	if d := strings.TrimSpace(strings.ToLower(q.Get("difficulty"))); d != "" && d != DifficultyMixed {
		f.Difficulty = d
	}
	return f
}

func splitQuery(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return normalizeStrings(strings.Split(v, ","))
}

func intQuery(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
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
