package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"testprep/internal/app/apiresp"
	"testprep/internal/auth"
	"testprep/internal/question"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc sessionService
}

type sessionService interface {
	ValidateConfig(ctx context.Context, cfg question.TestConfig) (*ConfigCheck, error)
	Start(ctx context.Context, userID string, cfg question.TestConfig) (*StartResult, error)
	GetActive(ctx context.Context, userID string) (*SessionView, error)
	SaveAnswer(ctx context.Context, sessionID string, index, answer int) error
	ToggleMark(ctx context.Context, sessionID string, index int) error
	ExtendTime(ctx context.Context, sessionID string, minutes int) (*ExtendResult, error)
	Abandon(ctx context.Context, userID string) error
	Submit(ctx context.Context, sessionID string) (*SubmitResult, error)
	GetOwner(ctx context.Context, sessionID string) (string, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
	Code  string      `json:"-"`
}

type saveAnswerRequest struct {
	QuestionIndex int `json:"question_index"`
	Answer        int `json:"answer"`
}

type toggleMarkRequest struct {
	QuestionIndex int `json:"question_index"`
}

type extendTimeRequest struct {
	Minutes int `json:"minutes"`
}

func NewHandler(svc sessionService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ValidateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg question.TestConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	check, err := h.svc.ValidateConfig(r.Context(), cfg)
	if err != nil {
		switch {
		case errors.Is(err, question.ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		case errors.Is(err, question.ErrInsufficientQuestions):
			writeJSON(w, r, http.StatusUnprocessableEntity, response{OK: false, Error: err.Error(), Code: apiresp.CodeInsufficientQuestions})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: check})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	var cfg question.TestConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	result, err := h.svc.Start(r.Context(), user.ID, cfg)
	if err != nil {
		switch {
		case errors.Is(err, question.ErrInvalidInput), errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		case errors.Is(err, question.ErrInsufficientQuestions):
			writeJSON(w, r, http.StatusUnprocessableEntity, response{OK: false, Error: err.Error(), Code: apiresp.CodeInsufficientQuestions})
		case errors.Is(err, ErrSessionAlreadyActive):
			writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error(), Code: apiresp.CodeSessionConflict})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: result})
}

func (h *Handler) GetActive(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	view, err := h.svc.GetActive(r.Context(), user.ID)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	if view == nil {
		writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]any{"active": false}})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]any{"active": true, "session": view}})
}

func (h *Handler) SaveAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.authorizeSession(w, r)
	if !ok {
		return
	}

	var req saveAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	if err := h.svc.SaveAnswer(r.Context(), sessionID, req.QuestionIndex, req.Answer); err != nil {
		h.writeMutationError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "saved"}})
}

func (h *Handler) ToggleMark(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.authorizeSession(w, r)
	if !ok {
		return
	}

	var req toggleMarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	if err := h.svc.ToggleMark(r.Context(), sessionID, req.QuestionIndex); err != nil {
		h.writeMutationError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "toggled"}})
}

func (h *Handler) ExtendTime(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.authorizeSession(w, r)
	if !ok {
		return
	}

	var req extendTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	result, err := h.svc.ExtendTime(r.Context(), sessionID, req.Minutes)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrSessionNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrExtensionLimitReached):
			writeJSON(w, r, http.StatusUnprocessableEntity, response{OK: false, Error: err.Error(), Code: apiresp.CodeExtensionLimit})
		case errors.Is(err, ErrSessionExpired):
			writeJSON(w, r, http.StatusUnprocessableEntity, response{OK: false, Error: err.Error(), Code: apiresp.CodeSessionExpired})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: result})
}

func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	if err := h.svc.Abandon(r.Context(), user.ID); err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "abandoned"}})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.authorizeSession(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Submit(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound), errors.Is(err, question.ErrQuestionNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: result})
}

// authorizeSession verifies the caller owns the addressed session. Admins may
// act on any session.
func (h *Handler) authorizeSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return "", false
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid session id"})
		return "", false
	}
	if user.Role == "admin" {
		return sessionID, true
	}

	ownerID, err := h.svc.GetOwner(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return "", false
	}
	if ownerID != user.ID {
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
		return "", false
	}
	return sessionID, true
}

func (h *Handler) writeMutationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrInvalidQuestionIndex):
		writeJSON(w, r, http.StatusUnprocessableEntity, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrSessionExpired):
		writeJSON(w, r, http.StatusUnprocessableEntity, response{OK: false, Error: err.Error(), Code: apiresp.CodeSessionExpired})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	if payload.Code != "" {
		apiresp.WriteErrorCode(w, r, code, payload.Code, payload.Error)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
