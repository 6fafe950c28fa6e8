package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"testprep/internal/app/apiresp"
	"testprep/internal/auth"
	"testprep/internal/question"

	"github.com/go-chi/chi/v5"
)

type mockSessionService struct {
	validateConfigFn func(ctx context.Context, cfg question.TestConfig) (*ConfigCheck, error)
	startFn          func(ctx context.Context, userID string, cfg question.TestConfig) (*StartResult, error)
	getActiveFn      func(ctx context.Context, userID string) (*SessionView, error)
	saveAnswerFn     func(ctx context.Context, sessionID string, index, answer int) error
	toggleMarkFn     func(ctx context.Context, sessionID string, index int) error
	extendTimeFn     func(ctx context.Context, sessionID string, minutes int) (*ExtendResult, error)
	abandonFn        func(ctx context.Context, userID string) error
	submitFn         func(ctx context.Context, sessionID string) (*SubmitResult, error)
	getOwnerFn       func(ctx context.Context, sessionID string) (string, error)
}

func (m *mockSessionService) ValidateConfig(ctx context.Context, cfg question.TestConfig) (*ConfigCheck, error) {
	if m.validateConfigFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.validateConfigFn(ctx, cfg)
}

func (m *mockSessionService) Start(ctx context.Context, userID string, cfg question.TestConfig) (*StartResult, error) {
	if m.startFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.startFn(ctx, userID, cfg)
}

func (m *mockSessionService) GetActive(ctx context.Context, userID string) (*SessionView, error) {
	if m.getActiveFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getActiveFn(ctx, userID)
}

func (m *mockSessionService) SaveAnswer(ctx context.Context, sessionID string, index, answer int) error {
	if m.saveAnswerFn == nil {
		return errors.New("not implemented")
	}
	return m.saveAnswerFn(ctx, sessionID, index, answer)
}

func (m *mockSessionService) ToggleMark(ctx context.Context, sessionID string, index int) error {
	if m.toggleMarkFn == nil {
		return errors.New("not implemented")
	}
	return m.toggleMarkFn(ctx, sessionID, index)
}

func (m *mockSessionService) ExtendTime(ctx context.Context, sessionID string, minutes int) (*ExtendResult, error) {
	if m.extendTimeFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.extendTimeFn(ctx, sessionID, minutes)
}

func (m *mockSessionService) Abandon(ctx context.Context, userID string) error {
	if m.abandonFn == nil {
		return errors.New("not implemented")
	}
	return m.abandonFn(ctx, userID)
}

func (m *mockSessionService) Submit(ctx context.Context, sessionID string) (*SubmitResult, error) {
	if m.submitFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.submitFn(ctx, sessionID)
}

func (m *mockSessionService) GetOwner(ctx context.Context, sessionID string) (string, error) {
	if m.getOwnerFn == nil {
		return "", errors.New("not implemented")
	}
	return m.getOwnerFn(ctx, sessionID)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func asUser(r *http.Request, id, role string) *http.Request {
	return r.WithContext(auth.ContextWithUser(r.Context(), &auth.User{ID: id, Role: role}))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestStartRequiresAuth(t *testing.T) {
	h := NewHandler(&mockSessionService{})

	payload := []byte(`{"topics":["History"],"difficulty":"easy","question_count":10}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tests/start", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	h.Start(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestStartUsesSessionUserID(t *testing.T) {
	var gotUserID string
	h := NewHandler(&mockSessionService{
		startFn: func(ctx context.Context, userID string, cfg question.TestConfig) (*StartResult, error) {
			gotUserID = userID
			return &StartResult{SessionID: "sess-1", QuestionCount: cfg.QuestionCount, DurationMinutes: 12}, nil
		},
	})

	payload := []byte(`{"topics":["History"],"difficulty":"easy","question_count":10}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tests/start", bytes.NewReader(payload))
	req = asUser(req, "user-7", "student")
	w := httptest.NewRecorder()

	h.Start(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if gotUserID != "user-7" {
		t.Fatalf("expected user id from context, got %q", gotUserID)
	}
}

func TestStartConflictWhenSessionExists(t *testing.T) {
	h := NewHandler(&mockSessionService{
		startFn: func(ctx context.Context, userID string, cfg question.TestConfig) (*StartResult, error) {
			return nil, ErrSessionAlreadyActive
		},
	})

	payload := []byte(`{"topics":["History"],"difficulty":"easy","question_count":10}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tests/start", bytes.NewReader(payload))
	req = asUser(req, "user-7", "student")
	w := httptest.NewRecorder()

	h.Start(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	body := decodeBody(t, w)
	errObj, _ := body["error"].(map[string]interface{})
	if errObj == nil || errObj["code"] != apiresp.CodeSessionConflict {
		t.Fatalf("expected %s error code, got %v", apiresp.CodeSessionConflict, body["error"])
	}
}

func TestStartInsufficientQuestions(t *testing.T) {
	h := NewHandler(&mockSessionService{
		startFn: func(ctx context.Context, userID string, cfg question.TestConfig) (*StartResult, error) {
			return nil, question.ErrInsufficientQuestions
		},
	})

	payload := []byte(`{"topics":["History"],"difficulty":"easy","question_count":100}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tests/start", bytes.NewReader(payload))
	req = asUser(req, "user-7", "student")
	w := httptest.NewRecorder()

	h.Start(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	body := decodeBody(t, w)
	errObj, _ := body["error"].(map[string]interface{})
	if errObj == nil || errObj["code"] != apiresp.CodeInsufficientQuestions {
		t.Fatalf("expected %s error code, got %v", apiresp.CodeInsufficientQuestions, body["error"])
	}
}

func TestGetActiveNoSession(t *testing.T) {
	h := NewHandler(&mockSessionService{
		getActiveFn: func(ctx context.Context, userID string) (*SessionView, error) {
			return nil, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tests/session", nil)
	req = asUser(req, "user-7", "student")
	w := httptest.NewRecorder()

	h.GetActive(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	data, _ := body["data"].(map[string]interface{})
	if data == nil || data["active"] != false {
		t.Fatalf("expected active=false, got %v", body["data"])
	}
}

func TestSaveAnswerForbiddenForNonOwner(t *testing.T) {
	saveCalled := false
	h := NewHandler(&mockSessionService{
		getOwnerFn: func(ctx context.Context, sessionID string) (string, error) { return "other-user", nil },
		saveAnswerFn: func(ctx context.Context, sessionID string, index, answer int) error {
			saveCalled = true
			return nil
		},
	})

	payload := []byte(`{"question_index":0,"answer":2}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/tests/session/sess-1/answer", bytes.NewReader(payload))
	req = withChiParam(req, "id", "sess-1")
	req = asUser(req, "user-7", "student")
	w := httptest.NewRecorder()

	h.SaveAnswer(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if saveCalled {
		t.Fatal("save should not be called for non-owner")
	}
}

func TestSaveAnswerAllowedForAdmin(t *testing.T) {
	ownerCalled := false
	h := NewHandler(&mockSessionService{
		getOwnerFn: func(ctx context.Context, sessionID string) (string, error) {
			ownerCalled = true
			return "other-user", nil
		},
		saveAnswerFn: func(ctx context.Context, sessionID string, index, answer int) error {
			return nil
		},
	})

	payload := []byte(`{"question_index":0,"answer":2}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/tests/session/sess-1/answer", bytes.NewReader(payload))
	req = withChiParam(req, "id", "sess-1")
	req = asUser(req, "admin-1", "admin")
	w := httptest.NewRecorder()

	h.SaveAnswer(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ownerCalled {
		t.Fatal("owner lookup should be skipped for admin")
	}
}

func TestSaveAnswerInvalidIndex(t *testing.T) {
	h := NewHandler(&mockSessionService{
		getOwnerFn: func(ctx context.Context, sessionID string) (string, error) { return "user-7", nil },
		saveAnswerFn: func(ctx context.Context, sessionID string, index, answer int) error {
			return ErrInvalidQuestionIndex
		},
	})

	payload := []byte(`{"question_index":99,"answer":2}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/tests/session/sess-1/answer", bytes.NewReader(payload))
	req = withChiParam(req, "id", "sess-1")
	req = asUser(req, "user-7", "student")
	w := httptest.NewRecorder()

	h.SaveAnswer(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestExtendTimeLimitReached(t *testing.T) {
	h := NewHandler(&mockSessionService{
		getOwnerFn: func(ctx context.Context, sessionID string) (string, error) { return "user-7", nil },
		extendTimeFn: func(ctx context.Context, sessionID string, minutes int) (*ExtendResult, error) {
			return nil, ErrExtensionLimitReached
		},
	})

	payload := []byte(`{"minutes":5}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tests/session/sess-1/extend", bytes.NewReader(payload))
	req = withChiParam(req, "id", "sess-1")
	req = asUser(req, "user-7", "student")
	w := httptest.NewRecorder()

	h.ExtendTime(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestAbandonNotFound(t *testing.T) {
	h := NewHandler(&mockSessionService{
		abandonFn: func(ctx context.Context, userID string) error { return ErrSessionNotFound },
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/tests/session", nil)
	req = asUser(req, "user-7", "student")
	w := httptest.NewRecorder()

	h.Abandon(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSubmitReturnsResult(t *testing.T) {
	h := NewHandler(&mockSessionService{
		getOwnerFn: func(ctx context.Context, sessionID string) (string, error) { return "user-7", nil },
		submitFn: func(ctx context.Context, sessionID string) (*SubmitResult, error) {
			return &SubmitResult{TestID: "test-1", Score: 8, TotalQuestions: 10, Percentage: 80}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tests/session/sess-1/submit", nil)
	req = withChiParam(req, "id", "sess-1")
	req = asUser(req, "user-7", "student")
	w := httptest.NewRecorder()

	h.Submit(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	data, _ := body["data"].(map[string]interface{})
	if data == nil || data["test_id"] != "test-1" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestValidateConfigBadBody(t *testing.T) {
	h := NewHandler(&mockSessionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tests/configure", bytes.NewReader([]byte(`{`)))
	w := httptest.NewRecorder()

	h.ValidateConfig(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
