package quiz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aulalms/internal/auth"

	"github.com/go-chi/chi/v5"
)

type mockQuizService struct {
	getQuizForStudentFn func(ctx context.Context, quizID, userID int64) (*QuizView, error)
	submitFn            func(ctx context.Context, in SubmitInput) (*SubmitReceipt, error)
	forfeitFn           func(ctx context.Context, quizID, userID int64) error
	getResultFn         func(ctx context.Context, resultID int64, viewer Viewer) (*ResultView, error)
	listResultsFn       func(ctx context.Context, quizID int64) ([]ResultListItem, error)
}

func (m *mockQuizService) GetQuizForStudent(ctx context.Context, quizID, userID int64) (*QuizView, error) {
	if m.getQuizForStudentFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getQuizForStudentFn(ctx, quizID, userID)
}

func (m *mockQuizService) Submit(ctx context.Context, in SubmitInput) (*SubmitReceipt, error) {
	if m.submitFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.submitFn(ctx, in)
}

func (m *mockQuizService) Forfeit(ctx context.Context, quizID, userID int64) error {
	if m.forfeitFn == nil {
		return errors.New("not implemented")
	}
	return m.forfeitFn(ctx, quizID, userID)
}

func (m *mockQuizService) GetResult(ctx context.Context, resultID int64, viewer Viewer) (*ResultView, error) {
	if m.getResultFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getResultFn(ctx, resultID, viewer)
}

func (m *mockQuizService) ListResults(ctx context.Context, quizID int64) ([]ResultListItem, error) {
	if m.listResultsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listResultsFn(ctx, quizID)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func asStudent(r *http.Request, id int64) *http.Request {
	return r.WithContext(auth.ContextWithUser(r.Context(), &auth.User{ID: id, Role: auth.RoleStudent}))
}

func TestSubmitCreatedOnSuccess(t *testing.T) {
	var gotInput SubmitInput
	h := NewHandler(&mockQuizService{
		submitFn: func(ctx context.Context, in SubmitInput) (*SubmitReceipt, error) {
			gotInput = in
			return &SubmitReceipt{ResultID: 42, Score: 8, MaxScore: 10, Passed: true, ResultsPublished: true}, nil
		},
	})

	body := bytes.NewBufferString(`{"answers":{"1":12,"2":[21,23]},"time_taken_ms":95000}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/5/submit", body)
	req = withChiParam(req, "id", "5")
	req = asStudent(req, 9)
	w := httptest.NewRecorder()

	h.Submit(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if gotInput.QuizID != 5 || gotInput.UserID != 9 {
		t.Fatalf("unexpected submit input: %+v", gotInput)
	}
	if gotInput.TimeTakenMs != 95000 {
		t.Fatalf("expected time_taken_ms to pass through, got %d", gotInput.TimeTakenMs)
	}
	if len(gotInput.Answers) != 2 {
		t.Fatalf("expected 2 raw answers, got %d", len(gotInput.Answers))
	}
}

func TestSubmitErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "quiz missing", err: ErrQuizNotFound, status: http.StatusNotFound},
		{name: "unknown question key", err: ErrQuestionNotFound, status: http.StatusNotFound},
		{name: "not enrolled", err: ErrNotEnrolled, status: http.StatusForbidden},
		{name: "not started", err: &NotStartedError{StartAt: time.Now().Add(time.Hour)}, status: http.StatusForbidden},
		{name: "window closed", err: ErrQuizEnded, status: http.StatusForbidden},
		{name: "already completed", err: ErrAlreadyCompleted, status: http.StatusConflict},
		{name: "forfeited earlier", err: ErrQuizExpired, status: http.StatusGone},
		{name: "bad answer payload", err: ErrInvalidAnswer, status: http.StatusBadRequest},
		{name: "unexpected failure", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockQuizService{
				submitFn: func(ctx context.Context, in SubmitInput) (*SubmitReceipt, error) {
					return nil, tc.err
				},
			})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/5/submit", bytes.NewBufferString(`{"answers":{}}`))
			req = withChiParam(req, "id", "5")
			req = asStudent(req, 9)
			w := httptest.NewRecorder()

			h.Submit(w, req)

			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestSubmitRequiresAuthenticatedUser(t *testing.T) {
	h := NewHandler(&mockQuizService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/5/submit", bytes.NewBufferString(`{}`))
	req = withChiParam(req, "id", "5")
	w := httptest.NewRecorder()

	h.Submit(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSubmitRejectsBadQuizID(t *testing.T) {
	h := NewHandler(&mockQuizService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/abc/submit", bytes.NewBufferString(`{}`))
	req = withChiParam(req, "id", "abc")
	req = asStudent(req, 9)
	w := httptest.NewRecorder()

	h.Submit(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestExpireRecordsForfeit(t *testing.T) {
	called := false
	h := NewHandler(&mockQuizService{
		forfeitFn: func(ctx context.Context, quizID, userID int64) error {
			called = true
			if quizID != 5 || userID != 9 {
				t.Fatalf("unexpected forfeit args: quiz=%d user=%d", quizID, userID)
			}
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/5/expire", nil)
	req = withChiParam(req, "id", "5")
	req = asStudent(req, 9)
	w := httptest.NewRecorder()

	h.Expire(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if !called {
		t.Fatalf("forfeit should be called")
	}
}

func TestExpireConflictWhenAlreadyCompleted(t *testing.T) {
	h := NewHandler(&mockQuizService{
		forfeitFn: func(ctx context.Context, quizID, userID int64) error {
			return ErrAlreadyCompleted
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes/5/expire", nil)
	req = withChiParam(req, "id", "5")
	req = asStudent(req, 9)
	w := httptest.NewRecorder()

	h.Expire(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestGetResultForbiddenForOtherStudent(t *testing.T) {
	h := NewHandler(&mockQuizService{
		getResultFn: func(ctx context.Context, resultID int64, viewer Viewer) (*ResultView, error) {
			if viewer.UserID != 9 || viewer.IsGrader() {
				t.Fatalf("unexpected viewer: %+v", viewer)
			}
			return nil, ErrResultForbidden
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/results/42", nil)
	req = withChiParam(req, "id", "42")
	req = asStudent(req, 9)
	w := httptest.NewRecorder()

	h.GetResult(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestGetResultPassesGraderRole(t *testing.T) {
	h := NewHandler(&mockQuizService{
		getResultFn: func(ctx context.Context, resultID int64, viewer Viewer) (*ResultView, error) {
			if !viewer.IsGrader() {
				t.Fatalf("professor viewer should be a grader")
			}
			return &ResultView{Result: ResultSummary{ID: resultID}}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/results/42", nil)
	req = withChiParam(req, "id", "42")
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 2, Role: auth.RoleProfessor}))
	w := httptest.NewRecorder()

	h.GetResult(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListResultsOK(t *testing.T) {
	h := NewHandler(&mockQuizService{
		listResultsFn: func(ctx context.Context, quizID int64) ([]ResultListItem, error) {
			return []ResultListItem{{ResultID: 1}, {ResultID: 2}}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quizzes/5/results", nil)
	req = withChiParam(req, "id", "5")
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 2, Role: auth.RoleProfessor}))
	w := httptest.NewRecorder()

	h.ListResults(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ok, _ := out["ok"].(bool); !ok {
		t.Fatalf("expected ok envelope, got %s", w.Body.String())
	}
}
