package grading

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"aulalms/internal/auth"

	"github.com/go-chi/chi/v5"
)

type mockGradingService struct {
	gradeQuestionFn func(ctx context.Context, in GradeInput) (*GradeOutcome, error)
}

func (m *mockGradingService) GradeQuestion(ctx context.Context, in GradeInput) (*GradeOutcome, error) {
	if m.gradeQuestionFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.gradeQuestionFn(ctx, in)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func asProfessor(r *http.Request, id int64) *http.Request {
	return r.WithContext(auth.ContextWithUser(r.Context(), &auth.User{ID: id, Role: auth.RoleProfessor}))
}

func TestGradeOK(t *testing.T) {
	var gotInput GradeInput
	h := NewHandler(&mockGradingService{
		gradeQuestionFn: func(ctx context.Context, in GradeInput) (*GradeOutcome, error) {
			gotInput = in
			return &GradeOutcome{TotalScore: 8.5, MaxScore: 10, Percentage: 85, Passed: true}, nil
		},
	})

	body := bytes.NewBufferString(`{"question_id":3,"awarded_points":1.5,"feedback":"bien argumentado"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/results/42/grade", body)
	req = withChiParam(req, "id", "42")
	req = asProfessor(req, 7)
	w := httptest.NewRecorder()

	h.Grade(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if gotInput.ResultID != 42 || gotInput.QuestionID != 3 || gotInput.GraderID != 7 {
		t.Fatalf("unexpected grade input: %+v", gotInput)
	}
	if gotInput.AwardedPoints != 1.5 || gotInput.Feedback != "bien argumentado" {
		t.Fatalf("unexpected grade payload: %+v", gotInput)
	}
}

func TestGradeRequiresAwardedPoints(t *testing.T) {
	called := false
	h := NewHandler(&mockGradingService{
		gradeQuestionFn: func(ctx context.Context, in GradeInput) (*GradeOutcome, error) {
			called = true
			return nil, nil
		},
	})

	body := bytes.NewBufferString(`{"question_id":3}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/results/42/grade", body)
	req = withChiParam(req, "id", "42")
	req = asProfessor(req, 7)
	w := httptest.NewRecorder()

	h.Grade(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if called {
		t.Fatalf("service should not be called without awarded_points")
	}
}

func TestGradeZeroPointsIsValid(t *testing.T) {
	h := NewHandler(&mockGradingService{
		gradeQuestionFn: func(ctx context.Context, in GradeInput) (*GradeOutcome, error) {
			if in.AwardedPoints != 0 {
				t.Fatalf("expected explicit zero points, got %.1f", in.AwardedPoints)
			}
			return &GradeOutcome{}, nil
		},
	})

	body := bytes.NewBufferString(`{"question_id":3,"awarded_points":0}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/results/42/grade", body)
	req = withChiParam(req, "id", "42")
	req = asProfessor(req, 7)
	w := httptest.NewRecorder()

	h.Grade(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGradeErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "result missing", err: ErrResultNotFound, status: http.StatusNotFound},
		{name: "question missing", err: ErrQuestionNotFound, status: http.StatusNotFound},
		{name: "question is auto graded", err: ErrQuestionNotManual, status: http.StatusBadRequest},
		{name: "forfeit not gradable", err: ErrResultNotGradable, status: http.StatusBadRequest},
		{name: "unexpected failure", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockGradingService{
				gradeQuestionFn: func(ctx context.Context, in GradeInput) (*GradeOutcome, error) {
					return nil, tc.err
				},
			})

			body := bytes.NewBufferString(`{"question_id":3,"awarded_points":1}`)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/results/42/grade", body)
			req = withChiParam(req, "id", "42")
			req = asProfessor(req, 7)
			w := httptest.NewRecorder()

			h.Grade(w, req)

			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
		})
	}
}
