package grading

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"aulalms/internal/app/apiresp"
	"aulalms/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc gradingService
}

type gradingService interface {
	GradeQuestion(ctx context.Context, in GradeInput) (*GradeOutcome, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type gradeRequest struct {
	QuestionID    int64    `json:"question_id"`
	AwardedPoints *float64 `json:"awarded_points"`
	Feedback      string   `json:"feedback"`
}

func NewHandler(svc gradingService) *Handler {
	return &Handler{svc: svc}
}

// Grade records a professor's points for one manually graded question of a
// result. Route middleware restricts it to professor/admin.
func (h *Handler) Grade(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	resultID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || resultID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid result id"})
		return
	}

	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	if req.QuestionID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "question_id is required"})
		return
	}
	if req.AwardedPoints == nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "awarded_points is required"})
		return
	}

	outcome, err := h.svc.GradeQuestion(r.Context(), GradeInput{
		ResultID:      resultID,
		QuestionID:    req.QuestionID,
		AwardedPoints: *req.AwardedPoints,
		Feedback:      req.Feedback,
		GraderID:      user.ID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrResultNotFound), errors.Is(err, ErrQuestionNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrQuestionNotManual), errors.Is(err, ErrResultNotGradable):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: outcome})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
