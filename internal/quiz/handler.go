package quiz

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
	svc quizService
}

type quizService interface {
	GetQuizForStudent(ctx context.Context, quizID, userID int64) (*QuizView, error)
	Submit(ctx context.Context, in SubmitInput) (*SubmitReceipt, error)
	Forfeit(ctx context.Context, quizID, userID int64) error
	GetResult(ctx context.Context, resultID int64, viewer Viewer) (*ResultView, error)
	ListResults(ctx context.Context, quizID int64) ([]ResultListItem, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type submitRequest struct {
	Answers     map[string]json.RawMessage `json:"answers"`
	TimeTakenMs int64                      `json:"time_taken_ms"`
}

func NewHandler(svc quizService) *Handler {
	return &Handler{svc: svc}
}

// GetQuiz serves the student-facing quiz: questions and options with
// correctness withheld.
func (h *Handler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	quizID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || quizID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return
	}

	view, err := h.svc.GetQuizForStudent(r.Context(), quizID, user.ID)
	if err != nil {
		var notStarted *NotStartedError
		switch {
		case errors.Is(err, ErrQuizNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrNotEnrolled):
			writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: err.Error()})
		case errors.As(err, &notStarted):
			writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: notStarted.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: view})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	quizID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || quizID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	receipt, err := h.svc.Submit(r.Context(), SubmitInput{
		QuizID:      quizID,
		UserID:      user.ID,
		Answers:     req.Answers,
		TimeTakenMs: req.TimeTakenMs,
	})
	if err != nil {
		h.writeSubmitError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: receipt})
}

// Expire records the forfeit sentinel when the client timer ran out with
// nothing submitted.
func (h *Handler) Expire(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	quizID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || quizID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return
	}

	if err := h.svc.Forfeit(r.Context(), quizID, user.ID); err != nil {
		h.writeSubmitError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: map[string]string{"status": "expired"}})
}

// writeSubmitError keeps the submission failure taxonomy distinct: a closed
// window, a finished attempt and a forfeited attempt each get their own
// status and message.
func (h *Handler) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	var notStarted *NotStartedError
	switch {
	case errors.Is(err, ErrQuizNotFound), errors.Is(err, ErrQuestionNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrNotEnrolled):
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: err.Error()})
	case errors.As(err, &notStarted):
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: notStarted.Error()})
	case errors.Is(err, ErrQuizEnded):
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrAlreadyCompleted):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrQuizExpired):
		writeJSON(w, r, http.StatusGone, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrInvalidAnswer):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
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

	view, err := h.svc.GetResult(r.Context(), resultID, Viewer{UserID: user.ID, Role: user.Role})
	if err != nil {
		switch {
		case errors.Is(err, ErrResultNotFound), errors.Is(err, ErrQuizNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrResultForbidden):
			writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: view})
}

// ListResults is professor-only (enforced by route middleware): the grading
// queue for a quiz.
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	quizID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || quizID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return
	}

	items, err := h.svc.ListResults(r.Context(), quizID)
	if err != nil {
		switch {
		case errors.Is(err, ErrQuizNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
