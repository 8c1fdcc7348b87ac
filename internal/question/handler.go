package question

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"aulalms/internal/app/apiresp"
	"aulalms/internal/auth"
	"aulalms/internal/quiz"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc questionService
}

type questionService interface {
	CreateQuiz(ctx context.Context, editor Editor, in QuizInput) (*quiz.Quiz, error)
	UpdateQuiz(ctx context.Context, editor Editor, quizID int64, in QuizInput) (*quiz.Quiz, error)
	DeleteQuiz(ctx context.Context, editor Editor, quizID int64) error
	AddQuestion(ctx context.Context, editor Editor, quizID int64, in QuestionInput) (*quiz.Question, error)
	UpdateQuestion(ctx context.Context, editor Editor, questionID int64, in QuestionInput) (*quiz.Question, error)
	DeleteQuestion(ctx context.Context, editor Editor, questionID int64) error
	ListQuestions(ctx context.Context, editor Editor, quizID int64) ([]quiz.Question, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func NewHandler(svc questionService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	editor, ok := currentEditor(r)
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	var in QuizInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	created, err := h.svc.CreateQuiz(r.Context(), editor, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: created})
}

func (h *Handler) UpdateQuiz(w http.ResponseWriter, r *http.Request) {
	editor, ok := currentEditor(r)
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	quizID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return
	}

	var in QuizInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	updated, err := h.svc.UpdateQuiz(r.Context(), editor, quizID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: updated})
}

func (h *Handler) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	editor, ok := currentEditor(r)
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	quizID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return
	}

	if err := h.svc.DeleteQuiz(r.Context(), editor, quizID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) AddQuestion(w http.ResponseWriter, r *http.Request) {
	editor, ok := currentEditor(r)
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	quizID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return
	}

	var in QuestionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	created, err := h.svc.AddQuestion(r.Context(), editor, quizID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: created})
}

func (h *Handler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	editor, ok := currentEditor(r)
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	questionID, err := parseID(r, "questionID")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid question id"})
		return
	}

	var in QuestionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	updated, err := h.svc.UpdateQuestion(r.Context(), editor, questionID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: updated})
}

func (h *Handler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	editor, ok := currentEditor(r)
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	questionID, err := parseID(r, "questionID")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid question id"})
		return
	}

	if err := h.svc.DeleteQuestion(r.Context(), editor, questionID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "deleted"}})
}

// ListQuestions serves the authoring view, correctness flags included.
func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	editor, ok := currentEditor(r)
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	quizID, err := parseID(r, "id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid quiz id"})
		return
	}

	questions, err := h.svc.ListQuestions(r.Context(), editor, quizID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: questions})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrQuizNotFound), errors.Is(err, ErrQuestionNotFound), errors.Is(err, ErrCourseNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrNotCourseOwner):
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrInvalidQuiz), errors.Is(err, ErrInvalidQuestion):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func currentEditor(r *http.Request) (Editor, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		return Editor{}, false
	}
	return Editor{UserID: user.ID, Role: user.Role}, true
}

func parseID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
