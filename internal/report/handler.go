package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"aulalms/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc reportService
}

type reportService interface {
	SummaryByQuiz(ctx context.Context, quizID int64) (*QuizSummary, error)
	ExportResultsExcel(ctx context.Context, quizID int64) ([]byte, error)
}

func NewHandler(svc reportService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	quizID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || quizID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid quiz id")
		return
	}

	summary, err := h.svc.SummaryByQuiz(r.Context(), quizID)
	if err != nil {
		if errors.Is(err, ErrQuizNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, summary)
}

func (h *Handler) ExportResults(w http.ResponseWriter, r *http.Request) {
	quizID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || quizID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid quiz id")
		return
	}

	data, err := h.svc.ExportResultsExcel(r.Context(), quizID)
	if err != nil {
		if errors.Is(err, ErrQuizNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	filename := fmt.Sprintf("quiz_%d_results.xlsx", quizID)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
