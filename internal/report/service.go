package report

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

var ErrQuizNotFound = errors.New("quiz not found")

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// QuizSummary aggregates completed attempts for one quiz. Forfeit rows
// (max_score = 0) count as participants but are excluded from the score
// statistics.
type QuizSummary struct {
	QuizID        int64   `json:"quiz_id"`
	Title         string  `json:"title"`
	Participants  int     `json:"participants"`
	Forfeits      int     `json:"forfeits"`
	AverageScore  float64 `json:"average_score"`
	HighestScore  float64 `json:"highest_score"`
	LowestScore   float64 `json:"lowest_score"`
	PassRate      float64 `json:"pass_rate"`
	PendingManual int     `json:"pending_manual"`
}

type resultRow struct {
	Username         string
	FullName         string
	AutoScore        float64
	Score            float64
	MaxScore         float64
	Passed           bool
	NeedsManual      bool
	TimeTakenMinutes int
	CompletedAt      time.Time
}

func (s *Service) SummaryByQuiz(ctx context.Context, quizID int64) (*QuizSummary, error) {
	summary := &QuizSummary{QuizID: quizID}
	err := s.db.QueryRowContext(ctx, `SELECT title FROM quizzes WHERE id = $1`, quizID).Scan(&summary.Title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE max_score = 0),
			COALESCE(AVG(score)       FILTER (WHERE max_score > 0), 0),
			COALESCE(MAX(score)       FILTER (WHERE max_score > 0), 0),
			COALESCE(MIN(score)       FILTER (WHERE max_score > 0), 0),
			COALESCE(AVG(CASE WHEN passed THEN 100.0 ELSE 0 END) FILTER (WHERE max_score > 0), 0),
			COUNT(*) FILTER (WHERE needs_manual_grading)
		FROM quiz_results
		WHERE quiz_id = $1
	`, quizID).Scan(
		&summary.Participants,
		&summary.Forfeits,
		&summary.AverageScore,
		&summary.HighestScore,
		&summary.LowestScore,
		&summary.PassRate,
		&summary.PendingManual,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate results: %w", err)
	}
	return summary, nil
}

// ExportResultsExcel renders one quiz's results as an xlsx workbook.
func (s *Service) ExportResultsExcel(ctx context.Context, quizID int64) ([]byte, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM quizzes WHERE id = $1)`, quizID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	if !exists {
		return nil, ErrQuizNotFound
	}

	items, err := s.resultRows(ctx, quizID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	headers := []string{"username", "full_name", "auto_score", "score", "max_score", "percentage", "passed", "needs_manual_grading", "time_taken_minutes", "completed_at"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, it := range items {
		row := i + 2
		percentage := 0.0
		if it.MaxScore > 0 {
			percentage = it.Score / it.MaxScore * 100
		}
		values := []any{
			it.Username,
			it.FullName,
			it.AutoScore,
			it.Score,
			it.MaxScore,
			percentage,
			it.Passed,
			it.NeedsManual,
			it.TimeTakenMinutes,
			it.CompletedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "J", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) resultRows(ctx context.Context, quizID int64) ([]resultRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.username, u.full_name, r.auto_score, r.score, r.max_score,
			r.passed, r.needs_manual_grading, r.time_taken_minutes, r.completed_at
		FROM quiz_results r
		JOIN users u ON u.id = r.user_id
		WHERE r.quiz_id = $1
		ORDER BY r.score DESC, u.username ASC
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	items := make([]resultRow, 0)
	for rows.Next() {
		var it resultRow
		if err := rows.Scan(&it.Username, &it.FullName, &it.AutoScore, &it.Score, &it.MaxScore,
			&it.Passed, &it.NeedsManual, &it.TimeTakenMinutes, &it.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return items, nil
}
