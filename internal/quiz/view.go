package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Viewer identifies who is asking for a quiz or a result. Professors and
// admins are graders and bypass the publish gate.
type Viewer struct {
	UserID int64
	Role   string
}

func (v Viewer) IsGrader() bool {
	return v.Role == "professor" || v.Role == "admin"
}

type QuizView struct {
	Quiz      Quiz             `json:"quiz"`
	Questions []QuestionDetail `json:"questions"`
}

type QuestionDetail struct {
	ID                   int64            `json:"id"`
	Type                 string           `json:"type"`
	Prompt               string           `json:"prompt"`
	Points               float64          `json:"points"`
	RequireJustification bool             `json:"require_justification"`
	SortOrder            int              `json:"sort_order"`
	Options              []OptionDetail   `json:"options,omitempty"`
	ManualGrade          *ManualGradeView `json:"manual_grade,omitempty"`
}

type OptionDetail struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	IsCorrect *bool  `json:"is_correct,omitempty"`
}

type ManualGradeView struct {
	AwardedPoints float64   `json:"awarded_points"`
	Feedback      *string   `json:"feedback,omitempty"`
	GraderID      int64     `json:"grader_id"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ResultView struct {
	Quiz             Quiz                       `json:"quiz"`
	Result           ResultSummary              `json:"result"`
	ResultsPublished bool                       `json:"results_published"`
	ResultsPublishAt *time.Time                 `json:"results_publish_datetime,omitempty"`
	Questions        []QuestionDetail           `json:"questions,omitempty"`
	StudentAnswers   map[string]json.RawMessage `json:"student_answers,omitempty"`
}

type ResultSummary struct {
	ID                 int64     `json:"id"`
	QuizID             int64     `json:"quiz_id"`
	UserID             int64     `json:"user_id"`
	Score              float64   `json:"score"`
	MaxScore           float64   `json:"max_score"`
	Percentage         float64   `json:"percentage"`
	Passed             bool      `json:"passed"`
	NeedsManualGrading bool      `json:"needs_manual_grading"`
	TimeTakenMinutes   int       `json:"time_taken_minutes"`
	CompletedAt        time.Time `json:"completed_at"`
}

type ResultListItem struct {
	ResultID           int64     `json:"result_id"`
	UserID             int64     `json:"user_id"`
	Username           string    `json:"username"`
	FullName           string    `json:"full_name"`
	Score              float64   `json:"score"`
	MaxScore           float64   `json:"max_score"`
	Percentage         float64   `json:"percentage"`
	Passed             bool      `json:"passed"`
	NeedsManualGrading bool      `json:"needs_manual_grading"`
	CompletedAt        time.Time `json:"completed_at"`
}

// GetQuizForStudent returns the quiz as a student may see it while taking
// it: questions and options with correctness withheld. Fetching before the
// window opens is refused so question content does not leak early.
func (s *Service) GetQuizForStudent(ctx context.Context, quizID, userID int64) (*QuizView, error) {
	qz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.enroll.IsEnrolled(ctx, qz.CourseID, userID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	if qz.StartAt != nil && time.Now().Before(*qz.StartAt) {
		return nil, &NotStartedError{StartAt: *qz.StartAt}
	}

	questions, err := QuestionsForQuiz(ctx, s.db, quizID)
	if err != nil {
		return nil, err
	}

	view := &QuizView{Quiz: *qz, Questions: make([]QuestionDetail, 0, len(questions))}
	for _, q := range questions {
		view.Questions = append(view.Questions, questionDetail(q, false, nil))
	}
	return view, nil
}

// GetResult applies the publish gate: before results_publish_datetime a student
// gets only the score summary; graders always get the full breakdown.
func (s *Service) GetResult(ctx context.Context, resultID int64, viewer Viewer) (*ResultView, error) {
	res, err := s.loadResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if !viewer.IsGrader() && res.UserID != viewer.UserID {
		return nil, ErrResultForbidden
	}

	qz, err := s.loadQuiz(ctx, res.QuizID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	published := resultsPublished(qz, now)
	view := &ResultView{
		Quiz: *qz,
		Result: ResultSummary{
			ID:                 res.ID,
			QuizID:             res.QuizID,
			UserID:             res.UserID,
			Score:              res.Score,
			MaxScore:           res.MaxScore,
			Percentage:         Percentage(res.Score, res.MaxScore),
			Passed:             res.Passed,
			NeedsManualGrading: res.NeedsManualGrading,
			TimeTakenMinutes:   res.TimeTakenMinutes,
			CompletedAt:        res.CompletedAt,
		},
		ResultsPublished: published,
		ResultsPublishAt: qz.ResultsPublishAt,
	}

	if !published && !viewer.IsGrader() {
		return view, nil
	}

	questions, err := QuestionsForQuiz(ctx, s.db, res.QuizID)
	if err != nil {
		return nil, err
	}
	grades, err := s.loadManualGrades(ctx, res.ID)
	if err != nil {
		return nil, err
	}

	view.Questions = make([]QuestionDetail, 0, len(questions))
	for _, q := range questions {
		grade := grades[q.ID]
		view.Questions = append(view.Questions, questionDetail(q, true, grade))
	}
	view.StudentAnswers = res.Answers
	return view, nil
}

// ListResults is the grading queue: every result of a quiz with its
// pending-manual flag, newest first.
func (s *Service) ListResults(ctx context.Context, quizID int64) ([]ResultListItem, error) {
	if _, err := s.loadQuiz(ctx, quizID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.user_id, u.username, u.full_name,
		       r.score, r.max_score, r.passed, r.needs_manual_grading, r.completed_at
		FROM quiz_results r
		JOIN users u ON u.id = r.user_id
		WHERE r.quiz_id = $1
		ORDER BY r.completed_at DESC, r.id DESC
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	items := make([]ResultListItem, 0)
	for rows.Next() {
		var item ResultListItem
		if err := rows.Scan(&item.ResultID, &item.UserID, &item.Username, &item.FullName,
			&item.Score, &item.MaxScore, &item.Passed, &item.NeedsManualGrading, &item.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		item.Percentage = Percentage(item.Score, item.MaxScore)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return items, nil
}

func questionDetail(q Question, revealCorrect bool, grade *ManualGradeView) QuestionDetail {
	d := QuestionDetail{
		ID:                   q.ID,
		Type:                 q.Type,
		Prompt:               q.Prompt,
		Points:               q.Points,
		RequireJustification: q.RequireJustification,
		SortOrder:            q.SortOrder,
		ManualGrade:          grade,
	}
	for _, opt := range q.Options {
		od := OptionDetail{ID: opt.ID, Text: opt.Text}
		if revealCorrect {
			v := opt.IsCorrect
			od.IsCorrect = &v
		}
		d.Options = append(d.Options, od)
	}
	return d
}

func (s *Service) loadResult(ctx context.Context, resultID int64) (*Result, error) {
	res := &Result{}
	var answersRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, quiz_id, user_id, answers, auto_score, score, max_score,
		       passed, needs_manual_grading, time_taken_minutes, completed_at
		FROM quiz_results
		WHERE id = $1
	`, resultID).Scan(
		&res.ID,
		&res.QuizID,
		&res.UserID,
		&answersRaw,
		&res.AutoScore,
		&res.Score,
		&res.MaxScore,
		&res.Passed,
		&res.NeedsManualGrading,
		&res.TimeTakenMinutes,
		&res.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("load result: %w", err)
	}
	if len(answersRaw) > 0 {
		if err := json.Unmarshal(answersRaw, &res.Answers); err != nil {
			return nil, fmt.Errorf("decode stored answers: %w", err)
		}
	}
	return res, nil
}

func (s *Service) loadManualGrades(ctx context.Context, resultID int64) (map[int64]*ManualGradeView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question_id, awarded_points, feedback, grader_id, updated_at
		FROM manual_grades
		WHERE result_id = $1
	`, resultID)
	if err != nil {
		return nil, fmt.Errorf("query manual grades: %w", err)
	}
	defer rows.Close()

	grades := make(map[int64]*ManualGradeView)
	for rows.Next() {
		var questionID int64
		var feedback sql.NullString
		g := &ManualGradeView{}
		if err := rows.Scan(&questionID, &g.AwardedPoints, &feedback, &g.GraderID, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan manual grade: %w", err)
		}
		if feedback.Valid {
			g.Feedback = &feedback.String
		}
		grades[questionID] = g
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manual grades: %w", err)
	}
	return grades, nil
}
