package grading

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"aulalms/internal/quiz"
)

var (
	ErrResultNotFound    = errors.New("result not found")
	ErrQuestionNotFound  = errors.New("question not in quiz")
	ErrQuestionNotManual = errors.New("question is not flagged for manual grading")
	ErrResultNotGradable = errors.New("result has no gradable submission")
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

type GradeInput struct {
	ResultID      int64
	QuestionID    int64
	AwardedPoints float64
	Feedback      string
	GraderID      int64
}

type GradeOutcome struct {
	TotalScore float64 `json:"total_score"`
	MaxScore   float64 `json:"max_score"`
	Percentage float64 `json:"percentage"`
	Passed     bool    `json:"passed"`
}

// GradeQuestion upserts the professor's override for one question and
// recomputes the result's authoritative score from scratch: the shared
// scoring rules over the stored answers plus the sum of all manual grades.
// Recomputing instead of patching makes a repeated grade call idempotent.
//
// The whole cycle runs in one transaction holding a row lock on the result,
// so two professors grading different questions of the same result cannot
// overwrite each other's contribution.
func (s *Service) GradeQuestion(ctx context.Context, in GradeInput) (*GradeOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin grade tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, passingScore, err := lockResult(ctx, tx, in.ResultID)
	if err != nil {
		return nil, err
	}
	if res.MaxScore <= 0 {
		return nil, ErrResultNotGradable
	}

	questions, err := quiz.QuestionsForQuiz(ctx, tx, res.QuizID)
	if err != nil {
		return nil, err
	}

	var target *quiz.Question
	for i := range questions {
		if questions[i].ID == in.QuestionID {
			target = &questions[i]
			break
		}
	}
	if target == nil {
		return nil, ErrQuestionNotFound
	}

	answers := quiz.DecodeStoredAnswers(questions, res.Answers)
	if !quiz.ScoreQuestion(*target, answers[target.ID]).RequiresManual {
		return nil, ErrQuestionNotManual
	}

	awarded := clamp(in.AwardedPoints, 0, target.Points)
	if err := upsertGrade(ctx, tx, in.ResultID, in.QuestionID, awarded, in.Feedback, in.GraderID); err != nil {
		return nil, err
	}

	autoPortion := quiz.Aggregate(questions, answers).AutoScore

	var manualPortion float64
	var gradedCount int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(awarded_points), 0), COUNT(*)
		FROM manual_grades
		WHERE result_id = $1
	`, in.ResultID).Scan(&manualPortion, &gradedCount); err != nil {
		return nil, fmt.Errorf("sum manual grades: %w", err)
	}

	score := autoPortion + manualPortion
	percentage := quiz.Percentage(score, res.MaxScore)
	passed := percentage >= passingScore
	needsManual := gradedCount < quiz.ManualQuestionCount(questions, answers)

	if _, err := tx.ExecContext(ctx, `
		UPDATE quiz_results
		SET score = $2,
		    passed = $3,
		    needs_manual_grading = $4
		WHERE id = $1
	`, in.ResultID, score, passed, needsManual); err != nil {
		return nil, fmt.Errorf("update result score: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit grade tx: %w", err)
	}

	return &GradeOutcome{
		TotalScore: score,
		MaxScore:   res.MaxScore,
		Percentage: percentage,
		Passed:     passed,
	}, nil
}

type lockedResult struct {
	ID       int64
	QuizID   int64
	MaxScore float64
	Answers  map[string]json.RawMessage
}

func lockResult(ctx context.Context, tx *sql.Tx, resultID int64) (*lockedResult, float64, error) {
	res := &lockedResult{}
	var answersRaw []byte
	var passingScore float64
	err := tx.QueryRowContext(ctx, `
		SELECT r.id, r.quiz_id, r.max_score, r.answers, q.passing_score
		FROM quiz_results r
		JOIN quizzes q ON q.id = r.quiz_id
		WHERE r.id = $1
		FOR UPDATE OF r
	`, resultID).Scan(&res.ID, &res.QuizID, &res.MaxScore, &answersRaw, &passingScore)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, ErrResultNotFound
		}
		return nil, 0, fmt.Errorf("lock result: %w", err)
	}
	if len(answersRaw) > 0 {
		if err := json.Unmarshal(answersRaw, &res.Answers); err != nil {
			return nil, 0, fmt.Errorf("decode stored answers: %w", err)
		}
	}
	return res, passingScore, nil
}

func upsertGrade(ctx context.Context, tx *sql.Tx, resultID, questionID int64, awarded float64, feedback string, graderID int64) error {
	var feedbackArg interface{}
	if feedback != "" {
		feedbackArg = feedback
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO manual_grades (
			result_id,
			question_id,
			awarded_points,
			feedback,
			grader_id,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (result_id, question_id)
		DO UPDATE SET
			awarded_points = EXCLUDED.awarded_points,
			feedback = EXCLUDED.feedback,
			grader_id = EXCLUDED.grader_id,
			updated_at = now()
	`, resultID, questionID, awarded, feedbackArg, graderID)
	if err != nil {
		return fmt.Errorf("upsert manual grade: %w", err)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
