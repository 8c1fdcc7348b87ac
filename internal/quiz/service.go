package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

var (
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrNotEnrolled      = errors.New("not enrolled in this course")
	ErrQuizEnded        = errors.New("quiz submission window has ended")
	ErrAlreadyCompleted = errors.New("quiz already completed")
	ErrQuizExpired      = errors.New("quiz time expired before submission")
	ErrResultNotFound   = errors.New("result not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrInvalidAnswer    = errors.New("invalid answer payload")
	ErrResultForbidden  = errors.New("result belongs to another student")
)

// NotStartedError carries the opening time so the student is told when to
// come back.
type NotStartedError struct {
	StartAt time.Time
}

func (e *NotStartedError) Error() string {
	return fmt.Sprintf("quiz is not open yet; submissions open at %s", e.StartAt.Format(time.RFC3339))
}

// EnrollmentChecker is the course-membership collaborator. Enrollment CRUD
// lives outside this engine; only the yes/no check is consumed here.
type EnrollmentChecker interface {
	IsEnrolled(ctx context.Context, courseID, userID int64) (bool, error)
}

type Service struct {
	db     *sql.DB
	enroll EnrollmentChecker
}

func NewService(db *sql.DB, enroll EnrollmentChecker) *Service {
	return &Service{db: db, enroll: enroll}
}

type SubmitInput struct {
	QuizID      int64
	UserID      int64
	Answers     map[string]json.RawMessage
	TimeTakenMs int64
}

type SubmitReceipt struct {
	ResultID         int64      `json:"result_id"`
	Score            float64    `json:"score"`
	MaxScore         float64    `json:"max_score"`
	Passed           bool       `json:"passed"`
	ResultsPublished bool       `json:"results_published"`
	ResultsPublishAt *time.Time `json:"results_publish_datetime,omitempty"`
}

// Submit validates a timed submission, scores it and persists the one
// immutable Result for this (quiz, user). Preconditions are checked in a
// fixed order so the student always gets the most specific failure:
// enrollment, window start, window end, then prior completion.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitReceipt, error) {
	qz, err := s.loadQuiz(ctx, in.QuizID)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.enroll.IsEnrolled(ctx, qz.CourseID, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	now := time.Now()
	if qz.StartAt != nil && now.Before(*qz.StartAt) {
		return nil, &NotStartedError{StartAt: *qz.StartAt}
	}
	if qz.EndAt != nil && now.After(*qz.EndAt) {
		return nil, ErrQuizEnded
	}

	if err := s.checkNoExistingResult(ctx, in.QuizID, in.UserID); err != nil {
		return nil, err
	}

	questions, err := QuestionsForQuiz(ctx, s.db, in.QuizID)
	if err != nil {
		return nil, err
	}

	answers, stored, err := resolveAnswers(questions, in.Answers)
	if err != nil {
		return nil, err
	}

	totals := Aggregate(questions, answers)
	passed := false
	if totals.MaxScore > 0 {
		passed = totals.AutoScore/totals.MaxScore >= qz.PassingScore/100
	}

	storedJSON, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}

	resultID, err := s.insertResult(ctx, resultInsert{
		QuizID:             in.QuizID,
		UserID:             in.UserID,
		Answers:            storedJSON,
		AutoScore:          totals.AutoScore,
		Score:              totals.AutoScore,
		MaxScore:           totals.MaxScore,
		Passed:             passed,
		NeedsManualGrading: totals.NeedsManual,
		TimeTakenMinutes:   minutesFromMs(in.TimeTakenMs),
	})
	if err != nil {
		return nil, err
	}

	return &SubmitReceipt{
		ResultID:         resultID,
		Score:            totals.AutoScore,
		MaxScore:         totals.MaxScore,
		Passed:           passed,
		ResultsPublished: resultsPublished(qz, now),
		ResultsPublishAt: qz.ResultsPublishAt,
	}, nil
}

// Forfeit records the sentinel Result (score 0, max_score 0) for a student
// whose timer ran out without a submission. A later Submit then fails with
// ErrQuizExpired instead of ErrAlreadyCompleted.
func (s *Service) Forfeit(ctx context.Context, quizID, userID int64) error {
	qz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return err
	}

	enrolled, err := s.enroll.IsEnrolled(ctx, qz.CourseID, userID)
	if err != nil {
		return fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return ErrNotEnrolled
	}

	if err := s.checkNoExistingResult(ctx, quizID, userID); err != nil {
		return err
	}

	_, err = s.insertResult(ctx, resultInsert{
		QuizID:  quizID,
		UserID:  userID,
		Answers: []byte(`{}`),
	})
	return err
}

type resultInsert struct {
	QuizID             int64
	UserID             int64
	Answers            []byte
	AutoScore          float64
	Score              float64
	MaxScore           float64
	Passed             bool
	NeedsManualGrading bool
	TimeTakenMinutes   int
}

// insertResult relies on the UNIQUE (quiz_id, user_id) constraint rather
// than the earlier existence check: two concurrent submissions both pass
// the check, but only one row wins the insert.
func (s *Service) insertResult(ctx context.Context, in resultInsert) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO quiz_results (
			quiz_id,
			user_id,
			answers,
			auto_score,
			score,
			max_score,
			passed,
			needs_manual_grading,
			time_taken_minutes,
			completed_at
		) VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (quiz_id, user_id) DO NOTHING
		RETURNING id
	`, in.QuizID, in.UserID, in.Answers, in.AutoScore, in.Score, in.MaxScore,
		in.Passed, in.NeedsManualGrading, in.TimeTakenMinutes)

	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAlreadyCompleted
		}
		return 0, fmt.Errorf("insert result: %w", err)
	}
	return id, nil
}

func (s *Service) checkNoExistingResult(ctx context.Context, quizID, userID int64) error {
	var score, maxScore float64
	err := s.db.QueryRowContext(ctx, `
		SELECT score, max_score
		FROM quiz_results
		WHERE quiz_id = $1 AND user_id = $2
	`, quizID, userID).Scan(&score, &maxScore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query existing result: %w", err)
	}
	if score == 0 && maxScore == 0 {
		return ErrQuizExpired
	}
	return ErrAlreadyCompleted
}

// resolveAnswers decodes the wire payloads against the quiz's questions. The
// stored blob keeps one entry per question, with JSON null for skipped ones,
// so a Result is self-describing even after quiz edits. Payloads keyed by a
// question that is not part of the quiz are rejected.
func resolveAnswers(questions []Question, wire map[string]json.RawMessage) (map[int64]*Answer, map[string]json.RawMessage, error) {
	known := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		known[strconv.FormatInt(q.ID, 10)] = struct{}{}
	}
	for key := range wire {
		if _, ok := known[key]; !ok {
			return nil, nil, fmt.Errorf("%w: answer for question %s", ErrQuestionNotFound, key)
		}
	}

	answers := make(map[int64]*Answer, len(questions))
	stored := make(map[string]json.RawMessage, len(questions))
	for _, q := range questions {
		key := strconv.FormatInt(q.ID, 10)
		raw, ok := wire[key]
		if !ok || isNullPayload(raw) {
			stored[key] = json.RawMessage(`null`)
			continue
		}
		ans, err := DecodeAnswer(q.Type, raw)
		if err != nil {
			return nil, nil, fmt.Errorf("question %d: %w", q.ID, err)
		}
		if ans == nil {
			stored[key] = json.RawMessage(`null`)
			continue
		}
		answers[q.ID] = ans
		stored[key] = raw
	}
	return answers, stored, nil
}

func minutesFromMs(ms int64) int {
	if ms <= 0 {
		return 0
	}
	return int(math.Round(float64(ms) / 60000))
}

func resultsPublished(qz *Quiz, now time.Time) bool {
	return qz.ResultsPublishAt == nil || !now.Before(*qz.ResultsPublishAt)
}

// Queryable lets loaders run against either the pool or an open transaction.
type Queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *Service) loadQuiz(ctx context.Context, quizID int64) (*Quiz, error) {
	return LoadQuiz(ctx, s.db, quizID)
}

func LoadQuiz(ctx context.Context, q Queryable, quizID int64) (*Quiz, error) {
	qz := &Quiz{}
	var timeLimit sql.NullInt64
	var startAt, endAt, publishAt sql.NullTime
	err := q.QueryRowContext(ctx, `
		SELECT id, course_id, title, passing_score, time_limit_minutes,
		       start_datetime, end_datetime, results_publish_datetime, created_by, created_at
		FROM quizzes
		WHERE id = $1
	`, quizID).Scan(
		&qz.ID,
		&qz.CourseID,
		&qz.Title,
		&qz.PassingScore,
		&timeLimit,
		&startAt,
		&endAt,
		&publishAt,
		&qz.CreatedBy,
		&qz.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	if timeLimit.Valid {
		v := int(timeLimit.Int64)
		qz.TimeLimitMinutes = &v
	}
	if startAt.Valid {
		qz.StartAt = &startAt.Time
	}
	if endAt.Valid {
		qz.EndAt = &endAt.Time
	}
	if publishAt.Valid {
		qz.ResultsPublishAt = &publishAt.Time
	}
	return qz, nil
}

// QuestionsForQuiz loads the quiz's questions with their options, in
// authored order. Shared with the grading recompute path.
func QuestionsForQuiz(ctx context.Context, q Queryable, quizID int64) ([]Question, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, quiz_id, question_type, prompt, points, require_justification, sort_order
		FROM quiz_questions
		WHERE quiz_id = $1
		ORDER BY sort_order, id
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	questions := make([]Question, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var item Question
		if err := rows.Scan(&item.ID, &item.QuizID, &item.Type, &item.Prompt,
			&item.Points, &item.RequireJustification, &item.SortOrder); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		index[item.ID] = len(questions)
		questions = append(questions, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	if len(questions) == 0 {
		return questions, nil
	}

	optRows, err := q.QueryContext(ctx, `
		SELECT o.id, o.question_id, o.option_text, o.is_correct
		FROM question_options o
		JOIN quiz_questions qq ON qq.id = o.question_id
		WHERE qq.quiz_id = $1
		ORDER BY o.question_id, o.id
	`, quizID)
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var opt Option
		if err := optRows.Scan(&opt.ID, &opt.QuestionID, &opt.Text, &opt.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		if i, ok := index[opt.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, opt)
		}
	}
	if err := optRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate options: %w", err)
	}
	return questions, nil
}
