package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"aulalms/internal/quiz"
)

var (
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrCourseNotFound   = errors.New("course not found")
	ErrNotCourseOwner   = errors.New("user does not own the course")
	ErrInvalidQuestion  = errors.New("invalid question")
	ErrInvalidQuiz      = errors.New("invalid quiz")
)

// CourseOwnership answers whether a professor teaches a course. Admins
// bypass the check entirely.
type CourseOwnership interface {
	OwnsCourse(ctx context.Context, courseID, professorID int64) (bool, error)
}

type Service struct {
	db    *sql.DB
	owner CourseOwnership
}

func NewService(db *sql.DB, owner CourseOwnership) *Service {
	return &Service{db: db, owner: owner}
}

type Editor struct {
	UserID int64
	Role   string
}

func (e Editor) isAdmin() bool { return e.Role == "admin" }

type QuizInput struct {
	CourseID         int64      `json:"course_id"`
	Title            string     `json:"title"`
	PassingScore     float64    `json:"passing_score"`
	TimeLimitMinutes *int       `json:"time_limit_minutes"`
	StartAt          *time.Time `json:"start_datetime"`
	EndAt            *time.Time `json:"end_datetime"`
	ResultsPublishAt *time.Time `json:"results_publish_datetime"`
}

type OptionInput struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type QuestionInput struct {
	Type                 string        `json:"type"`
	Prompt               string        `json:"prompt"`
	Points               float64       `json:"points"`
	RequireJustification bool          `json:"require_justification"`
	SortOrder            int           `json:"sort_order"`
	Options              []OptionInput `json:"options"`
}

func (s *Service) CreateQuiz(ctx context.Context, editor Editor, in QuizInput) (*quiz.Quiz, error) {
	if err := validateQuizInput(in); err != nil {
		return nil, err
	}
	if err := s.authorizeCourse(ctx, editor, in.CourseID); err != nil {
		return nil, err
	}

	q := &quiz.Quiz{
		CourseID:         in.CourseID,
		Title:            strings.TrimSpace(in.Title),
		PassingScore:     in.PassingScore,
		TimeLimitMinutes: in.TimeLimitMinutes,
		StartAt:          in.StartAt,
		EndAt:            in.EndAt,
		ResultsPublishAt: in.ResultsPublishAt,
		CreatedBy:        editor.UserID,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO quizzes (course_id, title, passing_score, time_limit_minutes,
			start_datetime, end_datetime, results_publish_datetime, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, q.CourseID, q.Title, q.PassingScore, q.TimeLimitMinutes,
		q.StartAt, q.EndAt, q.ResultsPublishAt, q.CreatedBy,
	).Scan(&q.ID, &q.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert quiz: %w", err)
	}
	return q, nil
}

func (s *Service) UpdateQuiz(ctx context.Context, editor Editor, quizID int64, in QuizInput) (*quiz.Quiz, error) {
	if err := validateQuizInput(in); err != nil {
		return nil, err
	}

	existing, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeCourse(ctx, editor, existing.CourseID); err != nil {
		return nil, err
	}
	// Moving a quiz to another course needs authorization on the target too.
	if in.CourseID != existing.CourseID {
		if err := s.authorizeCourse(ctx, editor, in.CourseID); err != nil {
			return nil, err
		}
	}

	existing.CourseID = in.CourseID
	existing.Title = strings.TrimSpace(in.Title)
	existing.PassingScore = in.PassingScore
	existing.TimeLimitMinutes = in.TimeLimitMinutes
	existing.StartAt = in.StartAt
	existing.EndAt = in.EndAt
	existing.ResultsPublishAt = in.ResultsPublishAt

	_, err = s.db.ExecContext(ctx, `
		UPDATE quizzes
		SET course_id = $1, title = $2, passing_score = $3, time_limit_minutes = $4,
			start_datetime = $5, end_datetime = $6, results_publish_datetime = $7
		WHERE id = $8
	`, existing.CourseID, existing.Title, existing.PassingScore, existing.TimeLimitMinutes,
		existing.StartAt, existing.EndAt, existing.ResultsPublishAt, quizID)
	if err != nil {
		return nil, fmt.Errorf("update quiz: %w", err)
	}
	return existing, nil
}

func (s *Service) DeleteQuiz(ctx context.Context, editor Editor, quizID int64) error {
	existing, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if err := s.authorizeCourse(ctx, editor, existing.CourseID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM quizzes WHERE id = $1`, quizID)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuizNotFound
	}
	return nil
}

func (s *Service) AddQuestion(ctx context.Context, editor Editor, quizID int64, in QuestionInput) (*quiz.Question, error) {
	if err := validateQuestionInput(in); err != nil {
		return nil, err
	}

	parent, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeCourse(ctx, editor, parent.CourseID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := &quiz.Question{
		QuizID:               quizID,
		Type:                 in.Type,
		Prompt:               strings.TrimSpace(in.Prompt),
		Points:               in.Points,
		RequireJustification: in.RequireJustification,
		SortOrder:            in.SortOrder,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO quiz_questions (quiz_id, question_type, prompt, points, require_justification, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, q.QuizID, q.Type, q.Prompt, q.Points, q.RequireJustification, q.SortOrder).Scan(&q.ID)
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}

	if err := insertOptions(ctx, tx, q, in.Options); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit question: %w", err)
	}
	return q, nil
}

func (s *Service) UpdateQuestion(ctx context.Context, editor Editor, questionID int64, in QuestionInput) (*quiz.Question, error) {
	if err := validateQuestionInput(in); err != nil {
		return nil, err
	}

	quizID, courseID, err := s.questionParents(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeCourse(ctx, editor, courseID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := &quiz.Question{
		ID:                   questionID,
		QuizID:               quizID,
		Type:                 in.Type,
		Prompt:               strings.TrimSpace(in.Prompt),
		Points:               in.Points,
		RequireJustification: in.RequireJustification,
		SortOrder:            in.SortOrder,
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE quiz_questions
		SET question_type = $1, prompt = $2, points = $3, require_justification = $4, sort_order = $5
		WHERE id = $6
	`, q.Type, q.Prompt, q.Points, q.RequireJustification, q.SortOrder, questionID)
	if err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrQuestionNotFound
	}

	// Options are replaced wholesale on edit.
	if _, err := tx.ExecContext(ctx, `DELETE FROM question_options WHERE question_id = $1`, questionID); err != nil {
		return nil, fmt.Errorf("clear options: %w", err)
	}
	if err := insertOptions(ctx, tx, q, in.Options); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit question: %w", err)
	}
	return q, nil
}

func (s *Service) DeleteQuestion(ctx context.Context, editor Editor, questionID int64) error {
	_, courseID, err := s.questionParents(ctx, questionID)
	if err != nil {
		return err
	}
	if err := s.authorizeCourse(ctx, editor, courseID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM quiz_questions WHERE id = $1`, questionID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

// ListQuestions returns a quiz's questions with correct-answer flags
// visible, for authoring screens.
func (s *Service) ListQuestions(ctx context.Context, editor Editor, quizID int64) ([]quiz.Question, error) {
	parent, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeCourse(ctx, editor, parent.CourseID); err != nil {
		return nil, err
	}
	return quiz.QuestionsForQuiz(ctx, s.db, quizID)
}

func (s *Service) authorizeCourse(ctx context.Context, editor Editor, courseID int64) error {
	if editor.isAdmin() {
		return nil
	}
	owns, err := s.owner.OwnsCourse(ctx, courseID, editor.UserID)
	if err != nil {
		return fmt.Errorf("check course ownership: %w", err)
	}
	if !owns {
		return ErrNotCourseOwner
	}
	return nil
}

func (s *Service) loadQuiz(ctx context.Context, quizID int64) (*quiz.Quiz, error) {
	q, err := quiz.LoadQuiz(ctx, s.db, quizID)
	if err != nil {
		if errors.Is(err, quiz.ErrQuizNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, err
	}
	return q, nil
}

func (s *Service) questionParents(ctx context.Context, questionID int64) (quizID, courseID int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT qq.quiz_id, qz.course_id
		FROM quiz_questions qq
		JOIN quizzes qz ON qz.id = qq.quiz_id
		WHERE qq.id = $1
	`, questionID).Scan(&quizID, &courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, ErrQuestionNotFound
		}
		return 0, 0, fmt.Errorf("load question parents: %w", err)
	}
	return quizID, courseID, nil
}

func insertOptions(ctx context.Context, tx *sql.Tx, q *quiz.Question, options []OptionInput) error {
	q.Options = make([]quiz.Option, 0, len(options))
	for _, opt := range options {
		o := quiz.Option{
			QuestionID: q.ID,
			Text:       strings.TrimSpace(opt.Text),
			IsCorrect:  opt.IsCorrect,
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO question_options (question_id, option_text, is_correct)
			VALUES ($1, $2, $3)
			RETURNING id
		`, o.QuestionID, o.Text, o.IsCorrect).Scan(&o.ID)
		if err != nil {
			return fmt.Errorf("insert option: %w", err)
		}
		q.Options = append(q.Options, o)
	}
	return nil
}

func validateQuizInput(in QuizInput) error {
	if in.CourseID <= 0 {
		return fmt.Errorf("%w: course_id is required", ErrInvalidQuiz)
	}
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidQuiz)
	}
	if in.PassingScore < 0 || in.PassingScore > 100 {
		return fmt.Errorf("%w: passing_score must be between 0 and 100", ErrInvalidQuiz)
	}
	if in.TimeLimitMinutes != nil && *in.TimeLimitMinutes <= 0 {
		return fmt.Errorf("%w: time_limit_minutes must be positive", ErrInvalidQuiz)
	}
	if in.StartAt != nil && in.EndAt != nil && !in.EndAt.After(*in.StartAt) {
		return fmt.Errorf("%w: end_datetime must be after start_datetime", ErrInvalidQuiz)
	}
	return nil
}

func validateQuestionInput(in QuestionInput) error {
	if strings.TrimSpace(in.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidQuestion)
	}
	if in.Points <= 0 {
		return fmt.Errorf("%w: points must be positive", ErrInvalidQuestion)
	}

	correct := 0
	for _, opt := range in.Options {
		if strings.TrimSpace(opt.Text) == "" {
			return fmt.Errorf("%w: option text is required", ErrInvalidQuestion)
		}
		if opt.IsCorrect {
			correct++
		}
	}

	switch in.Type {
	case quiz.TypeSingleChoice:
		if len(in.Options) < 2 {
			return fmt.Errorf("%w: single_choice needs at least two options", ErrInvalidQuestion)
		}
		if correct != 1 {
			return fmt.Errorf("%w: single_choice needs exactly one correct option", ErrInvalidQuestion)
		}
	case quiz.TypeMultipleChoice:
		if len(in.Options) < 2 {
			return fmt.Errorf("%w: multiple_choice needs at least two options", ErrInvalidQuestion)
		}
		if correct < 1 {
			return fmt.Errorf("%w: multiple_choice needs at least one correct option", ErrInvalidQuestion)
		}
	case quiz.TypeTrueFalse:
		if len(in.Options) != 2 {
			return fmt.Errorf("%w: true_false needs exactly two options", ErrInvalidQuestion)
		}
		if correct != 1 {
			return fmt.Errorf("%w: true_false needs exactly one correct option", ErrInvalidQuestion)
		}
		for _, opt := range in.Options {
			text := strings.TrimSpace(opt.Text)
			if text != quiz.StatementTrue && text != quiz.StatementFalse {
				return fmt.Errorf("%w: true_false options must be %q or %q", ErrInvalidQuestion, quiz.StatementTrue, quiz.StatementFalse)
			}
		}
	case quiz.TypeText:
		if len(in.Options) != 0 {
			return fmt.Errorf("%w: text questions take no options", ErrInvalidQuestion)
		}
	default:
		return fmt.Errorf("%w: unknown question type %q", ErrInvalidQuestion, in.Type)
	}
	return nil
}
