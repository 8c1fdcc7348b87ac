package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// RunMigrations creates the schema if it does not exist yet. Statements
// are idempotent so the server can apply them on every startup.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	log.Println("running database migrations")

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	log.Println("database migrations completed")
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('student', 'professor', 'admin')),
		password_hash TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token_hash TEXT NOT NULL UNIQUE,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS courses (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		professor_id BIGINT NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS enrollments (
		id BIGSERIAL PRIMARY KEY,
		course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT enrollments_course_user_uniq UNIQUE (course_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS quizzes (
		id BIGSERIAL PRIMARY KEY,
		course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		passing_score DOUBLE PRECISION NOT NULL DEFAULT 60,
		time_limit_minutes INT,
		start_datetime TIMESTAMPTZ,
		end_datetime TIMESTAMPTZ,
		results_publish_datetime TIMESTAMPTZ,
		created_by BIGINT NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS quiz_questions (
		id BIGSERIAL PRIMARY KEY,
		quiz_id BIGINT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
		question_type TEXT NOT NULL CHECK (question_type IN ('single_choice', 'multiple_choice', 'true_false', 'text')),
		prompt TEXT NOT NULL,
		points DOUBLE PRECISION NOT NULL CHECK (points > 0),
		require_justification BOOLEAN NOT NULL DEFAULT false,
		sort_order INT NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS question_options (
		id BIGSERIAL PRIMARY KEY,
		question_id BIGINT NOT NULL REFERENCES quiz_questions(id) ON DELETE CASCADE,
		option_text TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL DEFAULT false
	)`,

	// One result per student per quiz. The unique constraint is what makes
	// concurrent duplicate submissions safe.
	`CREATE TABLE IF NOT EXISTS quiz_results (
		id BIGSERIAL PRIMARY KEY,
		quiz_id BIGINT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		answers JSONB NOT NULL DEFAULT '{}',
		auto_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		score DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		passed BOOLEAN NOT NULL DEFAULT false,
		needs_manual_grading BOOLEAN NOT NULL DEFAULT false,
		time_taken_minutes INT NOT NULL DEFAULT 0,
		completed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT quiz_results_quiz_user_uniq UNIQUE (quiz_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS manual_grades (
		id BIGSERIAL PRIMARY KEY,
		result_id BIGINT NOT NULL REFERENCES quiz_results(id) ON DELETE CASCADE,
		question_id BIGINT NOT NULL REFERENCES quiz_questions(id) ON DELETE CASCADE,
		awarded_points DOUBLE PRECISION NOT NULL,
		feedback TEXT,
		grader_id BIGINT NOT NULL REFERENCES users(id),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT manual_grades_result_question_uniq UNIQUE (result_id, question_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions (expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_quiz_questions_quiz_id ON quiz_questions (quiz_id)`,
	`CREATE INDEX IF NOT EXISTS idx_question_options_question_id ON question_options (question_id)`,
	`CREATE INDEX IF NOT EXISTS idx_quiz_results_quiz_id ON quiz_results (quiz_id)`,
	`CREATE INDEX IF NOT EXISTS idx_manual_grades_result_id ON manual_grades (result_id)`,
}
