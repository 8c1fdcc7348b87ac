package course

import (
	"context"
	"database/sql"
	"fmt"
)

// Service answers enrollment and ownership questions against the
// courses and enrollments tables.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) IsEnrolled(ctx context.Context, courseID, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM enrollments
			WHERE course_id = $1 AND user_id = $2
		)
	`, courseID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}

// OwnsCourse reports whether the professor teaches the course.
func (s *Service) OwnsCourse(ctx context.Context, courseID, professorID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM courses
			WHERE id = $1 AND professor_id = $2
		)
	`, courseID, professorID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check course ownership: %w", err)
	}
	return exists, nil
}

func (s *Service) Enroll(ctx context.Context, courseID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollments (course_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (course_id, user_id) DO NOTHING
	`, courseID, userID)
	if err != nil {
		return fmt.Errorf("enroll user: %w", err)
	}
	return nil
}
