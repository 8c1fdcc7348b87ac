package db

import (
	"strings"
	"testing"
)

// Columns the service queries read and write, per table. Keeping this list in
// sync with the SQL in the feature packages catches schema drift without a
// running database.
func TestSchemaDeclaresQueriedColumns(t *testing.T) {
	cases := []struct {
		table   string
		columns []string
	}{
		{"users", []string{"username", "full_name", "role", "password_hash", "is_active"}},
		{"sessions", []string{"user_id", "token_hash", "expires_at"}},
		{"courses", []string{"name", "professor_id"}},
		{"enrollments", []string{"course_id", "user_id"}},
		{"quizzes", []string{
			"course_id", "title", "passing_score", "time_limit_minutes",
			"start_datetime", "end_datetime", "results_publish_datetime",
			"created_by", "created_at",
		}},
		{"quiz_questions", []string{"quiz_id", "question_type", "prompt", "points", "require_justification", "sort_order"}},
		{"question_options", []string{"question_id", "option_text", "is_correct"}},
		{"quiz_results", []string{
			"quiz_id", "user_id", "answers", "auto_score", "score", "max_score",
			"passed", "needs_manual_grading", "time_taken_minutes", "completed_at",
		}},
		{"manual_grades", []string{"result_id", "question_id", "awarded_points", "feedback", "grader_id", "updated_at"}},
	}

	for _, tc := range cases {
		ddl := createTableStatement(t, tc.table)
		for _, col := range tc.columns {
			if !strings.Contains(ddl, col) {
				t.Errorf("table %s: queried column %q missing from DDL", tc.table, col)
			}
		}
	}
}

func createTableStatement(t *testing.T, table string) string {
	t.Helper()
	prefix := "CREATE TABLE IF NOT EXISTS " + table + " ("
	for _, stmt := range schemaStatements {
		if strings.HasPrefix(strings.TrimSpace(stmt), prefix) {
			return stmt
		}
	}
	t.Fatalf("no CREATE TABLE statement for %s", table)
	return ""
}
