package question

import (
	"errors"
	"testing"
	"time"

	"aulalms/internal/quiz"
)

func intPtr(v int) *int { return &v }

func TestValidateQuizInput(t *testing.T) {
	start := time.Now()
	end := start.Add(time.Hour)

	valid := QuizInput{CourseID: 1, Title: "Parcial 1", PassingScore: 60}

	tests := []struct {
		name    string
		mutate  func(in *QuizInput)
		wantErr bool
	}{
		{name: "valid minimal", mutate: func(in *QuizInput) {}},
		{name: "valid with window", mutate: func(in *QuizInput) { in.StartAt = &start; in.EndAt = &end }},
		{name: "missing course", mutate: func(in *QuizInput) { in.CourseID = 0 }, wantErr: true},
		{name: "blank title", mutate: func(in *QuizInput) { in.Title = "   " }, wantErr: true},
		{name: "passing score over 100", mutate: func(in *QuizInput) { in.PassingScore = 101 }, wantErr: true},
		{name: "negative passing score", mutate: func(in *QuizInput) { in.PassingScore = -1 }, wantErr: true},
		{name: "zero time limit", mutate: func(in *QuizInput) { in.TimeLimitMinutes = intPtr(0) }, wantErr: true},
		{name: "end before start", mutate: func(in *QuizInput) { in.StartAt = &end; in.EndAt = &start }, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			err := validateQuizInput(in)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidQuiz) {
					t.Fatalf("expected ErrInvalidQuiz, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateQuestionInput(t *testing.T) {
	tests := []struct {
		name    string
		in      QuestionInput
		wantErr bool
	}{
		{
			name: "valid single choice",
			in: QuestionInput{Type: quiz.TypeSingleChoice, Prompt: "¿Capital?", Points: 2, Options: []OptionInput{
				{Text: "Madrid", IsCorrect: true},
				{Text: "Barcelona"},
			}},
		},
		{
			name: "single choice with two correct",
			in: QuestionInput{Type: quiz.TypeSingleChoice, Prompt: "p", Points: 2, Options: []OptionInput{
				{Text: "A", IsCorrect: true},
				{Text: "B", IsCorrect: true},
			}},
			wantErr: true,
		},
		{
			name: "single choice with one option",
			in: QuestionInput{Type: quiz.TypeSingleChoice, Prompt: "p", Points: 2, Options: []OptionInput{
				{Text: "A", IsCorrect: true},
			}},
			wantErr: true,
		},
		{
			name: "valid multiple choice",
			in: QuestionInput{Type: quiz.TypeMultipleChoice, Prompt: "p", Points: 4, Options: []OptionInput{
				{Text: "A", IsCorrect: true},
				{Text: "B", IsCorrect: true},
				{Text: "C"},
			}},
		},
		{
			name: "multiple choice without correct options",
			in: QuestionInput{Type: quiz.TypeMultipleChoice, Prompt: "p", Points: 4, Options: []OptionInput{
				{Text: "A"},
				{Text: "B"},
			}},
			wantErr: true,
		},
		{
			name: "valid true false",
			in: QuestionInput{Type: quiz.TypeTrueFalse, Prompt: "p", Points: 1, RequireJustification: true, Options: []OptionInput{
				{Text: quiz.StatementTrue},
				{Text: quiz.StatementFalse, IsCorrect: true},
			}},
		},
		{
			name: "true false with foreign labels",
			in: QuestionInput{Type: quiz.TypeTrueFalse, Prompt: "p", Points: 1, Options: []OptionInput{
				{Text: "True", IsCorrect: true},
				{Text: "False"},
			}},
			wantErr: true,
		},
		{
			name: "true false with three options",
			in: QuestionInput{Type: quiz.TypeTrueFalse, Prompt: "p", Points: 1, Options: []OptionInput{
				{Text: quiz.StatementTrue, IsCorrect: true},
				{Text: quiz.StatementFalse},
				{Text: quiz.StatementFalse},
			}},
			wantErr: true,
		},
		{
			name: "valid text",
			in:   QuestionInput{Type: quiz.TypeText, Prompt: "Desarrolle", Points: 5},
		},
		{
			name: "text with options",
			in: QuestionInput{Type: quiz.TypeText, Prompt: "p", Points: 5, Options: []OptionInput{
				{Text: "A"},
			}},
			wantErr: true,
		},
		{
			name:    "zero points",
			in:      QuestionInput{Type: quiz.TypeText, Prompt: "p", Points: 0},
			wantErr: true,
		},
		{
			name:    "blank prompt",
			in:      QuestionInput{Type: quiz.TypeText, Prompt: "  ", Points: 1},
			wantErr: true,
		},
		{
			name:    "unknown type",
			in:      QuestionInput{Type: "essay", Prompt: "p", Points: 1},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateQuestionInput(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidQuestion) {
					t.Fatalf("expected ErrInvalidQuestion, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
