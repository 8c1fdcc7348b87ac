package quiz

import (
	"encoding/json"
	"math"
	"strconv"
)

// This file is the single scoring implementation for the whole engine.
// Both the submission path and the manual-grading recompute path go through
// ScoreQuestion/Aggregate so the two can never disagree on a rule.

type QuestionScore struct {
	Points         float64
	RequiresManual bool
}

// ScoreQuestion applies the automatic scoring rule for one question.
// ans is nil when the student skipped the question.
func ScoreQuestion(q Question, ans *Answer) QuestionScore {
	switch q.Type {
	case TypeSingleChoice:
		return scoreSingleChoice(q, ans)
	case TypeMultipleChoice:
		return scoreMultipleChoice(q, ans)
	case TypeTrueFalse:
		return scoreTrueFalse(q, ans)
	case TypeText:
		// Free text is always graded by a human; the automatic
		// contribution is zero whether or not anything was written.
		return QuestionScore{Points: 0, RequiresManual: true}
	default:
		return QuestionScore{}
	}
}

func scoreSingleChoice(q Question, ans *Answer) QuestionScore {
	if ans == nil {
		return QuestionScore{}
	}
	for _, opt := range q.Options {
		if opt.ID == ans.OptionID && opt.IsCorrect {
			return QuestionScore{Points: q.Points}
		}
	}
	return QuestionScore{}
}

// scoreMultipleChoice is all-or-nothing: the selection must contain every
// correct option and nothing else. An incomplete or over-inclusive
// selection earns zero.
func scoreMultipleChoice(q Question, ans *Answer) QuestionScore {
	if ans == nil {
		return QuestionScore{}
	}

	correct := make(map[int64]struct{})
	valid := make(map[int64]struct{}, len(q.Options))
	for _, opt := range q.Options {
		valid[opt.ID] = struct{}{}
		if opt.IsCorrect {
			correct[opt.ID] = struct{}{}
		}
	}
	if len(correct) == 0 {
		return QuestionScore{}
	}

	hits := 0
	for _, id := range ans.OptionIDs {
		if _, known := valid[id]; !known {
			return QuestionScore{}
		}
		if _, ok := correct[id]; !ok {
			return QuestionScore{}
		}
		hits++
	}
	if hits != len(correct) || len(ans.OptionIDs) != len(correct) {
		return QuestionScore{}
	}

	return QuestionScore{Points: float64(hits) / float64(len(correct)) * q.Points}
}

func scoreTrueFalse(q Question, ans *Answer) QuestionScore {
	if ans == nil {
		return QuestionScore{}
	}

	// A "Falso" answer on a justification question cannot be judged
	// automatically: the professor has to read the justification. The
	// question is flagged manual even when the justification is missing,
	// in which case the answer is worth nothing until graded.
	if q.RequireJustification && ans.Statement == StatementFalse {
		return QuestionScore{Points: 0, RequiresManual: true}
	}

	for _, opt := range q.Options {
		if opt.IsCorrect && opt.Text == ans.Statement {
			return QuestionScore{Points: q.Points}
		}
	}
	return QuestionScore{}
}

type Totals struct {
	AutoScore   float64
	MaxScore    float64
	NeedsManual bool
}

// Aggregate runs the scoring rule over every question of a quiz. Questions
// without an entry in answers count as skipped.
func Aggregate(questions []Question, answers map[int64]*Answer) Totals {
	var t Totals
	for _, q := range questions {
		sc := ScoreQuestion(q, answers[q.ID])
		t.AutoScore += sc.Points
		t.MaxScore += q.Points
		t.NeedsManual = t.NeedsManual || sc.RequiresManual
	}
	return t
}

// ManualQuestionCount reports how many questions of the attempt were
// flagged for human grading, given the answers as submitted.
func ManualQuestionCount(questions []Question, answers map[int64]*Answer) int {
	n := 0
	for _, q := range questions {
		if ScoreQuestion(q, answers[q.ID]).RequiresManual {
			n++
		}
	}
	return n
}

// DecodeStoredAnswers re-types the answer blob persisted on a Result. The
// blob was validated at submission time, so payloads that no longer decode
// (for example after a question type edit) are treated as skipped.
func DecodeStoredAnswers(questions []Question, stored map[string]json.RawMessage) map[int64]*Answer {
	byID := make(map[int64]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	out := make(map[int64]*Answer, len(stored))
	for key, raw := range stored {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		q, ok := byID[id]
		if !ok {
			continue
		}
		ans, err := DecodeAnswer(q.Type, raw)
		if err != nil {
			continue
		}
		out[id] = ans
	}
	return out
}

// Percentage returns the score as a percent with one decimal place, the
// figure shown to students and compared against the passing score.
func Percentage(score, maxScore float64) float64 {
	if maxScore <= 0 {
		return 0
	}
	return math.Round(score/maxScore*1000) / 10
}
