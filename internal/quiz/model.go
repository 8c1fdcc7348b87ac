package quiz

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	TypeSingleChoice   = "single_choice"
	TypeMultipleChoice = "multiple_choice"
	TypeTrueFalse      = "true_false"
	TypeText           = "text"
)

// True/false answers travel on the wire as the literal strings the
// frontend renders.
const (
	StatementTrue  = "Verdadero"
	StatementFalse = "Falso"
)

type Quiz struct {
	ID               int64      `json:"id"`
	CourseID         int64      `json:"course_id"`
	Title            string     `json:"title"`
	PassingScore     float64    `json:"passing_score"`
	TimeLimitMinutes *int       `json:"time_limit_minutes,omitempty"`
	StartAt          *time.Time `json:"start_datetime,omitempty"`
	EndAt            *time.Time `json:"end_datetime,omitempty"`
	ResultsPublishAt *time.Time `json:"results_publish_datetime,omitempty"`
	CreatedBy        int64      `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
}

type Question struct {
	ID                   int64    `json:"id"`
	QuizID               int64    `json:"quiz_id"`
	Type                 string   `json:"type"`
	Prompt               string   `json:"prompt"`
	Points               float64  `json:"points"`
	RequireJustification bool     `json:"require_justification"`
	SortOrder            int      `json:"sort_order"`
	Options              []Option `json:"options"`
}

type Option struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

// Result is the single record of one user's attempt at a quiz. A row with
// score == 0 and max_score == 0 is the forfeit sentinel written when the
// timer ran out before anything was submitted.
type Result struct {
	ID                 int64                      `json:"id"`
	QuizID             int64                      `json:"quiz_id"`
	UserID             int64                      `json:"user_id"`
	Answers            map[string]json.RawMessage `json:"answers"`
	AutoScore          float64                    `json:"auto_score"`
	Score              float64                    `json:"score"`
	MaxScore           float64                    `json:"max_score"`
	Passed             bool                       `json:"passed"`
	NeedsManualGrading bool                       `json:"needs_manual_grading"`
	TimeTakenMinutes   int                        `json:"time_taken_minutes"`
	CompletedAt        time.Time                  `json:"completed_at"`
}

func (r *Result) IsForfeit() bool {
	return r.Score == 0 && r.MaxScore == 0
}

// Answer is the typed form of a per-question submission payload. Which
// fields are meaningful depends on the question type the payload was
// decoded against.
type Answer struct {
	OptionID      int64
	OptionIDs     []int64
	Statement     string
	Justification string
	Text          string
}

// DecodeAnswer turns the wire payload for one question into its typed form.
// A JSON null (or empty payload) is a skipped question and decodes to nil.
// Payloads that do not match the question's declared type fail with
// ErrInvalidAnswer.
func DecodeAnswer(questionType string, raw json.RawMessage) (*Answer, error) {
	if isNullPayload(raw) {
		return nil, nil
	}

	switch questionType {
	case TypeSingleChoice:
		id, ok := decodeOptionID(raw)
		if !ok {
			return nil, fmt.Errorf("%w: expected a single option id", ErrInvalidAnswer)
		}
		return &Answer{OptionID: id}, nil

	case TypeMultipleChoice:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: expected an array of option ids", ErrInvalidAnswer)
		}
		seen := make(map[int64]struct{}, len(items))
		ids := make([]int64, 0, len(items))
		for _, item := range items {
			id, ok := decodeOptionID(item)
			if !ok {
				return nil, fmt.Errorf("%w: expected an array of option ids", ErrInvalidAnswer)
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		return &Answer{OptionIDs: ids}, nil

	case TypeTrueFalse:
		var payload struct {
			Answer        string `json:"answer"`
			Justification string `json:"justification"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("%w: expected {answer, justification?}", ErrInvalidAnswer)
		}
		statement := strings.TrimSpace(payload.Answer)
		if statement == "" {
			return nil, nil
		}
		if statement != StatementTrue && statement != StatementFalse {
			return nil, fmt.Errorf("%w: answer must be %q or %q", ErrInvalidAnswer, StatementTrue, StatementFalse)
		}
		return &Answer{Statement: statement, Justification: strings.TrimSpace(payload.Justification)}, nil

	case TypeText:
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("%w: expected free text", ErrInvalidAnswer)
		}
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return &Answer{Text: text}, nil

	default:
		return nil, fmt.Errorf("%w: unknown question type %q", ErrInvalidAnswer, questionType)
	}
}

// decodeOptionID accepts the id either as a JSON number or as a numeric
// string, which is how the frontend serializes selected option values.
func decodeOptionID(raw json.RawMessage) (int64, bool) {
	var asNumber int64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber, asNumber > 0
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		id, err := strconv.ParseInt(strings.TrimSpace(asString), 10, 64)
		return id, err == nil && id > 0
	}
	return 0, false
}

func isNullPayload(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
