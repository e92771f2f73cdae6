package quiz

import (
	"github.com/shopspring/decimal"

	"github.com/bebras-platform/bebras-lms/internal/grading"
)

// ResponseFormat discriminates how a question is answered and therefore
// which Answer field carries the value.
type ResponseFormat string

const (
	FormatText   ResponseFormat = "text"
	FormatNumber ResponseFormat = "number"
	FormatChoice ResponseFormat = "choice"
)

type Skill struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Choice struct {
	ID        string `json:"id"`
	TextHTML  string `json:"text_html"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

type Question struct {
	ID            string         `json:"id"`
	StatementHTML string         `json:"statement_html"`
	ImageKey      string         `json:"image_key,omitempty"` // blob store key
	Difficulty    int            `json:"difficulty"`          // 1..7
	Format        ResponseFormat `json:"response_format"`
	CorrectAnswer string         `json:"correct_answer,omitempty"` // canonical text/number value
	Skills        []string       `json:"skills,omitempty"`
	Choices       []Choice       `json:"choices,omitempty"`
}

// CorrectChoice returns the choice flagged correct, if any. A choice
// question without one is valid but cannot be auto-graded.
func (q Question) CorrectChoice() (Choice, bool) {
	for _, c := range q.Choices {
		if c.IsCorrect {
			return c, true
		}
	}
	return Choice{}, false
}

// GradingView projects the question into the grading engine's shape.
func (q Question) GradingView() grading.Q {
	gq := grading.Q{
		ID:            q.ID,
		Difficulty:    q.Difficulty,
		Format:        string(q.Format),
		CorrectAnswer: q.CorrectAnswer,
	}
	if c, ok := q.CorrectChoice(); ok {
		gq.CorrectChoice = c.ID
	}
	return gq
}

// stripKeys removes grading keys before a question is served to a student.
func (q Question) stripKeys() Question {
	q.CorrectAnswer = ""
	choices := make([]Choice, len(q.Choices))
	copy(choices, q.Choices)
	for i := range choices {
		choices[i].IsCorrect = false
	}
	q.Choices = choices
	return q
}

type Test struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	CreatorID         string         `json:"creator_id"`
	MaxDurationSec    int            `json:"max_duration_sec"`
	MaxAttempts       int            `json:"max_attempts"` // >= 1
	AllowBacktracking bool           `json:"allow_backtracking"`
	AllowNoResponse   bool           `json:"allow_no_response"`
	Policy            grading.Policy `json:"scoring_policy"`
	Questions         []Question     `json:"questions"` // ascending id
	CreatedAt         int64          `json:"created_at,omitempty"`
}

type TestSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	CreatorID      string `json:"creator_id"`
	QuestionCount  int    `json:"question_count"`
	MaxDurationSec int    `json:"max_duration_sec"`
	MaxAttempts    int    `json:"max_attempts"`
	CreatedAt      int64  `json:"created_at"`
}

// Attempt is one student's pass through a test. EndedAt null means in
// progress; once set the attempt is immutable. Score and CorrectCount are
// a cache written only by review recomputation; the answers are the source
// of truth. CurrentIndex is the persisted progression cursor.
type Attempt struct {
	ID           string  `json:"id"`
	TestID       string  `json:"test_id"`
	UserID       string  `json:"user_id"`
	StartedAt    int64   `json:"started_at"`
	EndedAt      *int64  `json:"ended_at,omitempty"`
	Score        float64 `json:"score"`
	CorrectCount int     `json:"correct_count"`
	CurrentIndex int     `json:"current_index"`
}

// Finalized reports whether the attempt has ended. The persisted end
// timestamp is the authoritative marker; the cursor is only a hint.
func (a Attempt) Finalized() bool { return a.EndedAt != nil }

// Answer is one response within an attempt. Exactly one of Text, Number,
// ChoiceID is set, matching the question's format. Unique per
// (attempt, question): re-answering replaces the row.
type Answer struct {
	ID         string  `json:"id"`
	AttemptID  string  `json:"attempt_id"`
	QuestionID string  `json:"question_id"`
	UserID     string  `json:"user_id"`
	Text       *string `json:"answer_text,omitempty"`
	Number     *int64  `json:"answer_number,omitempty"`
	ChoiceID   *string `json:"answer_choice_id,omitempty"`
	AnsweredAt int64   `json:"answered_at"`

	Status        grading.Status   `json:"grade_status"`
	ManualCorrect *bool            `json:"manual_correct,omitempty"`
	ManualGrade   *decimal.Decimal `json:"manual_grade,omitempty"`
	GradedBy      *string          `json:"graded_by,omitempty"`
	GradedAt      *int64           `json:"graded_at,omitempty"`
}

// Attempted reports whether the student actually supplied a value.
// Synthesized blanks (empty text, null number or choice) do not count.
func (ans Answer) Attempted() bool { return ans.GradingView().Attempted() }

// GradingView projects the answer into the grading engine's shape.
func (ans Answer) GradingView() grading.A {
	return grading.A{
		Text:          ans.Text,
		Number:        ans.Number,
		ChoiceID:      ans.ChoiceID,
		Status:        ans.Status,
		ManualCorrect: ans.ManualCorrect,
	}
}
