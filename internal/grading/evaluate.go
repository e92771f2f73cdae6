package grading

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Verdict is the correctness classification of a single answer.
type Verdict string

const (
	VerdictCorrect   Verdict = "correct"
	VerdictIncorrect Verdict = "incorrect"
	VerdictPending   Verdict = "pending" // awaiting teacher review
)

// Status is an answer's grading lifecycle state. Objective formats are
// auto-graded (not_applicable, or the transitional incorrect marker);
// free-text answers without a canonical key sit in pending until a teacher
// grades them.
type Status string

const (
	StatusNotApplicable Status = "not_applicable"
	StatusPending       Status = "pending"
	StatusGraded        Status = "graded"
	StatusIncorrect     Status = "incorrect"
)

// Response formats, mirrored from the quiz models to keep this package
// dependency-free of them.
const (
	FormatText   = "text"
	FormatNumber = "number"
	FormatChoice = "choice"
)

// Q is the minimal view of a question the engine needs.
type Q struct {
	ID            string
	Difficulty    int
	Format        string
	CorrectAnswer string // canonical text/number value; empty = none defined
	CorrectChoice string // id of the choice flagged correct; empty = ungradeable
}

// A is the minimal view of an answer the engine needs. Exactly one of
// Text/Number/ChoiceID is populated, per the question's format.
type A struct {
	Text          *string
	Number        *int64
	ChoiceID      *string
	Status        Status
	ManualCorrect *bool
}

// Attempted reports whether the student actually supplied a value.
func (a A) Attempted() bool {
	switch {
	case a.Text != nil:
		return strings.TrimSpace(*a.Text) != ""
	case a.Number != nil:
		return true
	case a.ChoiceID != nil:
		return true
	}
	return false
}

// Evaluate classifies a single answer. A teacher's manual judgment (status
// graded) overrides any auto-comparison. Malformed stored data never
// errors: it degrades to incorrect.
func Evaluate(q Q, a A) Verdict {
	if a.Status == StatusGraded && a.ManualCorrect != nil {
		if *a.ManualCorrect {
			return VerdictCorrect
		}
		return VerdictIncorrect
	}

	switch q.Format {
	case FormatChoice:
		if a.ChoiceID != nil && q.CorrectChoice != "" && *a.ChoiceID == q.CorrectChoice {
			return VerdictCorrect
		}
		return VerdictIncorrect

	case FormatText:
		if a.Text == nil || strings.TrimSpace(*a.Text) == "" {
			return VerdictIncorrect
		}
		if q.CorrectAnswer == "" {
			return VerdictPending
		}
		if strings.EqualFold(strings.TrimSpace(*a.Text), strings.TrimSpace(q.CorrectAnswer)) {
			return VerdictCorrect
		}
		return VerdictIncorrect

	case FormatNumber:
		if a.Number == nil {
			return VerdictIncorrect
		}
		if q.CorrectAnswer == "" {
			return VerdictPending
		}
		want, err := decimal.NewFromString(strings.TrimSpace(q.CorrectAnswer))
		if err != nil {
			return VerdictIncorrect
		}
		if decimal.NewFromInt(*a.Number).Equal(want) {
			return VerdictCorrect
		}
		return VerdictIncorrect
	}
	return VerdictIncorrect
}

// ProvisionalStatus tags a freshly submitted answer. Choice answers are
// decided immediately; text/number answers without a canonical key go to
// pending review, everything else is auto-graded at review time.
func ProvisionalStatus(q Q, a A) Status {
	switch q.Format {
	case FormatChoice:
		if a.ChoiceID != nil && q.CorrectChoice != "" && *a.ChoiceID != q.CorrectChoice {
			return StatusIncorrect
		}
		return StatusNotApplicable
	case FormatText, FormatNumber:
		if a.Attempted() && q.CorrectAnswer == "" {
			return StatusPending
		}
		return StatusNotApplicable
	}
	return StatusNotApplicable
}

// Score converts a verdict into points under the policy. Penalties apply
// only when the student attempted the question, or left it blank on a test
// that forbids blank answers. Pending answers contribute nothing until
// graded.
func Score(p Policy, q Q, v Verdict, attempted, allowNoResponse bool) decimal.Decimal {
	switch v {
	case VerdictCorrect:
		return p.PointsFor(q.Difficulty)
	case VerdictIncorrect:
		if attempted || !allowNoResponse {
			return p.PenaltyFor(q.Difficulty).Neg()
		}
	}
	return decimal.Zero
}
