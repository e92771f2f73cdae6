package grading

import (
	"testing"

	"github.com/shopspring/decimal"
)

func strPtr(s string) *string { return &s }
func intPtr(n int64) *int64   { return &n }
func boolPtr(b bool) *bool    { return &b }

func TestEvaluateChoice(t *testing.T) {
	q := Q{ID: "q1", Difficulty: 1, Format: FormatChoice, CorrectChoice: "c2"}
	tests := []struct {
		name string
		a    A
		want Verdict
	}{
		{"correct choice", A{ChoiceID: strPtr("c2")}, VerdictCorrect},
		{"wrong choice", A{ChoiceID: strPtr("c1")}, VerdictIncorrect},
		{"no choice", A{}, VerdictIncorrect},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Evaluate(q, tc.a); got != tc.want {
				t.Fatalf("Evaluate = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestEvaluateChoiceWithoutCorrectFlag(t *testing.T) {
	// No choice flagged correct: valid but ungradeable, so never correct.
	q := Q{ID: "q1", Format: FormatChoice}
	if got := Evaluate(q, A{ChoiceID: strPtr("c1")}); got != VerdictIncorrect {
		t.Fatalf("Evaluate = %s, want incorrect", got)
	}
}

func TestEvaluateText(t *testing.T) {
	tests := []struct {
		name      string
		canonical string
		a         A
		want      Verdict
	}{
		{"exact match", "castor", A{Text: strPtr("castor")}, VerdictCorrect},
		{"case and space insensitive", "castor", A{Text: strPtr("  CASTOR ")}, VerdictCorrect},
		{"mismatch", "castor", A{Text: strPtr("nutria")}, VerdictIncorrect},
		{"blank answer", "castor", A{Text: strPtr("   ")}, VerdictIncorrect},
		{"no canonical answer", "", A{Text: strPtr("foo")}, VerdictPending},
		{"no canonical and blank", "", A{Text: strPtr("")}, VerdictIncorrect},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := Q{ID: "q1", Format: FormatText, CorrectAnswer: tc.canonical}
			if got := Evaluate(q, tc.a); got != tc.want {
				t.Fatalf("Evaluate = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestEvaluateNumber(t *testing.T) {
	tests := []struct {
		name      string
		canonical string
		a         A
		want      Verdict
	}{
		{"equal", "42", A{Number: intPtr(42)}, VerdictCorrect},
		{"decimal canonical equal", "42.0", A{Number: intPtr(42)}, VerdictCorrect},
		{"not equal", "42", A{Number: intPtr(41)}, VerdictIncorrect},
		{"missing value", "42", A{}, VerdictIncorrect},
		{"no canonical", "", A{Number: intPtr(7)}, VerdictPending},
		{"garbage canonical degrades", "not-a-number", A{Number: intPtr(7)}, VerdictIncorrect},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := Q{ID: "q1", Format: FormatNumber, CorrectAnswer: tc.canonical}
			if got := Evaluate(q, tc.a); got != tc.want {
				t.Fatalf("Evaluate = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestManualJudgmentOverridesAutoComparison(t *testing.T) {
	q := Q{ID: "q1", Format: FormatText, CorrectAnswer: "castor"}
	a := A{Text: strPtr("nutria"), Status: StatusGraded, ManualCorrect: boolPtr(true)}
	if got := Evaluate(q, a); got != VerdictCorrect {
		t.Fatalf("Evaluate = %s, want correct (manual override)", got)
	}
	a.ManualCorrect = boolPtr(false)
	a.Text = strPtr("castor")
	if got := Evaluate(q, a); got != VerdictIncorrect {
		t.Fatalf("Evaluate = %s, want incorrect (manual override)", got)
	}
}

func TestProvisionalStatus(t *testing.T) {
	tests := []struct {
		name string
		q    Q
		a    A
		want Status
	}{
		{"choice correct", Q{Format: FormatChoice, CorrectChoice: "c1"}, A{ChoiceID: strPtr("c1")}, StatusNotApplicable},
		{"choice wrong", Q{Format: FormatChoice, CorrectChoice: "c1"}, A{ChoiceID: strPtr("c2")}, StatusIncorrect},
		{"choice blank", Q{Format: FormatChoice, CorrectChoice: "c1"}, A{}, StatusNotApplicable},
		{"text with key", Q{Format: FormatText, CorrectAnswer: "x"}, A{Text: strPtr("y")}, StatusNotApplicable},
		{"text without key", Q{Format: FormatText}, A{Text: strPtr("y")}, StatusPending},
		{"blank text without key", Q{Format: FormatText}, A{Text: strPtr("")}, StatusNotApplicable},
		{"number without key", Q{Format: FormatNumber}, A{Number: intPtr(3)}, StatusPending},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ProvisionalStatus(tc.q, tc.a); got != tc.want {
				t.Fatalf("ProvisionalStatus = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestScoreSigns(t *testing.T) {
	p := Policy{
		PointsPerDifficulty: map[int]decimal.Decimal{3: decimal.NewFromInt(30)},
		PenaltyType:         PenaltyFixed,
		FixedPenalty:        decimal.NewFromInt(5),
	}
	q := Q{Difficulty: 3}

	if got := Score(p, q, VerdictCorrect, true, true); !got.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("correct = %s, want 30", got)
	}
	if got := Score(p, q, VerdictIncorrect, true, true); !got.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("incorrect attempted = %s, want -5", got)
	}
	// Blank answer on a test that allows blanks: no penalty.
	if got := Score(p, q, VerdictIncorrect, false, true); !got.IsZero() {
		t.Fatalf("incorrect unattempted = %s, want 0", got)
	}
	// Blank answer where blanks are forbidden is penalized.
	if got := Score(p, q, VerdictIncorrect, false, false); !got.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("incorrect unattempted no-response-forbidden = %s, want -5", got)
	}
	if got := Score(p, q, VerdictPending, true, true); !got.IsZero() {
		t.Fatalf("pending = %s, want 0", got)
	}
}

func TestScoreUnknownDifficultyIsZero(t *testing.T) {
	p := Policy{PointsPerDifficulty: map[int]decimal.Decimal{1: decimal.NewFromInt(10)}}
	if got := Score(p, Q{Difficulty: 5}, VerdictCorrect, true, true); !got.IsZero() {
		t.Fatalf("Score = %s, want 0 for unmapped difficulty", got)
	}
}
