package grading

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func fixedPolicy() Policy {
	return Policy{
		PointsPerDifficulty: map[int]decimal.Decimal{
			1: decimal.NewFromInt(10),
			2: decimal.NewFromInt(20),
		},
		PenaltyType:  PenaltyFixed,
		FixedPenalty: decimal.NewFromInt(5),
	}
}

// The worked example from the scoring design: one correct difficulty-1
// choice, one wrong difficulty-2 choice, fixed penalty 5 => 5/30 = 16.67%.
func TestComputeReviewFixedPenalty(t *testing.T) {
	questions := []Q{
		{ID: "q1", Difficulty: 1, Format: FormatChoice, CorrectChoice: "a"},
		{ID: "q2", Difficulty: 2, Format: FormatChoice, CorrectChoice: "b"},
	}
	answers := map[string]A{
		"q1": {ChoiceID: strPtr("a")},
		"q2": {ChoiceID: strPtr("x")},
	}

	rev := ComputeReview(fixedPolicy(), true, questions, answers)

	if !rev.RawScore.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("raw score = %s, want 5", rev.RawScore)
	}
	if !rev.MaxScore.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("max score = %s, want 30", rev.MaxScore)
	}
	if want := decimal.NewFromFloat(16.67); !rev.Percentage.Equal(want) {
		t.Fatalf("percentage = %s, want %s", rev.Percentage, want)
	}
	if rev.CorrectCount != 1 {
		t.Fatalf("correct count = %d, want 1", rev.CorrectCount)
	}
}

func TestComputeReviewIdempotent(t *testing.T) {
	questions := []Q{
		{ID: "q1", Difficulty: 1, Format: FormatChoice, CorrectChoice: "a"},
		{ID: "q2", Difficulty: 2, Format: FormatText, CorrectAnswer: "beaver"},
		{ID: "q3", Difficulty: 2, Format: FormatNumber, CorrectAnswer: "8"},
	}
	answers := map[string]A{
		"q1": {ChoiceID: strPtr("a")},
		"q2": {Text: strPtr("Beaver")},
		"q3": {Number: intPtr(9)},
	}
	first := ComputeReview(fixedPolicy(), true, questions, answers)
	second := ComputeReview(fixedPolicy(), true, questions, answers)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("recomputation diverged:\n%+v\n%+v", first, second)
	}
}

func TestComputeReviewPercentageClamped(t *testing.T) {
	p := Policy{
		PointsPerDifficulty: map[int]decimal.Decimal{1: decimal.NewFromInt(10)},
		PenaltyType:         PenaltyFixed,
		FixedPenalty:        decimal.NewFromInt(50),
	}
	questions := []Q{{ID: "q1", Difficulty: 1, Format: FormatChoice, CorrectChoice: "a"}}
	answers := map[string]A{"q1": {ChoiceID: strPtr("b")}}

	rev := ComputeReview(p, true, questions, answers)
	if !rev.RawScore.Equal(decimal.NewFromInt(-50)) {
		t.Fatalf("raw score = %s, want -50", rev.RawScore)
	}
	if !rev.Percentage.IsZero() {
		t.Fatalf("percentage = %s, want clamp to 0", rev.Percentage)
	}
}

func TestComputeReviewZeroMaxScore(t *testing.T) {
	// Sparse points map with no entry for the only difficulty in the test.
	p := Policy{PenaltyType: PenaltyNone}
	questions := []Q{{ID: "q1", Difficulty: 4, Format: FormatChoice, CorrectChoice: "a"}}
	answers := map[string]A{"q1": {ChoiceID: strPtr("a")}}

	rev := ComputeReview(p, true, questions, answers)
	if !rev.Percentage.IsZero() {
		t.Fatalf("percentage = %s, want 0 when max score is 0", rev.Percentage)
	}
	if rev.CorrectCount != 1 {
		t.Fatalf("correct count = %d, want 1", rev.CorrectCount)
	}
}

func TestComputeReviewPendingThenGraded(t *testing.T) {
	p := Policy{
		PointsPerDifficulty: map[int]decimal.Decimal{2: decimal.NewFromInt(20)},
		PenaltyType:         PenaltyNone,
	}
	questions := []Q{{ID: "q1", Difficulty: 2, Format: FormatText}}

	pending := map[string]A{"q1": {Text: strPtr("foo"), Status: StatusPending}}
	rev := ComputeReview(p, true, questions, pending)
	if !rev.RawScore.IsZero() || rev.CorrectCount != 0 {
		t.Fatalf("pending answer scored: raw=%s correct=%d", rev.RawScore, rev.CorrectCount)
	}
	if rev.Items[0].Verdict != VerdictPending {
		t.Fatalf("verdict = %s, want pending", rev.Items[0].Verdict)
	}

	graded := map[string]A{"q1": {Text: strPtr("foo"), Status: StatusGraded, ManualCorrect: boolPtr(true)}}
	rev = ComputeReview(p, true, questions, graded)
	if !rev.RawScore.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("raw score after grading = %s, want 20", rev.RawScore)
	}
	if rev.CorrectCount != 1 {
		t.Fatalf("correct count after grading = %d, want 1", rev.CorrectCount)
	}
}

func TestComputeReviewSkipsUnansweredQuestions(t *testing.T) {
	rev := ComputeReview(fixedPolicy(), true, []Q{
		{ID: "q1", Difficulty: 1, Format: FormatChoice, CorrectChoice: "a"},
		{ID: "q2", Difficulty: 2, Format: FormatChoice, CorrectChoice: "b"},
	}, map[string]A{
		"q1": {ChoiceID: strPtr("a")},
	})
	if len(rev.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(rev.Items))
	}
	// Unanswered question still counts toward the maximum.
	if !rev.MaxScore.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("max score = %s, want 30", rev.MaxScore)
	}
}

func TestManualPoints(t *testing.T) {
	p := Policy{
		PointsPerDifficulty: map[int]decimal.Decimal{3: decimal.NewFromInt(30)},
		PenaltyType:         PenaltyByDifficulty,
		PenaltyByDifficulty: map[int]decimal.Decimal{3: decimal.NewFromInt(3)},
	}
	if got := ManualPoints(p, 3, true); !got.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("ManualPoints correct = %s, want 30", got)
	}
	if got := ManualPoints(p, 3, false); !got.Equal(decimal.NewFromInt(-3)) {
		t.Fatalf("ManualPoints incorrect = %s, want -3", got)
	}
	if got := ManualPoints(p, 5, false); !got.IsZero() {
		t.Fatalf("ManualPoints unmapped difficulty = %s, want 0", got)
	}
}

func TestGradeable(t *testing.T) {
	if !Gradeable(Q{Format: FormatText}, A{Status: StatusPending}) {
		t.Fatal("pending text answer should be gradeable")
	}
	if Gradeable(Q{Format: FormatChoice}, A{Status: StatusPending}) {
		t.Fatal("choice answers are never manually gradeable")
	}
	if Gradeable(Q{Format: FormatText}, A{Status: StatusGraded}) {
		t.Fatal("already graded answer should not be gradeable")
	}
}
