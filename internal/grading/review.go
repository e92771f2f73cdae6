package grading

import "github.com/shopspring/decimal"

// ItemResult is the evaluation of one answered question.
type ItemResult struct {
	QuestionID string
	Verdict    Verdict
	Points     decimal.Decimal
}

// Review is the aggregate outcome of one attempt. Percentage is clamped to
// [0,100] and rounded to two decimal places.
type Review struct {
	Items        []ItemResult
	RawScore     decimal.Decimal
	MaxScore     decimal.Decimal
	Percentage   decimal.Decimal
	CorrectCount int
}

var hundred = decimal.NewFromInt(100)

// ComputeReview evaluates every answered question and aggregates the
// attempt score. Questions without an answer record contribute to the
// maximum only. The computation is pure and idempotent: re-running it on
// unchanged inputs reproduces identical outputs, which is what lets manual
// grading re-aggregate the whole attempt instead of patching deltas.
func ComputeReview(p Policy, allowNoResponse bool, questions []Q, answers map[string]A) Review {
	rev := Review{
		RawScore: decimal.Zero,
		MaxScore: decimal.Zero,
	}
	for _, q := range questions {
		rev.MaxScore = rev.MaxScore.Add(p.PointsFor(q.Difficulty))

		a, ok := answers[q.ID]
		if !ok {
			continue
		}
		verdict := Evaluate(q, a)
		points := Score(p, q, verdict, a.Attempted(), allowNoResponse)
		if verdict == VerdictCorrect {
			rev.CorrectCount++
		}
		rev.RawScore = rev.RawScore.Add(points)
		rev.Items = append(rev.Items, ItemResult{QuestionID: q.ID, Verdict: verdict, Points: points})
	}

	if rev.MaxScore.IsPositive() {
		pct := rev.RawScore.Div(rev.MaxScore).Mul(hundred)
		if pct.IsNegative() {
			pct = decimal.Zero
		}
		if pct.GreaterThan(hundred) {
			pct = hundred
		}
		rev.Percentage = pct.Round(2)
	} else {
		rev.Percentage = decimal.Zero
	}
	return rev
}

// ManualPoints is the signed grade a teacher's judgment is worth: the
// difficulty's configured points when correct, the negated configured
// penalty when incorrect.
func ManualPoints(p Policy, difficulty int, correct bool) decimal.Decimal {
	if correct {
		return p.PointsFor(difficulty)
	}
	return p.PenaltyFor(difficulty).Neg()
}

// Gradeable reports whether an answer is currently open for manual
// grading: a pending free-text or numeric response. Choice answers are
// always auto-decided and never pass through here.
func Gradeable(q Q, a A) bool {
	if a.Status != StatusPending {
		return false
	}
	return q.Format == FormatText || q.Format == FormatNumber
}
