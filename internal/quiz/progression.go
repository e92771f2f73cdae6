package quiz

import (
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/bebras-platform/bebras-lms/internal/grading"
)

// Progression order is the test's question set sorted by ascending id, a
// stable key independent of any display ordering.
func sortQuestions(qs []Question) {
	sort.Slice(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })
}

func clampIndex(idx, total int) int {
	if idx < 0 {
		return 0
	}
	if idx > total {
		return total
	}
	return idx
}

// newAnswer builds a submitted answer for the current question. A nil
// value produces the format-appropriate blank record.
func newAnswer(attemptID, userID string, q Question, v Value, now int64) Answer {
	ans := Answer{
		ID:         uuid.NewString(),
		AttemptID:  attemptID,
		QuestionID: q.ID,
		UserID:     userID,
		AnsweredAt: now,
	}
	if v != nil {
		setValue(&ans, v)
	} else {
		applyBlankValue(q, &ans)
	}
	ans.Status = grading.ProvisionalStatus(q.GradingView(), ans.GradingView())
	return ans
}

// buildState assembles the progression descriptor for an attempt whose
// cursor has already been clamped.
func buildState(t Test, a Attempt, answers map[string]Answer) AttemptState {
	total := len(t.Questions)
	st := AttemptState{
		AttemptID:      a.ID,
		Position:       a.CurrentIndex,
		Total:          total,
		Backtracking:   t.AllowBacktracking,
		MaxDurationSec: t.MaxDurationSec,
	}
	if a.Finalized() || a.CurrentIndex >= total {
		st.Finished = true
		st.Position = total
		return st
	}
	q := t.Questions[a.CurrentIndex].stripKeys()
	st.Question = &q
	if ans, ok := answers[q.ID]; ok {
		st.Answered = true
		st.PriorValue = priorValue(t.Questions[a.CurrentIndex], ans)
	}
	return st
}

// buildReview runs the grading engine over the attempt's answers and
// shapes the caller-facing result. The grading.Review is returned as well
// so stores can persist the score cache from the same computation.
func buildReview(t Test, a Attempt, answers []Answer) (ReviewResult, grading.Review) {
	gqs := make([]grading.Q, len(t.Questions))
	for i, q := range t.Questions {
		gqs[i] = q.GradingView()
	}
	byQuestion := make(map[string]Answer, len(answers))
	gas := make(map[string]grading.A, len(answers))
	for _, ans := range answers {
		byQuestion[ans.QuestionID] = ans
		gas[ans.QuestionID] = ans.GradingView()
	}

	rev := grading.ComputeReview(t.Policy, t.AllowNoResponse, gqs, gas)

	out := ReviewResult{
		TestID:         t.ID,
		AttemptID:      a.ID,
		RawScore:       rev.RawScore.InexactFloat64(),
		MaxScore:       rev.MaxScore.InexactFloat64(),
		Percentage:     rev.Percentage.InexactFloat64(),
		CorrectCount:   rev.CorrectCount,
		TotalQuestions: len(t.Questions),
	}
	for _, item := range rev.Items {
		q, ok := questionByID(t.Questions, item.QuestionID)
		if !ok {
			continue
		}
		ans := byQuestion[item.QuestionID]
		if item.Verdict == grading.VerdictPending {
			out.PendingCount++
		}
		out.Results = append(out.Results, QuestionResult{
			Question:      q.stripKeys(),
			UserAnswer:    displayUserAnswer(q, ans),
			CorrectAnswer: displayCorrectAnswer(q),
			Verdict:       string(item.Verdict),
			Points:        item.Points.InexactFloat64(),
			GradeStatus:   string(ans.Status),
			AnswerID:      ans.ID,
		})
	}
	return out, rev
}

func questionByID(qs []Question, id string) (Question, bool) {
	for _, q := range qs {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

func displayUserAnswer(q Question, ans Answer) string {
	switch q.Format {
	case FormatChoice:
		if ans.ChoiceID != nil {
			for _, c := range q.Choices {
				if c.ID == *ans.ChoiceID {
					return c.TextHTML
				}
			}
		}
	case FormatText:
		if ans.Text != nil && *ans.Text != "" {
			return *ans.Text
		}
	case FormatNumber:
		if ans.Number != nil {
			return strconv.FormatInt(*ans.Number, 10)
		}
	}
	return ""
}

func displayCorrectAnswer(q Question) string {
	if q.Format == FormatChoice {
		if c, ok := q.CorrectChoice(); ok {
			return c.TextHTML
		}
		return ""
	}
	return q.CorrectAnswer
}

// applyDecision records one teacher judgment in place. Returns false when
// the answer is not gradeable or the judgment did not actually change, in
// which case nothing was touched.
func applyDecision(t Test, q Question, ans *Answer, correct bool, gradedBy string, now int64) bool {
	if q.Format != FormatText && q.Format != FormatNumber {
		return false
	}
	if ans.Status != grading.StatusPending && ans.Status != grading.StatusGraded {
		return false
	}
	if ans.ManualCorrect != nil && *ans.ManualCorrect == correct {
		return false
	}
	points := grading.ManualPoints(t.Policy, q.Difficulty, correct)
	c := correct
	by := gradedBy
	at := now
	ans.Status = grading.StatusGraded
	ans.ManualCorrect = &c
	ans.ManualGrade = &points
	ans.GradedBy = &by
	ans.GradedAt = &at
	return true
}
