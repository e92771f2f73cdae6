package quiz

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/bebras-platform/bebras-lms/internal/grading"
)

func fixtureStore(t *testing.T) (*MemoryStore, Test) {
	t.Helper()
	st := NewMemoryStore()
	st.now = func() int64 { return 1000 }

	tt := Test{
		ID:                "t1",
		Name:              "Algorithms round",
		CreatorID:         "teach-1",
		MaxAttempts:       2,
		AllowBacktracking: true,
		AllowNoResponse:   true,
		Policy: grading.Policy{
			PointsPerDifficulty: map[int]decimal.Decimal{
				1: decimal.NewFromInt(10),
				2: decimal.NewFromInt(20),
				3: decimal.NewFromInt(30),
			},
			PenaltyType:  grading.PenaltyFixed,
			FixedPenalty: decimal.NewFromInt(5),
		},
		Questions: []Question{
			{
				ID: "q1", StatementHTML: "<p>Pick the loop invariant.</p>", Difficulty: 1, Format: FormatChoice,
				Choices: []Choice{
					{ID: "c1", TextHTML: "i < n", IsCorrect: true},
					{ID: "c2", TextHTML: "i > n"},
				},
			},
			{ID: "q2", StatementHTML: "<p>How many comparisons?</p>", Difficulty: 2, Format: FormatNumber, CorrectAnswer: "42"},
			// No canonical answer: graded by hand.
			{ID: "q3", StatementHTML: "<p>Explain why it terminates.</p>", Difficulty: 3, Format: FormatText},
		},
	}
	if err := st.PutTest(context.Background(), tt); err != nil {
		t.Fatalf("PutTest: %v", err)
	}
	return st, tt
}

func TestBeginAttemptResumesOpen(t *testing.T) {
	st, tt := fixtureStore(t)
	ctx := context.Background()

	a1, err := st.BeginAttempt(ctx, tt.ID, "stu-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	a2, err := st.BeginAttempt(ctx, tt.ID, "stu-1")
	if err != nil {
		t.Fatalf("begin again: %v", err)
	}
	if a1.ID != a2.ID {
		t.Fatalf("expected resume of open attempt, got %s then %s", a1.ID, a2.ID)
	}
}

func TestBeginAttemptUnknownTest(t *testing.T) {
	st, _ := fixtureStore(t)
	if _, err := st.BeginAttempt(context.Background(), "nope", "stu-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBeginAttemptExhausted(t *testing.T) {
	st, tt := fixtureStore(t)
	ctx := context.Background()

	// A ticking clock so the two finalizations get distinct timestamps.
	clock := int64(1000)
	st.now = func() int64 { clock++; return clock }

	var last string
	for i := 0; i < tt.MaxAttempts; i++ {
		a, err := st.BeginAttempt(ctx, tt.ID, "stu-1")
		if err != nil {
			t.Fatalf("begin %d: %v", i, err)
		}
		if _, err := st.ForceFinish(ctx, a.ID); err != nil {
			t.Fatalf("finish %d: %v", i, err)
		}
		last = a.ID
	}

	_, err := st.BeginAttempt(ctx, tt.ID, "stu-1")
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected *ExhaustedError, got %T", err)
	}
	if ex.LastAttemptID != last {
		t.Fatalf("LastAttemptID = %q, want %q", ex.LastAttemptID, last)
	}
}

func TestExhaustedRedirectTieBreak(t *testing.T) {
	st, tt := fixtureStore(t)

	// Two attempts finalized in the same second: the later start wins.
	end := int64(2000)
	st.attempts["a1"] = Attempt{ID: "a1", TestID: tt.ID, UserID: "stu-1", StartedAt: 1000, EndedAt: &end}
	st.attempts["a2"] = Attempt{ID: "a2", TestID: tt.ID, UserID: "stu-1", StartedAt: 1500, EndedAt: &end}

	_, err := st.BeginAttempt(context.Background(), tt.ID, "stu-1")
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected *ExhaustedError, got %v", err)
	}
	if ex.LastAttemptID != "a2" {
		t.Fatalf("LastAttemptID = %q, want a2", ex.LastAttemptID)
	}
}

func TestSubmitAnswerAdvancesAndFinalizes(t *testing.T) {
	st, tt := fixtureStore(t)
	ctx := context.Background()
	a, _ := st.BeginAttempt(ctx, tt.ID, "stu-1")

	state, err := st.CurrentState(ctx, a.ID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Position != 0 || state.Total != 3 || state.Finished {
		t.Fatalf("unexpected initial state: %+v", state)
	}
	if state.Question == nil || state.Question.ID != "q1" {
		t.Fatalf("expected q1 first, got %+v", state.Question)
	}
	// Student view must not expose the key.
	for _, c := range state.Question.Choices {
		if c.IsCorrect {
			t.Fatal("correct choice leaked to student view")
		}
	}

	state, err = st.SubmitAnswer(ctx, a.ID, "c1")
	if err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	if state.Position != 1 || state.Question.ID != "q2" {
		t.Fatalf("expected advance to q2, got %+v", state)
	}

	if state, err = st.SubmitAnswer(ctx, a.ID, "41"); err != nil {
		t.Fatalf("submit q2: %v", err)
	}
	if state, err = st.SubmitAnswer(ctx, a.ID, "induction on n"); err != nil {
		t.Fatalf("submit q3: %v", err)
	}
	if !state.Finished {
		t.Fatalf("expected finalization after last answer, got %+v", state)
	}

	if _, err := st.SubmitAnswer(ctx, a.ID, "again"); !errors.Is(err, ErrAttemptFinalized) {
		t.Fatalf("expected ErrAttemptFinalized, got %v", err)
	}
}

func TestSubmitAnswerRequired(t *testing.T) {
	st, tt := fixtureStore(t)
	ctx := context.Background()
	tt.ID = "t2"
	tt.AllowNoResponse = false
	if err := st.PutTest(ctx, tt); err != nil {
		t.Fatalf("PutTest: %v", err)
	}
	a, _ := st.BeginAttempt(ctx, tt.ID, "stu-1")

	if _, err := st.SubmitAnswer(ctx, a.ID, "   "); !errors.Is(err, ErrAnswerRequired) {
		t.Fatalf("expected ErrAnswerRequired for blank, got %v", err)
	}
	// Unknown choice id degrades to no value and is rejected the same way.
	if _, err := st.SubmitAnswer(ctx, a.ID, "c99"); !errors.Is(err, ErrAnswerRequired) {
		t.Fatalf("expected ErrAnswerRequired for bad choice, got %v", err)
	}
	if _, err := st.SubmitAnswer(ctx, a.ID, "c2"); err != nil {
		t.Fatalf("valid choice rejected: %v", err)
	}
}

func TestBacktrackingReplacesAnswer(t *testing.T) {
	st, tt := fixtureStore(t)
	ctx := context.Background()
	a, _ := st.BeginAttempt(ctx, tt.ID, "stu-1")

	if _, err := st.SubmitAnswer(ctx, a.ID, "c2"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	state, err := st.PreviousQuestion(ctx, a.ID)
	if err != nil {
		t.Fatalf("previous: %v", err)
	}
	if state.Position != 0 || !state.Answered {
		t.Fatalf("expected answered q1 after backtrack, got %+v", state)
	}
	if state.PriorValue != "c2" {
		t.Fatalf("PriorValue = %v, want c2", state.PriorValue)
	}

	// Re-answering replaces, never duplicates.
	if _, err := st.SubmitAnswer(ctx, a.ID, "c1"); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	answers, err := st.AttemptAnswers(ctx, a.ID)
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	var forQ1 int
	for _, ans := range answers {
		if ans.QuestionID == "q1" {
			forQ1++
			if ans.ChoiceID == nil || *ans.ChoiceID != "c1" {
				t.Fatalf("replacement not stored: %+v", ans)
			}
		}
	}
	if forQ1 != 1 {
		t.Fatalf("expected exactly one answer for q1, got %d", forQ1)
	}

	// At the first question backtracking is a no-op, not an error.
	if state, err = st.PreviousQuestion(ctx, a.ID); err != nil {
		t.Fatalf("previous at 1: %v", err)
	}
	if state, err = st.PreviousQuestion(ctx, a.ID); err != nil {
		t.Fatalf("previous at 0: %v", err)
	}
	if state.Position != 0 {
		t.Fatalf("expected to stay at 0, got %d", state.Position)
	}
}

func TestBacktrackingDisabled(t *testing.T) {
	st, tt := fixtureStore(t)
	ctx := context.Background()
	tt.ID = "t3"
	tt.AllowBacktracking = false
	if err := st.PutTest(ctx, tt); err != nil {
		t.Fatalf("PutTest: %v", err)
	}
	a, _ := st.BeginAttempt(ctx, tt.ID, "stu-1")
	if _, err := st.SubmitAnswer(ctx, a.ID, "c1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := st.PreviousQuestion(ctx, a.ID); !errors.Is(err, ErrBacktrackingDisabled) {
		t.Fatalf("expected ErrBacktrackingDisabled, got %v", err)
	}
}

func TestForceFinishSynthesizesBlanks(t *testing.T) {
	st, tt := fixtureStore(t)
	ctx := context.Background()
	a, _ := st.BeginAttempt(ctx, tt.ID, "stu-1")
	if _, err := st.SubmitAnswer(ctx, a.ID, "c1"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	fin, err := st.ForceFinish(ctx, a.ID)
	if err != nil {
		t.Fatalf("force finish: %v", err)
	}
	if !fin.Finalized() {
		t.Fatal("attempt not finalized")
	}

	answers, _ := st.AttemptAnswers(ctx, a.ID)
	if len(answers) != len(tt.Questions) {
		t.Fatalf("expected %d answers after force finish, got %d", len(tt.Questions), len(answers))
	}
	for _, ans := range answers {
		switch ans.QuestionID {
		case "q2":
			if ans.Number != nil {
				t.Fatalf("blank number should stay null: %+v", ans)
			}
			if !ans.Attempted() {
				continue
			}
			t.Fatalf("synthesized blank counts as attempted: %+v", ans)
		case "q3":
			// Blank text is the empty string, still unattempted.
			if ans.Text == nil || *ans.Text != "" {
				t.Fatalf("blank text should be empty string: %+v", ans)
			}
			if ans.Attempted() {
				t.Fatalf("synthesized blank counts as attempted: %+v", ans)
			}
		}
	}

	// Idempotent: second call returns the same finalized attempt.
	again, err := st.ForceFinish(ctx, a.ID)
	if err != nil {
		t.Fatalf("second force finish: %v", err)
	}
	if again.ID != fin.ID || *again.EndedAt != *fin.EndedAt {
		t.Fatalf("force finish not idempotent: %+v vs %+v", again, fin)
	}
	if answers2, _ := st.AttemptAnswers(ctx, a.ID); len(answers2) != len(answers) {
		t.Fatalf("answer count changed on repeat: %d", len(answers2))
	}
}

func TestComputeReviewAndManualGrading(t *testing.T) {
	st, tt := fixtureStore(t)
	ctx := context.Background()
	a, _ := st.BeginAttempt(ctx, tt.ID, "stu-1")

	// q1 correct (+10), q2 wrong attempted (-5), q3 text pending (0).
	mustSubmit(t, st, a.ID, "c1")
	mustSubmit(t, st, a.ID, "41")
	mustSubmit(t, st, a.ID, "loop variant decreases")

	rev, err := st.ComputeReview(ctx, a.ID)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if rev.RawScore != 5 || rev.MaxScore != 60 {
		t.Fatalf("raw/max = %v/%v, want 5/60", rev.RawScore, rev.MaxScore)
	}
	if math.Abs(rev.Percentage-8.33) > 1e-9 {
		t.Fatalf("percentage = %v, want 8.33", rev.Percentage)
	}
	if rev.CorrectCount != 1 || rev.PendingCount != 1 {
		t.Fatalf("correct/pending = %d/%d, want 1/1", rev.CorrectCount, rev.PendingCount)
	}

	// The attempt row caches the percentage.
	att, _ := st.GetAttempt(ctx, a.ID)
	if math.Abs(att.Score-8.33) > 1e-9 || att.CorrectCount != 1 {
		t.Fatalf("cached score/count = %v/%d", att.Score, att.CorrectCount)
	}

	var pendingID string
	for _, r := range rev.Results {
		if r.Question.ID == "q3" {
			if r.Verdict != string(grading.VerdictPending) {
				t.Fatalf("q3 verdict = %s, want pending", r.Verdict)
			}
			pendingID = r.AnswerID
		}
	}
	if pendingID == "" {
		t.Fatal("no answer id for pending question")
	}

	// Grade q3 correct: +30 points, one more correct.
	rev, err = st.ApplyManualGrades(ctx, a.ID, map[string]bool{pendingID: true}, "teach-1")
	if err != nil {
		t.Fatalf("apply grades: %v", err)
	}
	if rev.RawScore != 35 || rev.CorrectCount != 2 || rev.PendingCount != 0 {
		t.Fatalf("after grading raw/correct/pending = %v/%d/%d", rev.RawScore, rev.CorrectCount, rev.PendingCount)
	}
	if math.Abs(rev.Percentage-58.33) > 1e-9 {
		t.Fatalf("percentage = %v, want 58.33", rev.Percentage)
	}

	// Flip the judgment: previously graded answers stay re-gradeable.
	rev, err = st.ApplyManualGrades(ctx, a.ID, map[string]bool{pendingID: false}, "teach-1")
	if err != nil {
		t.Fatalf("re-grade: %v", err)
	}
	if rev.RawScore != 0 {
		t.Fatalf("after incorrect judgment raw = %v, want 0 (10 - 5 - 5)", rev.RawScore)
	}

	// Clearing returns the answer to the queue.
	if err := st.ClearManualGrade(ctx, pendingID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	rev, _ = st.ComputeReview(ctx, a.ID)
	if rev.PendingCount != 1 {
		t.Fatalf("pending after clear = %d, want 1", rev.PendingCount)
	}
}

func TestVisibility(t *testing.T) {
	st, tt := fixtureStore(t)
	ctx := context.Background()
	st.AddUserToGroup("stu-1", "g1")

	added, err := st.AssignTest(ctx, tt.ID, "g1", "teach-1")
	if err != nil || !added {
		t.Fatalf("assign: added=%v err=%v", added, err)
	}
	// Duplicate assignment is a no-op.
	if added, _ = st.AssignTest(ctx, tt.ID, "g1", "teach-1"); added {
		t.Fatal("duplicate assignment reported as new")
	}

	cases := []struct {
		user, role string
		want       bool
	}{
		{"anyone", "admin", true},
		{"teach-1", "teacher", true},
		{"teach-2", "teacher", false},
		{"stu-1", "student", true},
		{"stu-2", "student", false},
	}
	for _, c := range cases {
		got, err := st.IsTestVisibleTo(ctx, c.user, c.role, tt.ID)
		if err != nil {
			t.Fatalf("%s/%s: %v", c.user, c.role, err)
		}
		if got != c.want {
			t.Fatalf("visibility %s/%s = %v, want %v", c.user, c.role, got, c.want)
		}
	}

	lists, err := st.ListTests(ctx, ListOpts{ViewerID: "stu-2", ViewerRole: "student"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lists) != 0 {
		t.Fatalf("unassigned student sees %d tests", len(lists))
	}
}

func mustSubmit(t *testing.T, st Store, attemptID, raw string) AttemptState {
	t.Helper()
	state, err := st.SubmitAnswer(context.Background(), attemptID, raw)
	if err != nil {
		t.Fatalf("submit %q: %v", raw, err)
	}
	return state
}
