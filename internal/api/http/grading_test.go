package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bebras-platform/bebras-lms/internal/grading"
	"github.com/bebras-platform/bebras-lms/internal/quiz"
)

func TestAttemptGradingListsStoredJudgment(t *testing.T) {
	ctx := context.Background()
	st := quiz.NewMemoryStore()

	q := quiz.Question{ID: "q1", StatementHTML: "<p>Why does it halt?</p>", Difficulty: 3, Format: quiz.FormatText}
	if err := st.PutQuestion(ctx, q); err != nil {
		t.Fatalf("put question: %v", err)
	}
	tt := quiz.Test{
		ID: "t1", Name: "Essay", CreatorID: "teach-1",
		MaxAttempts: 1, AllowBacktracking: true, AllowNoResponse: true,
		Policy: grading.Policy{
			PenaltyType:         grading.PenaltyNone,
			PointsPerDifficulty: map[int]decimal.Decimal{3: decimal.NewFromInt(30)},
		},
		Questions: []quiz.Question{q},
	}
	if err := st.PutTest(ctx, tt); err != nil {
		t.Fatalf("put test: %v", err)
	}

	a, err := st.BeginAttempt(ctx, tt.ID, "stu-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := st.SubmitAnswer(ctx, a.ID, "because n shrinks"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	answers, err := st.AttemptAnswers(ctx, a.ID)
	if err != nil || len(answers) != 1 {
		t.Fatalf("answers: %v %v", answers, err)
	}
	if _, err := st.ApplyManualGrades(ctx, a.ID, map[string]bool{answers[0].ID: true}, "teach-1"); err != nil {
		t.Fatalf("grade: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/attempts/{attemptID}/grading", AttemptGradingHandler(st))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/attempts/"+a.ID+"/grading", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		PendingCount int `json:"pending_count"`
		Items        []struct {
			AnswerID      string `json:"answer_id"`
			GradeStatus   string `json:"grade_status"`
			ManualCorrect *bool  `json:"manual_correct"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.PendingCount != 0 || len(body.Items) != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
	item := body.Items[0]
	if item.GradeStatus != string(grading.StatusGraded) {
		t.Fatalf("grade status = %q", item.GradeStatus)
	}
	// The stored judgment must round-trip so a teacher can revise it.
	if item.ManualCorrect == nil || !*item.ManualCorrect {
		t.Fatalf("manual_correct = %v, want true", item.ManualCorrect)
	}
}
