package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bebras-platform/bebras-lms/internal/grading"
	"github.com/bebras-platform/bebras-lms/internal/quiz"
)

type gradingItem struct {
	AnswerID      string `json:"answer_id"`
	QuestionID    string `json:"question_id"`
	StatementHTML string `json:"statement_html"`
	Format        string `json:"format"`
	UserAnswer    string `json:"user_answer"`
	GradeStatus   string `json:"grade_status"`
	ManualCorrect *bool  `json:"manual_correct,omitempty"`
}

// GET /attempts/{attemptID}/grading
// Lists the manually gradeable answers of the attempt: pending ones plus
// already judged ones, so the teacher can revise a judgment.
func AttemptGradingHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := chi.URLParam(r, "attemptID")
		rev, err := store.ComputeReview(r.Context(), attemptID)
		if err != nil {
			quizError(w, err)
			return
		}
		answers, err := store.AttemptAnswers(r.Context(), attemptID)
		if err != nil {
			quizError(w, err)
			return
		}
		judged := make(map[string]*bool, len(answers))
		for _, ans := range answers {
			judged[ans.ID] = ans.ManualCorrect
		}
		items := []gradingItem{}
		for _, res := range rev.Results {
			status := grading.Status(res.GradeStatus)
			if status != grading.StatusPending && status != grading.StatusGraded {
				continue
			}
			items = append(items, gradingItem{
				AnswerID:      res.AnswerID,
				QuestionID:    res.Question.ID,
				StatementHTML: res.Question.StatementHTML,
				Format:        string(res.Question.Format),
				UserAnswer:    res.UserAnswer,
				GradeStatus:   res.GradeStatus,
				ManualCorrect: judged[res.AnswerID],
			})
		}
		writeJSON(w, map[string]any{
			"attempt_id":    attemptID,
			"pending_count": rev.PendingCount,
			"items":         items,
		})
	}
}

// POST /attempts/{attemptID}/grading  { "decisions": { "<answer_id>": true } }
// Unchanged judgments are no-ops; the response carries the recomputed
// review.
func ApplyGradesHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, _ := viewer(r)
		attemptID := chi.URLParam(r, "attemptID")
		var req struct {
			Decisions map[string]bool `json:"decisions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if len(req.Decisions) == 0 {
			http.Error(w, "decisions required", http.StatusBadRequest)
			return
		}
		rev, err := store.ApplyManualGrades(r.Context(), attemptID, req.Decisions, sub)
		if err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, rev)
	}
}

// DELETE /answers/{answerID}/grade returns the answer to the pending
// queue.
func ClearManualGradeHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.ClearManualGrade(r.Context(), chi.URLParam(r, "answerID")); err != nil {
			quizError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
