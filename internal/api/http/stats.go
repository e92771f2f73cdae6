package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bebras-platform/bebras-lms/internal/grading"
	"github.com/bebras-platform/bebras-lms/internal/quiz"
)

type questionStat struct {
	QuestionID string `json:"question_id"`
	Answered   int    `json:"answered"`
	Correct    int    `json:"correct"`
	Incorrect  int    `json:"incorrect"`
	Pending    int    `json:"pending"`
}

type testStats struct {
	TestID             string         `json:"test_id"`
	FinalizedAttempts  int            `json:"finalized_attempts"`
	OpenAttempts       int            `json:"open_attempts"`
	AverageScore       float64        `json:"average_score"`
	BestScore          float64        `json:"best_score"`
	Questions          []questionStat `json:"questions"`
	DistinctStudentIDs int            `json:"distinct_students"`
}

// GET /tests/{testID}/stats
// Aggregates finalized attempts: score distribution plus per-question
// correctness, evaluated with the test's own policy.
func TestStatsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		t, err := store.GetTestAdmin(r.Context(), testID)
		if err != nil {
			quizError(w, err)
			return
		}

		attempts, err := store.ListAttempts(r.Context(), quiz.AttemptListOpts{TestID: testID})
		if err != nil {
			quizError(w, err)
			return
		}

		stats := testStats{TestID: testID, Questions: make([]questionStat, len(t.Questions))}
		byQuestion := map[string]*questionStat{}
		for i, q := range t.Questions {
			stats.Questions[i].QuestionID = q.ID
			byQuestion[q.ID] = &stats.Questions[i]
		}

		students := map[string]bool{}
		var scoreSum float64
		for _, a := range attempts {
			students[a.UserID] = true
			if !a.Finalized() {
				stats.OpenAttempts++
				continue
			}
			stats.FinalizedAttempts++
			scoreSum += a.Score
			if a.Score > stats.BestScore {
				stats.BestScore = a.Score
			}

			answers, err := store.AttemptAnswers(r.Context(), a.ID)
			if err != nil {
				quizError(w, err)
				return
			}
			for _, ans := range answers {
				qs, ok := byQuestion[ans.QuestionID]
				if !ok {
					continue
				}
				q, _ := questionFor(t, ans.QuestionID)
				if ans.Attempted() {
					qs.Answered++
				}
				switch grading.Evaluate(q.GradingView(), ans.GradingView()) {
				case grading.VerdictCorrect:
					qs.Correct++
				case grading.VerdictIncorrect:
					if ans.Attempted() {
						qs.Incorrect++
					}
				case grading.VerdictPending:
					qs.Pending++
				}
			}
		}
		if stats.FinalizedAttempts > 0 {
			stats.AverageScore = scoreSum / float64(stats.FinalizedAttempts)
		}
		stats.DistinctStudentIDs = len(students)
		writeJSON(w, stats)
	}
}

func questionFor(t quiz.Test, id string) (quiz.Question, bool) {
	for _, q := range t.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return quiz.Question{}, false
}
