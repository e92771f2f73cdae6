package http

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bebras-platform/bebras-lms/internal/grading"
	"github.com/bebras-platform/bebras-lms/internal/quiz"
)

type createTestReq struct {
	Name              string         `json:"name"`
	MaxDurationSec    int            `json:"max_duration_sec"`
	MaxAttempts       int            `json:"max_attempts"`
	AllowBacktracking bool           `json:"allow_backtracking"`
	AllowNoResponse   bool           `json:"allow_no_response"`
	Policy            grading.Policy `json:"policy"`
	QuestionIDs       []string       `json:"question_ids"`
}

// POST /tests
func CreateTestHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, _ := viewer(r)
		var req createTestReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Name) == "" || len(req.QuestionIDs) == 0 {
			http.Error(w, "name and question_ids required", http.StatusBadRequest)
			return
		}
		if err := req.Policy.Validate(); err != nil {
			http.Error(w, "policy: "+err.Error(), http.StatusBadRequest)
			return
		}

		qs := make([]quiz.Question, 0, len(req.QuestionIDs))
		for _, id := range req.QuestionIDs {
			q, err := store.GetQuestion(r.Context(), id)
			if err != nil {
				quizError(w, err)
				return
			}
			qs = append(qs, q)
		}

		t := quiz.Test{
			Name:              req.Name,
			CreatorID:         sub,
			MaxDurationSec:    req.MaxDurationSec,
			MaxAttempts:       req.MaxAttempts,
			AllowBacktracking: req.AllowBacktracking,
			AllowNoResponse:   req.AllowNoResponse,
			Policy:            req.Policy,
			Questions:         qs,
		}
		if err := store.PutTest(r.Context(), t); err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, map[string]string{"id": t.ID})
	}
}

type autoCreateReq struct {
	Name              string         `json:"name"`
	Count             int            `json:"count"`
	Skills            []string       `json:"skills,omitempty"`
	MinDifficulty     int            `json:"min_difficulty,omitempty"`
	MaxDurationSec    int            `json:"max_duration_sec"`
	MaxAttempts       int            `json:"max_attempts"`
	AllowBacktracking bool           `json:"allow_backtracking"`
	AllowNoResponse   bool           `json:"allow_no_response"`
	Policy            grading.Policy `json:"policy"`
}

// POST /tests/auto draws a random question set from the bank matching
// the skill and difficulty filters.
func AutoCreateTestHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, _ := viewer(r)
		var req autoCreateReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Name) == "" || req.Count < 1 {
			http.Error(w, "name and positive count required", http.StatusBadRequest)
			return
		}
		if err := req.Policy.Validate(); err != nil {
			http.Error(w, "policy: "+err.Error(), http.StatusBadRequest)
			return
		}

		pool, err := store.ListQuestions(r.Context(), quiz.QuestionListOpts{
			Skills:        req.Skills,
			MinDifficulty: req.MinDifficulty,
		})
		if err != nil {
			quizError(w, err)
			return
		}
		if len(pool) < req.Count {
			http.Error(w, "not enough questions in the bank for the requested filters", http.StatusUnprocessableEntity)
			return
		}
		rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

		t := quiz.Test{
			Name:              req.Name,
			CreatorID:         sub,
			MaxDurationSec:    req.MaxDurationSec,
			MaxAttempts:       req.MaxAttempts,
			AllowBacktracking: req.AllowBacktracking,
			AllowNoResponse:   req.AllowNoResponse,
			Policy:            req.Policy,
			Questions:         pool[:req.Count],
		}
		if err := store.PutTest(r.Context(), t); err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, map[string]any{"id": t.ID, "question_count": req.Count})
	}
}

// GET /tests?q=...&limit=50&offset=0
func ListTestsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, role := viewer(r)
		list, err := store.ListTests(r.Context(), quiz.ListOpts{
			Q:          strings.TrimSpace(r.URL.Query().Get("q")),
			Limit:      parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:     parseIntDefault(r.URL.Query().Get("offset"), 0),
			ViewerID:   sub,
			ViewerRole: role,
		})
		if err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, list)
	}
}

// GET /tests/{testID}. Students get the key-stripped view; the authoring
// roles get the full definition.
func GetTestHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, role := viewer(r)
		id := chi.URLParam(r, "testID")

		ok, err := store.IsTestVisibleTo(r.Context(), sub, role, id)
		if err != nil {
			quizError(w, err)
			return
		}
		if !ok {
			quizError(w, quiz.ErrNotVisible)
			return
		}

		var t quiz.Test
		if role == "admin" || role == "teacher" {
			t, err = store.GetTestAdmin(r.Context(), id)
		} else {
			t, err = store.GetTest(r.Context(), id)
		}
		if err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, t)
	}
}
