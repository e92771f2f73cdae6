package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bebras-platform/bebras-lms/internal/quiz"
)

// POST /attempts  { "test_id": "..." }
// Resumes the open attempt if one exists; 409 with the last attempt id
// when the allowance is used up.
func BeginAttemptHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, role := viewer(r)
		var req struct {
			TestID string `json:"test_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TestID == "" {
			http.Error(w, "test_id required", http.StatusBadRequest)
			return
		}

		ok, err := store.IsTestVisibleTo(r.Context(), sub, role, req.TestID)
		if err != nil {
			quizError(w, err)
			return
		}
		if !ok {
			quizError(w, quiz.ErrNotVisible)
			return
		}

		a, err := store.BeginAttempt(r.Context(), req.TestID, sub)
		if err != nil {
			quizError(w, err)
			return
		}
		state, err := store.CurrentState(r.Context(), a.ID)
		if err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, state)
	}
}

// ownAttempt loads the attempt and rejects students touching attempts
// that are not theirs. Teachers and admins pass through.
func ownAttempt(store quiz.Store, r *http.Request) (quiz.Attempt, error) {
	sub, role := viewer(r)
	a, err := store.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		return quiz.Attempt{}, err
	}
	if role != "admin" && role != "teacher" && a.UserID != sub {
		return quiz.Attempt{}, quiz.ErrNotVisible
	}
	return a, nil
}

// GET /attempts/{attemptID}/state
func AttemptStateHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := ownAttempt(store, r)
		if err != nil {
			quizError(w, err)
			return
		}
		state, err := store.CurrentState(r.Context(), a.ID)
		if err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, state)
	}
}

// POST /attempts/{attemptID}/answer  { "value": "..." }
// The value is always a string: choice id, number text, or free text.
func SubmitAnswerHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := ownAttempt(store, r)
		if err != nil {
			quizError(w, err)
			return
		}
		var req struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		state, err := store.SubmitAnswer(r.Context(), a.ID, req.Value)
		if err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, state)
	}
}

// POST /attempts/{attemptID}/previous
func PreviousQuestionHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := ownAttempt(store, r)
		if err != nil {
			quizError(w, err)
			return
		}
		state, err := store.PreviousQuestion(r.Context(), a.ID)
		if err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, state)
	}
}

// POST /attempts/{attemptID}/finish
// Used by the timer expiry on the client and by teachers closing a
// stuck attempt. Idempotent.
func FinishAttemptHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := ownAttempt(store, r)
		if err != nil {
			quizError(w, err)
			return
		}
		fin, err := store.ForceFinish(r.Context(), a.ID)
		if err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, fin)
	}
}

// GET /attempts/{attemptID}/review
// Only finalized attempts can be reviewed.
func ReviewHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := ownAttempt(store, r)
		if err != nil {
			quizError(w, err)
			return
		}
		if !a.Finalized() {
			http.Error(w, "attempt still in progress", http.StatusConflict)
			return
		}
		rev, err := store.ComputeReview(r.Context(), a.ID)
		if err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, rev)
	}
}

// GET /attempts?test_id=...&user_id=...&group_id=...&open=true&limit=50&offset=0
// Students see only their own attempts regardless of filters.
func ListAttemptsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, role := viewer(r)
		if role == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		qv := r.URL.Query()
		userID := strings.TrimSpace(qv.Get("user_id"))
		if role != "admin" && role != "teacher" {
			userID = sub
		}
		var open *bool
		switch qv.Get("open") {
		case "true":
			v := true
			open = &v
		case "false":
			v := false
			open = &v
		}

		list, err := store.ListAttempts(r.Context(), quiz.AttemptListOpts{
			TestID:  strings.TrimSpace(qv.Get("test_id")),
			UserID:  userID,
			GroupID: strings.TrimSpace(qv.Get("group_id")),
			Open:    open,
			Limit:   parseIntDefault(qv.Get("limit"), 50),
			Offset:  parseIntDefault(qv.Get("offset"), 0),
		})
		if err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, list)
	}
}
