package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/bebras-platform/bebras-lms/internal/quiz"
	"github.com/bebras-platform/bebras-lms/internal/rbac"

	authmw "github.com/bebras-platform/bebras-lms/internal/auth/middleware"
)

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}

func viewer(r *http.Request) (sub, role string) {
	return authmw.SubjectFromContext(r.Context()), rbac.RoleFromContext(r.Context())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// quizError maps domain errors onto HTTP. The exhausted case carries the
// last finalized attempt so the client can jump straight to its review.
func quizError(w http.ResponseWriter, err error) {
	var ex *quiz.ExhaustedError
	switch {
	case errors.As(err, &ex):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":           "attempts exhausted",
			"last_attempt_id": ex.LastAttemptID,
		})
	case errors.Is(err, quiz.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, quiz.ErrNotVisible):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, quiz.ErrAttemptFinalized):
		http.Error(w, "attempt already finished", http.StatusConflict)
	case errors.Is(err, quiz.ErrBacktrackingDisabled):
		http.Error(w, "backtracking disabled for this test", http.StatusConflict)
	case errors.Is(err, quiz.ErrAnswerRequired):
		http.Error(w, "an answer is required", http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
