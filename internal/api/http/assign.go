package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bebras-platform/bebras-lms/internal/assign"
)

// POST /tests/{testID}/assign  { "group_ids": ["..."] }
func AssignTestHandler(svc *assign.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, _ := viewer(r)
		var req struct {
			GroupIDs []string `json:"group_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.GroupIDs) == 0 {
			http.Error(w, "group_ids required", http.StatusBadRequest)
			return
		}
		res, err := svc.Assign(r.Context(), chi.URLParam(r, "testID"), req.GroupIDs, sub)
		if err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, res)
	}
}
