package http

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bebras-platform/bebras-lms/internal/roster"
)

// POST /users/import
// Accepts either multipart file= (CSV or JSON) or a raw JSON array.
func ImportUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []roster.Row
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "file required", http.StatusBadRequest)
				return
			}
			defer f.Close()
			rows, err = roster.Parse(f)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		} else {
			if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
				http.Error(w, "expected JSON array or multipart file", http.StatusBadRequest)
				return
			}
		}
		if len(rows) == 0 {
			writeJSON(w, roster.Summary{})
			return
		}
		sum, err := roster.Import(r.Context(), db, rows)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, sum)
	}
}

// GET /users?role=student&group_id=...
func ListUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := strings.TrimSpace(r.URL.Query().Get("role"))
		groupID := strings.TrimSpace(r.URL.Query().Get("group_id"))

		query := `SELECT u.id, u.username, u.full_name, u.email, u.role FROM users u`
		args := []any{}
		where := []string{}
		if groupID != "" {
			args = append(args, groupID)
			where = append(where, `u.id IN (SELECT ug.user_id FROM user_groups ug WHERE ug.group_id=$1)`)
		}
		if role != "" {
			args = append(args, role)
			if len(args) == 2 {
				where = append(where, `u.role=$2`)
			} else {
				where = append(where, `u.role=$1`)
			}
		}
		if len(where) > 0 {
			query += " WHERE " + strings.Join(where, " AND ")
		}
		query += " ORDER BY u.username"

		rows, err := db.QueryContext(r.Context(), query, args...)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()
		out := []map[string]string{}
		for rows.Next() {
			var id, username, fullName, email, urole string
			if err := rows.Scan(&id, &username, &fullName, &email, &urole); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			out = append(out, map[string]string{
				"id": id, "username": username, "full_name": fullName, "email": email, "role": urole,
			})
		}
		writeJSON(w, out)
	}
}
