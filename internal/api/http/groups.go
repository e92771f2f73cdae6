package http

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GET /groups
func ListGroupsHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.QueryContext(r.Context(),
			`SELECT g.id, g.name,
				(SELECT COUNT(*) FROM user_groups ug WHERE ug.group_id=g.id) AS members
			 FROM groups g ORDER BY g.name`)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()
		out := []map[string]any{}
		for rows.Next() {
			var id, name string
			var members int
			if err := rows.Scan(&id, &name, &members); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			out = append(out, map[string]any{"id": id, "name": name, "member_count": members})
		}
		writeJSON(w, out)
	}
}

// GET /groups/{groupID}: the group with its members and the tests
// assigned to it.
func GroupDetailHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := chi.URLParam(r, "groupID")
		var name string
		err := db.QueryRowContext(r.Context(), `SELECT name FROM groups WHERE id=$1`, groupID).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		members := []map[string]string{}
		rows, err := db.QueryContext(r.Context(),
			`SELECT u.id, u.username, u.full_name, u.email FROM users u
			 JOIN user_groups ug ON ug.user_id=u.id
			 WHERE ug.group_id=$1 ORDER BY u.username`, groupID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()
		for rows.Next() {
			var id, username, fullName, email string
			if err := rows.Scan(&id, &username, &fullName, &email); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			members = append(members, map[string]string{
				"id": id, "username": username, "full_name": fullName, "email": email,
			})
		}

		tests := []map[string]any{}
		trows, err := db.QueryContext(r.Context(),
			`SELECT t.id, t.name, ta.assigned_by, ta.assigned_at FROM tests t
			 JOIN test_assignments ta ON ta.test_id=t.id
			 WHERE ta.group_id=$1 ORDER BY ta.assigned_at DESC`, groupID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer trows.Close()
		for trows.Next() {
			var id, tname, by string
			var at int64
			if err := trows.Scan(&id, &tname, &by, &at); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			tests = append(tests, map[string]any{
				"id": id, "name": tname, "assigned_by": by, "assigned_at": at,
			})
		}

		writeJSON(w, map[string]any{
			"id": groupID, "name": name, "members": members, "assigned_tests": tests,
		})
	}
}
