package http

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/bebras-platform/bebras-lms/internal/export"
)

// GET /export/attempts.xlsx?test_id=...&group_id=...
func ExportAttemptsHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wb, err := export.AttemptsReport(r.Context(), db, export.Filter{
			TestID:  strings.TrimSpace(r.URL.Query().Get("test_id")),
			GroupID: strings.TrimSpace(r.URL.Query().Get("group_id")),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer wb.Close()

		name := "attempts-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		if err := wb.Write(w); err != nil {
			// Headers are already out; nothing useful left to send.
			return
		}
	}
}
