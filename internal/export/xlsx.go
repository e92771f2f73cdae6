// Package export renders attempt results as spreadsheets teachers can
// hand to the school office.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

type Filter struct {
	TestID  string
	GroupID string
}

const sheetName = "Attempts"

var header = []string{"Username", "Full name", "Test", "Attempt", "Started", "Finished", "Score %", "Correct", "Max attempts", "Duration (s)"}

// AttemptsReport builds a workbook of finalized attempts matching the
// filter, one row per attempt, newest first within a student.
func AttemptsReport(ctx context.Context, db *sql.DB, f Filter) (*excelize.File, error) {
	rows, err := queryAttempts(ctx, db, f)
	if err != nil {
		return nil, err
	}

	wb := excelize.NewFile()
	wb.SetSheetName(wb.GetSheetName(0), sheetName)

	headerStyle, err := wb.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return nil, err
	}
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := wb.SetCellValue(sheetName, cell, h); err != nil {
			return nil, err
		}
	}
	if err := wb.SetCellStyle(sheetName, "A1", "J1", headerStyle); err != nil {
		return nil, err
	}
	_ = wb.SetColWidth(sheetName, "A", "C", 22)
	_ = wb.SetColWidth(sheetName, "E", "F", 20)

	// Attempt numbers count up per (user, test) in start order.
	seq := map[string]int{}
	for i, r := range rows {
		key := r.userID + "\x00" + r.testID
		seq[key]++
		line := i + 2
		vals := []any{
			r.username, r.fullName, r.testName, seq[key],
			formatUnix(r.startedAt), formatUnix(r.endedAt),
			r.score, r.correctCount, r.maxAttempts, r.maxDurationSec,
		}
		for col, v := range vals {
			cell, _ := excelize.CoordinatesToCellName(col+1, line)
			if err := wb.SetCellValue(sheetName, cell, v); err != nil {
				return nil, err
			}
		}
	}
	return wb, nil
}

type reportRow struct {
	userID, testID     string
	username, fullName string
	testName           string
	startedAt, endedAt int64
	score              float64
	correctCount       int
	maxAttempts        int
	maxDurationSec     int
}

func queryAttempts(ctx context.Context, db *sql.DB, f Filter) ([]reportRow, error) {
	where := []string{"a.ended_at IS NOT NULL"}
	args := []any{}
	if f.TestID != "" {
		args = append(args, f.TestID)
		where = append(where, fmt.Sprintf("a.test_id=$%d", len(args)))
	}
	if f.GroupID != "" {
		args = append(args, f.GroupID)
		where = append(where, fmt.Sprintf("a.user_id IN (SELECT ug.user_id FROM user_groups ug WHERE ug.group_id=$%d)", len(args)))
	}
	query := `SELECT a.user_id, a.test_id, u.username, u.full_name, t.name,
		a.started_at, a.ended_at, a.score, a.correct_count, t.max_attempts, t.max_duration_sec
		FROM attempts a
		JOIN users u ON u.id=a.user_id
		JOIN tests t ON t.id=a.test_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY u.username, t.name, a.started_at`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []reportRow{}
	for rows.Next() {
		var r reportRow
		if err := rows.Scan(&r.userID, &r.testID, &r.username, &r.fullName, &r.testName,
			&r.startedAt, &r.endedAt, &r.score, &r.correctCount, &r.maxAttempts, &r.maxDurationSec); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04")
}
