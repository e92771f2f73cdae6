package assign

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bebras-platform/bebras-lms/internal/quiz"
)

var _ Directory = (*SQLDirectory)(nil)

type SQLDirectory struct{ db *sql.DB }

func NewSQLDirectory(db *sql.DB) *SQLDirectory { return &SQLDirectory{db: db} }

func (d *SQLDirectory) GroupName(ctx context.Context, groupID string) (string, error) {
	var name string
	err := d.db.QueryRowContext(ctx, `SELECT name FROM groups WHERE id=$1`, groupID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", quiz.ErrNotFound
	}
	return name, err
}

func (d *SQLDirectory) MemberEmails(ctx context.Context, groupID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT u.email FROM users u
		 JOIN user_groups ug ON ug.user_id=u.id
		 WHERE ug.group_id=$1 AND u.email <> ''
		 ORDER BY u.email`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
