// Package roster imports students in bulk from CSV or JSON files and
// places them into their class groups.
package roster

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Row is one student in an import file. Group is the class name; groups
// are created on first use.
type Row struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Group    string `json:"group"`
	Password string `json:"password,omitempty"`
}

type Summary struct {
	Inserted      int `json:"inserted"`
	Updated       int `json:"updated"`
	GroupsCreated int `json:"groups_created"`
}

// Parse sniffs JSON vs CSV by the first non-space byte and decodes the
// whole file. CSV needs a header with at least username and group.
func Parse(r io.Reader) ([]Row, error) {
	br := &peekReader{r: r}
	first, err := br.peek()
	if err != nil {
		return nil, errors.New("empty file")
	}
	if first == '[' || first == '{' {
		var rows []Row
		if err := json.NewDecoder(br).Decode(&rows); err != nil {
			return nil, fmt.Errorf("bad json: %w", err)
		}
		return rows, nil
	}
	return parseCSV(br)
}

func parseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"username", "group"} {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	col := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{
			Username: col(rec, "username"),
			FullName: col(rec, "full_name"),
			Email:    col(rec, "email"),
			Group:    col(rec, "group"),
			Password: col(rec, "password"),
		})
	}
	return rows, nil
}

// Import upserts the students and their group memberships in one
// transaction. New users need a password; existing users keep their hash
// unless the file provides a new one.
func Import(ctx context.Context, db *sql.DB, rows []Row) (Summary, error) {
	var sum Summary
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return sum, err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	groupIDs := map[string]string{} // name -> id
	for _, r := range rows {
		if r.Username == "" {
			return sum, errors.New("row with empty username")
		}

		var phash string
		if r.Password != "" {
			b, err := bcrypt.GenerateFromPassword([]byte(r.Password), 12)
			if err != nil {
				return sum, err
			}
			phash = string(b)
		}

		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE username=$1`, r.Username).Scan(&id)
		switch {
		case err == nil:
			if phash != "" {
				_, err = tx.ExecContext(ctx, `UPDATE users SET full_name=$1, email=$2, password_hash=$3 WHERE id=$4`,
					r.FullName, r.Email, phash, id)
			} else {
				_, err = tx.ExecContext(ctx, `UPDATE users SET full_name=$1, email=$2 WHERE id=$3`,
					r.FullName, r.Email, id)
			}
			if err != nil {
				return sum, err
			}
			sum.Updated++
		case errors.Is(err, sql.ErrNoRows):
			if phash == "" {
				return sum, errors.New("password required for new user: " + r.Username)
			}
			id = uuid.NewString()
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO users (id,username,full_name,email,password_hash,role,created_at) VALUES ($1,$2,$3,$4,$5,'student',$6)`,
				id, r.Username, r.FullName, r.Email, phash, now); err != nil {
				return sum, err
			}
			sum.Inserted++
		default:
			return sum, err
		}

		if r.Group == "" {
			continue
		}
		gid, ok := groupIDs[r.Group]
		if !ok {
			gid, err = ensureGroup(ctx, tx, r.Group, now, &sum)
			if err != nil {
				return sum, err
			}
			groupIDs[r.Group] = gid
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_groups (user_id,group_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, id, gid); err != nil {
			return sum, err
		}
	}
	if err := tx.Commit(); err != nil {
		return sum, err
	}
	return sum, nil
}

func ensureGroup(ctx context.Context, tx *sql.Tx, name string, now int64, sum *Summary) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM groups WHERE name=$1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	id = uuid.NewString()
	if _, err := tx.ExecContext(ctx, `INSERT INTO groups (id,name,created_at) VALUES ($1,$2,$3)`, id, name, now); err != nil {
		return "", err
	}
	sum.GroupsCreated++
	return id, nil
}

// peekReader exposes the first byte without consuming it.
type peekReader struct {
	r      io.Reader
	first  byte
	peeked bool
	served bool
}

func (p *peekReader) peek() (byte, error) {
	if p.peeked {
		return p.first, nil
	}
	buf := make([]byte, 1)
	for {
		n, err := p.r.Read(buf)
		if n == 1 {
			if b := buf[0]; b != ' ' && b != '\n' && b != '\r' && b != '\t' {
				p.first = b
				p.peeked = true
				return b, nil
			}
			continue
		}
		if err != nil {
			return 0, err
		}
	}
}

func (p *peekReader) Read(b []byte) (int, error) {
	if p.peeked && !p.served {
		p.served = true
		if len(b) == 0 {
			return 0, nil
		}
		b[0] = p.first
		n, err := p.r.Read(b[1:])
		return n + 1, err
	}
	return p.r.Read(b)
}
