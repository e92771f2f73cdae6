package roster

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/bebras-platform/bebras-lms/internal/db"
)

func openRosterDB(t *testing.T) *sql.DB {
	t.Helper()
	handle, err := db.Open(context.Background(), db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { handle.Close() })
	return handle
}

func TestParseCSV(t *testing.T) {
	in := `username,full_name,email,group,password
ada,Ada Lovelace,ada@example.org,7B,s3cret
alan,Alan Turing,,7B,enigma
`
	rows, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].Username != "ada" || rows[0].Group != "7B" || rows[0].Email != "ada@example.org" {
		t.Fatalf("row 0: %+v", rows[0])
	}
	if rows[1].Email != "" {
		t.Fatalf("row 1 email: %q", rows[1].Email)
	}
}

func TestParseJSON(t *testing.T) {
	in := ` [{"username":"ada","group":"7B","password":"pw"}]`
	rows, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 1 || rows[0].Username != "ada" {
		t.Fatalf("rows: %+v", rows)
	}
}

func TestParseMissingColumn(t *testing.T) {
	if _, err := Parse(strings.NewReader("username,email\nada,a@b\n")); err == nil {
		t.Fatal("expected missing column error")
	}
}

func TestImportUpsertsAndGroups(t *testing.T) {
	handle := openRosterDB(t)
	ctx := context.Background()

	sum, err := Import(ctx, handle, []Row{
		{Username: "ada", FullName: "Ada Lovelace", Email: "ada@example.org", Group: "7B", Password: "pw1"},
		{Username: "alan", Group: "7B", Password: "pw2"},
		{Username: "grace", Group: "8A", Password: "pw3"},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if sum.Inserted != 3 || sum.Updated != 0 || sum.GroupsCreated != 2 {
		t.Fatalf("summary: %+v", sum)
	}

	var hash, role string
	if err := handle.QueryRow(`SELECT password_hash, role FROM users WHERE username='ada'`).Scan(&hash, &role); err != nil {
		t.Fatalf("user row: %v", err)
	}
	if role != "student" {
		t.Fatalf("role = %q", role)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("pw1")) != nil {
		t.Fatal("password not hashed correctly")
	}

	var members int
	if err := handle.QueryRow(
		`SELECT COUNT(*) FROM user_groups ug JOIN groups g ON g.id=ug.group_id WHERE g.name='7B'`).Scan(&members); err != nil {
		t.Fatalf("members: %v", err)
	}
	if members != 2 {
		t.Fatalf("7B members = %d", members)
	}

	// Re-import updates in place: no duplicates, existing hash kept when
	// the password column is empty.
	sum, err = Import(ctx, handle, []Row{
		{Username: "ada", FullName: "A. Lovelace", Email: "ada@new.example.org", Group: "7B"},
	})
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if sum.Inserted != 0 || sum.Updated != 1 || sum.GroupsCreated != 0 {
		t.Fatalf("summary: %+v", sum)
	}
	var hash2, email string
	if err := handle.QueryRow(`SELECT password_hash, email FROM users WHERE username='ada'`).Scan(&hash2, &email); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if hash2 != hash || email != "ada@new.example.org" {
		t.Fatalf("update semantics: hash changed=%v email=%q", hash2 != hash, email)
	}
}

func TestImportNewUserNeedsPassword(t *testing.T) {
	handle := openRosterDB(t)
	if _, err := Import(context.Background(), handle, []Row{{Username: "ada", Group: "7B"}}); err == nil {
		t.Fatal("expected password-required error")
	}
	// The transaction rolled back: no partial rows.
	var n int
	if err := handle.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("users after failed import = %d (%v)", n, err)
	}
}
