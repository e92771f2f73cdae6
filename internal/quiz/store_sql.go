package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bebras-platform/bebras-lms/internal/grading"
)

var _ Store = (*SQLStore)(nil)

// SQLStore is the durable Store over sqlite or postgres.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	now    func() int64
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver, now: func() int64 { return time.Now().Unix() }}
}

// queryer is satisfied by both *sql.DB and *sql.Tx so loaders can run
// inside or outside a transaction.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// --- questions ---

func (s *SQLStore) PutQuestion(ctx context.Context, q Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO questions (id,statement_html,image_key,difficulty,response_format,correct_answer,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET statement_html=EXCLUDED.statement_html, image_key=EXCLUDED.image_key,
			difficulty=EXCLUDED.difficulty, response_format=EXCLUDED.response_format, correct_answer=EXCLUDED.correct_answer`,
		q.ID, q.StatementHTML, q.ImageKey, q.Difficulty, string(q.Format), q.CorrectAnswer, s.now())
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM choices WHERE question_id=$1`, q.ID); err != nil {
		return err
	}
	for _, c := range q.Choices {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO choices (id,question_id,text_html,is_correct) VALUES ($1,$2,$3,$4)`,
			c.ID, q.ID, c.TextHTML, c.IsCorrect); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM question_skills WHERE question_id=$1`, q.ID); err != nil {
		return err
	}
	for _, skill := range q.Skills {
		sid := uuid.NewString()
		if _, err := tx.ExecContext(ctx, `INSERT INTO skills (id,name) VALUES ($1,$2) ON CONFLICT (name) DO NOTHING`, sid, skill); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO question_skills (question_id,skill_id)
			SELECT $1, id FROM skills WHERE name=$2 ON CONFLICT DO NOTHING`, q.ID, skill); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx,
		`SELECT id,statement_html,image_key,difficulty,response_format,correct_answer FROM questions WHERE id=$1`, id))
	if err != nil {
		return Question{}, err
	}
	if err := s.attachChoicesAndSkills(ctx, s.db, map[string]*Question{q.ID: &q},
		`WHERE c.question_id=$1`, `WHERE qs.question_id=$1`, id); err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *SQLStore) ListQuestions(ctx context.Context, opts QuestionListOpts) ([]Question, error) {
	where := []string{}
	args := []any{}
	if opts.MinDifficulty > 0 {
		args = append(args, opts.MinDifficulty)
		where = append(where, fmt.Sprintf("difficulty >= $%d", len(args)))
	}
	if len(opts.Skills) > 0 {
		ph := make([]string, len(opts.Skills))
		for i, skill := range opts.Skills {
			args = append(args, skill)
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		where = append(where, fmt.Sprintf(
			`id IN (SELECT qs.question_id FROM question_skills qs JOIN skills sk ON sk.id=qs.skill_id WHERE sk.name IN (%s))`,
			strings.Join(ph, ",")))
	}
	query := `SELECT id,statement_html,image_key,difficulty,response_format,correct_answer FROM questions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Question{}
	byID := map[string]*Question{}
	for rows.Next() {
		q, err := scanQuestionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		byID[out[i].ID] = &out[i]
	}
	if len(out) > 0 {
		// One pass over all choices/skills; fine at question-bank scale.
		if err := s.attachChoicesAndSkills(ctx, s.db, byID, "", ""); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// --- tests ---

func (s *SQLStore) PutTest(ctx context.Context, t Test) error {
	if err := t.Policy.Validate(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.MaxAttempts < 1 {
		t.MaxAttempts = 1
	}
	pj, err := json.Marshal(t.Policy)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO tests (id,name,creator_id,max_duration_sec,max_attempts,allow_backtracking,allow_no_response,policy_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, max_duration_sec=EXCLUDED.max_duration_sec,
			max_attempts=EXCLUDED.max_attempts, allow_backtracking=EXCLUDED.allow_backtracking,
			allow_no_response=EXCLUDED.allow_no_response, policy_json=EXCLUDED.policy_json`,
		t.ID, t.Name, t.CreatorID, t.MaxDurationSec, t.MaxAttempts, t.AllowBacktracking, t.AllowNoResponse, string(pj), s.now())
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM test_questions WHERE test_id=$1`, t.ID); err != nil {
		return err
	}
	for _, q := range t.Questions {
		if _, err := tx.ExecContext(ctx, `INSERT INTO test_questions (test_id,question_id) VALUES ($1,$2)`, t.ID, q.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) GetTest(ctx context.Context, id string) (Test, error) {
	t, err := s.loadTest(ctx, s.db, id)
	if err != nil {
		return Test{}, err
	}
	for i := range t.Questions {
		t.Questions[i] = t.Questions[i].stripKeys()
	}
	return t, nil
}

func (s *SQLStore) GetTestAdmin(ctx context.Context, id string) (Test, error) {
	return s.loadTest(ctx, s.db, id)
}

func (s *SQLStore) ListTests(ctx context.Context, opts ListOpts) ([]TestSummary, error) {
	where := []string{}
	args := []any{}
	switch opts.ViewerRole {
	case "admin":
	case "teacher":
		args = append(args, opts.ViewerID)
		where = append(where, fmt.Sprintf("t.creator_id=$%d", len(args)))
	default:
		args = append(args, opts.ViewerID)
		where = append(where, fmt.Sprintf(`t.id IN (
			SELECT ta.test_id FROM test_assignments ta
			JOIN user_groups ug ON ug.group_id=ta.group_id
			WHERE ug.user_id=$%d)`, len(args)))
	}
	if opts.Q != "" {
		args = append(args, "%"+strings.ToLower(opts.Q)+"%")
		where = append(where, fmt.Sprintf("LOWER(t.name) LIKE $%d", len(args)))
	}

	query := `SELECT t.id, t.name, t.creator_id, t.max_duration_sec, t.max_attempts, t.created_at,
		(SELECT COUNT(*) FROM test_questions tq WHERE tq.test_id=t.id) AS question_count
		FROM tests t`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY t.name"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TestSummary{}
	for rows.Next() {
		var ts TestSummary
		if err := rows.Scan(&ts.ID, &ts.Name, &ts.CreatorID, &ts.MaxDurationSec, &ts.MaxAttempts, &ts.CreatedAt, &ts.QuestionCount); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// --- attempt progression ---

func (s *SQLStore) BeginAttempt(ctx context.Context, testID, userID string) (Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	var maxAttempts int
	if err := tx.QueryRowContext(ctx, `SELECT max_attempts FROM tests WHERE id=$1`, testID).Scan(&maxAttempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrNotFound
		}
		return Attempt{}, err
	}

	// An open attempt must be resumed, never duplicated.
	open, err := scanAttempt(tx.QueryRowContext(ctx,
		`SELECT id,test_id,user_id,started_at,ended_at,score,correct_count,current_index
		 FROM attempts WHERE test_id=$1 AND user_id=$2 AND ended_at IS NULL`, testID, userID))
	switch {
	case err == nil:
		return open, tx.Commit()
	case !errors.Is(err, ErrNotFound):
		return Attempt{}, err
	}

	var finalized int
	var lastID sql.NullString
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE test_id=$1 AND user_id=$2 AND ended_at IS NOT NULL`,
		testID, userID).Scan(&finalized); err != nil {
		return Attempt{}, err
	}
	if finalized >= maxAttempts {
		_ = tx.QueryRowContext(ctx,
			`SELECT id FROM attempts WHERE test_id=$1 AND user_id=$2 AND ended_at IS NOT NULL
			 ORDER BY ended_at DESC, started_at DESC, id DESC LIMIT 1`,
			testID, userID).Scan(&lastID)
		return Attempt{}, &ExhaustedError{LastAttemptID: lastID.String}
	}

	a := Attempt{ID: uuid.NewString(), TestID: testID, UserID: userID, StartedAt: s.now()}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO attempts (id,test_id,user_id,started_at,score,correct_count,current_index) VALUES ($1,$2,$3,$4,0,0,0)`,
		a.ID, a.TestID, a.UserID, a.StartedAt); err != nil {
		return Attempt{}, err
	}
	return a, tx.Commit()
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT id,test_id,user_id,started_at,ended_at,score,correct_count,current_index FROM attempts WHERE id=$1`, id))
}

func (s *SQLStore) CurrentState(ctx context.Context, attemptID string) (AttemptState, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return AttemptState{}, err
	}
	t, err := s.loadTest(ctx, s.db, a.TestID)
	if err != nil {
		return AttemptState{}, err
	}
	total := len(t.Questions)
	a.CurrentIndex = clampIndex(a.CurrentIndex, total)

	if a.CurrentIndex >= total && !a.Finalized() {
		// Walked past the end: finalize idempotently.
		end := s.now()
		if _, err := s.db.ExecContext(ctx,
			`UPDATE attempts SET ended_at=$1, current_index=$2 WHERE id=$3 AND ended_at IS NULL`,
			end, total, a.ID); err != nil {
			return AttemptState{}, err
		}
		a.EndedAt = &end
	}

	answers, err := s.answersByQuestion(ctx, a.ID)
	if err != nil {
		return AttemptState{}, err
	}
	return buildState(t, a, answers), nil
}

func (s *SQLStore) SubmitAnswer(ctx context.Context, attemptID, raw string) (AttemptState, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return AttemptState{}, err
	}
	if a.Finalized() {
		return AttemptState{}, ErrAttemptFinalized
	}
	t, err := s.loadTest(ctx, s.db, a.TestID)
	if err != nil {
		return AttemptState{}, err
	}
	total := len(t.Questions)
	a.CurrentIndex = clampIndex(a.CurrentIndex, total)
	if a.CurrentIndex >= total {
		return s.CurrentState(ctx, attemptID)
	}

	q := t.Questions[a.CurrentIndex]
	v, ok := ParseValue(q, raw)
	if !ok && !t.AllowNoResponse {
		return AttemptState{}, ErrAnswerRequired
	}
	ans := newAnswer(a.ID, a.UserID, q, v, s.now())

	a.CurrentIndex++
	var end *int64
	if a.CurrentIndex >= total {
		e := s.now()
		end = &e
	}

	// Replace-then-insert plus the cursor advance, atomically: a failure
	// partway must leave the prior answer intact.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AttemptState{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM answers WHERE attempt_id=$1 AND question_id=$2`, a.ID, q.ID); err != nil {
		return AttemptState{}, err
	}
	if err := insertAnswer(ctx, tx, ans); err != nil {
		return AttemptState{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE attempts SET current_index=$1, ended_at=$2 WHERE id=$3 AND ended_at IS NULL`,
		a.CurrentIndex, end, a.ID); err != nil {
		return AttemptState{}, err
	}
	if err := tx.Commit(); err != nil {
		return AttemptState{}, err
	}

	a.EndedAt = end
	answers, err := s.answersByQuestion(ctx, a.ID)
	if err != nil {
		return AttemptState{}, err
	}
	return buildState(t, a, answers), nil
}

func (s *SQLStore) PreviousQuestion(ctx context.Context, attemptID string) (AttemptState, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return AttemptState{}, err
	}
	if a.Finalized() {
		return AttemptState{}, ErrAttemptFinalized
	}
	t, err := s.loadTest(ctx, s.db, a.TestID)
	if err != nil {
		return AttemptState{}, err
	}
	if !t.AllowBacktracking {
		return AttemptState{}, ErrBacktrackingDisabled
	}
	if a.CurrentIndex > 0 {
		a.CurrentIndex--
		if _, err := s.db.ExecContext(ctx, `UPDATE attempts SET current_index=$1 WHERE id=$2 AND ended_at IS NULL`,
			a.CurrentIndex, a.ID); err != nil {
			return AttemptState{}, err
		}
	}
	answers, err := s.answersByQuestion(ctx, a.ID)
	if err != nil {
		return AttemptState{}, err
	}
	return buildState(t, a, answers), nil
}

func (s *SQLStore) ForceFinish(ctx context.Context, attemptID string) (Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Finalized() {
		return a, nil
	}
	t, err := s.loadTest(ctx, s.db, a.TestID)
	if err != nil {
		return Attempt{}, err
	}

	answered, err := s.answersByQuestion(ctx, a.ID)
	if err != nil {
		return Attempt{}, err
	}
	now := s.now()

	// All blank synthesis plus the finalization is one transaction.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()
	for _, q := range t.Questions {
		if _, ok := answered[q.ID]; ok {
			continue
		}
		if err := insertAnswer(ctx, tx, newAnswer(a.ID, a.UserID, q, nil, now)); err != nil {
			return Attempt{}, err
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE attempts SET ended_at=$1, current_index=$2 WHERE id=$3 AND ended_at IS NULL`,
		now, len(t.Questions), a.ID); err != nil {
		return Attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}
	a.EndedAt = &now
	a.CurrentIndex = len(t.Questions)
	return a, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	where := []string{}
	args := []any{}
	if opts.TestID != "" {
		args = append(args, opts.TestID)
		where = append(where, fmt.Sprintf("a.test_id=$%d", len(args)))
	}
	if opts.UserID != "" {
		args = append(args, opts.UserID)
		where = append(where, fmt.Sprintf("a.user_id=$%d", len(args)))
	}
	if opts.GroupID != "" {
		args = append(args, opts.GroupID)
		where = append(where, fmt.Sprintf("a.user_id IN (SELECT ug.user_id FROM user_groups ug WHERE ug.group_id=$%d)", len(args)))
	}
	if opts.Open != nil {
		if *opts.Open {
			where = append(where, "a.ended_at IS NULL")
		} else {
			where = append(where, "a.ended_at IS NOT NULL")
		}
	}
	query := `SELECT a.id,a.test_id,a.user_id,a.started_at,a.ended_at,a.score,a.correct_count,a.current_index FROM attempts a`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.started_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttemptRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) AttemptAnswers(ctx context.Context, attemptID string) ([]Answer, error) {
	if _, err := s.GetAttempt(ctx, attemptID); err != nil {
		return nil, err
	}
	return s.loadAnswers(ctx, attemptID)
}

// --- grading ---

func (s *SQLStore) ComputeReview(ctx context.Context, attemptID string) (ReviewResult, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return ReviewResult{}, err
	}
	t, err := s.loadTest(ctx, s.db, a.TestID)
	if err != nil {
		return ReviewResult{}, err
	}
	answers, err := s.loadAnswers(ctx, a.ID)
	if err != nil {
		return ReviewResult{}, err
	}
	res, rev := buildReview(t, a, answers)
	// The cache on the attempt row has exactly one writer: this.
	if _, err := s.db.ExecContext(ctx, `UPDATE attempts SET score=$1, correct_count=$2 WHERE id=$3`,
		rev.Percentage.InexactFloat64(), rev.CorrectCount, a.ID); err != nil {
		return ReviewResult{}, err
	}
	return res, nil
}

func (s *SQLStore) ApplyManualGrades(ctx context.Context, attemptID string, decisions map[string]bool, gradedBy string) (ReviewResult, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return ReviewResult{}, err
	}
	t, err := s.loadTest(ctx, s.db, a.TestID)
	if err != nil {
		return ReviewResult{}, err
	}
	answers, err := s.loadAnswers(ctx, a.ID)
	if err != nil {
		return ReviewResult{}, err
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ReviewResult{}, err
	}
	defer tx.Rollback()
	for i := range answers {
		ans := &answers[i]
		correct, ok := decisions[ans.ID]
		if !ok {
			continue
		}
		q, ok := questionByID(t.Questions, ans.QuestionID)
		if !ok {
			continue
		}
		// Unchanged judgments are skipped entirely: no writes, no
		// timestamp churn.
		if !applyDecision(t, q, ans, correct, gradedBy, now) {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE answers SET grade_status=$1, manual_correct=$2, manual_grade=$3, graded_by=$4, graded_at=$5 WHERE id=$6`,
			string(ans.Status), *ans.ManualCorrect, ans.ManualGrade.String(), gradedBy, now, ans.ID); err != nil {
			return ReviewResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return ReviewResult{}, err
	}

	res, rev := buildReview(t, a, answers)
	if _, err := s.db.ExecContext(ctx, `UPDATE attempts SET score=$1, correct_count=$2 WHERE id=$3`,
		rev.Percentage.InexactFloat64(), rev.CorrectCount, a.ID); err != nil {
		return ReviewResult{}, err
	}
	return res, nil
}

func (s *SQLStore) ClearManualGrade(ctx context.Context, answerID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE answers SET grade_status=$1, manual_correct=NULL, manual_grade=NULL, graded_by=NULL, graded_at=NULL WHERE id=$2`,
		string(grading.StatusPending), answerID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- assignments / visibility ---

func (s *SQLStore) AssignTest(ctx context.Context, testID, groupID, assignedBy string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tests WHERE id=$1`, testID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO test_assignments (test_id,group_id,assigned_by,assigned_at) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (test_id,group_id) DO NOTHING`,
		testID, groupID, assignedBy, s.now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) IsTestVisibleTo(ctx context.Context, userID, role, testID string) (bool, error) {
	switch role {
	case "admin":
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tests WHERE id=$1`, testID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return err == nil, err
	case "teacher":
		var creator string
		err := s.db.QueryRowContext(ctx, `SELECT creator_id FROM tests WHERE id=$1`, testID).Scan(&creator)
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		if err != nil {
			return false, err
		}
		return creator == userID, nil
	default:
		var one int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM test_assignments ta JOIN user_groups ug ON ug.group_id=ta.group_id
			 WHERE ta.test_id=$1 AND ug.user_id=$2 LIMIT 1`, testID, userID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
}

// --- loaders / scanners ---

func (s *SQLStore) loadTest(ctx context.Context, q queryer, id string) (Test, error) {
	var t Test
	var pj string
	err := q.QueryRowContext(ctx,
		`SELECT id,name,creator_id,max_duration_sec,max_attempts,allow_backtracking,allow_no_response,policy_json,created_at
		 FROM tests WHERE id=$1`, id).
		Scan(&t.ID, &t.Name, &t.CreatorID, &t.MaxDurationSec, &t.MaxAttempts, &t.AllowBacktracking, &t.AllowNoResponse, &pj, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Test{}, ErrNotFound
	}
	if err != nil {
		return Test{}, err
	}
	if err := json.Unmarshal([]byte(pj), &t.Policy); err != nil {
		// Malformed stored policy degrades to all-zero scoring.
		t.Policy = grading.Policy{PenaltyType: grading.PenaltyNone}
	}

	rows, err := q.QueryContext(ctx,
		`SELECT qn.id,qn.statement_html,qn.image_key,qn.difficulty,qn.response_format,qn.correct_answer
		 FROM questions qn JOIN test_questions tq ON tq.question_id=qn.id
		 WHERE tq.test_id=$1 ORDER BY qn.id`, id)
	if err != nil {
		return Test{}, err
	}
	defer rows.Close()
	byID := map[string]*Question{}
	for rows.Next() {
		qu, err := scanQuestionRows(rows)
		if err != nil {
			return Test{}, err
		}
		t.Questions = append(t.Questions, qu)
	}
	if err := rows.Err(); err != nil {
		return Test{}, err
	}
	for i := range t.Questions {
		byID[t.Questions[i].ID] = &t.Questions[i]
	}
	if len(t.Questions) > 0 {
		if err := s.attachChoicesAndSkills(ctx, q, byID,
			`WHERE c.question_id IN (SELECT question_id FROM test_questions WHERE test_id=$1)`,
			`WHERE qs.question_id IN (SELECT question_id FROM test_questions WHERE test_id=$1)`, id); err != nil {
			return Test{}, err
		}
	}
	return t, nil
}

// attachChoicesAndSkills fills Choices and Skills for every question in
// byID. The where clauses filter the choices (alias c) and question_skills
// (alias qs) scans; empty clauses load everything.
func (s *SQLStore) attachChoicesAndSkills(ctx context.Context, q queryer, byID map[string]*Question, choiceWhere, skillWhere string, args ...any) error {
	cq := `SELECT c.id, c.question_id, c.text_html, c.is_correct FROM choices c ` + choiceWhere + ` ORDER BY c.id`
	rows, err := q.QueryContext(ctx, cq, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var c Choice
		var qid string
		if err := rows.Scan(&c.ID, &qid, &c.TextHTML, &c.IsCorrect); err != nil {
			return err
		}
		if qu, ok := byID[qid]; ok {
			qu.Choices = append(qu.Choices, c)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	sq := `SELECT qs.question_id, sk.name FROM question_skills qs JOIN skills sk ON sk.id=qs.skill_id ` + skillWhere + ` ORDER BY sk.name`
	srows, err := q.QueryContext(ctx, sq, args...)
	if err != nil {
		return err
	}
	defer srows.Close()
	for srows.Next() {
		var qid, name string
		if err := srows.Scan(&qid, &name); err != nil {
			return err
		}
		if qu, ok := byID[qid]; ok {
			qu.Skills = append(qu.Skills, name)
		}
	}
	return srows.Err()
}

func (s *SQLStore) answersByQuestion(ctx context.Context, attemptID string) (map[string]Answer, error) {
	list, err := s.loadAnswers(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Answer, len(list))
	for _, ans := range list {
		out[ans.QuestionID] = ans
	}
	return out, nil
}

func (s *SQLStore) loadAnswers(ctx context.Context, attemptID string) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,attempt_id,question_id,user_id,answer_text,answer_number,answer_choice_id,answered_at,
			grade_status,manual_correct,manual_grade,graded_by,graded_at
		 FROM answers WHERE attempt_id=$1 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Answer{}
	for rows.Next() {
		var ans Answer
		var text, choiceID, manualGrade, gradedBy sql.NullString
		var number, gradedAt sql.NullInt64
		var manualCorrect sql.NullBool
		var status string
		if err := rows.Scan(&ans.ID, &ans.AttemptID, &ans.QuestionID, &ans.UserID, &text, &number, &choiceID,
			&ans.AnsweredAt, &status, &manualCorrect, &manualGrade, &gradedBy, &gradedAt); err != nil {
			return nil, err
		}
		ans.Status = grading.Status(status)
		if text.Valid {
			v := text.String
			ans.Text = &v
		}
		if number.Valid {
			v := number.Int64
			ans.Number = &v
		}
		if choiceID.Valid {
			v := choiceID.String
			ans.ChoiceID = &v
		}
		if manualCorrect.Valid {
			v := manualCorrect.Bool
			ans.ManualCorrect = &v
		}
		if manualGrade.Valid {
			if d, err := decimal.NewFromString(manualGrade.String); err == nil {
				ans.ManualGrade = &d
			}
		}
		if gradedBy.Valid {
			v := gradedBy.String
			ans.GradedBy = &v
		}
		if gradedAt.Valid {
			v := gradedAt.Int64
			ans.GradedAt = &v
		}
		out = append(out, ans)
	}
	return out, rows.Err()
}

func insertAnswer(ctx context.Context, q queryer, ans Answer) error {
	var manualGrade any
	if ans.ManualGrade != nil {
		manualGrade = ans.ManualGrade.String()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO answers (id,attempt_id,question_id,user_id,answer_text,answer_number,answer_choice_id,answered_at,
			grade_status,manual_correct,manual_grade,graded_by,graded_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		ans.ID, ans.AttemptID, ans.QuestionID, ans.UserID, ans.Text, ans.Number, ans.ChoiceID, ans.AnsweredAt,
		string(ans.Status), ans.ManualCorrect, manualGrade, ans.GradedBy, ans.GradedAt)
	return err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanQuestion(row *sql.Row) (Question, error) {
	q, err := scanQuestionRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrNotFound
	}
	return q, err
}

func scanQuestionRows(r rowScanner) (Question, error) {
	var q Question
	var format string
	if err := r.Scan(&q.ID, &q.StatementHTML, &q.ImageKey, &q.Difficulty, &format, &q.CorrectAnswer); err != nil {
		return Question{}, err
	}
	q.Format = ResponseFormat(format)
	return q, nil
}

func scanAttempt(row *sql.Row) (Attempt, error) {
	a, err := scanAttemptRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNotFound
	}
	return a, err
}

func scanAttemptRows(r rowScanner) (Attempt, error) {
	var a Attempt
	var ended sql.NullInt64
	if err := r.Scan(&a.ID, &a.TestID, &a.UserID, &a.StartedAt, &ended, &a.Score, &a.CorrectCount, &a.CurrentIndex); err != nil {
		return Attempt{}, err
	}
	if ended.Valid {
		v := ended.Int64
		a.EndedAt = &v
	}
	return a, nil
}
