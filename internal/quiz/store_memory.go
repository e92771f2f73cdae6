package quiz

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bebras-platform/bebras-lms/internal/grading"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is the non-durable Store used for tests and offline demos.
// The SQL store is the production implementation.
type MemoryStore struct {
	mu          sync.RWMutex
	questions   map[string]Question
	tests       map[string]Test
	attempts    map[string]Attempt
	answers     map[string]Answer            // answer id -> answer
	assignments map[string]map[string]string // test id -> group id -> assigned_by
	memberships map[string][]string          // user id -> group ids

	now func() int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		questions:   map[string]Question{},
		tests:       map[string]Test{},
		attempts:    map[string]Attempt{},
		answers:     map[string]Answer{},
		assignments: map[string]map[string]string{},
		memberships: map[string][]string{},
		now:         func() int64 { return time.Now().Unix() },
	}
}

// AddUserToGroup registers a membership for visibility checks. Test/demo
// helper; the SQL store reads memberships from user_groups.
func (m *MemoryStore) AddUserToGroup(userID, groupID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberships[userID] = append(m.memberships[userID], groupID)
}

func (m *MemoryStore) PutQuestion(_ context.Context, q Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = q
	return nil
}

func (m *MemoryStore) GetQuestion(_ context.Context, id string) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	return q, nil
}

func (m *MemoryStore) ListQuestions(_ context.Context, opts QuestionListOpts) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Question, 0, len(m.questions))
	for _, q := range m.questions {
		if opts.MinDifficulty > 0 && q.Difficulty < opts.MinDifficulty {
			continue
		}
		if len(opts.Skills) > 0 && !hasAnySkill(q.Skills, opts.Skills) {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return window(out, opts.Offset, opts.Limit), nil
}

func (m *MemoryStore) PutTest(_ context.Context, t Test) error {
	if err := t.Policy.Validate(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.MaxAttempts < 1 {
		t.MaxAttempts = 1
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = m.now()
	}
	sortQuestions(t.Questions)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests[t.ID] = t
	return nil
}

func (m *MemoryStore) GetTest(ctx context.Context, id string) (Test, error) {
	t, err := m.GetTestAdmin(ctx, id)
	if err != nil {
		return Test{}, err
	}
	qs := make([]Question, len(t.Questions))
	for i, q := range t.Questions {
		qs[i] = q.stripKeys()
	}
	t.Questions = qs
	return t, nil
}

func (m *MemoryStore) GetTestAdmin(_ context.Context, id string) (Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, ErrNotFound
	}
	return t, nil
}

func (m *MemoryStore) ListTests(ctx context.Context, opts ListOpts) ([]TestSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []TestSummary{}
	for _, t := range m.tests {
		if opts.Q != "" && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(opts.Q)) {
			continue
		}
		if !m.visibleLocked(opts.ViewerID, opts.ViewerRole, t) {
			continue
		}
		out = append(out, TestSummary{
			ID:             t.ID,
			Name:           t.Name,
			CreatorID:      t.CreatorID,
			QuestionCount:  len(t.Questions),
			MaxDurationSec: t.MaxDurationSec,
			MaxAttempts:    t.MaxAttempts,
			CreatedAt:      t.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return window(out, opts.Offset, opts.Limit), nil
}

func (m *MemoryStore) BeginAttempt(_ context.Context, testID, userID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[testID]
	if !ok {
		return Attempt{}, ErrNotFound
	}

	finalized := []Attempt{}
	for _, a := range m.attempts {
		if a.TestID != testID || a.UserID != userID {
			continue
		}
		if !a.Finalized() {
			// Exactly one open attempt per (user, test): resume it.
			return a, nil
		}
		finalized = append(finalized, a)
	}
	if len(finalized) >= t.MaxAttempts {
		// Second-granularity clocks tie; break by start time, then id.
		sort.Slice(finalized, func(i, j int) bool {
			a, b := finalized[i], finalized[j]
			if *a.EndedAt != *b.EndedAt {
				return *a.EndedAt > *b.EndedAt
			}
			if a.StartedAt != b.StartedAt {
				return a.StartedAt > b.StartedAt
			}
			return a.ID > b.ID
		})
		return Attempt{}, &ExhaustedError{LastAttemptID: finalized[0].ID}
	}

	a := Attempt{
		ID:        uuid.NewString(),
		TestID:    testID,
		UserID:    userID,
		StartedAt: m.now(),
	}
	m.attempts[a.ID] = a
	return a, nil
}

func (m *MemoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) CurrentState(_ context.Context, attemptID string) (AttemptState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, t, err := m.attemptAndTestLocked(attemptID)
	if err != nil {
		return AttemptState{}, err
	}
	total := len(t.Questions)
	a.CurrentIndex = clampIndex(a.CurrentIndex, total)

	if a.CurrentIndex >= total && !a.Finalized() {
		// Idempotent finalization when the cursor has walked past the end.
		end := m.now()
		a.EndedAt = &end
	}
	m.attempts[a.ID] = a
	return buildState(t, a, m.answersForAttemptLocked(a.ID)), nil
}

func (m *MemoryStore) SubmitAnswer(_ context.Context, attemptID, raw string) (AttemptState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, t, err := m.attemptAndTestLocked(attemptID)
	if err != nil {
		return AttemptState{}, err
	}
	if a.Finalized() {
		return AttemptState{}, ErrAttemptFinalized
	}
	total := len(t.Questions)
	a.CurrentIndex = clampIndex(a.CurrentIndex, total)
	if a.CurrentIndex >= total {
		end := m.now()
		a.EndedAt = &end
		m.attempts[a.ID] = a
		return buildState(t, a, nil), nil
	}

	q := t.Questions[a.CurrentIndex]
	v, ok := ParseValue(q, raw)
	if !ok && !t.AllowNoResponse {
		return AttemptState{}, ErrAnswerRequired
	}

	// Replace-then-insert for (attempt, question).
	for id, ans := range m.answers {
		if ans.AttemptID == a.ID && ans.QuestionID == q.ID {
			delete(m.answers, id)
		}
	}
	ans := newAnswer(a.ID, a.UserID, q, v, m.now())
	m.answers[ans.ID] = ans

	a.CurrentIndex++
	if a.CurrentIndex >= total {
		end := m.now()
		a.EndedAt = &end
	}
	m.attempts[a.ID] = a
	return buildState(t, a, m.answersForAttemptLocked(a.ID)), nil
}

func (m *MemoryStore) PreviousQuestion(_ context.Context, attemptID string) (AttemptState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, t, err := m.attemptAndTestLocked(attemptID)
	if err != nil {
		return AttemptState{}, err
	}
	if a.Finalized() {
		return AttemptState{}, ErrAttemptFinalized
	}
	if !t.AllowBacktracking {
		return AttemptState{}, ErrBacktrackingDisabled
	}
	if a.CurrentIndex > 0 {
		a.CurrentIndex--
		m.attempts[a.ID] = a
	}
	return buildState(t, a, m.answersForAttemptLocked(a.ID)), nil
}

func (m *MemoryStore) ForceFinish(_ context.Context, attemptID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, t, err := m.attemptAndTestLocked(attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Finalized() {
		return a, nil
	}

	answered := map[string]bool{}
	for _, ans := range m.answers {
		if ans.AttemptID == a.ID {
			answered[ans.QuestionID] = true
		}
	}
	now := m.now()
	for _, q := range t.Questions {
		if answered[q.ID] {
			continue
		}
		blank := newAnswer(a.ID, a.UserID, q, nil, now)
		m.answers[blank.ID] = blank
	}
	a.CurrentIndex = len(t.Questions)
	a.EndedAt = &now
	m.attempts[a.ID] = a
	return a, nil
}

func (m *MemoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if opts.TestID != "" && a.TestID != opts.TestID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.GroupID != "" && !contains(m.memberships[a.UserID], opts.GroupID) {
			continue
		}
		if opts.Open != nil && *opts.Open == a.Finalized() {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	return window(out, opts.Offset, opts.Limit), nil
}

func (m *MemoryStore) AttemptAnswers(_ context.Context, attemptID string) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.attempts[attemptID]; !ok {
		return nil, ErrNotFound
	}
	out := m.answersListLocked(attemptID)
	return out, nil
}

func (m *MemoryStore) ComputeReview(_ context.Context, attemptID string) (ReviewResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, t, err := m.attemptAndTestLocked(attemptID)
	if err != nil {
		return ReviewResult{}, err
	}
	res, rev := buildReview(t, a, m.answersListLocked(a.ID))
	a.Score = rev.Percentage.InexactFloat64()
	a.CorrectCount = rev.CorrectCount
	m.attempts[a.ID] = a
	return res, nil
}

func (m *MemoryStore) ApplyManualGrades(_ context.Context, attemptID string, decisions map[string]bool, gradedBy string) (ReviewResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, t, err := m.attemptAndTestLocked(attemptID)
	if err != nil {
		return ReviewResult{}, err
	}
	now := m.now()
	for answerID, correct := range decisions {
		ans, ok := m.answers[answerID]
		if !ok || ans.AttemptID != a.ID {
			continue
		}
		q, ok := questionByID(t.Questions, ans.QuestionID)
		if !ok {
			continue
		}
		if applyDecision(t, q, &ans, correct, gradedBy, now) {
			m.answers[ans.ID] = ans
		}
	}

	res, rev := buildReview(t, a, m.answersListLocked(a.ID))
	a.Score = rev.Percentage.InexactFloat64()
	a.CorrectCount = rev.CorrectCount
	m.attempts[a.ID] = a
	return res, nil
}

func (m *MemoryStore) ClearManualGrade(_ context.Context, answerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ans, ok := m.answers[answerID]
	if !ok {
		return ErrNotFound
	}
	ans.Status = grading.StatusPending
	ans.ManualCorrect = nil
	ans.ManualGrade = nil
	ans.GradedBy = nil
	ans.GradedAt = nil
	m.answers[answerID] = ans
	return nil
}

func (m *MemoryStore) AssignTest(_ context.Context, testID, groupID, assignedBy string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tests[testID]; !ok {
		return false, ErrNotFound
	}
	byGroup, ok := m.assignments[testID]
	if !ok {
		byGroup = map[string]string{}
		m.assignments[testID] = byGroup
	}
	if _, exists := byGroup[groupID]; exists {
		return false, nil
	}
	byGroup[groupID] = assignedBy
	return true, nil
}

func (m *MemoryStore) IsTestVisibleTo(_ context.Context, userID, role, testID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[testID]
	if !ok {
		return false, ErrNotFound
	}
	return m.visibleLocked(userID, role, t), nil
}

// --- internals ---

func (m *MemoryStore) attemptAndTestLocked(attemptID string) (Attempt, Test, error) {
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, Test{}, ErrNotFound
	}
	t, ok := m.tests[a.TestID]
	if !ok {
		return Attempt{}, Test{}, ErrNotFound
	}
	return a, t, nil
}

func (m *MemoryStore) answersForAttemptLocked(attemptID string) map[string]Answer {
	out := map[string]Answer{}
	for _, ans := range m.answers {
		if ans.AttemptID == attemptID {
			out[ans.QuestionID] = ans
		}
	}
	return out
}

func (m *MemoryStore) answersListLocked(attemptID string) []Answer {
	out := []Answer{}
	for _, ans := range m.answers {
		if ans.AttemptID == attemptID {
			out = append(out, ans)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

func (m *MemoryStore) visibleLocked(userID, role string, t Test) bool {
	switch role {
	case "admin":
		return true
	case "teacher":
		return t.CreatorID == userID
	default:
		for _, g := range m.memberships[userID] {
			if _, ok := m.assignments[t.ID][g]; ok {
				return true
			}
		}
		return false
	}
}

func hasAnySkill(have, want []string) bool {
	for _, w := range want {
		if contains(have, w) {
			return true
		}
	}
	return false
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func window[T any](xs []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(xs) {
			return []T{}
		}
		xs = xs[offset:]
	}
	if limit > 0 && limit < len(xs) {
		xs = xs[:limit]
	}
	return xs
}
