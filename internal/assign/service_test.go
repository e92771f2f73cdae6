package assign

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/bebras-platform/bebras-lms/internal/quiz"
)

type fakeDirectory struct {
	names  map[string]string
	emails map[string][]string
}

func (f *fakeDirectory) GroupName(_ context.Context, id string) (string, error) {
	n, ok := f.names[id]
	if !ok {
		return "", quiz.ErrNotFound
	}
	return n, nil
}

func (f *fakeDirectory) MemberEmails(_ context.Context, id string) ([]string, error) {
	return f.emails[id], nil
}

type recordingNotifier struct {
	sent []string // group names
	err  error
}

func (r *recordingNotifier) TestAssigned(_ context.Context, to []string, _, groupName string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, groupName)
	return nil
}

func newAssignFixture(t *testing.T) (*quiz.MemoryStore, string) {
	t.Helper()
	st := quiz.NewMemoryStore()
	tt := quiz.Test{ID: "t1", Name: "Winter round", CreatorID: "teach-1"}
	if err := st.PutTest(context.Background(), tt); err != nil {
		t.Fatalf("PutTest: %v", err)
	}
	return st, tt.ID
}

func TestAssignDedupesAndNotifies(t *testing.T) {
	st, testID := newAssignFixture(t)
	dir := &fakeDirectory{
		names:  map[string]string{"g1": "7B", "g2": "8A"},
		emails: map[string][]string{"g1": {"ada@example.org"}, "g2": nil},
	}
	n := &recordingNotifier{}
	svc := NewService(st, dir, n)

	res, err := svc.Assign(context.Background(), testID, []string{"g1", "g1", "", "g2"}, "teach-1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !reflect.DeepEqual(res.Assigned, []string{"g1", "g2"}) || len(res.Already) != 0 {
		t.Fatalf("result: %+v", res)
	}
	// g2 has no addresses: only g1 gets mail.
	if res.NotifiedGroups != 1 || !reflect.DeepEqual(n.sent, []string{"7B"}) {
		t.Fatalf("notify: %d %v", res.NotifiedGroups, n.sent)
	}

	// Second run: nothing newly assigned, nothing sent.
	res, err = svc.Assign(context.Background(), testID, []string{"g1", "g2"}, "teach-1")
	if err != nil {
		t.Fatalf("re-assign: %v", err)
	}
	if len(res.Assigned) != 0 || !reflect.DeepEqual(res.Already, []string{"g1", "g2"}) {
		t.Fatalf("re-assign result: %+v", res)
	}
	if len(n.sent) != 1 {
		t.Fatalf("duplicate assignment sent mail: %v", n.sent)
	}
}

func TestAssignMailFailureIsNonFatal(t *testing.T) {
	st, testID := newAssignFixture(t)
	dir := &fakeDirectory{
		names:  map[string]string{"g1": "7B"},
		emails: map[string][]string{"g1": {"ada@example.org"}},
	}
	n := &recordingNotifier{err: errors.New("smtp down")}
	svc := NewService(st, dir, n)

	res, err := svc.Assign(context.Background(), testID, []string{"g1"}, "teach-1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(res.Assigned) != 1 || res.NotifiedGroups != 0 {
		t.Fatalf("result: %+v", res)
	}
	// The link was still made.
	if ok, _ := st.IsTestVisibleTo(context.Background(), "x", "admin", testID); !ok {
		t.Fatal("test missing after assign")
	}
}

func TestAssignUnknownTestOrGroup(t *testing.T) {
	st, testID := newAssignFixture(t)
	dir := &fakeDirectory{names: map[string]string{"g1": "7B"}, emails: map[string][]string{}}
	svc := NewService(st, dir, nil)

	if _, err := svc.Assign(context.Background(), "missing", []string{"g1"}, "teach-1"); !errors.Is(err, quiz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for test, got %v", err)
	}
	if _, err := svc.Assign(context.Background(), testID, []string{"nope"}, "teach-1"); !errors.Is(err, quiz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for group, got %v", err)
	}
}
