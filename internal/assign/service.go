package assign

import (
	"context"
	"log"

	"github.com/bebras-platform/bebras-lms/internal/notify"
	"github.com/bebras-platform/bebras-lms/internal/quiz"
)

// Directory answers the group questions the assignment flow needs.
type Directory interface {
	GroupName(ctx context.Context, groupID string) (string, error)
	// MemberEmails returns the non-empty addresses of the group's members.
	MemberEmails(ctx context.Context, groupID string) ([]string, error)
}

type Service struct {
	store    quiz.Store
	dir      Directory
	notifier notify.Notifier
}

func NewService(store quiz.Store, dir Directory, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{store: store, dir: dir, notifier: notifier}
}

// Result reports which groups were newly assigned and which already had
// the test. NotifiedGroups counts groups whose members were emailed.
type Result struct {
	TestID         string   `json:"test_id"`
	Assigned       []string `json:"assigned_groups"`
	Already        []string `json:"already_assigned_groups"`
	NotifiedGroups int      `json:"notified_groups"`
}

// Assign links the test to each group, deduplicating repeats, and emails
// the members of newly linked groups. Mail failure never fails the
// assignment.
func (s *Service) Assign(ctx context.Context, testID string, groupIDs []string, assignedBy string) (Result, error) {
	res := Result{TestID: testID, Assigned: []string{}, Already: []string{}}

	t, err := s.store.GetTestAdmin(ctx, testID)
	if err != nil {
		return Result{}, err
	}

	seen := map[string]bool{}
	for _, gid := range groupIDs {
		if gid == "" || seen[gid] {
			continue
		}
		seen[gid] = true

		name, err := s.dir.GroupName(ctx, gid)
		if err != nil {
			return Result{}, err
		}

		added, err := s.store.AssignTest(ctx, testID, gid, assignedBy)
		if err != nil {
			return Result{}, err
		}
		if !added {
			res.Already = append(res.Already, gid)
			continue
		}
		res.Assigned = append(res.Assigned, gid)

		emails, err := s.dir.MemberEmails(ctx, gid)
		if err != nil {
			log.Printf("assign: member lookup for group %s failed: %v", gid, err)
			continue
		}
		if len(emails) == 0 {
			continue
		}
		if err := s.notifier.TestAssigned(ctx, emails, t.Name, name); err != nil {
			notify.LogFailure(err, t.Name, name)
			continue
		}
		res.NotifiedGroups++
	}
	return res, nil
}
