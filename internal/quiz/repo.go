package quiz

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrAttemptFinalized     = errors.New("attempt already finalized")
	ErrAttemptsExhausted    = errors.New("attempts exhausted")
	ErrAnswerRequired       = errors.New("an answer is required before continuing")
	ErrBacktrackingDisabled = errors.New("backtracking not allowed")
	ErrNotVisible           = errors.New("test not visible to user")
)

// ExhaustedError carries the most recent finalized attempt so callers can
// redirect to its review. errors.Is(err, ErrAttemptsExhausted) matches it.
type ExhaustedError struct {
	LastAttemptID string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("attempts exhausted (last attempt %s)", e.LastAttemptID)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrAttemptsExhausted }

// AttemptState is what the progression machine reports for one request:
// either a finished marker, or the current question plus enough context to
// render it.
type AttemptState struct {
	AttemptID string `json:"attempt_id"`
	Finished  bool   `json:"finished"`

	Question       *Question `json:"question,omitempty"` // student-safe, keys stripped
	Position       int       `json:"position"`           // zero-based cursor
	Total          int       `json:"total"`
	Answered       bool      `json:"answered"`
	PriorValue     any       `json:"prior_value,omitempty"`
	Backtracking   bool      `json:"backtracking_allowed"`
	MaxDurationSec int       `json:"max_duration_sec,omitempty"`
}

//// QuestionResult is one row of a review: the question, display projections
// of the submitted and canonical answers, the verdict and signed points.
type QuestionResult struct {
	Question      Question `json:"question"`
	UserAnswer    string   `json:"user_answer"`
	CorrectAnswer string   `json:"correct_answer"`
	Verdict       string   `json:"verdict"`
	Points        float64  `json:"points"`
	GradeStatus   string   `json:"grade_status"`
	AnswerID      string   `json:"answer_id"`
}

// ReviewResult is the aggregate of one attempt. RawScore may be negative;
// Percentage is clamped to [0,100].
type ReviewResult struct {
	TestID         string           `json:"test_id"`
	AttemptID      string           `json:"attempt_id"`
	Results        []QuestionResult `json:"question_results"`
	RawScore       float64          `json:"raw_score"`
	MaxScore       float64          `json:"max_score"`
	Percentage     float64          `json:"percentage"`
	CorrectCount   int              `json:"correct_count"`
	TotalQuestions int              `json:"total_questions"`
	PendingCount   int              `json:"pending_count"`
}

type QuestionListOpts struct {
	Skills        []string
	MinDifficulty int
	Limit         int
	Offset        int
}

type ListOpts struct {
	Q          string
	Limit      int
	Offset     int
	ViewerID   string
	ViewerRole string // "student" | "teacher" | "admin"
}

type AttemptListOpts struct {
	TestID  string
	UserID  string
	GroupID string
	Open    *bool // filter on ended_at null / not null
	Limit   int
	Offset  int
}

// Store is the persistence boundary for the question bank, tests, attempt
// progression and grading. BeginAttempt/SubmitAnswer/ForceFinish enforce
// the progression invariants; ComputeReview/ApplyManualGrades run the
// grading engine and are the only writers of the attempt score cache.
type Store interface {
	PutQuestion(ctx context.Context, q Question) error
	GetQuestion(ctx context.Context, id string) (Question, error)
	ListQuestions(ctx context.Context, opts QuestionListOpts) ([]Question, error)

	PutTest(ctx context.Context, t Test) error
	GetTest(ctx context.Context, id string) (Test, error)      // keys stripped
	GetTestAdmin(ctx context.Context, id string) (Test, error) // full
	ListTests(ctx context.Context, opts ListOpts) ([]TestSummary, error)

	// BeginAttempt resumes the open attempt for (user, test) or creates a
	// new one while finalized attempts remain below the test's maximum.
	// When exhausted it returns *ExhaustedError.
	BeginAttempt(ctx context.Context, testID, userID string) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	CurrentState(ctx context.Context, attemptID string) (AttemptState, error)
	SubmitAnswer(ctx context.Context, attemptID, raw string) (AttemptState, error)
	PreviousQuestion(ctx context.Context, attemptID string) (AttemptState, error)
	ForceFinish(ctx context.Context, attemptID string) (Attempt, error)

	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
	AttemptAnswers(ctx context.Context, attemptID string) ([]Answer, error)

	// ComputeReview grades the attempt, persists the score cache and
	// returns per-question results. Idempotent.
	ComputeReview(ctx context.Context, attemptID string) (ReviewResult, error)
	// ApplyManualGrades records changed teacher judgments on pending
	// free-text/numeric answers, then recomputes the whole attempt.
	ApplyManualGrades(ctx context.Context, attemptID string, decisions map[string]bool, gradedBy string) (ReviewResult, error)
	// ClearManualGrade reverts a graded answer to pending. Administrative
	// path only; not exposed on the teacher review surface.
	ClearManualGrade(ctx context.Context, answerID string) error

	// AssignTest links a test to a group; false when already assigned.
	AssignTest(ctx context.Context, testID, groupID, assignedBy string) (bool, error)
	// IsTestVisibleTo implements the visibility predicate: admins see all,
	// teachers their own tests, students tests assigned to their groups.
	IsTestVisibleTo(ctx context.Context, userID, role, testID string) (bool, error)
}
