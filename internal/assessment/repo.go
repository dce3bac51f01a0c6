package assessment

import (
	"context"
	"time"
)

type TestListOpts struct {
	Q          string // title substring
	SubjectID  string
	Published  *bool
	Limit      int
	Offset     int
	ViewerRole string // "student" | "instructor" | "admin"
}

type AttemptListOpts struct {
	TestID    string
	StudentID string
	Status    string // started|in_progress|submitted|graded|abandoned
	Passed    *bool
	Limit     int
	Offset    int
	Sort      string // started_at|submitted_at (desc)
}

// TestUpdate carries optional mutations; nil fields are left untouched.
// Derived fields (max_score, question_count) are not settable.
type TestUpdate struct {
	Title              *string  `json:"title,omitempty"`
	Description        *string  `json:"description,omitempty"`
	SubjectID          *string  `json:"subject_id,omitempty"`
	GroupID            *string  `json:"group_id,omitempty"`
	DurationMin        *int     `json:"duration_min,omitempty"`
	PassingScore       *float64 `json:"passing_score,omitempty"`
	RandomizeQuestions *bool    `json:"randomize_questions,omitempty"`
	RandomizeAnswers   *bool    `json:"randomize_answers,omitempty"`
	ShowCorrectAnswers *bool    `json:"show_correct_answers,omitempty"`
	AttemptLimit       *int     `json:"attempt_limit,omitempty"`
	AllowReview        *bool    `json:"allow_review,omitempty"`
	StartAt            *int64   `json:"start_at,omitempty"`
	EndAt              *int64   `json:"end_at,omitempty"`
	Position           *int     `json:"position,omitempty"`
}

type QuestionUpdate struct {
	Text          *string  `json:"text,omitempty"`
	Points        *float64 `json:"points,omitempty"`
	Required      *bool    `json:"required,omitempty"`
	AllowMultiple *bool    `json:"allow_multiple,omitempty"`
	CorrectBool   *bool    `json:"correct_bool,omitempty"`
	CorrectText   *string  `json:"correct_text,omitempty"`
	CaseSensitive *bool    `json:"case_sensitive,omitempty"`
	WordLimit     *int     `json:"word_limit,omitempty"`
	Explanation   *string  `json:"explanation,omitempty"`
	ImageKey      *string  `json:"image_key,omitempty"`
}

type OptionUpdate struct {
	Text      *string `json:"text,omitempty"`
	ImageKey  *string `json:"image_key,omitempty"`
	Position  *int    `json:"position,omitempty"`
	IsCorrect *bool   `json:"is_correct,omitempty"`
}

// ManualGradeInput is one instructor-assigned score for a student answer.
type ManualGradeInput struct {
	PointsEarned float64 `json:"points_earned"`
	Feedback     string  `json:"feedback,omitempty"`
}

// StartAttemptInput captures the client metadata stamped onto an attempt.
type StartAttemptInput struct {
	TestID    string
	StudentID string
	IPAddress string
	UserAgent string
}

type Store interface {
	// Test catalog
	CreateTest(ctx context.Context, t Test) (Test, error)
	GetTest(ctx context.Context, id string, includeKeys bool) (Test, error)
	UpdateTest(ctx context.Context, id string, upd TestUpdate) (Test, error)
	DeleteTest(ctx context.Context, id string) error
	DuplicateTest(ctx context.Context, id, ownerID string) (Test, error)
	PublishTest(ctx context.Context, id string) (Test, error)
	UnpublishTest(ctx context.Context, id string) (Test, error)
	ListTests(ctx context.Context, opts TestListOpts) ([]TestSummary, error)

	// Question bank. Child mutations are scoped by testID: a question or
	// option reached through a test it does not belong to is not found.
	AddQuestion(ctx context.Context, testID string, q Question) (Question, error)
	UpdateQuestion(ctx context.Context, testID, questionID string, upd QuestionUpdate) (Question, error)
	RemoveQuestion(ctx context.Context, testID, questionID string) error
	DuplicateQuestion(ctx context.Context, testID, questionID string) (Question, error)
	ReorderQuestions(ctx context.Context, testID string, orderedIDs []string) error
	AddOption(ctx context.Context, testID, questionID string, o AnswerOption) (AnswerOption, error)
	UpdateOption(ctx context.Context, testID, optionID string, upd OptionUpdate) (AnswerOption, error)
	RemoveOption(ctx context.Context, testID, optionID string) error

	// Attempt lifecycle + answer recorder
	StartAttempt(ctx context.Context, in StartAttemptInput) (Attempt, error)
	RecordAnswer(ctx context.Context, attemptID, questionID string, in AnswerInput) (StudentAnswer, error)
	SubmitAttempt(ctx context.Context, attemptID string) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)

	// Grading reconciler
	ApplyManualGrades(ctx context.Context, attemptID string, items map[string]ManualGradeInput, overallFeedback, gradedBy string) (Attempt, error)

	// Abandonment sweep; returns the number of attempts newly abandoned.
	SweepAbandoned(ctx context.Context, now time.Time) (int, error)
}

// Sink receives fire-and-forget domain events. Implementations must be safe
// to call after the owning transaction commits; errors are logged by the
// caller and never surfaced as operation failures.
type Sink interface {
	TestPublished(ctx context.Context, testID string)
	AttemptGraded(ctx context.Context, attemptID, testID, studentID string)
}
