package assessment

// QuestionType is the closed set of supported question variants. The
// scoring engine dispatches on this tag; fields irrelevant to a question's
// type are ignored even when populated.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionShortAnswer, QuestionEssay:
		return true
	}
	return false
}

// AutoGradable reports whether correctness can be decided by comparison
// against the stored key. Essay always requires an instructor.
func (t QuestionType) AutoGradable() bool { return t != QuestionEssay }

type AttemptStatus string

const (
	AttemptStarted    AttemptStatus = "started"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// Open reports whether answers may still be recorded.
func (s AttemptStatus) Open() bool {
	return s == AttemptStarted || s == AttemptInProgress
}

// Terminal statuses never transition again, except graded which may be
// re-entered by re-grading.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptGraded || s == AttemptAbandoned
}

type Test struct {
	ID          string `json:"id"`
	SubjectID   string `json:"subject_id,omitempty"`
	OwnerID     string `json:"owner_id"`
	GroupID     string `json:"group_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	DurationMin  *int     `json:"duration_min,omitempty"`  // nil = untimed
	PassingScore *float64 `json:"passing_score,omitempty"` // percentage threshold

	// Derived from the active question set; never written independently.
	MaxScore      float64 `json:"max_score"`
	QuestionCount int     `json:"question_count"`

	RandomizeQuestions bool `json:"randomize_questions"`
	RandomizeAnswers   bool `json:"randomize_answers"`
	ShowCorrectAnswers bool `json:"show_correct_answers"`
	AttemptLimit       int  `json:"attempt_limit"`
	AllowReview        bool `json:"allow_review"`

	StartAt *int64 `json:"start_at,omitempty"` // availability window, unix seconds
	EndAt   *int64 `json:"end_at,omitempty"`

	Published   bool   `json:"published"`
	PublishedAt *int64 `json:"published_at,omitempty"`

	Position int  `json:"position"`
	Active   bool `json:"active"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`

	Questions []Question `json:"questions,omitempty"`
}

type Question struct {
	ID       string       `json:"id"`
	TestID   string       `json:"test_id"`
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Points   float64      `json:"points"`
	Position int          `json:"position"`
	Required bool         `json:"required"`

	// multiple_choice
	AllowMultiple bool           `json:"allow_multiple,omitempty"`
	Options       []AnswerOption `json:"options,omitempty"`

	// true_false
	CorrectBool *bool `json:"correct_bool,omitempty"`

	// short_answer
	CorrectText   string `json:"correct_text,omitempty"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`

	// essay
	WordLimit *int `json:"word_limit,omitempty"`

	Explanation string `json:"explanation,omitempty"`
	ImageKey    string `json:"image_key,omitempty"`
	Active      bool   `json:"active"`
}

// CorrectOptionIDs is the correct-answer set for a multiple_choice question,
// derived from the active options marked correct.
func (q Question) CorrectOptionIDs() []string {
	var out []string
	for _, o := range q.Options {
		if o.Active && o.IsCorrect {
			out = append(out, o.ID)
		}
	}
	return out
}

type AnswerOption struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
	ImageKey   string `json:"image_key,omitempty"`
	Position   int    `json:"position"`
	IsCorrect  bool   `json:"is_correct,omitempty"` // stripped on student-safe reads
	Active     bool   `json:"active"`
}

type Attempt struct {
	ID            string        `json:"id"`
	TestID        string        `json:"test_id"`
	StudentID     string        `json:"student_id"`
	AttemptNumber int           `json:"attempt_number"`
	Status        AttemptStatus `json:"status"`

	StartedAt       int64  `json:"started_at"`
	SubmittedAt     *int64 `json:"submitted_at,omitempty"`
	GradedAt        *int64 `json:"graded_at,omitempty"`
	DurationSeconds *int64 `json:"duration_seconds,omitempty"`

	TotalScore  float64 `json:"total_score"`
	AutoScore   float64 `json:"auto_score"`
	ManualScore float64 `json:"manual_score"`
	MaxScore    float64 `json:"max_score"` // snapshot at submission
	Percentage  float64 `json:"percentage"`
	Passed      *bool   `json:"passed,omitempty"` // nil when the test has no passing score
	Grade       string  `json:"grade,omitempty"`

	Feedback  string `json:"feedback,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Answers []StudentAnswer `json:"answers,omitempty"`
}

type StudentAnswer struct {
	ID         string `json:"id"`
	AttemptID  string `json:"attempt_id"`
	QuestionID string `json:"question_id"`

	SelectedOptionIDs []string `json:"selected_option_ids,omitempty"`
	BoolResponse      *bool    `json:"bool_response,omitempty"`
	TextResponse      string   `json:"text_response,omitempty"`

	PointsEarned   *float64 `json:"points_earned,omitempty"` // nil until graded
	PointsPossible float64  `json:"points_possible"`
	Correct        *bool    `json:"correct,omitempty"` // nil until graded / never for essay

	ManuallyGraded bool   `json:"manually_graded"`
	GradedBy       string `json:"graded_by,omitempty"`
	GradedAt       *int64 `json:"graded_at,omitempty"`
	Feedback       string `json:"feedback,omitempty"`

	AnsweredAt int64 `json:"answered_at"`
}

// AnswerInput is the response payload recorded for one question. Exactly the
// field matching the question's type must be set; the recorder rejects
// mismatched shapes.
type AnswerInput struct {
	SelectedOptionIDs []string `json:"selected_option_ids,omitempty"`
	BoolResponse      *bool    `json:"bool_response,omitempty"`
	TextResponse      *string  `json:"text_response,omitempty"`
}

// TestSummary is the list-view projection of a test.
type TestSummary struct {
	ID            string   `json:"id"`
	SubjectID     string   `json:"subject_id,omitempty"`
	OwnerID       string   `json:"owner_id"`
	Title         string   `json:"title"`
	QuestionCount int      `json:"question_count"`
	MaxScore      float64  `json:"max_score"`
	PassingScore  *float64 `json:"passing_score,omitempty"`
	Published     bool     `json:"published"`
	CreatedAt     int64    `json:"created_at"`
}
