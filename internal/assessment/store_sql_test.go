package assessment

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/campuscore/campuscore-sis/internal/db"
)

// fakeSink records emitted events for assertions.
type fakeSink struct {
	mu        sync.Mutex
	published []string
	graded    []string
}

func (f *fakeSink) TestPublished(_ context.Context, testID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, testID)
}

func (f *fakeSink) AttemptGraded(_ context.Context, attemptID, _, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.graded = append(f.graded, attemptID)
}

func newTestStore(t *testing.T, opts ...StoreOption) *SQLStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?cache=shared&_pragma=busy_timeout(5000)"
	dbh, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	dbh.SetMaxOpenConns(1)
	t.Cleanup(func() { dbh.Close() })
	if err := db.EnsureSchema(context.Background(), dbh, db.DriverSQLite); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return NewSQLStore(dbh, "sqlite", opts...)
}

func fp(f float64) *float64 { return &f }
func bp(b bool) *bool       { return &b }

// seedTest creates a test with one multiple_choice (2 pts, options A correct
// and B), one true_false (3 pts, key true) and one short_answer (5 pts, key
// "osmosis") question, returning the reloaded test with keys.
func seedTest(t *testing.T, s *SQLStore, mutate func(*Test)) Test {
	t.Helper()
	ctx := context.Background()
	nt := Test{Title: "Biology Midterm", OwnerID: "instr-1", PassingScore: fp(60)}
	if mutate != nil {
		mutate(&nt)
	}
	created, err := s.CreateTest(ctx, nt)
	if err != nil {
		t.Fatalf("create test: %v", err)
	}
	_, err = s.AddQuestion(ctx, created.ID, Question{
		Text: "Which organelle makes ATP?", Type: QuestionMultipleChoice, Points: 2,
		Options: []AnswerOption{
			{Text: "Mitochondria", IsCorrect: true},
			{Text: "Ribosome"},
		},
	})
	if err != nil {
		t.Fatalf("add mc question: %v", err)
	}
	_, err = s.AddQuestion(ctx, created.ID, Question{
		Text: "Plants photosynthesize.", Type: QuestionTrueFalse, Points: 3, CorrectBool: bp(true),
	})
	if err != nil {
		t.Fatalf("add tf question: %v", err)
	}
	_, err = s.AddQuestion(ctx, created.ID, Question{
		Text: "Water crossing a membrane is called?", Type: QuestionShortAnswer, Points: 5,
		CorrectText: "osmosis",
	})
	if err != nil {
		t.Fatalf("add sa question: %v", err)
	}
	out, err := s.GetTest(ctx, created.ID, true)
	if err != nil {
		t.Fatalf("reload test: %v", err)
	}
	return out
}

func publish(t *testing.T, s *SQLStore, id string) {
	t.Helper()
	if _, err := s.PublishTest(context.Background(), id); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

// startAndAnswer opens an attempt and records correct answers for the three
// seeded questions, returning the attempt.
func startAndAnswer(t *testing.T, s *SQLStore, tt Test, studentID string) Attempt {
	t.Helper()
	ctx := context.Background()
	a, err := s.StartAttempt(ctx, StartAttemptInput{TestID: tt.ID, StudentID: studentID})
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	mc, tf, sa := tt.Questions[0], tt.Questions[1], tt.Questions[2]
	if _, err := s.RecordAnswer(ctx, a.ID, mc.ID, AnswerInput{SelectedOptionIDs: []string{mc.Options[0].ID}}); err != nil {
		t.Fatalf("record mc: %v", err)
	}
	if _, err := s.RecordAnswer(ctx, a.ID, tf.ID, AnswerInput{BoolResponse: bp(true)}); err != nil {
		t.Fatalf("record tf: %v", err)
	}
	text := "Osmosis"
	if _, err := s.RecordAnswer(ctx, a.ID, sa.ID, AnswerInput{TextResponse: &text}); err != nil {
		t.Fatalf("record sa: %v", err)
	}
	return a
}

func TestAggregatesFollowQuestionSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tt := seedTest(t, s, nil)

	if tt.MaxScore != 10 || tt.QuestionCount != 3 {
		t.Fatalf("aggregates = (%v, %d), want (10, 3)", tt.MaxScore, tt.QuestionCount)
	}

	// Changing a question's points moves max_score in the same transaction.
	if _, err := s.UpdateQuestion(ctx, tt.ID, tt.Questions[2].ID, QuestionUpdate{Points: fp(8)}); err != nil {
		t.Fatalf("update question: %v", err)
	}
	got, _ := s.GetTest(ctx, tt.ID, true)
	if got.MaxScore != 13 {
		t.Fatalf("max after update = %v, want 13", got.MaxScore)
	}

	if err := s.RemoveQuestion(ctx, tt.ID, tt.Questions[0].ID); err != nil {
		t.Fatalf("remove question: %v", err)
	}
	got, _ = s.GetTest(ctx, tt.ID, true)
	if got.MaxScore != 11 || got.QuestionCount != 2 {
		t.Fatalf("aggregates after remove = (%v, %d), want (11, 2)", got.MaxScore, got.QuestionCount)
	}
}

func TestPublishRequiresActiveQuestions(t *testing.T) {
	sink := &fakeSink{}
	s := newTestStore(t, WithSink(sink))
	ctx := context.Background()

	created, err := s.CreateTest(ctx, Test{Title: "Empty", OwnerID: "instr-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.PublishTest(ctx, created.ID); KindOf(err) != KindInvalidState {
		t.Fatalf("publish empty test: err = %v, want invalid_state", err)
	}

	if _, err := s.AddQuestion(ctx, created.ID, Question{
		Text: "T or F", Type: QuestionTrueFalse, Points: 1, CorrectBool: bp(false),
	}); err != nil {
		t.Fatalf("add question: %v", err)
	}
	out, err := s.PublishTest(ctx, created.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !out.Published || out.PublishedAt == nil {
		t.Fatalf("publish did not stick: %+v", out)
	}
	if len(sink.published) != 1 || sink.published[0] != created.ID {
		t.Fatalf("published events = %v", sink.published)
	}

	// Unpublish keeps the audit timestamp.
	un, err := s.UnpublishTest(ctx, created.ID)
	if err != nil {
		t.Fatalf("unpublish: %v", err)
	}
	if un.Published {
		t.Fatal("still published")
	}
	reloaded, _ := s.GetTest(ctx, created.ID, true)
	if reloaded.PublishedAt == nil {
		t.Fatal("published_at lost on unpublish")
	}
}

func TestStudentReadsExcludeAnswerKeys(t *testing.T) {
	s := newTestStore(t)
	tt := seedTest(t, s, nil)

	safe, err := s.GetTest(context.Background(), tt.ID, false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for _, q := range safe.Questions {
		if q.CorrectBool != nil || q.CorrectText != "" || q.Explanation != "" {
			t.Fatalf("answer key leaked on question %s", q.ID)
		}
		for _, o := range q.Options {
			if o.IsCorrect {
				t.Fatalf("option correctness leaked on %s", o.ID)
			}
		}
	}
}

func TestStartAttemptGuards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tt := seedTest(t, s, nil)

	// Unpublished tests cannot be attempted.
	if _, err := s.StartAttempt(ctx, StartAttemptInput{TestID: tt.ID, StudentID: "stu-1"}); KindOf(err) != KindInvalidState {
		t.Fatalf("unpublished start: err = %v, want invalid_state", err)
	}
	publish(t, s, tt.ID)

	a, err := s.StartAttempt(ctx, StartAttemptInput{TestID: tt.ID, StudentID: "stu-1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if a.AttemptNumber != 1 || a.Status != AttemptStarted {
		t.Fatalf("attempt = %+v", a)
	}

	// Default limit is one attempt.
	if _, err := s.StartAttempt(ctx, StartAttemptInput{TestID: tt.ID, StudentID: "stu-1"}); KindOf(err) != KindLimitExceeded {
		t.Fatalf("second start: err = %v, want limit_exceeded", err)
	}

	// A different student is unaffected.
	if _, err := s.StartAttempt(ctx, StartAttemptInput{TestID: tt.ID, StudentID: "stu-2"}); err != nil {
		t.Fatalf("other student start: %v", err)
	}
}

func TestStartAttemptWindow(t *testing.T) {
	now := time.Now()
	s := newTestStore(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	past := now.Add(-2 * time.Hour).Unix()
	closed := now.Add(-time.Hour).Unix()
	tt := seedTest(t, s, func(n *Test) {
		n.StartAt = &past
		n.EndAt = &closed
	})
	publish(t, s, tt.ID)

	if _, err := s.StartAttempt(ctx, StartAttemptInput{TestID: tt.ID, StudentID: "stu-1"}); KindOf(err) != KindLimitExceeded {
		t.Fatalf("closed window start: err = %v, want limit_exceeded", err)
	}
}

func TestConcurrentStartsSingleWinner(t *testing.T) {
	s := newTestStore(t)
	tt := seedTest(t, s, nil)
	publish(t, s, tt.ID)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.StartAttempt(context.Background(), StartAttemptInput{TestID: tt.ID, StudentID: "stu-1"})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case KindOf(err) == KindLimitExceeded || KindOf(err) == KindConflict:
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
}

func TestRecordAnswerValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tt := seedTest(t, s, nil)
	publish(t, s, tt.ID)
	a, err := s.StartAttempt(ctx, StartAttemptInput{TestID: tt.ID, StudentID: "stu-1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	mc, tf := tt.Questions[0], tt.Questions[1]

	// Wrong shape for the question type.
	if _, err := s.RecordAnswer(ctx, a.ID, mc.ID, AnswerInput{BoolResponse: bp(true)}); KindOf(err) != KindValidation {
		t.Fatalf("mc with bool: err = %v, want validation", err)
	}
	// Option from another question.
	if _, err := s.RecordAnswer(ctx, a.ID, mc.ID, AnswerInput{SelectedOptionIDs: []string{"nope"}}); KindOf(err) != KindValidation {
		t.Fatalf("foreign option: err = %v, want validation", err)
	}
	// Single-select question with two selections.
	if _, err := s.RecordAnswer(ctx, a.ID, mc.ID, AnswerInput{
		SelectedOptionIDs: []string{mc.Options[0].ID, mc.Options[1].ID},
	}); KindOf(err) != KindValidation {
		t.Fatalf("multi on single: err = %v, want validation", err)
	}

	// First valid save flips started -> in_progress.
	if _, err := s.RecordAnswer(ctx, a.ID, tf.ID, AnswerInput{BoolResponse: bp(false)}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, _ := s.GetAttempt(ctx, a.ID)
	if got.Status != AttemptInProgress {
		t.Fatalf("status = %s, want in_progress", got.Status)
	}

	// Re-saving replaces the response in place.
	if _, err := s.RecordAnswer(ctx, a.ID, tf.ID, AnswerInput{BoolResponse: bp(true)}); err != nil {
		t.Fatalf("re-record: %v", err)
	}
	got, _ = s.GetAttempt(ctx, a.ID)
	if len(got.Answers) != 1 || got.Answers[0].BoolResponse == nil || !*got.Answers[0].BoolResponse {
		t.Fatalf("answers = %+v", got.Answers)
	}

	if _, err := s.SubmitAttempt(ctx, a.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.RecordAnswer(ctx, a.ID, tf.ID, AnswerInput{BoolResponse: bp(false)}); KindOf(err) != KindInvalidState {
		t.Fatalf("record after submit: err = %v, want invalid_state", err)
	}
}

func TestSubmitAutoGradesEverything(t *testing.T) {
	sink := &fakeSink{}
	s := newTestStore(t, WithSink(sink))
	ctx := context.Background()
	tt := seedTest(t, s, nil)
	publish(t, s, tt.ID)

	a := startAndAnswer(t, s, tt, "stu-1")
	out, err := s.SubmitAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Status != AttemptGraded {
		t.Fatalf("status = %s, want graded", out.Status)
	}
	if out.TotalScore != 10 || out.MaxScore != 10 || out.Percentage != 100 {
		t.Fatalf("score = %v/%v (%v%%)", out.TotalScore, out.MaxScore, out.Percentage)
	}
	if out.Passed == nil || !*out.Passed || out.Grade != "A" {
		t.Fatalf("passed=%v grade=%q", out.Passed, out.Grade)
	}
	if out.SubmittedAt == nil || out.GradedAt == nil || out.DurationSeconds == nil {
		t.Fatalf("timestamps missing: %+v", out)
	}
	if len(sink.graded) != 1 || sink.graded[0] != a.ID {
		t.Fatalf("graded events = %v", sink.graded)
	}

	// Submitting twice is rejected.
	if _, err := s.SubmitAttempt(ctx, a.ID); KindOf(err) != KindInvalidState {
		t.Fatalf("resubmit: err = %v, want invalid_state", err)
	}
}

func TestSingleChoiceOutcomes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTest(ctx, Test{Title: "One Question", OwnerID: "instr-1", PassingScore: fp(50), AttemptLimit: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	q, err := s.AddQuestion(ctx, created.ID, Question{
		Text: "Pick A", Type: QuestionMultipleChoice, Points: 4,
		Options: []AnswerOption{{Text: "A", IsCorrect: true}, {Text: "B"}},
	})
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	publish(t, s, created.ID)

	submitWith := func(optionID string) Attempt {
		a, err := s.StartAttempt(ctx, StartAttemptInput{TestID: created.ID, StudentID: "stu-1"})
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := s.RecordAnswer(ctx, a.ID, q.ID, AnswerInput{SelectedOptionIDs: []string{optionID}}); err != nil {
			t.Fatalf("record: %v", err)
		}
		out, err := s.SubmitAttempt(ctx, a.ID)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		return out
	}

	right := submitWith(q.Options[0].ID)
	if right.TotalScore != 4 || right.Percentage != 100 || right.Passed == nil || !*right.Passed {
		t.Fatalf("correct selection = %+v", right)
	}
	if right.Answers[0].Correct == nil || !*right.Answers[0].Correct {
		t.Fatalf("answer not marked correct: %+v", right.Answers[0])
	}

	wrong := submitWith(q.Options[1].ID)
	if wrong.TotalScore != 0 || wrong.Percentage != 0 || wrong.Passed == nil || *wrong.Passed {
		t.Fatalf("incorrect selection = %+v", wrong)
	}
}

func TestSubmitWithBlankQuestionScoresZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tt := seedTest(t, s, nil)
	publish(t, s, tt.ID)

	a, err := s.StartAttempt(ctx, StartAttemptInput{TestID: tt.ID, StudentID: "stu-1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// Answer only the true_false; leave the rest blank.
	if _, err := s.RecordAnswer(ctx, a.ID, tt.Questions[1].ID, AnswerInput{BoolResponse: bp(true)}); err != nil {
		t.Fatalf("record: %v", err)
	}
	out, err := s.SubmitAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.TotalScore != 3 {
		t.Fatalf("total = %v, want 3", out.TotalScore)
	}
	// Blank questions still get an answer row for review.
	if len(out.Answers) != 3 {
		t.Fatalf("answer rows = %d, want 3", len(out.Answers))
	}
	if out.Passed == nil || *out.Passed {
		t.Fatalf("passed = %v, want false at 30%%", out.Passed)
	}
}

func TestEssayParksSubmittedUntilReconciled(t *testing.T) {
	sink := &fakeSink{}
	s := newTestStore(t, WithSink(sink))
	ctx := context.Background()
	tt := seedTest(t, s, nil)

	essay, err := s.AddQuestion(ctx, tt.ID, Question{
		Text: "Explain cellular respiration.", Type: QuestionEssay, Points: 10,
	})
	if err != nil {
		t.Fatalf("add essay: %v", err)
	}
	publish(t, s, tt.ID)
	tt, _ = s.GetTest(ctx, tt.ID, true)

	a := startAndAnswer(t, s, tt, "stu-1")
	text := "It converts glucose into ATP."
	if _, err := s.RecordAnswer(ctx, a.ID, essay.ID, AnswerInput{TextResponse: &text}); err != nil {
		t.Fatalf("record essay: %v", err)
	}

	out, err := s.SubmitAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Status != AttemptSubmitted {
		t.Fatalf("status = %s, want submitted while essay pending", out.Status)
	}
	if out.GradedAt != nil {
		t.Fatal("graded_at must stay unset while pending")
	}
	// Auto-gradable portion is already scored.
	if out.AutoScore != 10 {
		t.Fatalf("auto = %v, want 10", out.AutoScore)
	}
	if len(sink.graded) != 0 {
		t.Fatalf("graded fired early: %v", sink.graded)
	}

	// Out-of-range manual score is rejected.
	_, err = s.ApplyManualGrades(ctx, a.ID, map[string]ManualGradeInput{
		essay.ID: {PointsEarned: 11},
	}, "", "instr-1")
	if KindOf(err) != KindValidation {
		t.Fatalf("overmax grade: err = %v, want validation", err)
	}

	// Unknown question is rejected.
	_, err = s.ApplyManualGrades(ctx, a.ID, map[string]ManualGradeInput{
		"missing": {PointsEarned: 1},
	}, "", "instr-1")
	if KindOf(err) != KindNotFound {
		t.Fatalf("missing question: err = %v, want not_found", err)
	}

	graded, err := s.ApplyManualGrades(ctx, a.ID, map[string]ManualGradeInput{
		essay.ID: {PointsEarned: 7, Feedback: "solid"},
	}, "good work", "instr-1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if graded.Status != AttemptGraded {
		t.Fatalf("status = %s, want graded", graded.Status)
	}
	if graded.ManualScore != 7 || graded.TotalScore != 17 || graded.MaxScore != 20 {
		t.Fatalf("totals = %+v", graded)
	}
	if graded.Percentage != 85 || graded.Grade != "B" {
		t.Fatalf("pct=%v grade=%q", graded.Percentage, graded.Grade)
	}
	if graded.Feedback != "good work" {
		t.Fatalf("feedback = %q", graded.Feedback)
	}
	if len(sink.graded) != 1 {
		t.Fatalf("graded events = %v", sink.graded)
	}

	// Re-applying the same grades yields the same totals.
	again, err := s.ApplyManualGrades(ctx, a.ID, map[string]ManualGradeInput{
		essay.ID: {PointsEarned: 7},
	}, "", "instr-1")
	if err != nil {
		t.Fatalf("re-reconcile: %v", err)
	}
	if again.TotalScore != 17 || again.Percentage != 85 {
		t.Fatalf("reconcile not idempotent: %+v", again)
	}
}

func TestManualGradesRequireSubmission(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tt := seedTest(t, s, nil)
	publish(t, s, tt.ID)
	a := startAndAnswer(t, s, tt, "stu-1")

	_, err := s.ApplyManualGrades(ctx, a.ID, map[string]ManualGradeInput{
		tt.Questions[0].ID: {PointsEarned: 1},
	}, "", "instr-1")
	if KindOf(err) != KindInvalidState {
		t.Fatalf("grade open attempt: err = %v, want invalid_state", err)
	}
}

func TestDeleteTestWithSubmissionsConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tt := seedTest(t, s, nil)
	publish(t, s, tt.ID)
	a := startAndAnswer(t, s, tt, "stu-1")
	if _, err := s.SubmitAttempt(ctx, a.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := s.DeleteTest(ctx, tt.ID); KindOf(err) != KindConflict {
		t.Fatalf("delete with submissions: err = %v, want conflict", err)
	}

	// A test with no submissions soft-deletes fine.
	other := seedTest(t, s, func(n *Test) { n.Title = "Quiz" })
	if err := s.DeleteTest(ctx, other.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetTest(ctx, other.ID, true); KindOf(err) != KindNotFound {
		t.Fatalf("deleted test still readable: err = %v", err)
	}
}

func TestDuplicateTestDeepCopies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tt := seedTest(t, s, nil)
	publish(t, s, tt.ID)

	cp, err := s.DuplicateTest(ctx, tt.ID, "instr-2")
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if cp.ID == tt.ID {
		t.Fatal("copy shares id with source")
	}
	if cp.Title != "Biology Midterm (copy)" || cp.OwnerID != "instr-2" {
		t.Fatalf("copy = %+v", cp)
	}
	if cp.Published || cp.PublishedAt != nil {
		t.Fatal("copy must start unpublished")
	}
	if cp.MaxScore != tt.MaxScore || cp.QuestionCount != tt.QuestionCount {
		t.Fatalf("copy aggregates = (%v, %d)", cp.MaxScore, cp.QuestionCount)
	}

	full, _ := s.GetTest(ctx, cp.ID, true)
	if len(full.Questions) != 3 {
		t.Fatalf("copied questions = %d", len(full.Questions))
	}
	for i, q := range full.Questions {
		if q.ID == tt.Questions[i].ID {
			t.Fatalf("question %d shares id with source", i)
		}
	}
	// Option correctness survives the copy.
	if got := full.Questions[0].CorrectOptionIDs(); len(got) != 1 {
		t.Fatalf("copied correct options = %v", got)
	}
}

func TestReorderQuestionsFullListOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tt := seedTest(t, s, nil)
	q0, q1, q2 := tt.Questions[0].ID, tt.Questions[1].ID, tt.Questions[2].ID

	if err := s.ReorderQuestions(ctx, tt.ID, []string{q2, q0, q1}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	got, _ := s.GetTest(ctx, tt.ID, true)
	if got.Questions[0].ID != q2 || got.Questions[1].ID != q0 || got.Questions[2].ID != q1 {
		t.Fatalf("order = %v %v %v", got.Questions[0].ID, got.Questions[1].ID, got.Questions[2].ID)
	}

	if err := s.ReorderQuestions(ctx, tt.ID, []string{q0, q1}); KindOf(err) != KindValidation {
		t.Fatalf("partial list: err = %v, want validation", err)
	}
	if err := s.ReorderQuestions(ctx, tt.ID, []string{q0, q1, "foreign"}); KindOf(err) != KindValidation {
		t.Fatalf("foreign id: err = %v, want validation", err)
	}
	if err := s.ReorderQuestions(ctx, tt.ID, []string{q0, q1, q1}); KindOf(err) != KindValidation {
		t.Fatalf("duplicate id: err = %v, want validation", err)
	}
}

func TestListTestsStudentSeesPublishedOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	published := seedTest(t, s, nil)
	publish(t, s, published.ID)
	seedTest(t, s, func(n *Test) { n.Title = "Draft Quiz" })

	all, err := s.ListTests(ctx, TestListOpts{ViewerRole: "instructor"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("instructor sees %d, want 2", len(all))
	}

	visible, err := s.ListTests(ctx, TestListOpts{ViewerRole: "student"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != published.ID {
		t.Fatalf("student sees %v", visible)
	}
}

func TestSweepAbandonedIsIdempotent(t *testing.T) {
	base := time.Now()
	s := newTestStore(t, WithClock(func() time.Time { return base }))
	ctx := context.Background()

	dur := 30
	tt := seedTest(t, s, func(n *Test) { n.DurationMin = &dur })
	publish(t, s, tt.ID)
	a, err := s.StartAttempt(ctx, StartAttemptInput{TestID: tt.ID, StudentID: "stu-1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Before the budget elapses nothing is swept.
	n, err := s.SweepAbandoned(ctx, base.Add(10*time.Minute))
	if err != nil || n != 0 {
		t.Fatalf("early sweep = (%d, %v), want (0, nil)", n, err)
	}

	n, err = s.SweepAbandoned(ctx, base.Add(31*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("sweep = (%d, %v), want (1, nil)", n, err)
	}
	got, _ := s.GetAttempt(ctx, a.ID)
	if got.Status != AttemptAbandoned {
		t.Fatalf("status = %s, want abandoned", got.Status)
	}

	// Re-sweeping the same window touches nothing.
	n, err = s.SweepAbandoned(ctx, base.Add(32*time.Minute))
	if err != nil || n != 0 {
		t.Fatalf("re-sweep = (%d, %v), want (0, nil)", n, err)
	}

	// Abandoned attempts reject further activity.
	if _, err := s.SubmitAttempt(ctx, a.ID); KindOf(err) != KindInvalidState {
		t.Fatalf("submit abandoned: err = %v, want invalid_state", err)
	}
}

func TestAddOptionOnlyOnMultipleChoice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tt := seedTest(t, s, nil)

	if _, err := s.AddOption(ctx, tt.ID, tt.Questions[1].ID, AnswerOption{Text: "Maybe"}); KindOf(err) != KindInvalidState {
		t.Fatalf("option on true_false: err = %v, want invalid_state", err)
	}
	o, err := s.AddOption(ctx, tt.ID, tt.Questions[0].ID, AnswerOption{Text: "Chloroplast"})
	if err != nil {
		t.Fatalf("add option: %v", err)
	}
	if o.Position != 2 {
		t.Fatalf("position = %d, want 2", o.Position)
	}
}

func TestQuestionMutationsScopedToTest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	victim := seedTest(t, s, nil)
	other, err := s.CreateTest(ctx, Test{Title: "Chemistry Quiz", OwnerID: "instr-2"})
	if err != nil {
		t.Fatalf("create second test: %v", err)
	}

	q := victim.Questions[0]
	opt := q.Options[0]
	defaced := "defaced"

	if _, err := s.UpdateQuestion(ctx, other.ID, q.ID, QuestionUpdate{Text: &defaced, Points: fp(0)}); KindOf(err) != KindNotFound {
		t.Fatalf("update via foreign test: err = %v, want not_found", err)
	}
	if err := s.RemoveQuestion(ctx, other.ID, q.ID); KindOf(err) != KindNotFound {
		t.Fatalf("remove via foreign test: err = %v, want not_found", err)
	}
	if _, err := s.DuplicateQuestion(ctx, other.ID, q.ID); KindOf(err) != KindNotFound {
		t.Fatalf("duplicate via foreign test: err = %v, want not_found", err)
	}
	if _, err := s.AddOption(ctx, other.ID, q.ID, AnswerOption{Text: "Nucleus"}); KindOf(err) != KindNotFound {
		t.Fatalf("add option via foreign test: err = %v, want not_found", err)
	}
	if _, err := s.UpdateOption(ctx, other.ID, opt.ID, OptionUpdate{Text: &defaced}); KindOf(err) != KindNotFound {
		t.Fatalf("update option via foreign test: err = %v, want not_found", err)
	}
	if err := s.RemoveOption(ctx, other.ID, opt.ID); KindOf(err) != KindNotFound {
		t.Fatalf("remove option via foreign test: err = %v, want not_found", err)
	}

	reloaded, err := s.GetTest(ctx, victim.ID, true)
	if err != nil {
		t.Fatalf("reload victim: %v", err)
	}
	if got := reloaded.Questions[0]; got.Text != q.Text || got.Points != q.Points {
		t.Fatalf("question mutated through foreign test: (%q, %v)", got.Text, got.Points)
	}
	if reloaded.MaxScore != victim.MaxScore || reloaded.QuestionCount != victim.QuestionCount {
		t.Fatalf("aggregates moved: (%v, %d)", reloaded.MaxScore, reloaded.QuestionCount)
	}
	if len(reloaded.Questions[0].Options) != len(q.Options) {
		t.Fatalf("options = %d, want %d", len(reloaded.Questions[0].Options), len(q.Options))
	}
}

func TestDuplicateAnswerRowIsUniqueViolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tt := seedTest(t, s, nil)
	publish(t, s, tt.ID)
	a := startAndAnswer(t, s, tt, "stud-1")

	// A second row for the same (attempt, question) pair loses on the table's
	// uniqueness constraint; RecordAnswer maps that loss to a conflict.
	_, err := s.db.ExecContext(ctx, `INSERT INTO student_answers
		(id, attempt_id, question_id, text_response, points_possible, answered_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		"dup-row", a.ID, tt.Questions[0].ID, "", 2.0, s.nowUnix())
	if err == nil {
		t.Fatal("duplicate (attempt, question) insert succeeded")
	}
	if !isUniqueViolation(err) {
		t.Fatalf("isUniqueViolation(%v) = false", err)
	}
}

func TestNewQuestionPositionFollowsHighestSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tt := seedTest(t, s, nil)

	if err := s.RemoveQuestion(ctx, tt.ID, tt.Questions[0].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	// Surviving questions keep sort_order 1 and 2; the next slot must not
	// collide with them.
	q, err := s.AddQuestion(ctx, tt.ID, Question{
		Text: "Define diffusion.", Type: QuestionShortAnswer, Points: 4, CorrectText: "diffusion",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if q.Position != 3 {
		t.Fatalf("position = %d, want 3", q.Position)
	}
	dup, err := s.DuplicateQuestion(ctx, tt.ID, tt.Questions[1].ID)
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if dup.Position != 4 {
		t.Fatalf("duplicate position = %d, want 4", dup.Position)
	}
}
