package assessment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const attemptCols = `id, test_id, student_id, attempt_number, status,
	started_at, submitted_at, graded_at, duration_seconds,
	total_score, auto_score, manual_score, max_score, percentage, passed,
	grade, feedback, ip_address, user_agent`

func scanAttempt(row interface{ Scan(...any) error }) (Attempt, error) {
	var a Attempt
	var submittedAt, gradedAt, duration sql.NullInt64
	var passed sql.NullBool
	err := row.Scan(&a.ID, &a.TestID, &a.StudentID, &a.AttemptNumber, &a.Status,
		&a.StartedAt, &submittedAt, &gradedAt, &duration,
		&a.TotalScore, &a.AutoScore, &a.ManualScore, &a.MaxScore, &a.Percentage, &passed,
		&a.Grade, &a.Feedback, &a.IPAddress, &a.UserAgent)
	if err != nil {
		return Attempt{}, err
	}
	a.SubmittedAt = i64ptr(submittedAt)
	a.GradedAt = i64ptr(gradedAt)
	a.DurationSeconds = i64ptr(duration)
	a.Passed = boolptr(passed)
	return a, nil
}

func loadAttempt(ctx context.Context, qr querier, id string) (Attempt, error) {
	row := qr.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, NotFoundf("attempt %s not found", id)
	}
	return a, err
}

const answerCols = `id, attempt_id, question_id, bool_response, text_response,
	points_earned, points_possible, correct, manually_graded, graded_by,
	graded_at, feedback, answered_at`

func scanAnswer(row interface{ Scan(...any) error }) (StudentAnswer, error) {
	var sa StudentAnswer
	var boolResp, correct sql.NullBool
	var earned sql.NullFloat64
	var gradedAt sql.NullInt64
	err := row.Scan(&sa.ID, &sa.AttemptID, &sa.QuestionID, &boolResp, &sa.TextResponse,
		&earned, &sa.PointsPossible, &correct, &sa.ManuallyGraded, &sa.GradedBy,
		&gradedAt, &sa.Feedback, &sa.AnsweredAt)
	if err != nil {
		return StudentAnswer{}, err
	}
	sa.BoolResponse = boolptr(boolResp)
	sa.PointsEarned = f64ptr(earned)
	sa.Correct = boolptr(correct)
	sa.GradedAt = i64ptr(gradedAt)
	return sa, nil
}

// loadAnswers returns the attempt's answer rows with their ordered option
// selections, keyed by nothing — sorted by answered_at then id.
func loadAnswers(ctx context.Context, qr querier, attemptID string) ([]StudentAnswer, error) {
	rows, err := qr.QueryContext(ctx, `SELECT `+answerCols+` FROM student_answers
		WHERE attempt_id=$1 ORDER BY answered_at, id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StudentAnswer
	for rows.Next() {
		sa, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sa)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		sel, err := loadSelections(ctx, qr, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].SelectedOptionIDs = sel
	}
	return out, nil
}

func loadSelections(ctx context.Context, qr querier, answerID string) ([]string, error) {
	rows, err := qr.QueryContext(ctx,
		`SELECT option_id FROM answer_selections WHERE answer_id=$1 ORDER BY sort_order`, answerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// StartAttempt creates the next sequential attempt for a student. The unique
// (test_id, student_id, attempt_number) constraint is the serialization
// point: the loser of a concurrent start gets a conflict, never a duplicate.
func (s *SQLStore) StartAttempt(ctx context.Context, in StartAttemptInput) (Attempt, error) {
	if in.TestID == "" || in.StudentID == "" {
		return Attempt{}, ValidationFields("invalid attempt", map[string]string{
			"test_id": "required", "student_id": "required",
		})
	}
	var out Attempt
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		t, err := loadActiveTest(ctx, tx, in.TestID)
		if err != nil {
			return err
		}
		if !t.Published {
			return InvalidStatef("test %s is not published", t.ID)
		}
		now := s.now().Unix()
		if t.StartAt != nil && now < *t.StartAt {
			return LimitExceededf("test %s is not yet open", t.ID)
		}
		if t.EndAt != nil && now > *t.EndAt {
			return LimitExceededf("test %s is closed", t.ID)
		}

		var prior int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM attempts WHERE test_id=$1 AND student_id=$2`,
			t.ID, in.StudentID).Scan(&prior); err != nil {
			return err
		}
		if prior >= t.AttemptLimit {
			return LimitExceededf("attempt limit %d reached for test %s", t.AttemptLimit, t.ID)
		}

		a := Attempt{
			ID:            uuid.NewString(),
			TestID:        t.ID,
			StudentID:     in.StudentID,
			AttemptNumber: prior + 1,
			Status:        AttemptStarted,
			StartedAt:     now,
			IPAddress:     in.IPAddress,
			UserAgent:     in.UserAgent,
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO attempts
			(id, test_id, student_id, attempt_number, status, started_at, ip_address, user_agent)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			a.ID, a.TestID, a.StudentID, a.AttemptNumber, a.Status, a.StartedAt,
			a.IPAddress, a.UserAgent)
		if err != nil {
			if isUniqueViolation(err) {
				return Conflictf("concurrent start for test %s attempt %d", t.ID, a.AttemptNumber)
			}
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// RecordAnswer upserts the response slot for (attempt, question), replacing
// any earlier response while the attempt is open. Correctness is not
// computed here; scoring is deferred to submission.
func (s *SQLStore) RecordAnswer(ctx context.Context, attemptID, questionID string, in AnswerInput) (StudentAnswer, error) {
	var out StudentAnswer
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := loadAttempt(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		if !a.Status.Open() {
			return InvalidStatef("attempt %s is %s; answers can no longer be recorded", a.ID, a.Status)
		}
		q, err := loadQuestion(ctx, tx, questionID)
		if err != nil {
			return err
		}
		if q.TestID != a.TestID {
			return NotFoundf("question %s not found", questionID)
		}
		if err := validateAnswerShape(q, in); err != nil {
			return err
		}

		if a.Status == AttemptStarted {
			if _, err := tx.ExecContext(ctx,
				`UPDATE attempts SET status=$1 WHERE id=$2`, AttemptInProgress, a.ID); err != nil {
				return err
			}
		}

		now := s.nowUnix()
		sa := StudentAnswer{
			AttemptID:      a.ID,
			QuestionID:     q.ID,
			PointsPossible: q.Points,
			AnsweredAt:     now,
		}
		if in.SelectedOptionIDs != nil {
			sa.SelectedOptionIDs = in.SelectedOptionIDs
		}
		if in.BoolResponse != nil {
			sa.BoolResponse = in.BoolResponse
		}
		if in.TextResponse != nil {
			sa.TextResponse = *in.TextResponse
		}

		var existingID string
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM student_answers WHERE attempt_id=$1 AND question_id=$2`,
			a.ID, q.ID).Scan(&existingID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			sa.ID = uuid.NewString()
			_, err = tx.ExecContext(ctx, `INSERT INTO student_answers
				(id, attempt_id, question_id, bool_response, text_response,
				 points_possible, answered_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				sa.ID, sa.AttemptID, sa.QuestionID, nullBool(sa.BoolResponse),
				sa.TextResponse, sa.PointsPossible, sa.AnsweredAt)
			if err != nil {
				if isUniqueViolation(err) {
					return Conflictf("concurrent answer for question %s on attempt %s", q.ID, a.ID)
				}
				return err
			}
		case err != nil:
			return err
		default:
			sa.ID = existingID
			// Replacing a response clears any earlier grading state.
			_, err = tx.ExecContext(ctx, `UPDATE student_answers SET bool_response=$1,
				text_response=$2, points_possible=$3, points_earned=NULL, correct=NULL,
				manually_graded=$4, graded_by='', graded_at=NULL, answered_at=$5 WHERE id=$6`,
				nullBool(sa.BoolResponse), sa.TextResponse, sa.PointsPossible,
				false, sa.AnsweredAt, sa.ID)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM answer_selections WHERE answer_id=$1`, sa.ID); err != nil {
				return err
			}
		}

		for pos, optID := range sa.SelectedOptionIDs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO answer_selections
				(answer_id, option_id, sort_order) VALUES ($1,$2,$3)`, sa.ID, optID, pos); err != nil {
				return err
			}
		}
		out = sa
		return nil
	})
	return out, err
}

// validateAnswerShape rejects responses whose shape does not match the
// question's type.
func validateAnswerShape(q Question, in AnswerInput) error {
	switch q.Type {
	case QuestionMultipleChoice:
		if len(in.SelectedOptionIDs) == 0 {
			return ValidationFields("invalid response", map[string]string{
				"selected_option_ids": "required for multiple_choice",
			})
		}
		if !q.AllowMultiple && len(in.SelectedOptionIDs) > 1 {
			return ValidationFields("invalid response", map[string]string{
				"selected_option_ids": "question accepts a single selection",
			})
		}
		valid := map[string]bool{}
		for _, o := range q.Options {
			valid[o.ID] = true
		}
		seen := map[string]bool{}
		for _, id := range in.SelectedOptionIDs {
			if !valid[id] {
				return ValidationFields("invalid response", map[string]string{
					"selected_option_ids": fmt.Sprintf("option %s does not belong to question %s", id, q.ID),
				})
			}
			if seen[id] {
				return ValidationFields("invalid response", map[string]string{
					"selected_option_ids": fmt.Sprintf("option %s selected twice", id),
				})
			}
			seen[id] = true
		}
	case QuestionTrueFalse:
		if in.BoolResponse == nil {
			return ValidationFields("invalid response", map[string]string{
				"bool_response": "required for true_false",
			})
		}
	case QuestionShortAnswer, QuestionEssay:
		if in.TextResponse == nil {
			return ValidationFields("invalid response", map[string]string{
				"text_response": "required for " + string(q.Type),
			})
		}
		if q.Type == QuestionEssay && q.WordLimit != nil {
			if n := len(strings.Fields(*in.TextResponse)); n > *q.WordLimit {
				return ValidationFields("invalid response", map[string]string{
					"text_response": fmt.Sprintf("%d words exceeds limit of %d", n, *q.WordLimit),
				})
			}
		}
	}
	return nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	a, err := loadAttempt(ctx, s.db, id)
	if err != nil {
		return Attempt{}, err
	}
	answers, err := loadAnswers(ctx, s.db, id)
	if err != nil {
		return Attempt{}, err
	}
	a.Answers = answers
	return a, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	if opts.Limit <= 0 || opts.Limit > 200 {
		opts.Limit = 50
	}
	where := []string{"1=1"}
	args := []any{}
	n := 0
	add := func(cond string, v any) {
		n++
		where = append(where, fmt.Sprintf(cond, n))
		args = append(args, v)
	}
	if opts.TestID != "" {
		add("test_id=$%d", opts.TestID)
	}
	if opts.StudentID != "" {
		add("student_id=$%d", opts.StudentID)
	}
	if opts.Status != "" {
		add("status=$%d", opts.Status)
	}
	if opts.Passed != nil {
		add("passed=$%d", *opts.Passed)
	}
	order := "started_at DESC"
	if opts.Sort == "submitted_at" {
		order = "submitted_at DESC"
	}
	args = append(args, opts.Limit, opts.Offset)

	query := fmt.Sprintf(`SELECT `+attemptCols+` FROM attempts WHERE %s
		ORDER BY %s LIMIT $%d OFFSET $%d`, joinAnd(where), order, n+1, n+2)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SweepAbandoned marks open attempts whose test duration budget has elapsed
// without submission. Re-sweeping is a no-op for already-abandoned rows, so
// the periodic job is idempotent.
func (s *SQLStore) SweepAbandoned(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE attempts SET status=$1
		WHERE status IN ($2,$3)
		AND EXISTS (
			SELECT 1 FROM tests t WHERE t.id = attempts.test_id
			AND t.duration_min IS NOT NULL
			AND attempts.started_at + t.duration_min*60 < $4
		)`,
		AttemptAbandoned, AttemptStarted, AttemptInProgress, now.Unix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
