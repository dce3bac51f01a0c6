package assessment

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/campuscore/campuscore-sis/internal/grading"
)

func gradingQ(q Question) grading.Q {
	return grading.Q{
		Type:             string(q.Type),
		Points:           q.Points,
		CorrectOptionIDs: q.CorrectOptionIDs(),
		CorrectBool:      q.CorrectBool,
		CorrectText:      q.CorrectText,
		CaseSensitive:    q.CaseSensitive,
	}
}

func gradingResponse(q Question, sa *StudentAnswer) grading.Response {
	if sa == nil {
		return grading.Response{}
	}
	resp := grading.Response{Answered: true}
	switch q.Type {
	case QuestionMultipleChoice:
		resp.OptionIDs = sa.SelectedOptionIDs
		resp.Answered = len(sa.SelectedOptionIDs) > 0
	case QuestionTrueFalse:
		resp.Bool = sa.BoolResponse
		resp.Answered = sa.BoolResponse != nil
	case QuestionShortAnswer, QuestionEssay:
		resp.Text = sa.TextResponse
	}
	return resp
}

// SubmitAttempt closes the attempt and runs the scoring engine over every
// active question, including ones left blank. If any question requires
// manual grading the attempt parks in submitted; otherwise it goes straight
// to graded.
func (s *SQLStore) SubmitAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	var finalStatus AttemptStatus
	var testID, studentID string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := loadAttempt(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		if !a.Status.Open() {
			return InvalidStatef("attempt %s is %s; it cannot be submitted", a.ID, a.Status)
		}
		t, err := loadTest(ctx, tx, a.TestID)
		if err != nil {
			return err
		}
		questions, err := loadQuestions(ctx, tx, a.TestID)
		if err != nil {
			return err
		}
		answers, err := loadAnswers(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		byQuestion := map[string]*StudentAnswer{}
		for i := range answers {
			byQuestion[answers[i].QuestionID] = &answers[i]
		}

		now := s.now().Unix()
		var items []grading.Item
		maxScore := 0.0
		for _, q := range questions {
			maxScore += q.Points
			sa := byQuestion[q.ID]
			res, err := s.grader.Grade(ctx, gradingQ(q), gradingResponse(q, sa))
			if err != nil {
				return err
			}
			if sa == nil {
				// Blank questions still get a row so manual grading and
				// review have a slot per question.
				blankID := uuid.NewString()
				if _, err := tx.ExecContext(ctx, `INSERT INTO student_answers
					(id, attempt_id, question_id, points_earned, points_possible, correct, answered_at)
					VALUES ($1,$2,$3,$4,$5,$6,$7)`,
					blankID, a.ID, q.ID, nullF64(res.PointsEarned), q.Points,
					nullBool(res.Correct), now); err != nil {
					return err
				}
			} else {
				if _, err := tx.ExecContext(ctx, `UPDATE student_answers
					SET points_earned=$1, points_possible=$2, correct=$3 WHERE id=$4`,
					nullF64(res.PointsEarned), q.Points, nullBool(res.Correct), sa.ID); err != nil {
					return err
				}
			}
			items = append(items, grading.Item{
				PointsEarned:   res.PointsEarned,
				PointsPossible: q.Points,
				NeedsManual:    res.NeedsManual,
			})
		}

		sum := grading.Summarize(items, maxScore, t.PassingScore, s.scale)
		status := AttemptGraded
		var gradedAt any
		if sum.PendingManual {
			status = AttemptSubmitted
		} else {
			gradedAt = now
		}
		duration := now - a.StartedAt
		if duration < 0 {
			duration = 0
		}

		if _, err := tx.ExecContext(ctx, `UPDATE attempts SET status=$1, submitted_at=$2,
			graded_at=$3, duration_seconds=$4, total_score=$5, auto_score=$6,
			manual_score=$7, max_score=$8, percentage=$9, passed=$10, grade=$11 WHERE id=$12`,
			status, now, gradedAt, duration, sum.TotalScore, sum.AutoScore,
			sum.ManualScore, sum.MaxScore, sum.Percentage, nullBool(sum.Passed),
			sum.Letter, a.ID); err != nil {
			return err
		}
		finalStatus = status
		testID, studentID = a.TestID, a.StudentID
		return nil
	})
	if err != nil {
		return Attempt{}, err
	}
	if finalStatus == AttemptGraded && s.sink != nil {
		s.sink.AttemptGraded(ctx, attemptID, testID, studentID)
	}
	return s.GetAttempt(ctx, attemptID)
}

// ApplyManualGrades records instructor scores for the targeted answers and
// recomputes the aggregate fresh from the current answer rows, so running it
// again with the same input yields the same totals.
func (s *SQLStore) ApplyManualGrades(ctx context.Context, attemptID string, items map[string]ManualGradeInput, overallFeedback, gradedBy string) (Attempt, error) {
	var testID, studentID string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := loadAttempt(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		if a.Status != AttemptSubmitted && a.Status != AttemptGraded {
			return InvalidStatef("attempt %s is %s; only submitted or graded attempts may be graded", a.ID, a.Status)
		}
		t, err := loadTest(ctx, tx, a.TestID)
		if err != nil {
			return err
		}

		now := s.now().Unix()
		for questionID, in := range items {
			var answerID string
			var possible float64
			err := tx.QueryRowContext(ctx, `SELECT id, points_possible FROM student_answers
				WHERE attempt_id=$1 AND question_id=$2`, a.ID, questionID).
				Scan(&answerID, &possible)
			if err != nil {
				if err == sql.ErrNoRows {
					return NotFoundf("no answer for question %s on attempt %s", questionID, a.ID)
				}
				return err
			}
			if !grading.ValidManualPoints(in.PointsEarned, possible) {
				return ValidationFields("invalid manual grade", map[string]string{
					"points_earned": "must be between 0 and the question's points",
				})
			}
			if _, err := tx.ExecContext(ctx, `UPDATE student_answers SET points_earned=$1,
				correct=NULL, manually_graded=$2, graded_by=$3, graded_at=$4, feedback=$5
				WHERE id=$6`,
				in.PointsEarned, true, gradedBy, now, in.Feedback, answerID); err != nil {
				return err
			}
		}

		// Aggregate from scratch; auto-graded rows are not re-evaluated.
		answers, err := loadAnswers(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		var gItems []grading.Item
		for _, sa := range answers {
			gItems = append(gItems, grading.Item{
				PointsEarned:   sa.PointsEarned,
				PointsPossible: sa.PointsPossible,
				NeedsManual:    sa.PointsEarned == nil,
				ManuallyGraded: sa.ManuallyGraded,
			})
		}
		sum := grading.Summarize(gItems, a.MaxScore, t.PassingScore, s.scale)

		feedback := a.Feedback
		if overallFeedback != "" {
			feedback = overallFeedback
		}
		if _, err := tx.ExecContext(ctx, `UPDATE attempts SET status=$1, graded_at=$2,
			total_score=$3, auto_score=$4, manual_score=$5, percentage=$6, passed=$7,
			grade=$8, feedback=$9 WHERE id=$10`,
			AttemptGraded, now, sum.TotalScore, sum.AutoScore, sum.ManualScore,
			sum.Percentage, nullBool(sum.Passed), sum.Letter, feedback, a.ID); err != nil {
			return err
		}
		testID, studentID = a.TestID, a.StudentID
		return nil
	})
	if err != nil {
		return Attempt{}, err
	}
	if s.sink != nil {
		s.sink.AttemptGraded(ctx, attemptID, testID, studentID)
	}
	return s.GetAttempt(ctx, attemptID)
}
