package assessment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const testCols = `id, subject_id, owner_id, group_id, title, description,
	duration_min, passing_score, max_score, question_count,
	randomize_questions, randomize_answers, show_correct_answers,
	attempt_limit, allow_review, start_at, end_at, published, published_at,
	sort_order, active, created_at, updated_at`

func scanTest(row interface{ Scan(...any) error }) (Test, error) {
	var t Test
	var durationMin, startAt, endAt, publishedAt sql.NullInt64
	var passing sql.NullFloat64
	err := row.Scan(&t.ID, &t.SubjectID, &t.OwnerID, &t.GroupID, &t.Title, &t.Description,
		&durationMin, &passing, &t.MaxScore, &t.QuestionCount,
		&t.RandomizeQuestions, &t.RandomizeAnswers, &t.ShowCorrectAnswers,
		&t.AttemptLimit, &t.AllowReview, &startAt, &endAt, &t.Published, &publishedAt,
		&t.Position, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Test{}, err
	}
	t.DurationMin = intptr(durationMin)
	t.PassingScore = f64ptr(passing)
	t.StartAt = i64ptr(startAt)
	t.EndAt = i64ptr(endAt)
	t.PublishedAt = i64ptr(publishedAt)
	return t, nil
}

// loadTest fetches a test row regardless of soft-delete state; callers decide
// whether inactive is acceptable.
func loadTest(ctx context.Context, q querier, id string) (Test, error) {
	row := q.QueryRowContext(ctx, `SELECT `+testCols+` FROM tests WHERE id=$1`, id)
	t, err := scanTest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Test{}, NotFoundf("test %s not found", id)
	}
	return t, err
}

func loadActiveTest(ctx context.Context, q querier, id string) (Test, error) {
	t, err := loadTest(ctx, q, id)
	if err != nil {
		return Test{}, err
	}
	if !t.Active {
		return Test{}, NotFoundf("test %s not found", id)
	}
	return t, nil
}

func validateWindow(startAt, endAt *int64) error {
	if startAt != nil && endAt != nil && *endAt < *startAt {
		return ValidationFields("invalid availability window", map[string]string{
			"end_at": "must not precede start_at",
		})
	}
	return nil
}

func (s *SQLStore) CreateTest(ctx context.Context, t Test) (Test, error) {
	if t.Title == "" {
		return Test{}, ValidationFields("invalid test", map[string]string{"title": "required"})
	}
	if t.OwnerID == "" {
		return Test{}, ValidationFields("invalid test", map[string]string{"owner_id": "required"})
	}
	if t.AttemptLimit <= 0 {
		t.AttemptLimit = 1
	}
	if t.PassingScore != nil && (*t.PassingScore < 0 || *t.PassingScore > 100) {
		return Test{}, ValidationFields("invalid test", map[string]string{"passing_score": "must be between 0 and 100"})
	}
	if err := validateWindow(t.StartAt, t.EndAt); err != nil {
		return Test{}, err
	}

	t.ID = uuid.NewString()
	t.MaxScore = 0
	t.QuestionCount = 0
	t.Published = false
	t.PublishedAt = nil
	t.Active = true
	t.CreatedAt = s.nowUnix()
	t.UpdatedAt = t.CreatedAt

	_, err := s.db.ExecContext(ctx, `INSERT INTO tests (`+testCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		t.ID, t.SubjectID, t.OwnerID, t.GroupID, t.Title, t.Description,
		nullInt(t.DurationMin), nullF64(t.PassingScore), t.MaxScore, t.QuestionCount,
		t.RandomizeQuestions, t.RandomizeAnswers, t.ShowCorrectAnswers,
		t.AttemptLimit, t.AllowReview, nullI64(t.StartAt), nullI64(t.EndAt),
		t.Published, nil, t.Position, t.Active, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return Test{}, err
	}
	return t, nil
}

// GetTest returns the test with its active questions and options. When
// includeKeys is false the correct-answer definitions are stripped, matching
// what students are allowed to see.
func (s *SQLStore) GetTest(ctx context.Context, id string, includeKeys bool) (Test, error) {
	t, err := loadActiveTest(ctx, s.db, id)
	if err != nil {
		return Test{}, err
	}
	qs, err := loadQuestions(ctx, s.db, id)
	if err != nil {
		return Test{}, err
	}
	t.Questions = qs
	if !includeKeys {
		stripAnswerKeys(&t)
	}
	return t, nil
}

func stripAnswerKeys(t *Test) {
	for i := range t.Questions {
		q := &t.Questions[i]
		q.CorrectBool = nil
		q.CorrectText = ""
		q.Explanation = ""
		for j := range q.Options {
			q.Options[j].IsCorrect = false
		}
	}
}

func (s *SQLStore) UpdateTest(ctx context.Context, id string, upd TestUpdate) (Test, error) {
	var out Test
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		t, err := loadActiveTest(ctx, tx, id)
		if err != nil {
			return err
		}
		if upd.Title != nil {
			if *upd.Title == "" {
				return ValidationFields("invalid test", map[string]string{"title": "required"})
			}
			t.Title = *upd.Title
		}
		if upd.Description != nil {
			t.Description = *upd.Description
		}
		if upd.SubjectID != nil {
			t.SubjectID = *upd.SubjectID
		}
		if upd.GroupID != nil {
			t.GroupID = *upd.GroupID
		}
		if upd.DurationMin != nil {
			t.DurationMin = upd.DurationMin
		}
		if upd.PassingScore != nil {
			if *upd.PassingScore < 0 || *upd.PassingScore > 100 {
				return ValidationFields("invalid test", map[string]string{"passing_score": "must be between 0 and 100"})
			}
			t.PassingScore = upd.PassingScore
		}
		if upd.RandomizeQuestions != nil {
			t.RandomizeQuestions = *upd.RandomizeQuestions
		}
		if upd.RandomizeAnswers != nil {
			t.RandomizeAnswers = *upd.RandomizeAnswers
		}
		if upd.ShowCorrectAnswers != nil {
			t.ShowCorrectAnswers = *upd.ShowCorrectAnswers
		}
		if upd.AttemptLimit != nil {
			if *upd.AttemptLimit < 1 {
				return ValidationFields("invalid test", map[string]string{"attempt_limit": "must be at least 1"})
			}
			t.AttemptLimit = *upd.AttemptLimit
		}
		if upd.AllowReview != nil {
			t.AllowReview = *upd.AllowReview
		}
		if upd.StartAt != nil {
			t.StartAt = upd.StartAt
		}
		if upd.EndAt != nil {
			t.EndAt = upd.EndAt
		}
		if upd.Position != nil {
			t.Position = *upd.Position
		}
		if err := validateWindow(t.StartAt, t.EndAt); err != nil {
			return err
		}
		t.UpdatedAt = s.nowUnix()

		_, err = tx.ExecContext(ctx, `UPDATE tests SET subject_id=$1, group_id=$2, title=$3,
			description=$4, duration_min=$5, passing_score=$6, randomize_questions=$7,
			randomize_answers=$8, show_correct_answers=$9, attempt_limit=$10, allow_review=$11,
			start_at=$12, end_at=$13, sort_order=$14, updated_at=$15 WHERE id=$16`,
			t.SubjectID, t.GroupID, t.Title, t.Description,
			nullInt(t.DurationMin), nullF64(t.PassingScore),
			t.RandomizeQuestions, t.RandomizeAnswers, t.ShowCorrectAnswers,
			t.AttemptLimit, t.AllowReview, nullI64(t.StartAt), nullI64(t.EndAt),
			t.Position, t.UpdatedAt, t.ID)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// DeleteTest soft-deletes. Rejected with a conflict once any attempt has a
// recorded submission: grades must not vanish under students.
func (s *SQLStore) DeleteTest(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := loadActiveTest(ctx, tx, id); err != nil {
			return err
		}
		var submitted int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM attempts WHERE test_id=$1 AND submitted_at IS NOT NULL`, id).
			Scan(&submitted); err != nil {
			return err
		}
		if submitted > 0 {
			return Conflictf("test %s has %d submitted attempts", id, submitted)
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE tests SET active=$1, updated_at=$2 WHERE id=$3`, false, s.nowUnix(), id)
		return err
	})
}

// DuplicateTest deep-copies the test with all active questions and options
// under fresh identifiers. The copy starts unpublished.
func (s *SQLStore) DuplicateTest(ctx context.Context, id, ownerID string) (Test, error) {
	var out Test
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		src, err := loadActiveTest(ctx, tx, id)
		if err != nil {
			return err
		}
		qs, err := loadQuestions(ctx, tx, id)
		if err != nil {
			return err
		}

		now := s.nowUnix()
		cp := src
		cp.ID = uuid.NewString()
		if ownerID != "" {
			cp.OwnerID = ownerID
		}
		cp.Title = src.Title + " (copy)"
		cp.Published = false
		cp.PublishedAt = nil
		cp.CreatedAt = now
		cp.UpdatedAt = now

		_, err = tx.ExecContext(ctx, `INSERT INTO tests (`+testCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
			cp.ID, cp.SubjectID, cp.OwnerID, cp.GroupID, cp.Title, cp.Description,
			nullInt(cp.DurationMin), nullF64(cp.PassingScore), cp.MaxScore, cp.QuestionCount,
			cp.RandomizeQuestions, cp.RandomizeAnswers, cp.ShowCorrectAnswers,
			cp.AttemptLimit, cp.AllowReview, nullI64(cp.StartAt), nullI64(cp.EndAt),
			cp.Published, nil, cp.Position, cp.Active, cp.CreatedAt, cp.UpdatedAt)
		if err != nil {
			return err
		}

		for i := range qs {
			nq := qs[i]
			nq.ID = uuid.NewString()
			nq.TestID = cp.ID
			if err := insertQuestion(ctx, tx, nq); err != nil {
				return err
			}
			for j := range qs[i].Options {
				no := qs[i].Options[j]
				no.ID = uuid.NewString()
				no.QuestionID = nq.ID
				if err := insertOption(ctx, tx, no); err != nil {
					return err
				}
			}
		}
		if err := recomputeTestAggregates(ctx, tx, cp.ID, now); err != nil {
			return err
		}
		cp2, err := loadTest(ctx, tx, cp.ID)
		if err != nil {
			return err
		}
		out = cp2
		return nil
	})
	return out, err
}

// PublishTest opens the test to students. At least one active question must
// exist; a published timestamp is recorded once per publish.
func (s *SQLStore) PublishTest(ctx context.Context, id string) (Test, error) {
	var out Test
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		t, err := loadActiveTest(ctx, tx, id)
		if err != nil {
			return err
		}
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM questions WHERE test_id=$1 AND active=$2`, id, true).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return InvalidStatef("test %s cannot be published with zero active questions", id)
		}
		now := s.nowUnix()
		if _, err := tx.ExecContext(ctx,
			`UPDATE tests SET published=$1, published_at=$2, updated_at=$3 WHERE id=$4`,
			true, now, now, id); err != nil {
			return err
		}
		t.Published = true
		t.PublishedAt = &now
		t.UpdatedAt = now
		out = t
		return nil
	})
	if err != nil {
		return Test{}, err
	}
	if s.sink != nil {
		s.sink.TestPublished(ctx, id)
	}
	return out, nil
}

// UnpublishTest clears the published flag; published_at is retained for audit.
func (s *SQLStore) UnpublishTest(ctx context.Context, id string) (Test, error) {
	var out Test
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		t, err := loadActiveTest(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.nowUnix()
		if _, err := tx.ExecContext(ctx,
			`UPDATE tests SET published=$1, updated_at=$2 WHERE id=$3`, false, now, id); err != nil {
			return err
		}
		t.Published = false
		t.UpdatedAt = now
		out = t
		return nil
	})
	return out, err
}

func (s *SQLStore) ListTests(ctx context.Context, opts TestListOpts) ([]TestSummary, error) {
	if opts.Limit <= 0 || opts.Limit > 200 {
		opts.Limit = 50
	}
	where := []string{"active=$1"}
	args := []any{true}
	n := 1
	add := func(cond string, v any) {
		n++
		where = append(where, fmt.Sprintf(cond, n))
		args = append(args, v)
	}
	if opts.Q != "" {
		add("title LIKE $%d", "%"+opts.Q+"%")
	}
	if opts.SubjectID != "" {
		add("subject_id=$%d", opts.SubjectID)
	}
	if opts.Published != nil {
		add("published=$%d", *opts.Published)
	}
	// Students only ever see the published catalog.
	if opts.ViewerRole == "student" {
		add("published=$%d", true)
	}
	args = append(args, opts.Limit, opts.Offset)

	query := fmt.Sprintf(`SELECT id, subject_id, owner_id, title, question_count, max_score,
		passing_score, published, created_at FROM tests
		WHERE %s ORDER BY sort_order, created_at DESC LIMIT $%d OFFSET $%d`,
		joinAnd(where), n+1, n+2)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TestSummary{}
	for rows.Next() {
		var ts TestSummary
		var passing sql.NullFloat64
		if err := rows.Scan(&ts.ID, &ts.SubjectID, &ts.OwnerID, &ts.Title,
			&ts.QuestionCount, &ts.MaxScore, &passing, &ts.Published, &ts.CreatedAt); err != nil {
			return nil, err
		}
		ts.PassingScore = f64ptr(passing)
		out = append(out, ts)
	}
	return out, rows.Err()
}

func joinAnd(conds []string) string {
	out := conds[0]
	for _, c := range conds[1:] {
		out += " AND " + c
	}
	return out
}
