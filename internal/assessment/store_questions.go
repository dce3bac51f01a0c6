package assessment

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

const questionCols = `id, test_id, text, qtype, points, sort_order, required,
	allow_multiple, correct_bool, correct_text, case_sensitive, word_limit,
	explanation, image_key, active`

func scanQuestion(row interface{ Scan(...any) error }) (Question, error) {
	var q Question
	var correctBool sql.NullBool
	var wordLimit sql.NullInt64
	err := row.Scan(&q.ID, &q.TestID, &q.Text, &q.Type, &q.Points, &q.Position, &q.Required,
		&q.AllowMultiple, &correctBool, &q.CorrectText, &q.CaseSensitive, &wordLimit,
		&q.Explanation, &q.ImageKey, &q.Active)
	if err != nil {
		return Question{}, err
	}
	q.CorrectBool = boolptr(correctBool)
	q.WordLimit = intptr(wordLimit)
	return q, nil
}

// loadQuestions returns the active questions of a test, ordered, each with
// its active options.
func loadQuestions(ctx context.Context, qr querier, testID string) ([]Question, error) {
	rows, err := qr.QueryContext(ctx, `SELECT `+questionCols+` FROM questions
		WHERE test_id=$1 AND active=$2 ORDER BY sort_order, id`, testID, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var qs []Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range qs {
		opts, err := loadOptions(ctx, qr, qs[i].ID)
		if err != nil {
			return nil, err
		}
		qs[i].Options = opts
	}
	return qs, nil
}

func loadQuestion(ctx context.Context, qr querier, id string) (Question, error) {
	row := qr.QueryRowContext(ctx, `SELECT `+questionCols+` FROM questions WHERE id=$1`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, NotFoundf("question %s not found", id)
	}
	if err != nil {
		return Question{}, err
	}
	if !q.Active {
		return Question{}, NotFoundf("question %s not found", id)
	}
	opts, err := loadOptions(ctx, qr, q.ID)
	if err != nil {
		return Question{}, err
	}
	q.Options = opts
	return q, nil
}

func loadOptions(ctx context.Context, qr querier, questionID string) ([]AnswerOption, error) {
	rows, err := qr.QueryContext(ctx, `SELECT id, question_id, text, image_key, sort_order,
		is_correct, active FROM answer_options
		WHERE question_id=$1 AND active=$2 ORDER BY sort_order, id`, questionID, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnswerOption
	for rows.Next() {
		var o AnswerOption
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.ImageKey, &o.Position,
			&o.IsCorrect, &o.Active); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func insertQuestion(ctx context.Context, qr querier, q Question) error {
	_, err := qr.ExecContext(ctx, `INSERT INTO questions (`+questionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		q.ID, q.TestID, q.Text, q.Type, q.Points, q.Position, q.Required,
		q.AllowMultiple, nullBool(q.CorrectBool), q.CorrectText, q.CaseSensitive,
		nullInt(q.WordLimit), q.Explanation, q.ImageKey, q.Active)
	return err
}

func insertOption(ctx context.Context, qr querier, o AnswerOption) error {
	_, err := qr.ExecContext(ctx, `INSERT INTO answer_options
		(id, question_id, text, image_key, sort_order, is_correct, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.ID, o.QuestionID, o.Text, o.ImageKey, o.Position, o.IsCorrect, o.Active)
	return err
}

// recomputeTestAggregates rewrites max_score and question_count from the
// active question set. Called inside the same transaction as any question
// mutation so the aggregates can never drift.
func recomputeTestAggregates(ctx context.Context, qr querier, testID string, now int64) error {
	_, err := qr.ExecContext(ctx, `UPDATE tests SET
		max_score = COALESCE((SELECT SUM(points) FROM questions WHERE test_id=$1 AND active=$2), 0),
		question_count = (SELECT COUNT(*) FROM questions WHERE test_id=$1 AND active=$2),
		updated_at = $3
		WHERE id=$1`, testID, true, now)
	return err
}

func validateQuestion(q Question) error {
	fields := map[string]string{}
	if q.Text == "" {
		fields["text"] = "required"
	}
	if !q.Type.Valid() {
		fields["type"] = "must be one of multiple_choice, true_false, short_answer, essay"
	}
	if q.Points < 0 {
		fields["points"] = "must not be negative"
	}
	switch q.Type {
	case QuestionTrueFalse:
		if q.CorrectBool == nil {
			fields["correct_bool"] = "required for true_false"
		}
	case QuestionShortAnswer:
		if q.CorrectText == "" {
			fields["correct_text"] = "required for short_answer"
		}
	case QuestionEssay:
		if q.WordLimit != nil && *q.WordLimit <= 0 {
			fields["word_limit"] = "must be positive"
		}
	}
	if len(fields) > 0 {
		return ValidationFields("invalid question", fields)
	}
	return nil
}

func (s *SQLStore) AddQuestion(ctx context.Context, testID string, q Question) (Question, error) {
	if err := validateQuestion(q); err != nil {
		return Question{}, err
	}
	var out Question
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := loadActiveTest(ctx, tx, testID); err != nil {
			return err
		}
		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sort_order)+1, 0) FROM questions WHERE test_id=$1 AND active=$2`,
			testID, true).Scan(&next); err != nil {
			return err
		}
		// Inline options are allowed only on multiple_choice questions.
		if len(q.Options) > 0 && q.Type != QuestionMultipleChoice {
			return InvalidStatef("question type %s does not take answer options", q.Type)
		}
		q.ID = uuid.NewString()
		q.TestID = testID
		q.Position = next
		q.Active = true
		if err := insertQuestion(ctx, tx, q); err != nil {
			return err
		}
		for i := range q.Options {
			q.Options[i].ID = uuid.NewString()
			q.Options[i].QuestionID = q.ID
			q.Options[i].Position = i
			q.Options[i].Active = true
			if err := insertOption(ctx, tx, q.Options[i]); err != nil {
				return err
			}
		}
		if err := recomputeTestAggregates(ctx, tx, testID, s.nowUnix()); err != nil {
			return err
		}
		out = q
		return nil
	})
	return out, err
}

func (s *SQLStore) UpdateQuestion(ctx context.Context, testID, id string, upd QuestionUpdate) (Question, error) {
	var out Question
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		q, err := loadQuestion(ctx, tx, id)
		if err != nil {
			return err
		}
		if q.TestID != testID {
			return NotFoundf("question %s not found", id)
		}
		if upd.Text != nil {
			q.Text = *upd.Text
		}
		if upd.Points != nil {
			q.Points = *upd.Points
		}
		if upd.Required != nil {
			q.Required = *upd.Required
		}
		if upd.AllowMultiple != nil {
			q.AllowMultiple = *upd.AllowMultiple
		}
		if upd.CorrectBool != nil {
			q.CorrectBool = upd.CorrectBool
		}
		if upd.CorrectText != nil {
			q.CorrectText = *upd.CorrectText
		}
		if upd.CaseSensitive != nil {
			q.CaseSensitive = *upd.CaseSensitive
		}
		if upd.WordLimit != nil {
			q.WordLimit = upd.WordLimit
		}
		if upd.Explanation != nil {
			q.Explanation = *upd.Explanation
		}
		if upd.ImageKey != nil {
			q.ImageKey = *upd.ImageKey
		}
		if err := validateQuestion(q); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE questions SET text=$1, points=$2, required=$3,
			allow_multiple=$4, correct_bool=$5, correct_text=$6, case_sensitive=$7,
			word_limit=$8, explanation=$9, image_key=$10 WHERE id=$11`,
			q.Text, q.Points, q.Required, q.AllowMultiple, nullBool(q.CorrectBool),
			q.CorrectText, q.CaseSensitive, nullInt(q.WordLimit), q.Explanation, q.ImageKey, q.ID)
		if err != nil {
			return err
		}
		if err := recomputeTestAggregates(ctx, tx, q.TestID, s.nowUnix()); err != nil {
			return err
		}
		out = q
		return nil
	})
	return out, err
}

func (s *SQLStore) RemoveQuestion(ctx context.Context, testID, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		q, err := loadQuestion(ctx, tx, id)
		if err != nil {
			return err
		}
		if q.TestID != testID {
			return NotFoundf("question %s not found", id)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE questions SET active=$1 WHERE id=$2`, false, id); err != nil {
			return err
		}
		return recomputeTestAggregates(ctx, tx, q.TestID, s.nowUnix())
	})
}

// DuplicateQuestion copies a question and its options within the same test.
func (s *SQLStore) DuplicateQuestion(ctx context.Context, testID, id string) (Question, error) {
	var out Question
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		src, err := loadQuestion(ctx, tx, id)
		if err != nil {
			return err
		}
		if src.TestID != testID {
			return NotFoundf("question %s not found", id)
		}
		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sort_order)+1, 0) FROM questions WHERE test_id=$1 AND active=$2`,
			src.TestID, true).Scan(&next); err != nil {
			return err
		}
		cp := src
		cp.ID = uuid.NewString()
		cp.Position = next
		if err := insertQuestion(ctx, tx, cp); err != nil {
			return err
		}
		cp.Options = nil
		for _, o := range src.Options {
			no := o
			no.ID = uuid.NewString()
			no.QuestionID = cp.ID
			if err := insertOption(ctx, tx, no); err != nil {
				return err
			}
			cp.Options = append(cp.Options, no)
		}
		if err := recomputeTestAggregates(ctx, tx, src.TestID, s.nowUnix()); err != nil {
			return err
		}
		out = cp
		return nil
	})
	return out, err
}

// ReorderQuestions assigns positions 0..N-1 following the supplied full
// ordering of the test's active questions.
func (s *SQLStore) ReorderQuestions(ctx context.Context, testID string, orderedIDs []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := loadActiveTest(ctx, tx, testID); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM questions WHERE test_id=$1 AND active=$2`, testID, true)
		if err != nil {
			return err
		}
		existing := map[string]bool{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			existing[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if len(orderedIDs) != len(existing) {
			return Validationf("reorder list has %d ids, test has %d active questions",
				len(orderedIDs), len(existing))
		}
		seen := map[string]bool{}
		for _, id := range orderedIDs {
			if !existing[id] {
				return Validationf("question %s does not belong to test %s", id, testID)
			}
			if seen[id] {
				return Validationf("question %s listed twice", id)
			}
			seen[id] = true
		}
		for pos, id := range orderedIDs {
			if _, err := tx.ExecContext(ctx,
				`UPDATE questions SET sort_order=$1 WHERE id=$2`, pos, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) AddOption(ctx context.Context, testID, questionID string, o AnswerOption) (AnswerOption, error) {
	if o.Text == "" {
		return AnswerOption{}, ValidationFields("invalid option", map[string]string{"text": "required"})
	}
	var out AnswerOption
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		q, err := loadQuestion(ctx, tx, questionID)
		if err != nil {
			return err
		}
		if q.TestID != testID {
			return NotFoundf("question %s not found", questionID)
		}
		if q.Type != QuestionMultipleChoice {
			return InvalidStatef("question type %s does not take answer options", q.Type)
		}
		o.ID = uuid.NewString()
		o.QuestionID = questionID
		o.Position = len(q.Options)
		o.Active = true
		if err := insertOption(ctx, tx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

func (s *SQLStore) UpdateOption(ctx context.Context, testID, id string, upd OptionUpdate) (AnswerOption, error) {
	var out AnswerOption
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT id, question_id, text, image_key, sort_order,
			is_correct, active FROM answer_options WHERE id=$1`, id)
		var o AnswerOption
		if err := row.Scan(&o.ID, &o.QuestionID, &o.Text, &o.ImageKey, &o.Position,
			&o.IsCorrect, &o.Active); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotFoundf("option %s not found", id)
			}
			return err
		}
		if !o.Active {
			return NotFoundf("option %s not found", id)
		}
		if err := optionInTest(ctx, tx, o.QuestionID, testID, id); err != nil {
			return err
		}
		if upd.Text != nil {
			if *upd.Text == "" {
				return ValidationFields("invalid option", map[string]string{"text": "required"})
			}
			o.Text = *upd.Text
		}
		if upd.ImageKey != nil {
			o.ImageKey = *upd.ImageKey
		}
		if upd.Position != nil {
			o.Position = *upd.Position
		}
		if upd.IsCorrect != nil {
			o.IsCorrect = *upd.IsCorrect
		}
		_, err := tx.ExecContext(ctx, `UPDATE answer_options SET text=$1, image_key=$2,
			sort_order=$3, is_correct=$4 WHERE id=$5`,
			o.Text, o.ImageKey, o.Position, o.IsCorrect, o.ID)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

func (s *SQLStore) RemoveOption(ctx context.Context, testID, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var questionID string
		err := tx.QueryRowContext(ctx,
			`SELECT question_id FROM answer_options WHERE id=$1 AND active=$2`, id, true).Scan(&questionID)
		if errors.Is(err, sql.ErrNoRows) {
			return NotFoundf("option %s not found", id)
		}
		if err != nil {
			return err
		}
		if err := optionInTest(ctx, tx, questionID, testID, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE answer_options SET active=$1 WHERE id=$2`, false, id)
		return err
	})
}

// optionInTest confirms the option's question belongs to the test named in
// the route; options reached through a foreign test are not found.
func optionInTest(ctx context.Context, qr querier, questionID, testID, optionID string) error {
	var owner string
	if err := qr.QueryRowContext(ctx,
		`SELECT test_id FROM questions WHERE id=$1`, questionID).Scan(&owner); err != nil {
		return err
	}
	if owner != testID {
		return NotFoundf("option %s not found", optionID)
	}
	return nil
}
