package grading

import (
	"context"
	"errors"
)

// Q is the minimal view of a question needed for grading. Only the key
// fields matching Type are consulted; the rest are ignored.
type Q struct {
	Type             string
	Points           float64
	CorrectOptionIDs []string // multiple_choice
	CorrectBool      *bool    // true_false
	CorrectText      string   // short_answer
	CaseSensitive    bool     // short_answer
}

// Response is one recorded student answer, already shape-validated by the
// answer recorder. Answered=false means the question was left blank.
type Response struct {
	Answered  bool
	OptionIDs []string
	Bool      *bool
	Text      string
}

// Result is the outcome of grading a single question response.
type Result struct {
	PointsEarned   *float64 // nil while manual grading is pending
	PointsPossible float64
	Correct        *bool // nil for manually-graded items
	NeedsManual    bool
}

// Strategy grades a single question.
type Strategy interface {
	Grade(ctx context.Context, q Q, resp Response) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, resp Response) (Result, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, resp Response) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{}, errors.New("no grading strategy for type " + q.Type)
	}
	return s.Grade(ctx, q, resp)
}

// NewDefaultGrader installs the built-in strategies, one per question type.
func NewDefaultGrader() Grader {
	return &defaultGrader{
		strategies: map[string]Strategy{
			"multiple_choice": multipleChoiceStrategy{},
			"true_false":      trueFalseStrategy{},
			"short_answer":    shortAnswerStrategy{},
			"essay":           essayStrategy{},
		},
	}
}

func scored(points, possible float64, correct bool) Result {
	p := points
	c := correct
	return Result{PointsEarned: &p, PointsPossible: possible, Correct: &c}
}

type multipleChoiceStrategy struct{}

// Full points on exact set equality, zero otherwise. No partial credit.
func (multipleChoiceStrategy) Grade(_ context.Context, q Q, resp Response) (Result, error) {
	if !resp.Answered {
		return scored(0, q.Points, false), nil
	}
	if setEqual(toSet(resp.OptionIDs), toSet(q.CorrectOptionIDs)) {
		return scored(q.Points, q.Points, true), nil
	}
	return scored(0, q.Points, false), nil
}

type trueFalseStrategy struct{}

func (trueFalseStrategy) Grade(_ context.Context, q Q, resp Response) (Result, error) {
	if !resp.Answered || resp.Bool == nil {
		return scored(0, q.Points, false), nil
	}
	if q.CorrectBool == nil {
		return Result{PointsPossible: q.Points}, errors.New("true_false question has no answer key")
	}
	if *resp.Bool == *q.CorrectBool {
		return scored(q.Points, q.Points, true), nil
	}
	return scored(0, q.Points, false), nil
}

type shortAnswerStrategy struct{}

func (shortAnswerStrategy) Grade(_ context.Context, q Q, resp Response) (Result, error) {
	if !resp.Answered {
		return scored(0, q.Points, false), nil
	}
	if matchText(q.CorrectText, resp.Text, q.CaseSensitive) {
		return scored(q.Points, q.Points, true), nil
	}
	return scored(0, q.Points, false), nil
}

type essayStrategy struct{}

// Essays are never auto-graded: points and correctness stay unset until an
// instructor reconciles the attempt.
func (essayStrategy) Grade(_ context.Context, q Q, _ Response) (Result, error) {
	return Result{PointsPossible: q.Points, NeedsManual: true}, nil
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
