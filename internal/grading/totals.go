package grading

// Item is one graded (or pending) answer row feeding the aggregate.
type Item struct {
	PointsEarned   *float64
	PointsPossible float64
	NeedsManual    bool
	ManuallyGraded bool
}

// Summary is the attempt-level aggregate recomputed on every submit and
// every reconcile pass.
type Summary struct {
	AutoScore     float64
	ManualScore   float64
	TotalScore    float64
	MaxScore      float64
	Percentage    float64
	Passed        *bool // nil when no passing score is configured
	Letter        string
	PendingManual bool // true while any item still awaits an instructor
}

// Summarize folds per-answer results into the attempt aggregate. maxScore is
// the snapshot taken at submission; passing is the test's threshold, if set.
// Items whose PointsEarned is still nil contribute nothing to the totals but
// keep the attempt in the pending-manual state.
func Summarize(items []Item, maxScore float64, passing *float64, scale Scale) Summary {
	sum := Summary{MaxScore: maxScore}
	for _, it := range items {
		if it.PointsEarned == nil {
			if it.NeedsManual {
				sum.PendingManual = true
			}
			continue
		}
		if it.ManuallyGraded {
			sum.ManualScore += *it.PointsEarned
		} else {
			sum.AutoScore += *it.PointsEarned
		}
	}
	sum.TotalScore = sum.AutoScore + sum.ManualScore
	if maxScore > 0 {
		sum.Percentage = sum.TotalScore / maxScore * 100
	}
	sum.Letter = scale.Letter(sum.Percentage)
	if passing != nil {
		p := sum.Percentage >= *passing
		sum.Passed = &p
	}
	return sum
}
