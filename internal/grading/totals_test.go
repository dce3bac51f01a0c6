package grading

import "testing"

func fptr(f float64) *float64 { return &f }

func TestSummarizeMixedAutoAndManual(t *testing.T) {
	items := []Item{
		{PointsEarned: fptr(4), PointsPossible: 4},
		{PointsEarned: fptr(0), PointsPossible: 2},
		{PointsEarned: fptr(7), PointsPossible: 10, NeedsManual: true, ManuallyGraded: true},
	}
	sum := Summarize(items, 16, fptr(60), DefaultScale())

	if sum.AutoScore != 4 {
		t.Fatalf("auto = %v, want 4", sum.AutoScore)
	}
	if sum.ManualScore != 7 {
		t.Fatalf("manual = %v, want 7", sum.ManualScore)
	}
	if sum.TotalScore != 11 {
		t.Fatalf("total = %v, want 11", sum.TotalScore)
	}
	if sum.Percentage != 68.75 {
		t.Fatalf("pct = %v, want 68.75", sum.Percentage)
	}
	if sum.Passed == nil || !*sum.Passed {
		t.Fatalf("passed = %v, want true", sum.Passed)
	}
	if sum.Letter != "D" {
		t.Fatalf("letter = %q, want D", sum.Letter)
	}
	if sum.PendingManual {
		t.Fatal("nothing should be pending")
	}
}

func TestSummarizePendingManualHoldsTotals(t *testing.T) {
	items := []Item{
		{PointsEarned: fptr(5), PointsPossible: 5},
		{PointsPossible: 10, NeedsManual: true}, // ungraded essay
	}
	sum := Summarize(items, 15, fptr(50), DefaultScale())

	if !sum.PendingManual {
		t.Fatal("expected pending manual")
	}
	if sum.TotalScore != 5 {
		t.Fatalf("total = %v, want 5 (ungraded item contributes nothing)", sum.TotalScore)
	}
}

func TestSummarizeNoPassingScore(t *testing.T) {
	sum := Summarize([]Item{{PointsEarned: fptr(1), PointsPossible: 1}}, 1, nil, DefaultScale())
	if sum.Passed != nil {
		t.Fatalf("passed = %v, want nil when no threshold configured", sum.Passed)
	}
	if sum.Percentage != 100 {
		t.Fatalf("pct = %v, want 100", sum.Percentage)
	}
}

func TestSummarizeZeroMaxScore(t *testing.T) {
	sum := Summarize(nil, 0, fptr(50), DefaultScale())
	if sum.Percentage != 0 {
		t.Fatalf("pct = %v, want 0 with zero max", sum.Percentage)
	}
}

func TestScaleLetterBoundaries(t *testing.T) {
	s := DefaultScale()
	cases := []struct {
		pct  float64
		want string
	}{
		{100, "A"}, {90, "A"}, {89.99, "B"}, {80, "B"},
		{70, "C"}, {60, "D"}, {59.99, "F"}, {0, "F"},
	}
	for _, tc := range cases {
		if got := s.Letter(tc.pct); got != tc.want {
			t.Errorf("Letter(%v) = %q, want %q", tc.pct, got, tc.want)
		}
	}
}

func TestValidManualPoints(t *testing.T) {
	if !ValidManualPoints(0, 10) || !ValidManualPoints(10, 10) || !ValidManualPoints(7.5, 10) {
		t.Fatal("in-range scores rejected")
	}
	if ValidManualPoints(10.5, 10) || ValidManualPoints(-0.5, 10) {
		t.Fatal("out-of-range scores accepted")
	}
}
