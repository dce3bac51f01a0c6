package grading

// ValidManualPoints reports whether an instructor-assigned score is within
// [0, max]; the reconciler rejects out-of-range input rather than clamping.
func ValidManualPoints(v, max float64) bool {
	return v >= 0 && v <= max
}
