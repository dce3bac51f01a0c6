package grading

// Band maps a minimum percentage to a letter grade.
type Band struct {
	Min    float64 `json:"min"`
	Letter string  `json:"letter"`
}

// Scale is an ordered list of bands, highest minimum first. Letter is a
// total, deterministic function of percentage alone, so substituting a
// custom scale in tests keeps grading reproducible.
type Scale []Band

// DefaultScale is the standard A-F banding.
func DefaultScale() Scale {
	return Scale{
		{Min: 90, Letter: "A"},
		{Min: 80, Letter: "B"},
		{Min: 70, Letter: "C"},
		{Min: 60, Letter: "D"},
		{Min: 0, Letter: "F"},
	}
}

// Letter returns the band whose minimum the percentage meets. A scale with
// no band at 0 falls through to the last band.
func (s Scale) Letter(pct float64) string {
	for _, b := range s {
		if pct >= b.Min {
			return b.Letter
		}
	}
	if len(s) > 0 {
		return s[len(s)-1].Letter
	}
	return ""
}
