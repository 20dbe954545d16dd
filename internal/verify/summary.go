package verify

import "math"

// DaySummary aggregates one day's verification results. Pure aggregation;
// never persisted.
type DaySummary struct {
	Verified           int
	Partial            int
	Unverified         int
	Contradicted       int
	Distracted         int
	AdherenceScore     int // 0-100
	DistractionMinutes int
}

// Summarize folds per-event results into the day summary. Adherence counts
// a partial as half a verified event; a day with no planned events scores
// 100.
func Summarize(results map[string]Result) DaySummary {
	var s DaySummary
	for _, r := range results {
		switch r.Status {
		case StatusVerified:
			s.Verified++
		case StatusPartial:
			s.Partial++
		case StatusContradicted:
			s.Contradicted++
		case StatusDistracted:
			s.Distracted++
		default:
			s.Unverified++
		}
		s.DistractionMinutes += r.DistractionMinutes
	}

	total := len(results)
	if total == 0 {
		s.AdherenceScore = 100
		return s
	}
	score := (float64(s.Verified) + 0.5*float64(s.Partial)) / float64(total) * 100
	s.AdherenceScore = int(math.Round(score))
	return s
}
