package classify

import "math"

// SleepMetrics are the daily health fields relevant to sleep quality. Nil
// means the collector never reported that metric.
type SleepMetrics struct {
	AsleepSeconds *int
	HRVMillis     *float64
	RestingBPM    *float64
	AverageBPM    *float64
}

// SleepQualityScore computes a 0-100 quality score from daily health
// metrics. Returns nil when no relevant metric exists at all.
func SleepQualityScore(m SleepMetrics) *int {
	if m.AsleepSeconds == nil && m.HRVMillis == nil && m.RestingBPM == nil && m.AverageBPM == nil {
		return nil
	}

	score := 50.0
	if m.AsleepSeconds != nil {
		asleepMinutes := float64(*m.AsleepSeconds) / 60
		score = clamp(asleepMinutes/480*60+40, 0, 100)
	}

	if m.HRVMillis != nil {
		score += clamp((*m.HRVMillis-20)/40*15, 0, 15)
	}

	if m.RestingBPM != nil {
		score += clamp((70-*m.RestingBPM)/20*10, -10, 10)
	}

	rounded := int(math.Round(clamp(score, 0, 100)))
	return &rounded
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
