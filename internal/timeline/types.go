package timeline

import (
	"time"
)

// Category classifies what an event represents.
type Category string

const (
	Routine Category = "routine"
	Work    Category = "work"
	Meal    Category = "meal"
	Meeting Category = "meeting"
	Health  Category = "health"
	Family  Category = "family"
	Social  Category = "social"
	Travel  Category = "travel"
	Finance Category = "finance"
	Comm    Category = "comm"
	Digital Category = "digital"
	Sleep   Category = "sleep"
	Unknown Category = "unknown"
	Free    Category = "free"
)

func (c Category) IsValid() bool {
	switch c {
	case Routine, Work, Meal, Meeting, Health, Family, Social, Travel,
		Finance, Comm, Digital, Sleep, Unknown, Free:
		return true
	default:
		return false
	}
}

// Meta carries an event's provenance. Priority is derived from it, never
// stored alongside it.
type Meta struct {
	Source      string  `json:"source,omitempty"`
	Kind        string  `json:"kind,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	SourceID    string  `json:"source_id,omitempty"`
	LearnedFrom string  `json:"learned_from,omitempty"`
}

// Event is the canonical planned/actual event representation. Times are
// minutes from local midnight; StartMinutes+Duration is clipped at 1440 on
// ingest so a single event never crosses the day boundary.
type Event struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Category     Category `json:"category"`
	StartMinutes int      `json:"start_minutes"`
	Duration     int      `json:"duration"`
	Location     string   `json:"location,omitempty"`
	Meta         Meta     `json:"meta"`
}

// EndMinutes returns the exclusive end of the event's interval.
func (e Event) EndMinutes() int {
	return e.StartMinutes + e.Duration
}

// Overlaps reports whether two half-open intervals intersect.
func (e Event) Overlaps(other Event) bool {
	return e.StartMinutes < other.EndMinutes() && other.StartMinutes < e.EndMinutes()
}

// ClipToDay trims the event so it ends no later than midnight. Duration can
// reach zero, in which case the reconciler drops the event.
func (e Event) ClipToDay() Event {
	if e.StartMinutes < 0 {
		e.Duration += e.StartMinutes
		e.StartMinutes = 0
	}
	if end := e.EndMinutes(); end > MinutesPerDay {
		e.Duration = MinutesPerDay - e.StartMinutes
	}
	return e
}

// MinutesPerDay is the length of the reconciliation window.
const MinutesPerDay = 24 * 60

// MinutesOf converts a clock time to minutes from local midnight.
func MinutesOf(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
