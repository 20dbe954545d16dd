// Package verify compares planned events against the day's evidence bundle,
// producing per-event verification results, gap-derived actual blocks, and
// the day-level adherence summary.
package verify

import (
	"fmt"
	"sort"

	"github.com/daverage/planfact/internal/classify"
	"github.com/daverage/planfact/internal/evidence"
	"github.com/daverage/planfact/internal/timeline"
)

// Status is the per-planned-event verification outcome.
type Status string

const (
	StatusVerified     Status = "verified"
	StatusPartial      Status = "partial"
	StatusUnverified   Status = "unverified"
	StatusContradicted Status = "contradicted"
	StatusDistracted   Status = "distracted"
)

// EvidenceRefs records which evidence was consulted for one result.
type EvidenceRefs struct {
	LocationHours    []int
	ScreenSessionIDs []string
	WorkoutIDs       []string
}

// Result is the outcome for one planned event. Ephemeral; recomputed
// whenever planned events or evidence change.
type Result struct {
	EventID            string
	Status             Status
	Confidence         float64
	Evidence           EvidenceRefs
	DistractionMinutes int
}

// Thresholds are the tunable decision boundaries of the status
// classification. Defaults live in internal/config; treat these as
// parameters to validate against real usage, not exact constants.
type Thresholds struct {
	// DistractionMinutes of overlapping screen time during a non-digital
	// planned event flips the status to distracted.
	DistractionMinutes int
	// VerifiedCoverage is the consistent-evidence fraction needed for
	// verified.
	VerifiedCoverage float64
	// PartialCoverage is the fraction needed for partial.
	PartialCoverage float64
	// ContradictionCoverage is the fraction of the window a different
	// labeled place must cover for contradicted.
	ContradictionCoverage float64
	// MinGapMinutes is the smallest unplanned window GenerateActualBlocks
	// will try to fill.
	MinGapMinutes int
}

// DefaultThresholds returns the shipped decision boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DistractionMinutes:    20,
		VerifiedCoverage:      0.7,
		PartialCoverage:       0.2,
		ContradictionCoverage: 0.8,
		MinGapMinutes:         15,
	}
}

// Engine verifies planned events against evidence.
type Engine struct {
	thresholds Thresholds
	overrides  map[string]classify.Override
}

// NewEngine creates a verification engine. overrides may be nil.
func NewEngine(thresholds Thresholds, overrides map[string]classify.Override) *Engine {
	return &Engine{thresholds: thresholds, overrides: overrides}
}

// VerifyPlannedEvents classifies every planned event against the bundle,
// keyed by planned event id.
func (e *Engine) VerifyPlannedEvents(planned []timeline.Event, bundle evidence.Bundle) map[string]Result {
	results := make(map[string]Result, len(planned))
	for _, event := range planned {
		results[event.ID] = e.verifyOne(event, bundle)
	}
	return results
}

func (e *Engine) verifyOne(event timeline.Event, bundle evidence.Bundle) Result {
	start, end := event.StartMinutes, event.EndMinutes()
	window := end - start
	result := Result{EventID: event.ID, Status: StatusUnverified}
	if window <= 0 {
		return result
	}

	var supporting []span    // evidence consistent with the plan
	var contradicting []span // labeled-place evidence pointing elsewhere
	var distracting []span   // distraction-app screen time

	// Location hours: each row claims one [h:00, h+1:00) window.
	for _, row := range bundle.LocationHourly {
		s, ok := intersect(row.Hour*60, (row.Hour+1)*60, start, end)
		if !ok {
			continue
		}
		result.Evidence.LocationHours = append(result.Evidence.LocationHours, row.Hour)
		if event.Location != "" && row.PlaceLabel != "" && row.PlaceLabel != event.Location {
			contradicting = append(contradicting, s)
			continue
		}
		supporting = append(supporting, s)
	}

	// Workouts support health-category plans; for anything else they are
	// consulted but neutral.
	for _, w := range bundle.HealthWorkouts {
		s, ok := intersect(timeline.MinutesOf(w.Started), timeline.MinutesOf(w.Ended), start, end)
		if !ok {
			continue
		}
		result.Evidence.WorkoutIDs = append(result.Evidence.WorkoutIDs, w.ID)
		if event.Category == timeline.Health {
			supporting = append(supporting, s)
		}
	}

	// Screen sessions: distraction apps accumulate distraction minutes;
	// work apps support work-like plans; anything supports digital plans.
	for _, st := range bundle.ScreenTimeSessions {
		s, ok := intersect(timeline.MinutesOf(st.Started), timeline.MinutesOf(st.Ended), start, end)
		if !ok {
			continue
		}
		result.Evidence.ScreenSessionIDs = append(result.Evidence.ScreenSessionIDs, st.ID)
		class := classify.ClassifyAppUsage(st.App, e.overrides)
		if class.IsDistraction {
			distracting = append(distracting, s)
		}
		switch {
		case event.Category == timeline.Digital:
			supporting = append(supporting, s)
		case class.IsWork && supportsWork(event.Category):
			supporting = append(supporting, s)
		}
	}

	// Union, not sum: two overlapping distraction sessions cover the same
	// minutes once.
	result.DistractionMinutes = coveredMinutes(distracting, start, end)

	supportCoverage := float64(coveredMinutes(supporting, start, end)) / float64(window)
	contraCoverage := float64(coveredMinutes(contradicting, start, end)) / float64(window)

	switch {
	case event.Category != timeline.Digital && result.DistractionMinutes >= e.thresholds.DistractionMinutes:
		result.Status = StatusDistracted
		result.Confidence = clamp01(float64(result.DistractionMinutes) / float64(window))
	case contraCoverage >= e.thresholds.ContradictionCoverage && supportCoverage < e.thresholds.PartialCoverage:
		result.Status = StatusContradicted
		result.Confidence = clamp01(contraCoverage)
	case supportCoverage >= e.thresholds.VerifiedCoverage:
		result.Status = StatusVerified
		result.Confidence = clamp01(supportCoverage)
	case supportCoverage >= e.thresholds.PartialCoverage:
		result.Status = StatusPartial
		result.Confidence = clamp01(supportCoverage)
	default:
		result.Status = StatusUnverified
	}
	return result
}

// GenerateActualBlocks fills windows with no planned coverage using the best
// available evidence per sub-window, location first, then workouts, then
// screen time. Each block carries its own confidence and provenance meta.
func (e *Engine) GenerateActualBlocks(bundle evidence.Bundle, planned []timeline.Event) []timeline.Event {
	var blocks []timeline.Event
	for _, gap := range e.unplannedWindows(planned) {
		blocks = append(blocks, e.fillGap(gap, bundle)...)
	}
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].StartMinutes < blocks[j].StartMinutes
	})
	return blocks
}

func (e *Engine) unplannedWindows(planned []timeline.Event) []span {
	intervals := make([]span, 0, len(planned))
	for _, p := range planned {
		if p.Duration > 0 {
			intervals = append(intervals, span{p.StartMinutes, p.EndMinutes()})
		}
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].start < intervals[j].start })

	var gaps []span
	cursor := 0
	for _, iv := range intervals {
		if iv.start-cursor >= e.thresholds.MinGapMinutes {
			gaps = append(gaps, span{cursor, iv.start})
		}
		if iv.end > cursor {
			cursor = iv.end
		}
	}
	if timeline.MinutesPerDay-cursor >= e.thresholds.MinGapMinutes {
		gaps = append(gaps, span{cursor, timeline.MinutesPerDay})
	}
	return gaps
}

// fillGap resolves one unplanned window. A fresh reconciler per gap keeps
// source dominance: location blocks commit first, then workouts, then screen
// time, so at equal derived priority the earlier source wins the overlap.
func (e *Engine) fillGap(gap span, bundle evidence.Bundle) []timeline.Event {
	r := timeline.NewReconciler()

	for _, row := range bundle.LocationHourly {
		if row.PlaceID == "" {
			continue
		}
		s, ok := intersect(row.Hour*60, (row.Hour+1)*60, gap.start, gap.end)
		if !ok {
			continue
		}
		title := row.PlaceLabel
		if title == "" {
			title = row.PlaceID
		}
		r.AddEvent(timeline.Event{
			ID:           fmt.Sprintf("derived:loc:%d", row.Hour),
			Title:        title,
			Category:     timeline.Unknown,
			StartMinutes: s.start,
			Duration:     s.length(),
			Location:     row.PlaceLabel,
			Meta: timeline.Meta{
				Source:     timeline.SourceEvidence,
				Kind:       timeline.KindDerived,
				Confidence: derivedConfidence(row.Confidence, 0.7),
				SourceID:   row.PlaceID,
			},
		})
	}

	for _, w := range bundle.HealthWorkouts {
		s, ok := intersect(timeline.MinutesOf(w.Started), timeline.MinutesOf(w.Ended), gap.start, gap.end)
		if !ok {
			continue
		}
		r.AddEvent(timeline.Event{
			ID:           "derived:workout:" + w.ID,
			Title:        w.Activity,
			Category:     timeline.Health,
			StartMinutes: s.start,
			Duration:     s.length(),
			Meta: timeline.Meta{
				Source:     timeline.SourceEvidence,
				Kind:       timeline.KindDerived,
				Confidence: 0.8,
				SourceID:   w.ID,
			},
		})
	}

	for _, st := range bundle.ScreenTimeSessions {
		s, ok := intersect(timeline.MinutesOf(st.Started), timeline.MinutesOf(st.Ended), gap.start, gap.end)
		if !ok {
			continue
		}
		class := classify.ClassifyAppUsage(st.App, e.overrides)
		r.AddEvent(timeline.Event{
			ID:           "st:" + st.ID,
			Title:        class.Title,
			Category:     class.Category,
			StartMinutes: s.start,
			Duration:     s.length(),
			Meta: timeline.Meta{
				Source:     timeline.SourceScreenTime,
				Kind:       timeline.KindDerived,
				Confidence: class.Confidence,
				SourceID:   st.ID,
			},
		})
	}

	return r.Build()
}

func supportsWork(c timeline.Category) bool {
	return c == timeline.Work || c == timeline.Meeting || c == timeline.Finance || c == timeline.Comm
}

func derivedConfidence(rowConfidence, fallback float64) float64 {
	if rowConfidence > 0 {
		return clamp01(rowConfidence)
	}
	return fallback
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// span is a half-open minute interval within the day.
type span struct {
	start, end int
}

func (s span) length() int { return s.end - s.start }

func intersect(aStart, aEnd, bStart, bEnd int) (span, bool) {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	if end <= start {
		return span{}, false
	}
	return span{start, end}, true
}

// coveredMinutes returns the size of the union of spans clipped to
// [lo, hi).
func coveredMinutes(spans []span, lo, hi int) int {
	if len(spans) == 0 {
		return 0
	}
	clipped := make([]span, 0, len(spans))
	for _, s := range spans {
		if c, ok := intersect(s.start, s.end, lo, hi); ok {
			clipped = append(clipped, c)
		}
	}
	sort.Slice(clipped, func(i, j int) bool { return clipped[i].start < clipped[j].start })

	total := 0
	cursor := lo
	for _, s := range clipped {
		if s.end <= cursor {
			continue
		}
		if s.start > cursor {
			cursor = s.start
		}
		total += s.end - cursor
		cursor = s.end
	}
	return total
}
