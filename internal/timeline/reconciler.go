package timeline

import (
	"fmt"
	"sort"
)

// DefaultMinDuration is the shortest segment the reconciler will keep.
const DefaultMinDuration = 1

// Overlap describes a residual overlap found by Validate.
type Overlap struct {
	FirstID  string
	SecondID string
	Start    int
	End      int
}

// ValidationResult is the outcome of a Validate scan.
type ValidationResult struct {
	Valid    bool
	Overlaps []Overlap
}

// Reconciler merges candidate events from many sources into one
// non-overlapping timeline. Overlaps are resolved by provenance priority:
// the weaker event is split around the stronger one and only remainders
// meeting the minimum duration survive. Create a fresh Reconciler per run;
// it holds no state across builds.
type Reconciler struct {
	minDuration int
	held        []Event
}

// NewReconciler returns a reconciler with the default minimum segment
// duration of one minute.
func NewReconciler() *Reconciler {
	return &Reconciler{minDuration: DefaultMinDuration}
}

// NewReconcilerWithMinDuration overrides the minimum surviving segment
// length. Values below one are treated as one.
func NewReconcilerWithMinDuration(minutes int) *Reconciler {
	if minutes < 1 {
		minutes = 1
	}
	return &Reconciler{minDuration: minutes}
}

// AddEvent inserts one event, splitting weaker overlapping events around it
// and splitting the event itself around stronger-or-equal ones. Zero and
// negative durations are dropped silently.
func (r *Reconciler) AddEvent(e Event) {
	e = e.ClipToDay()
	if e.Duration <= 0 {
		return
	}

	prio := PriorityOf(e)

	var lower, higherOrEqual []Event
	var kept []Event
	for _, held := range r.held {
		if !held.Overlaps(e) {
			kept = append(kept, held)
			continue
		}
		if prio.Outranks(PriorityOf(held)) {
			lower = append(lower, held)
		} else {
			// Equal priority favors the already-held event.
			higherOrEqual = append(higherOrEqual, held)
			kept = append(kept, held)
		}
	}

	// Weaker events keep only their remainders outside the new interval.
	for _, weak := range lower {
		kept = append(kept, r.splitAround(weak, e.StartMinutes, e.EndMinutes())...)
	}

	if len(higherOrEqual) == 0 {
		kept = append(kept, e)
		r.held = kept
		return
	}

	// The new event yields to its blockers: emit a segment for each gap
	// between them plus a trailing remainder.
	sort.Slice(higherOrEqual, func(i, j int) bool {
		return higherOrEqual[i].StartMinutes < higherOrEqual[j].StartMinutes
	})

	cursor := e.StartMinutes
	segment := 0
	for _, blocker := range higherOrEqual {
		if blocker.StartMinutes > cursor {
			end := blocker.StartMinutes
			if end > e.EndMinutes() {
				end = e.EndMinutes()
			}
			if seg, ok := r.segmentOf(e, cursor, end, segment); ok {
				kept = append(kept, seg)
				segment++
			}
		}
		if blocker.EndMinutes() > cursor {
			cursor = blocker.EndMinutes()
		}
	}
	if cursor < e.EndMinutes() {
		if seg, ok := r.segmentOf(e, cursor, e.EndMinutes(), segment); ok {
			kept = append(kept, seg)
		}
	}

	r.held = kept
}

// AddEvents commits a batch strongest-priority-first, then by start time, so
// the result is independent of the caller's ordering.
func (r *Reconciler) AddEvents(events []Event) {
	batch := make([]Event, len(events))
	copy(batch, events)
	sort.SliceStable(batch, func(i, j int) bool {
		pi, pj := PriorityOf(batch[i]), PriorityOf(batch[j])
		if pi != pj {
			return pi.Outranks(pj)
		}
		return batch[i].StartMinutes < batch[j].StartMinutes
	})
	for _, e := range batch {
		r.AddEvent(e)
	}
}

// Build returns the held segments sorted by start time.
func (r *Reconciler) Build() []Event {
	out := make([]Event, len(r.held))
	copy(out, r.held)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartMinutes < out[j].StartMinutes
	})
	return out
}

// Validate re-scans the built timeline for residual pairwise overlaps. A
// non-empty result indicates a reconciler bug, not bad input.
func (r *Reconciler) Validate() ValidationResult {
	events := r.Build()
	var overlaps []Overlap
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if cur.StartMinutes < prev.EndMinutes() {
			end := prev.EndMinutes()
			if cur.EndMinutes() < end {
				end = cur.EndMinutes()
			}
			overlaps = append(overlaps, Overlap{
				FirstID:  prev.ID,
				SecondID: cur.ID,
				Start:    cur.StartMinutes,
				End:      end,
			})
		}
	}
	return ValidationResult{Valid: len(overlaps) == 0, Overlaps: overlaps}
}

// splitAround keeps the pieces of e lying outside [start,end), dropping the
// overlapped middle and any remainder shorter than the minimum duration.
func (r *Reconciler) splitAround(e Event, start, end int) []Event {
	var out []Event
	segment := 0
	if before := start - e.StartMinutes; before >= r.minDuration {
		if seg, ok := r.segmentOf(e, e.StartMinutes, start, segment); ok {
			out = append(out, seg)
			segment++
		}
	}
	if after := e.EndMinutes() - end; after >= r.minDuration {
		if seg, ok := r.segmentOf(e, end, e.EndMinutes(), segment); ok {
			out = append(out, seg)
		}
	}
	return out
}

// segmentOf copies e onto [start,end) with a synthesized split id. All other
// fields carry over unchanged.
func (r *Reconciler) segmentOf(e Event, start, end, n int) (Event, bool) {
	if end-start < r.minDuration {
		return Event{}, false
	}
	seg := e
	seg.ID = fmt.Sprintf("%s:split:%d", e.ID, n)
	seg.StartMinutes = start
	seg.Duration = end - start
	return seg, true
}

// BuildNonOverlappingTimeline is the one-shot convenience over the
// incremental builder.
func BuildNonOverlappingTimeline(events []Event) []Event {
	r := NewReconciler()
	r.AddEvents(events)
	return r.Build()
}
