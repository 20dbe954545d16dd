// Package session groups raw per-source evidence into coherent place and
// commute sessions. The builder is a pure sweep over one day window: group
// by place, merge micro-gaps, absorb stray short sessions.
package session

import (
	"sort"
	"time"
)

// Source identifies which collector produced a raw event.
type Source string

const (
	SourceLocation   Source = "location"
	SourceScreenTime Source = "screen_time"
	SourceHealth     Source = "health"
)

// Intent is the coarse classification attached to a finished session.
type Intent string

const (
	IntentWork           Intent = "work"
	IntentLeisure        Intent = "leisure"
	IntentDistractedWork Intent = "distracted_work"
	IntentOffline        Intent = "offline"
	IntentMixed          Intent = "mixed"
)

// Kind distinguishes place sessions from commutes and unknown-place spans.
type Kind string

const (
	KindPlace   Kind = "place"
	KindCommute Kind = "commute"
	KindUnknown Kind = "unknown"
)

const (
	// microGapLimit is the exclusive upper bound on a gap that still merges
	// two same-place sessions.
	microGapLimit = 5 * time.Minute
	// shortSessionLimit is the exclusive upper bound on a session eligible
	// for absorption into a same-place neighbor.
	shortSessionLimit = 10 * time.Minute
)

// RawEvent is a single immutable observation from one collector.
type RawEvent struct {
	ID          string
	Start       time.Time
	End         time.Time
	Source      Source
	PlaceID     string // empty means unknown place
	AppName     string
	Commute     bool
	Accuracy    float64
	SampleCount int
}

// Block is a contiguous span attributed to one place or a commute.
type Block struct {
	ID            string
	PlaceID       string
	Kind          Kind
	Start         time.Time
	End           time.Time
	Intent        Intent
	Confidence    float64
	ChildEventIDs []string
	// Summary maps an app or activity label to total seconds observed.
	Summary map[string]int
}

// Duration returns the span length of the block.
func (b Block) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

func (b Block) samePlace(other Block) bool {
	return b.PlaceID == other.PlaceID
}

// Sessionize groups raw events for one window into ordered sessions. Events
// outside [windowStart, windowEnd) are ignored. It never fails: an empty
// window produces an empty slice.
func Sessionize(windowStart, windowEnd time.Time, events []RawEvent) []Block {
	inWindow := make([]RawEvent, 0, len(events))
	for _, e := range events {
		if e.End.After(windowStart) && e.Start.Before(windowEnd) {
			inWindow = append(inWindow, e)
		}
	}
	if len(inWindow) == 0 {
		return []Block{}
	}

	sort.SliceStable(inWindow, func(i, j int) bool {
		return inWindow[i].Start.Before(inWindow[j].Start)
	})

	var sessions []Block
	var current *Block
	for _, e := range inWindow {
		// Commutes always stand alone, whatever their duration.
		if e.Commute {
			if current != nil {
				sessions = append(sessions, *current)
				current = nil
			}
			sessions = append(sessions, blockFromEvent(e, KindCommute))
			continue
		}
		if current != nil && current.PlaceID == e.PlaceID {
			extend(current, e)
			continue
		}
		if current != nil {
			sessions = append(sessions, *current)
		}
		kind := KindPlace
		if e.PlaceID == "" {
			kind = KindUnknown
		}
		b := blockFromEvent(e, kind)
		current = &b
	}
	if current != nil {
		sessions = append(sessions, *current)
	}

	sessions = MergeMicroGaps(sessions)
	sessions = AbsorbShortSessions(sessions)

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Start.Before(sessions[j].Start)
	})
	return sessions
}

// MergeMicroGaps collapses adjacent non-commute sessions at the same place
// whose gap is under five minutes. Applied left to right repeatedly, so a
// run of sub-five-minute gaps collapses into one session. A single-session
// input is returned unchanged.
func MergeMicroGaps(sessions []Block) []Block {
	if len(sessions) < 2 {
		return sessions
	}
	out := make([]Block, 0, len(sessions))
	out = append(out, sessions[0])
	for _, next := range sessions[1:] {
		last := &out[len(out)-1]
		if canMerge(*last, next) {
			merge(last, next)
			continue
		}
		out = append(out, next)
	}
	return out
}

func canMerge(a, b Block) bool {
	if a.Kind == KindCommute || b.Kind == KindCommute {
		return false
	}
	if !a.samePlace(b) {
		return false
	}
	gap := b.Start.Sub(a.End)
	return gap < microGapLimit
}

// AbsorbShortSessions folds sessions under ten minutes into an adjacent
// session at the same place, preferring the preceding one. Iterates until no
// further absorption is possible so chains of short same-place sessions
// collapse into the first long session they touch. Commutes are never
// absorbed and never absorb.
func AbsorbShortSessions(sessions []Block) []Block {
	current := sessions
	for {
		next, changed := absorbOnce(current)
		if !changed {
			return next
		}
		current = next
	}
}

func absorbOnce(sessions []Block) ([]Block, bool) {
	for i, s := range sessions {
		if s.Kind == KindCommute || s.Duration() >= shortSessionLimit {
			continue
		}
		if i > 0 && absorbable(sessions[i-1], s) {
			out := make([]Block, 0, len(sessions)-1)
			out = append(out, sessions[:i]...)
			merge(&out[i-1], s)
			out = append(out, sessions[i+1:]...)
			return out, true
		}
		if i < len(sessions)-1 && absorbable(sessions[i+1], s) {
			out := make([]Block, 0, len(sessions)-1)
			out = append(out, sessions[:i]...)
			neighbor := sessions[i+1]
			mergeBefore(&neighbor, s)
			out = append(out, neighbor)
			out = append(out, sessions[i+2:]...)
			return out, true
		}
	}
	return sessions, false
}

func absorbable(neighbor, short Block) bool {
	return neighbor.Kind != KindCommute && neighbor.samePlace(short)
}

func blockFromEvent(e RawEvent, kind Kind) Block {
	b := Block{
		ID:            "session:" + e.ID,
		PlaceID:       e.PlaceID,
		Kind:          kind,
		Start:         e.Start,
		End:           e.End,
		Confidence:    confidenceOf(e),
		ChildEventIDs: []string{e.ID},
		Summary:       map[string]int{},
	}
	if e.AppName != "" {
		b.Summary[e.AppName] = int(e.End.Sub(e.Start).Seconds())
	}
	return b
}

func extend(b *Block, e RawEvent) {
	if e.Start.Before(b.Start) {
		b.Start = e.Start
	}
	if e.End.After(b.End) {
		b.End = e.End
	}
	b.ChildEventIDs = append(b.ChildEventIDs, e.ID)
	if e.AppName != "" {
		b.Summary[e.AppName] += int(e.End.Sub(e.Start).Seconds())
	}
	if c := confidenceOf(e); c > b.Confidence {
		b.Confidence = c
	}
}

// merge extends dst to cover src, concatenating children and summing the
// app-usage summaries by label. dst's map and slice may alias blocks the
// caller still holds, so both are rebuilt rather than written in place.
func merge(dst *Block, src Block) {
	if src.Start.Before(dst.Start) {
		dst.Start = src.Start
	}
	if src.End.After(dst.End) {
		dst.End = src.End
	}
	dst.ChildEventIDs = concatChildren(dst.ChildEventIDs, src.ChildEventIDs)
	dst.Summary = sumSummaries(dst.Summary, src.Summary)
	if src.Confidence > dst.Confidence {
		dst.Confidence = src.Confidence
	}
}

// mergeBefore folds src into dst keeping src's children first, used when a
// short session is absorbed by its following neighbor.
func mergeBefore(dst *Block, src Block) {
	if src.Start.Before(dst.Start) {
		dst.Start = src.Start
	}
	if src.End.After(dst.End) {
		dst.End = src.End
	}
	dst.ChildEventIDs = concatChildren(src.ChildEventIDs, dst.ChildEventIDs)
	dst.Summary = sumSummaries(dst.Summary, src.Summary)
	if src.Confidence > dst.Confidence {
		dst.Confidence = src.Confidence
	}
}

func concatChildren(first, second []string) []string {
	out := make([]string, 0, len(first)+len(second))
	out = append(out, first...)
	return append(out, second...)
}

func sumSummaries(a, b map[string]int) map[string]int {
	out := make(map[string]int, len(a)+len(b))
	for label, seconds := range a {
		out[label] = seconds
	}
	for label, seconds := range b {
		out[label] += seconds
	}
	return out
}

func confidenceOf(e RawEvent) float64 {
	switch {
	case e.Source == SourceLocation && e.Accuracy > 0 && e.Accuracy <= 50:
		return 0.9
	case e.Source == SourceLocation:
		return 0.7
	case e.Source == SourceHealth:
		return 0.8
	default:
		return 0.6
	}
}
