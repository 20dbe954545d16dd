// Package pattern learns a recurring weekly schedule from historical actual
// events. The index maps (weekday, 30-minute slot) to the behavior most
// often observed there; it backs gap suggestions and daily anomaly reports.
package pattern

import (
	"math"
	"sort"
	"time"

	"github.com/daverage/planfact/internal/timeline"
)

// SlotMinutes is the bucketing granularity of the learned schedule.
const SlotMinutes = 30

// confirmedWeight is the vote weight of an event the user previously
// confirmed (Meta.LearnedFrom set); everything else weighs 1.
const confirmedWeight = 1.5

// SlotKey identifies one learned slot. A struct key, not a concatenated
// string, so lookups stay typo-proof.
type SlotKey struct {
	Weekday   time.Weekday
	SlotStart int // minutes from midnight, multiple of SlotMinutes
}

// Slot is the learned behavior for one (weekday, slot) bucket.
type Slot struct {
	Key                SlotKey
	Category           timeline.Category
	Title              string
	Confidence         float64 // winner weight / total weight, in [0,1]
	SampleCount        int     // rounded total weight
	AvgDurationMinutes int     // weighted average
}

// Index is the full learned schedule for one user.
type Index struct {
	Slots map[SlotKey]Slot
}

// HistoryEntry pairs an actual event with the day it occurred on.
type HistoryEntry struct {
	YMD   string
	Event timeline.Event
}

type vote struct {
	category timeline.Category
	title    string
}

type accumulator struct {
	votes           map[vote]float64
	totalWeight     float64
	weightedMinutes float64
}

// BuildIndex learns the weekly pattern from multi-week actual history.
// Entries with unparseable dates or non-positive durations are skipped.
func BuildIndex(entries []HistoryEntry) *Index {
	accs := make(map[SlotKey]*accumulator)

	for _, entry := range entries {
		day, err := time.Parse("2006-01-02", entry.YMD)
		if err != nil {
			continue
		}
		e := entry.Event
		if e.Duration <= 0 {
			continue
		}
		key := SlotKey{
			Weekday:   day.Weekday(),
			SlotStart: (e.StartMinutes / SlotMinutes) * SlotMinutes,
		}
		acc, ok := accs[key]
		if !ok {
			acc = &accumulator{votes: make(map[vote]float64)}
			accs[key] = acc
		}
		weight := 1.0
		if e.Meta.LearnedFrom != "" {
			weight = confirmedWeight
		}
		acc.votes[vote{category: e.Category, title: e.Title}] += weight
		acc.totalWeight += weight
		acc.weightedMinutes += weight * float64(e.Duration)
	}

	index := &Index{Slots: make(map[SlotKey]Slot, len(accs))}
	for key, acc := range accs {
		winner, winnerWeight := bestVote(acc.votes)
		index.Slots[key] = Slot{
			Key:                key,
			Category:           winner.category,
			Title:              winner.title,
			Confidence:         winnerWeight / acc.totalWeight,
			SampleCount:        int(math.Round(acc.totalWeight)),
			AvgDurationMinutes: int(math.Round(acc.weightedMinutes / acc.totalWeight)),
		}
	}
	return index
}

// bestVote picks the heaviest (category, title) pair; ties break
// deterministically by category then title.
func bestVote(votes map[vote]float64) (vote, float64) {
	keys := make([]vote, 0, len(votes))
	for v := range votes {
		keys = append(keys, v)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].category != keys[j].category {
			return keys[i].category < keys[j].category
		}
		return keys[i].title < keys[j].title
	})

	var best vote
	bestWeight := -1.0
	for _, v := range keys {
		if votes[v] > bestWeight {
			best = v
			bestWeight = votes[v]
		}
	}
	return best, bestWeight
}

// SuggestForRange scans every slot the [startMinutes, endMinutes) range
// touches on ymd's weekday and returns the most confident one, or nil when
// no slot exists.
func (idx *Index) SuggestForRange(ymd string, startMinutes, endMinutes int) *Slot {
	if idx == nil || len(idx.Slots) == 0 {
		return nil
	}
	day, err := time.Parse("2006-01-02", ymd)
	if err != nil {
		return nil
	}
	if endMinutes > timeline.MinutesPerDay {
		endMinutes = timeline.MinutesPerDay
	}

	var best *Slot
	first := (startMinutes / SlotMinutes) * SlotMinutes
	for slotStart := first; slotStart < endMinutes; slotStart += SlotMinutes {
		slot, ok := idx.Slots[SlotKey{Weekday: day.Weekday(), SlotStart: slotStart}]
		if !ok {
			continue
		}
		if best == nil || slot.Confidence > best.Confidence {
			s := slot
			best = &s
		}
	}
	return best
}

// ApplySuggestions rewrites only unknown-category events, replacing title
// and category when the best matching slot clears minConfidence. Provenance
// is left alone so the event keeps its trust rank on later reconciles.
// Everything else passes through untouched.
func (idx *Index) ApplySuggestions(events []timeline.Event, ymd string, minConfidence float64) []timeline.Event {
	out := make([]timeline.Event, len(events))
	copy(out, events)
	if idx == nil {
		return out
	}
	for i, e := range out {
		if e.Category != timeline.Unknown {
			continue
		}
		slot := idx.SuggestForRange(ymd, e.StartMinutes, e.EndMinutes())
		if slot == nil || slot.Confidence < minConfidence {
			continue
		}
		out[i].Title = slot.Title
		out[i].Category = slot.Category
	}
	return out
}

// Anomaly records one slot whose expected category disagreed with what the
// day's actual timeline shows.
type Anomaly struct {
	Key      SlotKey
	Expected timeline.Category
	Observed timeline.Category
}

// AnomalyReport is the day-level deviation summary.
type AnomalyReport struct {
	Anomalies       []Anomaly
	SlotsConsidered int
	AnomalyScore    float64 // anomalies / slots considered, 0 when none qualify
}

// DailyAnomalies compares every sufficiently confident slot of ymd's weekday
// against the category actually observed in that slot (largest
// overlap-minutes wins). Slots observed as unknown never count as
// anomalous.
func (idx *Index) DailyAnomalies(ymd string, actual []timeline.Event, minConfidence float64) AnomalyReport {
	var report AnomalyReport
	if idx == nil {
		return report
	}
	day, err := time.Parse("2006-01-02", ymd)
	if err != nil {
		return report
	}

	keys := make([]SlotKey, 0, len(idx.Slots))
	for key := range idx.Slots {
		if key.Weekday == day.Weekday() {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].SlotStart < keys[j].SlotStart })

	for _, key := range keys {
		slot := idx.Slots[key]
		if slot.Confidence < minConfidence {
			continue
		}
		report.SlotsConsidered++
		observed := dominantCategory(actual, key.SlotStart, key.SlotStart+SlotMinutes)
		if observed == timeline.Unknown || observed == slot.Category {
			continue
		}
		report.Anomalies = append(report.Anomalies, Anomaly{
			Key:      key,
			Expected: slot.Category,
			Observed: observed,
		})
	}

	if report.SlotsConsidered > 0 {
		report.AnomalyScore = float64(len(report.Anomalies)) / float64(report.SlotsConsidered)
	}
	return report
}

// dominantCategory returns the category with the most overlap minutes in
// [slotStart, slotEnd), or unknown when nothing overlaps.
func dominantCategory(events []timeline.Event, slotStart, slotEnd int) timeline.Category {
	overlap := make(map[timeline.Category]int)
	for _, e := range events {
		start := e.StartMinutes
		if slotStart > start {
			start = slotStart
		}
		end := e.EndMinutes()
		if slotEnd < end {
			end = slotEnd
		}
		if end > start {
			overlap[e.Category] += end - start
		}
	}
	if len(overlap) == 0 {
		return timeline.Unknown
	}

	categories := make([]timeline.Category, 0, len(overlap))
	for c := range overlap {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	best := timeline.Unknown
	bestMinutes := 0
	for _, c := range categories {
		if overlap[c] > bestMinutes {
			best = c
			bestMinutes = overlap[c]
		}
	}
	return best
}
