package verify

import (
	"testing"
	"time"

	"github.com/daverage/planfact/internal/evidence"
	"github.com/daverage/planfact/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func plannedEvent(id string, category timeline.Category, startMin, duration int, location string) timeline.Event {
	return timeline.Event{
		ID:           id,
		Title:        id,
		Category:     category,
		StartMinutes: startMin,
		Duration:     duration,
		Location:     location,
		Meta:         timeline.Meta{Source: timeline.SourceUser},
	}
}

func officeHours(from, to int) []evidence.LocationHourly {
	var rows []evidence.LocationHourly
	for h := from; h < to; h++ {
		rows = append(rows, evidence.LocationHourly{
			Hour: h, PlaceID: "office", PlaceLabel: "Office", Confidence: 0.85,
		})
	}
	return rows
}

func TestVerifiedWhenLocationCoversWindow(t *testing.T) {
	e := NewEngine(DefaultThresholds(), nil)
	planned := []timeline.Event{plannedEvent("p1", timeline.Work, 9*60, 120, "Office")}
	bundle := evidence.Bundle{LocationHourly: officeHours(9, 11)}

	results := e.VerifyPlannedEvents(planned, bundle)
	require.Contains(t, results, "p1")
	assert.Equal(t, StatusVerified, results["p1"].Status)
	assert.InDelta(t, 1.0, results["p1"].Confidence, 1e-9)
	assert.Equal(t, []int{9, 10}, results["p1"].Evidence.LocationHours)
}

func TestPartialWhenCoverageIsLow(t *testing.T) {
	e := NewEngine(DefaultThresholds(), nil)
	planned := []timeline.Event{plannedEvent("p1", timeline.Work, 9*60, 240, "Office")}
	bundle := evidence.Bundle{LocationHourly: officeHours(9, 10)} // one of four hours

	results := e.VerifyPlannedEvents(planned, bundle)
	assert.Equal(t, StatusPartial, results["p1"].Status)
	assert.InDelta(t, 0.25, results["p1"].Confidence, 1e-9)
}

func TestUnverifiedWhenNoEvidence(t *testing.T) {
	e := NewEngine(DefaultThresholds(), nil)
	planned := []timeline.Event{plannedEvent("p1", timeline.Work, 9*60, 60, "Office")}

	results := e.VerifyPlannedEvents(planned, evidence.Bundle{})
	assert.Equal(t, StatusUnverified, results["p1"].Status)
	assert.Zero(t, results["p1"].Confidence)
}

func TestContradictedByDifferentPlace(t *testing.T) {
	e := NewEngine(DefaultThresholds(), nil)
	planned := []timeline.Event{plannedEvent("p1", timeline.Work, 9*60, 120, "Office")}
	bundle := evidence.Bundle{LocationHourly: []evidence.LocationHourly{
		{Hour: 9, PlaceID: "cafe", PlaceLabel: "Cafe"},
		{Hour: 10, PlaceID: "cafe", PlaceLabel: "Cafe"},
	}}

	results := e.VerifyPlannedEvents(planned, bundle)
	assert.Equal(t, StatusContradicted, results["p1"].Status)
}

func TestDistractedByScreenTime(t *testing.T) {
	e := NewEngine(DefaultThresholds(), nil)
	planned := []timeline.Event{plannedEvent("p1", timeline.Work, 9*60, 60, "")}
	bundle := evidence.Bundle{ScreenTimeSessions: []evidence.ScreenSession{
		{ID: "st-1", App: "YouTube", Started: at(9, 5), Ended: at(9, 35)},
	}}

	results := e.VerifyPlannedEvents(planned, bundle)
	assert.Equal(t, StatusDistracted, results["p1"].Status)
	assert.Equal(t, 30, results["p1"].DistractionMinutes)
}

func TestOverlappingDistractionSessionsCountOnce(t *testing.T) {
	e := NewEngine(DefaultThresholds(), nil)
	planned := []timeline.Event{plannedEvent("p1", timeline.Work, 10*60, 60, "")}
	bundle := evidence.Bundle{ScreenTimeSessions: []evidence.ScreenSession{
		{ID: "st-1", App: "YouTube", Started: at(10, 0), Ended: at(10, 30)},
		{ID: "st-2", App: "TikTok", Started: at(10, 10), Ended: at(10, 40)},
	}}

	results := e.VerifyPlannedEvents(planned, bundle)
	assert.Equal(t, StatusDistracted, results["p1"].Status)
	assert.Equal(t, 40, results["p1"].DistractionMinutes,
		"10:00-10:40 is 40 distracted minutes, not 30+30")
}

func TestDigitalPlanNotDistractedByItself(t *testing.T) {
	e := NewEngine(DefaultThresholds(), nil)
	planned := []timeline.Event{plannedEvent("p1", timeline.Digital, 20*60, 60, "")}
	bundle := evidence.Bundle{ScreenTimeSessions: []evidence.ScreenSession{
		{ID: "st-1", App: "Netflix", Started: at(20, 0), Ended: at(21, 0)},
	}}

	results := e.VerifyPlannedEvents(planned, bundle)
	assert.Equal(t, StatusVerified, results["p1"].Status)
}

func TestWorkoutVerifiesHealthPlan(t *testing.T) {
	e := NewEngine(DefaultThresholds(), nil)
	planned := []timeline.Event{plannedEvent("p1", timeline.Health, 7*60, 45, "")}
	bundle := evidence.Bundle{HealthWorkouts: []evidence.HealthWorkout{
		{ID: "w-1", Activity: "Running", Started: at(7, 0), Ended: at(7, 40)},
	}}

	results := e.VerifyPlannedEvents(planned, bundle)
	assert.Equal(t, StatusVerified, results["p1"].Status)
	assert.Equal(t, []string{"w-1"}, results["p1"].Evidence.WorkoutIDs)
}

func TestGenerateActualBlocksFillsUnplannedWindow(t *testing.T) {
	e := NewEngine(DefaultThresholds(), nil)
	planned := []timeline.Event{plannedEvent("p1", timeline.Work, 0, 9*60, "")} // planned until 09:00
	bundle := evidence.Bundle{
		LocationHourly: officeHours(9, 11),
		ScreenTimeSessions: []evidence.ScreenSession{
			{ID: "st-1", App: "YouTube", Started: at(11, 0), Ended: at(11, 30)},
		},
	}

	blocks := e.GenerateActualBlocks(bundle, planned)
	require.NotEmpty(t, blocks)

	// Location evidence covers 09:00-11:00.
	assert.Equal(t, 9*60, blocks[0].StartMinutes)
	assert.Equal(t, "Office", blocks[0].Title)
	assert.Equal(t, timeline.KindDerived, blocks[0].Meta.Kind)
	assert.Equal(t, timeline.SourceEvidence, blocks[0].Meta.Source)

	last := blocks[len(blocks)-1]
	assert.Equal(t, timeline.SourceScreenTime, last.Meta.Source)
	assert.Equal(t, 11*60, last.StartMinutes)
	assert.Equal(t, 30, last.Duration)
}

func TestGenerateActualBlocksLocationOutranksScreenTime(t *testing.T) {
	e := NewEngine(DefaultThresholds(), nil)
	bundle := evidence.Bundle{
		LocationHourly: officeHours(9, 10),
		ScreenTimeSessions: []evidence.ScreenSession{
			{ID: "st-1", App: "YouTube", Started: at(9, 0), Ended: at(10, 0)},
		},
	}

	blocks := e.GenerateActualBlocks(bundle, nil)
	for _, b := range blocks {
		if b.StartMinutes >= 9*60 && b.EndMinutes() <= 10*60 {
			assert.Equal(t, timeline.SourceEvidence, b.Meta.Source,
				"location evidence must win the 09:00-10:00 window")
		}
	}
}

func TestGenerateActualBlocksSkipsSmallGaps(t *testing.T) {
	e := NewEngine(DefaultThresholds(), nil)
	planned := []timeline.Event{
		plannedEvent("p1", timeline.Work, 0, 9*60, ""),
		plannedEvent("p2", timeline.Work, 9*60+10, timeline.MinutesPerDay-(9*60+10), ""),
	}
	bundle := evidence.Bundle{LocationHourly: officeHours(9, 10)}

	blocks := e.GenerateActualBlocks(bundle, planned)
	assert.Empty(t, blocks, "a 10-minute gap is below the fill threshold")
}

func TestSummarizeAdherence(t *testing.T) {
	results := map[string]Result{
		"a": {Status: StatusVerified},
		"b": {Status: StatusPartial},
		"c": {Status: StatusUnverified},
		"d": {Status: StatusDistracted, DistractionMinutes: 35},
	}
	s := Summarize(results)
	assert.Equal(t, 1, s.Verified)
	assert.Equal(t, 1, s.Partial)
	assert.Equal(t, 1, s.Unverified)
	assert.Equal(t, 1, s.Distracted)
	// (1 + 0.5) / 4 = 37.5 -> 38
	assert.Equal(t, 38, s.AdherenceScore)
	assert.Equal(t, 35, s.DistractionMinutes)
}

func TestSummarizeEmptyDayScoresFull(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 100, s.AdherenceScore)
}

func TestSummarizeScoreBounds(t *testing.T) {
	all := map[string]Result{
		"a": {Status: StatusVerified},
		"b": {Status: StatusVerified},
	}
	assert.Equal(t, 100, Summarize(all).AdherenceScore)

	none := map[string]Result{
		"a": {Status: StatusContradicted},
		"b": {Status: StatusUnverified},
	}
	assert.Equal(t, 0, Summarize(none).AdherenceScore)
}
