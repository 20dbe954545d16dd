package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daverage/planfact/internal/evidence"
	"github.com/daverage/planfact/internal/storage"
	"github.com/daverage/planfact/internal/timeline"
	"github.com/daverage/planfact/internal/verify"
)

func newTestRunner(t *testing.T) (*Runner, *storage.DB) {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	runner := NewRunner(db, evidence.NewService(db, logger), logger, Options{
		Thresholds:            verify.DefaultThresholds(),
		PatternMinConfidence:  0.6,
		AnomalySlotConfidence: 0.5,
	})
	return runner, db
}

func TestRunDayRejectsBadDate(t *testing.T) {
	runner, _ := newTestRunner(t)

	_, err := runner.RunDay(context.Background(), "03/02/2026")
	assert.Error(t, err)
}

func TestRunDayEmptyEverything(t *testing.T) {
	runner, _ := newTestRunner(t)

	report, err := runner.RunDay(context.Background(), "2026-03-02")
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Equal(t, 100, report.Summary.AdherenceScore, "no planned events scores 100")
	assert.Empty(t, report.Timeline)
	assert.True(t, report.Validation.Valid)
}

func TestRunDayVerifiesAndDerivesBlocks(t *testing.T) {
	runner, db := newTestRunner(t)
	ctx := context.Background()
	ymd := "2026-03-02"

	require.NoError(t, db.CreateEvent(ctx, ymd, storage.RolePlanned, timeline.Event{
		ID: "evt-1", Title: "Deep work", Category: timeline.Work,
		StartMinutes: 540, Duration: 60, Location: "Office",
	}))
	require.NoError(t, db.IngestLocationHourly(ctx, ymd, []evidence.LocationHourly{
		{Hour: 9, PlaceID: "office", PlaceLabel: "Office", SampleCount: 12, Confidence: 0.9},
		{Hour: 13, PlaceID: "cafe", PlaceLabel: "Cafe", SampleCount: 8, Confidence: 0.8},
	}))

	report, err := runner.RunDay(ctx, ymd)
	require.NoError(t, err)

	require.Contains(t, report.Results, "evt-1")
	assert.Equal(t, verify.StatusVerified, report.Results["evt-1"].Status)
	assert.Equal(t, 100, report.Summary.AdherenceScore)

	// the cafe hour falls in unplanned time and becomes a derived block
	var cafe *timeline.Event
	for i := range report.Timeline {
		if report.Timeline[i].ID == "derived:loc:13" {
			cafe = &report.Timeline[i]
		}
	}
	require.NotNil(t, cafe)
	assert.Equal(t, 780, cafe.StartMinutes)
	assert.Equal(t, 60, cafe.Duration)
	assert.Equal(t, timeline.Unknown, cafe.Category)
	assert.True(t, report.Validation.Valid)

	persisted, err := db.EventsForDay(ctx, ymd, storage.RoleActual)
	require.NoError(t, err)
	assert.Len(t, persisted, len(report.Timeline))
}

func TestRunDayIsIdempotent(t *testing.T) {
	runner, db := newTestRunner(t)
	ctx := context.Background()
	ymd := "2026-03-02"

	require.NoError(t, db.IngestLocationHourly(ctx, ymd, []evidence.LocationHourly{
		{Hour: 9, PlaceID: "office", PlaceLabel: "Office", SampleCount: 12, Confidence: 0.9},
	}))

	first, err := runner.RunDay(ctx, ymd)
	require.NoError(t, err)
	second, err := runner.RunDay(ctx, ymd)
	require.NoError(t, err)
	assert.Len(t, second.Timeline, len(first.Timeline))

	persisted, err := db.EventsForDay(ctx, ymd, storage.RoleActual)
	require.NoError(t, err)
	assert.Len(t, persisted, len(first.Timeline))
}

func TestRunDayDoesNotDuplicateEquivalentDerived(t *testing.T) {
	runner, db := newTestRunner(t)
	ctx := context.Background()
	ymd := "2026-03-02"

	// a derived row for the 09:00 office hour already exists under a
	// different id; re-running must recognize it as equivalent
	require.NoError(t, db.CreateEvent(ctx, ymd, storage.RoleActual, timeline.Event{
		ID: "derived:manual", Title: "Office", Category: timeline.Unknown,
		StartMinutes: 540, Duration: 60,
		Meta: timeline.Meta{Source: timeline.SourceEvidence, Kind: timeline.KindDerived},
	}))
	require.NoError(t, db.IngestLocationHourly(ctx, ymd, []evidence.LocationHourly{
		{Hour: 9, PlaceID: "office", PlaceLabel: "Office", SampleCount: 12, Confidence: 0.9},
	}))

	_, err := runner.RunDay(ctx, ymd)
	require.NoError(t, err)

	persisted, err := db.EventsForDay(ctx, ymd, storage.RoleActual)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, "derived:manual", persisted[0].ID, "pre-existing equivalent row is kept")
}

func TestRunDayPreservesUserEdits(t *testing.T) {
	runner, db := newTestRunner(t)
	ctx := context.Background()
	ymd := "2026-03-02"

	userRow := timeline.Event{
		ID: "user-1", Title: "Focus block", Category: timeline.Work,
		StartMinutes: 540, Duration: 120,
		Meta: timeline.Meta{Source: timeline.SourceUser, Kind: timeline.KindUserEdited, Confidence: 1},
	}
	require.NoError(t, db.CreateEvent(ctx, ymd, storage.RoleActual, userRow))
	require.NoError(t, db.IngestLocationHourly(ctx, ymd, []evidence.LocationHourly{
		{Hour: 9, PlaceID: "cafe", PlaceLabel: "Cafe", SampleCount: 8, Confidence: 0.8},
		{Hour: 10, PlaceID: "cafe", PlaceLabel: "Cafe", SampleCount: 8, Confidence: 0.8},
	}))

	report, err := runner.RunDay(ctx, ymd)
	require.NoError(t, err)

	var got *timeline.Event
	for i := range report.Timeline {
		if report.Timeline[i].ID == "user-1" {
			got = &report.Timeline[i]
		}
	}
	require.NotNil(t, got, "user edit survives reconciliation")
	assert.Equal(t, 540, got.StartMinutes)
	assert.Equal(t, 120, got.Duration, "evidence never truncates a user edit")

	persisted, err := db.EventsForDay(ctx, ymd, storage.RoleActual)
	require.NoError(t, err)
	found := false
	for _, e := range persisted {
		if e.ID == "user-1" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunDaySessionView(t *testing.T) {
	runner, db := newTestRunner(t)
	ctx := context.Background()
	ymd := "2026-03-02"

	require.NoError(t, db.IngestLocationHourly(ctx, ymd, []evidence.LocationHourly{
		{Hour: 9, PlaceID: "office", PlaceLabel: "Office", SampleCount: 12, Confidence: 0.9},
		{Hour: 10, PlaceID: "office", PlaceLabel: "Office", SampleCount: 11, Confidence: 0.9},
	}))

	report, err := runner.RunDay(ctx, ymd)
	require.NoError(t, err)
	require.NotEmpty(t, report.Sessions)
	assert.Equal(t, "office", report.Sessions[0].PlaceID)
}

func TestRebuildPatterns(t *testing.T) {
	runner, db := newTestRunner(t)
	ctx := context.Background()

	// four Mondays of the same 09:00 work block
	for _, ymd := range []string{"2026-02-02", "2026-02-09", "2026-02-16", "2026-02-23"} {
		require.NoError(t, db.CreateEvent(ctx, ymd, storage.RoleActual, timeline.Event{
			ID: "w-" + ymd, Title: "Deep work", Category: timeline.Work,
			StartMinutes: 540, Duration: 60,
			Meta: timeline.Meta{Source: timeline.SourceStore},
		}))
	}

	idx, err := runner.RebuildPatterns(ctx, "2026-03-01", 6)
	require.NoError(t, err)
	require.NotEmpty(t, idx.Slots)

	loaded, snap, err := db.LoadPatternIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", snap.WindowEndYMD)
	assert.Len(t, loaded.Slots, len(idx.Slots))
}
