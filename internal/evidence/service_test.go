package evidence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubStore struct {
	hourly    []LocationHourly
	hourlyErr error
	samples   []LocationSample
	sessions  []ScreenSession
	daily     OptionalDaily
	dailyErr  error
	places    []UserPlace
}

func (s *stubStore) LocationHourlyForDay(ctx context.Context, ymd string) ([]LocationHourly, error) {
	return s.hourly, s.hourlyErr
}

func (s *stubStore) LocationSamplesForDay(ctx context.Context, ymd string) ([]LocationSample, error) {
	return s.samples, nil
}

func (s *stubStore) ScreenSessionsForDay(ctx context.Context, ymd string) ([]ScreenSession, error) {
	return s.sessions, nil
}

func (s *stubStore) HealthWorkoutsForDay(ctx context.Context, ymd string) ([]HealthWorkout, error) {
	return nil, nil
}

func (s *stubStore) HealthDailyForDay(ctx context.Context, ymd string) (OptionalDaily, error) {
	return s.daily, s.dailyErr
}

func (s *stubStore) UserPlaces(ctx context.Context) ([]UserPlace, error) {
	return s.places, nil
}

func TestFetchBundleCollectsAllSources(t *testing.T) {
	store := &stubStore{
		hourly: []LocationHourly{{Hour: 9, PlaceID: "office", PlaceLabel: "Office"}},
		sessions: []ScreenSession{{
			ID: "st-1", App: "editor",
			Started: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			Ended:   time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		}},
		daily: SomeDaily(DailyMetrics{}),
	}

	svc := NewService(store, zap.NewNop())
	bundle := svc.FetchBundle(context.Background(), "2026-03-02")

	assert.Equal(t, "2026-03-02", bundle.YMD)
	assert.Len(t, bundle.LocationHourly, 1)
	assert.Len(t, bundle.ScreenTimeSessions, 1)
	assert.True(t, bundle.HealthDaily.Present)
	assert.False(t, bundle.IsEmpty())
}

func TestFetchBundleDegradesFailedSourceToEmpty(t *testing.T) {
	store := &stubStore{
		hourlyErr: errors.New("table missing"),
		dailyErr:  errors.New("network"),
		sessions: []ScreenSession{{
			ID: "st-1", App: "editor",
			Started: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			Ended:   time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		}},
	}

	svc := NewService(store, zap.NewNop())
	bundle := svc.FetchBundle(context.Background(), "2026-03-02")

	assert.Empty(t, bundle.LocationHourly)
	assert.False(t, bundle.HealthDaily.Present)
	assert.Len(t, bundle.ScreenTimeSessions, 1)
}

func TestFetchBundleDerivesHourlyFromSamples(t *testing.T) {
	office := UserPlace{ID: "office", Label: "Office", Lat: 52.2297, Lon: 21.0122, RadiusM: 150}
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }

	store := &stubStore{
		places: []UserPlace{office},
		samples: []LocationSample{
			{Time: at(9, 5), Lat: 52.2297, Lon: 21.0122},
			{Time: at(9, 25), Lat: 52.2298, Lon: 21.0123},
			{Time: at(9, 45), Lat: 53.0, Lon: 22.0}, // outside every place
		},
	}

	svc := NewService(store, zap.NewNop())
	bundle := svc.FetchBundle(context.Background(), "2026-03-02")

	require.Len(t, bundle.LocationHourly, 1)
	row := bundle.LocationHourly[0]
	assert.Equal(t, 9, row.Hour)
	assert.Equal(t, "office", row.PlaceID)
	assert.Equal(t, "Office", row.PlaceLabel)
	assert.Equal(t, 3, row.SampleCount)
	assert.InDelta(t, 2.0/3.0, row.Confidence, 1e-9)
}

func TestFetchBundleKeepsCollectorHourlyOverSamples(t *testing.T) {
	store := &stubStore{
		hourly:  []LocationHourly{{Hour: 9, PlaceID: "office", PlaceLabel: "Office", SampleCount: 12, Confidence: 0.9}},
		places:  []UserPlace{{ID: "cafe", Label: "Cafe", Lat: 52.0, Lon: 21.0, RadiusM: 150}},
		samples: []LocationSample{{Time: time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC), Lat: 52.0, Lon: 21.0}},
	}

	svc := NewService(store, zap.NewNop())
	bundle := svc.FetchBundle(context.Background(), "2026-03-02")

	require.Len(t, bundle.LocationHourly, 1)
	assert.Equal(t, "office", bundle.LocationHourly[0].PlaceID, "collector aggregates win over derived rows")
}

func TestDeriveHourlyFromSamples(t *testing.T) {
	office := UserPlace{ID: "office", Label: "Office", Lat: 52.2297, Lon: 21.0122, RadiusM: 150}
	cafe := UserPlace{ID: "cafe", Label: "Cafe", Lat: 52.24, Lon: 21.02, RadiusM: 100}
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }

	rows := DeriveHourlyFromSamples([]LocationSample{
		{Time: at(9, 0), Lat: 52.2297, Lon: 21.0122},
		{Time: at(9, 30), Lat: 52.2297, Lon: 21.0122},
		{Time: at(9, 50), PlaceID: "cafe"}, // explicit attribution wins over radius
		{Time: at(12, 10), Lat: 52.24, Lon: 21.02},
		{Time: at(15, 0), Lat: 53.0, Lon: 23.0}, // matches nothing, hour dropped
	}, []UserPlace{office, cafe})

	require.Len(t, rows, 2)
	assert.Equal(t, 9, rows[0].Hour)
	assert.Equal(t, "office", rows[0].PlaceID, "majority place wins the hour")
	assert.Equal(t, 3, rows[0].SampleCount)
	assert.InDelta(t, 2.0/3.0, rows[0].Confidence, 1e-9)
	assert.Equal(t, 12, rows[1].Hour)
	assert.Equal(t, "cafe", rows[1].PlaceID)
	assert.InDelta(t, 1.0, rows[1].Confidence, 1e-9)
}

func TestDeriveHourlyFromSamplesEmpty(t *testing.T) {
	assert.Empty(t, DeriveHourlyFromSamples(nil, nil))
	assert.Empty(t, DeriveHourlyFromSamples(
		[]LocationSample{{Time: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), Lat: 1, Lon: 1}},
		nil,
	))
}

func TestUserPlaceRadius(t *testing.T) {
	office := UserPlace{ID: "office", Label: "Office", Lat: 52.2297, Lon: 21.0122, RadiusM: 150}
	assert.True(t, office.Contains(52.2297, 21.0122))
	assert.True(t, office.Contains(52.2303, 21.0130))
	assert.False(t, office.Contains(52.25, 21.05))
}

func TestScreenSessionMinutes(t *testing.T) {
	s := ScreenSession{
		Started: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Ended:   time.Date(2026, 3, 2, 9, 45, 0, 0, time.UTC),
	}
	assert.Equal(t, 45, s.Minutes())
}
