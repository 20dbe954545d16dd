package evidence

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Store is the read side of the evidence tables. Implemented by
// internal/storage.
type Store interface {
	LocationHourlyForDay(ctx context.Context, ymd string) ([]LocationHourly, error)
	LocationSamplesForDay(ctx context.Context, ymd string) ([]LocationSample, error)
	ScreenSessionsForDay(ctx context.Context, ymd string) ([]ScreenSession, error)
	HealthWorkoutsForDay(ctx context.Context, ymd string) ([]HealthWorkout, error)
	HealthDailyForDay(ctx context.Context, ymd string) (OptionalDaily, error)
	UserPlaces(ctx context.Context) ([]UserPlace, error)
}

// Service fetches evidence bundles. Sub-source failures degrade to empty
// results and are logged; FetchBundle itself never fails.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates an evidence service.
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// FetchBundle loads all sub-sources for one day. The six reads are
// independent and read-only, so they run concurrently; downstream ordering
// is imposed by the reconciler, not by fetch completion order.
func (s *Service) FetchBundle(ctx context.Context, ymd string) Bundle {
	bundle := Bundle{YMD: ymd}

	var wg sync.WaitGroup
	run := func(name string, fetch func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fetch(); err != nil {
				s.logger.Warn("evidence sub-source fetch failed, degrading to empty",
					zap.String("ymd", ymd),
					zap.String("source", name),
					zap.Error(err))
			}
		}()
	}

	run("location_hourly", func() error {
		rows, err := s.store.LocationHourlyForDay(ctx, ymd)
		if err != nil {
			return err
		}
		bundle.LocationHourly = rows
		return nil
	})
	run("location_samples", func() error {
		rows, err := s.store.LocationSamplesForDay(ctx, ymd)
		if err != nil {
			return err
		}
		bundle.LocationSamples = rows
		return nil
	})
	run("screen_time", func() error {
		rows, err := s.store.ScreenSessionsForDay(ctx, ymd)
		if err != nil {
			return err
		}
		bundle.ScreenTimeSessions = rows
		return nil
	})
	run("health_workouts", func() error {
		rows, err := s.store.HealthWorkoutsForDay(ctx, ymd)
		if err != nil {
			return err
		}
		bundle.HealthWorkouts = rows
		return nil
	})
	run("health_daily", func() error {
		daily, err := s.store.HealthDailyForDay(ctx, ymd)
		if err != nil {
			return err
		}
		bundle.HealthDaily = daily
		return nil
	})
	run("user_places", func() error {
		rows, err := s.store.UserPlaces(ctx)
		if err != nil {
			return err
		}
		bundle.UserPlaces = rows
		return nil
	})

	wg.Wait()

	// Fall back to attributing raw fixes when no hourly aggregates arrived,
	// so verification and gap filling still see per-hour places.
	if len(bundle.LocationHourly) == 0 && len(bundle.LocationSamples) > 0 {
		bundle.LocationHourly = DeriveHourlyFromSamples(bundle.LocationSamples, bundle.UserPlaces)
		if len(bundle.LocationHourly) > 0 {
			s.logger.Info("derived hourly location from raw samples",
				zap.String("ymd", ymd),
				zap.Int("samples", len(bundle.LocationSamples)),
				zap.Int("hours", len(bundle.LocationHourly)))
		}
	}
	return bundle
}
