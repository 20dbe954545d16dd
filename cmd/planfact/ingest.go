package main

import (
	"context"
	"fmt"
	"time"

	"github.com/daverage/planfact/internal/classify"
	"github.com/daverage/planfact/internal/evidence"
	"github.com/daverage/planfact/internal/storage"
	"github.com/daverage/planfact/internal/timeline"
)

// bundleExport is the JSON shape of one day's evidence export.
type bundleExport struct {
	YMD string `json:"ymd"`

	LocationHourly []struct {
		Hour        int     `json:"hour"`
		PlaceID     string  `json:"place_id"`
		PlaceLabel  string  `json:"place_label"`
		SampleCount int     `json:"sample_count"`
		Confidence  float64 `json:"confidence"`
	} `json:"location_hourly"`

	LocationSamples []struct {
		Time     time.Time `json:"time"`
		Lat      float64   `json:"lat"`
		Lon      float64   `json:"lon"`
		Accuracy float64   `json:"accuracy"`
		PlaceID  string    `json:"place_id"`
	} `json:"location_samples"`

	ScreenSessions []struct {
		ID      string    `json:"id"`
		App     string    `json:"app"`
		Started time.Time `json:"started"`
		Ended   time.Time `json:"ended"`
	} `json:"screen_sessions"`

	HealthWorkouts []struct {
		ID       string    `json:"id"`
		Activity string    `json:"activity"`
		Started  time.Time `json:"started"`
		Ended    time.Time `json:"ended"`
	} `json:"health_workouts"`

	HealthDaily *struct {
		AsleepSeconds *int     `json:"asleep_seconds"`
		HRVMillis     *float64 `json:"hrv_ms"`
		RestingBPM    *float64 `json:"resting_bpm"`
		AverageBPM    *float64 `json:"average_bpm"`
		Steps         *int     `json:"steps"`
		ActiveKJ      *float64 `json:"active_kj"`
	} `json:"health_daily"`

	UserPlaces []struct {
		ID      string  `json:"id"`
		Label   string  `json:"label"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
		RadiusM float64 `json:"radius_m"`
	} `json:"user_places"`

	Planned []timeline.Event `json:"planned"`
}

// ingestExport writes every section of the export that is present.
func ingestExport(ctx context.Context, db *storage.DB, export bundleExport) error {
	ymd := export.YMD

	if len(export.LocationHourly) > 0 {
		rows := make([]evidence.LocationHourly, 0, len(export.LocationHourly))
		for _, h := range export.LocationHourly {
			rows = append(rows, evidence.LocationHourly{
				Hour: h.Hour, PlaceID: h.PlaceID, PlaceLabel: h.PlaceLabel,
				SampleCount: h.SampleCount, Confidence: h.Confidence,
			})
		}
		if err := db.IngestLocationHourly(ctx, ymd, rows); err != nil {
			return fmt.Errorf("location hourly: %w", err)
		}
	}

	if len(export.LocationSamples) > 0 {
		samples := make([]evidence.LocationSample, 0, len(export.LocationSamples))
		for _, s := range export.LocationSamples {
			samples = append(samples, evidence.LocationSample{
				Time: s.Time, Lat: s.Lat, Lon: s.Lon,
				Accuracy: s.Accuracy, PlaceID: s.PlaceID,
			})
		}
		if err := db.IngestLocationSamples(ctx, ymd, samples); err != nil {
			return fmt.Errorf("location samples: %w", err)
		}
	}

	if len(export.ScreenSessions) > 0 {
		sessions := make([]evidence.ScreenSession, 0, len(export.ScreenSessions))
		for _, s := range export.ScreenSessions {
			sessions = append(sessions, evidence.ScreenSession{
				ID: s.ID, App: s.App, Started: s.Started, Ended: s.Ended,
			})
		}
		if err := db.IngestScreenSessions(ctx, ymd, sessions); err != nil {
			return fmt.Errorf("screen sessions: %w", err)
		}
	}

	if len(export.HealthWorkouts) > 0 {
		workouts := make([]evidence.HealthWorkout, 0, len(export.HealthWorkouts))
		for _, w := range export.HealthWorkouts {
			workouts = append(workouts, evidence.HealthWorkout{
				ID: w.ID, Activity: w.Activity, Started: w.Started, Ended: w.Ended,
			})
		}
		if err := db.IngestHealthWorkouts(ctx, ymd, workouts); err != nil {
			return fmt.Errorf("health workouts: %w", err)
		}
	}

	if export.HealthDaily != nil {
		metrics := evidence.DailyMetrics{
			Sleep: classify.SleepMetrics{
				AsleepSeconds: export.HealthDaily.AsleepSeconds,
				HRVMillis:     export.HealthDaily.HRVMillis,
				RestingBPM:    export.HealthDaily.RestingBPM,
				AverageBPM:    export.HealthDaily.AverageBPM,
			},
			Steps:    export.HealthDaily.Steps,
			ActiveKJ: export.HealthDaily.ActiveKJ,
		}
		if err := db.IngestHealthDaily(ctx, ymd, metrics); err != nil {
			return fmt.Errorf("health daily: %w", err)
		}
	}

	for _, p := range export.UserPlaces {
		if err := db.SaveUserPlace(ctx, evidence.UserPlace{
			ID: p.ID, Label: p.Label, Lat: p.Lat, Lon: p.Lon, RadiusM: p.RadiusM,
		}); err != nil {
			return fmt.Errorf("user place %s: %w", p.ID, err)
		}
	}

	for _, e := range export.Planned {
		if !e.Category.IsValid() {
			return fmt.Errorf("planned event %s: invalid category %q", e.ID, e.Category)
		}
		err := db.CreateEvent(ctx, ymd, storage.RolePlanned, e.ClipToDay())
		if err != nil && storage.KindOf(err) == storage.KindConstraintViolation {
			err = db.UpdateEvent(ctx, e.ClipToDay())
		}
		if err != nil {
			return fmt.Errorf("planned event %s: %w", e.ID, err)
		}
	}
	return nil
}
