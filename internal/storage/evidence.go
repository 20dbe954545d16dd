package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/daverage/planfact/internal/classify"
	"github.com/daverage/planfact/internal/evidence"
	"github.com/daverage/planfact/internal/timeline"
)

// The DB satisfies evidence.Store; keep the compiler honest about it.
var _ evidence.Store = (*DB)(nil)

// LocationHourlyForDay returns the day's hourly location aggregates.
func (db *DB) LocationHourlyForDay(ctx context.Context, ymd string) ([]evidence.LocationHourly, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT hour, place_id, place_label, sample_count, confidence
		FROM location_hourly
		WHERE ymd = ?
		ORDER BY hour ASC
	`, ymd)
	if err != nil {
		return nil, wrapErr("location_hourly", err)
	}
	defer rows.Close()

	var out []evidence.LocationHourly
	for rows.Next() {
		var h evidence.LocationHourly
		if err := rows.Scan(&h.Hour, &h.PlaceID, &h.PlaceLabel, &h.SampleCount, &h.Confidence); err != nil {
			return nil, wrapErr("location_hourly", err)
		}
		out = append(out, h)
	}
	return out, wrapErr("location_hourly", rows.Err())
}

// LocationSamplesForDay returns the day's raw location fixes in time order.
func (db *DB) LocationSamplesForDay(ctx context.Context, ymd string) ([]evidence.LocationSample, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT ts, lat, lon, accuracy, place_id
		FROM location_samples
		WHERE ymd = ?
		ORDER BY ts ASC
	`, ymd)
	if err != nil {
		return nil, wrapErr("location_samples", err)
	}
	defer rows.Close()

	var out []evidence.LocationSample
	for rows.Next() {
		var s evidence.LocationSample
		if err := rows.Scan(&s.Time, &s.Lat, &s.Lon, &s.Accuracy, &s.PlaceID); err != nil {
			return nil, wrapErr("location_samples", err)
		}
		out = append(out, s)
	}
	return out, wrapErr("location_samples", rows.Err())
}

// ScreenSessionsForDay returns the day's app sessions in start order.
func (db *DB) ScreenSessionsForDay(ctx context.Context, ymd string) ([]evidence.ScreenSession, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, app, started, ended
		FROM screen_sessions
		WHERE ymd = ?
		ORDER BY started ASC
	`, ymd)
	if err != nil {
		return nil, wrapErr("screen_sessions", err)
	}
	defer rows.Close()

	var out []evidence.ScreenSession
	for rows.Next() {
		var s evidence.ScreenSession
		if err := rows.Scan(&s.ID, &s.App, &s.Started, &s.Ended); err != nil {
			return nil, wrapErr("screen_sessions", err)
		}
		out = append(out, s)
	}
	return out, wrapErr("screen_sessions", rows.Err())
}

// HealthWorkoutsForDay returns the day's workouts in start order.
func (db *DB) HealthWorkoutsForDay(ctx context.Context, ymd string) ([]evidence.HealthWorkout, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, activity, started, ended
		FROM health_workouts
		WHERE ymd = ?
		ORDER BY started ASC
	`, ymd)
	if err != nil {
		return nil, wrapErr("health_workouts", err)
	}
	defer rows.Close()

	var out []evidence.HealthWorkout
	for rows.Next() {
		var w evidence.HealthWorkout
		if err := rows.Scan(&w.ID, &w.Activity, &w.Started, &w.Ended); err != nil {
			return nil, wrapErr("health_workouts", err)
		}
		out = append(out, w)
	}
	return out, wrapErr("health_workouts", rows.Err())
}

// HealthDailyForDay returns the day's aggregate health row. A missing row is
// the absent case, not an error.
func (db *DB) HealthDailyForDay(ctx context.Context, ymd string) (evidence.OptionalDaily, error) {
	var m evidence.DailyMetrics
	err := db.conn.QueryRowContext(ctx, `
		SELECT asleep_seconds, hrv_ms, resting_bpm, average_bpm, steps, active_kj
		FROM health_daily
		WHERE ymd = ?
	`, ymd).Scan(&m.Sleep.AsleepSeconds, &m.Sleep.HRVMillis, &m.Sleep.RestingBPM,
		&m.Sleep.AverageBPM, &m.Steps, &m.ActiveKJ)
	if errors.Is(err, sql.ErrNoRows) {
		return evidence.NoDaily(), nil
	}
	if err != nil {
		return evidence.NoDaily(), wrapErr("health_daily", err)
	}
	return evidence.SomeDaily(m), nil
}

// UserPlaces returns all labeled places.
func (db *DB) UserPlaces(ctx context.Context) ([]evidence.UserPlace, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, label, lat, lon, radius_m
		FROM user_places
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, wrapErr("user_places", err)
	}
	defer rows.Close()

	var out []evidence.UserPlace
	for rows.Next() {
		var p evidence.UserPlace
		if err := rows.Scan(&p.ID, &p.Label, &p.Lat, &p.Lon, &p.RadiusM); err != nil {
			return nil, wrapErr("user_places", err)
		}
		out = append(out, p)
	}
	return out, wrapErr("user_places", rows.Err())
}

// AppOverrides loads the per-user app reclassifications keyed by normalized
// app name.
func (db *DB) AppOverrides(ctx context.Context) (map[string]classify.Override, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT app_name, title, category, confidence
		FROM app_overrides
	`)
	if err != nil {
		return nil, wrapErr("app_overrides", err)
	}
	defer rows.Close()

	out := make(map[string]classify.Override)
	for rows.Next() {
		var name, category string
		var o classify.Override
		if err := rows.Scan(&name, &o.Title, &category, &o.Confidence); err != nil {
			return nil, wrapErr("app_overrides", err)
		}
		o.Category = timeline.Category(category)
		out[classify.NormalizeAppName(name)] = o
	}
	return out, wrapErr("app_overrides", rows.Err())
}

// SaveAppOverride upserts one app reclassification.
func (db *DB) SaveAppOverride(ctx context.Context, appName string, o classify.Override) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO app_overrides (app_name, title, category, confidence)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(app_name) DO UPDATE SET
			title = excluded.title,
			category = excluded.category,
			confidence = excluded.confidence
	`, classify.NormalizeAppName(appName), o.Title, string(o.Category), o.Confidence)
	return wrapErr("save_app_override", err)
}

// IngestLocationHourly replaces the day's hourly aggregates.
func (db *DB) IngestLocationHourly(ctx context.Context, ymd string, rows []evidence.LocationHourly) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("ingest_location_hourly", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM location_hourly WHERE ymd = ?`, ymd); err != nil {
		return wrapErr("ingest_location_hourly", err)
	}
	for _, h := range rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO location_hourly (ymd, hour, place_id, place_label, sample_count, confidence)
			VALUES (?, ?, ?, ?, ?, ?)
		`, ymd, h.Hour, h.PlaceID, h.PlaceLabel, h.SampleCount, h.Confidence); err != nil {
			return wrapErr("ingest_location_hourly", err)
		}
	}
	return wrapErr("ingest_location_hourly", tx.Commit())
}

// IngestLocationSamples replaces the day's raw fixes.
func (db *DB) IngestLocationSamples(ctx context.Context, ymd string, samples []evidence.LocationSample) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("ingest_location_samples", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM location_samples WHERE ymd = ?`, ymd); err != nil {
		return wrapErr("ingest_location_samples", err)
	}
	for _, s := range samples {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO location_samples (ymd, ts, lat, lon, accuracy, place_id)
			VALUES (?, ?, ?, ?, ?, ?)
		`, ymd, s.Time, s.Lat, s.Lon, s.Accuracy, s.PlaceID); err != nil {
			return wrapErr("ingest_location_samples", err)
		}
	}
	return wrapErr("ingest_location_samples", tx.Commit())
}

// IngestScreenSessions upserts app sessions by id so re-ingesting an export
// is idempotent.
func (db *DB) IngestScreenSessions(ctx context.Context, ymd string, sessions []evidence.ScreenSession) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("ingest_screen_sessions", err)
	}
	defer tx.Rollback()

	for _, s := range sessions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO screen_sessions (id, ymd, app, started, ended)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				ymd = excluded.ymd,
				app = excluded.app,
				started = excluded.started,
				ended = excluded.ended
		`, s.ID, ymd, s.App, s.Started, s.Ended); err != nil {
			return wrapErr("ingest_screen_sessions", err)
		}
	}
	return wrapErr("ingest_screen_sessions", tx.Commit())
}

// IngestHealthWorkouts upserts workouts by id.
func (db *DB) IngestHealthWorkouts(ctx context.Context, ymd string, workouts []evidence.HealthWorkout) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("ingest_health_workouts", err)
	}
	defer tx.Rollback()

	for _, w := range workouts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO health_workouts (id, ymd, activity, started, ended)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				ymd = excluded.ymd,
				activity = excluded.activity,
				started = excluded.started,
				ended = excluded.ended
		`, w.ID, ymd, w.Activity, w.Started, w.Ended); err != nil {
			return wrapErr("ingest_health_workouts", err)
		}
	}
	return wrapErr("ingest_health_workouts", tx.Commit())
}

// IngestHealthDaily upserts the day's aggregate health row.
func (db *DB) IngestHealthDaily(ctx context.Context, ymd string, m evidence.DailyMetrics) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO health_daily (ymd, asleep_seconds, hrv_ms, resting_bpm, average_bpm, steps, active_kj)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ymd) DO UPDATE SET
			asleep_seconds = excluded.asleep_seconds,
			hrv_ms = excluded.hrv_ms,
			resting_bpm = excluded.resting_bpm,
			average_bpm = excluded.average_bpm,
			steps = excluded.steps,
			active_kj = excluded.active_kj
	`, ymd, m.Sleep.AsleepSeconds, m.Sleep.HRVMillis, m.Sleep.RestingBPM,
		m.Sleep.AverageBPM, m.Steps, m.ActiveKJ)
	return wrapErr("ingest_health_daily", err)
}

// SaveUserPlace upserts one labeled place.
func (db *DB) SaveUserPlace(ctx context.Context, p evidence.UserPlace) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO user_places (id, label, lat, lon, radius_m)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			lat = excluded.lat,
			lon = excluded.lon,
			radius_m = excluded.radius_m
	`, p.ID, p.Label, p.Lat, p.Lon, p.RadiusM)
	return wrapErr("save_user_place", err)
}
