package storage

import (
	"context"
	"database/sql"

	"github.com/daverage/planfact/internal/timeline"
)

// Role distinguishes planned from actual event rows.
type Role string

const (
	RolePlanned Role = "planned"
	RoleActual  Role = "actual"
)

const eventColumns = `id, title, description, category, start_minutes, duration, location,
	source, kind, confidence, source_id, learned_from`

// EventsForDay fetches one day's events of the given role, ordered by start
// time.
func (db *DB) EventsForDay(ctx context.Context, ymd string, role Role) ([]timeline.Event, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE ymd = ? AND role = ?
		ORDER BY start_minutes ASC
	`, ymd, string(role))
	if err != nil {
		return nil, wrapErr("events_for_day", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsForRange fetches actual events across [fromYmd, toYmd] inclusive,
// paired with their day. Feeds the pattern model.
func (db *DB) EventsForRange(ctx context.Context, fromYmd, toYmd string, role Role) (map[string][]timeline.Event, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT ymd, `+eventColumns+`
		FROM events
		WHERE ymd >= ? AND ymd <= ? AND role = ?
		ORDER BY ymd ASC, start_minutes ASC
	`, fromYmd, toYmd, string(role))
	if err != nil {
		return nil, wrapErr("events_for_range", err)
	}
	defer rows.Close()

	byDay := make(map[string][]timeline.Event)
	for rows.Next() {
		var ymd string
		var e timeline.Event
		if err := rows.Scan(&ymd, &e.ID, &e.Title, &e.Description, &e.Category,
			&e.StartMinutes, &e.Duration, &e.Location,
			&e.Meta.Source, &e.Meta.Kind, &e.Meta.Confidence, &e.Meta.SourceID,
			&e.Meta.LearnedFrom); err != nil {
			return nil, wrapErr("events_for_range", err)
		}
		byDay[ymd] = append(byDay[ymd], e)
	}
	return byDay, wrapErr("events_for_range", rows.Err())
}

// CreateEvent inserts one event row.
func (db *DB) CreateEvent(ctx context.Context, ymd string, role Role, e timeline.Event) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO events (id, ymd, role, title, description, category, start_minutes,
			duration, location, source, kind, confidence, source_id, learned_from)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, ymd, string(role), e.Title, e.Description, string(e.Category),
		e.StartMinutes, e.Duration, e.Location,
		e.Meta.Source, e.Meta.Kind, e.Meta.Confidence, e.Meta.SourceID, e.Meta.LearnedFrom)
	return wrapErr("create_event", err)
}

// UpdateEvent rewrites an existing event row by id.
func (db *DB) UpdateEvent(ctx context.Context, e timeline.Event) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE events
		SET title = ?, description = ?, category = ?, start_minutes = ?, duration = ?,
			location = ?, source = ?, kind = ?, confidence = ?, source_id = ?,
			learned_from = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, e.Title, e.Description, string(e.Category), e.StartMinutes, e.Duration,
		e.Location, e.Meta.Source, e.Meta.Kind, e.Meta.Confidence, e.Meta.SourceID,
		e.Meta.LearnedFrom, e.ID)
	if err != nil {
		return wrapErr("update_event", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wrapErr("update_event", sql.ErrNoRows)
	}
	return nil
}

// DeleteEvent removes an event row by id.
func (db *DB) DeleteEvent(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	return wrapErr("delete_event", err)
}

// InsertDerivedIfAbsent writes a derived actual event unless an equivalent
// record already exists: same provenance source id, or same
// (start, duration, kind) window. This keeps re-running the pipeline
// idempotent without transactions; races that slip through are cleaned up by
// DedupeDerived.
func (db *DB) InsertDerivedIfAbsent(ctx context.Context, ymd string, e timeline.Event) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM events
		WHERE ymd = ? AND role = 'actual'
		  AND (
			(source_id != '' AND source_id = ?)
			OR (start_minutes = ? AND duration = ? AND kind = ?)
		  )
	`, ymd, e.Meta.SourceID, e.StartMinutes, e.Duration, e.Meta.Kind).Scan(&count)
	if err != nil {
		return false, wrapErr("insert_derived", err)
	}
	if count > 0 {
		return false, nil
	}
	if err := db.CreateEvent(ctx, ymd, RoleActual, e); err != nil {
		return false, err
	}
	return true, nil
}

// DedupeDerived removes duplicate derived rows for a day, keeping the
// oldest record per (start, duration, kind). User-edited rows are never
// touched.
func (db *DB) DedupeDerived(ctx context.Context, ymd string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM events
		WHERE ymd = ? AND role = 'actual' AND source != 'user'
		  AND rowid NOT IN (
			SELECT MIN(rowid)
			FROM events
			WHERE ymd = ? AND role = 'actual' AND source != 'user'
			GROUP BY start_minutes, duration, kind
		  )
	`, ymd, ymd)
	if err != nil {
		return 0, wrapErr("dedupe_derived", err)
	}
	n, err := res.RowsAffected()
	return n, wrapErr("dedupe_derived", err)
}

func scanEvents(rows *sql.Rows) ([]timeline.Event, error) {
	var events []timeline.Event
	for rows.Next() {
		var e timeline.Event
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Category,
			&e.StartMinutes, &e.Duration, &e.Location,
			&e.Meta.Source, &e.Meta.Kind, &e.Meta.Confidence, &e.Meta.SourceID,
			&e.Meta.LearnedFrom); err != nil {
			return nil, wrapErr("scan_events", err)
		}
		events = append(events, e)
	}
	return events, wrapErr("scan_events", rows.Err())
}
