package storage

import (
	"context"
	"sort"
	"time"

	"github.com/daverage/planfact/internal/pattern"
	"github.com/daverage/planfact/internal/timeline"
)

// PatternSnapshot records which history window a stored index was learned
// from and when.
type PatternSnapshot struct {
	WindowStartYMD string
	WindowEndYMD   string
	GeneratedAt    time.Time
}

// SavePatternSnapshot replaces the stored learned schedule with the given
// index, tagging every slot with the snapshot's window.
func (db *DB) SavePatternSnapshot(ctx context.Context, snap PatternSnapshot, idx *pattern.Index) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("save_pattern_snapshot", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pattern_slots`); err != nil {
		return wrapErr("save_pattern_snapshot", err)
	}
	for _, slot := range idx.Slots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pattern_slots (window_start_ymd, window_end_ymd, generated_at,
				weekday, slot_start, category, title, confidence, sample_count, avg_duration)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, snap.WindowStartYMD, snap.WindowEndYMD, snap.GeneratedAt,
			int(slot.Key.Weekday), slot.Key.SlotStart, string(slot.Category),
			slot.Title, slot.Confidence, slot.SampleCount, slot.AvgDurationMinutes); err != nil {
			return wrapErr("save_pattern_snapshot", err)
		}
	}
	return wrapErr("save_pattern_snapshot", tx.Commit())
}

// LoadPatternIndex reads the stored learned schedule. An empty table yields
// an index with no slots plus a zero snapshot.
func (db *DB) LoadPatternIndex(ctx context.Context) (*pattern.Index, PatternSnapshot, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT window_start_ymd, window_end_ymd, generated_at,
			weekday, slot_start, category, title, confidence, sample_count, avg_duration
		FROM pattern_slots
	`)
	if err != nil {
		return nil, PatternSnapshot{}, wrapErr("load_pattern_index", err)
	}
	defer rows.Close()

	idx := &pattern.Index{Slots: make(map[pattern.SlotKey]pattern.Slot)}
	var snap PatternSnapshot
	for rows.Next() {
		var weekday int
		var category string
		var slot pattern.Slot
		if err := rows.Scan(&snap.WindowStartYMD, &snap.WindowEndYMD, &snap.GeneratedAt,
			&weekday, &slot.Key.SlotStart, &category, &slot.Title,
			&slot.Confidence, &slot.SampleCount, &slot.AvgDurationMinutes); err != nil {
			return nil, PatternSnapshot{}, wrapErr("load_pattern_index", err)
		}
		slot.Key.Weekday = time.Weekday(weekday)
		slot.Category = timeline.Category(category)
		idx.Slots[slot.Key] = slot
	}
	return idx, snap, wrapErr("load_pattern_index", rows.Err())
}

// ActualHistory loads the actual events of [fromYmd, toYmd] as pattern
// history entries, ordered by day then start time.
func (db *DB) ActualHistory(ctx context.Context, fromYmd, toYmd string) ([]pattern.HistoryEntry, error) {
	byDay, err := db.EventsForRange(ctx, fromYmd, toYmd, RoleActual)
	if err != nil {
		return nil, err
	}

	days := make([]string, 0, len(byDay))
	for ymd := range byDay {
		days = append(days, ymd)
	}
	sort.Strings(days)

	var entries []pattern.HistoryEntry
	for _, ymd := range days {
		for _, e := range byDay[ymd] {
			entries = append(entries, pattern.HistoryEntry{YMD: ymd, Event: e})
		}
	}
	return entries, nil
}
