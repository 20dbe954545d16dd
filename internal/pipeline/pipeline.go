// Package pipeline runs the per-day reconciliation: fetch evidence, verify
// planned events, derive actual blocks, reconcile them into one
// non-overlapping timeline, and persist the result.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daverage/planfact/internal/evidence"
	"github.com/daverage/planfact/internal/pattern"
	"github.com/daverage/planfact/internal/session"
	"github.com/daverage/planfact/internal/storage"
	"github.com/daverage/planfact/internal/suggest"
	"github.com/daverage/planfact/internal/timeline"
	"github.com/daverage/planfact/internal/verify"
)

// Runner orchestrates one day's reconciliation end to end. Construct a fresh
// verify engine and reconciler per run; only the Runner itself is reused.
type Runner struct {
	db         *storage.DB
	evidence   *evidence.Service
	assigner   *suggest.AutoAssigner
	logger     *zap.Logger
	thresholds verify.Thresholds

	patternMinConfidence  float64
	anomalySlotConfidence float64
}

// Options tune the runner beyond the verification thresholds.
type Options struct {
	Thresholds            verify.Thresholds
	PatternMinConfidence  float64
	AnomalySlotConfidence float64
	// Assigner is optional; nil disables model-backed categorization.
	Assigner *suggest.AutoAssigner
}

// NewRunner creates a pipeline runner.
func NewRunner(db *storage.DB, svc *evidence.Service, logger *zap.Logger, opts Options) *Runner {
	return &Runner{
		db:                    db,
		evidence:              svc,
		assigner:              opts.Assigner,
		logger:                logger,
		thresholds:            opts.Thresholds,
		patternMinConfidence:  opts.PatternMinConfidence,
		anomalySlotConfidence: opts.AnomalySlotConfidence,
	}
}

// DayReport is the outcome of one day's run.
type DayReport struct {
	YMD        string
	Bundle     evidence.Bundle
	Results    map[string]verify.Result
	Summary    verify.DaySummary
	Timeline   []timeline.Event
	Sessions   []session.Block
	Anomalies  pattern.AnomalyReport
	Validation timeline.ValidationResult
	Assigned   int
}

// RunDay executes the full pipeline for one day and persists the reconciled
// actual timeline. Evidence degradation is tolerated; storage failures on
// planned/actual reads or the final write abort the run.
func (r *Runner) RunDay(ctx context.Context, ymd string) (*DayReport, error) {
	if _, err := time.Parse("2006-01-02", ymd); err != nil {
		return nil, fmt.Errorf("invalid day %q: %w", ymd, err)
	}

	bundle := r.evidence.FetchBundle(ctx, ymd)
	if bundle.IsEmpty() {
		r.logger.Info("no evidence for day", zap.String("ymd", ymd))
	}

	planned, err := r.db.EventsForDay(ctx, ymd, storage.RolePlanned)
	if err != nil {
		return nil, fmt.Errorf("loading planned events: %w", err)
	}
	actuals, err := r.db.EventsForDay(ctx, ymd, storage.RoleActual)
	if err != nil {
		return nil, fmt.Errorf("loading actual events: %w", err)
	}

	overrides, err := r.db.AppOverrides(ctx)
	if err != nil {
		r.logger.Warn("app overrides unavailable, using built-in lists",
			zap.String("ymd", ymd), zap.Error(err))
		overrides = nil
	}

	engine := verify.NewEngine(r.thresholds, overrides)
	results := engine.VerifyPlannedEvents(planned, bundle)
	derived := engine.GenerateActualBlocks(bundle, planned)

	rec := timeline.NewReconciler()
	rec.AddEvents(append(append([]timeline.Event{}, actuals...), derived...))
	day := rec.Build()

	idx, _, err := r.db.LoadPatternIndex(ctx)
	if err != nil {
		r.logger.Warn("pattern index unavailable, skipping suggestions",
			zap.String("ymd", ymd), zap.Error(err))
		idx = nil
	}

	day = r.fillRemainingGaps(day, idx, ymd)
	day = idx.ApplySuggestions(day, ymd, r.patternMinConfidence)

	report := &DayReport{
		YMD:     ymd,
		Bundle:  bundle,
		Results: results,
		Summary: verify.Summarize(results),
	}

	if r.assigner != nil {
		day, report.Assigned = r.assigner.Assign(ctx, ymd, day)
	}

	final := timeline.NewReconciler()
	final.AddEvents(day)
	report.Timeline = final.Build()
	report.Validation = final.Validate()
	if !report.Validation.Valid {
		r.logger.Error("reconciled timeline has overlaps",
			zap.String("ymd", ymd),
			zap.Int("overlaps", len(report.Validation.Overlaps)))
	}

	// Persist derived blocks with a check-before-insert: an equivalent row
	// (same provenance id, or same window and kind) is left alone, so
	// re-running a day never duplicates. User and previously stored rows are
	// already in place.
	written := 0
	for _, e := range report.Timeline {
		switch e.Meta.Source {
		case timeline.SourceUser, timeline.SourceStore:
			continue
		}
		inserted, err := r.db.InsertDerivedIfAbsent(ctx, ymd, e)
		if err != nil {
			return nil, fmt.Errorf("persisting derived event %s: %w", e.ID, err)
		}
		if inserted {
			written++
		}
	}
	if written > 0 {
		r.logger.Info("persisted derived events",
			zap.String("ymd", ymd), zap.Int("written", written))
	}
	if removed, err := r.db.DedupeDerived(ctx, ymd); err != nil {
		r.logger.Warn("dedupe failed", zap.String("ymd", ymd), zap.Error(err))
	} else if removed > 0 {
		r.logger.Info("removed duplicate derived events",
			zap.String("ymd", ymd), zap.Int64("removed", removed))
	}

	report.Sessions = r.sessionsFor(ymd, bundle)
	report.Anomalies = idx.DailyAnomalies(ymd, report.Timeline, r.anomalySlotConfidence)

	r.logger.Info("day reconciled",
		zap.String("ymd", ymd),
		zap.Int("planned", len(planned)),
		zap.Int("timeline_events", len(report.Timeline)),
		zap.Int("adherence", report.Summary.AdherenceScore))
	return report, nil
}

// fillRemainingGaps covers leftover unexplained windows with pattern-based
// guesses. Gap fillers sit at the bottom of the trust order, so they can
// never displace evidence.
func (r *Runner) fillRemainingGaps(day []timeline.Event, idx *pattern.Index, ymd string) []timeline.Event {
	if idx == nil || len(idx.Slots) == 0 {
		return day
	}

	rec := timeline.NewReconciler()
	rec.AddEvents(day)

	cursor := 0
	for _, e := range rec.Build() {
		r.addGapFiller(rec, idx, ymd, cursor, e.StartMinutes)
		if e.EndMinutes() > cursor {
			cursor = e.EndMinutes()
		}
	}
	r.addGapFiller(rec, idx, ymd, cursor, timeline.MinutesPerDay)
	return rec.Build()
}

func (r *Runner) addGapFiller(rec *timeline.Reconciler, idx *pattern.Index, ymd string, start, end int) {
	if end-start < r.thresholds.MinGapMinutes {
		return
	}
	slot := idx.SuggestForRange(ymd, start, end)
	if slot == nil || slot.Confidence < r.patternMinConfidence {
		return
	}
	rec.AddEvent(timeline.Event{
		ID:           "gap:" + uuid.NewString(),
		Title:        slot.Title,
		Category:     slot.Category,
		StartMinutes: start,
		Duration:     end - start,
		Meta: timeline.Meta{
			Source:     timeline.SourcePattern,
			Kind:       timeline.KindGapFill,
			Confidence: slot.Confidence,
		},
	})
}

// sessionsFor renders the bundle as place/commute sessions for display. The
// session view is informational; the persisted timeline is authoritative.
func (r *Runner) sessionsFor(ymd string, bundle evidence.Bundle) []session.Block {
	dayStart, err := time.ParseInLocation("2006-01-02", ymd, time.Local)
	if err != nil {
		return nil
	}
	dayEnd := dayStart.Add(24 * time.Hour)

	var raw []session.RawEvent
	for _, row := range bundle.LocationHourly {
		if row.PlaceID == "" {
			continue
		}
		raw = append(raw, session.RawEvent{
			ID:          fmt.Sprintf("loc:%d", row.Hour),
			Start:       dayStart.Add(time.Duration(row.Hour) * time.Hour),
			End:         dayStart.Add(time.Duration(row.Hour+1) * time.Hour),
			Source:      session.SourceLocation,
			PlaceID:     row.PlaceID,
			SampleCount: row.SampleCount,
		})
	}
	for _, st := range bundle.ScreenTimeSessions {
		raw = append(raw, session.RawEvent{
			ID:      st.ID,
			Start:   st.Started,
			End:     st.Ended,
			Source:  session.SourceScreenTime,
			AppName: st.App,
		})
	}
	for _, w := range bundle.HealthWorkouts {
		raw = append(raw, session.RawEvent{
			ID:      w.ID,
			Start:   w.Started,
			End:     w.Ended,
			Source:  session.SourceHealth,
			AppName: w.Activity,
		})
	}
	return session.Sessionize(dayStart, dayEnd, raw)
}

// RebuildPatterns relearns the weekly schedule from the trailing window of
// actual history and stores the snapshot.
func (r *Runner) RebuildPatterns(ctx context.Context, upToYmd string, windowWeeks int) (*pattern.Index, error) {
	end, err := time.Parse("2006-01-02", upToYmd)
	if err != nil {
		return nil, fmt.Errorf("invalid day %q: %w", upToYmd, err)
	}
	start := end.AddDate(0, 0, -7*windowWeeks)

	entries, err := r.db.ActualHistory(ctx, start.Format("2006-01-02"), upToYmd)
	if err != nil {
		return nil, fmt.Errorf("loading actual history: %w", err)
	}

	idx := pattern.BuildIndex(entries)
	snap := storage.PatternSnapshot{
		WindowStartYMD: start.Format("2006-01-02"),
		WindowEndYMD:   upToYmd,
		GeneratedAt:    time.Now().UTC(),
	}
	if err := r.db.SavePatternSnapshot(ctx, snap, idx); err != nil {
		return nil, fmt.Errorf("saving pattern snapshot: %w", err)
	}

	r.logger.Info("pattern index rebuilt",
		zap.String("window_start", snap.WindowStartYMD),
		zap.String("window_end", snap.WindowEndYMD),
		zap.Int("slots", len(idx.Slots)),
		zap.Int("history_entries", len(entries)))
	return idx, nil
}
