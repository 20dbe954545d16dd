package suggest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/daverage/planfact/internal/timeline"
)

// Categorizer is the model-call surface AutoAssigner depends on.
type Categorizer interface {
	SuggestCategory(ctx context.Context, block BlockDescriptor) (*Suggestion, error)
}

// AutoAssigner fills in categories for unknown blocks one at a time.
// Sequential on purpose: the backing model is typically a single local
// process, and a failed or slow day must not fan out.
type AutoAssigner struct {
	categorizer   Categorizer
	logger        *zap.Logger
	minConfidence float64
}

// NewAutoAssigner creates an auto-assigner. Suggestions below minConfidence
// are discarded.
func NewAutoAssigner(categorizer Categorizer, logger *zap.Logger, minConfidence float64) *AutoAssigner {
	return &AutoAssigner{
		categorizer:   categorizer,
		logger:        logger,
		minConfidence: minConfidence,
	}
}

// Assign returns a copy of events with unknown categories replaced by model
// suggestions that clear the confidence floor. Cancellation is checked
// between iterations; a cancelled run returns whatever was assigned so far.
// Per-block failures are logged and skipped.
func (a *AutoAssigner) Assign(ctx context.Context, ymd string, events []timeline.Event) ([]timeline.Event, int) {
	out := make([]timeline.Event, len(events))
	copy(out, events)

	weekday := weekdayOf(ymd)
	assigned := 0
	for i, e := range out {
		if e.Category != timeline.Unknown {
			continue
		}
		if ctx.Err() != nil {
			a.logger.Info("auto-assign cancelled",
				zap.String("ymd", ymd),
				zap.Int("assigned", assigned))
			return out, assigned
		}

		suggestion, err := a.categorizer.SuggestCategory(ctx, BlockDescriptor{
			Title:        e.Title,
			Location:     e.Location,
			StartMinutes: e.StartMinutes,
			Duration:     e.Duration,
			Weekday:      weekday,
		})
		if err != nil {
			a.logger.Warn("suggestion failed, leaving block unknown",
				zap.String("ymd", ymd),
				zap.String("event_id", e.ID),
				zap.Error(err))
			continue
		}
		if suggestion.Confidence < a.minConfidence {
			a.logger.Debug("suggestion below confidence floor",
				zap.String("event_id", e.ID),
				zap.String("category", string(suggestion.Category)),
				zap.Float64("confidence", suggestion.Confidence))
			continue
		}

		out[i].Category = suggestion.Category
		out[i].Meta.Confidence = suggestion.Confidence
		if out[i].Description == "" && suggestion.Reason != "" {
			out[i].Description = suggestion.Reason
		}
		assigned++
	}
	return out, assigned
}

func weekdayOf(ymd string) string {
	day, err := time.Parse("2006-01-02", ymd)
	if err != nil {
		return ""
	}
	return day.Weekday().String()
}
