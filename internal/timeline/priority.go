package timeline

import "strings"

// Priority is the trust ordering used to resolve overlaps between events
// from different sources. Lower ordinal wins.
type Priority int

const (
	PriorityUserEdited Priority = iota + 1
	PriorityStoredActual
	PriorityDerivedEvidence
	PriorityScreenTime
	PriorityGapFiller
)

func (p Priority) String() string {
	switch p {
	case PriorityUserEdited:
		return "user_edited"
	case PriorityStoredActual:
		return "stored_actual"
	case PriorityDerivedEvidence:
		return "derived_evidence"
	case PriorityScreenTime:
		return "screen_time"
	case PriorityGapFiller:
		return "gap_filler"
	default:
		return "unknown"
	}
}

// Compare returns a negative value when p outranks other, zero on ties.
func (p Priority) Compare(other Priority) int {
	return int(p) - int(other)
}

// Outranks reports whether p is strictly more trusted than other.
func (p Priority) Outranks(other Priority) bool {
	return p < other
}

// Provenance meta markers recognized by PriorityOf.
const (
	SourceUser       = "user"
	SourceStore      = "store"
	SourceEvidence   = "evidence"
	SourceScreenTime = "screen_time"
	SourcePattern    = "pattern"

	KindUserEdited = "user_edited"
	KindDerived    = "derived"
	KindGapFill    = "gap_fill"
)

// PriorityOf derives an event's priority from its provenance. It is a pure
// function of the event: user edits outrank stored actuals, which outrank
// evidence-derived blocks, screen-time sessions, and gap-filler guesses.
func PriorityOf(e Event) Priority {
	switch {
	case e.Meta.Source == SourceUser || e.Meta.Kind == KindUserEdited:
		return PriorityUserEdited
	case e.Meta.Kind == KindGapFill || e.Meta.Source == SourcePattern:
		return PriorityGapFiller
	case e.Meta.Source == SourceScreenTime || strings.HasPrefix(e.ID, "st:"):
		return PriorityScreenTime
	case e.Meta.Source == SourceEvidence || e.Meta.Kind == KindDerived || strings.HasPrefix(e.ID, "derived:"):
		return PriorityDerivedEvidence
	case e.Meta.Source == SourceStore:
		return PriorityStoredActual
	default:
		return PriorityGapFiller
	}
}
