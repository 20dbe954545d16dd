package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityOf(t *testing.T) {
	cases := []struct {
		name  string
		event Event
		want  Priority
	}{
		{"user source", Event{Meta: Meta{Source: SourceUser}}, PriorityUserEdited},
		{"user edited kind", Event{Meta: Meta{Kind: KindUserEdited}}, PriorityUserEdited},
		{"stored actual", Event{Meta: Meta{Source: SourceStore}}, PriorityStoredActual},
		{"stored but derived kind", Event{Meta: Meta{Source: SourceStore, Kind: KindDerived}}, PriorityDerivedEvidence},
		{"evidence derived", Event{Meta: Meta{Source: SourceEvidence}}, PriorityDerivedEvidence},
		{"derived id prefix", Event{ID: "derived:loc:1"}, PriorityDerivedEvidence},
		{"screen time source", Event{Meta: Meta{Source: SourceScreenTime}}, PriorityScreenTime},
		{"screen time id prefix", Event{ID: "st:42"}, PriorityScreenTime},
		{"gap filler kind", Event{Meta: Meta{Kind: KindGapFill}}, PriorityGapFiller},
		{"pattern suggestion", Event{Meta: Meta{Source: SourcePattern}}, PriorityGapFiller},
		{"no provenance", Event{}, PriorityGapFiller},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PriorityOf(tc.event))
		})
	}
}

func TestPriorityOrdering(t *testing.T) {
	assert.True(t, PriorityUserEdited.Outranks(PriorityStoredActual))
	assert.True(t, PriorityStoredActual.Outranks(PriorityDerivedEvidence))
	assert.True(t, PriorityDerivedEvidence.Outranks(PriorityScreenTime))
	assert.True(t, PriorityScreenTime.Outranks(PriorityGapFiller))
	assert.False(t, PriorityGapFiller.Outranks(PriorityGapFiller))
	assert.Equal(t, 0, PriorityStoredActual.Compare(PriorityStoredActual))
	assert.Less(t, PriorityUserEdited.Compare(PriorityGapFiller), 0)
}
