package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daverage/planfact/internal/timeline"
)

func TestSuggestCategory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "local-model", req.Model)
		require.Len(t, req.Messages, 2)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role":    "assistant",
					"content": `{"category": "work", "confidence": 0.85, "reason": "weekday office hours"}`,
				}},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL+"/v1", "secret", "local-model", 5*time.Second)
	s, err := client.SuggestCategory(context.Background(), BlockDescriptor{
		StartMinutes: 540, Duration: 60, Location: "office", Weekday: "Monday",
	})
	require.NoError(t, err)
	assert.Equal(t, timeline.Work, s.Category)
	assert.InDelta(t, 0.85, s.Confidence, 1e-9)
}

func TestSuggestCategoryServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "m", time.Second)
	_, err := client.SuggestCategory(context.Background(), BlockDescriptor{StartMinutes: 0, Duration: 30})
	assert.Error(t, err)
}

func TestParseSuggestion(t *testing.T) {
	s, err := parseSuggestion("```json\n{\"category\": \"meal\", \"confidence\": 0.7, \"reason\": \"noon\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, timeline.Meal, s.Category)

	_, err = parseSuggestion(`{"category": "nonsense", "confidence": 0.7}`)
	assert.Error(t, err)

	_, err = parseSuggestion(`{"category": "work", "confidence": 1.3}`)
	assert.Error(t, err)

	_, err = parseSuggestion("not json at all")
	assert.Error(t, err)
}

type stubCategorizer struct {
	answers map[string]*Suggestion
	err     error
	calls   int
}

func (s *stubCategorizer) SuggestCategory(_ context.Context, block BlockDescriptor) (*Suggestion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if a, ok := s.answers[block.Title]; ok {
		return a, nil
	}
	return &Suggestion{Category: timeline.Free, Confidence: 0.3}, nil
}

func TestAssignOnlyTouchesUnknown(t *testing.T) {
	stub := &stubCategorizer{answers: map[string]*Suggestion{
		"Mystery": {Category: timeline.Work, Confidence: 0.9, Reason: "office hours"},
	}}
	a := NewAutoAssigner(stub, zap.NewNop(), 0.6)

	events := []timeline.Event{
		{ID: "1", Title: "Lunch", Category: timeline.Meal, StartMinutes: 720, Duration: 45},
		{ID: "2", Title: "Mystery", Category: timeline.Unknown, StartMinutes: 540, Duration: 60},
	}
	out, assigned := a.Assign(context.Background(), "2026-03-02", events)

	assert.Equal(t, 1, assigned)
	assert.Equal(t, 1, stub.calls, "known categories never hit the model")
	assert.Equal(t, timeline.Meal, out[0].Category)
	assert.Equal(t, timeline.Work, out[1].Category)
	assert.Equal(t, "office hours", out[1].Description)
	assert.Equal(t, timeline.Unknown, events[1].Category, "input untouched")
}

func TestAssignSkipsLowConfidence(t *testing.T) {
	stub := &stubCategorizer{answers: map[string]*Suggestion{
		"Mystery": {Category: timeline.Work, Confidence: 0.4},
	}}
	a := NewAutoAssigner(stub, zap.NewNop(), 0.6)

	out, assigned := a.Assign(context.Background(), "2026-03-02", []timeline.Event{
		{ID: "2", Title: "Mystery", Category: timeline.Unknown, StartMinutes: 540, Duration: 60},
	})
	assert.Equal(t, 0, assigned)
	assert.Equal(t, timeline.Unknown, out[0].Category)
}

func TestAssignContinuesPastErrors(t *testing.T) {
	stub := &stubCategorizer{err: errors.New("model offline")}
	a := NewAutoAssigner(stub, zap.NewNop(), 0.6)

	out, assigned := a.Assign(context.Background(), "2026-03-02", []timeline.Event{
		{ID: "1", Category: timeline.Unknown, StartMinutes: 540, Duration: 60},
		{ID: "2", Category: timeline.Unknown, StartMinutes: 600, Duration: 60},
	})
	assert.Equal(t, 0, assigned)
	assert.Equal(t, 2, stub.calls, "one failure does not stop the loop")
	assert.Equal(t, timeline.Unknown, out[0].Category)
}

func TestAssignStopsOnCancel(t *testing.T) {
	stub := &stubCategorizer{}
	a := NewAutoAssigner(stub, zap.NewNop(), 0.6)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, assigned := a.Assign(ctx, "2026-03-02", []timeline.Event{
		{ID: "1", Category: timeline.Unknown, StartMinutes: 540, Duration: 60},
	})
	assert.Equal(t, 0, assigned)
	assert.Equal(t, 0, stub.calls)
}
