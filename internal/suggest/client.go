// Package suggest asks a local OpenAI-compatible model to categorize blocks
// the deterministic pipeline left unknown. It is optional; the pipeline runs
// fully without it.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/daverage/planfact/internal/timeline"
)

// BlockDescriptor is the model-facing description of one unknown block.
// Only coarse signals go over the wire; raw evidence stays local.
type BlockDescriptor struct {
	Title        string   `json:"title,omitempty"`
	Location     string   `json:"location,omitempty"`
	StartMinutes int      `json:"start_minutes"`
	Duration     int      `json:"duration_minutes"`
	Weekday      string   `json:"weekday,omitempty"`
	TopApps      []string `json:"top_apps,omitempty"`
}

// Suggestion is the model's answer for one block.
type Suggestion struct {
	Category   timeline.Category `json:"category"`
	Confidence float64           `json:"confidence"`
	Reason     string            `json:"reason"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = `You categorize blocks of a personal daily timeline.
Answer with a single JSON object: {"category": "...", "confidence": 0.0-1.0, "reason": "..."}.
Valid categories: routine, work, meal, meeting, health, family, social, travel, finance, comm, digital, sleep, free.
No prose outside the JSON object.`

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewClient creates a suggestion client. baseURL points at the API root,
// e.g. http://localhost:11434/v1.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// SuggestCategory asks the model to categorize one block. Invalid or
// out-of-range answers are errors; the caller decides whether to skip or
// abort.
func (c *Client) SuggestCategory(ctx context.Context, block BlockDescriptor) (*Suggestion, error) {
	blockJSON, err := json.Marshal(block)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal block: %w", err)
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(blockJSON)},
		},
		Temperature: 0,
		MaxTokens:   200,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response")
	}

	return parseSuggestion(chatResp.Choices[0].Message.Content)
}

// parseSuggestion extracts the JSON answer, tolerating markdown code fences.
func parseSuggestion(content string) (*Suggestion, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var s Suggestion
	if err := json.Unmarshal([]byte(trimmed), &s); err != nil {
		return nil, fmt.Errorf("failed to parse suggestion: %w", err)
	}
	if !s.Category.IsValid() {
		return nil, fmt.Errorf("invalid category %q", s.Category)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", s.Confidence)
	}
	return &s, nil
}
