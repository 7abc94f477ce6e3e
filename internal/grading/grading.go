// Package grading defines the boundary to the LLM-backed scoring service and
// an OpenAI-compatible implementation of it.
package grading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mwiater/aibff/internal/deck"
)

const (
	MinScore = -3
	MaxScore = 3
)

// ErrScoreOutOfRange is returned when a grader replies with a score outside [-3, 3].
var ErrScoreOutOfRange = errors.New("score out of valid range [-3, 3]")

// Request is one grading call: a rendered grader conversation for one sample.
type Request struct {
	Grader   string
	Model    string
	Messages []deck.Message
}

// Result is the structured outcome of grading one sample.
type Result struct {
	SampleID          string         `json:"id" toml:"id"`
	Score             float64        `json:"grader_score" toml:"grader_score"`
	TruthScore        *float64       `json:"truth_score,omitempty" toml:"truth_score,omitempty"`
	Notes             string         `json:"notes" toml:"notes"`
	RawOutput         string         `json:"rawOutput,omitempty" toml:"rawOutput,omitempty"`
	Metadata          map[string]any `json:"graderMetadata,omitempty" toml:"graderMetadata,omitempty"`
	UserMessage       string         `json:"userMessage,omitempty" toml:"userMessage,omitempty"`
	AssistantResponse string         `json:"assistantResponse,omitempty" toml:"assistantResponse,omitempty"`
	LatencyMs         int64          `json:"latencyMs,omitempty" toml:"latencyMs,omitempty"`
	PromptTokens      int            `json:"promptTokens,omitempty" toml:"promptTokens,omitempty"`
	CompletionTokens  int            `json:"completionTokens,omitempty" toml:"completionTokens,omitempty"`
	TotalTokens       int            `json:"totalTokens,omitempty" toml:"totalTokens,omitempty"`
}

// Client scores one rendered grader conversation.
type Client interface {
	Grade(ctx context.Context, req Request) (Result, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (Result, error)

func (f ClientFunc) Grade(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

type gradeReply struct {
	Score  *float64 `json:"score"`
	Notes  string   `json:"notes"`
	Reason string   `json:"reason"`
}

// ParseGrade extracts the score and notes from a grader reply. A reply that is
// not valid JSON scores 0 with an explanatory note; a score outside the valid
// range is an error so the call can be retried.
func ParseGrade(raw string) (float64, string, error) {
	body := stripFences(raw)

	var reply gradeReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil || reply.Score == nil {
		return 0, fmt.Sprintf("Grader failed to return valid JSON. Raw output: %s", raw), nil
	}

	score := math.Round(*reply.Score)
	if score < MinScore || score > MaxScore {
		return 0, "", fmt.Errorf("%w: got %v", ErrScoreOutOfRange, score)
	}

	notes := reply.Notes
	if notes == "" {
		notes = reply.Reason
	}
	return score, notes, nil
}

// stripFences removes a surrounding markdown code fence, which some models add
// around JSON replies.
func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		trimmed = trimmed[nl+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
