package grading

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/mwiater/aibff/internal/logging"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// zeroTemperature stands in for 0: the request field is omitempty, so a literal
// 0 would leave the service default in place.
const zeroTemperature = math.SmallestNonzeroFloat32

// OpenAIOptions configures an OpenAIClient.
type OpenAIOptions struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// OpenAIClient grades samples through an OpenAI-compatible chat completions API
// such as OpenRouter.
type OpenAIClient struct {
	client  *openai.Client
	limiter *rate.Limiter
}

// NewOpenAIClient builds a client. A non-positive RequestsPerSecond disables
// client-side throttling.
func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("grading API key is empty")
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	cfg.HTTPClient = httpClient

	c := &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c, nil
}

// Grade sends the rendered grader conversation and parses the score reply.
func (c *OpenAIClient) Grade(ctx context.Context, req Request) (Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: zeroTemperature,
	}
	logging.LogRequest("aibff->llm", req.Grader, req.Model, chatReq)

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	latency := time.Since(start)
	if err != nil {
		return Result{}, fmt.Errorf("grading request for model %s failed: %w", req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("grading response for model %s contained no choices", req.Model)
	}

	raw := resp.Choices[0].Message.Content
	logging.LogRequest("llm->aibff", req.Grader, req.Model, raw)

	score, notes, err := ParseGrade(raw)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Score:            score,
		Notes:            notes,
		RawOutput:        raw,
		LatencyMs:        latency.Milliseconds(),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}
