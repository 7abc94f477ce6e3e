package parallel

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mwiater/aibff/internal/deck"
	"github.com/mwiater/aibff/internal/grading"
	"github.com/mwiater/aibff/internal/metrics"
)

var tracer = otel.Tracer("aibff.parallel")

// Executor grades a single work unit.
type Executor interface {
	Execute(ctx context.Context, unit WorkUnit) (grading.Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, unit WorkUnit) (grading.Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, unit WorkUnit) (grading.Result, error) {
	return f(ctx, unit)
}

// Preparer is implemented by executors that need to validate graders before
// the run starts. A Prepare error aborts the run before any unit executes.
type Preparer interface {
	Prepare(graders []string) error
}

// GradingExecutor renders a unit's sample with its grader deck and sends it
// to a grading client.
type GradingExecutor struct {
	Client grading.Client
	// Timeout bounds a single grading call. Zero means no per-call timeout.
	Timeout time.Duration

	mu    sync.Mutex
	decks map[string]*deck.Deck
}

// NewGradingExecutor returns an executor calling client.
func NewGradingExecutor(client grading.Client, timeout time.Duration) *GradingExecutor {
	return &GradingExecutor{Client: client, Timeout: timeout, decks: make(map[string]*deck.Deck)}
}

// Prepare loads every grader deck once.
func (e *GradingExecutor) Prepare(graders []string) error {
	for _, g := range graders {
		if _, err := e.deck(g); err != nil {
			return err
		}
	}
	return nil
}

func (e *GradingExecutor) deck(grader string) (*deck.Deck, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.decks == nil {
		e.decks = make(map[string]*deck.Deck)
	}
	if d, ok := e.decks[grader]; ok {
		return d, nil
	}
	d, err := deck.Load(grader)
	if err != nil {
		return nil, err
	}
	e.decks[grader] = d
	return d, nil
}

// Execute grades unit. The returned result carries the sample's id, truth
// score, metadata and text.
func (e *GradingExecutor) Execute(ctx context.Context, unit WorkUnit) (grading.Result, error) {
	ctx, span := tracer.Start(ctx, "parallel.Execute",
		trace.WithAttributes(
			attribute.String("grader", unit.Grader),
			attribute.String("model", unit.Model),
			attribute.String("sample.id", unit.SampleID()),
			attribute.Int("sample.index", unit.SampleIndex),
			attribute.Int("retry_count", unit.RetryCount),
		),
	)
	defer span.End()

	if e.Client == nil {
		err := fmt.Errorf("grading executor has no client")
		span.SetStatus(codes.Error, err.Error())
		return grading.Result{}, err
	}

	d, err := e.deck(unit.Grader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return grading.Result{}, err
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	sample := unit.Sample
	req := grading.Request{
		Grader: deck.GraderName(unit.Grader),
		Model:  unit.Model,
		Messages: d.Render(deck.RenderInput{
			UserMessage:       sample.UserMessage,
			AssistantResponse: sample.AssistantResponse,
			Expected:          sample.Expected,
		}),
	}

	start := time.Now()
	result, err := e.Client.Grade(ctx, req)
	metrics.RecordLatency(unit.Model, err == nil, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return grading.Result{}, fmt.Errorf("grade %s with %s: %w", unit.SampleID(), unit.Model, err)
	}

	result.SampleID = unit.SampleID()
	result.TruthScore = sample.Score
	result.UserMessage = sample.UserMessage
	result.AssistantResponse = sample.AssistantResponse
	if len(sample.Extra) > 0 {
		result.Metadata = maps.Clone(sample.Extra)
	}
	span.SetAttributes(attribute.Float64("score", result.Score))
	return result, nil
}
