package parallel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/aibff/internal/grading"
	"github.com/mwiater/aibff/internal/samples"
)

func writeDeck(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.deck.md")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestGradingExecutorRendersUnitSample(t *testing.T) {
	deckPath := writeDeck(t, "Score how polite the assistant is.")

	var got grading.Request
	client := grading.ClientFunc(func(ctx context.Context, req grading.Request) (grading.Result, error) {
		got = req
		return grading.Result{Score: 2, Notes: "polite", LatencyMs: 42}, nil
	})
	exec := NewGradingExecutor(client, time.Second)

	unit := WorkUnit{
		Grader:      deckPath,
		Model:       "openai/gpt-4o",
		SampleIndex: 1,
		Sample: samples.Sample{
			UserMessage:       "hi there",
			AssistantResponse: "hello, how can I help?",
			Score:             truth(2),
			Extra:             map[string]any{"source": "fixtures"},
		},
	}

	res, err := exec.Execute(context.Background(), unit)
	require.NoError(t, err)

	assert.Equal(t, "tone", got.Grader)
	assert.Equal(t, "openai/gpt-4o", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content, "Score how polite"))
	assert.Contains(t, got.Messages[1].Content, "hi there")
	assert.Contains(t, got.Messages[1].Content, "hello, how can I help?")

	assert.Equal(t, "sample-2", res.SampleID)
	assert.Equal(t, 2.0, res.Score)
	require.NotNil(t, res.TruthScore)
	assert.Equal(t, 2.0, *res.TruthScore)
	assert.Equal(t, "hi there", res.UserMessage)
	assert.Equal(t, "fixtures", res.Metadata["source"])
	assert.EqualValues(t, 42, res.LatencyMs)

	res.Metadata["source"] = "mutated"
	assert.Equal(t, "fixtures", unit.Sample.Extra["source"])
}

func TestGradingExecutorConcurrentUnitsStayIsolated(t *testing.T) {
	deckPath := writeDeck(t, "Grade it.")
	client := grading.ClientFunc(func(ctx context.Context, req grading.Request) (grading.Result, error) {
		// Echo the rendered user content back as notes.
		return grading.Result{Notes: req.Messages[1].Content}, nil
	})
	exec := NewGradingExecutor(client, 0)

	list := makeSamples("s", 20)
	var wg sync.WaitGroup
	for i, s := range list {
		wg.Add(1)
		go func(i int, s samples.Sample) {
			defer wg.Done()
			res, err := exec.Execute(context.Background(), WorkUnit{Grader: deckPath, Model: "m", SampleIndex: i, Sample: s})
			if assert.NoError(t, err) {
				assert.Equal(t, s.ID, res.SampleID)
				assert.Contains(t, res.Notes, s.UserMessage+"\n")
			}
		}(i, s)
	}
	wg.Wait()
}

func TestGradingExecutorPrepareFailsOnMissingDeck(t *testing.T) {
	exec := NewGradingExecutor(grading.ClientFunc(func(ctx context.Context, req grading.Request) (grading.Result, error) {
		return grading.Result{}, nil
	}), 0)
	require.Error(t, exec.Prepare([]string{filepath.Join(t.TempDir(), "missing.deck.md")}))
}

func TestGradingExecutorWrapsClientError(t *testing.T) {
	deckPath := writeDeck(t, "Grade it.")
	sentinel := errors.New("upstream 503")
	exec := NewGradingExecutor(grading.ClientFunc(func(ctx context.Context, req grading.Request) (grading.Result, error) {
		return grading.Result{}, sentinel
	}), 0)

	_, err := exec.Execute(context.Background(), WorkUnit{Grader: deckPath, Model: "m"})
	require.ErrorIs(t, err, sentinel)
}

func TestGradingExecutorAppliesTimeout(t *testing.T) {
	deckPath := writeDeck(t, "Grade it.")
	exec := NewGradingExecutor(grading.ClientFunc(func(ctx context.Context, req grading.Request) (grading.Result, error) {
		<-ctx.Done()
		return grading.Result{}, ctx.Err()
	}), 20*time.Millisecond)

	_, err := exec.Execute(context.Background(), WorkUnit{Grader: deckPath, Model: "m"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
