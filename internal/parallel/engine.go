package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwiater/aibff/internal/grading"
	"github.com/mwiater/aibff/internal/logging"
	"github.com/mwiater/aibff/internal/metrics"
	"github.com/mwiater/aibff/internal/report"
	"github.com/mwiater/aibff/internal/samples"
)

// DefaultConcurrency is the limiter size when none is configured.
const DefaultConcurrency = 5

var (
	// ErrNoSamples is returned when no grader produced any samples.
	ErrNoSamples = errors.New("no samples to evaluate")
	// ErrNoGraders is returned when Run is called without graders.
	ErrNoGraders = errors.New("at least one grader is required")
	// ErrNoModels is returned when Run is called without models.
	ErrNoModels = errors.New("at least one model is required")
)

// Options configures a calibration run.
type Options struct {
	// Graders are grader deck paths in command-line order.
	Graders []string
	// Models are grading models in command-line order.
	Models []string
	// InputFile, when set, supplies the samples for every grader.
	InputFile string

	Concurrency        int
	RetryBaseDelay     time.Duration
	CheckpointEvery    int
	CheckpointInterval time.Duration

	Executor Executor
	Writer   report.Writer

	// OnSampleComplete is called after each successful unit with the running
	// completed count and the total number of units. It may be called from
	// several goroutines at once.
	OnSampleComplete func(unit WorkUnit, result grading.Result, completed, total int)
	// OnError is called after every failed attempt with the number of failed
	// attempts so far. terminal is set once the unit will not run again:
	// after MaxAttempts, or earlier when ctx is cancelled.
	OnError func(unit WorkUnit, err error, attempts int, terminal bool)

	// RunID labels the results document. A random id is used when empty.
	RunID string
	// LoadSamples overrides samples.Load.
	LoadSamples func(graderPath, inputPath string) ([]samples.Sample, error)
}

// Stats reports how a run ended.
type Stats struct {
	RunID     string
	Total     int
	Completed int
	Failed    int
	Duration  time.Duration
}

// Run loads samples for every grader, grades every (grader, model, sample)
// unit concurrently and checkpoints results through opts.Writer. Load errors
// are returned before any unit starts. Units that fail after all attempts are
// counted in Stats.Failed and do not make Run return an error.
func Run(ctx context.Context, opts Options) (Stats, error) {
	start := time.Now()
	if len(opts.Graders) == 0 {
		return Stats{}, ErrNoGraders
	}
	if len(opts.Models) == 0 {
		return Stats{}, ErrNoModels
	}
	if opts.Executor == nil {
		return Stats{}, errors.New("parallel: executor is required")
	}
	if opts.Writer == nil {
		return Stats{}, errors.New("parallel: writer is required")
	}

	graders, err := loadGraders(opts)
	if err != nil {
		return Stats{}, err
	}
	if p, ok := opts.Executor.(Preparer); ok {
		if err := p.Prepare(opts.Graders); err != nil {
			return Stats{}, fmt.Errorf("prepare graders: %w", err)
		}
	}

	queue := BuildQueue(graders, opts.Models)
	if len(queue) == 0 {
		return Stats{}, ErrNoSamples
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	total := len(queue)
	logging.LogEvent("[RUN] %s: %d units across %d graders and %d models (concurrency %d)",
		runID, total, len(opts.Graders), len(opts.Models), concurrency(opts.Concurrency))

	limiter := NewLimiter(concurrency(opts.Concurrency))
	ledger := NewLedger(total)
	checkpointer := NewCheckpointer(ledger, opts.Writer, func(snap Snapshot, final bool) report.Summary {
		return BuildSummary(snap, SummaryMeta{RunID: runID, Graders: opts.Graders, Models: opts.Models, Final: final})
	}, opts.CheckpointEvery, opts.CheckpointInterval)
	checkpointer.Start()

	retry := &RetryController{
		MaxAttempts: MaxAttempts,
		BaseDelay:   opts.RetryBaseDelay,
		OnRetry: func(unit WorkUnit, err error, retryCount int) {
			metrics.RecordRetry(unit.Model, grading.IsRateLimited(err))
			logging.LogEvent("[RETRY] %s %s/%s attempt %d failed: %v", unit.SampleID(), unit.Grader, unit.Model, retryCount, err)
			if opts.OnError != nil {
				opts.OnError(unit, err, retryCount, false)
			}
		},
	}

	attempt := func(ctx context.Context, unit WorkUnit) (grading.Result, error) {
		if err := limiter.Acquire(ctx); err != nil {
			return grading.Result{}, err
		}
		defer limiter.Release()
		return opts.Executor.Execute(ctx, unit)
	}

	var wg sync.WaitGroup
	for _, unit := range queue {
		wg.Add(1)
		go func(unit WorkUnit) {
			defer wg.Done()
			out := retry.Run(ctx, unit, attempt)
			switch out.Kind {
			case OutcomeSuccess:
				completed := ledger.RecordSuccess(out.Unit, out.Result)
				metrics.RecordCompleted(out.Unit.Grader, out.Unit.Model)
				if opts.OnSampleComplete != nil {
					opts.OnSampleComplete(out.Unit, out.Result, completed, total)
				}
				checkpointer.Notify()
			default:
				ledger.RecordFailure(out.Unit)
				metrics.RecordFailed(out.Unit.Grader, out.Unit.Model)
				logging.LogEvent("[FAILED] %s %s/%s after %d attempts: %v", out.Unit.SampleID(), out.Unit.Grader, out.Unit.Model, out.Attempts, out.Err)
				if opts.OnError != nil {
					opts.OnError(out.Unit, out.Err, out.Attempts, true)
				}
			}
		}(unit)
	}
	wg.Wait()

	if err := checkpointer.Final(); err != nil {
		logging.LogWarning("final checkpoint for run %s was not saved: %v", runID, err)
	}

	completed, failed, _ := ledger.Counts()
	stats := Stats{
		RunID:     runID,
		Total:     total,
		Completed: completed,
		Failed:    failed,
		Duration:  time.Since(start),
	}
	logging.LogEvent("[RUN] %s finished: %d completed, %d failed of %d in %s", runID, completed, failed, total, stats.Duration.Round(time.Millisecond))
	return stats, nil
}

// loadGraders loads samples for every grader in order. Any load error aborts
// the run.
func loadGraders(opts Options) ([]GraderSamples, error) {
	load := opts.LoadSamples
	if load == nil {
		load = samples.Load
	}

	// An external file is shared by every grader, so read it once.
	var shared []samples.Sample
	if opts.InputFile != "" {
		list, err := load(opts.Graders[0], opts.InputFile)
		if err != nil {
			return nil, err
		}
		shared = list
	}

	graders := make([]GraderSamples, 0, len(opts.Graders))
	for _, g := range opts.Graders {
		list := shared
		if opts.InputFile == "" {
			var err error
			if list, err = load(g, ""); err != nil {
				return nil, err
			}
		}
		if len(list) == 0 {
			logging.LogWarning("grader %s has no samples", g)
		}
		graders = append(graders, GraderSamples{Grader: g, Samples: list})
	}
	return graders, nil
}

func concurrency(n int) int {
	if n < 1 {
		return DefaultConcurrency
	}
	return n
}
