// internal/commands/calibrate.go
package aibff

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/mwiater/aibff/internal/appconfig"
	"github.com/mwiater/aibff/internal/grading"
	"github.com/mwiater/aibff/internal/logging"
	"github.com/mwiater/aibff/internal/metrics"
	"github.com/mwiater/aibff/internal/parallel"
	"github.com/mwiater/aibff/internal/progress"
	"github.com/mwiater/aibff/internal/report"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// calibrateCmd implements 'calibrate', which grades every sample of every
// grader deck with every model and writes results.toml and results.html.
var calibrateCmd = &cobra.Command{
	Use:   "calibrate <grader.deck.md>... [samples.jsonl|samples.toml]",
	Short: "Calibrate grader decks against ground-truth samples",
	Long: `Calibrate runs each grader deck over its samples with one or more grading models.

Samples come from the TOML files a deck embeds, or from a trailing .jsonl or
.toml file shared by all graders. Results are checkpointed to the output
folder while the run progresses.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			cfg = &appconfig.Config{}
		}
		return runCalibrate(cmd, *cfg, args)
	},
}

func init() {
	calibrateCmd.Flags().StringSlice("model", nil, "grading model(s), comma separated (default "+appconfig.DefaultModel+")")
	calibrateCmd.Flags().Int("concurrency", 0, "number of samples graded in parallel (default 5)")
	calibrateCmd.Flags().String("output", "", "output folder for results.toml and results.html (default \"results\")")
	calibrateCmd.Flags().Bool("verbose", false, "print retries as they happen")
	calibrateCmd.Flags().Int("checkpointEvery", 0, "checkpoint after this many completed samples (default 10)")
	calibrateCmd.Flags().Int("checkpointInterval", 0, "checkpoint after this many seconds with unsaved results (default 5)")
	calibrateCmd.Flags().Int("timeout", 0, "per-request timeout in seconds (default 600)")
	calibrateCmd.Flags().String("metricsAddr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	_ = viper.BindPFlag("models", calibrateCmd.Flags().Lookup("model"))
	_ = viper.BindPFlag("concurrency", calibrateCmd.Flags().Lookup("concurrency"))
	_ = viper.BindPFlag("output", calibrateCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("verbose", calibrateCmd.Flags().Lookup("verbose"))
	_ = viper.BindPFlag("checkpointEvery", calibrateCmd.Flags().Lookup("checkpointEvery"))
	_ = viper.BindPFlag("checkpointIntervalSeconds", calibrateCmd.Flags().Lookup("checkpointInterval"))
	_ = viper.BindPFlag("timeout", calibrateCmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("metricsAddr", calibrateCmd.Flags().Lookup("metricsAddr"))

	rootCmd.AddCommand(calibrateCmd)
}

// splitCalibrateArgs separates grader decks from an optional trailing sample file.
func splitCalibrateArgs(args []string) (graders []string, inputFile string, err error) {
	graders = args
	if n := len(args); n > 0 {
		last := strings.ToLower(args[n-1])
		if strings.HasSuffix(last, ".jsonl") || strings.HasSuffix(last, ".toml") {
			inputFile = args[n-1]
			graders = args[:n-1]
		}
	}
	if len(graders) == 0 {
		return nil, "", errors.New("at least one grader deck is required")
	}
	return graders, inputFile, nil
}

// newGradingClient builds the grading client; tests replace it.
var newGradingClient = func(cfg appconfig.Config) (grading.Client, error) {
	apiKey := cfg.APIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable is required", cfg.APIKeyVariable())
	}
	client, err := grading.NewOpenAIClient(grading.OpenAIOptions{
		BaseURL:           cfg.APIBaseURL(),
		APIKey:            apiKey,
		Timeout:           cfg.RequestTimeout(),
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func runCalibrate(cmd *cobra.Command, cfg appconfig.Config, args []string) error {
	graders, inputFile, err := splitCalibrateArgs(args)
	if err != nil {
		return err
	}

	client, err := newGradingClient(cfg)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		shutdown := metrics.Serve(cfg.MetricsAddr)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	out := cmd.OutOrStdout()
	models := cfg.ModelList()
	outputDir := cfg.OutputFolder()

	fmt.Fprintf(out, "Calibrating %d grader(s) with %d model(s): %s\n", len(graders), len(models), strings.Join(models, ", "))
	if inputFile != "" {
		fmt.Fprintf(out, "Samples: %s\n", inputFile)
	}

	// Keep the latest summary for the closing table.
	var (
		lastMu  sync.Mutex
		last    report.Summary
		fileOut = report.NewFileWriter(outputDir)
	)
	writer := report.WriterFunc(func(s report.Summary) error {
		lastMu.Lock()
		last = s
		lastMu.Unlock()
		return fileOut.Write(s)
	})

	console := progress.NewConsole(out, cfg.Verbose)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	stats, err := parallel.Run(ctx, parallel.Options{
		Graders:            graders,
		Models:             models,
		InputFile:          inputFile,
		Concurrency:        cfg.ConcurrencyLimit(),
		RetryBaseDelay:     cfg.RetryBaseDelay(),
		CheckpointEvery:    cfg.CheckpointCount(),
		CheckpointInterval: cfg.CheckpointInterval(),
		Executor:           parallel.NewGradingExecutor(client, cfg.RequestTimeout()),
		Writer:             writer,
		OnSampleComplete:   console.SampleComplete,
		OnError:            console.SampleError,
	})
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}

	lastMu.Lock()
	summary := last
	lastMu.Unlock()
	progress.PrintSummary(out, summary, stats.Duration, outputDir)

	if stats.Failed > 0 {
		logging.LogWarning("%d of %d samples failed after %d attempts", stats.Failed, stats.Total, parallel.MaxAttempts)
	}
	return nil
}
