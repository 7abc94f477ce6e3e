package appconfig

import (
	"fmt"
	"io"

	"github.com/k0kubun/pp"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	if cfg == nil {
		cfg = &Config{}
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Models:              %v\n", cfg.ModelList())
	fmt.Fprintf(out, "  Concurrency:         %d\n", cfg.ConcurrencyLimit())
	fmt.Fprintf(out, "  Output Folder:       %s\n", cfg.OutputFolder())
	fmt.Fprintf(out, "  Checkpoint Every:    %d samples\n", cfg.CheckpointCount())
	fmt.Fprintf(out, "  Checkpoint Interval: %s\n", cfg.CheckpointInterval())
	fmt.Fprintf(out, "  Retry Base Delay:    %s\n", cfg.RetryBaseDelay())
	fmt.Fprintf(out, "  Request Timeout:     %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Base URL:            %s\n", cfg.APIBaseURL())
	fmt.Fprintf(out, "  API Key Variable:    %s\n", cfg.APIKeyVariable())
	if cfg.RequestsPerSecond > 0 {
		fmt.Fprintf(out, "  Requests/Second:     %v\n", cfg.RequestsPerSecond)
	}
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(out, "  Metrics Address:     %s\n", cfg.MetricsAddr)
	}
	fmt.Fprintf(out, "  Verbose:             %v\n", cfg.Verbose)
	fmt.Fprintf(out, "  Debug:               %v\n", cfg.Debug)
}

// DumpConfig pretty-prints the raw merged configuration struct.
func DumpConfig(out io.Writer, cfg *Config) {
	_, _ = pp.Fprintln(out, cfg)
}
