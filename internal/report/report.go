// internal/report/report.go
// Package report defines the calibration results document and writes it to
// disk as TOML and HTML.
package report

import (
	"github.com/mwiater/aibff/internal/grading"
)

// Summary is the full calibration results document. It is rebuilt from the
// results ledger on every checkpoint.
type Summary struct {
	RunID         string                   `toml:"runId"`
	Timestamp     string                   `toml:"timestamp"`
	Completed     int                      `toml:"completed"`
	Failed        int                      `toml:"failed"`
	Total         int                      `toml:"total"`
	Final         bool                     `toml:"final"`
	GraderOrder   []string                 `toml:"graderOrder"`
	ModelOrder    []string                 `toml:"modelOrder"`
	GraderResults map[string]GraderResults `toml:"graderResults"`
}

// GraderResults groups one grader's results by model.
type GraderResults struct {
	Grader string                  `toml:"grader"`
	Models map[string]ModelResults `toml:"models"`
}

// ModelResults summarizes one grader-model pair.
type ModelResults struct {
	Model                   string           `toml:"model"`
	Timestamp               string           `toml:"timestamp"`
	Samples                 int              `toml:"samples"`
	AverageDistance         float64          `toml:"average_distance"`
	SamplesWithTruth        int              `toml:"samples_with_truth"`
	AverageLatencyMs        float64          `toml:"average_latency_ms"`
	AveragePromptTokens     float64          `toml:"average_prompt_tokens"`
	AverageCompletionTokens float64          `toml:"average_completion_tokens"`
	Results                 []grading.Result `toml:"results"`
}

// Writer persists a summary. Implementations overwrite the previous
// snapshot.
type Writer interface {
	Write(Summary) error
}

// WriterFunc adapts a function to the Writer interface.
type WriterFunc func(Summary) error

func (f WriterFunc) Write(s Summary) error { return f(s) }

// Agrees reports whether a grader score matches the truth score. Results
// without a truth score never agree.
func Agrees(r grading.Result) bool {
	return r.TruthScore != nil && *r.TruthScore == r.Score
}
