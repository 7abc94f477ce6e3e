// internal/progress/progress.go
// Package progress prints calibration progress and the end-of-run summary
// to the console.
package progress

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/mwiater/aibff/internal/deck"
	"github.com/mwiater/aibff/internal/grading"
	"github.com/mwiater/aibff/internal/parallel"
	"github.com/mwiater/aibff/internal/report"
	"github.com/mwiater/aibff/internal/util"
)

var (
	agreeText    = color.New(color.FgGreen).SprintFunc()
	disagreeText = color.New(color.FgRed).SprintFunc()
	noTruthText  = color.New(color.FgHiBlack).SprintFunc()
	retryText    = color.New(color.FgYellow).SprintFunc()

	maxErrorRunes = 200

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	cellStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

// Console writes one line per finished sample. It is safe for concurrent use.
type Console struct {
	out     io.Writer
	verbose bool
	mu      sync.Mutex
}

// NewConsole returns a console writing to out. Retries are only printed when
// verbose is set; terminal failures are always printed.
func NewConsole(out io.Writer, verbose bool) *Console {
	return &Console{out: out, verbose: verbose}
}

// SampleComplete prints the progress line for a graded sample.
func (c *Console) SampleComplete(unit parallel.WorkUnit, result grading.Result, completed, total int) {
	line := FormatSample(unit, result, completed, total)
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

// SampleError prints a failed attempt. terminal marks a sample that will not
// be retried.
func (c *Console) SampleError(unit parallel.WorkUnit, err error, attempts int, terminal bool) {
	if !terminal && !c.verbose {
		return
	}

	label := fmt.Sprintf("%s (%s, %s)", unit.SampleID(), deck.GraderName(unit.Grader), unit.Model)
	reason := util.Clip(fmt.Sprint(err), maxErrorRunes)
	var line string
	if terminal {
		line = disagreeText(fmt.Sprintf("[FAILED] %s after %d attempts: %s", label, attempts, reason))
	} else {
		line = retryText(fmt.Sprintf("[RETRY %d/%d] %s: %s", attempts, parallel.MaxAttempts, label, reason))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

// FormatSample renders the colored progress line for one graded sample.
func FormatSample(unit parallel.WorkUnit, result grading.Result, completed, total int) string {
	prefix := fmt.Sprintf("[%d/%d]", completed, total)
	where := faintStyle.Render(fmt.Sprintf("(%s, %s)", deck.GraderName(unit.Grader), unit.Model))
	id := result.SampleID
	if id == "" {
		id = unit.SampleID()
	}

	if result.TruthScore == nil {
		msg := fmt.Sprintf("%s - %s: grader=%s, truth=N/A", prefix, id, formatScore(result.Score))
		return noTruthText(msg) + " " + where
	}

	symbol, paint := "✗", disagreeText
	if report.Agrees(result) {
		symbol, paint = "✓", agreeText
	}
	msg := fmt.Sprintf("%s %s %s: grader=%s, truth=%s", prefix, symbol, id, formatScore(result.Score), formatScore(*result.TruthScore))
	return paint(msg) + " " + where
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// PrintSummary writes a per grader-model table for s followed by run totals.
func PrintSummary(out io.Writer, s report.Summary, elapsed time.Duration, outputDir string) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, titleStyle.Render("Calibration summary"))

	widths := []int{20, 28, 9, 14, 13}
	header := []string{"Grader", "Model", "Samples", "Avg distance", "Avg latency"}
	fmt.Fprintln(out, renderRow(headerStyle, widths, header))

	for _, grader := range s.GraderOrder {
		gr := s.GraderResults[grader]
		for _, model := range s.ModelOrder {
			mr, ok := gr.Models[model]
			if !ok {
				continue
			}
			fmt.Fprintln(out, renderRow(cellStyle, widths, []string{
				grader,
				model,
				strconv.Itoa(mr.Samples),
				distanceCell(mr),
				fmt.Sprintf("%.0fms", mr.AverageLatencyMs),
			}))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Completed: %d  Failed: %d  Total: %d  Time: %.1fs\n", s.Completed, s.Failed, s.Total, elapsed.Seconds())
	if outputDir != "" {
		fmt.Fprintf(out, "Results saved to %s\n", outputDir)
	}
}

func distanceCell(mr report.ModelResults) string {
	if mr.SamplesWithTruth == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", mr.AverageDistance)
}

func renderRow(style lipgloss.Style, widths []int, cells []string) string {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = style.Width(widths[i]).Render(util.FitCell(cell, widths[i]))
	}
	return strings.TrimRight(strings.Join(parts, ""), " ")
}
