package parallel

import (
	"math"
	"time"

	"github.com/mwiater/aibff/internal/deck"
	"github.com/mwiater/aibff/internal/grading"
	"github.com/mwiater/aibff/internal/report"
)

// SummaryMeta carries the run-level fields of a summary that the ledger does
// not hold.
type SummaryMeta struct {
	RunID   string
	Graders []string
	Models  []string
	Final   bool
	Now     time.Time
}

// BuildSummary recomputes the results document from a ledger snapshot.
// Graders keep their input order; pairs with no results are omitted.
func BuildSummary(snap Snapshot, meta SummaryMeta) report.Summary {
	now := meta.Now
	if now.IsZero() {
		now = time.Now()
	}

	s := report.Summary{
		RunID:         meta.RunID,
		Timestamp:     now.UTC().Format(time.RFC3339),
		Completed:     snap.Completed,
		Failed:        snap.Failed,
		Total:         snap.Total,
		Final:         meta.Final,
		ModelOrder:    append([]string(nil), meta.Models...),
		GraderResults: make(map[string]report.GraderResults),
	}

	names := graderNames(meta.Graders)
	for _, grader := range meta.Graders {
		name := names[grader]
		gr := report.GraderResults{Grader: name, Models: make(map[string]report.ModelResults)}
		for _, model := range meta.Models {
			k := Key{Grader: grader, Model: model}
			results := snap.Results[k]
			if len(results) == 0 {
				continue
			}
			mr := summarizePair(model, results)
			if t, ok := snap.Updated[k]; ok {
				mr.Timestamp = t.UTC().Format(time.RFC3339)
			}
			gr.Models[model] = mr
		}
		if len(gr.Models) == 0 {
			continue
		}
		s.GraderOrder = append(s.GraderOrder, name)
		s.GraderResults[name] = gr
	}
	return s
}

// graderNames maps grader identifiers to display names, falling back to the
// identifier when two decks share a name.
func graderNames(graders []string) map[string]string {
	names := make(map[string]string, len(graders))
	owner := make(map[string]string, len(graders))
	for _, g := range graders {
		name := deck.GraderName(g)
		if prev, taken := owner[name]; taken && prev != g {
			name = g
		}
		owner[name] = g
		names[g] = name
	}
	return names
}

func summarizePair(model string, results []grading.Result) report.ModelResults {
	var (
		distance   float64
		withTruth  int
		latency    float64
		prompt     float64
		completion float64
	)
	for _, r := range results {
		if r.TruthScore != nil {
			distance += math.Abs(r.Score - *r.TruthScore)
			withTruth++
		}
		latency += float64(r.LatencyMs)
		prompt += float64(r.PromptTokens)
		completion += float64(r.CompletionTokens)
	}

	n := float64(len(results))
	mr := report.ModelResults{
		Model:                   model,
		Samples:                 len(results),
		SamplesWithTruth:        withTruth,
		AverageLatencyMs:        round2(latency / n),
		AveragePromptTokens:     round2(prompt / n),
		AverageCompletionTokens: round2(completion / n),
		Results:                 append([]grading.Result(nil), results...),
	}
	if withTruth > 0 {
		mr.AverageDistance = round2(distance / float64(withTruth))
	}
	return mr
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
