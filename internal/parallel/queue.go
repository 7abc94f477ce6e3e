// Package parallel runs a calibration: every (grader, model, sample) work
// unit is graded concurrently under a bounded limiter, retried on failure
// and folded into a shared results ledger that is checkpointed to disk.
package parallel

import "github.com/mwiater/aibff/internal/samples"

// GraderSamples pairs a grader identifier with its ordered samples.
type GraderSamples struct {
	Grader  string
	Samples []samples.Sample
}

// WorkUnit is one grading task: one sample, one grader, one model.
type WorkUnit struct {
	Grader                string
	Model                 string
	SampleIndex           int
	TotalSamplesForGrader int
	Sample                samples.Sample
	RetryCount            int
}

// SampleID returns the sample id, falling back to its position.
func (u WorkUnit) SampleID() string {
	return u.Sample.Label(u.SampleIndex)
}

// BuildQueue interleaves the samples of all graders round-robin by sample
// index so that graders with long sample lists do not starve the others.
// Within one index graders keep their input order, and each grader's sample
// is expanded across models in input order.
func BuildQueue(graders []GraderSamples, models []string) []WorkUnit {
	maxSamples := 0
	total := 0
	for _, g := range graders {
		if len(g.Samples) > maxSamples {
			maxSamples = len(g.Samples)
		}
		total += len(g.Samples)
	}

	queue := make([]WorkUnit, 0, total*len(models))
	for i := 0; i < maxSamples; i++ {
		for _, g := range graders {
			if i >= len(g.Samples) {
				continue
			}
			for _, model := range models {
				queue = append(queue, WorkUnit{
					Grader:                g.Grader,
					Model:                 model,
					SampleIndex:           i,
					TotalSamplesForGrader: len(g.Samples),
					Sample:                g.Samples[i],
				})
			}
		}
	}
	return queue
}
