package parallel

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/aibff/internal/samples"
)

func makeSamples(prefix string, n int) []samples.Sample {
	list := make([]samples.Sample, n)
	for i := range list {
		list[i] = samples.Sample{
			ID:                fmt.Sprintf("%s-%d", prefix, i),
			UserMessage:       fmt.Sprintf("question %d", i),
			AssistantResponse: fmt.Sprintf("answer %d", i),
		}
	}
	return list
}

func TestBuildQueueInterleavesGraders(t *testing.T) {
	graders := []GraderSamples{
		{Grader: "a.deck.md", Samples: makeSamples("a", 5)},
		{Grader: "b.deck.md", Samples: makeSamples("b", 2)},
	}

	queue := BuildQueue(graders, []string{"m1"})
	require.Len(t, queue, 7)

	var got []string
	for _, u := range queue {
		got = append(got, u.SampleID())
	}
	assert.Equal(t, []string{"a-0", "b-0", "a-1", "b-1", "a-2", "a-3", "a-4"}, got)

	assert.Equal(t, 5, queue[0].TotalSamplesForGrader)
	assert.Equal(t, 2, queue[1].TotalSamplesForGrader)
	for _, u := range queue {
		assert.Zero(t, u.RetryCount)
	}
}

func TestBuildQueueExpandsModelsInOrder(t *testing.T) {
	graders := []GraderSamples{
		{Grader: "a", Samples: makeSamples("a", 2)},
		{Grader: "b", Samples: makeSamples("b", 1)},
	}
	queue := BuildQueue(graders, []string{"m1", "m2"})

	var got []string
	for _, u := range queue {
		got = append(got, u.Grader+"/"+u.Model+"/"+u.SampleID())
	}
	assert.Equal(t, []string{
		"a/m1/a-0", "a/m2/a-0",
		"b/m1/b-0", "b/m2/b-0",
		"a/m1/a-1", "a/m2/a-1",
	}, got)
}

func TestBuildQueueLengthMatchesSampleTimesModels(t *testing.T) {
	cases := []struct {
		counts []int
		models int
	}{
		{counts: []int{3}, models: 1},
		{counts: []int{5, 2}, models: 1},
		{counts: []int{0, 4, 1}, models: 3},
		{counts: []int{0, 0}, models: 2},
		{counts: []int{7, 7, 7}, models: 2},
	}

	for _, tc := range cases {
		var graders []GraderSamples
		want := 0
		for i, n := range tc.counts {
			graders = append(graders, GraderSamples{Grader: fmt.Sprintf("g%d", i), Samples: makeSamples(fmt.Sprintf("g%d", i), n)})
			want += n * tc.models
		}
		models := make([]string, tc.models)
		for i := range models {
			models[i] = fmt.Sprintf("m%d", i)
		}
		assert.Len(t, BuildQueue(graders, models), want, "counts=%v models=%d", tc.counts, tc.models)
	}
}

func TestBuildQueueIsDeterministic(t *testing.T) {
	graders := []GraderSamples{
		{Grader: "a", Samples: makeSamples("a", 4)},
		{Grader: "b", Samples: makeSamples("b", 3)},
		{Grader: "c", Samples: makeSamples("c", 1)},
	}
	models := []string{"m1", "m2"}

	first := BuildQueue(graders, models)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, BuildQueue(graders, models))
	}
}

func TestWorkUnitSampleIDFallback(t *testing.T) {
	u := WorkUnit{SampleIndex: 3}
	assert.Equal(t, "sample-4", u.SampleID())
}
