package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/mwiater/aibff/internal/grading"
)

func score(v float64) *float64 { return &v }

func sampleSummary() Summary {
	return Summary{
		RunID:       "run-42",
		Timestamp:   "2026-03-01T12:00:00Z",
		Completed:   2,
		Failed:      1,
		Total:       3,
		Final:       true,
		GraderOrder: []string{"tone"},
		ModelOrder:  []string{"openai/gpt-4o"},
		GraderResults: map[string]GraderResults{
			"tone": {
				Grader: "tone",
				Models: map[string]ModelResults{
					"openai/gpt-4o": {
						Model:           "openai/gpt-4o",
						Timestamp:       "2026-03-01T12:00:00Z",
						Samples:         2,
						AverageDistance: 0.5,
						Results: []grading.Result{
							{SampleID: "s1", Score: 2, TruthScore: score(2), Notes: "polite <b>enough</b>"},
							{SampleID: "s2", Score: -1, TruthScore: score(-2), Notes: "curt"},
						},
					},
				},
			},
		},
	}
}

func TestFileWriterWritesTOMLAndHTML(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	w := NewFileWriter(dir)

	if err := w.Write(sampleSummary()); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, TOMLFile))
	if err != nil {
		t.Fatalf("read toml: %v", err)
	}
	var decoded map[string]any
	if err := toml.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("results.toml is not valid TOML: %v\n%s", err, raw)
	}
	order, ok := decoded["graderOrder"].([]any)
	if !ok || len(order) != 1 || order[0] != "tone" {
		t.Fatalf("unexpected graderOrder %#v", decoded["graderOrder"])
	}
	graders := decoded["graderResults"].(map[string]any)
	models := graders["tone"].(map[string]any)["models"].(map[string]any)
	pair := models["openai/gpt-4o"].(map[string]any)
	if pair["average_distance"] != 0.5 {
		t.Fatalf("unexpected average_distance %#v", pair["average_distance"])
	}
	if rows := pair["results"].([]any); len(rows) != 2 {
		t.Fatalf("expected 2 result rows, got %d", len(rows))
	}

	page, err := os.ReadFile(filepath.Join(dir, HTMLFile))
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	html := string(page)
	if !strings.Contains(html, "run-42") || !strings.Contains(html, "openai/gpt-4o") {
		t.Fatalf("html report missing run details")
	}
	if strings.Contains(html, "<b>enough</b>") {
		t.Fatalf("notes must be escaped in html")
	}
	if !strings.Contains(html, `class="match"`) || !strings.Contains(html, `class="mismatch"`) {
		t.Fatalf("rows should be classified by agreement")
	}
}

func TestFileWriterOverwritesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	w := &FileWriter{Dir: dir, SkipHTML: true}

	first := sampleSummary()
	first.Final = false
	first.Completed = 1
	if err := w.Write(first); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := w.Write(sampleSummary()); err != nil {
		t.Fatalf("second write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != TOMLFile {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only %s, got %v", TOMLFile, names)
	}

	var decoded Summary
	raw, _ := os.ReadFile(filepath.Join(dir, TOMLFile))
	if err := toml.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Final || decoded.Completed != 2 {
		t.Fatalf("expected latest snapshot, got final=%v completed=%d", decoded.Final, decoded.Completed)
	}
}

func TestFileWriterFailureKeepsPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	w := &FileWriter{Dir: dir, SkipHTML: true}
	if err := w.Write(sampleSummary()); err != nil {
		t.Fatalf("write: %v", err)
	}
	before, _ := os.ReadFile(filepath.Join(dir, TOMLFile))

	// A file where the output folder should be makes MkdirAll fail.
	blocked := &FileWriter{Dir: filepath.Join(dir, TOMLFile, "nested"), SkipHTML: true}
	if err := blocked.Write(sampleSummary()); err == nil {
		t.Fatal("expected error writing below a regular file")
	}

	after, _ := os.ReadFile(filepath.Join(dir, TOMLFile))
	if string(before) != string(after) {
		t.Fatal("previous snapshot was modified by a failed write")
	}
}

func TestAgrees(t *testing.T) {
	if Agrees(grading.Result{Score: 1}) {
		t.Fatal("result without truth must not agree")
	}
	if !Agrees(grading.Result{Score: 1, TruthScore: score(1)}) {
		t.Fatal("equal scores should agree")
	}
	if Agrees(grading.Result{Score: 1, TruthScore: score(-1)}) {
		t.Fatal("different scores should not agree")
	}
}
