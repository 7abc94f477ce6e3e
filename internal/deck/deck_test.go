package deck

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGraderName(t *testing.T) {
	cases := map[string]string{
		"graders/tone-grader.deck.md": "tone-grader",
		"helpfulness.deck.md":         "helpfulness",
		"/abs/path/plain.md":          "plain",
		"noext":                       "noext",
	}
	for in, want := range cases {
		if got := GraderName(in); got != want {
			t.Fatalf("GraderName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseCollectsTomlEmbedsAndStripsThem(t *testing.T) {
	md := "# Tone grader\n\nScore politeness.\n\n![samples](./samples.toml)\n![diagram](chart.png)\nSee ![inline](extra.toml) for more."
	d := Parse(filepath.Join("graders", "tone.deck.md"), md)

	if d.Name != "tone" {
		t.Fatalf("unexpected name %q", d.Name)
	}
	wantFiles := []string{
		filepath.Join("graders", "samples.toml"),
		filepath.Join("graders", "extra.toml"),
	}
	if len(d.SampleFiles) != len(wantFiles) {
		t.Fatalf("expected %d sample files, got %v", len(wantFiles), d.SampleFiles)
	}
	for i := range wantFiles {
		if d.SampleFiles[i] != wantFiles[i] {
			t.Fatalf("sample file %d: got %q want %q", i, d.SampleFiles[i], wantFiles[i])
		}
	}
	if strings.Contains(d.Prompt, "samples.toml") {
		t.Fatalf("standalone toml embed should be stripped: %q", d.Prompt)
	}
	if !strings.Contains(d.Prompt, "chart.png") {
		t.Fatalf("non-toml embeds must stay in the prompt: %q", d.Prompt)
	}
	if !strings.Contains(d.Prompt, "See ![inline](extra.toml) for more.") {
		t.Fatalf("lines with surrounding text must stay: %q", d.Prompt)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.deck.md")); err == nil {
		t.Fatal("expected error for missing deck")
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clarity.deck.md")
	if err := os.WriteFile(path, []byte("Rate clarity."), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if d.Name != "clarity" || d.Prompt != "Rate clarity." {
		t.Fatalf("unexpected deck: %+v", d)
	}
}

func TestRender(t *testing.T) {
	d := &Deck{Name: "tone", Prompt: "Score politeness."}
	msgs := d.Render(RenderInput{UserMessage: "hi", AssistantResponse: "hello!", Expected: "a greeting"})
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || !strings.HasPrefix(msgs[0].Content, "Score politeness.") {
		t.Fatalf("unexpected system message: %+v", msgs[0])
	}
	if !strings.Contains(msgs[0].Content, `"score"`) {
		t.Fatalf("system message must carry scoring instructions: %q", msgs[0].Content)
	}
	want := "<userMessage>\nhi\n</userMessage>\n<assistantResponse>\nhello!\n</assistantResponse>\n<expected>\na greeting\n</expected>"
	if msgs[1].Role != "user" || msgs[1].Content != want {
		t.Fatalf("unexpected user message: %q", msgs[1].Content)
	}

	noExpected := d.Render(RenderInput{UserMessage: "q", AssistantResponse: "a"})
	if strings.Contains(noExpected[1].Content, "<expected>") {
		t.Fatalf("expected section must be omitted when empty: %q", noExpected[1].Content)
	}
}
