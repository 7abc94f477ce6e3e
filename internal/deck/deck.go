// Package deck loads grader decks: markdown files that describe how a grader
// scores a sample and which TOML files hold its embedded samples.
package deck

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const deckSuffix = ".deck.md"

// scoringInstructions is appended to every grader prompt so replies can be parsed.
const scoringInstructions = `Evaluate the assistant response in the user message using the criteria above.
Respond with a single JSON object and nothing else:
{"score": <integer from -3 to 3>, "notes": "<short justification>"}`

var embedPattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)

// Deck is a parsed grader definition.
type Deck struct {
	Name        string
	Path        string
	Prompt      string
	SampleFiles []string
}

// Message is one rendered chat message sent to the grading model.
type Message struct {
	Role    string
	Content string
}

// RenderInput is the per-sample content injected into a rendered grader.
type RenderInput struct {
	UserMessage       string
	AssistantResponse string
	Expected          string
}

// Load reads and parses the grader deck at path.
func Load(path string) (*Deck, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grader deck %s: %w", path, err)
	}
	return Parse(path, string(raw)), nil
}

// Parse builds a Deck from markdown content. Embedded TOML references are
// resolved against the directory of path and removed from the prompt text.
func Parse(path, markdown string) *Deck {
	baseDir := filepath.Dir(path)
	var files []string
	var kept []string
	for _, line := range strings.Split(markdown, "\n") {
		matches := embedPattern.FindAllStringSubmatch(line, -1)
		tomlRef := false
		for _, m := range matches {
			target := strings.TrimSpace(m[2])
			if !strings.HasSuffix(strings.ToLower(target), ".toml") {
				continue
			}
			tomlRef = true
			if !filepath.IsAbs(target) {
				target = filepath.Join(baseDir, target)
			}
			files = append(files, target)
		}
		if tomlRef && strings.TrimSpace(embedPattern.ReplaceAllString(line, "")) == "" {
			continue
		}
		kept = append(kept, line)
	}

	return &Deck{
		Name:        GraderName(path),
		Path:        path,
		Prompt:      strings.TrimSpace(strings.Join(kept, "\n")),
		SampleFiles: files,
	}
}

// GraderName extracts the grader name from a deck path:
// "graders/tone-grader.deck.md" becomes "tone-grader".
func GraderName(path string) string {
	name := filepath.Base(path)
	if strings.HasSuffix(name, deckSuffix) {
		return strings.TrimSuffix(name, deckSuffix)
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Render produces the grader conversation for one sample.
func (d *Deck) Render(in RenderInput) []Message {
	system := scoringInstructions
	if d.Prompt != "" {
		system = d.Prompt + "\n\n" + scoringInstructions
	}

	var b strings.Builder
	b.WriteString("<userMessage>\n")
	b.WriteString(in.UserMessage)
	b.WriteString("\n</userMessage>\n<assistantResponse>\n")
	b.WriteString(in.AssistantResponse)
	b.WriteString("\n</assistantResponse>")
	if strings.TrimSpace(in.Expected) != "" {
		b.WriteString("\n<expected>\n")
		b.WriteString(in.Expected)
		b.WriteString("\n</expected>")
	}

	return []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: b.String()},
	}
}
