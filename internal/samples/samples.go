// Package samples loads the evaluation samples a grader is calibrated against.
//
// Samples come from an external JSONL or TOML file shared by every grader in
// the run, or from the TOML files a grader deck embeds.
package samples

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mwiater/aibff/internal/deck"
)

// Sample is one user/assistant exchange to be graded.
type Sample struct {
	ID                string         `json:"id,omitempty" toml:"id,omitempty"`
	UserMessage       string         `json:"userMessage" toml:"userMessage"`
	AssistantResponse string         `json:"assistantResponse" toml:"assistantResponse"`
	Expected          string         `json:"expected,omitempty" toml:"expected,omitempty"`
	Score             *float64       `json:"score,omitempty" toml:"score,omitempty"`
	Extra             map[string]any `json:"extra,omitempty" toml:"extra,omitempty"`
}

// Label returns the sample id, or a positional fallback when it has none.
func (s Sample) Label(index int) string {
	if strings.TrimSpace(s.ID) != "" {
		return s.ID
	}
	return fmt.Sprintf("sample-%d", index+1)
}

// LoadError reports a sample source that cannot be used. It is fatal for the
// whole run and is never retried.
type LoadError struct {
	Path string
	Line int
	Err  error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("load samples from %s: invalid record on line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("load samples from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ErrUnsupportedFormat is wrapped by a LoadError for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported sample file format (expected .jsonl or .toml)")

// Load returns the ordered samples for graderPath. When inputPath is set it
// is read instead of the deck's embedded samples. A deck without embedded
// samples yields an empty slice and no error.
func Load(graderPath, inputPath string) ([]Sample, error) {
	if strings.TrimSpace(inputPath) != "" {
		return LoadFile(inputPath)
	}

	d, err := deck.Load(graderPath)
	if err != nil {
		return nil, &LoadError{Path: graderPath, Err: err}
	}
	return LoadEmbedded(d)
}

// LoadFile reads an external sample file, choosing the parser by extension.
func LoadFile(path string) ([]Sample, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".jsonl"):
		return loadJSONL(path)
	case strings.HasSuffix(lower, ".toml"):
		return loadTOML(path)
	default:
		return nil, &LoadError{Path: path, Err: ErrUnsupportedFormat}
	}
}

// knownKeys are record fields mapped onto Sample; anything else lands in Extra.
var knownKeys = map[string]bool{
	"id":                true,
	"userMessage":       true,
	"user":              true,
	"assistantResponse": true,
	"assistant":         true,
	"expected":          true,
	"score":             true,
	"messages":          true,
}

// fromRecord maps a decoded JSON or TOML record onto a Sample.
func fromRecord(record map[string]any) Sample {
	s := Sample{
		ID:                idString(record["id"]),
		UserMessage:       firstString(record, "userMessage", "user"),
		AssistantResponse: firstString(record, "assistantResponse", "assistant"),
		Expected:          stringValue(record["expected"]),
		Score:             numberValue(record["score"]),
	}

	switch msgs := record["messages"].(type) {
	case map[string]any:
		if s.UserMessage == "" {
			s.UserMessage = stringValue(msgs["user"])
		}
		if s.AssistantResponse == "" {
			s.AssistantResponse = stringValue(msgs["assistant"])
		}
	case []any:
		user, assistant := lastByRole(msgs)
		if s.UserMessage == "" {
			s.UserMessage = user
		}
		if s.AssistantResponse == "" {
			s.AssistantResponse = assistant
		}
	}

	for k, v := range record {
		if knownKeys[k] {
			continue
		}
		if s.Extra == nil {
			s.Extra = make(map[string]any)
		}
		s.Extra[k] = v
	}
	return s
}

// lastByRole returns the content of the last user and last assistant message.
func lastByRole(msgs []any) (string, string) {
	var user, assistant string
	for _, raw := range msgs {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch stringValue(m["role"]) {
		case "user":
			user = stringValue(m["content"])
		case "assistant":
			assistant = stringValue(m["content"])
		}
	}
	return user, assistant
}

func firstString(record map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := stringValue(record[k]); v != "" {
			return v
		}
	}
	return ""
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return ""
	}
}

func numberValue(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int64:
		f = float64(n)
	case int:
		f = float64(n)
	default:
		return nil
	}
	return &f
}
