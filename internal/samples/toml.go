package samples

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/mwiater/aibff/internal/deck"
	"github.com/pelletier/go-toml/v2"
)

// tableHeader matches "[samples.<id>]" headers, with or without a quoted id.
var tableHeader = regexp.MustCompile(`(?m)^\s*\[\s*samples\.(?:"([^"]+)"|'([^']+)'|([A-Za-z0-9_-]+))\s*\]`)

// loadTOML reads an external file holding a "samples" array of tables.
func loadTOML(path string) ([]Sample, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var doc map[string]any
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	switch records := doc["samples"].(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]Sample, 0, len(records))
		for i, r := range records {
			record, ok := r.(map[string]any)
			if !ok {
				return nil, &LoadError{Path: path, Err: fmt.Errorf("samples[%d] is not a table", i)}
			}
			out = append(out, fromRecord(record))
		}
		return out, nil
	case map[string]any:
		return keyedSamples(path, string(raw), records)
	default:
		return nil, &LoadError{Path: path, Err: fmt.Errorf("samples must be an array of tables")}
	}
}

// LoadEmbedded reads the [samples.<id>] tables from every TOML file a deck
// references. Missing files are skipped.
func LoadEmbedded(d *deck.Deck) ([]Sample, error) {
	var out []Sample
	for _, path := range d.SampleFiles {
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, &LoadError{Path: path, Err: err}
		}

		var doc map[string]any
		if err := toml.Unmarshal(raw, &doc); err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}

		switch records := doc["samples"].(type) {
		case map[string]any:
			found, err := keyedSamples(path, string(raw), records)
			if err != nil {
				return nil, err
			}
			out = append(out, found...)
		case []any:
			for _, r := range records {
				if record, ok := r.(map[string]any); ok {
					out = append(out, fromRecord(record))
				}
			}
		}
	}
	return out, nil
}

// keyedSamples converts a samples table keyed by id. Ids keep the order of
// their headers in the file; ids defined without a header follow, sorted.
func keyedSamples(path, raw string, records map[string]any) ([]Sample, error) {
	out := make([]Sample, 0, len(records))
	for _, id := range orderedIDs(raw, records) {
		record, ok := records[id].(map[string]any)
		if !ok {
			continue
		}
		s := fromRecord(record)
		if s.ID == "" {
			s.ID = id
		}
		out = append(out, s)
	}
	return out, nil
}

func orderedIDs(raw string, records map[string]any) []string {
	seen := make(map[string]bool, len(records))
	var ids []string
	for _, m := range tableHeader.FindAllStringSubmatch(raw, -1) {
		id := strings.Join(m[1:], "")
		if _, ok := records[id]; !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	var rest []string
	for id := range records {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}
