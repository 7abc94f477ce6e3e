package samples

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// recordSchema constrains the fields a JSONL sample record may carry.
const recordSchema = `{
  "type": "object",
  "properties": {
    "id": {"type": ["string", "integer"]},
    "userMessage": {"type": "string"},
    "user": {"type": "string"},
    "assistantResponse": {"type": "string"},
    "assistant": {"type": "string"},
    "expected": {"type": "string"},
    "score": {"type": "number"}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func sampleSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(recordSchema))
	})
	return compiledSchema, schemaErr
}

// loadJSONL parses one JSON object per non-blank line.
func loadJSONL(path string) ([]Sample, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return parseJSONL(path, raw)
}

func parseJSONL(path string, raw []byte) ([]Sample, error) {
	schema, err := sampleSchema()
	if err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("compile sample schema: %w", err)}
	}

	var out []Sample
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, &LoadError{Path: path, Line: lineNo, Err: err}
		}
		if record == nil {
			return nil, &LoadError{Path: path, Line: lineNo, Err: fmt.Errorf("expected a JSON object")}
		}

		result, err := schema.Validate(gojsonschema.NewGoLoader(record))
		if err != nil {
			return nil, &LoadError{Path: path, Line: lineNo, Err: err}
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				msgs = append(msgs, e.String())
			}
			return nil, &LoadError{Path: path, Line: lineNo, Err: fmt.Errorf("%s", strings.Join(msgs, "; "))}
		}

		out = append(out, fromRecord(record))
	}
	if err := scanner.Err(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return out, nil
}
