package appconfig

import (
	"bytes"
	"strings"
	"testing"
)

func TestShowConfigDefaults(t *testing.T) {
	var buf bytes.Buffer
	ShowConfig(&buf, "", nil)
	out := buf.String()
	for _, want := range []string{
		"No config file loaded",
		"Concurrency:         5",
		"openai/gpt-3.5-turbo",
		"OPENROUTER_API_KEY",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestDumpConfigIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	DumpConfig(&buf, &Config{Models: []string{"m1"}, Concurrency: 2})
	if !strings.Contains(buf.String(), "m1") {
		t.Fatalf("expected model in dump, got: %s", buf.String())
	}
}
