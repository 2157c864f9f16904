package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/kailas-cloud/docqa/internal/domain"
)

func TestPrintAnswer(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	printAnswer(&buf, domain.AnswerResult{
		Answer:   "  Records are kept for seven years.\n",
		Sources:  []domain.Source{{Page: 3, Excerpt: "kept for seven years", Score: 0.912}},
		Metrics:  []domain.StageMetric{{Stage: domain.StageLoad, Duration: 40 * time.Millisecond}},
		CacheHit: true,
		Total:    1200 * time.Millisecond,
	})

	got := buf.String()
	for _, want := range []string{
		"Answer:\nRecords are kept for seven years.\n",
		"[p.3] kept for seven years (0.91)",
		"load 40ms | total 1.2s | cache hit",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestPrintFailure_UsesUserMessage(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	err := &domain.GenerationError{Provider: "ollama", Timeout: true}
	printFailure(&buf, err, nil)

	got := buf.String()
	if !strings.HasPrefix(got, "Error: ") || !strings.Contains(got, domain.UserMessage(err)) {
		t.Errorf("unexpected failure output: %q", got)
	}
}

func TestPrintJSON_MatchesHTTPShape(t *testing.T) {
	var buf bytes.Buffer
	err := printJSON(&buf, domain.AnswerResult{
		RequestID: "req-1",
		Answer:    "Seven years.",
		Sources:   []domain.Source{{Page: 3, Excerpt: "kept for seven years", Score: 0.9}},
		Metrics:   []domain.StageMetric{{Stage: domain.StageLoad, Duration: 1500 * time.Microsecond}},
		Total:     2 * time.Second,
	})
	if err != nil {
		t.Fatalf("printJSON: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	for _, key := range []string{"request_id", "answer", "sources", "cache_hit", "metrics", "total_ms"} {
		if _, ok := got[key]; !ok {
			t.Errorf("missing key %q in %s", key, buf.String())
		}
	}
	if _, ok := got["RequestID"]; ok {
		t.Error("keys must be snake_case")
	}
	stage := got["metrics"].([]any)[0].(map[string]any)
	if stage["stage"] != "load" || stage["duration_ms"] != 1.5 {
		t.Errorf("metrics[0] = %v, want load 1.5ms", stage)
	}
	if got["total_ms"] != 2000.0 {
		t.Errorf("total_ms = %v, want 2000", got["total_ms"])
	}
}
