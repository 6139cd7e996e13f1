package telemetry

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEventJSONSerialization(t *testing.T) {
	ts := time.Date(2026, 1, 27, 15, 30, 0, 0, time.UTC)
	event := Event{
		Timestamp: ts,
		Kind:      EventSelect,
		Tick:      7,
		Job:       "P1",
		Extra:     map[string]any{"policy": "srtn"},
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	jsonStr := string(data)
	if !strings.Contains(jsonStr, "2026-01-27T15:30:00Z") {
		t.Errorf("Expected RFC3339 timestamp, got: %s", jsonStr)
	}

	expectedFields := []string{`"ts":`, `"kind":`, `"tick":`, `"job":`, `"extra":`}
	for _, field := range expectedFields {
		if !strings.Contains(jsonStr, field) {
			t.Errorf("Missing expected field %q in JSON: %s", field, jsonStr)
		}
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Kind != event.Kind {
		t.Errorf("Kind = %q, want %q", decoded.Kind, event.Kind)
	}
	if decoded.Job != event.Job {
		t.Errorf("Job = %q, want %q", decoded.Job, event.Job)
	}
}

func TestEventOmitsEmptyFields(t *testing.T) {
	event := Event{
		Timestamp: time.Now(),
		Kind:      EventMount,
		// Tick, Job, Op, Path, Extra intentionally omitted
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	jsonStr := string(data)
	for _, field := range []string{"tick", "job", "op", "path", "extra"} {
		if strings.Contains(jsonStr, `"`+field+`"`) {
			t.Errorf("Expected %q to be omitted when zero, got: %s", field, jsonStr)
		}
	}
}

func TestWriterCreatesFileOnFirstEmit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.jsonl")
	w := NewWriter(path)

	w.Emit(&Event{Kind: EventTick, Tick: 1})

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("Expected trace file to be created")
	}
}

func TestWriterAppendsMultipleEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.jsonl")
	w := NewWriter(path)

	events := []Event{
		{Kind: EventAdmit, Tick: 0, Job: "P1"},
		{Kind: EventSelect, Tick: 0, Job: "P1"},
		{Kind: EventComplete, Tick: 4, Job: "P1"},
	}
	for i := range events {
		w.Emit(&events[i])
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	lineCount := 0
	for scanner.Scan() {
		var decoded Event
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Errorf("line %d is not valid JSON: %v", lineCount+1, err)
		}
		if decoded.Kind != events[lineCount].Kind {
			t.Errorf("line %d: Kind = %q, want %q", lineCount+1, decoded.Kind, events[lineCount].Kind)
		}
		lineCount++
	}
	if lineCount != len(events) {
		t.Errorf("expected %d lines, got %d", len(events), lineCount)
	}
}

func TestWriterSetsTimestampIfMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.jsonl")
	w := NewWriter(path)

	before := time.Now()
	w.Emit(&Event{Kind: EventTick})
	after := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Timestamp.Before(before) || decoded.Timestamp.After(after) {
		t.Errorf("Timestamp %v not in expected range [%v, %v]", decoded.Timestamp, before, after)
	}
}

func TestWriterHandlesMissingDirectory(t *testing.T) {
	w := NewWriter("/nonexistent/path/that/does/not/exist/trace.jsonl")

	// Must not panic; failure is logged to stderr only.
	w.Emit(&Event{Kind: EventTick})
}

func TestNilWriterEmitIsNoop(t *testing.T) {
	var w *Writer
	w.Emit(&Event{Kind: EventTick}) // must not panic
}
