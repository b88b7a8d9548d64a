package stats

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLogAdapterWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	a, err := NewLogAdapter(dir, 1, 1)
	if err != nil {
		t.Fatalf("NewLogAdapter error = %v", err)
	}

	env := testEnvelope("login")
	env.ExpectedLatency = 50 * time.Millisecond
	if err := a.Process(env); err != nil {
		t.Fatalf("Process error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "stats.log"))
	if err != nil {
		t.Fatalf("open stats log: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("stats log is empty")
	}
	var decoded map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if decoded["request_name"] != "login" {
		t.Errorf("request_name = %v, want login", decoded["request_name"])
	}
	if decoded["iid"] == "" {
		t.Error("correlation id missing from log line")
	}
}

func TestLogAdapterRefusesLockedDir(t *testing.T) {
	dir := t.TempDir()
	first, err := NewLogAdapter(dir, 1, 1)
	if err != nil {
		t.Fatalf("NewLogAdapter error = %v", err)
	}
	defer first.Close()

	if _, err := NewLogAdapter(dir, 1, 1); err == nil {
		t.Fatal("expected second adapter on the same dir to fail")
	}
}
