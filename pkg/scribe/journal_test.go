package scribe

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("bad journal line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, m)
	}
	return lines
}

func TestJournalWritesOneLinePerExchange(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, discardLogger())
	t.Cleanup(func() { _ = j.Close() })

	rec := sampleRecord(t, "20260824-101500", "2026-08-24T10:15:00Z")
	if err := j.StoreSession(context.Background(), rec); err != nil {
		t.Fatalf("StoreSession: %v", err)
	}

	path := filepath.Join(dir, "conversations_2026-08-24.jsonl")
	if j.Path() != path {
		t.Errorf("journal path = %q, want %q", j.Path(), path)
	}
	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want one per exchange", len(lines))
	}
	if lines[0]["name"] != "exchange" {
		t.Errorf("event name = %v", lines[0]["name"])
	}
	if lines[0]["question"] != "what do ants eat" {
		t.Errorf("question = %v", lines[0]["question"])
	}
	if lines[0]["session_id"] != "20260824-101500" {
		t.Errorf("session_id = %v", lines[0]["session_id"])
	}
	if lines[1]["turn"] != float64(2) {
		t.Errorf("turn = %v, want 2", lines[1]["turn"])
	}
}

func TestJournalAppendsAcrossRecords(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, discardLogger())
	t.Cleanup(func() { _ = j.Close() })

	ctx := context.Background()
	if err := j.StoreSession(ctx, sampleRecord(t, "a", "2026-08-24T10:00:00Z")); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := j.StoreSession(ctx, sampleRecord(t, "b", "2026-08-24T11:00:00Z")); err != nil {
		t.Fatalf("second: %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "conversations_2026-08-24.jsonl"))
	if len(lines) != 4 {
		t.Errorf("lines = %d, want both records appended", len(lines))
	}
}

func TestJournalRollsOverByDay(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir, discardLogger())
	t.Cleanup(func() { _ = j.Close() })

	ctx := context.Background()
	if err := j.StoreSession(ctx, sampleRecord(t, "a", "2026-08-24T23:59:00Z")); err != nil {
		t.Fatalf("day one: %v", err)
	}
	if err := j.StoreSession(ctx, sampleRecord(t, "b", "2026-08-25T00:01:00Z")); err != nil {
		t.Fatalf("day two: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "conversations_2026-08-24.jsonl")); err != nil {
		t.Errorf("day one file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "conversations_2026-08-25.jsonl")); err != nil {
		t.Errorf("day two file: %v", err)
	}
}
