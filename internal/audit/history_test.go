package audit

import (
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAndLoadHistoryOrdersNewestFirst(t *testing.T) {
	dir := t.TempDir()
	log := Open(filepath.Join(dir, "history.jsonl"))

	first := Entry{Direction: "send", FileName: "a.txt", FileSize: 5, Success: true, StartedAt: time.Unix(1000, 0)}
	second := Entry{Direction: "receive", FileName: "b.bin", FileSize: 10, Success: true, StartedAt: time.Unix(2000, 0)}

	if err := log.WriteEntry(first); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := log.WriteEntry(second); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}

	entries, err := log.LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].FileName != "b.bin" {
		t.Fatalf("entries[0].FileName = %s, want b.bin (newest first)", entries[0].FileName)
	}
}

func TestGetEntryByPrefix(t *testing.T) {
	dir := t.TempDir()
	log := Open(filepath.Join(dir, "history.jsonl"))
	if err := log.WriteEntry(Entry{ID: "abcd1234", FileName: "a.txt", StartedAt: time.Unix(1, 0)}); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	got, ok, err := log.GetEntry("abcd")
	if err != nil || !ok {
		t.Fatalf("GetEntry: ok=%v err=%v", ok, err)
	}
	if got.FileName != "a.txt" {
		t.Fatalf("FileName = %s, want a.txt", got.FileName)
	}
}

func TestClearHistory(t *testing.T) {
	dir := t.TempDir()
	log := Open(filepath.Join(dir, "history.jsonl"))
	if err := log.WriteEntry(Entry{FileName: "a.txt", StartedAt: time.Unix(1, 0)}); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := log.ClearHistory(); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	entries, err := log.LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("len(entries) = %d, want 0 after ClearHistory", len(entries))
	}
}
