// Package audit persists a JSONL transfer history: one entry per completed
// or failed send/receive, independent of the transfer engine itself.
package audit

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
)

// maxEntries bounds the history file; the oldest entries are dropped once
// this is exceeded.
const maxEntries = 1000

// Entry is one row of transfer history.
type Entry struct {
	ID        string    `json:"id"`
	Direction string    `json:"direction"` // "send" or "receive"
	FileName  string    `json:"file_name"`
	FileHash  string    `json:"file_hash"`
	FileSize  int64     `json:"file_size"`
	PeerID    string    `json:"peer_id"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Log appends to and reads from a JSONL history file.
type Log struct {
	path string
}

// Open returns a Log backed by path.
func Open(path string) *Log {
	return &Log{path: path}
}

func (l *Log) lockPath() string {
	return l.path + ".lock"
}

func (l *Log) withLock(fn func() error) error {
	lock := flock.New(l.lockPath())
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("audit: acquire lock: %w", err)
	}
	defer lock.Unlock()
	return fn()
}

// WriteEntry appends entry (assigning it a fresh ID if empty) and prunes the
// log to maxEntries if it has grown past that.
func (l *Log) WriteEntry(entry Entry) error {
	if entry.ID == "" {
		entry.ID = newEntryID()
	}
	return l.withLock(func() error {
		entries, err := l.loadInternal()
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		if len(entries) > maxEntries {
			entries = entries[len(entries)-maxEntries:]
		}
		return l.rewriteInternal(entries)
	})
}

// LoadHistory returns every entry, newest first.
func (l *Log) LoadHistory() ([]Entry, error) {
	var entries []Entry
	err := l.withLock(func() error {
		var err error
		entries, err = l.loadInternal()
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartedAt.After(entries[j].StartedAt)
	})
	return entries, nil
}

// GetEntry returns the first entry whose ID has idPrefix as a prefix.
func (l *Log) GetEntry(idPrefix string) (Entry, bool, error) {
	entries, err := l.LoadHistory()
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if len(e.ID) >= len(idPrefix) && e.ID[:len(idPrefix)] == idPrefix {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// ClearHistory deletes every entry.
func (l *Log) ClearHistory() error {
	return l.withLock(func() error {
		return l.rewriteInternal(nil)
	})
}

func (l *Log) loadInternal() ([]Entry, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

func (l *Log) rewriteInternal(entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		body, err := json.Marshal(e)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := w.Write(body); err != nil {
			f.Close()
			return err
		}
		if _, err := w.WriteString("\n"); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

func newEntryID() string {
	var b [8]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
