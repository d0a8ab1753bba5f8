package transfer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dropwire-app/dropwire/internal/statestore"
)

func writeTempFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestSenderReceiverHappyPath(t *testing.T) {
	root := t.TempDir()
	sendingDir := filepath.Join(root, "sending")
	receivingDir := filepath.Join(root, "receiving")
	tempDir := filepath.Join(root, "temp")
	downloadDir := filepath.Join(root, "downloads")

	store := statestore.New(sendingDir, receivingDir)
	content := []byte("hello ")
	srcPath := writeTempFile(t, root, "a.txt", content)

	sender := NewSender(store)
	prepared, err := sender.Prepare(srcPath, tempDir, "peer-1")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if prepared.Hash != "f814893777bcc2295fff05f00e508da6" {
		t.Fatalf("hash = %s, want f814893777bcc2295fff05f00e508da6", prepared.Hash)
	}

	receiver := NewReceiver(store, downloadDir)
	if err := receiver.Start(receivingDir, prepared.Name, prepared.Size, prepared.Hash, "peer-sender", prepared.IsFolder); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for {
		idx, data, ok, err := sender.NextChunk()
		if err != nil {
			t.Fatalf("NextChunk: %v", err)
		}
		if !ok {
			break
		}
		if err := receiver.WriteChunk(idx, data); err != nil {
			t.Fatalf("WriteChunk: %v", err)
		}
		if err := sender.MarkSent(idx); err != nil {
			t.Fatalf("MarkSent: %v", err)
		}
	}

	if !sender.IsComplete() {
		t.Fatal("expected sender complete")
	}
	if !receiver.IsComplete() {
		t.Fatal("expected receiver complete")
	}

	finalPath, err := receiver.Complete()
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("read final file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("final contents = %q, want %q", got, content)
	}

	if err := sender.Complete(); err != nil {
		t.Fatalf("sender Complete: %v", err)
	}
}

func TestReceiverResumeAfterPartialWrite(t *testing.T) {
	root := t.TempDir()
	sendingDir := filepath.Join(root, "sending")
	receivingDir := filepath.Join(root, "receiving")
	downloadDir := filepath.Join(root, "downloads")
	store := statestore.New(sendingDir, receivingDir)

	fileSize := int64(3 * ChunkSize)
	receiver := NewReceiver(store, downloadDir)
	if err := receiver.Start(receivingDir, "big.bin", fileSize, "hash-x", "peer-sender", false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	chunk := bytes.Repeat([]byte{0xAB}, ChunkSize)
	if err := receiver.WriteChunk(0, chunk); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if err := receiver.WriteChunk(1, chunk); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	// Two chunks are below both flush thresholds, so persist them the way the
	// throttle would once 5s or 50 chunks have passed.
	if err := store.UpdateReceivedChunks(receiver.state, nil, true, time.Now()); err != nil {
		t.Fatalf("UpdateReceivedChunks: %v", err)
	}

	// Simulate process restart: a fresh Receiver reloads existing state.
	reopened := NewReceiver(store, downloadDir)
	if err := reopened.Start(receivingDir, "big.bin", fileSize, "hash-x", "peer-sender", false); err != nil {
		t.Fatalf("Start (reopen): %v", err)
	}
	missing := reopened.MissingChunks()
	if len(missing) != 1 || missing[0] != 2 {
		t.Fatalf("MissingChunks = %v, want [2]", missing)
	}
}

func TestUniqueDestinationAvoidsCollision(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "a.txt", []byte("x"))

	got, err := uniqueDestination(dir, "a.txt")
	if err != nil {
		t.Fatalf("uniqueDestination: %v", err)
	}
	want := filepath.Join(dir, "a (1).txt")
	if got != want {
		t.Fatalf("uniqueDestination = %s, want %s", got, want)
	}
}
