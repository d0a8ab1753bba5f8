package statestore

import (
	"testing"
	"time"
)

func TestTotalChunksAndEmptyFile(t *testing.T) {
	if got := totalChunks(0, 65536); got != 0 {
		t.Fatalf("totalChunks(0, ...) = %d, want 0", got)
	}
	if got := totalChunks(200*65536, 65536); got != 200 {
		t.Fatalf("totalChunks(200*65536, 65536) = %d, want 200", got)
	}
	if got := totalChunks(65536+1, 65536); got != 2 {
		t.Fatalf("totalChunks(65536+1, 65536) = %d, want 2", got)
	}
}

func TestSendingStateRoundTripAndComplete(t *testing.T) {
	dir := t.TempDir()
	store := New(dir+"/sending", dir+"/receiving")
	now := time.Unix(1000, 0)

	st, err := store.CreateSendingState("/tmp/a.txt", "a.txt", 5, "hash1", 65536, "peer-1", now)
	if err != nil {
		t.Fatalf("CreateSendingState: %v", err)
	}
	if st.TotalChunks != 1 {
		t.Fatalf("TotalChunks = %d, want 1", st.TotalChunks)
	}

	if err := store.UpdateSentChunks(st, []int{0}, true, now); err != nil {
		t.Fatalf("UpdateSentChunks: %v", err)
	}
	if !st.IsComplete() {
		t.Fatal("expected sending state complete after sending the only chunk")
	}

	reloaded, err := store.LoadSendingState("hash1")
	if err != nil || reloaded == nil {
		t.Fatalf("LoadSendingState: %v, %v", reloaded, err)
	}
	if !reloaded.IsComplete() {
		t.Fatal("expected reloaded sending state complete")
	}

	if err := store.CompleteSending("hash1"); err != nil {
		t.Fatalf("CompleteSending: %v", err)
	}
	gone, err := store.LoadSendingState("hash1")
	if err != nil || gone != nil {
		t.Fatalf("expected sending state deleted, got %v, %v", gone, err)
	}
}

func TestFlushThrottlePolicy(t *testing.T) {
	dir := t.TempDir()
	store := New(dir+"/sending", dir+"/receiving")
	now := time.Unix(1000, 0)

	st, err := store.CreateReceivingState("b.bin", int64(300*65536), "hash2", 65536, "peer-2", dir+"/receiving/hash2.part", now)
	if err != nil {
		t.Fatalf("CreateReceivingState: %v", err)
	}

	// Below both thresholds: no forced flush, updatedAt still advances in memory.
	if err := store.UpdateReceivedChunks(st, []int{0, 1}, false, now.Add(time.Second)); err != nil {
		t.Fatalf("UpdateReceivedChunks: %v", err)
	}
	if len(st.ReceivedChunks) != 2 {
		t.Fatalf("ReceivedChunks = %v, want 2 entries in memory regardless of flush", st.ReceivedChunks)
	}

	// Crossing the elapsed-time threshold forces a flush.
	if err := store.UpdateReceivedChunks(st, []int{2}, false, now.Add(6*time.Second)); err != nil {
		t.Fatalf("UpdateReceivedChunks (time threshold): %v", err)
	}
	reloaded, err := store.LoadReceivingState("hash2")
	if err != nil || reloaded == nil {
		t.Fatalf("LoadReceivingState: %v, %v", reloaded, err)
	}
	if len(reloaded.ReceivedChunks) != 3 {
		t.Fatalf("persisted ReceivedChunks = %v, want 3 entries after time-threshold flush", reloaded.ReceivedChunks)
	}
}

func TestGetMissingChunks(t *testing.T) {
	st := &SendingState{TotalChunks: 5, SentChunks: []int{0, 2, 4}}
	missing := st.GetMissingChunks()
	if len(missing) != 2 || missing[0] != 1 || missing[1] != 3 {
		t.Fatalf("GetMissingChunks = %v, want [1 3]", missing)
	}
}
