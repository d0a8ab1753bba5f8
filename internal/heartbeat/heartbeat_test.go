package heartbeat

import (
	"testing"
	"time"
)

func TestStopIsImmediateAndIdempotent(t *testing.T) {
	sup := New(func() error { return nil }, func() {})
	sup.Start()

	done := make(chan struct{})
	go func() {
		sup.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return within 1s")
	}

	// Idempotent: a second Stop must not panic or block.
	sup.Stop()
}

func TestReceivedResponseRefreshesLastResponseTime(t *testing.T) {
	fired := make(chan struct{}, 1)
	sup := New(func() error { return nil }, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	sup.ReceivedResponse()
	sup.mu.Lock()
	elapsed := time.Since(sup.lastResponseTime)
	sup.mu.Unlock()
	if elapsed > time.Second {
		t.Fatalf("expected lastResponseTime just refreshed, elapsed=%v", elapsed)
	}
}
