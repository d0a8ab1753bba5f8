package reconnect

import (
	"context"
	"errors"
	"testing"
)

func TestRunSucceedsOnLastKnownIP(t *testing.T) {
	calls := 0
	sup := New(
		func(ctx context.Context, ip string) error {
			calls++
			if ip != "10.0.0.5" {
				t.Fatalf("dial ip = %s, want 10.0.0.5", ip)
			}
			return nil
		},
		func(ctx context.Context) (string, bool) { return "", false },
	)
	if err := sup.Run(context.Background(), "10.0.0.5"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("dial called %d times, want 1", calls)
	}
}

func TestRunFallsBackToLocator(t *testing.T) {
	dialAttempts := 0
	sup := New(
		func(ctx context.Context, ip string) error {
			dialAttempts++
			if ip == "10.0.0.5" {
				return errors.New("stale address")
			}
			if ip == "10.0.0.9" {
				return nil
			}
			return errors.New("unexpected ip")
		},
		func(ctx context.Context) (string, bool) { return "10.0.0.9", true },
	)
	if err := sup.Run(context.Background(), "10.0.0.5"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dialAttempts != 2 {
		t.Fatalf("dial called %d times, want 2", dialAttempts)
	}
}

func TestRunFailsWhenContextCanceledAfterFailedDial(t *testing.T) {
	sup := &Supervisor{
		dial:   func(ctx context.Context, ip string) error { return errors.New("down") },
		locate: func(ctx context.Context) (string, bool) { return "", false },
	}
	sup.stop = make(chan struct{})
	// Use a canceled parent context so Run returns ctx.Err() at the first
	// Interval wait instead of sleeping the real 5s timer.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sup.Run(ctx, "10.0.0.5"); err == nil {
		t.Fatal("expected error once the failed dial meets a canceled context")
	}
}
