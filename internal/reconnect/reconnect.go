// Package reconnect implements the bounded-retry loop that re-establishes a
// TCP session to a previously trusted peer.
package reconnect

import (
	"context"
	"fmt"
	"time"
)

// Interval is the delay between reconnect attempts.
const Interval = 5 * time.Second

// MaxAttempts bounds the number of dial attempts before giving up.
const MaxAttempts = 5

// Dialer attempts to connect to ip and returns an error on failure.
type Dialer func(ctx context.Context, ip string) error

// Locator discovers the peer's current IP, returning ok=false if it could
// not be found within its own timeout.
type Locator func(ctx context.Context) (ip string, ok bool)

// Supervisor retries a dial to a single trusted peer: first against the
// last known IP, then via discovery, up to MaxAttempts times.
type Supervisor struct {
	dial   Dialer
	locate Locator

	stop chan struct{}
}

// New returns a Supervisor using dial to connect and locate to rediscover
// the peer's IP when the last known one fails.
func New(dial Dialer, locate Locator) *Supervisor {
	return &Supervisor{dial: dial, locate: locate}
}

// Run attempts to reconnect to lastKnownIP, falling back to locate, up to
// MaxAttempts times spaced Interval apart. It returns nil on the first
// successful dial, or an error once attempts are exhausted or ctx is done.
func (s *Supervisor) Run(ctx context.Context, lastKnownIP string) error {
	s.stop = make(chan struct{})

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		ip := lastKnownIP
		if attempt > 1 || ip == "" {
			if found, ok := s.locate(ctx); ok {
				ip = found
			}
		}
		if ip != "" {
			if err := s.dial(ctx, ip); err == nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return fmt.Errorf("reconnect: stopped")
		case <-time.After(Interval):
		}
	}
	return fmt.Errorf("reconnect: exhausted %d attempts", MaxAttempts)
}

// Stop is synchronous and idempotent: it cancels any in-progress wait
// between attempts.
func (s *Supervisor) Stop() {
	if s.stop == nil {
		return
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}
