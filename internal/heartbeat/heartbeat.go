// Package heartbeat implements the periodic liveness probe bound to a
// single live session socket.
package heartbeat

import (
	"sync"
	"time"
)

// Interval is the period at which a heartbeat frame is sent.
const Interval = 10 * time.Second

// Timeout is the maximum silence tolerated before the peer is presumed
// gone.
const Timeout = 30 * time.Second

// Supervisor sends periodic heartbeats and watches for peer silence.
type Supervisor struct {
	send      func() error
	onTimeout func()

	mu               sync.Mutex
	lastResponseTime time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// New returns a Supervisor that calls send every Interval and onTimeout if
// more than Timeout elapses without a call to ReceivedResponse.
func New(send func() error, onTimeout func()) *Supervisor {
	return &Supervisor{send: send, onTimeout: onTimeout}
}

// Start begins the heartbeat loop in its own goroutine.
func (s *Supervisor) Start() {
	stop := make(chan struct{})
	s.mu.Lock()
	s.lastResponseTime = time.Now()
	s.stop = stop
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(stop)
}

func (s *Supervisor) loop(stop chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	// fire detaches the loop from Stop before calling onTimeout, so an
	// onTimeout that calls Stop does not wait on this goroutine.
	fire := func() {
		s.mu.Lock()
		s.stop = nil
		s.mu.Unlock()
		s.onTimeout()
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.send(); err != nil {
				fire()
				return
			}
			s.mu.Lock()
			elapsed := time.Since(s.lastResponseTime)
			s.mu.Unlock()
			if elapsed > Timeout {
				fire()
				return
			}
		}
	}
}

// ReceivedResponse refreshes the liveness clock; the session endpoint calls
// this on receipt of any Heartbeat frame from the peer.
func (s *Supervisor) ReceivedResponse() {
	s.mu.Lock()
	s.lastResponseTime = time.Now()
	s.mu.Unlock()
}

// Stop is synchronous and idempotent: it signals the loop and waits for it
// to exit, waking a sleeping sender within one tick.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	s.wg.Wait()
}
