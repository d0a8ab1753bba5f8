package discovery

import "testing"

func TestLocalIPReturnsNonEmpty(t *testing.T) {
	ip := LocalIP()
	if ip == "" {
		t.Fatal("expected non-empty local IP")
	}
}

func TestListenServeStop(t *testing.T) {
	l, err := Listen(0, "device-a", "host-a")
	if err != nil {
		t.Skipf("discovery socket unavailable in this environment: %v", err)
	}
	go l.Serve()
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
