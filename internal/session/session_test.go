package session

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dropwire-app/dropwire/internal/identity"
	"github.com/dropwire-app/dropwire/pkg/wire"
)

type recordingSink struct {
	mu        sync.Mutex
	connected []string
	fileInfos []wire.FileInfo
	errors    []error
}

func (s *recordingSink) OnConnected(ep *Endpoint, hostname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = append(s.connected, hostname)
}
func (s *recordingSink) OnDisconnected(error)                {}
func (s *recordingSink) OnFileInfo(info wire.FileInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileInfos = append(s.fileInfos, info)
}
func (s *recordingSink) OnFileData(uint32, []byte)            {}
func (s *recordingSink) OnAck(wire.FileAck)                   {}
func (s *recordingSink) OnResume(wire.FileResume)             {}
func (s *recordingSink) OnResumeOk(wire.FileResumeOk)         {}
func (s *recordingSink) OnComplete(wire.FileComplete)         {}
func (s *recordingSink) OnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}
func (s *recordingSink) OnLog(string) {}

func newTestDevice(t *testing.T, id string) *identity.Device {
	t.Helper()
	return &identity.Device{ID: id}
}

func TestHostJoinerPairRequestHappyPath(t *testing.T) {
	dir := t.TempDir()
	hostTrust := identity.NewTrustStore(filepath.Join(dir, "host"))
	joinerTrust := identity.NewTrustStore(filepath.Join(dir, "joiner"))

	hostSink := &recordingSink{}
	joinerSink := &recordingSink{}

	host := NewHost(newTestDevice(t, "host-device"), hostTrust, "7AK3Q9", "host-host", hostSink)
	if err := host.Listen(0); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer host.Close()

	go host.AcceptOnce()

	joiner := NewJoiner(newTestDevice(t, "joiner-device"), joinerTrust, "joiner-host", joinerSink)
	ep, err := joiner.Connect("127.0.0.1", host.Port(), "7AK3Q9")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer ep.Disconnect()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hostSink.mu.Lock()
		n := len(hostSink.connected)
		hostSink.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	hostSink.mu.Lock()
	defer hostSink.mu.Unlock()
	if len(hostSink.connected) != 1 || hostSink.connected[0] != "joiner-host" {
		t.Fatalf("host OnConnected = %v, want [joiner-host]", hostSink.connected)
	}

	trusted, err := hostTrust.IsTrusted("joiner-device")
	if err != nil || !trusted {
		t.Fatalf("expected joiner-device trusted on host, err=%v", err)
	}
}

func TestHostRejectsWrongPairCode(t *testing.T) {
	dir := t.TempDir()
	hostTrust := identity.NewTrustStore(filepath.Join(dir, "host"))
	joinerTrust := identity.NewTrustStore(filepath.Join(dir, "joiner"))

	host := NewHost(newTestDevice(t, "host-device"), hostTrust, "ABC123", "host-host", &recordingSink{})
	if err := host.Listen(0); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer host.Close()

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- host.AcceptOnce() }()

	joiner := NewJoiner(newTestDevice(t, "joiner-device"), joinerTrust, "joiner-host", &recordingSink{})
	_, err := joiner.Connect("127.0.0.1", host.Port(), "ABC124")
	if err == nil {
		t.Fatal("expected Connect to fail on wrong pair code")
	}

	select {
	case err := <-acceptErr:
		if err == nil {
			t.Fatal("expected AcceptOnce to report HandshakeRejected")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AcceptOnce did not return in time")
	}

	trusted, err := hostTrust.IsTrusted("joiner-device")
	if err != nil || trusted {
		t.Fatalf("expected no trust entry added on rejected pairing, trusted=%v err=%v", trusted, err)
	}
}
