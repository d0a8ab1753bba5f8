package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dropwire-app/dropwire/internal/appconfig"
	"github.com/dropwire-app/dropwire/internal/applog"
	"github.com/dropwire-app/dropwire/internal/audit"
	"github.com/dropwire-app/dropwire/internal/discovery"
	"github.com/dropwire-app/dropwire/internal/identity"
	"github.com/dropwire-app/dropwire/internal/reconnect"
	"github.com/dropwire-app/dropwire/internal/session"
	"github.com/dropwire-app/dropwire/internal/statestore"
	"github.com/dropwire-app/dropwire/internal/transfer"
	"github.com/dropwire-app/dropwire/pkg/wire"
)

func newSendCmd() *cobra.Command {
	var (
		hostIP      string
		port        int
		pairCode    string
		rememberDir bool
	)
	cmd := &cobra.Command{
		Use:   "send <path>",
		Short: "Connect to a listening peer and send a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(args[0], hostIP, port, pairCode, rememberDir)
		},
	}
	cmd.Flags().StringVar(&hostIP, "host", "", "IP address of the listening peer")
	cmd.Flags().IntVar(&port, "port", appconfig.DefaultPort, "TCP port of the listening peer")
	cmd.Flags().StringVar(&pairCode, "code", "", "pair code displayed by the listening peer")
	cmd.Flags().BoolVar(&rememberDir, "remember-dir", false, "resolve a relative path against the last remembered send directory")
	cmd.MarkFlagRequired("host")
	cmd.MarkFlagRequired("code")
	return cmd
}

func runSend(path, hostIP string, port int, pairCode string, rememberDir bool) error {
	app, err := loadContext()
	if err != nil {
		return err
	}
	history := audit.Open(app.paths.HistoryFile)

	if rememberDir && !filepath.IsAbs(path) {
		path = resolveRememberedDir(app, path)
	}

	sink := &sendSink{
		log:    app.log,
		self:   app.self,
		trust:  app.trust,
		hostIP: hostIP,
		port:   port,
		done:   make(chan error, 1),
	}
	joiner := session.NewJoiner(app.self, app.trust, hostnameOrFallback(), sink)
	sink.joiner = joiner

	app.log.Info("dialing %s:%d", hostIP, port)
	ep, err := joiner.Connect(hostIP, port, pairCode)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	sink.setEndpoint(ep)
	app.log.Info("paired, preparing %s", path)

	store := statestore.New(app.paths.SendingDir, app.paths.ReceivingDir)
	sender := transfer.NewSender(store)
	sink.sender = sender
	prepared, err := sender.Prepare(path, app.paths.TempDir, "")
	if err != nil {
		return err
	}

	started := time.Now()
	if err := ep.SendFileInfo(wire.FileInfo{
		Filename: prepared.Name,
		FileSize: prepared.Size,
		Hash:     prepared.Hash,
		IsFolder: prepared.IsFolder,
	}); err != nil {
		return err
	}

	bar := progressbar.DefaultBytes(prepared.Size, "sending "+prepared.Name)
	for {
		idx, data, ok, err := sender.NextChunk()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := sink.sendChunk(uint32(idx), data); err != nil {
			return err
		}
		if err := sender.MarkSent(idx); err != nil {
			return err
		}
		bar.Add(len(data))
	}

	if err := sender.Complete(); err != nil {
		return err
	}
	if ep := sink.currentEndpoint(); ep != nil {
		ep.SendFileComplete(wire.FileComplete{FileHash: prepared.Hash, Success: true})
		ep.Disconnect()
	}
	app.log.Info("sent %s", prepared.Name)

	history.WriteEntry(audit.Entry{
		Direction: "send",
		FileName:  prepared.Name,
		FileHash:  prepared.Hash,
		FileSize:  prepared.Size,
		Success:   true,
		StartedAt: started,
		EndedAt:   time.Now(),
	})

	<-sink.done
	return nil
}

// resolveRememberedDir joins path onto the last directory the (external)
// file picker recorded, mirroring the original's get_last_file_dir /
// get_last_folder_dir pre-fill behavior. The core never writes this file;
// it only reads the value some external UI is expected to have saved.
func resolveRememberedDir(app *appContext, path string) string {
	cfg, err := appconfig.LoadUserConfig(app.paths)
	if err != nil {
		return path
	}
	base := cfg.LastFileDir
	if base == "" {
		base = cfg.LastFolderDir
	}
	if base == "" {
		return path
	}
	return filepath.Join(base, path)
}

// sendSink drives the outbound transfer's reaction to inbound events: a
// FileResume request from the receiver after a reconnect, and the
// heartbeat/network-failure driven reconnect loop itself. ep is guarded by
// mu because the connected read loop (which calls these methods) runs
// concurrently with the chunk-sending loop in runSend.
type sendSink struct {
	log    *applog.Logger
	self   *identity.Device
	trust  *identity.TrustStore
	joiner *session.Joiner
	hostIP string
	port   int
	sender *transfer.Sender

	mu     sync.Mutex
	ep     *session.Endpoint
	failed error

	done chan error
}

func (s *sendSink) setEndpoint(ep *session.Endpoint) {
	s.mu.Lock()
	s.ep = ep
	s.mu.Unlock()
}

func (s *sendSink) currentEndpoint() *session.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ep
}

func (s *sendSink) clearEndpoint(stale *session.Endpoint) {
	s.mu.Lock()
	if s.ep == stale {
		s.ep = nil
	}
	s.mu.Unlock()
}

// sendChunk waits for a live endpoint (possibly mid-reconnect) and retries
// the write once a new one is established, giving up once the reconnect
// supervisor has exhausted its attempts.
func (s *sendSink) sendChunk(index uint32, data []byte) error {
	for {
		s.mu.Lock()
		ep, failed := s.ep, s.failed
		s.mu.Unlock()
		if failed != nil {
			return failed
		}
		if ep == nil {
			time.Sleep(200 * time.Millisecond)
			continue
		}
		if err := ep.SendFileData(index, data); err != nil {
			s.clearEndpoint(ep)
			continue
		}
		return nil
	}
}

func (s *sendSink) OnConnected(ep *session.Endpoint, hostname string) {
	s.log.Info("connected to %s", hostname)
	s.setEndpoint(ep)
}

// OnDisconnected reports a clean hangup straight to done. An unexpected
// drop before the transfer finished instead starts the reconnect
// supervisor, matching spec's heartbeat-timeout -> rediscovery -> reconnect
// -> resume chain.
func (s *sendSink) OnDisconnected(err error) {
	if err == nil || (s.sender != nil && s.sender.IsComplete()) {
		select {
		case s.done <- nil:
		default:
		}
		return
	}
	s.log.Warn("connection lost mid-transfer, attempting to reconnect: %v", err)
	s.clearEndpoint(s.currentEndpoint())
	go s.reconnect()
}

func (s *sendSink) reconnect() {
	sup := reconnect.New(
		func(ctx context.Context, ip string) error {
			ep, err := s.joiner.Reconnect(ip, s.port)
			if err != nil {
				return err
			}
			s.setEndpoint(ep)
			return nil
		},
		func(ctx context.Context) (string, bool) {
			peer, ok, err := s.trust.ByIP(s.hostIP)
			if err != nil || !ok {
				return "", false
			}
			ip, found, err := discovery.Find(appconfig.DiscoveryPort, s.self.ID, peer.DeviceID, discovery.DefaultTimeout)
			if err != nil {
				return "", false
			}
			return ip, found
		},
	)
	if err := sup.Run(context.Background(), s.hostIP); err != nil {
		s.log.Error("reconnect failed: %v", err)
		s.mu.Lock()
		s.failed = err
		s.mu.Unlock()
		select {
		case s.done <- err:
		default:
		}
	}
}

func (s *sendSink) OnFileInfo(wire.FileInfo)  {}
func (s *sendSink) OnFileData(uint32, []byte) {}
func (s *sendSink) OnAck(wire.FileAck)        {}

// OnResume answers a receiver's post-reconnect resume request: compute the
// chunks it still needs, rewind the sender to treat everything else as
// already sent, and reply so the receiver knows what's coming.
func (s *sendSink) OnResume(resume wire.FileResume) {
	received := make([]int, len(resume.ReceivedChunks))
	for i, c := range resume.ReceivedChunks {
		received[i] = int(c)
	}
	needed := s.sender.NeededFrom(received)
	if err := s.sender.ResumeFrom(received); err != nil {
		s.log.Error("resume: %v", err)
		return
	}
	neededWire := make([]uint32, len(needed))
	for i, n := range needed {
		neededWire[i] = uint32(n)
	}
	ep := s.currentEndpoint()
	if ep == nil {
		return
	}
	if err := ep.SendFileResumeOk(wire.FileResumeOk{FileHash: resume.FileHash, NeededChunks: neededWire}); err != nil {
		s.log.Error("send resume-ok: %v", err)
	}
}

func (s *sendSink) OnResumeOk(wire.FileResumeOk) {}
func (s *sendSink) OnComplete(wire.FileComplete) {}
func (s *sendSink) OnError(err error)            { s.log.Warn("%v", err) }
func (s *sendSink) OnLog(msg string)             { s.log.Info("%s", msg) }

func hostnameOrFallback() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "dropwire-host"
}
