package main

import (
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dropwire-app/dropwire/internal/appconfig"
	"github.com/dropwire-app/dropwire/internal/applog"
	"github.com/dropwire-app/dropwire/internal/audit"
	"github.com/dropwire-app/dropwire/internal/discovery"
	"github.com/dropwire-app/dropwire/internal/session"
	"github.com/dropwire-app/dropwire/internal/statestore"
	"github.com/dropwire-app/dropwire/internal/transfer"
	"github.com/dropwire-app/dropwire/pkg/wire"
)

func newReceiveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Listen for a single incoming pairing and receive the file it sends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReceive(port)
		},
	}
	cmd.Flags().IntVar(&port, "port", appconfig.DefaultPort, "TCP port to listen on")
	return cmd
}

func runReceive(port int) error {
	app, err := loadContext()
	if err != nil {
		return err
	}
	history := audit.Open(app.paths.HistoryFile)

	localIP := discovery.LocalIP()
	pairCode, err := session.GeneratePairCode(localIP)
	if err != nil {
		return err
	}

	store := statestore.New(app.paths.SendingDir, app.paths.ReceivingDir)
	sink := &receiveSink{
		log:           app.log,
		selfDeviceID:  app.self.ID,
		store:         store,
		downloadDir:   app.paths.DownloadDir,
		receivingDir:  app.paths.ReceivingDir,
		history:       history,
		done:          make(chan error, 1),
		needReconnect: make(chan struct{}, 1),
	}

	host := session.NewHost(app.self, app.trust, pairCode, hostnameOrFallback(), sink)
	if err := host.Listen(port); err != nil {
		return err
	}
	defer host.Close()

	app.log.Info("listening on %s:%d, pair code %s", localIP, port, pairCode)

	listener, err := discovery.Listen(appconfig.DiscoveryPort, app.self.ID, hostnameOrFallback())
	if err == nil {
		go listener.Serve()
		defer listener.Stop()
	} else {
		app.log.Warn("discovery listener unavailable: %v", err)
	}

	for {
		acceptErr := host.AcceptOnce()

		select {
		case result := <-sink.done:
			return result
		default:
		}

		select {
		case <-sink.needReconnect:
			app.log.Warn("connection lost mid-transfer, waiting for sender to reconnect")
			continue
		default:
		}

		if acceptErr != nil {
			return acceptErr
		}
	}
}

// receiveSink drives a single receive: it constructs a transfer.Receiver on
// FileInfo and feeds it chunks from FileData until complete. If the
// connection drops before the transfer finishes, it asks runReceive to keep
// the listener open for a reconnecting sender instead of giving up.
type receiveSink struct {
	log          *applog.Logger
	selfDeviceID string
	store        *statestore.Store
	downloadDir  string
	receivingDir string
	history      *audit.Log

	receiver *transfer.Receiver
	bar      *progressbar.ProgressBar
	started  time.Time

	done          chan error
	needReconnect chan struct{}
}

func (s *receiveSink) OnConnected(ep *session.Endpoint, hostname string) {
	s.log.Info("connected to %s", hostname)
	if s.receiver == nil || s.receiver.IsComplete() {
		return
	}
	received := s.receiver.Received()
	chunks := make([]uint32, len(received))
	for i, c := range received {
		chunks[i] = uint32(c)
	}
	if err := ep.SendFileResume(wire.FileResume{
		FileHash:       s.receiver.Hash(),
		ReceivedChunks: chunks,
		DeviceID:       s.selfDeviceID,
	}); err != nil {
		s.log.Error("send resume request: %v", err)
	}
}

// OnDisconnected reports a clean hangup, or an unfinished transfer once no
// reconnect is possible, straight to done. An unexpected drop mid-transfer
// instead asks runReceive to keep listening for the sender to come back.
func (s *receiveSink) OnDisconnected(err error) {
	if err != nil && s.receiver != nil && !s.receiver.IsComplete() {
		select {
		case s.needReconnect <- struct{}{}:
		default:
		}
		return
	}
	select {
	case s.done <- err:
	default:
	}
}

func (s *receiveSink) OnFileInfo(info wire.FileInfo) {
	s.started = time.Now()
	s.receiver = transfer.NewReceiver(s.store, s.downloadDir)
	if err := s.receiver.Start(s.receivingDir, info.Filename, info.FileSize, info.Hash, "", info.IsFolder); err != nil {
		s.log.Error("start receive: %v", err)
		return
	}
	s.bar = progressbar.DefaultBytes(info.FileSize, "receiving "+info.Filename)
}

func (s *receiveSink) OnFileData(chunkIndex uint32, data []byte) {
	if s.receiver == nil {
		s.log.Error("FileData received before FileInfo")
		return
	}
	if err := s.receiver.WriteChunk(int(chunkIndex), data); err != nil {
		s.log.Error("write chunk: %v", err)
		return
	}
	if s.bar != nil {
		s.bar.Add(len(data))
	}
	if s.receiver.IsComplete() {
		finalPath, err := s.receiver.Complete()
		if err != nil {
			s.log.Error("complete receive: %v", err)
			return
		}
		s.log.Info("received %s", finalPath)
		s.history.WriteEntry(audit.Entry{
			Direction: "receive",
			FileName:  finalPath,
			Success:   true,
			StartedAt: s.started,
			EndedAt:   time.Now(),
		})
	}
}

func (s *receiveSink) OnAck(wire.FileAck) {}
func (s *receiveSink) OnResume(resume wire.FileResume) {
	s.log.Info("resume requested for %s (%d chunks already held)", resume.FileHash, len(resume.ReceivedChunks))
}
func (s *receiveSink) OnResumeOk(wire.FileResumeOk) {}
func (s *receiveSink) OnComplete(wire.FileComplete) {}
func (s *receiveSink) OnError(err error) {
	s.log.Error("%v", err)
}
func (s *receiveSink) OnLog(msg string) { s.log.Info("%s", msg) }
