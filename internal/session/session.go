// Package session implements the TCP session endpoint: the Host and Joiner
// role state machines, the pairing handshake, and the connected-loop
// message dispatcher shared by both roles.
package session

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dropwire-app/dropwire/internal/heartbeat"
	"github.com/dropwire-app/dropwire/internal/identity"
	"github.com/dropwire-app/dropwire/pkg/wire"
)

// State names the endpoint's position in its role's state machine.
type State int

const (
	StateIdle State = iota
	StateListening
	StateDialing
	StateHandshaking
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateListening:
		return "Listening"
	case StateDialing:
		return "Dialing"
	case StateHandshaking:
		return "Handshaking"
	case StateConnected:
		return "Connected"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// HandshakeTimeout bounds the wait for the first frame of a handshake.
const HandshakeTimeout = 30 * time.Second

// ReadPollInterval is the recurring read deadline so a closed-flag can be
// rechecked without blocking forever on a dead socket.
const ReadPollInterval = time.Second

// EventSink is the single capability set a session endpoint reports to. It
// replaces a set of ad-hoc per-event callback fields with one injected
// interface.
type EventSink interface {
	OnConnected(ep *Endpoint, peerHostname string)
	OnDisconnected(err error)
	OnFileInfo(info wire.FileInfo)
	OnFileData(chunkIndex uint32, data []byte)
	OnAck(ack wire.FileAck)
	OnResume(resume wire.FileResume)
	OnResumeOk(ok wire.FileResumeOk)
	OnComplete(complete wire.FileComplete)
	OnError(err error)
	OnLog(msg string)
}

// Conn wraps a live session socket with a single-writer lock, serializing
// heartbeat frames against transfer frames.
type Conn struct {
	netConn net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
}

func newConn(c net.Conn) *Conn {
	return &Conn{netConn: c, reader: bufio.NewReader(c)}
}

func (c *Conn) writeJSON(t wire.Type, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.EncodeJSON(c.netConn, t, v)
}

func (c *Conn) writeFileData(chunkIndex uint32, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.EncodeFileData(c.netConn, chunkIndex, data)
}

func (c *Conn) readFrame(deadline time.Duration) (wire.Type, uint32, error) {
	if deadline > 0 {
		c.netConn.SetReadDeadline(time.Now().Add(deadline))
	}
	return wire.DecodeHeader(c.reader)
}

func (c *Conn) Close() error {
	return c.netConn.Close()
}

// RemoteIP returns the peer's address without the port, or "" if unknown.
func (c *Conn) RemoteIP() string {
	host, _, err := net.SplitHostPort(c.netConn.RemoteAddr().String())
	if err != nil {
		return c.netConn.RemoteAddr().String()
	}
	return host
}

// Endpoint is the shared machinery between the Host and Joiner roles: the
// connected read loop, heartbeat wiring, and orderly/unorderly teardown.
type Endpoint struct {
	conn  *Conn
	sink  EventSink
	hb    *heartbeat.Supervisor
	trust *identity.TrustStore
	self  *identity.Device

	mu    sync.Mutex
	state State
}

// NewEndpoint wires conn to sink, using trust and self for the handshake
// decisions made by Host/Joiner on top of this shared loop.
func NewEndpoint(conn *Conn, sink EventSink, trust *identity.TrustStore, self *identity.Device) *Endpoint {
	return &Endpoint{conn: conn, sink: sink, trust: trust, self: self, state: StateHandshaking}
}

func (e *Endpoint) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// State returns the endpoint's current state.
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RunConnected spawns the heartbeat supervisor and runs the read loop until
// the socket closes or a Disconnect/fatal error occurs. It blocks until
// teardown completes.
func (e *Endpoint) RunConnected(peerHostname string) {
	e.setState(StateConnected)
	e.sink.OnConnected(e, peerHostname)

	e.hb = heartbeat.New(e.sendHeartbeat, e.onHeartbeatTimeout)
	e.hb.Start()

	e.readLoop()
}

func (e *Endpoint) sendHeartbeat() error {
	return e.conn.writeJSON(wire.TypeHeartbeat, wire.Heartbeat{Timestamp: time.Now().Unix()})
}

func (e *Endpoint) onHeartbeatTimeout() {
	e.teardown(fmt.Errorf("%w: heartbeat timeout", ErrTimeout))
}

func (e *Endpoint) readLoop() {
	for {
		if e.State() == StateClosed {
			return
		}
		t, length, err := e.conn.readFrame(ReadPollInterval)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			cause := fmt.Errorf("%w: %v", ErrNetworkFailure, err)
			e.sink.OnError(cause)
			e.teardown(cause)
			return
		}
		if err := e.dispatch(t, length); err != nil {
			if err == errDisconnectRequested {
				e.teardown(nil)
				return
			}
			e.sink.OnError(err)
			e.teardown(err)
			return
		}
	}
}

var errDisconnectRequested = fmt.Errorf("session: peer requested disconnect")

func (e *Endpoint) dispatch(t wire.Type, length uint32) error {
	switch t {
	case wire.TypeHeartbeat:
		var hb wire.Heartbeat
		if err := wire.DecodeJSON(e.conn.reader, length, &hb); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		e.hb.ReceivedResponse()
		return nil
	case wire.TypeFileInfo:
		var info wire.FileInfo
		if err := wire.DecodeJSON(e.conn.reader, length, &info); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		e.sink.OnFileInfo(info)
		return nil
	case wire.TypeFileData:
		idx, data, err := wire.DecodeFileData(e.conn.reader, length)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		e.sink.OnFileData(idx, data)
		return nil
	case wire.TypeFileAck:
		var ack wire.FileAck
		if err := wire.DecodeJSON(e.conn.reader, length, &ack); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		e.sink.OnAck(ack)
		return nil
	case wire.TypeFileAckBatch:
		var batch wire.FileAckBatch
		if err := wire.DecodeJSON(e.conn.reader, length, &batch); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		for _, idx := range batch.ChunkIndices {
			e.sink.OnAck(wire.FileAck{ChunkIndex: idx, Success: true})
		}
		return nil
	case wire.TypeFileResume:
		var resume wire.FileResume
		if err := wire.DecodeJSON(e.conn.reader, length, &resume); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		e.sink.OnResume(resume)
		return nil
	case wire.TypeFileResumeOk:
		var ok wire.FileResumeOk
		if err := wire.DecodeJSON(e.conn.reader, length, &ok); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		e.sink.OnResumeOk(ok)
		return nil
	case wire.TypeFileComplete:
		var complete wire.FileComplete
		if err := wire.DecodeJSON(e.conn.reader, length, &complete); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		e.sink.OnComplete(complete)
		return nil
	case wire.TypeFileError:
		var fe wire.FileError
		if err := wire.DecodeJSON(e.conn.reader, length, &fe); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		e.sink.OnError(fmt.Errorf("%w: %s", ErrNetworkFailure, fe.Error))
		return nil
	case wire.TypeFileListReq:
		var req wire.FileListRequest
		wire.DecodeJSON(e.conn.reader, length, &req)
		e.sink.OnLog("received FileListRequest (no-op)")
		return nil
	case wire.TypeFileListRsp:
		var resp wire.FileListResponse
		wire.DecodeJSON(e.conn.reader, length, &resp)
		e.sink.OnLog("received FileListResponse (no-op)")
		return nil
	case wire.TypeDisconnect:
		var d wire.Disconnect
		wire.DecodeJSON(e.conn.reader, length, &d)
		return errDisconnectRequested
	default:
		return fmt.Errorf("%w: unexpected message type %s in connected state", ErrMalformedFrame, t)
	}
}

// SendFileInfo announces a new outbound file.
func (e *Endpoint) SendFileInfo(info wire.FileInfo) error {
	return e.conn.writeJSON(wire.TypeFileInfo, info)
}

// SendFileData transmits one chunk.
func (e *Endpoint) SendFileData(chunkIndex uint32, data []byte) error {
	return e.conn.writeFileData(chunkIndex, data)
}

// SendFileResume requests a resume from the peer acting as sender.
func (e *Endpoint) SendFileResume(resume wire.FileResume) error {
	return e.conn.writeJSON(wire.TypeFileResume, resume)
}

// SendFileResumeOk replies to a FileResume with the set of indices the
// sender will (re)send.
func (e *Endpoint) SendFileResumeOk(ok wire.FileResumeOk) error {
	return e.conn.writeJSON(wire.TypeFileResumeOk, ok)
}

// SendFileComplete announces a file has been fully received/sent.
func (e *Endpoint) SendFileComplete(complete wire.FileComplete) error {
	return e.conn.writeJSON(wire.TypeFileComplete, complete)
}

// Disconnect performs an orderly close: send Disconnect, close the socket,
// stop the heartbeat, and fire OnDisconnected.
func (e *Endpoint) Disconnect() {
	e.conn.writeJSON(wire.TypeDisconnect, wire.Disconnect{})
	e.teardown(nil)
}

// teardown is idempotent: stop heartbeat, close socket, fire OnDisconnected.
// cause is nil for an orderly close (self-initiated or peer-requested
// Disconnect) and non-nil otherwise, so a sink can tell a clean hangup from
// a dropped connection worth reconnecting over.
func (e *Endpoint) teardown(cause error) {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	e.state = StateClosed
	e.mu.Unlock()

	if e.hb != nil {
		e.hb.Stop()
	}
	e.conn.Close()
	e.sink.OnDisconnected(cause)
}
