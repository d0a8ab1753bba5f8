package session

import (
	"fmt"
	"net"
	"time"

	"github.com/dropwire-app/dropwire/internal/identity"
	"github.com/dropwire-app/dropwire/pkg/wire"
)

// Host listens for a single inbound joiner, performs the accept-path
// handshake, and runs the connected loop on success.
type Host struct {
	self     *identity.Device
	trust    *identity.TrustStore
	pairCode string
	hostname string
	sink     EventSink

	listener net.Listener
}

// NewHost returns a Host bound to self's identity and trust store, using
// pairCode as the one-shot join token for this listening session.
func NewHost(self *identity.Device, trust *identity.TrustStore, pairCode, hostname string, sink EventSink) *Host {
	return &Host{self: self, trust: trust, pairCode: pairCode, hostname: hostname, sink: sink}
}

// Listen opens the TCP listener on port. Host keeps no state value of its
// own; the Endpoint it creates per connection starts in StateHandshaking.
func (h *Host) Listen(port int) error {
	l, err := net.Listen("tcp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	h.listener = l
	return nil
}

// Port returns the TCP port the listener is bound to.
func (h *Host) Port() int {
	return h.listener.Addr().(*net.TCPAddr).Port
}

// Close stops accepting new connections.
func (h *Host) Close() error {
	if h.listener == nil {
		return nil
	}
	return h.listener.Close()
}

// AcceptOnce accepts a single connection and runs the accept-path handshake
// to completion, blocking for the lifetime of the resulting session.
func (h *Host) AcceptOnce() error {
	netConn, err := h.listener.Accept()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	conn := newConn(netConn)
	ep := NewEndpoint(conn, h.sink, h.trust, h.self)

	peerHostname, err := h.handshake(ep, conn)
	if err != nil {
		conn.Close()
		return err
	}
	ep.RunConnected(peerHostname)
	return nil
}

func (h *Host) handshake(ep *Endpoint, conn *Conn) (string, error) {
	t, length, err := conn.readFrame(HandshakeTimeout)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	switch t {
	case wire.TypePairRequest:
		var req wire.PairRequest
		if err := wire.DecodeJSON(conn.reader, length, &req); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if !PairCodesEqual(req.PairCode, h.pairCode) {
			conn.writeJSON(wire.TypePairReject, wire.PairReject{Reason: "配对码错误"})
			return "", fmt.Errorf("%w: wrong pair code", ErrHandshakeRejected)
		}
		if req.DeviceID != "" {
			if err := identity.Add(h.trust, req.DeviceID, req.Hostname, conn.RemoteIP(), time.Now()); err != nil {
				return "", fmt.Errorf("%w: %v", ErrIOFailure, err)
			}
		}
		if err := conn.writeJSON(wire.TypePairAccept, wire.PairAccept{Hostname: h.hostname, DeviceID: h.self.ID}); err != nil {
			return "", fmt.Errorf("%w: %v", ErrNetworkFailure, err)
		}
		return req.Hostname, nil

	case wire.TypeReconnect:
		var rc wire.Reconnect
		if err := wire.DecodeJSON(conn.reader, length, &rc); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		trusted, err := h.trust.IsTrusted(rc.DeviceID)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrIOFailure, err)
		}
		if !trusted {
			conn.writeJSON(wire.TypePairReject, wire.PairReject{Reason: "设备未受信任，请使用配对码连接"})
			return "", fmt.Errorf("%w: device not trusted", ErrNotTrusted)
		}
		if err := h.trust.UpdateSeen(rc.DeviceID, conn.RemoteIP(), time.Now()); err != nil {
			return "", fmt.Errorf("%w: %v", ErrIOFailure, err)
		}
		if err := conn.writeJSON(wire.TypePairAccept, wire.PairAccept{Hostname: h.hostname, DeviceID: h.self.ID}); err != nil {
			return "", fmt.Errorf("%w: %v", ErrNetworkFailure, err)
		}
		return rc.Hostname, nil

	default:
		return "", fmt.Errorf("%w: unexpected first frame type %s", ErrHandshakeRejected, t)
	}
}
