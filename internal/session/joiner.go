package session

import (
	"fmt"
	"net"
	"time"

	"github.com/dropwire-app/dropwire/internal/identity"
	"github.com/dropwire-app/dropwire/pkg/wire"
)

// Joiner dials a known host and performs the dial-path handshake.
type Joiner struct {
	self     *identity.Device
	trust    *identity.TrustStore
	hostname string
	sink     EventSink
}

// NewJoiner returns a Joiner bound to self's identity and trust store.
func NewJoiner(self *identity.Device, trust *identity.TrustStore, hostname string, sink EventSink) *Joiner {
	return &Joiner{self: self, trust: trust, hostname: hostname, sink: sink}
}

// Connect dials ip:port, sends PairRequest with pairCode, and awaits the
// host's response within HandshakeTimeout. On PairAccept it adds the host
// to the trust store (if its device_id was supplied) and returns a
// connected Endpoint.
func (j *Joiner) Connect(ip string, port int, pairCode string) (*Endpoint, error) {
	conn, err := j.dial(ip, port)
	if err != nil {
		return nil, err
	}

	req := wire.PairRequest{PairCode: pairCode, Hostname: j.hostname, DeviceID: j.self.ID}
	if err := conn.writeJSON(wire.TypePairRequest, req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}

	ep, err := j.awaitAccept(conn, ip)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ep, nil
}

// Reconnect dials ip:port and sends Reconnect instead of PairRequest,
// for a previously trusted host.
func (j *Joiner) Reconnect(ip string, port int) (*Endpoint, error) {
	conn, err := j.dial(ip, port)
	if err != nil {
		return nil, err
	}

	req := wire.Reconnect{DeviceID: j.self.ID, Hostname: j.hostname}
	if err := conn.writeJSON(wire.TypeReconnect, req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}

	ep, err := j.awaitAccept(conn, ip)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ep, nil
}

func (j *Joiner) dial(ip string, port int) (*Conn, error) {
	d := net.Dialer{Timeout: 30 * time.Second}
	netConn, err := d.Dial("tcp4", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	return newConn(netConn), nil
}

func (j *Joiner) awaitAccept(conn *Conn, ip string) (*Endpoint, error) {
	t, length, err := conn.readFrame(HandshakeTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	switch t {
	case wire.TypePairAccept:
		var accept wire.PairAccept
		if err := wire.DecodeJSON(conn.reader, length, &accept); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if accept.DeviceID != "" {
			if err := identity.Add(j.trust, accept.DeviceID, accept.Hostname, ip, time.Now()); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
			}
		}
		ep := NewEndpoint(conn, j.sink, j.trust, j.self)
		go ep.RunConnected(accept.Hostname)
		return ep, nil

	case wire.TypePairReject:
		var reject wire.PairReject
		if err := wire.DecodeJSON(conn.reader, length, &reject); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrHandshakeRejected, reject.Reason)

	default:
		return nil, fmt.Errorf("%w: unexpected first frame type %s", ErrHandshakeRejected, t)
	}
}
