package session

import "errors"

// Error kinds, each a distinct sentinel rather than a distinguishing type,
// checked with errors.Is.
var (
	ErrNetworkFailure    = errors.New("session: network failure")
	ErrHandshakeRejected = errors.New("session: handshake rejected")
	ErrMalformedFrame    = errors.New("session: malformed frame")
	ErrStateCorruption   = errors.New("session: state corruption")
	ErrIOFailure         = errors.New("session: io failure")
	ErrNotTrusted        = errors.New("session: peer not trusted")
	ErrTimeout           = errors.New("session: timeout")
)
