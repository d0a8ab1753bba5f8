// Package wire implements the framed message protocol shared by a session's
// two endpoints: an 8-byte header (message type, payload length, both
// big-endian uint32) followed by a JSON payload, except for FileData whose
// payload is binary.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Type identifies a message on the wire.
type Type uint32

const (
	TypePairRequest Type = 1
	TypePairAccept  Type = 2
	TypePairReject  Type = 3
	TypeFileInfo    Type = 4
	TypeFileData    Type = 5
	TypeFileAck     Type = 6
	TypeFileError   Type = 7
	TypeDisconnect  Type = 8
	TypeFileListReq Type = 9
	TypeFileListRsp Type = 10
	TypeFileAckBatch Type = 11
	TypeFileResume   Type = 12
	TypeFileResumeOk Type = 13
	TypeFileComplete Type = 14
	TypeHeartbeat    Type = 15
	TypeReconnect    Type = 16
)

func (t Type) String() string {
	switch t {
	case TypePairRequest:
		return "PairRequest"
	case TypePairAccept:
		return "PairAccept"
	case TypePairReject:
		return "PairReject"
	case TypeFileInfo:
		return "FileInfo"
	case TypeFileData:
		return "FileData"
	case TypeFileAck:
		return "FileAck"
	case TypeFileError:
		return "FileError"
	case TypeDisconnect:
		return "Disconnect"
	case TypeFileListReq:
		return "FileListRequest"
	case TypeFileListRsp:
		return "FileListResponse"
	case TypeFileAckBatch:
		return "FileAckBatch"
	case TypeFileResume:
		return "FileResume"
	case TypeFileResumeOk:
		return "FileResumeOk"
	case TypeFileComplete:
		return "FileComplete"
	case TypeHeartbeat:
		return "Heartbeat"
	case TypeReconnect:
		return "Reconnect"
	default:
		return fmt.Sprintf("Type(%d)", uint32(t))
	}
}

// HeaderSize is the fixed size, in bytes, of every frame's header.
const HeaderSize = 8

// MaxPayloadSize bounds a single frame's payload. Frames claiming a larger
// length are rejected as malformed before any read is attempted.
const MaxPayloadSize = 64 << 20 // 64 MiB

// ErrMalformedFrame is returned for header corruption, an oversized length,
// or a JSON parse failure on a JSON-typed message.
var ErrMalformedFrame = errors.New("wire: malformed frame")

// EncodeHeader writes the 8-byte big-endian header for a frame of the given
// type and payload length.
func EncodeHeader(w io.Writer, t Type, payloadLen uint32) error {
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(t))
	binary.BigEndian.PutUint32(hdr[4:8], payloadLen)
	_, err := w.Write(hdr[:])
	return err
}

// DecodeHeader reads and validates an 8-byte header, rejecting a payload
// length beyond MaxPayloadSize.
func DecodeHeader(r io.Reader) (Type, uint32, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, err
	}
	t := Type(binary.BigEndian.Uint32(hdr[0:4]))
	length := binary.BigEndian.Uint32(hdr[4:8])
	if length > MaxPayloadSize {
		return 0, 0, fmt.Errorf("%w: payload length %d exceeds cap", ErrMalformedFrame, length)
	}
	return t, length, nil
}

// EncodeJSON writes a full frame (header + JSON body) for any message type
// other than FileData.
func EncodeJSON(w io.Writer, t Type, v any) error {
	if t == TypeFileData {
		return fmt.Errorf("wire: %s must be encoded with EncodeFileData", t)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: marshal %s payload: %w", t, err)
	}
	if err := EncodeHeader(w, t, uint32(len(body))); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// DecodeJSON reads exactly length bytes from r and unmarshals them into v.
func DecodeJSON(r io.Reader, length uint32, v any) error {
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

// EncodeFileData writes a FileData frame: header, then a 4-byte
// big-endian chunk index, then the raw chunk bytes.
func EncodeFileData(w io.Writer, chunkIndex uint32, data []byte) error {
	if err := EncodeHeader(w, TypeFileData, uint32(4+len(data))); err != nil {
		return err
	}
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], chunkIndex)
	if _, err := w.Write(idx[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// DecodeFileData reads a FileData payload of the given length, returning the
// chunk index and the chunk bytes.
func DecodeFileData(r io.Reader, length uint32) (uint32, []byte, error) {
	if length < 4 {
		return 0, nil, fmt.Errorf("%w: FileData payload shorter than 4 bytes", ErrMalformedFrame)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return binary.BigEndian.Uint32(body[0:4]), body[4:], nil
}

// Payload shapes for the JSON-bodied message types (spec §4.1).

type PairRequest struct {
	PairCode string `json:"pair_code"`
	Hostname string `json:"hostname"`
	// DeviceID is optional: when present, a successful pairing adds the
	// joiner to the host's trust store for future Reconnect handshakes.
	DeviceID string `json:"device_id,omitempty"`
}

type PairAccept struct {
	Hostname string `json:"hostname"`
	// DeviceID is optional: when present, a joiner adds the host to its
	// own trust store for future Reconnect handshakes.
	DeviceID string `json:"device_id,omitempty"`
}

type PairReject struct {
	Reason string `json:"reason"`
}

type FileInfo struct {
	Filename string `json:"filename"`
	FileSize int64  `json:"filesize"`
	Hash     string `json:"hash"`
	IsFolder bool   `json:"is_folder"`
}

type FileAck struct {
	ChunkIndex uint32 `json:"chunk_index"`
	Success    bool   `json:"success"`
}

type FileAckBatch struct {
	ChunkIndices []uint32 `json:"chunk_indices"`
}

type FileError struct {
	Error string `json:"error"`
}

type Disconnect struct{}

type FileListRequest struct{}

type FileListResponse struct {
	Files []string `json:"files"`
}

type FileResume struct {
	FileHash       string   `json:"file_hash"`
	ReceivedChunks []uint32 `json:"received_chunks"`
	DeviceID       string   `json:"device_id"`
}

type FileResumeOk struct {
	FileHash      string   `json:"file_hash"`
	NeededChunks  []uint32 `json:"needed_chunks"`
}

type FileComplete struct {
	FileHash string `json:"file_hash"`
	Success  bool   `json:"success"`
}

type Heartbeat struct {
	Timestamp int64 `json:"timestamp"`
}

type Reconnect struct {
	DeviceID string `json:"device_id"`
	Hostname string `json:"hostname"`
}
