// Package transfer implements the chunked sender and receiver and the
// directory-archiving helper that backs the external collaborator described
// in the session endpoint's file-info handshake.
package transfer

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dropwire-app/dropwire/internal/statestore"
)

// ChunkSize is the fixed chunk size used by every transfer.
const ChunkSize = 64 * 1024

// Prepared describes a file ready to be announced via FileInfo.
type Prepared struct {
	Name     string
	Size     int64
	Hash     string
	IsFolder bool
}

// Sender streams a single file as fixed-size indexed chunks, tracking
// progress in a SendingState.
type Sender struct {
	store   *statestore.Store
	state   *statestore.SendingState
	file    *os.File
	tempArc string // non-empty if Prepare archived a directory
	cursor  int
}

// NewSender returns a Sender backed by store.
func NewSender(store *statestore.Store) *Sender {
	return &Sender{store: store}
}

// Prepare computes the file to send: if path is a directory it is archived
// first via PackDirectory, producing a temp file whose lifetime this Sender
// owns. It then hashes the bytes and creates or reloads the SendingState.
func (s *Sender) Prepare(path, tempDir, receiverDeviceID string) (Prepared, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Prepared{}, fmt.Errorf("transfer: stat %s: %w", path, err)
	}

	sourcePath := path
	isFolder := false
	displayName := info.Name()
	if info.IsDir() {
		arcPath, err := PackDirectory(path, tempDir)
		if err != nil {
			return Prepared{}, err
		}
		sourcePath = arcPath
		s.tempArc = arcPath
		isFolder = true
		displayName = info.Name() + ".zip"
	}

	hash, size, err := hashFile(sourcePath)
	if err != nil {
		return Prepared{}, err
	}

	st, err := s.store.CreateSendingState(sourcePath, displayName, size, hash, ChunkSize, receiverDeviceID, time.Now())
	if err != nil {
		return Prepared{}, err
	}
	s.state = st

	f, err := os.Open(sourcePath)
	if err != nil {
		return Prepared{}, fmt.Errorf("transfer: open %s: %w", sourcePath, err)
	}
	s.file = f

	return Prepared{Name: displayName, Size: size, Hash: hash, IsFolder: isFolder}, nil
}

func hashFile(path string) (hash string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := md5.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// NextChunk scans forward from the cursor, skipping indices already marked
// sent, and returns the next chunk's index and bytes. The second return
// value is false once every chunk has been sent.
func (s *Sender) NextChunk() (index int, data []byte, ok bool, err error) {
	sentSet := make(map[int]struct{}, len(s.state.SentChunks))
	for _, i := range s.state.SentChunks {
		sentSet[i] = struct{}{}
	}
	for ; s.cursor < s.state.TotalChunks; s.cursor++ {
		if _, done := sentSet[s.cursor]; done {
			continue
		}
		idx := s.cursor
		buf := make([]byte, s.chunkLen(idx))
		if _, err := s.file.ReadAt(buf, int64(idx)*int64(ChunkSize)); err != nil && err != io.EOF {
			return 0, nil, false, fmt.Errorf("transfer: read chunk %d: %w", idx, err)
		}
		s.cursor++
		return idx, buf, true, nil
	}
	return 0, nil, false, nil
}

func (s *Sender) chunkLen(index int) int64 {
	remaining := s.state.FileSize - int64(index)*int64(ChunkSize)
	if remaining > int64(ChunkSize) {
		return int64(ChunkSize)
	}
	return remaining
}

// MarkSent records index as sent, honoring the store's throttle policy.
func (s *Sender) MarkSent(index int) error {
	return s.store.UpdateSentChunks(s.state, []int{index}, false, time.Now())
}

// NeededFrom returns the set-complement of receivedChunks in
// [0, TotalChunks).
func (s *Sender) NeededFrom(receivedChunks []int) []int {
	have := make(map[int]struct{}, len(receivedChunks))
	for _, i := range receivedChunks {
		have[i] = struct{}{}
	}
	var out []int
	for i := 0; i < s.state.TotalChunks; i++ {
		if _, ok := have[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// ResumeFrom replaces the sent set with receivedChunks, force-persists it,
// and resets the scan cursor to the start.
func (s *Sender) ResumeFrom(receivedChunks []int) error {
	s.state.SentChunks = append([]int(nil), receivedChunks...)
	s.cursor = 0
	return s.store.UpdateSentChunks(s.state, nil, true, time.Now())
}

// IsComplete reports whether every chunk has been marked sent.
func (s *Sender) IsComplete() bool {
	return s.state.IsComplete()
}

// Hash returns the file hash of the prepared transfer.
func (s *Sender) Hash() string {
	return s.state.FileHash
}

// Complete closes the file handle, deletes any temp archive, and deletes
// the persisted SendingState.
func (s *Sender) Complete() error {
	s.closeFile()
	s.removeTempArchive()
	return s.store.CompleteSending(s.state.FileHash)
}

// Cancel closes the file handle and deletes any temp archive, but preserves
// the SendingState for a later resume.
func (s *Sender) Cancel() error {
	s.closeFile()
	s.removeTempArchive()
	return nil
}

func (s *Sender) closeFile() {
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
}

func (s *Sender) removeTempArchive() {
	if s.tempArc != "" {
		os.Remove(s.tempArc)
		s.tempArc = ""
	}
}
