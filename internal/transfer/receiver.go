package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dropwire-app/dropwire/internal/statestore"
)

// Receiver writes chunks into a sparse temp file by offset, tracking
// progress in a ReceivingState, and produces the final collision-free file
// on completion.
type Receiver struct {
	store       *statestore.Store
	state       *statestore.ReceivingState
	file        *os.File
	downloadDir string
	isFolder    bool
}

// NewReceiver returns a Receiver backed by store, placing completed files
// under downloadDir.
func NewReceiver(store *statestore.Store, downloadDir string) *Receiver {
	return &Receiver{store: store, downloadDir: downloadDir}
}

// Start loads or creates the ReceivingState for hash, ensuring the sparse
// temp file exists with exactly fileSize bytes.
func (r *Receiver) Start(receivingDir, name string, fileSize int64, hash, senderDeviceID string, isFolder bool) error {
	r.isFolder = isFolder
	tempPath := filepath.Join(receivingDir, hash+".part")

	st, err := r.store.CreateReceivingState(name, fileSize, hash, ChunkSize, senderDeviceID, tempPath, time.Now())
	if err != nil {
		return err
	}
	r.state = st

	if err := os.MkdirAll(receivingDir, 0o755); err != nil {
		return err
	}
	if info, statErr := os.Stat(st.TempFile); statErr != nil || info.Size() != fileSize {
		f, err := os.Create(st.TempFile)
		if err != nil {
			return fmt.Errorf("transfer: create temp file: %w", err)
		}
		if err := f.Truncate(fileSize); err != nil {
			f.Close()
			return fmt.Errorf("transfer: truncate temp file: %w", err)
		}
		f.Close()
	}

	f, err := os.OpenFile(st.TempFile, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("transfer: open temp file: %w", err)
	}
	r.file = f
	return nil
}

// WriteChunk writes data at index*ChunkSize. A duplicate index is a no-op.
func (r *Receiver) WriteChunk(index int, data []byte) error {
	for _, have := range r.state.ReceivedChunks {
		if have == index {
			return nil
		}
	}
	if _, err := r.file.WriteAt(data, int64(index)*int64(ChunkSize)); err != nil {
		return fmt.Errorf("transfer: write chunk %d: %w", index, err)
	}
	return r.store.UpdateReceivedChunks(r.state, []int{index}, false, time.Now())
}

// MissingChunks returns the sorted complement of the received set.
func (r *Receiver) MissingChunks() []int {
	have := make(map[int]struct{}, len(r.state.ReceivedChunks))
	for _, i := range r.state.ReceivedChunks {
		have[i] = struct{}{}
	}
	var out []int
	for i := 0; i < r.state.TotalChunks; i++ {
		if _, ok := have[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

// IsComplete reports whether every chunk has been received.
func (r *Receiver) IsComplete() bool {
	return r.state.IsComplete()
}

// Hash returns the file hash of the transfer in progress.
func (r *Receiver) Hash() string {
	return r.state.FileHash
}

// Received returns a copy of the chunk indices already written to disk, for
// announcing via FileResume after a reconnect.
func (r *Receiver) Received() []int {
	return append([]int(nil), r.state.ReceivedChunks...)
}

// Progress returns (received, total).
func (r *Receiver) Progress() (int, int) {
	return len(r.state.ReceivedChunks), r.state.TotalChunks
}

// Complete closes the handle, renames the temp file to a collision-free
// name under downloadDir, extracts it if it represents a folder, and
// deletes the ReceivingState. It returns the final path.
func (r *Receiver) Complete() (string, error) {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}

	finalPath, err := uniqueDestination(r.downloadDir, r.state.FileName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.downloadDir, 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(r.state.TempFile, finalPath); err != nil {
		return "", fmt.Errorf("transfer: rename to final path: %w", err)
	}

	if r.isFolder {
		extractDir, err := uniqueDestination(r.downloadDir, strings.TrimSuffix(filepath.Base(finalPath), filepath.Ext(finalPath)))
		if err != nil {
			return "", err
		}
		if err := UnpackDirectory(finalPath, extractDir); err != nil {
			return "", err
		}
		os.Remove(finalPath)
		finalPath = extractDir
	}

	if err := r.store.CompleteReceiving(r.state.FileHash); err != nil {
		return "", err
	}
	return finalPath, nil
}

// Cancel closes the handle and deletes the partial file, but preserves the
// ReceivingState.
func (r *Receiver) Cancel() error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	return os.Remove(r.state.TempFile)
}

// uniqueDestination returns a path under dir for name, appending
// " (1)", " (2)", ... before the extension until the path does not exist.
func uniqueDestination(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate, nil
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
}
