// Package statestore persists per-transfer chunk-level progress on both the
// send and receive sides, with atomic writes and a throttled flush policy.
package statestore

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
)

const (
	chunksPerSync  = 50
	syncInterval   = 5 * time.Second
)

// flushGate decides, given accumulated writes, whether the next update
// should flush to disk. It is owned by exactly one Store at a time.
type flushGate struct {
	chunksSinceSync int
	lastSyncTime    time.Time
}

func newFlushGate(now time.Time) *flushGate {
	return &flushGate{lastSyncTime: now}
}

// note records that n additional chunk indices were just merged in.
func (g *flushGate) note(n int) {
	g.chunksSinceSync += n
}

// shouldFlush reports whether policy requires a flush now.
func (g *flushGate) shouldFlush(now time.Time, force bool) bool {
	if force {
		return true
	}
	if g.chunksSinceSync >= chunksPerSync {
		return true
	}
	return now.Sub(g.lastSyncTime) >= syncInterval
}

func (g *flushGate) reset(now time.Time) {
	g.chunksSinceSync = 0
	g.lastSyncTime = now
}

// SendingState is the persisted record of an in-progress or completed send.
type SendingState struct {
	FilePath          string    `json:"file_path"`
	FileName          string    `json:"file_name"`
	FileSize          int64     `json:"file_size"`
	FileHash          string    `json:"file_hash"`
	ChunkSize         int       `json:"chunk_size"`
	TotalChunks       int       `json:"total_chunks"`
	SentChunks        []int     `json:"sent_chunks"`
	ReceiverDeviceID  string    `json:"receiver_device_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	gate *flushGate
}

// ReceivingState is the persisted record of an in-progress or completed
// receive.
type ReceivingState struct {
	FileName        string    `json:"file_name"`
	FileSize        int64     `json:"file_size"`
	FileHash        string    `json:"file_hash"`
	ChunkSize       int       `json:"chunk_size"`
	TotalChunks     int       `json:"total_chunks"`
	ReceivedChunks  []int     `json:"received_chunks"`
	SenderDeviceID  string    `json:"sender_device_id"`
	TempFile        string    `json:"temp_file"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	gate *flushGate
}

func totalChunks(fileSize int64, chunkSize int) int {
	if fileSize == 0 {
		return 0
	}
	return int(math.Ceil(float64(fileSize) / float64(chunkSize)))
}

// Store keeps sending records under sendingDir and receiving records under
// receivingDir.
type Store struct {
	sendingDir   string
	receivingDir string
}

// New returns a Store rooted at sendingDir and receivingDir.
func New(sendingDir, receivingDir string) *Store {
	return &Store{sendingDir: sendingDir, receivingDir: receivingDir}
}

func sendingPath(dir, hash string) string {
	return filepath.Join(dir, hash+".json")
}

func receivingPath(dir, hash string) string {
	return filepath.Join(dir, hash+".json")
}

// CreateSendingState creates (or reloads, if already present) the sending
// record for fileHash.
func (s *Store) CreateSendingState(filePath, fileName string, fileSize int64, fileHash string, chunkSize int, receiverDeviceID string, now time.Time) (*SendingState, error) {
	if existing, err := s.LoadSendingState(fileHash); err == nil && existing != nil {
		return existing, nil
	}
	st := &SendingState{
		FilePath:         filePath,
		FileName:         fileName,
		FileSize:         fileSize,
		FileHash:         fileHash,
		ChunkSize:        chunkSize,
		TotalChunks:      totalChunks(fileSize, chunkSize),
		SentChunks:       []int{},
		ReceiverDeviceID: receiverDeviceID,
		CreatedAt:        now,
		UpdatedAt:        now,
		gate:             newFlushGate(now),
	}
	if err := s.writeSending(st); err != nil {
		return nil, err
	}
	return st, nil
}

// LoadSendingState reads the sending record for fileHash, or (nil, nil) if
// it does not exist.
func (s *Store) LoadSendingState(fileHash string) (*SendingState, error) {
	data, err := os.ReadFile(sendingPath(s.sendingDir, fileHash))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st SendingState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	st.gate = newFlushGate(time.Now())
	return &st, nil
}

// UpdateSentChunks merges indices into st's sent set and flushes according
// to the throttle policy.
func (s *Store) UpdateSentChunks(st *SendingState, indices []int, forceSync bool, now time.Time) error {
	n := mergeInts(&st.SentChunks, indices)
	st.gate.note(n)
	st.UpdatedAt = now
	if !st.gate.shouldFlush(now, forceSync) {
		return nil
	}
	if err := s.writeSending(st); err != nil {
		return err
	}
	st.gate.reset(now)
	return nil
}

// GetMissingChunks returns the sorted complement of st.SentChunks in
// [0, TotalChunks).
func (st *SendingState) GetMissingChunks() []int {
	return complement(st.SentChunks, st.TotalChunks)
}

// CompleteSending deletes the persisted sending record for fileHash.
func (s *Store) CompleteSending(fileHash string) error {
	return removeIfExists(sendingPath(s.sendingDir, fileHash))
}

func (s *Store) writeSending(st *SendingState) error {
	sort.Ints(st.SentChunks)
	if err := os.MkdirAll(s.sendingDir, 0o755); err != nil {
		return err
	}
	return atomicWriteJSON(s.sendingDir, sendingPath(s.sendingDir, st.FileHash), st)
}

// CreateReceivingState creates (or reloads) the receiving record for
// fileHash.
func (s *Store) CreateReceivingState(fileName string, fileSize int64, fileHash string, chunkSize int, senderDeviceID, tempFile string, now time.Time) (*ReceivingState, error) {
	if existing, err := s.LoadReceivingState(fileHash); err == nil && existing != nil {
		return existing, nil
	}
	st := &ReceivingState{
		FileName:       fileName,
		FileSize:       fileSize,
		FileHash:       fileHash,
		ChunkSize:      chunkSize,
		TotalChunks:    totalChunks(fileSize, chunkSize),
		ReceivedChunks: []int{},
		SenderDeviceID: senderDeviceID,
		TempFile:       tempFile,
		CreatedAt:      now,
		UpdatedAt:      now,
		gate:           newFlushGate(now),
	}
	if err := s.writeReceiving(st); err != nil {
		return nil, err
	}
	return st, nil
}

// LoadReceivingState reads the receiving record for fileHash, or (nil, nil)
// if it does not exist.
func (s *Store) LoadReceivingState(fileHash string) (*ReceivingState, error) {
	data, err := os.ReadFile(receivingPath(s.receivingDir, fileHash))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st ReceivingState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	st.gate = newFlushGate(time.Now())
	return &st, nil
}

// UpdateReceivedChunks merges indices into st's received set and flushes
// according to the throttle policy.
func (s *Store) UpdateReceivedChunks(st *ReceivingState, indices []int, forceSync bool, now time.Time) error {
	n := mergeInts(&st.ReceivedChunks, indices)
	st.gate.note(n)
	st.UpdatedAt = now
	if !st.gate.shouldFlush(now, forceSync) {
		return nil
	}
	if err := s.writeReceiving(st); err != nil {
		return err
	}
	st.gate.reset(now)
	return nil
}

// IsComplete reports whether every chunk has been received.
func (st *ReceivingState) IsComplete() bool {
	return len(st.ReceivedChunks) == st.TotalChunks
}

// IsComplete reports whether every chunk has been sent.
func (st *SendingState) IsComplete() bool {
	return len(st.SentChunks) == st.TotalChunks
}

// CompleteReceiving deletes the persisted receiving record for fileHash.
func (s *Store) CompleteReceiving(fileHash string) error {
	return removeIfExists(receivingPath(s.receivingDir, fileHash))
}

func (s *Store) writeReceiving(st *ReceivingState) error {
	sort.Ints(st.ReceivedChunks)
	if err := os.MkdirAll(s.receivingDir, 0o755); err != nil {
		return err
	}
	return atomicWriteJSON(s.receivingDir, receivingPath(s.receivingDir, st.FileHash), st)
}

// ListPendingSends parses every sending/*.json record.
func (s *Store) ListPendingSends() ([]*SendingState, error) {
	entries, err := os.ReadDir(s.sendingDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []*SendingState
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		hash := trimJSONExt(e.Name())
		st, err := s.LoadSendingState(hash)
		if err != nil || st == nil {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// ListPendingReceives parses every receiving/*.json record.
func (s *Store) ListPendingReceives() ([]*ReceivingState, error) {
	entries, err := os.ReadDir(s.receivingDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []*ReceivingState
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		hash := trimJSONExt(e.Name())
		st, err := s.LoadReceivingState(hash)
		if err != nil || st == nil {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// CleanupAll deletes every persisted sending and receiving record.
func (s *Store) CleanupAll() error {
	sends, err := s.ListPendingSends()
	if err != nil {
		return err
	}
	for _, st := range sends {
		if err := s.CompleteSending(st.FileHash); err != nil {
			return err
		}
	}
	recvs, err := s.ListPendingReceives()
	if err != nil {
		return err
	}
	for _, st := range recvs {
		if err := s.CompleteReceiving(st.FileHash); err != nil {
			return err
		}
	}
	return nil
}

func trimJSONExt(name string) string {
	const ext = ".json"
	if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
		return name[:len(name)-len(ext)]
	}
	return name
}

func mergeInts(set *[]int, add []int) int {
	seen := make(map[int]struct{}, len(*set))
	for _, v := range *set {
		seen[v] = struct{}{}
	}
	added := 0
	for _, v := range add {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			*set = append(*set, v)
			added++
		}
	}
	if added > 0 {
		sort.Ints(*set)
	}
	return added
}

func complement(have []int, total int) []int {
	seen := make(map[int]struct{}, len(have))
	for _, v := range have {
		seen[v] = struct{}{}
	}
	out := make([]int, 0, total-len(have))
	for i := 0; i < total; i++ {
		if _, ok := seen[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func atomicWriteJSON(dir, path string, v any) error {
	lock := flock.New(filepath.Join(dir, ".lock"))
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
