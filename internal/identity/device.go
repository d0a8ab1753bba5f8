// Package identity owns this install's self-identity and its store of
// trusted peers.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// ErrIdentityUnavailable is returned when device_id.json exists but cannot
// be read. The identity is never regenerated in that case.
var ErrIdentityUnavailable = errors.New("identity: device identity file is unreadable")

// Device is this install's persistent self-identity.
type Device struct {
	ID        string    `json:"device_id"`
	CreatedAt time.Time `json:"created_at"`
}

// LoadOrCreate loads device_id.json under dir, creating it on first launch.
func LoadOrCreate(dir string) (*Device, error) {
	path := filepath.Join(dir, "device_id.json")

	if _, err := os.Stat(path); err == nil {
		return load(path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	dev := &Device{ID: generateID(), CreatedAt: time.Now()}
	if err := writeAtomic(dir, path, dev); err != nil {
		return nil, fmt.Errorf("identity: create device_id.json: %w", err)
	}
	return dev, nil
}

func load(path string) (*Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	var dev Device
	if err := json.Unmarshal(data, &dev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	if dev.ID == "" {
		return nil, fmt.Errorf("%w: empty device_id", ErrIdentityUnavailable)
	}
	return &dev, nil
}

func generateID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown-host"
	}
	username := "unknown-user"
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	}
	return fmt.Sprintf("%s-%s-%s", hostname, username, uuid.New().String())
}

// writeAtomic locks dir's lock file, writes v to a temp file, and renames it
// over path, so a reader never observes a partially written JSON document.
func writeAtomic(dir, path string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
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
