// Package appconfig resolves the application's data directory layout and
// owns the small user-preferences file the external UI may consult.
package appconfig

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const (
	// DefaultPort is the session endpoint's TCP listen port.
	DefaultPort = 9527
	// DiscoveryPort is the UDP broadcast discovery port.
	DiscoveryPort = 9528
	// ChunkSize is the fixed chunk size used by the sender and receiver.
	ChunkSize = 64 * 1024
	// PairCodeLength is the length, in characters, of a generated pair code.
	PairCodeLength = 6
)

// Paths holds the resolved locations the core reads from and writes to.
type Paths struct {
	Root         string // app data root
	SendingDir   string // Root/sending
	ReceivingDir string // Root/receiving
	TempDir      string // Root/temp
	DownloadDir  string // default destination for completed receives
	UserConfig   string // Root/user_config.json
	HistoryFile  string // Root/history.jsonl
}

// Resolve computes Paths rooted at dir, creating the directories it owns.
func Resolve(dir string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	p := &Paths{
		Root:         dir,
		SendingDir:   filepath.Join(dir, "sending"),
		ReceivingDir: filepath.Join(dir, "receiving"),
		TempDir:      filepath.Join(dir, "temp"),
		DownloadDir:  filepath.Join(home, "Downloads"),
		UserConfig:   filepath.Join(dir, "user_config.json"),
		HistoryFile:  filepath.Join(dir, "history.jsonl"),
	}
	for _, d := range []string{p.Root, p.SendingDir, p.ReceivingDir, p.TempDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// DefaultRoot returns "~/.dropwire", falling back to "./.dropwire" if the
// home directory can't be determined.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dropwire"
	}
	return filepath.Join(home, ".dropwire")
}

// UserConfig holds the preferences the (external) file/folder pickers may
// persist across runs. The core only ever reads it.
type UserConfig struct {
	LastFileDir   string `json:"last_file_dir"`
	LastFolderDir string `json:"last_folder_dir"`
}

// LoadUserConfig reads user_config.json, returning a zero-value UserConfig
// if it does not yet exist.
func LoadUserConfig(p *Paths) (*UserConfig, error) {
	data, err := os.ReadFile(p.UserConfig)
	if os.IsNotExist(err) {
		return &UserConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg UserConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveUserConfig atomically writes cfg to user_config.json.
func SaveUserConfig(p *Paths, cfg *UserConfig) error {
	lock := flock.New(filepath.Join(p.Root, ".lock"))
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.UserConfig + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.UserConfig)
}
