package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Peer is a trusted remote device, added on a successful paired handshake
// and refreshed on every successful reconnect.
type Peer struct {
	DeviceID  string    `json:"device_id"`
	Hostname  string    `json:"hostname"`
	LastIP    string    `json:"last_ip"`
	TrustedAt time.Time `json:"trusted_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// TrustStore persists the list of trusted peers at trusted_devices.json
// under dir, guarded against concurrent writers with an exclusive file lock.
type TrustStore struct {
	dir  string
	path string
}

// NewTrustStore opens (without yet reading) the trust store rooted at dir.
func NewTrustStore(dir string) *TrustStore {
	return &TrustStore{dir: dir, path: filepath.Join(dir, "trusted_devices.json")}
}

// trustFile is the on-disk shape of trusted_devices.json: an object keyed
// by "devices", not a bare array.
type trustFile struct {
	Devices []Peer `json:"devices"`
}

func (s *TrustStore) load() ([]Peer, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tf trustFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, err
	}
	return tf.Devices, nil
}

func (s *TrustStore) save(peers []Peer) error {
	if peers == nil {
		peers = []Peer{}
	}
	return writeAtomic(s.dir, s.path, trustFile{Devices: peers})
}

// IsTrusted reports whether deviceID is present in the trust store.
func (s *TrustStore) IsTrusted(deviceID string) (bool, error) {
	peers, err := s.load()
	if err != nil {
		return false, err
	}
	for _, p := range peers {
		if p.DeviceID == deviceID {
			return true, nil
		}
	}
	return false, nil
}

// Add upserts a trusted peer: if deviceID already exists its hostname,
// last_ip, and last_seen are refreshed; otherwise a new entry is appended.
func Add(s *TrustStore, deviceID, hostname, ip string, now time.Time) error {
	peers, err := s.load()
	if err != nil {
		return err
	}
	for i := range peers {
		if peers[i].DeviceID == deviceID {
			peers[i].Hostname = hostname
			peers[i].LastIP = ip
			peers[i].LastSeen = now
			return s.save(peers)
		}
	}
	peers = append(peers, Peer{
		DeviceID:  deviceID,
		Hostname:  hostname,
		LastIP:    ip,
		TrustedAt: now,
		LastSeen:  now,
	})
	return s.save(peers)
}

// Remove deletes deviceID from the trust store, if present.
func (s *TrustStore) Remove(deviceID string) error {
	peers, err := s.load()
	if err != nil {
		return err
	}
	out := peers[:0]
	for _, p := range peers {
		if p.DeviceID != deviceID {
			out = append(out, p)
		}
	}
	return s.save(out)
}

// UpdateSeen refreshes last_ip/last_seen for an already-trusted device.
func (s *TrustStore) UpdateSeen(deviceID, ip string, now time.Time) error {
	peers, err := s.load()
	if err != nil {
		return err
	}
	for i := range peers {
		if peers[i].DeviceID == deviceID {
			peers[i].LastIP = ip
			peers[i].LastSeen = now
			return s.save(peers)
		}
	}
	return nil
}

// IPOf returns the last known IP for deviceID, and whether it was found.
func (s *TrustStore) IPOf(deviceID string) (string, bool, error) {
	peers, err := s.load()
	if err != nil {
		return "", false, err
	}
	for _, p := range peers {
		if p.DeviceID == deviceID {
			return p.LastIP, true, nil
		}
	}
	return "", false, nil
}

// ByIP returns the trusted peer last seen at ip, if any.
func (s *TrustStore) ByIP(ip string) (Peer, bool, error) {
	peers, err := s.load()
	if err != nil {
		return Peer{}, false, err
	}
	for _, p := range peers {
		if p.LastIP == ip {
			return p, true, nil
		}
	}
	return Peer{}, false, nil
}

// List returns every trusted peer.
func (s *TrustStore) List() ([]Peer, error) {
	return s.load()
}
