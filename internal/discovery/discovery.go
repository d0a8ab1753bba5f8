// Package discovery implements the UDP broadcast probe/response used to
// locate a known peer's current LAN address.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Port is the default UDP discovery port.
const Port = 9528

// DefaultTimeout bounds how long Find waits for a matching response.
const DefaultTimeout = 5 * time.Second

type probe struct {
	Type           string `json:"type"`
	TargetDeviceID string `json:"target_device_id"`
	SenderDeviceID string `json:"sender_device_id"`
}

type response struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id"`
	Hostname string `json:"hostname"`
	IP       string `json:"ip"`
}

// Listener answers discovery probes addressed to selfDeviceID.
type Listener struct {
	selfDeviceID string
	hostname     string
	conn         *net.UDPConn
	done         chan struct{}
}

// Listen opens a UDP socket on port with SO_BROADCAST and SO_REUSEADDR set,
// replying to probes that name selfDeviceID (or carry no target at all).
func Listen(port int, selfDeviceID, hostname string) (*Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sockErr != nil {
					return
				}
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("discovery: listen: %w", err)
	}
	return &Listener{
		selfDeviceID: selfDeviceID,
		hostname:     hostname,
		conn:         pc.(*net.UDPConn),
		done:         make(chan struct{}),
	}, nil
}

// Serve processes incoming datagrams until Stop is called.
func (l *Listener) Serve() {
	buf := make([]byte, 4096)
	for {
		select {
		case <-l.done:
			return
		default:
		}
		l.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		var p probe
		if err := json.Unmarshal(buf[:n], &p); err != nil || p.Type != "discover" {
			continue
		}
		if p.TargetDeviceID != "" && p.TargetDeviceID != l.selfDeviceID {
			continue
		}
		l.reply(addr)
	}
}

func (l *Listener) reply(to *net.UDPAddr) {
	ip := LocalIP()
	resp := response{Type: "discover_response", DeviceID: l.selfDeviceID, Hostname: l.hostname, IP: ip}
	body, err := json.Marshal(resp)
	if err != nil {
		return
	}
	l.conn.WriteToUDP(body, to)
}

// Stop closes the listening socket.
func (l *Listener) Stop() error {
	close(l.done)
	return l.conn.Close()
}

// Find broadcasts a discovery probe for targetDeviceID and returns the
// first matching responder's IP, or ("", false) on timeout.
func Find(port int, selfDeviceID, targetDeviceID string, timeout time.Duration) (string, bool, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return "", false, fmt.Errorf("discovery: open probe socket: %w", err)
	}
	conn := pc.(*net.UDPConn)
	defer conn.Close()

	dst, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("255.255.255.255:%d", port))
	if err != nil {
		return "", false, err
	}
	body, err := json.Marshal(probe{Type: "discover", TargetDeviceID: targetDeviceID, SenderDeviceID: selfDeviceID})
	if err != nil {
		return "", false, err
	}
	if _, err := conn.WriteToUDP(body, dst); err != nil {
		return "", false, err
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 4096)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", false, nil
		}
		conn.SetReadDeadline(time.Now().Add(remaining))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return "", false, nil
		}
		var resp response
		if err := json.Unmarshal(buf[:n], &resp); err != nil || resp.Type != "discover_response" {
			continue
		}
		if resp.DeviceID == targetDeviceID {
			return resp.IP, true, nil
		}
	}
}

// LocalIP determines this host's LAN-facing address by connecting a UDP
// socket to a public address and reading its local endpoint, falling back
// to loopback if that fails.
func LocalIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}
