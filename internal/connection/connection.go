// Package connection loads and validates the connection file a Jupyter
// client hands to a kernel at startup, and derives channel addresses and the
// message signing key from it.
package connection

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"hash"
	"os"
)

// SchemeHMACSHA256 is the only signature scheme this kernel supports.
const SchemeHMACSHA256 = "hmac-sha256"

// Info is the parsed connection file. It is immutable once loaded; exactly
// one Info exists per kernel process.
type Info struct {
	ControlPort     int    `json:"control_port"`
	ShellPort       int    `json:"shell_port"`
	HeartbeatPort   int    `json:"hb_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	Transport       string `json:"transport"`
	IP              string `json:"ip"`
	Key             string `json:"key"`
	SignatureScheme string `json:"signature_scheme"`
	KernelName      string `json:"kernel_name,omitempty"`
}

// Load reads and validates a connection file.
func Load(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read connection file: %w", err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse connection file: %w", err)
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return &info, nil
}

// Validate checks that every field a kernel needs is present and usable.
func (i *Info) Validate() error {
	ports := map[string]int{
		"control_port": i.ControlPort,
		"shell_port":   i.ShellPort,
		"hb_port":      i.HeartbeatPort,
		"iopub_port":   i.IOPubPort,
		"stdin_port":   i.StdinPort,
	}
	for name, port := range ports {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid %s: %d", name, port)
		}
	}
	if i.Transport != "tcp" {
		return fmt.Errorf("unsupported transport: %q", i.Transport)
	}
	if i.IP == "" {
		return fmt.Errorf("connection file is missing ip")
	}
	if i.SignatureScheme != SchemeHMACSHA256 {
		return fmt.Errorf("unsupported signature scheme: %q", i.SignatureScheme)
	}
	if i.Key == "" {
		return fmt.Errorf("connection file is missing signing key")
	}
	return nil
}

// ShellAddr returns the shell channel bind address.
func (i *Info) ShellAddr() string { return i.addr(i.ShellPort) }

// ControlAddr returns the control channel bind address.
func (i *Info) ControlAddr() string { return i.addr(i.ControlPort) }

// IOPubAddr returns the IOPub channel bind address.
func (i *Info) IOPubAddr() string { return i.addr(i.IOPubPort) }

// HeartbeatAddr returns the heartbeat channel bind address.
func (i *Info) HeartbeatAddr() string { return i.addr(i.HeartbeatPort) }

func (i *Info) addr(port int) string {
	return fmt.Sprintf("%s://%s:%d", i.Transport, i.IP, port)
}

// SignerFactory returns a factory producing a freshly keyed HMAC-SHA256 per
// digest. HMAC state must not be reused across digests, so every call yields
// a new instance.
func (i *Info) SignerFactory() func() hash.Hash {
	key := []byte(i.Key)
	return func() hash.Hash {
		return hmac.New(sha256.New, key)
	}
}
