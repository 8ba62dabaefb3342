package connection

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConnectionFile = `{
	"control_port": 50160,
	"shell_port": 57503,
	"hb_port": 57504,
	"iopub_port": 40885,
	"stdin_port": 52597,
	"transport": "tcp",
	"ip": "127.0.0.1",
	"key": "abc",
	"signature_scheme": "hmac-sha256",
	"kernel_name": "echo"
}`

func writeConnectionFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kernel-1234.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	info, err := Load(writeConnectionFile(t, validConnectionFile))
	require.NoError(t, err)

	assert.Equal(t, "tcp://127.0.0.1:57503", info.ShellAddr())
	assert.Equal(t, "tcp://127.0.0.1:50160", info.ControlAddr())
	assert.Equal(t, "tcp://127.0.0.1:40885", info.IOPubAddr())
	assert.Equal(t, "tcp://127.0.0.1:57504", info.HeartbeatAddr())
	assert.Equal(t, "echo", info.KernelName)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestValidateRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Info)
	}{
		{"zero shell port", func(i *Info) { i.ShellPort = 0 }},
		{"out of range port", func(i *Info) { i.ControlPort = 70000 }},
		{"non-tcp transport", func(i *Info) { i.Transport = "ipc" }},
		{"missing ip", func(i *Info) { i.IP = "" }},
		{"missing key", func(i *Info) { i.Key = "" }},
		{"unknown scheme", func(i *Info) { i.SignatureScheme = "hmac-md5" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Load(writeConnectionFile(t, validConnectionFile))
			require.NoError(t, err)
			tt.mutate(info)
			assert.Error(t, info.Validate())
		})
	}
}

func TestSignerFactoryFreshInstances(t *testing.T) {
	info, err := Load(writeConnectionFile(t, validConnectionFile))
	require.NoError(t, err)

	factory := info.SignerFactory()

	first := factory()
	first.Write([]byte("hello"))
	sumAfterWrite := first.Sum(nil)

	// A fresh instance must not carry over digest state.
	second := factory()
	second.Write([]byte("hello"))
	assert.Equal(t, sumAfterWrite, second.Sum(nil))

	third := factory()
	third.Write([]byte("other"))
	assert.NotEqual(t, sumAfterWrite, third.Sum(nil))
}
