// Package install writes a kernelspec into Jupyter's kernel registry so
// frontends can discover and launch this kernel. It is pure file glue; no
// protocol logic lives here.
package install

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Spec is the kernel.json document Jupyter reads from a kernelspec
// directory. Argv must contain the {connection_file} placeholder, which the
// client replaces with the path of the connection file at launch.
type Spec struct {
	Argv          []string          `json:"argv"`
	DisplayName   string            `json:"display_name"`
	Language      string            `json:"language"`
	InterruptMode string            `json:"interrupt_mode,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewSpec builds a spec launching the given executable with the run
// subcommand. Interrupts are delivered as interrupt_request messages on the
// control channel, not signals.
func NewSpec(executable, displayName, language string) *Spec {
	return &Spec{
		Argv:          []string{executable, "run", "{connection_file}"},
		DisplayName:   displayName,
		Language:      language,
		InterruptMode: "message",
	}
}

// Install writes the spec into the kernels directory under the given name
// and returns the kernelspec directory path. With user set, the per-user
// Jupyter data directory is used; otherwise the system-wide one.
func Install(spec *Spec, name string, user bool) (string, error) {
	base, err := kernelsDir(user)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create kernelspec directory: %w", err)
	}

	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal kernel.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "kernel.json"), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write kernel.json: %w", err)
	}
	return dir, nil
}

// kernelsDir resolves the Jupyter kernels directory, honoring JUPYTER_DATA_DIR.
func kernelsDir(user bool) (string, error) {
	if dataDir := os.Getenv("JUPYTER_DATA_DIR"); dataDir != "" {
		return filepath.Join(dataDir, "kernels"), nil
	}
	if !user {
		if runtime.GOOS == "darwin" {
			return "/usr/local/share/jupyter/kernels", nil
		}
		return "/usr/share/jupyter/kernels", nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Jupyter", "kernels"), nil
	}
	return filepath.Join(home, ".local", "share", "jupyter", "kernels"), nil
}
