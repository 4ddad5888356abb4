// Package sandbox launches WebAssembly modules as child processes
// through an external WASI runtime executable, per §4.3. It never
// forwards the parent's environment or network capability to the
// child, and only preopens host directories that actually exist.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrSandboxUnavailable is returned when the runtime binary was
	// absent at startup and the driver is in Disabled state.
	ErrSandboxUnavailable = errors.New("sandbox unavailable")
)

// Config configures the driver.
type Config struct {
	// RuntimeBinary is the WASI runtime executable name or path
	// (e.g. "wasmtime"). Resolved via exec.LookPath at construction.
	RuntimeBinary string
	// Timeout bounds a single Exec call. Zero means unbounded, matching
	// the specification's "caller's responsibility" default; callers
	// that want a bound should set this explicitly.
	Timeout time.Duration
}

// Driver runs WASI modules, entering a Disabled state at construction
// if the configured runtime binary cannot be found, mirroring the
// Firecracker-availability check the executor pool performs at startup.
type Driver struct {
	runtimePath string
	disabled    bool
	timeout     time.Duration
}

// New resolves the runtime binary and returns a Driver. It never
// returns an error: an absent runtime produces a Disabled driver
// instead, so startup can proceed in degraded mode. A nil logger
// defaults to slog.Default().
func New(cfg Config, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	path, err := exec.LookPath(cfg.RuntimeBinary)
	if err != nil {
		logger.Warn("wasmtime not found in PATH, WASI tools disabled",
			"install", "curl https://wasmtime.dev/install.sh -sSf | bash")
		return &Driver{disabled: true, timeout: cfg.Timeout}
	}
	return &Driver{runtimePath: path, timeout: cfg.Timeout}
}

// Disabled reports whether the driver has no usable runtime.
func (d *Driver) Disabled() bool {
	return d.disabled
}

// Exec runs module with input on stdin, preopening every directory in
// preopens that exists, and returns stdout on success.
func (d *Driver) Exec(ctx context.Context, module string, input []byte, preopens []string) ([]byte, error) {
	if d.disabled {
		return nil, ErrSandboxUnavailable
	}
	if filepath.Ext(module) != ".wasm" {
		return nil, fmt.Errorf("module %q is not a .wasm file", module)
	}
	if _, err := os.Stat(module); err != nil {
		return nil, fmt.Errorf("module %q does not exist: %w", module, err)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	args := []string{"run"}
	for _, dir := range preopens {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		args = append(args, "--dir="+dir)
	}
	args = append(args, module)

	cmd := exec.CommandContext(ctx, d.runtimePath, args...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = []string{} // no environment variables forwarded to the guest

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("sandbox error: %s", strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
