// Package player pipes a raw audio stream into a local playback process
// (mpv by default) for the lifetime of one synthesis session.
package player

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// DefaultBinary is the playback binary looked up on PATH.
const DefaultBinary = "mpv"

// ErrNotInstalled reports that the playback binary is not on PATH. It is
// returned before any connection is opened so the caller can fail fast.
var ErrNotInstalled = errors.New("playback binary not found in PATH")

// Config holds configuration for the playback process.
type Config struct {
	Binary string   // Defaults to "mpv"; overridable for tests
	Args   []string // Defaults to flags disabling cache and the interactive UI
}

// Player owns one long-lived playback process. Audio chunks written to it
// stream to the process's stdin; Write blocks when the pipe is full, which
// is the session's playback back-pressure.
type Player struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	closeOnce sync.Once
	closeErr  error
}

// Installed reports whether the playback binary is discoverable on PATH.
func Installed(cfg Config) bool {
	_, err := exec.LookPath(binary(cfg))
	return err == nil
}

func binary(cfg Config) string {
	if cfg.Binary != "" {
		return cfg.Binary
	}
	return DefaultBinary
}

// Start launches the playback process reading raw audio from stdin.
// Local caching and the interactive UI are disabled so playback starts as
// soon as data arrives.
func Start(cfg Config) (*Player, error) {
	bin, err := exec.LookPath(binary(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotInstalled, binary(cfg))
	}

	args := cfg.Args
	if args == nil {
		args = []string{"--no-cache", "--no-terminal", "--", "fd://0"}
	}

	cmd := exec.Command(bin, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", bin, err)
	}

	return &Player{cmd: cmd, stdin: stdin}, nil
}

// Write streams one audio chunk to the playback process.
func (p *Player) Write(chunk []byte) (int, error) {
	return p.stdin.Write(chunk)
}

// Close closes the process's input stream and waits for it to exit. Safe to
// call on every exit path; the process is released exactly once.
func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		if err := p.stdin.Close(); err != nil {
			p.closeErr = err
		}
		if err := p.cmd.Wait(); err != nil && p.closeErr == nil {
			p.closeErr = err
		}
	})
	return p.closeErr
}
