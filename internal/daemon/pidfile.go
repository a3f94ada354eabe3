// Package daemon tracks a background server process through a PID file.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrRunning means the PID file names a live process.
	ErrRunning = errors.New("already running")
	// ErrNotRunning means there is no PID file or its process has exited.
	ErrNotRunning = errors.New("not running")
)

// pollInterval is how often Stop checks whether the process has exited.
const pollInterval = 100 * time.Millisecond

// PIDFile records the PID of a background process.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write records the current process's PID.
func (p *PIDFile) Write() error {
	return p.WritePID(os.Getpid())
}

// WritePID records pid, creating the parent directory if needed. The file is
// replaced atomically so readers never see a partial PID.
func (p *PIDFile) WritePID(pid int) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create PID directory: %w", err)
	}
	tmp := p.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.Path)
}

// Read returns the recorded PID.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file content %q", strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// Acquire checks that no live process holds the file and clears a stale one.
// It does not write a PID; callers record the process they start.
func (p *PIDFile) Acquire() error {
	if pid, running := p.IsRunning(); running {
		return fmt.Errorf("pid %d: %w", pid, ErrRunning)
	}
	if err := p.Remove(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale PID file: %w", err)
	}
	return nil
}

// Release removes the file only if it still names the current process.
func (p *PIDFile) Release() {
	if pid, err := p.Read(); err == nil && pid == os.Getpid() {
		_ = p.Remove()
	}
}

// Stop sends term and waits up to timeout for the process to exit, then
// sends kill. The PID file is removed once the process is gone.
func (p *PIDFile) Stop(timeout time.Duration, term, kill syscall.Signal) (int, error) {
	pid, running := p.IsRunning()
	if !running {
		if pid != 0 {
			_ = p.Remove()
		}
		return 0, ErrNotRunning
	}

	if err := p.Signal(term); err != nil {
		return pid, fmt.Errorf("signal pid %d: %w", pid, err)
	}
	if !p.waitExit(timeout) {
		if err := p.Signal(kill); err != nil {
			return pid, fmt.Errorf("kill pid %d: %w", pid, err)
		}
		p.waitExit(timeout)
	}
	_ = p.Remove()
	return pid, nil
}

// waitExit polls until the process is gone or timeout elapses.
func (p *PIDFile) waitExit(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, running := p.IsRunning(); !running {
			return true
		}
		time.Sleep(pollInterval)
	}
	_, running := p.IsRunning()
	return !running
}
