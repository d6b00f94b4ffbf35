package alerts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Heartbeat timings. A dedicated worker touches the file every
// BeatInterval; any other process treats the file as live while its
// mtime is younger than StaleAfter and skips its own checks.
const (
	BeatInterval = 5 * time.Second
	StaleAfter   = 20 * time.Second
)

// Heartbeat is the file-based liveness marker for the alert worker.
// The file content is the owning pid; the mtime is the liveness signal.
type Heartbeat struct {
	path   string
	logger *slog.Logger
}

// NewHeartbeat creates a heartbeat over the given file path.
func NewHeartbeat(path string, logger *slog.Logger) *Heartbeat {
	return &Heartbeat{path: path, logger: logger}
}

// Beat writes this process's pid and refreshes the mtime.
func (h *Heartbeat) Beat() error {
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return fmt.Errorf("create heartbeat dir: %w", err)
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(h.path, []byte(pid), 0o644); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return nil
}

// Release removes the heartbeat file if this process owns it.
func (h *Heartbeat) Release() error {
	pid, err := h.ownerPID()
	if err != nil {
		return nil
	}
	if pid != os.Getpid() {
		return nil
	}
	return os.Remove(h.path)
}

func (h *Heartbeat) ownerPID() (int, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse heartbeat pid: %w", err)
	}
	return pid, nil
}

// ShouldCheck decides whether this process should run alert checks
// itself. It returns false while another process holds a fresh
// heartbeat. A stale file does not block checks; it is additionally
// removed, but only once the recorded pid is confirmed dead, so a
// worker that is merely wedged keeps its marker.
func (h *Heartbeat) ShouldCheck() bool {
	info, err := os.Stat(h.path)
	if os.IsNotExist(err) {
		return true
	}
	if err != nil {
		h.logger.Warn("heartbeat stat failed", "path", h.path, "error", err)
		return true
	}

	age := time.Since(info.ModTime())
	if age < StaleAfter {
		return false
	}

	if pid, err := h.ownerPID(); err == nil && !pidAlive(pid) {
		h.logger.Info("removing stale heartbeat", "path", h.path, "pid", pid, "age", age.Round(time.Second))
		if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
			h.logger.Warn("stale heartbeat removal failed", "path", h.path, "error", err)
		}
	}
	return true
}

// pidAlive probes the pid with signal 0. On unix FindProcess always
// succeeds, so the signal probe is the actual existence test.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to someone else.
	return err == syscall.EPERM
}
