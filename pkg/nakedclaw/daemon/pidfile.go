// pidfile.go implements the single-instance process record: a plain
// text file holding the daemon's decimal PID. Existence plus a live
// process at that PID means "running"; a file naming a dead PID is a
// stale artifact treated as "not running".
package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// WritePIDFile records the current process id.
func WritePIDFile(path string) error {
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(pid+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	return nil
}

// ReadPIDFile returns the recorded PID, or 0 with an error when the
// file is absent or unparseable.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file %s: %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// RemovePIDFile deletes the process record. Idempotent.
func RemovePIDFile(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing PID file: %w", err)
	}
	return nil
}

// IsRunning reports whether the PID file names a live process, and
// which PID. Unreadable or stale files mean "not running"; the file is
// never deleted here — the daemon removes its own record on clean
// shutdown.
func IsRunning(pidFilePath string) (bool, int) {
	pid, err := ReadPIDFile(pidFilePath)
	if err != nil {
		return false, 0
	}
	if !processAlive(pid) {
		return false, pid
	}
	return true, pid
}

// processAlive probes a PID with the null signal: no signal is
// delivered, but the kernel still performs the existence check.
// EPERM means the process exists under another owner.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
