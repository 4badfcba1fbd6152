// lifecycle.go implements the operator side of process control:
// spawning the daemon detached from the launching shell, two-phase
// stop, and status with a live socket probe. Diagnostics are plain
// text pointed at the operator, not log records.
package daemon

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/config"
	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/protocol"
)

const (
	// startPollInterval and startPollAttempts bound how long Start
	// waits for the spawned daemon to confirm liveness.
	startPollInterval = 200 * time.Millisecond
	startPollAttempts = 25

	// stopGracePeriod is how long Stop waits after SIGTERM before
	// escalating to SIGKILL.
	stopGracePeriod = 5 * time.Second

	// statusTimeout bounds the live snapshot query.
	statusTimeout = 3 * time.Second
)

// Manager drives the daemon lifecycle from the CLI process.
type Manager struct {
	cfg        *config.Config
	configPath string
	out        io.Writer
}

// NewManager creates a lifecycle manager. configPath is forwarded to
// the spawned daemon so both processes resolve the same state dir; out
// receives operator-facing messages (defaults to stdout).
func NewManager(cfg *config.Config, configPath string, out io.Writer) *Manager {
	if out == nil {
		out = os.Stdout
	}
	return &Manager{cfg: cfg, configPath: configPath, out: out}
}

// Start spawns the daemon as a detached background process and waits
// for it to confirm liveness. A daemon that is already running is a
// no-op with a status message, not an error.
func (m *Manager) Start() error {
	if running, pid := IsRunning(m.cfg.PIDFilePath()); running {
		fmt.Fprintf(m.out, "Daemon already running (pid %d).\n", pid)
		return nil
	}

	if err := m.cfg.EnsureStateDir(); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable: %w", err)
	}

	logFile, err := os.OpenFile(m.cfg.LogFilePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening daemon log: %w", err)
	}
	defer logFile.Close()

	args := []string{"serve"}
	if m.configPath != "" {
		args = append(args, "--config", m.configPath)
	}

	cmd := exec.Command(exe, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	// New session: the daemon survives this shell's exit and never
	// receives its terminal signals.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawning daemon: %w", err)
	}
	spawnedPID := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("detaching daemon: %w", err)
	}

	for i := 0; i < startPollAttempts; i++ {
		time.Sleep(startPollInterval)
		if running, pid := IsRunning(m.cfg.PIDFilePath()); running {
			fmt.Fprintf(m.out, "Daemon started (pid %d).\n", pid)
			return nil
		}
	}

	return fmt.Errorf("daemon (spawned pid %d) did not come up; check %s",
		spawnedPID, m.cfg.LogFilePath())
}

// Stop terminates the daemon: SIGTERM first so the shutdown hook runs
// (socket closed, state flushed), then SIGKILL if it hasn't exited
// within the grace period. Calling Stop with no daemon running prints
// a notice and signals nothing.
func (m *Manager) Stop() error {
	running, pid := IsRunning(m.cfg.PIDFilePath())
	if !running {
		fmt.Fprintln(m.out, "Daemon not running.")
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding daemon process %d: %w", pid, err)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			fmt.Fprintln(m.out, "Daemon not running.")
			return nil
		}
		return fmt.Errorf("signaling daemon %d: %w", pid, err)
	}

	deadline := time.Now().Add(stopGracePeriod)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			fmt.Fprintf(m.out, "Daemon stopped (pid %d).\n", pid)
			return nil
		}
		time.Sleep(startPollInterval)
	}

	// Graceful window elapsed: guarantee termination.
	if err := proc.Signal(syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("force-killing daemon %d: %w", pid, err)
	}
	// The killed daemon never ran its shutdown hook; clean up its
	// record so the next start is not blocked by a stale file.
	RemovePIDFile(m.cfg.PIDFilePath())
	fmt.Fprintf(m.out, "Daemon did not exit in %s; killed (pid %d).\n", stopGracePeriod, pid)
	return nil
}

// Restart stops the daemon if running, then starts it. Sequential.
func (m *Manager) Restart() error {
	if err := m.Stop(); err != nil {
		return err
	}
	return m.Start()
}

// Status reports running/not-running and, when the control socket is
// reachable, a live snapshot. Snapshot failures degrade to a notice
// rather than an error.
func (m *Manager) Status() error {
	running, pid := IsRunning(m.cfg.PIDFilePath())
	if !running {
		fmt.Fprintln(m.out, "Daemon not running.")
		return nil
	}
	fmt.Fprintf(m.out, "Daemon running (pid %d).\n", pid)

	client, err := protocol.Dial(m.cfg.SocketPath())
	if err != nil {
		fmt.Fprintf(m.out, "Could not query daemon: %v\n", err)
		return nil
	}
	defer client.Close()

	resp, err := client.Request(protocol.Message{Type: protocol.TypeStatus}, statusTimeout)
	if err != nil || resp.Type != protocol.TypeStatusResponse {
		fmt.Fprintln(m.out, "Could not query daemon status.")
		return nil
	}

	channels := "none"
	if len(resp.Channels) > 0 {
		channels = strings.Join(resp.Channels, ", ")
	}
	fmt.Fprintf(m.out, "Channels: %s\nSessions: %d\nJobs: %d\nUptime: %s\n",
		channels, resp.Sessions, resp.Jobs, resp.Uptime)
	return nil
}

// Logs prints the last n lines of the daemon log file.
func (m *Manager) Logs(n int) error {
	data, err := os.ReadFile(m.cfg.LogFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(m.out, "No log file yet.")
			return nil
		}
		return fmt.Errorf("reading daemon log: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, line := range lines {
		fmt.Fprintln(m.out, line)
	}
	return nil
}
