// Package daemon hosts the long-running assistant process: the
// composition root owning the session store, scheduler, router, and
// control-socket server, plus the PID-file lifecycle used by the CLI
// to manage it. All state is held on the Daemon struct — there are no
// package-level registries.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/config"
	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/protocol"
	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/router"
	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/scheduler"
	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/session"
)

// shutdownTimeout bounds graceful teardown before the process exits
// regardless.
const shutdownTimeout = 10 * time.Second

// Daemon is the composition root for one assistant process.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	sessions  *session.Store
	scheduler *scheduler.Scheduler
	router    *router.Router
	server    *Server

	jobStorageCloser func() error

	startTime time.Time

	ctx    context.Context
	cancel context.CancelFunc

	hbMu      sync.Mutex
	hbEnabled bool
	hbStop    chan struct{}
}

// New assembles a daemon from config. Nothing is started yet.
func New(cfg *config.Config, agent router.Agent, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.EnsureStateDir(); err != nil {
		return nil, err
	}

	sessions, err := session.NewStore(cfg.SessionsDir(), cfg.MaxTurns, logger)
	if err != nil {
		return nil, err
	}

	var storage scheduler.JobStorage
	var closer func() error
	switch cfg.Scheduler.Backend {
	case "sqlite":
		sqlStorage, err := scheduler.NewSQLiteJobStorage(cfg.JobsDBPath())
		if err != nil {
			return nil, err
		}
		storage = sqlStorage
		closer = sqlStorage.Close
	case "file", "":
		fileStorage, err := scheduler.NewFileJobStorage(cfg.JobsFilePath())
		if err != nil {
			return nil, err
		}
		storage = fileStorage
	default:
		return nil, fmt.Errorf("unknown scheduler backend %q", cfg.Scheduler.Backend)
	}

	if agent == nil {
		agent = &router.EchoAgent{Name: cfg.Name}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		cfg:              cfg,
		logger:           logger,
		sessions:         sessions,
		jobStorageCloser: closer,
		ctx:              ctx,
		cancel:           cancel,
	}

	d.scheduler = scheduler.New(storage, d.onJobFired, logger)
	d.router = router.New(sessions, d.scheduler, agent, logger)
	d.router.SetSnapshotter(d.Snapshot)
	d.router.SetHeartbeatToggle(d.toggleHeartbeat)

	d.server = NewServer(cfg.SocketPath(), d.router, logger)
	d.server.SetSnapshotter(d.Snapshot)

	return d, nil
}

// Start claims the PID file, rehydrates the scheduler, and binds the
// control socket. Fails if another daemon already holds the record.
func (d *Daemon) Start() error {
	if running, pid := IsRunning(d.cfg.PIDFilePath()); running {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}
	if err := WritePIDFile(d.cfg.PIDFilePath()); err != nil {
		return err
	}

	if err := d.scheduler.Start(); err != nil {
		RemovePIDFile(d.cfg.PIDFilePath())
		return err
	}
	if err := d.server.Start(); err != nil {
		d.scheduler.Stop()
		RemovePIDFile(d.cfg.PIDFilePath())
		return err
	}

	d.startTime = time.Now()
	if d.cfg.Heartbeat.Enabled {
		d.toggleHeartbeat()
	}

	d.logger.Info("daemon started",
		"pid", os.Getpid(),
		"socket", d.cfg.SocketPath(),
		"scheduler_backend", d.cfg.Scheduler.Backend)
	return nil
}

// Stop tears everything down in reverse order and removes the PID
// file. Safe to call once after a successful Start.
func (d *Daemon) Stop() {
	d.cancel()

	d.hbMu.Lock()
	if d.hbEnabled {
		close(d.hbStop)
		d.hbEnabled = false
	}
	d.hbMu.Unlock()

	d.server.Stop()
	d.scheduler.Stop()
	if d.jobStorageCloser != nil {
		if err := d.jobStorageCloser(); err != nil {
			d.logger.Warn("closing job storage", "err", err)
		}
	}
	if err := RemovePIDFile(d.cfg.PIDFilePath()); err != nil {
		d.logger.Warn("removing PID file", "err", err)
	}

	d.logger.Info("daemon stopped")
}

// Wait blocks until SIGINT or SIGTERM, then shuts down gracefully,
// bounded by shutdownTimeout.
func (d *Daemon) Wait() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	d.logger.Info("shutdown signal received", "signal", received.String())

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		d.logger.Error("graceful shutdown timed out, exiting anyway")
	}
}

// Snapshot reports the live daemon state for /status and the status
// protocol message.
func (d *Daemon) Snapshot() router.Snapshot {
	return router.Snapshot{
		Channels: []string{"terminal"},
		Sessions: d.sessions.Count(),
		Jobs:     d.scheduler.Count(),
		Uptime:   time.Since(d.startTime),
	}
}

// onJobFired is the scheduler's fire callback: record the reminder in
// the session transcript and push it to any connected client that has
// claimed the session. Without a connected client the push is dropped.
func (d *Daemon) onJobFired(job *scheduler.Job) {
	key, text, err := d.router.DeliverReminder(job)
	if err != nil {
		d.logger.Error("recording reminder", "job_id", job.ID, "err", err)
	}

	// Clients register the raw sessionId they send; the push must use
	// the same form, not the sanitized transcript key.
	sessionID := job.Channel + ":" + job.Sender
	d.server.Push(sessionID, protocol.ChatResponse(sessionID, text, true))
	d.logger.Info("job fired", "job_id", job.ID, "session", key)
}

// toggleHeartbeat flips the heartbeat ticker, returning the new state.
func (d *Daemon) toggleHeartbeat() bool {
	d.hbMu.Lock()
	defer d.hbMu.Unlock()

	if d.hbEnabled {
		close(d.hbStop)
		d.hbEnabled = false
		d.logger.Info("heartbeat disabled")
		return false
	}

	d.hbStop = make(chan struct{})
	d.hbEnabled = true
	interval := time.Duration(d.cfg.Heartbeat.IntervalMinutes) * time.Minute
	go d.heartbeatLoop(interval, d.hbStop)
	d.logger.Info("heartbeat enabled", "interval", interval)
	return true
}

func (d *Daemon) heartbeatLoop(interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reply, err := d.router.HandleHeartbeat(d.ctx)
			if err != nil {
				d.logger.Warn("heartbeat failed", "err", err)
				continue
			}
			d.logger.Info("heartbeat", "reply", reply)
		case <-stop:
			return
		case <-d.ctx.Done():
			return
		}
	}
}
