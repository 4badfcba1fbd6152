// Package router dispatches incoming messages: slash commands go to
// their handlers, free text goes to the agent. Scheduled jobs and
// heartbeats travel the same path without a socket client attached.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/scheduler"
	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/session"
)

// Agent produces a reply for free-form input. The LLM behind it is an
// external collaborator; the router only needs this contract.
type Agent interface {
	Respond(ctx context.Context, sessionKey, text string) (string, error)
}

// Snapshot is the live daemon state reported by /status.
type Snapshot struct {
	Channels []string
	Sessions int
	Jobs     int
	Uptime   time.Duration
}

// Snapshotter supplies the daemon snapshot to the /status handler.
type Snapshotter func() Snapshot

// HeartbeatToggle flips the heartbeat ticker and reports the new state.
type HeartbeatToggle func() bool

// Router owns command dispatch for one daemon process.
type Router struct {
	sessions  *session.Store
	scheduler *scheduler.Scheduler
	agent     Agent
	snapshot  Snapshotter
	heartbeat HeartbeatToggle
	logger    *slog.Logger
}

// New creates a router. snapshot and heartbeat may be nil until the
// composition root wires them.
func New(sessions *session.Store, sched *scheduler.Scheduler, agent Agent, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		sessions:  sessions,
		scheduler: sched,
		agent:     agent,
		logger:    logger,
	}
}

// SetSnapshotter wires the /status snapshot source.
func (r *Router) SetSnapshotter(fn Snapshotter) { r.snapshot = fn }

// SetHeartbeatToggle wires the /heartbeat control.
func (r *Router) SetHeartbeatToggle(fn HeartbeatToggle) { r.heartbeat = fn }

// HandleChat routes free text for one sender through the agent,
// appending both sides of the exchange to the session transcript.
// Storage failures propagate; the caller renders them as "Error: ...".
func (r *Router) HandleChat(ctx context.Context, channel, sender, text string) (string, error) {
	key := session.Key(channel, sender)

	err := r.sessions.Append(key, session.Message{
		Role:    session.RoleUser,
		Content: text,
		Channel: channel,
		Sender:  sender,
	})
	if err != nil {
		return "", err
	}

	reply, err := r.agent.Respond(ctx, key, text)
	if err != nil {
		return "", fmt.Errorf("agent: %w", err)
	}

	err = r.sessions.Append(key, session.Message{
		Role:    session.RoleAssistant,
		Content: reply,
		Channel: channel,
	})
	if err != nil {
		return "", err
	}

	return reply, nil
}

// HandleCommand dispatches one slash command. The returned string is
// always user-facing text; unknown commands get usage help rather than
// an error.
func (r *Router) HandleCommand(ctx context.Context, channel, sender, command string, args []string) (string, error) {
	command = strings.TrimPrefix(strings.ToLower(command), "/")

	switch command {
	case "help":
		return helpText, nil
	case "reset":
		return r.cmdReset(channel, sender)
	case "status":
		return r.cmdStatus(), nil
	case "schedule":
		return r.cmdSchedule(channel, sender, args)
	case "jobs":
		return r.cmdJobs(), nil
	case "cancel":
		return r.cmdCancel(args)
	case "sessions":
		return r.cmdSessions()
	case "heartbeat":
		return r.cmdHeartbeat(), nil
	default:
		return fmt.Sprintf("Unknown command /%s. Try /help.", command), nil
	}
}

// DeliverReminder records a fired job in its session transcript and
// returns the session key and reminder text for push delivery.
func (r *Router) DeliverReminder(job *scheduler.Job) (string, string, error) {
	key := session.Key(job.Channel, job.Sender)
	text := "Reminder: " + job.Message

	err := r.sessions.Append(key, session.Message{
		Role:    session.RoleAssistant,
		Content: text,
		Channel: job.Channel,
	})
	if err != nil {
		return key, text, err
	}
	return key, text, nil
}

// HandleHeartbeat routes a synthetic system message through the agent.
func (r *Router) HandleHeartbeat(ctx context.Context) (string, error) {
	return r.agent.Respond(ctx, "system:heartbeat", "heartbeat check")
}

const helpText = `Commands:
  /reset                    clear this session's transcript
  /status                   daemon snapshot (channels, sessions, jobs, uptime)
  /schedule <spec> <text>   schedule a reminder ("in 5 minutes", "at 9:30",
                            "every day at 08:00", "every 2 hours", or cron)
  /jobs                     list scheduled jobs
  /cancel <id>              cancel a job (id prefix accepted)
  /sessions                 list persisted sessions
  /heartbeat                toggle the periodic heartbeat
  /help                     this text`

func (r *Router) cmdReset(channel, sender string) (string, error) {
	key := session.Key(channel, sender)
	if err := r.sessions.Clear(key); err != nil {
		return "", err
	}
	return "Session cleared.", nil
}

func (r *Router) cmdStatus() string {
	if r.snapshot == nil {
		return "Status unavailable."
	}
	snap := r.snapshot()
	channels := "none"
	if len(snap.Channels) > 0 {
		channels = strings.Join(snap.Channels, ", ")
	}
	return fmt.Sprintf("Channels: %s\nSessions: %d\nJobs: %d\nUptime: %s",
		channels, snap.Sessions, snap.Jobs, snap.Uptime.Round(time.Second))
}

const scheduleUsage = `Usage: /schedule <spec> <text>
Specs: "in 5 minutes", "at 9:30pm", "every day at 08:00", "every 2 hours",
or a raw cron expression.`

// cmdSchedule splits args into the longest leading spec that parses,
// with the remainder as the reminder text. "in 5 minutes drink water"
// schedules "drink water" in five minutes.
func (r *Router) cmdSchedule(channel, sender string, args []string) (string, error) {
	if len(args) < 2 {
		return scheduleUsage, nil
	}

	now := time.Now()
	for split := len(args) - 1; split >= 1; split-- {
		specText := strings.Join(args[:split], " ")
		spec, ok := scheduler.ParseSpec(specText, now)
		if !ok {
			continue
		}

		message := strings.Join(args[split:], " ")
		job, err := r.scheduler.AddJob(spec, specText, message, channel, sender)
		if err != nil {
			return "", err
		}

		when := "?"
		if job.NextRunAt != nil {
			when = job.NextRunAt.Format("2006-01-02 15:04:05")
		}
		kind := "recurring"
		if job.OneShot {
			kind = "one-shot"
		}
		return fmt.Sprintf("Scheduled %s job %s (%s) — next run %s.",
			kind, shortID(job.ID), job.Name, when), nil
	}

	return scheduleUsage, nil
}

func (r *Router) cmdJobs() string {
	jobs := r.scheduler.ListJobs()
	if len(jobs) == 0 {
		return "No scheduled jobs."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d scheduled job(s):\n", len(jobs))
	for _, job := range jobs {
		kind := "recurring"
		if job.OneShot {
			kind = "one-shot"
		}
		next := "?"
		if job.NextRunAt != nil {
			next = job.NextRunAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(&b, "  %s  [%s] %q — %s, next %s\n",
			shortID(job.ID), kind, job.Message, job.Name, next)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Router) cmdCancel(args []string) (string, error) {
	if len(args) != 1 {
		return "Usage: /cancel <id>", nil
	}

	id := args[0]
	if r.scheduler.RemoveJob(id) {
		return fmt.Sprintf("Job %s cancelled.", shortID(id)), nil
	}

	// Accept an unambiguous id prefix, as listed by /jobs.
	var match string
	for _, job := range r.scheduler.ListJobs() {
		if strings.HasPrefix(job.ID, id) {
			if match != "" {
				return fmt.Sprintf("Job id %q is ambiguous.", id), nil
			}
			match = job.ID
		}
	}
	if match != "" && r.scheduler.RemoveJob(match) {
		return fmt.Sprintf("Job %s cancelled.", shortID(match)), nil
	}
	return fmt.Sprintf("No job with id %q.", id), nil
}

func (r *Router) cmdSessions() (string, error) {
	infos, err := r.sessions.List()
	if err != nil {
		return "", err
	}
	if len(infos) == 0 {
		return "No persisted sessions.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d session(s):\n", len(infos))
	for _, info := range infos {
		fmt.Fprintf(&b, "  %s — %d message(s)\n", info.Key, info.MessageCount)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (r *Router) cmdHeartbeat() string {
	if r.heartbeat == nil {
		return "Heartbeat unavailable."
	}
	if r.heartbeat() {
		return "Heartbeat enabled."
	}
	return "Heartbeat disabled."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
