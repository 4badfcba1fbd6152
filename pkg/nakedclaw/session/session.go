// Package session implements the durable conversation store: one
// append-only JSONL transcript file per session key. A session key is
// the composite "{channel}:{sanitizedSender}" naming one conversation.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one transcript record.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel,omitempty"`
	Sender    string    `json:"sender,omitempty"`
}

// Info holds read-only metadata for one persisted session.
type Info struct {
	Key          string
	MessageCount int
	LastModified time.Time
}

// Store persists transcripts as one append-only JSONL file per session
// key. Records are never rewritten; reads return a bounded tail.
type Store struct {
	dir      string
	maxTurns int
	logger   *slog.Logger
}

// NewStore creates a session store rooted at dir. Reads return at most
// 2*maxTurns most-recent messages.
func NewStore(dir string, maxTurns int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxTurns <= 0 {
		return nil, fmt.Errorf("maxTurns must be positive, got %d", maxTurns)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sessions directory: %w", err)
	}
	return &Store{dir: dir, maxTurns: maxTurns, logger: logger}, nil
}

// Key builds a session key from a channel and sender. The sender is
// sanitized so the key is safe as a file name.
func Key(channel, sender string) string {
	return channel + ":" + Sanitize(sender)
}

// Sanitize maps any rune outside [A-Za-z0-9._-] to '_' so identifiers
// coming off the wire cannot escape the sessions directory.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Append writes one record to the session's log. Prior records are
// never rewritten. Fails only on storage errors; the caller surfaces
// the error to the user and does not retry.
func (s *Store) Append(key string, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	f, err := os.OpenFile(s.logPath(key), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening session log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending to session log: %w", err)
	}
	return nil
}

// Read returns up to 2*maxTurns most-recent messages for the session,
// oldest discarded first. A missing log is a valid steady state and
// returns an empty result with no error. Unparseable lines are skipped
// with a warning so one corrupt record does not poison the transcript.
func (s *Store) Read(key string) ([]Message, error) {
	f, err := os.Open(s.logPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening session log: %w", err)
	}
	defer f.Close()

	limit := 2 * s.maxTurns
	var messages []Message

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.logger.Warn("skipping corrupt session record", "session", key, "err", err)
			continue
		}
		messages = append(messages, msg)
		if len(messages) > limit {
			// Keep only the most recent window while scanning so a
			// long transcript does not balloon memory.
			messages = messages[len(messages)-limit:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading session log: %w", err)
	}

	return messages, nil
}

// Clear deletes the session's log file. Idempotent: clearing a session
// that has no log is not an error.
func (s *Store) Clear(key string) error {
	err := os.Remove(s.logPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing session log: %w", err)
	}
	return nil
}

// List enumerates persisted sessions, sorted by key.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	var infos []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), ".jsonl")
		info := Info{Key: key}
		if fi, err := entry.Info(); err == nil {
			info.LastModified = fi.ModTime()
		}
		info.MessageCount = s.countLines(filepath.Join(s.dir, entry.Name()))
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Count returns the number of persisted sessions.
func (s *Store) Count() int {
	infos, err := s.List()
	if err != nil {
		return 0
	}
	return len(infos)
}

func (s *Store) countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			n++
		}
	}
	return n
}

// logPath maps a session key to its transcript file. The key itself is
// sanitized again as defense against callers passing raw identifiers.
func (s *Store) logPath(key string) string {
	return filepath.Join(s.dir, Sanitize(key)+".jsonl")
}
