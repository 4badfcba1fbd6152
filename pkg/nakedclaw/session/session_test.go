package session

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T, maxTurns int) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), maxTurns, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestAppendReadBack(t *testing.T) {
	t.Parallel()

	const maxTurns = 3 // Read-back window is 2*3 = 6 messages.
	tests := []struct {
		name     string
		appended int
		want     int
	}{
		{"empty", 0, 0},
		{"below window", 4, 4},
		{"exactly window", 6, 6},
		{"above window", 10, 6},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newTestStore(t, maxTurns)
			key := Key("terminal", "alice")

			for i := 0; i < tt.appended; i++ {
				msg := Message{Role: RoleUser, Content: fmt.Sprintf("msg-%d", i)}
				if err := store.Append(key, msg); err != nil {
					t.Fatalf("Append(%d): %v", i, err)
				}
			}

			got, err := store.Read(key)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("Read returned %d messages, want %d", len(got), tt.want)
			}

			// The window keeps the most recent records in original order.
			first := tt.appended - tt.want
			for i, msg := range got {
				want := fmt.Sprintf("msg-%d", first+i)
				if msg.Content != want {
					t.Errorf("message %d = %q, want %q", i, msg.Content, want)
				}
			}
		})
	}
}

func TestReadMissingSession(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 5)

	msgs, err := store.Read(Key("terminal", "nobody"))
	if err != nil {
		t.Fatalf("Read on missing session: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("Read on missing session returned %d messages, want 0", len(msgs))
	}
}

func TestClearIdempotent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 5)
	key := Key("terminal", "bob")

	// Clear with no log at all.
	if err := store.Clear(key); err != nil {
		t.Fatalf("Clear on absent session: %v", err)
	}

	if err := store.Append(key, Message{Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Clear(key); err != nil {
		t.Fatalf("Clear after append: %v", err)
	}
	// And again after it is already gone.
	if err := store.Clear(key); err != nil {
		t.Fatalf("second Clear: %v", err)
	}

	msgs, err := store.Read(key)
	if err != nil {
		t.Fatalf("Read after clear: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("Read after clear returned %d messages, want 0", len(msgs))
	}
}

func TestCorruptLineSkipped(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 5)
	key := Key("terminal", "carol")

	if err := store.Append(key, Message{Role: RoleUser, Content: "before"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Inject a garbage line between two valid records.
	path := filepath.Join(store.dir, Sanitize(key)+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("opening log: %v", err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatalf("writing garbage: %v", err)
	}
	f.Close()

	if err := store.Append(key, Message{Role: RoleAssistant, Content: "after"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	msgs, err := store.Read(key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Read returned %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "before" || msgs[1].Content != "after" {
		t.Errorf("unexpected contents: %q, %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"alice", "alice"},
		{"+55 11 99999-0000", "_55_11_99999-0000"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"user@host", "user_host"},
		{"ok.name_1-2", "ok.name_1-2"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestList(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 5)

	for _, sender := range []string{"zoe", "adam"} {
		key := Key("terminal", sender)
		for i := 0; i < 2; i++ {
			if err := store.Append(key, Message{Role: RoleUser, Content: "x"}); err != nil {
				t.Fatalf("Append: %v", err)
			}
		}
	}

	infos, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List returned %d sessions, want 2", len(infos))
	}
	// Sorted by key.
	if infos[0].Key != "terminal_adam" || infos[1].Key != "terminal_zoe" {
		t.Errorf("unexpected keys: %q, %q", infos[0].Key, infos[1].Key)
	}
	for _, info := range infos {
		if info.MessageCount != 2 {
			t.Errorf("session %s has %d messages, want 2", info.Key, info.MessageCount)
		}
	}
}
