package daemon

import (
	"strings"
	"testing"
	"time"

	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/protocol"
)

func TestDaemonStartStop(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	d, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The PID file now names this test process.
	if running, _ := IsRunning(cfg.PIDFilePath()); !running {
		t.Error("daemon started but IsRunning reports false")
	}

	// A second instance over the same state dir must refuse.
	d2, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New (second): %v", err)
	}
	if err := d2.Start(); err == nil {
		d2.Stop()
		t.Fatal("second Start over a live PID file succeeded")
	}

	// End to end through the real socket.
	client, err := protocol.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	resp, err := client.Request(protocol.Message{
		Type:      protocol.TypeCommand,
		SessionID: "terminal:1",
		Command:   "/schedule",
		Args:      []string{"in", "2", "hours", "tea"},
	}, 3*time.Second)
	if err != nil {
		t.Fatalf("schedule over socket: %v", err)
	}
	if resp.Type != protocol.TypeCommandResponse || !strings.Contains(resp.Text, "one-shot") {
		t.Errorf("schedule response = %+v", resp)
	}

	resp, err = client.Request(protocol.Message{Type: protocol.TypeStatus}, 3*time.Second)
	if err != nil {
		t.Fatalf("status over socket: %v", err)
	}
	if resp.Jobs != 1 {
		t.Errorf("status Jobs = %d, want 1", resp.Jobs)
	}
	client.Close()

	d.Stop()

	// Clean shutdown removes both host-local artifacts.
	if running, _ := IsRunning(cfg.PIDFilePath()); running {
		t.Error("PID file still live after Stop")
	}
	if _, err := protocol.Dial(cfg.SocketPath()); err == nil {
		t.Error("socket still accepting after Stop")
	}
}

func TestDaemonJobFirePushesToClient(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	d, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	client, err := protocol.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	// Claim the session, then schedule a near-term one-shot on it.
	if _, err := client.Request(protocol.Message{
		Type:      protocol.TypeChat,
		SessionID: "terminal:7",
		Text:      "hi",
	}, 3*time.Second); err != nil {
		t.Fatalf("chat: %v", err)
	}

	if _, err := client.Request(protocol.Message{
		Type:      protocol.TypeCommand,
		SessionID: "terminal:7",
		Command:   "/schedule",
		Args:      []string{"in", "1", "second", "stand", "up"},
	}, 3*time.Second); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-client.Messages():
			if msg.Type == protocol.TypeChatResponse && strings.Contains(msg.Text, "stand up") {
				if msg.SessionID != "terminal:7" {
					t.Errorf("push sessionId = %q", msg.SessionID)
				}
				return
			}
		case <-deadline:
			t.Fatal("reminder push never arrived")
		}
	}
}
