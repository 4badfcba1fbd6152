// chat.go implements the interactive REPL client: one long-lived
// control-socket connection, one request in flight at a time.
package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/config"
	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/protocol"
)

// newChatCmd creates the `nakedclaw chat` command.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the assistant",
		Long: `Chat with the running daemon. With a message argument, send it and
print the reply. Without arguments, open an interactive session.

Slash commands (/reset, /status, /schedule, /jobs, /cancel, ...) are
forwarded to the daemon; /help and /quit are handled locally.

Examples:
  nakedclaw chat "what's on my agenda today?"
  nakedclaw chat`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// Fail fast with an instructive message instead of a dial error.
	if _, err := os.Stat(cfg.SocketPath()); err != nil {
		return fmt.Errorf("daemon is not running (no socket at %s) — start it with: nakedclaw start", cfg.SocketPath())
	}

	client, err := protocol.Dial(cfg.SocketPath())
	if err != nil {
		return err
	}
	defer client.Close()

	sessionID := "terminal:" + strconv.Itoa(os.Getpid())

	if len(args) > 0 {
		return chatOnce(client, sessionID, args[0])
	}
	return chatREPL(cfg, client, sessionID)
}

// chatOnce sends a single message and prints the reply.
func chatOnce(client *protocol.Client, sessionID, text string) error {
	msg := buildRequest(sessionID, text)
	resp, err := client.Request(msg, 60*time.Second)
	if err != nil {
		return err
	}
	fmt.Println(renderResponse(resp))
	return nil
}

const localHelp = `Local commands:
  /help   this text
  /quit   leave the chat (the daemon keeps running)
Anything else starting with / is sent to the daemon (try /status,
/jobs, /schedule). Plain text is chat.`

// chatREPL runs the interactive loop. One request is in flight at a
// time: input typed while waiting gets a notice, not a queue slot.
func chatREPL(cfg *config.Config, client *protocol.Client, sessionID string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".nakedclaw_history"),
		HistoryLimit:    200,
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("Connected to %s. /help for commands, /quit to leave.\n", cfg.Name)

	// waiting is set while a request is outstanding.
	var waiting atomic.Bool

	// All incoming traffic — responses and asynchronous pushes alike —
	// is printed as it arrives.
	go func() {
		for msg := range client.Messages() {
			fmt.Fprintln(rl.Stdout(), renderResponse(msg))
			waiting.Store(false)
			rl.Refresh()
		}
		// Connection gone: unblock Readline so the loop exits.
		fmt.Fprintln(rl.Stdout(), "Connection to daemon closed.")
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		switch input {
		case "/quit", "/exit":
			fmt.Println("Bye.")
			return nil
		case "/help":
			fmt.Println(localHelp)
			continue
		}

		if waiting.Load() {
			fmt.Println("Still waiting for the previous reply...")
			continue
		}

		if err := client.Send(buildRequest(sessionID, input)); err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		waiting.Store(true)
	}
}

// buildRequest maps REPL input to a protocol message: slash input
// becomes a command, everything else is chat.
func buildRequest(sessionID, input string) protocol.Message {
	if strings.HasPrefix(input, "/") {
		fields := strings.Fields(input)
		return protocol.Message{
			Type:      protocol.TypeCommand,
			SessionID: sessionID,
			Command:   fields[0],
			Args:      fields[1:],
		}
	}
	return protocol.Message{
		Type:      protocol.TypeChat,
		SessionID: sessionID,
		Text:      input,
	}
}

// renderResponse formats a server message for the terminal.
func renderResponse(msg protocol.Message) string {
	switch msg.Type {
	case protocol.TypeChatResponse:
		return msg.Text
	case protocol.TypeCommandResponse:
		return msg.Text
	case protocol.TypeStatusResponse:
		return fmt.Sprintf("Channels: %s\nSessions: %d\nJobs: %d\nUptime: %s",
			strings.Join(msg.Channels, ", "), msg.Sessions, msg.Jobs, msg.Uptime)
	case protocol.TypePong:
		return "pong"
	case protocol.TypeError:
		return "Error: " + msg.Message
	default:
		return fmt.Sprintf("(unexpected %s message)", msg.Type)
	}
}
