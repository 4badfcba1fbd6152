// Package protocol defines the control-plane message vocabulary shared
// by the daemon and its CLI clients, and the line framing used to carry
// it over the Unix domain socket: UTF-8 text, one JSON object per line,
// newline-terminated.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client-to-server message types.
const (
	TypePing    = "ping"
	TypeStatus  = "status"
	TypeChat    = "chat"
	TypeCommand = "command"
)

// Server-to-client message types.
const (
	TypePong            = "pong"
	TypeStatusResponse  = "status_response"
	TypeChatResponse    = "chat_response"
	TypeCommandResponse = "command_response"
	TypeError           = "error"
)

// Message is the wire envelope. Type is always set; the remaining
// fields are populated per message kind (see the Type* constants).
type Message struct {
	Type string `json:"type"`

	// SessionID identifies the logical caller for chat/command
	// requests and chat_response pushes (e.g. "terminal:1234").
	SessionID string `json:"sessionId,omitempty"`

	// Text carries chat input, chat_response output, and
	// command_response output.
	Text string `json:"text,omitempty"`

	// Command and Args carry an explicit slash-command invocation.
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`

	// Done marks a chat_response as the final chunk of its turn.
	Done bool `json:"done,omitempty"`

	// Message carries the human-readable error text for type "error".
	Message string `json:"message,omitempty"`

	// Status snapshot fields for status_response.
	Channels []string `json:"channels,omitempty"`
	Sessions int      `json:"sessions,omitempty"`
	Jobs     int      `json:"jobs,omitempty"`
	Uptime   string   `json:"uptime,omitempty"`
}

// Encode renders the message as one newline-terminated JSON line.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", msg.Type, err)
	}
	return append(data, '\n'), nil
}

// Decode parses one complete line into a message. The trailing newline
// may be present or already stripped.
func Decode(line []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return Message{}, fmt.Errorf("malformed message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("malformed message: missing type")
	}
	return msg, nil
}

// Error builds an error response.
func Error(text string) Message {
	return Message{Type: TypeError, Message: text}
}

// ChatResponse builds a chat_response for a session.
func ChatResponse(sessionID, text string, done bool) Message {
	return Message{Type: TypeChatResponse, SessionID: sessionID, Text: text, Done: done}
}

// CommandResponse builds a command_response.
func CommandResponse(text string) Message {
	return Message{Type: TypeCommandResponse, Text: text}
}
