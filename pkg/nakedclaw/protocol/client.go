package protocol

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client is a line-framed connection to the daemon's control socket.
// Incoming messages (responses and server-initiated pushes alike) are
// delivered on a single channel; turn discipline is the caller's
// concern.
type Client struct {
	conn     net.Conn
	incoming chan Message
	done     chan struct{}

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// Dial connects to the control socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon: %w", err)
	}

	c := &Client{
		conn:     conn,
		incoming: make(chan Message, 16),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Messages returns the stream of incoming messages. The channel is
// closed when the connection drops.
func (c *Client) Messages() <-chan Message {
	return c.incoming
}

// Done is closed when the read loop exits (connection lost or closed).
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Send writes one message as a single framed line.
func (c *Client) Send(msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("writing to daemon: %w", err)
	}
	return nil
}

// Request sends one message and waits for the next incoming message,
// bounded by timeout. Intended for short-lived connections (ping,
// status) where no pushes can interleave.
func (c *Client) Request(msg Message, timeout time.Duration) (Message, error) {
	if err := c.Send(msg); err != nil {
		return Message{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-c.incoming:
		if !ok {
			return Message{}, fmt.Errorf("connection closed before response")
		}
		return resp, nil
	case <-timer.C:
		return Message{}, fmt.Errorf("timed out after %s waiting for %s response", timeout, msg.Type)
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.incoming)

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		msg, err := Decode(scanner.Bytes())
		if err != nil {
			// A server speaking garbage is unrecoverable for a client;
			// drop the line and keep reading.
			continue
		}
		c.incoming <- msg
	}
}
