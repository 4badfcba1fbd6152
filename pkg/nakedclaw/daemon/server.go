// server.go implements the control-socket server: a Unix domain
// socket carrying the line-delimited protocol, serving arbitrarily
// many concurrent CLI clients against one daemon process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/protocol"
	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/router"
)

// Server accepts control-socket connections and dispatches their
// requests through the router. Each connection is served by its own
// goroutine; requests on one connection are processed in arrival
// order.
type Server struct {
	socketPath string
	router     *router.Router
	logger     *slog.Logger

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	snapshotFn router.Snapshotter

	mu       sync.Mutex
	conns    map[*serverConn]bool
	sessions map[string]map[*serverConn]bool
}

// serverConn wraps one client connection with a write lock so pushes
// and responses never interleave mid-frame.
type serverConn struct {
	conn    net.Conn
	writeMu sync.Mutex

	// sessionIDs this connection has claimed via chat/command.
	sessionIDs map[string]bool
}

func (c *serverConn) write(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(data)
	return err
}

// NewServer creates a control-socket server.
func NewServer(socketPath string, rt *router.Router, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: socketPath,
		router:     rt,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		conns:      make(map[*serverConn]bool),
		sessions:   make(map[string]map[*serverConn]bool),
	}
}

// Start binds the socket and begins accepting connections. A socket
// file left behind by an unclean shutdown is removed before binding
// (the PID file check has already ruled out a live daemon).
func (s *Server) Start() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("binding control socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("restricting socket permissions: %w", err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("control socket listening", "path", s.socketPath)
	return nil
}

// Stop closes the listener and every client connection, then removes
// the socket file.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for c := range s.conns {
		c.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing socket file", "err", err)
	}
}

// ConnCount returns the number of connected clients.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Push delivers a server-initiated message to every connection that
// registered the session id. With no matching connection the push is
// dropped — there is no queuing.
func (s *Server) Push(sessionID string, msg protocol.Message) {
	s.mu.Lock()
	var targets []*serverConn
	for c := range s.sessions[sessionID] {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	if len(targets) == 0 {
		s.logger.Debug("push dropped, no connection for session", "session", sessionID)
		return
	}

	for _, c := range targets {
		if err := c.write(msg); err != nil {
			s.logger.Warn("push failed", "session", sessionID, "err", err)
		}
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "err", err)
			continue
		}

		c := &serverConn{conn: conn, sessionIDs: make(map[string]bool)}
		s.mu.Lock()
		s.conns[c] = true
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(c)
	}
}

// handleConn reads line frames off one connection and answers each
// with exactly one response. Malformed lines get an error response and
// the connection stays open; only socket-level failures end it.
func (s *Server) handleConn(c *serverConn) {
	defer s.wg.Done()
	defer s.dropConn(c)

	var reader protocol.LineReader
	buf := make([]byte, 4096)

	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			for _, line := range reader.Feed(buf[:n]) {
				resp := s.dispatch(c, line)
				if werr := c.write(resp); werr != nil {
					s.logger.Warn("response write failed", "err", werr)
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) dropConn(c *serverConn) {
	c.conn.Close()
	s.mu.Lock()
	delete(s.conns, c)
	for id := range c.sessionIDs {
		if set := s.sessions[id]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(s.sessions, id)
			}
		}
	}
	s.mu.Unlock()
}

// registerSession maps a claimed session id to the connection so a
// later asynchronous push can find it. Two connections claiming the
// same id are both registered and both receive pushes.
func (s *Server) registerSession(c *serverConn, sessionID string) {
	if sessionID == "" || c.sessionIDs[sessionID] {
		return
	}
	c.sessionIDs[sessionID] = true
	s.mu.Lock()
	if s.sessions[sessionID] == nil {
		s.sessions[sessionID] = make(map[*serverConn]bool)
	}
	s.sessions[sessionID][c] = true
	s.mu.Unlock()
}

// dispatch turns one complete line into exactly one response. Handler
// panics are contained here so a bad request cannot take down the
// daemon or other connections.
func (s *Server) dispatch(c *serverConn, line []byte) (resp protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("request handler panicked", "panic", r)
			resp = protocol.Error(fmt.Sprintf("internal error: %v", r))
		}
	}()

	msg, err := protocol.Decode(line)
	if err != nil {
		return protocol.Error(err.Error())
	}

	switch msg.Type {
	case protocol.TypePing:
		return protocol.Message{Type: protocol.TypePong}

	case protocol.TypeStatus:
		return s.statusResponse()

	case protocol.TypeChat:
		if msg.SessionID == "" || msg.Text == "" {
			return protocol.Error("chat requires sessionId and text")
		}
		s.registerSession(c, msg.SessionID)
		channel, sender := splitSessionID(msg.SessionID)
		reply, err := s.router.HandleChat(s.ctx, channel, sender, msg.Text)
		if err != nil {
			return protocol.Error(err.Error())
		}
		return protocol.ChatResponse(msg.SessionID, reply, true)

	case protocol.TypeCommand:
		if msg.SessionID == "" || msg.Command == "" {
			return protocol.Error("command requires sessionId and command")
		}
		s.registerSession(c, msg.SessionID)
		channel, sender := splitSessionID(msg.SessionID)
		out, err := s.router.HandleCommand(s.ctx, channel, sender, msg.Command, msg.Args)
		if err != nil {
			return protocol.Error(err.Error())
		}
		return protocol.CommandResponse(out)

	default:
		return protocol.Error(fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (s *Server) statusResponse() protocol.Message {
	snap := s.routerSnapshot()
	return protocol.Message{
		Type:     protocol.TypeStatusResponse,
		Channels: snap.Channels,
		Sessions: snap.Sessions,
		Jobs:     snap.Jobs,
		Uptime:   snap.Uptime.String(),
	}
}

// SetSnapshotter wires the live snapshot source for status responses.
func (s *Server) SetSnapshotter(fn router.Snapshotter) {
	s.snapshotFn = fn
}

func (s *Server) routerSnapshot() router.Snapshot {
	if s.snapshotFn == nil {
		return router.Snapshot{}
	}
	return s.snapshotFn()
}

// splitSessionID separates "channel:sender" at the first colon. A bare
// id becomes the sender on the terminal channel.
func splitSessionID(id string) (channel, sender string) {
	if idx := strings.IndexByte(id, ':'); idx > 0 {
		return id[:idx], id[idx+1:]
	}
	return "terminal", id
}
