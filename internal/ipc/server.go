package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/gildo/accentd/internal/logging"
)

// Inbound is one decoded message paired with a reply sink, handed to the
// supervisor's single inbound queue so every client's messages are
// serialized through the same dispatch point the spec requires.
type Inbound struct {
	Msg   Message
	Reply func(Message) error
}

// Server accepts control-plane connections on a Unix socket and forwards
// every decoded message to a single channel for the supervisor to drain.
type Server struct {
	path     string
	listener *net.UnixListener
	inbound  chan Inbound
	logger   *logging.Logger

	mu      sync.Mutex
	clients map[*client]struct{}

	requireSameUID bool
}

type client struct {
	conn net.Conn
	w    *bufio.Writer
	mu   sync.Mutex
}

func (c *client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := Encode(c.w, msg); err != nil {
		return err
	}
	return c.w.Flush()
}

// NewServer binds a Unix socket at path. Any stale socket file left by a
// previous instance is cleaned up first, matching the teacher's
// precedent of refusing to start on top of a genuinely live listener.
func NewServer(path string, requireSameUID bool, logger *logging.Logger) (*Server, error) {
	if IsSocketListening(path) {
		return nil, fmt.Errorf("socket %s already has an active listener", path)
	}
	if err := CleanupSocket(path); err != nil {
		return nil, fmt.Errorf("clean up stale socket %s: %w", path, err)
	}

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("resolve socket address %s: %w", path, err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	if err := SetSocketPermissions(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("set permissions on %s: %w", path, err)
	}

	return &Server{
		path:           path,
		listener:       listener,
		inbound:        make(chan Inbound, 64),
		logger:         logger,
		clients:        make(map[*client]struct{}),
		requireSameUID: requireSameUID,
	}, nil
}

// Inbound returns the channel of decoded client messages.
func (s *Server) Inbound() <-chan Inbound {
	return s.inbound
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		if s.requireSameUID {
			if ok, err := VerifyPeerIsCurrentUser(conn); err != nil || !ok {
				s.logger.Warn("rejecting control-plane connection from different user", "error", err)
				conn.Close()
				continue
			}
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	c := &client{conn: conn, w: bufio.NewWriter(conn)}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		conn.Close()
	}()

	r := bufio.NewReader(conn)
	for {
		msg, err := Decode(r)
		if err != nil {
			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				s.logger.Debug("control-plane parse error", "error", err)
				if sendErr := c.send(Error(ErrParseError, err.Error())); sendErr != nil {
					return
				}
				continue
			}
			if err != io.EOF {
				s.logger.Debug("control-plane read error", "error", err)
			}
			return
		}

		done := make(chan struct{})
		s.inbound <- Inbound{
			Msg: msg,
			Reply: func(reply Message) error {
				err := c.send(reply)
				close(done)
				return err
			},
		}
		<-done
	}
}

// Broadcast sends msg to every currently connected client (used to push
// PopupShow/PopupHide to whichever client is acting as the popup).
func (s *Server) Broadcast(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		_ = c.send(msg)
	}
}

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}
