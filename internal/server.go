package internal

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ServerName is the sender used for lines typed on the server console.
const ServerName = "Server"

const acceptRetryDelay = 50 * time.Millisecond

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("chat server closed")

// Server accepts connections, runs the username handshake and feeds each
// session's lines to the Router.
type Server struct {
	cfg      Config
	registry *Registry
	router   *Router
	log      *logrus.Entry
	upgrader websocket.Upgrader

	mu        sync.Mutex
	closed    bool
	addr      net.Addr
	listeners map[net.Listener]struct{}
	sessions  map[*Session]struct{}
	wg        sync.WaitGroup
}

func NewServer(cfg Config, logger *logrus.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	history, err := NewHistory(cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	registry := NewRegistry()
	s := &Server{
		cfg:      cfg,
		registry: registry,
		router:   NewRouter(registry, history, logger.WithField("component", "router")),
		log:      logger.WithField("component", "listener"),
		upgrader: websocket.Upgrader{
			// browsers on any origin may join, names are the only identity
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		listeners: make(map[net.Listener]struct{}),
		sessions:  make(map[*Session]struct{}),
	}
	return s, nil
}

func (s *Server) Registry() *Registry { return s.registry }
func (s *Server) Router() *Router     { return s.router }

// Addr returns the address of the most recently served listener.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Listen binds the configured TCP address.
func (s *Server) Listen() (net.Listener, error) {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}
	return listener, nil
}

// Serve accepts connections on listener until it is closed.
// It always returns a non-nil error, ErrServerClosed after Close.
func (s *Server) Serve(listener net.Listener) error {
	if !s.trackListener(listener) {
		listener.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(listener)

	s.log.WithField("addr", listener.Addr().String()).Info("[OK] Server started")
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.WithError(err).Error("Failed to accept connection")
			time.Sleep(acceptRetryDelay)
			continue
		}
		go s.handleConnection(NewTCPLineConn(conn))
	}
}

// ServeHTTP upgrades the request to a websocket and runs it as a session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	s.handleConnection(NewWSLineConn(conn))
}

// Close stops every listener, closes all connections and waits for their
// goroutines to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	for listener := range s.listeners {
		if cerr := listener.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	for sess := range s.sessions {
		sess.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("Server stopped")
	return err
}

// Announce broadcasts body from the server console.
func (s *Server) Announce(body string) {
	s.router.Broadcast(ServerName, body)
}

// Kick closes the connection of name. The session then leaves as if the peer
// had hung up.
func (s *Server) Kick(name string) bool {
	sess, ok := s.registry.Lookup(name)
	if !ok {
		return false
	}
	sess.Close()
	return true
}

func (s *Server) handleConnection(conn LineConn) {
	sess := newSession(conn)
	if !s.trackSession(sess) {
		conn.Close()
		return
	}
	defer s.untrackSession(sess)

	log := s.log.WithFields(logrus.Fields{
		"session": sess.ID(),
		"remote":  conn.RemoteAddr().String(),
	})
	if !s.handshake(sess, log) {
		return
	}

	log = log.WithField("user", sess.Name())
	log.Infof("[OK] %s connected", sess.Name())
	s.router.BroadcastRoster()

	s.readLoop(sess, log)
	s.disconnect(sess, log)
}

// handshake reads the requested username and registers the session.
func (s *Server) handshake(sess *Session, log *logrus.Entry) bool {
	sess.setState(StateAuthenticating)
	line, err := sess.conn.ReadLine()
	name := strings.TrimSpace(line)
	if err != nil || name == "" {
		log.WithError(err).Debug("no username, dropping connection")
		sess.Close()
		sess.setState(StateClosed)
		return false
	}

	sess.name = name
	sess.joinTime = time.Now()
	sess.active.Store(true)
	// console announcements own ServerName
	if name == ServerName || !s.router.Join(name, sess, s.cfg.HistoryReplay) {
		sess.setState(StateRejected)
		log.WithField("user", name).Info("handshake rejected, username taken")
		reject := FormatMessage(Message{Type: MessageTypeError, Content: ReasonNameTaken})
		if err := sess.conn.WriteLine(reject); err != nil {
			log.WithError(err).Debug("failed to send handshake error")
		}
		sess.Close()
		sess.setState(StateClosed)
		return false
	}
	sess.setState(StateActive)
	return true
}

func (s *Server) readLoop(sess *Session, log *logrus.Entry) {
	for {
		line, err := sess.conn.ReadLine()
		if err != nil {
			log.WithError(err).Debug("read loop finished")
			return
		}

		cmd := ParseCommand(line)
		switch cmd.Kind {
		case CommandExit:
			return
		case CommandPrivate:
			s.router.SendPrivate(sess.Name(), cmd.Recipient, cmd.Body)
		case CommandMalformed:
			log.WithField("line", line).Debug("malformed private message dropped")
		default:
			s.router.Broadcast(sess.Name(), cmd.Body)
		}
	}
}

func (s *Server) disconnect(sess *Session, log *logrus.Entry) {
	sess.setState(StateDisconnecting)
	removed := s.registry.Remove(sess.Name())
	sess.Close()
	sess.setState(StateClosed)
	if !removed {
		return
	}
	log.Infof("[EXIT] %s disconnected", sess.Name())
	s.router.BroadcastRoster()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) trackListener(listener net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.listeners[listener] = struct{}{}
	s.addr = listener.Addr()
	return true
}

func (s *Server) untrackListener(listener net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, listener)
}

func (s *Server) trackSession(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrackSession(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	s.wg.Done()
}
