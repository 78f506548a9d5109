package internal

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is a step of the connection lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateDisconnecting
	StateClosed
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

var errSessionInactive = errors.New("session is not active")

// Session represents one accepted connection.
// The goroutine running its read loop owns the underlying connection.
type Session struct {
	id       string
	name     string
	conn     LineConn
	joinTime time.Time

	active    atomic.Bool
	state     atomic.Int32
	closeOnce sync.Once
}

func newSession(conn LineConn) *Session {
	s := &Session{
		id:   uuid.NewString(),
		conn: conn,
	}
	s.setState(StateConnecting)
	return s
}

func (s *Session) ID() string          { return s.id }
func (s *Session) Name() string        { return s.name }
func (s *Session) JoinTime() time.Time { return s.joinTime }
func (s *Session) Active() bool        { return s.active.Load() }
func (s *Session) State() State        { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Send writes one line to the peer. Lines for an inactive session are dropped.
func (s *Session) Send(line string) error {
	if !s.active.Load() {
		return errSessionInactive
	}
	return s.conn.WriteLine(line)
}

// Close marks the session inactive and closes its connection, which makes a
// blocked ReadLine fail. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.active.Store(false)
		err = s.conn.Close()
	})
	return err
}
