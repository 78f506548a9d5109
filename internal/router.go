package internal

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Router delivers broadcast, private and roster lines to registered sessions.
//
// Every delivery happens inside one exclusive section, so all sessions observe
// broadcasts in history order. The price is that a recipient whose connection
// blocks on write stalls every other sender until the write returns.
type Router struct {
	mu       sync.Mutex
	registry *Registry
	history  *History
	total    int
	now      func() time.Time
	log      *logrus.Entry
}

func NewRouter(registry *Registry, history *History, logger *logrus.Entry) *Router {
	return &Router{
		registry: registry,
		history:  history,
		now:      time.Now,
		log:      logger,
	}
}

// Broadcast sends body from sender to every registered session, the sender included.
func (r *Router) Broadcast(sender, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := FormatMessage(Message{
		Type:      MessageTypeBroadcast,
		From:      sender,
		Content:   body,
		Timestamp: r.now(),
	})
	r.history.Push(line)
	r.total++
	r.log.WithField("from", sender).Debug(line)

	for _, s := range r.registry.Sessions() {
		r.deliver(s, line)
	}
}

// SendPrivate delivers body to recipient and an acknowledgment to sender.
// Either side that is not registered is skipped without notice.
func (r *Router) SendPrivate(sender, recipient, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.total++
	fields := logrus.Fields{"from": sender, "to": recipient}

	if to, ok := r.registry.Lookup(recipient); ok {
		r.deliver(to, FormatMessage(Message{
			Type:      MessageTypePrivate,
			From:      sender,
			Content:   body,
			Timestamp: now,
		}))
		r.log.WithFields(fields).Debug("private message (private)")
	} else {
		r.log.WithFields(fields).Debug("recipient offline, private message dropped")
	}

	if from, ok := r.registry.Lookup(sender); ok {
		r.deliver(from, FormatMessage(Message{
			Type:      MessageTypeSent,
			To:        recipient,
			Content:   body,
			Timestamp: now,
		}))
	}
}

// RosterSnapshot formats the current registry contents as a roster line.
func (r *Router) RosterSnapshot() string {
	return FormatMessage(Message{Type: MessageTypeRoster, Users: r.registry.Snapshot()})
}

// BroadcastRoster sends the same roster line to every registered session.
func (r *Router) BroadcastRoster() {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := r.RosterSnapshot()
	for _, s := range r.registry.Sessions() {
		r.deliver(s, line)
	}
}

// Join registers s under name and sends it the last n history lines.
// Both happen inside the delivery section, so every broadcast reaches s
// exactly once: replayed if it came before the join, live otherwise.
func (r *Router) Join(name string, s *Session, n int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.registry.TryRegister(name, s) {
		return false
	}
	if n <= 0 {
		return true
	}
	for _, line := range r.history.Tail(n) {
		r.deliver(s, line)
	}
	return true
}

// Stats returns the total number of routed messages and of registered clients.
func (r *Router) Stats() (messages, clients int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total, r.registry.Len()
}

// History returns up to n of the most recent broadcast lines.
func (r *Router) History(n int) []string {
	return r.history.Tail(n)
}

func (r *Router) deliver(s *Session, line string) {
	if err := s.Send(line); err != nil {
		// the session's own read loop notices the broken connection
		r.log.WithError(err).WithField("user", s.Name()).Debug("send failed, line dropped")
	}
}
