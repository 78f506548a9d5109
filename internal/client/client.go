// Package client speaks the chat line protocol from the user's side.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"chatrelay/internal"
)

const inboxSize = 64

var (
	// ErrRejected is returned by Dial when the server refuses the username.
	ErrRejected = errors.New("handshake rejected")
	// ErrInvalidField is returned when a value would break the line grammar.
	ErrInvalidField = errors.New("invalid protocol field")
)

// Client is one connected chat participant.
// Messages must be drained, an unread inbox eventually stalls the server.
type Client struct {
	name     string
	conn     net.Conn
	lines    internal.LineConn
	messages chan internal.Message
	quit     chan struct{}
	done     chan struct{}
	quitOnce sync.Once

	mu     sync.RWMutex
	roster []string
	err    error
}

// Dial connects to addr and requests name. A refused name yields an error
// wrapping ErrRejected and the server's reason.
func Dial(ctx context.Context, addr, name string) (*Client, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, ":,\r\n") {
		return nil, fmt.Errorf("%w: username %q", ErrInvalidField, name)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not connect to server: %w", err)
	}
	lines := internal.NewTCPLineConn(conn)

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if err := lines.WriteLine(name); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send username: %w", err)
	}
	first, err := lines.ReadLine()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read handshake reply: %w", err)
	}
	conn.SetDeadline(time.Time{})

	if strings.HasPrefix(first, internal.PrefixError) {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrRejected, strings.TrimPrefix(first, internal.PrefixError))
	}

	c := &Client{
		name:     name,
		conn:     conn,
		lines:    lines,
		messages: make(chan internal.Message, inboxSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop(first)
	return c, nil
}

func (c *Client) Name() string { return c.name }

// Messages delivers decoded server lines. It is closed when the connection ends.
func (c *Client) Messages() <-chan internal.Message { return c.messages }

// Roster returns the other users from the latest roster line.
func (c *Client) Roster() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.roster)
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Send broadcasts body to every user.
func (c *Client) Send(body string) error {
	if strings.ContainsAny(body, "\r\n") {
		return fmt.Errorf("%w: body contains a line break", ErrInvalidField)
	}
	return c.lines.WriteLine(body)
}

// SendPrivate delivers body to recipient only.
func (c *Client) SendPrivate(recipient, body string) error {
	if recipient == "" || strings.ContainsAny(recipient, ":,\r\n") {
		return fmt.Errorf("%w: recipient %q", ErrInvalidField, recipient)
	}
	if strings.ContainsAny(body, "\r\n") {
		return fmt.Errorf("%w: body contains a line break", ErrInvalidField)
	}
	return c.lines.WriteLine(internal.PrivateRequest(recipient, body))
}

// Exit asks the server to end the session. The server then closes the connection.
func (c *Client) Exit() error {
	return c.lines.WriteLine(internal.CommandExitLine)
}

// Done is closed once the read loop has finished.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close drops the connection and waits for the read loop.
func (c *Client) Close() error {
	c.quitOnce.Do(func() { close(c.quit) })
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) readLoop(first string) {
	defer func() {
		close(c.messages)
		close(c.done)
	}()

	line := first
	for {
		if msg, err := internal.ParseServerLine(line); err == nil {
			if msg.Type == internal.MessageTypeRoster {
				c.setRoster(msg.Users)
			}
			select {
			case c.messages <- msg:
			case <-c.quit:
				return
			}
		}

		var err error
		line, err = c.lines.ReadLine()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
			}
			return
		}
	}
}

func (c *Client) setRoster(users []string) {
	others := make([]string, 0, len(users))
	for _, u := range users {
		if u != c.name {
			others = append(others, u)
		}
	}
	c.mu.Lock()
	c.roster = others
	c.mu.Unlock()
}
