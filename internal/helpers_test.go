package internal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	dialTimeout    = 2 * time.Second
	messageTimeout = 2 * time.Second
	silenceTimeout = 200 * time.Millisecond
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// recordConn is an in-memory LineConn that keeps every written line.
type recordConn struct {
	mu     sync.Mutex
	lines  []string
	fail   bool
	closed bool
}

func (c *recordConn) ReadLine() (string, error) { return "", io.EOF }

func (c *recordConn) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return errors.New("broken pipe")
	}
	c.lines = append(c.lines, line)
	return nil
}

func (c *recordConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (c *recordConn) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// activeSession builds a session that already passed the handshake.
func activeSession(name string) (*Session, *recordConn) {
	conn := &recordConn{}
	s := newSession(conn)
	s.name = name
	s.joinTime = time.Now()
	s.active.Store(true)
	s.setState(StateActive)
	return s, conn
}

type TestClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newTestClient(t *testing.T, address string) *TestClient {
	t.Helper()
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.Dial("tcp", address)
	if err != nil {
		t.Fatalf("could not connect to server: %v", err)
	}
	c := &TestClient{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
	t.Cleanup(c.close)
	return c
}

// login sends name and waits for the roster that confirms registration.
func (c *TestClient) login(t *testing.T, name string) {
	t.Helper()
	if err := c.sendMessage(name); err != nil {
		t.Fatalf("send name %s: %v", name, err)
	}
	if err := c.expectMessage(PrefixUsers); err != nil {
		t.Fatalf("login %s: %v", name, err)
	}
}

func (c *TestClient) nextLine(timeout time.Duration) (string, error) {
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

// expectMessage skips lines until one contains expected.
func (c *TestClient) expectMessage(expected string) error {
	for {
		line, err := c.nextLine(messageTimeout)
		if err != nil {
			return fmt.Errorf("failed to read message waiting for %q: %v", expected, err)
		}
		if strings.Contains(line, expected) {
			return nil
		}
	}
}

// expectLine requires the very next line to match pattern.
func (c *TestClient) expectLine(pattern string) (string, error) {
	line, err := c.nextLine(messageTimeout)
	if err != nil {
		return "", fmt.Errorf("failed to read message: %v", err)
	}
	if !regexp.MustCompile(pattern).MatchString(line) {
		return line, fmt.Errorf("line %q does not match %s", line, pattern)
	}
	return line, nil
}

func (c *TestClient) expectSilence() error {
	line, err := c.nextLine(silenceTimeout)
	if err == nil {
		return fmt.Errorf("unexpected line %q", line)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil
	}
	return fmt.Errorf("unexpected read error: %v", err)
}

// expectClosed drains pending lines until the server hangs up.
func (c *TestClient) expectClosed() error {
	for {
		_, err := c.nextLine(messageTimeout)
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("connection still open")
		}
		// EOF or reset by peer
		return nil
	}
}

func (c *TestClient) sendMessage(message string) error {
	_, err := c.conn.Write([]byte(message + "\n"))
	return err
}

func (c *TestClient) close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

func setupTestServer(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	cfg.LogFile = ""
	server, err := NewServer(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go server.Serve(listener)
	t.Cleanup(func() { server.Close() })
	return server, listener.Addr().String()
}

// waitFor polls cond until it holds or the message timeout expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(messageTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

const clockRe = `\d\d:\d\d:\d\d`
