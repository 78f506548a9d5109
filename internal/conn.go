package internal

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// LineConn carries protocol lines over some transport.
// ReadLine is called by a single goroutine, WriteLine may be called concurrently.
type LineConn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() net.Addr
}

type tcpLineConn struct {
	conn   net.Conn
	reader *bufio.Reader
	wmu    sync.Mutex
}

// NewTCPLineConn wraps a stream connection into newline-delimited lines.
func NewTCPLineConn(conn net.Conn) LineConn {
	return &tcpLineConn{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *tcpLineConn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		// an unterminated last line still counts
		if err == io.EOF && line != "" {
			return trimEOL(line), nil
		}
		return "", err
	}
	return trimEOL(line), nil
}

func (c *tcpLineConn) WriteLine(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

func (c *tcpLineConn) Close() error         { return c.conn.Close() }
func (c *tcpLineConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

type wsLineConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// NewWSLineConn treats every text frame of a websocket as one line.
func NewWSLineConn(conn *websocket.Conn) LineConn {
	return &wsLineConn{conn: conn}
}

func (c *wsLineConn) ReadLine() (string, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return trimEOL(string(data)), nil
	}
}

func (c *wsLineConn) WriteLine(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *wsLineConn) Close() error         { return c.conn.Close() }
func (c *wsLineConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
