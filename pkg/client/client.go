// Package client talks to an autotext server.
package client

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/japaniel/autotext/pkg/protocol"
)

// ErrNotConnected is returned after Close.
var ErrNotConnected = errors.New("client: not connected")

// Options tune a Client. Zero values select the defaults.
type Options struct {
	// Timeout bounds dialing and waiting for a response.
	Timeout     time.Duration
	DrainWindow time.Duration
	BufferSize  int
	// Linger is how long Close waits after announcing the disconnect, so the
	// server sees the announcement before the connection drops.
	Linger time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.DrainWindow <= 0 {
		o.DrainWindow = protocol.DefaultDrainWindow
	}
	if o.BufferSize <= 0 {
		o.BufferSize = protocol.DefaultBufferSize
	}
	if o.Linger <= 0 {
		o.Linger = 50 * time.Millisecond
	}
	return o
}

// Client is a connection to a server. Requests are serialized; a Client
// may be shared between goroutines.
type Client struct {
	opts Options

	mu   sync.Mutex
	conn net.Conn
	buf  []byte
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	d := net.Dialer{Timeout: opts.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{opts: opts, conn: conn, buf: make([]byte, opts.BufferSize)}, nil
}

// Get returns the server's suggestions for prefix, best first. A prefix
// containing whitespace would be rejected by the server, so it is refused
// locally.
func (c *Client) Get(prefix string) ([]string, error) {
	if prefix == "" || strings.ContainsFunc(prefix, unicode.IsSpace) {
		return nil, nil
	}
	resp, err := c.Send(protocol.FormatGet(prefix))
	if err != nil {
		return nil, err
	}
	return protocol.ParseResponse(resp), nil
}

// Send writes a raw command and returns the raw response.
func (c *Client) Send(msg string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return "", ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.Timeout)); err != nil {
		return "", err
	}
	if err := protocol.WriteFrame(c.conn, msg); err != nil {
		return "", err
	}
	frame, err := protocol.ReadFrame(c.conn, c.buf, c.opts.Timeout, c.opts.DrainWindow)
	if err != nil {
		return "", err
	}
	return string(frame), nil
}

// Close announces the disconnect, waits briefly and closes the connection.
// Closing twice is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil

	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.Timeout))
	if err := protocol.WriteFrame(conn, protocol.ClosedSentinel); err == nil {
		time.Sleep(c.opts.Linger)
	}
	return conn.Close()
}
