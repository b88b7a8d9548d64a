// Package wsclient provides WebSocket dispatch for workers, with an
// explicit per-address connection registry owned by the scenario.
package wsclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SendError marks a failure while writing to the socket, so telemetry can
// distinguish it from a receive failure.
type SendError struct{ Err error }

func (e *SendError) Error() string { return fmt.Sprintf("websocket send failed: %v", e.Err) }
func (e *SendError) Unwrap() error { return e.Err }

// ReceiveError marks a failure while reading from the socket.
type ReceiveError struct{ Err error }

func (e *ReceiveError) Error() string { return fmt.Sprintf("websocket receive failed: %v", e.Err) }
func (e *ReceiveError) Unwrap() error { return e.Err }

// Config bounds the client's handshake and per-message deadlines.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
}

// Client is one WebSocket connection to one target address. Exchange holds
// the connection for a full send/receive pair, so concurrent workers
// dispatching against the same address take turns rather than interleaving
// frames.
type Client struct {
	url    string
	cfg    Config
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a client for the given address. The connection is not
// opened until Connect.
func NewClient(url string, cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		url: url,
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("already connected")
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	c.conn = conn
	return nil
}

// Exchange sends one text message and waits for one response. Failures are
// wrapped in *SendError or *ReceiveError depending on where they occurred.
func (c *Client) Exchange(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, &SendError{Err: fmt.Errorf("not connected")}
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, &SendError{Err: err}
	}

	deadline = time.Now().Add(c.cfg.ReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = c.conn.SetReadDeadline(deadline)
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, &ReceiveError{Err: err}
	}
	return data, nil
}

// Close closes the WebSocket connection gracefully. Safe to call when the
// connection was never opened or is already closed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second),
	)
	closeErr := c.conn.Close()
	c.conn = nil

	if err != nil {
		return err
	}
	return closeErr
}
