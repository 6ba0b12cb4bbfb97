package chain

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnConfig configures a single WebSocket RPC connection.
type ConnConfig struct {
	URL          string        // JSON-RPC WebSocket endpoint
	WriteTimeout time.Duration // Write deadline for sends
	PingInterval time.Duration // Keepalive ping cadence
	BufferSize   int           // Inbound frame channel capacity
}

// DefaultConnConfig returns sensible defaults.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
		BufferSize:   4096,
	}
}

// Conn is one WebSocket connection to the RPC node. It reads frames into
// a buffered channel and surfaces transport errors on a separate channel;
// reconnect policy lives in the Subscriber, not here.
type Conn struct {
	cfg    ConnConfig
	logger *slog.Logger

	ws *websocket.Conn

	frames chan []byte
	errs   chan error
	done   chan struct{}

	writeMu sync.Mutex

	mu        sync.RWMutex
	connected bool
	closed    bool
}

// NewConn creates an unconnected Conn.
func NewConn(cfg ConnConfig, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		cfg:    cfg,
		logger: logger,
		frames: make(chan []byte, cfg.BufferSize),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Dial establishes the WebSocket connection and starts the read and
// keepalive loops.
func (c *Conn) Dial(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()
	go c.pingLoop()

	c.logger.Debug("rpc websocket connected", "url", c.cfg.URL)
	return nil
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	if c.ws != nil {
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return c.ws.Close()
	}
	return nil
}

// Send writes one frame, serializing concurrent writers.
func (c *Conn) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Frames returns the inbound frame channel.
func (c *Conn) Frames() <-chan []byte {
	return c.frames
}

// Errors returns the transport error channel (capacity 1).
func (c *Conn) Errors() <-chan error {
	return c.errs
}

// IsConnected reports the current connection state.
func (c *Conn) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Conn) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Error caused by Close; not reported.
			default:
				select {
				case c.errs <- err:
				default:
				}
			}
			return
		}

		select {
		case c.frames <- data:
		case <-c.done:
			return
		default:
			c.logger.Warn("frame buffer full, dropping frame")
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			ws := c.ws
			connected := c.connected
			c.mu.RUnlock()
			if !connected || ws == nil {
				return
			}

			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("keepalive ping failed", "error", err)
			}
		}
	}
}
