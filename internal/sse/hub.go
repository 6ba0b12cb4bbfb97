package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stream event types.
const (
	EventConnected       = "CONNECTED"
	EventPriceUpdate     = "PRICE_UPDATE"
	EventCondSwap        = "COND_SWAP"
	EventTWAPUpdate      = "TWAP_UPDATE"
	EventProposalTracked = "PROPOSAL_TRACKED"
	EventProposalRemoved = "PROPOSAL_REMOVED"
)

// HubConfig holds hub tuning.
type HubConfig struct {
	// KeepaliveInterval is the comment-frame period that keeps idle
	// connections open through proxies.
	KeepaliveInterval time.Duration
	// ClientQueueSize is the per-connection frame buffer. A client
	// that falls this far behind is disconnected.
	ClientQueueSize int
	// WriteTimeout bounds one frame write.
	WriteTimeout time.Duration
}

// DefaultHubConfig returns production defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		KeepaliveInterval: 15 * time.Second,
		ClientQueueSize:   256,
		WriteTimeout:      10 * time.Second,
	}
}

// Hub fans events out to all connected stream clients. It serializes
// each event once and hands the framed bytes to every connection's
// queue; a connection that cannot keep up is dropped without affecting
// the rest.
type Hub struct {
	cfg    HubConfig
	logger *slog.Logger

	mu      sync.Mutex
	conns   map[string]*hubConn
	closing bool
}

type hubConn struct {
	id     string
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *hubConn) close() {
	c.once.Do(func() { close(c.done) })
}

// NewHub creates a Hub.
func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = DefaultHubConfig().KeepaliveInterval
	}
	if cfg.ClientQueueSize <= 0 {
		cfg.ClientQueueSize = DefaultHubConfig().ClientQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultHubConfig().WriteTimeout
	}
	return &Hub{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[string]*hubConn),
	}
}

// Publish frames the payload once and queues it on every connection.
func (h *Hub) Publish(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to serialize stream event", "type", eventType, "error", err)
		return
	}
	frame := formatFrame(eventType, data)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.conns {
		select {
		case conn.frames <- frame:
		default:
			h.logger.Warn("stream client too slow, disconnecting", "client", conn.id)
			delete(h.conns, conn.id)
			conn.close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll disconnects every client. New connections are refused
// afterwards.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closing = true
	for id, conn := range h.conns {
		delete(h.conns, id)
		conn.close()
	}
}

// ServeHTTP upgrades the request to a server-sent event stream and
// pumps frames until the client leaves or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	conn := &hubConn{
		id:     uuid.NewString(),
		frames: make(chan []byte, h.cfg.ClientQueueSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	h.conns[conn.id] = conn
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn.id)
		h.mu.Unlock()
		conn.close()
		h.logger.Debug("stream client disconnected", "client", conn.id)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	greeting, _ := json.Marshal(map[string]string{"clientId": conn.id})
	if err := h.writeFrame(rc, w, flusher, formatFrame(EventConnected, greeting)); err != nil {
		return
	}
	h.logger.Debug("stream client connected", "client", conn.id)

	keepalive := time.NewTicker(h.cfg.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-conn.done:
			return
		case frame := <-conn.frames:
			if err := h.writeFrame(rc, w, flusher, frame); err != nil {
				return
			}
		case <-keepalive.C:
			if err := h.writeFrame(rc, w, flusher, []byte(": keepalive\n\n")); err != nil {
				return
			}
		}
	}
}

func (h *Hub) writeFrame(rc *http.ResponseController, w http.ResponseWriter, flusher http.Flusher, frame []byte) error {
	rc.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	if _, err := w.Write(frame); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// formatFrame renders one server-sent event.
func formatFrame(eventType string, data []byte) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data))
}
