package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Kind selects a stream event family for subscription.
type Kind string

const (
	KindPrice Kind = "price"
	KindTrade Kind = "trade"
	KindTWAP  Kind = "twap"
)

var kindEvents = map[string]Kind{
	EventPriceUpdate: KindPrice,
	EventCondSwap:    KindTrade,
	EventTWAPUpdate:  KindTWAP,
}

// Handler receives the raw JSON body of one matching event.
type Handler func(data []byte)

// ClientConfig holds stream client tuning.
type ClientConfig struct {
	// URL is the upstream event stream endpoint.
	URL string
	// ReconnectBaseDelay is the first retry delay; it doubles per
	// failed attempt up to ReconnectMaxDelay.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	// ReconnectMaxAttempts caps consecutive failures before the
	// client gives up until the next Subscribe call.
	ReconnectMaxAttempts int
	// HTTPClient overrides the default transport. Streaming requires
	// a client without an overall timeout.
	HTTPClient *http.Client
}

// DefaultClientConfig returns production defaults.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:                  url,
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		ReconnectMaxAttempts: 10,
	}
}

type subKey struct {
	kind  Kind
	topic string
}

// Client consumes an upstream event stream over one shared connection.
// Subscriptions are reference counted per (kind, topic): the first
// subscription opens the connection, the last removal closes it. A
// dropped connection is retried with doubling backoff; after the
// attempt cap the client idles until a new subscription arrives.
type Client struct {
	cfg        ClientConfig
	logger     *slog.Logger
	httpClient *http.Client

	mu      sync.Mutex
	subs    map[subKey]map[int]Handler
	nextID  int
	running bool
	closed  bool
	cancel  context.CancelFunc

	wg sync.WaitGroup
}

// NewClient creates a stream client. The connection is opened lazily by
// the first Subscribe.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultClientConfig(cfg.URL)
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if cfg.ReconnectMaxAttempts <= 0 {
		cfg.ReconnectMaxAttempts = def.ReconnectMaxAttempts
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		cfg:        cfg,
		logger:     logger,
		httpClient: hc,
		subs:       make(map[subKey]map[int]Handler),
	}
}

// Subscribe registers a handler for one (kind, topic) pair. An empty
// topic matches every event of the kind. The returned function removes
// the subscription.
func (c *Client) Subscribe(kind Kind, topic string, fn Handler) func() {
	key := subKey{kind: kind, topic: topic}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	c.nextID++
	id := c.nextID
	if c.subs[key] == nil {
		c.subs[key] = make(map[int]Handler)
	}
	c.subs[key][id] = fn
	c.ensureRunningLocked()
	c.mu.Unlock()

	return func() { c.unsubscribe(key, id) }
}

func (c *Client) unsubscribe(key subKey, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	handlers, ok := c.subs[key]
	if !ok {
		return
	}
	delete(handlers, id)
	if len(handlers) == 0 {
		delete(c.subs, key)
	}
	if len(c.subs) == 0 && c.cancel != nil {
		c.cancel()
	}
}

// Close tears down the connection and drops all subscriptions.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.subs = make(map[subKey]map[int]Handler)
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// ensureRunningLocked starts the connection loop if it is idle.
func (c *Client) ensureRunningLocked() {
	if c.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)
	go c.run(ctx)
}

func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	gaveUp := false
	gaveUpSeq := 0
	defer func() {
		c.mu.Lock()
		c.running = false
		// A Subscribe that landed while this loop was tearing down saw
		// running==true and started nothing; restart on its behalf.
		// After giving up, only a subscription newer than the give-up
		// point restarts the loop.
		idle := gaveUp && c.nextID == gaveUpSeq
		if !idle && !c.closed && len(c.subs) > 0 {
			c.ensureRunningLocked()
		}
		c.mu.Unlock()
	}()

	delay := c.cfg.ReconnectBaseDelay
	attempts := 0

	for {
		if ctx.Err() != nil || !c.hasSubscribers() {
			return
		}

		connected, err := c.consume(ctx)
		if ctx.Err() != nil || !c.hasSubscribers() {
			return
		}
		if connected {
			attempts = 0
			delay = c.cfg.ReconnectBaseDelay
		}

		attempts++
		if attempts >= c.cfg.ReconnectMaxAttempts {
			c.mu.Lock()
			gaveUp, gaveUpSeq = true, c.nextID
			c.mu.Unlock()
			c.logger.Error("stream reconnect attempts exhausted, giving up",
				"url", c.cfg.URL,
				"attempts", attempts,
			)
			return
		}

		if err != nil {
			c.logger.Warn("stream connection lost, reconnecting",
				"url", c.cfg.URL,
				"attempt", attempts,
				"delay", delay,
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.cfg.ReconnectMaxDelay {
			delay = c.cfg.ReconnectMaxDelay
		}
	}
}

func (c *Client) hasSubscribers() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs) > 0
}

// consume holds one connection open and dispatches its frames.
// connected reports whether the endpoint accepted the stream, which
// resets the reconnect budget.
func (c *Client) consume(ctx context.Context) (connected bool, _ error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("stream endpoint returned status %d", resp.StatusCode)
	}

	c.logger.Info("stream connected", "url", c.cfg.URL)

	var eventType string
	var data strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if eventType != "" && data.Len() > 0 {
				c.dispatch(eventType, []byte(data.String()))
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// keepalive comment
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			// Multiple data lines in one frame join with a newline.
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return true, scanner.Err()
}

// dispatch routes one event body to every subscription it matches.
// Bodies that do not parse are skipped.
func (c *Client) dispatch(eventType string, data []byte) {
	kind, ok := kindEvents[eventType]
	if !ok {
		return
	}

	var topic struct {
		Proposal string `json:"proposal"`
		Pool     string `json:"pool"`
	}
	if err := json.Unmarshal(data, &topic); err != nil {
		c.logger.Warn("skipping malformed stream payload", "type", eventType, "error", err)
		return
	}

	c.mu.Lock()
	var handlers []Handler
	for key, subs := range c.subs {
		if key.kind != kind {
			continue
		}
		if key.topic != "" && key.topic != topic.Proposal && key.topic != topic.Pool {
			continue
		}
		for _, fn := range subs {
			handlers = append(handlers, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(data)
	}
}
