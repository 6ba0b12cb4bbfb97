package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SubscriberConfig configures the log subscriber.
type SubscriberConfig struct {
	URL                string        // JSON-RPC WebSocket endpoint
	Programs           []string      // Program addresses to watch
	Commitment         string        // "processed", "confirmed", or "finalized"
	ReconnectBaseDelay time.Duration // First reconnect wait
	ReconnectMaxDelay  time.Duration // Reconnect wait ceiling
	BundleBufferSize   int           // Outbound bundle channel capacity
	Conn               ConnConfig    // Per-connection settings (URL filled in here)
}

// DefaultSubscriberConfig returns sensible defaults.
func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		Commitment:         "confirmed",
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		BundleBufferSize:   4096,
		Conn:               DefaultConnConfig(),
	}
}

// SubscriberStats counts what the subscriber has seen.
type SubscriberStats struct {
	Notifications  int64 // logsNotification frames received
	FailedTxScope  int64 // Bundles skipped because the transaction failed
	Reconnects     int64 // Successful re-dials after a drop
	DroppedBundles int64 // Bundles dropped because the output channel was full
}

// Subscriber maintains log subscriptions for a set of programs over one
// shared connection and emits per-transaction LogBundles.
type Subscriber struct {
	cfg    SubscriberConfig
	logger *slog.Logger

	out chan LogBundle

	mu      sync.Mutex
	conn    *Conn
	nextID  uint64
	pending map[uint64]string // request id → program (awaiting subscribe response)
	subs    map[uint64]string // subscription id → program

	statsMu sync.Mutex
	stats   SubscriberStats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSubscriber creates a log subscriber.
func NewSubscriber(cfg SubscriberConfig, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Conn.URL = cfg.URL
	return &Subscriber{
		cfg:     cfg,
		logger:  logger,
		out:     make(chan LogBundle, cfg.BundleBufferSize),
		pending: make(map[uint64]string),
		subs:    make(map[uint64]string),
	}
}

// Start connects and subscribes in the background. It returns after the
// first dial attempt is scheduled; reconnects are automatic.
func (s *Subscriber) Start(ctx context.Context) error {
	if len(s.cfg.Programs) == 0 {
		return fmt.Errorf("at least one program address is required")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(s.ctx)
	}()

	s.logger.Info("log subscriber started",
		"programs", len(s.cfg.Programs),
		"commitment", s.cfg.Commitment,
	)
	return nil
}

// Stop shuts the subscriber down. The bundle channel is closed once
// every worker has exited.
func (s *Subscriber) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(s.out)
		s.logger.Info("log subscriber stopped")
	case <-ctx.Done():
		// The channel stays open: a stuck worker may still be
		// delivering into it.
		s.logger.Warn("log subscriber stop timed out")
	}
	return nil
}

// Bundles returns the channel of per-transaction log bundles.
func (s *Subscriber) Bundles() <-chan LogBundle {
	return s.out
}

// Stats returns a snapshot of subscriber counters.
func (s *Subscriber) Stats() SubscriberStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// Unsubscribe releases all held subscriptions. Idempotent: repeated
// calls after the first are no-ops.
func (s *Subscriber) Unsubscribe() {
	s.mu.Lock()
	conn := s.conn
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	s.subs = make(map[uint64]string)
	s.pending = make(map[uint64]string)
	s.mu.Unlock()

	if conn == nil {
		return
	}
	for _, id := range ids {
		req := rpcRequest{
			JSONRPC: "2.0",
			ID:      s.nextRequestID(),
			Method:  "logsUnsubscribe",
			Params:  []any{id},
		}
		data, _ := json.Marshal(req)
		if err := conn.Send(data); err != nil {
			s.logger.Debug("logsUnsubscribe send failed", "subscription", id, "error", err)
		}
	}
}

// run is the connect/consume/reconnect loop.
func (s *Subscriber) run(ctx context.Context) {
	delay := s.cfg.ReconnectBaseDelay
	first := true

	for {
		if ctx.Err() != nil {
			return
		}

		conn := NewConn(s.cfg.Conn, s.logger)
		if err := conn.Dial(ctx); err != nil {
			s.logger.Warn("rpc dial failed", "error", err, "retry_in", delay)
			if !s.sleep(ctx, delay) {
				return
			}
			delay = nextDelay(delay, s.cfg.ReconnectMaxDelay)
			continue
		}

		if !first {
			s.statsMu.Lock()
			s.stats.Reconnects++
			s.statsMu.Unlock()
		}
		first = false
		delay = s.cfg.ReconnectBaseDelay

		s.mu.Lock()
		s.conn = conn
		s.subs = make(map[uint64]string)
		s.pending = make(map[uint64]string)
		s.mu.Unlock()

		if err := s.subscribeAll(conn); err != nil {
			s.logger.Error("subscribe failed", "error", err)
			conn.Close()
			if !s.sleep(ctx, delay) {
				return
			}
			delay = nextDelay(delay, s.cfg.ReconnectMaxDelay)
			continue
		}

		s.consume(ctx, conn)
		conn.Close()

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("log stream disconnected, reconnecting", "wait", delay)
		if !s.sleep(ctx, delay) {
			return
		}
		delay = nextDelay(delay, s.cfg.ReconnectMaxDelay)
	}
}

// subscribeAll issues one logsSubscribe per program.
func (s *Subscriber) subscribeAll(conn *Conn) error {
	for _, program := range s.cfg.Programs {
		id := s.nextRequestID()

		s.mu.Lock()
		s.pending[id] = program
		s.mu.Unlock()

		req := rpcRequest{
			JSONRPC: "2.0",
			ID:      id,
			Method:  "logsSubscribe",
			Params: []any{
				logsMentionsFilter{Mentions: []string{program}},
				commitmentOption{Commitment: s.cfg.Commitment},
			},
		}
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshal logsSubscribe: %w", err)
		}
		if err := conn.Send(data); err != nil {
			return fmt.Errorf("send logsSubscribe for %s: %w", program, err)
		}
	}
	return nil
}

// consume processes frames until the context ends or the transport fails.
func (s *Subscriber) consume(ctx context.Context, conn *Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-conn.Errors():
			s.logger.Warn("rpc transport error", "error", err)
			return
		case frame, ok := <-conn.Frames():
			if !ok {
				return
			}
			s.handleFrame(frame)
		}
	}
}

func (s *Subscriber) handleFrame(frame []byte) {
	var env rpcEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		s.logger.Warn("unparsable rpc frame", "error", err)
		return
	}

	switch {
	case env.Method == "logsNotification":
		s.handleNotification(env.Params)

	case env.ID != 0:
		// Response to one of our subscribe/unsubscribe requests.
		s.handleResponse(&env)

	default:
		s.logger.Debug("ignoring rpc frame", "method", env.Method)
	}
}

func (s *Subscriber) handleResponse(env *rpcEnvelope) {
	s.mu.Lock()
	program, waiting := s.pending[env.ID]
	delete(s.pending, env.ID)
	s.mu.Unlock()

	if !waiting {
		// Unsubscribe acks land here; nothing to track.
		return
	}
	if env.Error != nil {
		s.logger.Error("logsSubscribe rejected",
			"program", program,
			"code", env.Error.Code,
			"message", env.Error.Message,
		)
		return
	}

	var subID uint64
	if err := json.Unmarshal(env.Result, &subID); err != nil {
		s.logger.Error("unparsable logsSubscribe result", "program", program, "error", err)
		return
	}

	s.mu.Lock()
	s.subs[subID] = program
	s.mu.Unlock()

	s.logger.Info("program logs subscribed", "program", program, "subscription", subID)
}

func (s *Subscriber) handleNotification(params json.RawMessage) {
	var p logsNotificationParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.logger.Warn("unparsable logs notification", "error", err)
		return
	}

	s.statsMu.Lock()
	s.stats.Notifications++
	s.statsMu.Unlock()

	s.mu.Lock()
	program, known := s.subs[p.Subscription]
	s.mu.Unlock()
	if !known {
		// Notification for a subscription we already released.
		return
	}

	if p.txFailed() {
		s.statsMu.Lock()
		s.stats.FailedTxScope++
		s.statsMu.Unlock()
		return
	}

	bundle := LogBundle{
		Signature:  p.Result.Value.Signature,
		Slot:       p.Result.Context.Slot,
		Program:    program,
		Logs:       p.Result.Value.Logs,
		ReceivedAt: time.Now(),
	}

	select {
	case s.out <- bundle:
	default:
		s.statsMu.Lock()
		s.stats.DroppedBundles++
		s.statsMu.Unlock()
		s.logger.Warn("bundle buffer full, dropping bundle", "signature", bundle.Signature)
	}
}

func (s *Subscriber) nextRequestID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

// sleep waits for d or until ctx ends; reports whether to keep running.
func (s *Subscriber) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
