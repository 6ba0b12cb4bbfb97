// Package writer persists observed swaps into the history store in
// batches, feeding the data the history endpoints serve.
package writer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/openfutarchy/futarchy-data/internal/bus"
	"github.com/openfutarchy/futarchy-data/internal/model"
)

// batchSender is the slice of the pgx pool the writer uses.
// *pgxpool.Pool satisfies it.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds writer tuning.
type Config struct {
	// BatchSize triggers a flush when the buffer reaches it.
	BatchSize int
	// FlushInterval bounds how long a partial batch may wait.
	FlushInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
	}
}

// Stats counts writer activity.
type Stats struct {
	Received int64 // Swaps consumed from the bus
	Written  int64 // Rows sent to the store
	Failures int64 // Failed flushes
}

// TradeWriter consumes SwapObserved messages and batch-inserts trade
// rows. The store keys rows by (signature, pool): replays after a
// reconnect do not duplicate rows, while a transaction that swaps
// through several pools keeps every leg.
type TradeWriter struct {
	cfg    Config
	db     batchSender
	bus    *bus.Bus
	logger *slog.Logger

	received atomic.Int64
	written  atomic.Int64
	failures atomic.Int64

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a TradeWriter.
func New(cfg Config, db batchSender, b *bus.Bus, logger *slog.Logger) *TradeWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	return &TradeWriter{
		cfg:    cfg,
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to the bus and begins writing.
func (w *TradeWriter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	swaps := w.bus.Subscribe(bus.KindSwapObserved)

	w.wg.Add(1)
	go w.run(runCtx, swaps)

	w.logger.Info("trade writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains and flushes what is buffered.
func (w *TradeWriter) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("trade writer stopped")
	case <-ctx.Done():
		w.logger.Warn("trade writer stop timed out")
	}
	return nil
}

// Stats returns a snapshot of writer counters.
func (w *TradeWriter) Stats() Stats {
	return Stats{
		Received: w.received.Load(),
		Written:  w.written.Load(),
		Failures: w.failures.Load(),
	}
}

func (w *TradeWriter) run(ctx context.Context, swaps <-chan bus.Message) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	buf := make([]model.TradeRecord, 0, w.cfg.BatchSize)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		w.flush(buf)
		buf = buf[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case msg, ok := <-swaps:
			if !ok {
				flush()
				return
			}
			swap := msg.(bus.SwapObserved).Swap
			w.received.Add(1)
			buf = append(buf, toRecord(swap))
			if len(buf) >= w.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

const insertTradeSQL = `
	INSERT INTO trades (signature, proposal, market, pool, trader,
	                    direction, price, amount_in, amount_out, fee, executed_at)
	VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::numeric, $8, $9, $10, $11)
	ON CONFLICT (signature, pool) DO NOTHING`

// flush writes one batch. Flushing runs outside request paths; a failed
// batch is dropped after logging, the stream replays fill the gap.
func (w *TradeWriter) flush(records []model.TradeRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, tr := range records {
		batch.Queue(insertTradeSQL,
			tr.Signature, tr.Proposal, tr.Market, tr.Pool, tr.Trader,
			tr.Direction, tr.Price, int64(tr.AmountIn), int64(tr.AmountOut),
			int64(tr.Fee), tr.ExecutedAt,
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			w.failures.Add(1)
			w.logger.Error("trade batch insert failed", "batch_size", len(records), "error", err)
			return
		}
	}

	w.written.Add(int64(len(records)))
	w.logger.Debug("flushed trades", "count", len(records))
}

func toRecord(swap model.SwapEvent) model.TradeRecord {
	return model.TradeRecord{
		Signature:  swap.Signature,
		Proposal:   swap.Proposal,
		Market:     swap.Market,
		Pool:       swap.Pool,
		Trader:     swap.Trader,
		Direction:  swap.Direction,
		Price:      swap.Price(),
		AmountIn:   swap.AmountIn,
		AmountOut:  swap.AmountOut,
		Fee:        swap.Fee,
		ExecutedAt: swap.ObservedAt,
	}
}
