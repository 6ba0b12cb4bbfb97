package writer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openfutarchy/futarchy-data/internal/bus"
	"github.com/openfutarchy/futarchy-data/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSender records batches and reports success for every queued
// statement.
type fakeSender struct {
	mu      sync.Mutex
	batches [][]string // queued signatures per batch
	rows    []string   // signature/pool per queued statement
}

func (f *fakeSender) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	sigs := make([]string, 0, b.Len())
	rows := make([]string, 0, b.Len())
	for _, q := range b.QueuedQueries {
		sigs = append(sigs, q.Arguments[0].(string))
		rows = append(rows, q.Arguments[0].(string)+"/"+q.Arguments[3].(string))
	}
	f.mu.Lock()
	f.batches = append(f.batches, sigs)
	f.rows = append(f.rows, rows...)
	f.mu.Unlock()
	return &fakeResults{remaining: b.Len()}
}

func (f *fakeSender) rowKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rows...)
}

func (f *fakeSender) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeSender) signatures() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

type fakeResults struct {
	remaining int
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	r.remaining--
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, nil }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { return nil }

func swapMsg(sig string) bus.SwapObserved {
	return swapOnPool(sig, "pool-a")
}

func swapOnPool(sig, pool string) bus.SwapObserved {
	return bus.SwapObserved{Swap: model.SwapEvent{
		Proposal:   "prop-1",
		Pool:       pool,
		Trader:     "trader-1",
		Direction:  "buy",
		AmountIn:   100,
		AmountOut:  80,
		Fee:        1,
		Signature:  sig,
		ObservedAt: time.Now(),
	}}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestFlushOnBatchSize(t *testing.T) {
	sender := &fakeSender{}
	b := bus.New(10, testLogger())
	defer b.Close()

	w := New(Config{BatchSize: 2, FlushInterval: time.Hour}, sender, b, testLogger())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop(context.Background())

	b.Publish(swapMsg("sig-1"))
	b.Publish(swapMsg("sig-2"))

	waitFor(t, func() bool { return sender.batchCount() == 1 }, "batch not flushed at size threshold")

	got := sender.signatures()
	if len(got) != 2 || got[0] != "sig-1" || got[1] != "sig-2" {
		t.Errorf("flushed signatures = %v, want [sig-1 sig-2]", got)
	}
	if stats := w.Stats(); stats.Written != 2 {
		t.Errorf("Written = %d, want 2", stats.Written)
	}
}

func TestFlushKeepsMultiSwapTransaction(t *testing.T) {
	sender := &fakeSender{}
	b := bus.New(10, testLogger())
	defer b.Close()

	w := New(Config{BatchSize: 2, FlushInterval: time.Hour}, sender, b, testLogger())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop(context.Background())

	// One transaction routing through two pools shares a signature.
	b.Publish(swapOnPool("sig-1", "pool-a"))
	b.Publish(swapOnPool("sig-1", "pool-b"))

	waitFor(t, func() bool { return sender.batchCount() == 1 }, "batch not flushed at size threshold")

	got := sender.rowKeys()
	if len(got) != 2 || got[0] != "sig-1/pool-a" || got[1] != "sig-1/pool-b" {
		t.Errorf("queued rows = %v, want both legs of the transaction", got)
	}
}

func TestFlushOnTicker(t *testing.T) {
	sender := &fakeSender{}
	b := bus.New(10, testLogger())
	defer b.Close()

	w := New(Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, sender, b, testLogger())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop(context.Background())

	b.Publish(swapMsg("sig-1"))

	waitFor(t, func() bool { return sender.batchCount() >= 1 }, "partial batch not flushed by ticker")
}

func TestStopFlushesBuffer(t *testing.T) {
	sender := &fakeSender{}
	b := bus.New(10, testLogger())
	defer b.Close()

	w := New(Config{BatchSize: 100, FlushInterval: time.Hour}, sender, b, testLogger())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	b.Publish(swapMsg("sig-1"))
	waitFor(t, func() bool { return w.Stats().Received == 1 }, "swap not consumed")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := sender.signatures(); len(got) != 1 || got[0] != "sig-1" {
		t.Errorf("signatures after Stop = %v, want [sig-1]", got)
	}
}

func TestRecordDerivesPrice(t *testing.T) {
	rec := toRecord(model.SwapEvent{Direction: "buy", AmountIn: 3, AmountOut: 2})
	if rec.Price != "1.500000000" {
		t.Errorf("Price = %q, want 1.500000000", rec.Price)
	}

	rec = toRecord(model.SwapEvent{Direction: "sell", AmountIn: 2, AmountOut: 3})
	if rec.Price != "1.500000000" {
		t.Errorf("sell Price = %q, want 1.500000000", rec.Price)
	}

	rec = toRecord(model.SwapEvent{Direction: "buy", AmountIn: 3, AmountOut: 0})
	if rec.Price != "" {
		t.Errorf("zero-leg Price = %q, want empty", rec.Price)
	}
}
