package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openfutarchy/futarchy-data/internal/bus"
	"github.com/openfutarchy/futarchy-data/internal/chain"
	"github.com/openfutarchy/futarchy-data/internal/decode"
	"github.com/openfutarchy/futarchy-data/internal/model"
	"github.com/openfutarchy/futarchy-data/internal/rpc"
)

// AccountReader is the chain account access the monitor needs.
// *rpc.Client satisfies it.
type AccountReader interface {
	GetProposal(ctx context.Context, address string) (*rpc.ProposalAccount, error)
	GetModerator(ctx context.Context, address string) (*rpc.ModeratorAccount, error)
	GetDAO(ctx context.Context, address string) (*rpc.DAOAccount, error)
	PoolInitialized(ctx context.Context, address string) (bool, error)
	ListProposals(ctx context.Context, program string) ([]string, error)
}

// Allowlist answers whether a moderator may launch tracked proposals.
// *allowlist.Store satisfies it.
type Allowlist interface {
	Contains(ctx context.Context, moderator string) (bool, error)
}

// Config holds monitor tuning.
type Config struct {
	// AutocratProgram is the program whose proposals are reconciled.
	AutocratProgram string
	// EnrichTimeout bounds one enrichment's chain reads.
	EnrichTimeout time.Duration
	// ReconcileInterval is the period of the catch-up scan. Zero
	// disables reconciliation.
	ReconcileInterval time.Duration
}

// Stats counts monitor activity.
type Stats struct {
	Tracked      int   // Currently tracked proposals
	Enriched     int64 // Successful enrichments
	Rejected     int64 // Launches rejected by enrichment
	Finalized    int64 // Proposals removed by finalization
	SwapsDropped int64 // Swaps on untracked pools
	Reconciles   int64 // Completed reconcile scans
}

// Monitor owns the tracked proposal set. It consumes decoded program
// events, runs the enrichment pipeline for launches, and publishes
// state changes on the bus.
type Monitor struct {
	cfg      Config
	accounts AccountReader
	allow    Allowlist
	bus      *bus.Bus
	logger   *slog.Logger

	state *trackerState

	enriched     atomic.Int64
	rejected     atomic.Int64
	finalized    atomic.Int64
	swapsDropped atomic.Int64
	reconciles   atomic.Int64

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a Monitor.
func New(cfg Config, accounts AccountReader, allow Allowlist, b *bus.Bus, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = 30 * time.Second
	}
	return &Monitor{
		cfg:      cfg,
		accounts: accounts,
		allow:    allow,
		bus:      b,
		logger:   logger,
		state:    newTrackerState(),
	}
}

// Start launches the reconcile loop. Safe to call with a zero
// ReconcileInterval, in which case only event handling runs.
func (m *Monitor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if m.cfg.ReconcileInterval > 0 {
		m.wg.Add(1)
		go m.reconcileLoop(runCtx)
	}

	m.logger.Info("monitor started",
		"reconcile_interval", m.cfg.ReconcileInterval,
		"enrich_timeout", m.cfg.EnrichTimeout,
	)
	return nil
}

// Stop cancels background work and waits for in-flight enrichments.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("monitor stopped")
	case <-ctx.Done():
		m.logger.Warn("monitor stop timed out with enrichments in flight")
	}
	return nil
}

// HandleEvent dispatches one decoded event. Launch enrichment runs on
// its own goroutine so slow chain reads do not stall the log stream.
func (m *Monitor) HandleEvent(ctx context.Context, ev decode.Event, bundle chain.LogBundle) {
	switch e := ev.(type) {
	case decode.ProposalLaunched:
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.enrich(ctx, e.Proposal, "launch")
		}()
	case decode.ProposalFinalized:
		m.handleFinalized(e)
	case decode.ConditionalSwap:
		m.handleSwap(e, bundle)
	}
}

func (m *Monitor) handleFinalized(ev decode.ProposalFinalized) {
	snapshot, ok := m.state.removeByProposal(ev.Proposal)
	if !ok {
		m.logger.Debug("finalization for untracked proposal", "proposal", ev.Proposal)
		return
	}

	m.finalized.Add(1)
	m.logger.Info("proposal finalized",
		"proposal", ev.Proposal,
		"winning_index", ev.WinningIndex,
	)
	m.bus.Publish(bus.ProposalRemoved{Proposal: snapshot})
}

func (m *Monitor) handleSwap(ev decode.ConditionalSwap, bundle chain.LogBundle) {
	ref, ok := m.state.resolvePool(ev.Pool)
	if !ok {
		m.swapsDropped.Add(1)
		m.logger.Debug("swap on untracked pool", "pool", ev.Pool)
		return
	}

	m.bus.Publish(bus.SwapObserved{Swap: model.SwapEvent{
		Proposal:   ref.proposal,
		Pool:       ev.Pool,
		Market:     ref.market,
		Trader:     ev.Trader,
		Direction:  ev.Direction,
		AmountIn:   ev.AmountIn,
		AmountOut:  ev.AmountOut,
		Fee:        ev.Fee,
		Signature:  bundle.Signature,
		ObservedAt: bundle.ReceivedAt,
	}})
}

// reconcileLoop periodically lists proposal accounts on-chain and
// enriches any the log stream missed.
func (m *Monitor) reconcileLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reconcile(ctx)
		}
	}
}

func (m *Monitor) reconcile(ctx context.Context) {
	addrs, err := m.accounts.ListProposals(ctx, m.cfg.AutocratProgram)
	if err != nil {
		m.logger.Warn("reconcile scan failed", "error", err)
		return
	}

	missed := 0
	for _, addr := range addrs {
		if m.state.has(addr) {
			continue
		}
		missed++
		m.enrich(ctx, addr, "reconcile")
	}

	m.reconciles.Add(1)
	if missed > 0 {
		m.logger.Info("reconcile picked up missed proposals", "count", missed)
	}
}

// Proposal returns a copy of one tracked proposal.
func (m *Monitor) Proposal(address string) (model.MonitoredProposal, bool) {
	return m.state.get(address)
}

// Proposals returns copies of every tracked proposal.
func (m *Monitor) Proposals() []model.MonitoredProposal {
	return m.state.list()
}

// ResolvePool maps a pool PDA to its proposal and market index.
func (m *Monitor) ResolvePool(pool string) (proposal string, market int, ok bool) {
	ref, ok := m.state.resolvePool(pool)
	return ref.proposal, ref.market, ok
}

// Stats returns a snapshot of monitor counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		Tracked:      m.state.count(),
		Enriched:     m.enriched.Load(),
		Rejected:     m.rejected.Load(),
		Finalized:    m.finalized.Load(),
		SwapsDropped: m.swapsDropped.Load(),
		Reconciles:   m.reconciles.Load(),
	}
}
