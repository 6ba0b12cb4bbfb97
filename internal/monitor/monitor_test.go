package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/openfutarchy/futarchy-data/internal/bus"
	"github.com/openfutarchy/futarchy-data/internal/chain"
	"github.com/openfutarchy/futarchy-data/internal/decode"
	"github.com/openfutarchy/futarchy-data/internal/model"
	"github.com/openfutarchy/futarchy-data/internal/rpc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAccounts serves canned chain accounts.
type fakeAccounts struct {
	proposals  map[string]*rpc.ProposalAccount
	moderators map[string]*rpc.ModeratorAccount
	daos       map[string]*rpc.DAOAccount
	existing   map[string]bool
	listed     []string

	err error
}

func (f *fakeAccounts) GetProposal(_ context.Context, address string) (*rpc.ProposalAccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.proposals[address]; ok {
		return p, nil
	}
	return nil, rpc.ErrNotFound
}

func (f *fakeAccounts) GetModerator(_ context.Context, address string) (*rpc.ModeratorAccount, error) {
	if m, ok := f.moderators[address]; ok {
		return m, nil
	}
	return nil, rpc.ErrNotFound
}

func (f *fakeAccounts) GetDAO(_ context.Context, address string) (*rpc.DAOAccount, error) {
	if d, ok := f.daos[address]; ok {
		return d, nil
	}
	return nil, rpc.ErrNotFound
}

func (f *fakeAccounts) PoolInitialized(_ context.Context, address string) (bool, error) {
	return f.existing[address], nil
}

func (f *fakeAccounts) ListProposals(_ context.Context, _ string) ([]string, error) {
	return f.listed, nil
}

// fakeAllowlist allows a fixed moderator set.
type fakeAllowlist struct {
	allowed map[string]bool
	err     error
}

func (f *fakeAllowlist) Contains(_ context.Context, moderator string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.allowed[moderator], nil
}

func validAccounts() *fakeAccounts {
	return &fakeAccounts{
		proposals: map[string]*rpc.ProposalAccount{
			"prop-1": {
				Proposal:      "prop-1",
				ProposalID:    7,
				NumOptions:    3,
				CreatedAt:     1717243200,
				TimeRemaining: 3600,
				Moderator:     "mod-1",
				Name:          "upgrade",
				BaseMint:      "base",
				QuoteMint:     "quote",
				Pools:         []string{"pool-a", "pool-b", "pool-c"},
			},
		},
		moderators: map[string]*rpc.ModeratorAccount{
			"mod-1": {Moderator: "mod-1", Authority: "auth", DAO: "dao-1"},
		},
		daos: map[string]*rpc.DAOAccount{
			"dao-1": {DAO: "dao-1", Moderator: "mod-1", SpotPool: "spot", SpotPoolKind: "amm"},
		},
		existing: map[string]bool{"pool-a": true, "pool-b": true, "pool-c": true},
	}
}

func newTestMonitor(accounts AccountReader, allow Allowlist) (*Monitor, *bus.Bus) {
	b := bus.New(10, testLogger())
	m := New(Config{EnrichTimeout: time.Second}, accounts, allow, b, testLogger())
	return m, b
}

func recvMsg(t *testing.T, ch <-chan bus.Message) bus.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bus message")
		return nil
	}
}

func TestEnrichTracksProposal(t *testing.T) {
	m, b := newTestMonitor(validAccounts(), &fakeAllowlist{allowed: map[string]bool{"mod-1": true}})
	defer b.Close()
	added := b.Subscribe(bus.KindProposalAdded)

	before := time.Now()
	m.enrich(context.Background(), "prop-1", "test")

	p, ok := m.Proposal("prop-1")
	if !ok {
		t.Fatal("proposal not tracked after enrichment")
	}
	if p.ProposalID != 7 || p.Name != "upgrade" {
		t.Errorf("proposal = %+v, want id 7 name upgrade", p)
	}
	if len(p.Pools) != 3 {
		t.Fatalf("len(Pools) = %d, want 3", len(p.Pools))
	}
	if p.DAO == nil || p.DAO.DAO != "dao-1" || p.DAO.SpotPoolKind != "amm" {
		t.Errorf("DAO link = %+v, want dao-1/amm", p.DAO)
	}

	wantEnd := before.Add(time.Hour)
	if p.EndsAt.Before(wantEnd) || p.EndsAt.After(wantEnd.Add(time.Minute)) {
		t.Errorf("EndsAt = %v, want about %v", p.EndsAt, wantEnd)
	}

	msg := recvMsg(t, added)
	if msg.(bus.ProposalAdded).Proposal.Proposal != "prop-1" {
		t.Errorf("published %+v, want prop-1", msg)
	}
}

func TestEnrichFiltersUninitializedPools(t *testing.T) {
	accounts := validAccounts()
	accounts.existing["pool-b"] = false

	m, b := newTestMonitor(accounts, &fakeAllowlist{allowed: map[string]bool{"mod-1": true}})
	defer b.Close()

	m.enrich(context.Background(), "prop-1", "test")

	p, ok := m.Proposal("prop-1")
	if !ok {
		t.Fatal("proposal not tracked")
	}
	if len(p.Pools) != 2 || p.Pools[0] != "pool-a" || p.Pools[1] != "pool-c" {
		t.Fatalf("Pools = %v, want [pool-a pool-c]", p.Pools)
	}

	// Market index follows position in the tracked pool list.
	if _, market, ok := m.ResolvePool("pool-c"); !ok || market != 1 {
		t.Errorf("ResolvePool(pool-c) = %d, %v, want 1, true", market, ok)
	}
	if _, _, ok := m.ResolvePool("pool-b"); ok {
		t.Error("ResolvePool(pool-b) resolved an uninitialized pool")
	}
}

func TestEnrichUnlistedModeratorHasNoEffect(t *testing.T) {
	m, b := newTestMonitor(validAccounts(), &fakeAllowlist{allowed: map[string]bool{}})
	defer b.Close()
	added := b.Subscribe(bus.KindProposalAdded)

	m.enrich(context.Background(), "prop-1", "test")

	if m.Stats().Tracked != 0 {
		t.Error("unauthorized proposal was tracked")
	}
	if _, _, ok := m.ResolvePool("pool-a"); ok {
		t.Error("unauthorized proposal's pool was indexed")
	}
	select {
	case msg := <-added:
		t.Errorf("published %+v for unauthorized proposal", msg)
	default:
	}
	if m.Stats().Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", m.Stats().Rejected)
	}
}

func TestEnrichMissingDAOIsTracked(t *testing.T) {
	accounts := validAccounts()
	delete(accounts.daos, "dao-1")

	m, b := newTestMonitor(accounts, &fakeAllowlist{allowed: map[string]bool{"mod-1": true}})
	defer b.Close()

	m.enrich(context.Background(), "prop-1", "test")

	p, ok := m.Proposal("prop-1")
	if !ok {
		t.Fatal("proposal not tracked when DAO does not exist yet")
	}
	if p.DAO != nil {
		t.Errorf("DAO link = %+v, want nil", p.DAO)
	}
}

func TestEnrichRejectsChildDAO(t *testing.T) {
	accounts := validAccounts()
	accounts.daos["dao-1"].IsChild = true

	m, b := newTestMonitor(accounts, &fakeAllowlist{allowed: map[string]bool{"mod-1": true}})
	defer b.Close()

	m.enrich(context.Background(), "prop-1", "test")

	if m.Stats().Tracked != 0 {
		t.Error("proposal with child DAO was tracked")
	}
}

func TestEnrichRejectsModeratorMismatch(t *testing.T) {
	accounts := validAccounts()
	accounts.daos["dao-1"].Moderator = "mod-other"

	m, b := newTestMonitor(accounts, &fakeAllowlist{allowed: map[string]bool{"mod-1": true}})
	defer b.Close()

	m.enrich(context.Background(), "prop-1", "test")

	if m.Stats().Tracked != 0 {
		t.Error("proposal with mismatched dao moderator was tracked")
	}
}

func TestEnrichAbortsOnReadFailure(t *testing.T) {
	accounts := validAccounts()
	accounts.err = errors.New("rpc down")

	m, b := newTestMonitor(accounts, &fakeAllowlist{allowed: map[string]bool{"mod-1": true}})
	defer b.Close()

	m.enrich(context.Background(), "prop-1", "test")

	if stats := m.Stats(); stats.Tracked != 0 || stats.Rejected != 0 {
		t.Errorf("stats = %+v, want no tracking and no rejection on transient failure", stats)
	}
}

func TestFinalizeRemovesAndIsIdempotent(t *testing.T) {
	m, b := newTestMonitor(validAccounts(), &fakeAllowlist{allowed: map[string]bool{"mod-1": true}})
	defer b.Close()
	removed := b.Subscribe(bus.KindProposalRemoved)

	m.enrich(context.Background(), "prop-1", "test")

	m.handleFinalized(decode.ProposalFinalized{Proposal: "prop-1", WinningIndex: 2})

	if m.Stats().Tracked != 0 {
		t.Error("proposal still tracked after finalization")
	}
	if _, _, ok := m.ResolvePool("pool-a"); ok {
		t.Error("pool index entry survived finalization")
	}

	msg := recvMsg(t, removed)
	snap := msg.(bus.ProposalRemoved).Proposal
	if snap.Proposal != "prop-1" || len(snap.Pools) != 3 {
		t.Errorf("removal snapshot = %+v, want full pre-removal record", snap)
	}

	// Second finalization is a no-op.
	m.handleFinalized(decode.ProposalFinalized{Proposal: "prop-1", WinningIndex: 2})
	select {
	case msg := <-removed:
		t.Errorf("duplicate finalization published %+v", msg)
	default:
	}
}

func TestSwapOnTrackedPool(t *testing.T) {
	m, b := newTestMonitor(validAccounts(), &fakeAllowlist{allowed: map[string]bool{"mod-1": true}})
	defer b.Close()
	swaps := b.Subscribe(bus.KindSwapObserved)

	m.enrich(context.Background(), "prop-1", "test")

	observed := time.Now()
	m.handleSwap(decode.ConditionalSwap{
		Pool:      "pool-b",
		Trader:    "trader-1",
		Direction: "buy",
		AmountIn:  100,
		AmountOut: 90,
		Fee:       1,
	}, chain.LogBundle{Signature: "sig-1", ReceivedAt: observed})

	msg := recvMsg(t, swaps)
	swap := msg.(bus.SwapObserved).Swap
	want := model.SwapEvent{
		Proposal:   "prop-1",
		Pool:       "pool-b",
		Market:     1,
		Trader:     "trader-1",
		Direction:  "buy",
		AmountIn:   100,
		AmountOut:  90,
		Fee:        1,
		Signature:  "sig-1",
		ObservedAt: observed,
	}
	if swap != want {
		t.Errorf("swap = %+v, want %+v", swap, want)
	}
}

func TestSwapOnUntrackedPoolDropped(t *testing.T) {
	m, b := newTestMonitor(validAccounts(), &fakeAllowlist{allowed: map[string]bool{"mod-1": true}})
	defer b.Close()
	swaps := b.Subscribe(bus.KindSwapObserved)

	m.handleSwap(decode.ConditionalSwap{Pool: "unknown-pool"}, chain.LogBundle{Signature: "sig-1"})

	select {
	case msg := <-swaps:
		t.Errorf("published %+v for untracked pool", msg)
	default:
	}
	if m.Stats().SwapsDropped != 1 {
		t.Errorf("SwapsDropped = %d, want 1", m.Stats().SwapsDropped)
	}
}

func TestUpsertReplacesPoolIndex(t *testing.T) {
	s := newTrackerState()

	s.upsert(model.MonitoredProposal{Proposal: "p1", Pools: []string{"a", "b"}})
	s.upsert(model.MonitoredProposal{Proposal: "p1", Pools: []string{"c"}})

	if _, ok := s.resolvePool("a"); ok {
		t.Error("stale pool entry survived re-enrichment")
	}
	ref, ok := s.resolvePool("c")
	if !ok || ref.proposal != "p1" || ref.market != 0 {
		t.Errorf("resolvePool(c) = %+v, %v, want p1/0", ref, ok)
	}
}

func TestReconcileEnrichesMissedProposals(t *testing.T) {
	accounts := validAccounts()
	accounts.listed = []string{"prop-1"}

	m, b := newTestMonitor(accounts, &fakeAllowlist{allowed: map[string]bool{"mod-1": true}})
	defer b.Close()

	m.reconcile(context.Background())

	if !m.state.has("prop-1") {
		t.Error("reconcile did not pick up missed proposal")
	}

	// Already tracked: second scan changes nothing.
	before := m.Stats().Enriched
	m.reconcile(context.Background())
	if got := m.Stats().Enriched; got != before {
		t.Errorf("Enriched = %d after second scan, want %d", got, before)
	}
}

func TestHandleEventRunsLaunchAsync(t *testing.T) {
	m, b := newTestMonitor(validAccounts(), &fakeAllowlist{allowed: map[string]bool{"mod-1": true}})
	defer b.Close()
	added := b.Subscribe(bus.KindProposalAdded)

	m.HandleEvent(context.Background(), decode.ProposalLaunched{Proposal: "prop-1"}, chain.LogBundle{})

	recvMsg(t, added)
	if !m.state.has("prop-1") {
		t.Error("proposal not tracked after async launch handling")
	}
}
