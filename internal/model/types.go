package model

import (
	"math/big"
	"time"
)

// -----------------------------------------------------------------------------
// Monitor Types
// -----------------------------------------------------------------------------

// DAOLink is the optional DAO linkage of a proposal. A proposal may be
// launched before its DAO account exists; in that case the link is nil
// and the proposal is tracked without it.
type DAOLink struct {
	DAO          string // DAO PDA
	SpotPool     string // Spot pool PDA
	SpotPoolKind string // Spot pool type (e.g. "amm", "clmm")
}

// MonitoredProposal is a fully enriched futarchy proposal tracked by the
// monitor. It is created only by the enrichment pipeline and treated as
// immutable afterwards; consumers receive copies.
type MonitoredProposal struct {
	Proposal   string    // Primary key: proposal PDA
	ProposalID uint64    // On-chain numeric proposal id
	NumOptions int       // Number of outcome markets
	Pools      []string  // Conditional pool PDAs; index = option index
	EndsAt     time.Time // Absolute end time (time remaining + wall clock at enrichment)
	CreatedAt  time.Time // On-chain creation time
	Moderator  string    // Moderator account PDA
	Name       string    // Display name
	BaseMint   string    // Base asset mint
	QuoteMint  string    // Quote asset mint
	DAO        *DAOLink  // Optional DAO linkage, nil if the DAO does not exist yet
}

// Clone returns a deep copy safe to hand to consumers.
func (p MonitoredProposal) Clone() MonitoredProposal {
	out := p
	out.Pools = append([]string(nil), p.Pools...)
	if p.DAO != nil {
		dao := *p.DAO
		out.DAO = &dao
	}
	return out
}

// TimeRemaining returns the time until EndsAt, floored at zero.
func (p MonitoredProposal) TimeRemaining(now time.Time) time.Duration {
	d := p.EndsAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// SwapEvent is a trade observed on one of a tracked proposal's outcome
// markets. It is transient: constructed, published on the bus, discarded.
type SwapEvent struct {
	Proposal   string    // Owning proposal PDA
	Pool       string    // Conditional pool PDA the swap executed on
	Market     int       // Option index of Pool within the proposal
	Trader     string    // Trader account
	Direction  string    // "buy" or "sell"
	AmountIn   uint64    // Input amount (raw units)
	AmountOut  uint64    // Output amount (raw units)
	Fee        uint64    // Fee amount (raw units)
	Signature  string    // Transaction signature
	ObservedAt time.Time // Local receive time
}

// Price returns the execution price in quote units per base unit as a
// decimal string. Buys spend quote for base, sells the reverse; an
// empty string means the trade has a zero leg and no meaningful price.
func (e SwapEvent) Price() string {
	var quote, base uint64
	switch e.Direction {
	case "buy":
		quote, base = e.AmountIn, e.AmountOut
	case "sell":
		base, quote = e.AmountIn, e.AmountOut
	default:
		return ""
	}
	if base == 0 {
		return ""
	}
	r := new(big.Rat).SetFrac(new(big.Int).SetUint64(quote), new(big.Int).SetUint64(base))
	return r.FloatString(9)
}

// -----------------------------------------------------------------------------
// History Types
// -----------------------------------------------------------------------------

// TradeRecord is one persisted swap in the history store.
type TradeRecord struct {
	Signature  string    // Transaction signature (dedup key)
	Proposal   string    // Proposal PDA
	Market     int       // Option index
	Pool       string    // Conditional pool PDA
	Trader     string    // Trader account
	Direction  string    // "buy" or "sell"
	Price      string    // Execution price as a decimal string
	AmountIn   uint64    // Input amount (raw units)
	AmountOut  uint64    // Output amount (raw units)
	Fee        uint64    // Fee amount (raw units)
	ExecutedAt time.Time // Execution time
}

// TWAPSnapshot is one persisted time-weighted average price observation.
// The TWAP itself is computed on-chain; the monitor only relays it.
type TWAPSnapshot struct {
	Proposal   string    // Proposal PDA
	Market     int       // Option index
	TWAP       string    // TWAP as a decimal string
	RecordedAt time.Time // Observation time
}
