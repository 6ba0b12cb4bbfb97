package sse

import (
	"strconv"
	"time"

	"github.com/openfutarchy/futarchy-data/internal/model"
)

// Amounts cross the wire as decimal strings. Raw lamport quantities
// exceed what a JSON consumer can hold in a float64.

// SwapPayload is the COND_SWAP event body.
type SwapPayload struct {
	Proposal  string `json:"proposal"`
	Pool      string `json:"pool"`
	Market    int    `json:"market"`
	Trader    string `json:"trader"`
	Direction string `json:"direction"`
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
	Fee       string `json:"fee"`
	Signature string `json:"signature"`
	Timestamp string `json:"ts"`
}

// PricePayload is the PRICE_UPDATE event body.
type PricePayload struct {
	Proposal  string `json:"proposal"`
	Pool      string `json:"pool"`
	Market    int    `json:"market"`
	Price     string `json:"price"`
	Timestamp string `json:"ts"`
}

// TWAPPayload is the TWAP_UPDATE event body.
type TWAPPayload struct {
	Proposal  string `json:"proposal"`
	Market    int    `json:"market"`
	TWAP      string `json:"twap"`
	Timestamp string `json:"ts"`
}

// ProposalPayload is the PROPOSAL_TRACKED and PROPOSAL_REMOVED body.
type ProposalPayload struct {
	Proposal   string   `json:"proposal"`
	ProposalID uint64   `json:"proposalId"`
	Name       string   `json:"name"`
	NumOptions int      `json:"numOptions"`
	Pools      []string `json:"pools"`
	EndsAt     string   `json:"endsAt"`
	DAO        string   `json:"dao,omitempty"`
}

// NewSwapPayload converts an observed swap for the stream.
func NewSwapPayload(e model.SwapEvent) SwapPayload {
	return SwapPayload{
		Proposal:  e.Proposal,
		Pool:      e.Pool,
		Market:    e.Market,
		Trader:    e.Trader,
		Direction: e.Direction,
		AmountIn:  strconv.FormatUint(e.AmountIn, 10),
		AmountOut: strconv.FormatUint(e.AmountOut, 10),
		Fee:       strconv.FormatUint(e.Fee, 10),
		Signature: e.Signature,
		Timestamp: e.ObservedAt.UTC().Format(time.RFC3339Nano),
	}
}

// NewPricePayload derives the price update for a swap. ok is false when
// the swap has no meaningful price.
func NewPricePayload(e model.SwapEvent) (PricePayload, bool) {
	price := e.Price()
	if price == "" {
		return PricePayload{}, false
	}
	return PricePayload{
		Proposal:  e.Proposal,
		Pool:      e.Pool,
		Market:    e.Market,
		Price:     price,
		Timestamp: e.ObservedAt.UTC().Format(time.RFC3339Nano),
	}, true
}

// NewTWAPPayload converts a TWAP snapshot for the stream.
func NewTWAPPayload(s model.TWAPSnapshot) TWAPPayload {
	return TWAPPayload{
		Proposal:  s.Proposal,
		Market:    s.Market,
		TWAP:      s.TWAP,
		Timestamp: s.RecordedAt.UTC().Format(time.RFC3339Nano),
	}
}

// NewProposalPayload converts a tracked proposal for the stream.
func NewProposalPayload(p model.MonitoredProposal) ProposalPayload {
	out := ProposalPayload{
		Proposal:   p.Proposal,
		ProposalID: p.ProposalID,
		Name:       p.Name,
		NumOptions: p.NumOptions,
		Pools:      p.Pools,
		EndsAt:     p.EndsAt.UTC().Format(time.RFC3339),
	}
	if p.DAO != nil {
		out.DAO = p.DAO.DAO
	}
	return out
}
