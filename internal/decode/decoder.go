package decode

import (
	"encoding/base64"
	"encoding/binary"
	"log/slog"
	"strings"
	"sync"

	"github.com/mr-tron/base58"

	"github.com/openfutarchy/futarchy-data/internal/chain"
)

const eventLogPrefix = "Program data: "

// Stats counts decoder activity. UnmatchedLines growing while
// EventsDecoded stays flat is the signature of schema drift.
type Stats struct {
	LinesSeen         int64 // Log lines inspected
	EventsDecoded     int64 // Lines that yielded a typed event
	UnmatchedLines    int64 // Lines with no event payload or unknown discriminator
	TruncatedPayloads int64 // Known discriminator but short/invalid payload
}

// Decoder extracts typed events from log bundles.
type Decoder struct {
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewDecoder creates a Decoder.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// Stats returns a snapshot of decoder counters.
func (d *Decoder) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// DecodeBundle returns every known event found in the bundle's logs.
// Unknown lines are counted and skipped.
func (d *Decoder) DecodeBundle(bundle chain.LogBundle) []Event {
	var events []Event
	var seen, decoded, unmatched, truncated int64

	for _, line := range bundle.Logs {
		seen++

		payload, ok := strings.CutPrefix(line, eventLogPrefix)
		if !ok {
			unmatched++
			continue
		}

		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil || len(raw) < 8 {
			unmatched++
			continue
		}

		var disc [8]byte
		copy(disc[:], raw[:8])
		body := raw[8:]

		var ev Event
		switch disc {
		case discProposalLaunched:
			ev, ok = decodeProposalLaunched(body)
		case discProposalFinalized:
			ev, ok = decodeProposalFinalized(body)
		case discConditionalSwap:
			ev, ok = decodeConditionalSwap(body)
		default:
			unmatched++
			continue
		}

		if !ok {
			truncated++
			d.logger.Warn("truncated event payload",
				"signature", bundle.Signature,
				"len", len(body),
			)
			continue
		}

		decoded++
		events = append(events, ev)
	}

	d.mu.Lock()
	d.stats.LinesSeen += seen
	d.stats.EventsDecoded += decoded
	d.stats.UnmatchedLines += unmatched
	d.stats.TruncatedPayloads += truncated
	d.mu.Unlock()

	return events
}

func decodeProposalLaunched(body []byte) (Event, bool) {
	r := payloadReader{buf: body}
	ev := ProposalLaunched{
		Proposal:   r.pubkey(),
		ProposalID: r.u64(),
		NumOptions: int(r.u8()),
		CreatedAt:  r.i64(),
	}
	if r.failed {
		return nil, false
	}
	return ev, true
}

func decodeProposalFinalized(body []byte) (Event, bool) {
	r := payloadReader{buf: body}
	ev := ProposalFinalized{
		Proposal:     r.pubkey(),
		WinningIndex: int(r.u8()),
	}
	if r.failed {
		return nil, false
	}
	return ev, true
}

func decodeConditionalSwap(body []byte) (Event, bool) {
	r := payloadReader{buf: body}
	ev := ConditionalSwap{
		Pool:   r.pubkey(),
		Trader: r.pubkey(),
	}
	switch r.u8() {
	case 0:
		ev.Direction = "buy"
	case 1:
		ev.Direction = "sell"
	default:
		return nil, false
	}
	ev.AmountIn = r.u64()
	ev.AmountOut = r.u64()
	ev.Fee = r.u64()
	if r.failed {
		return nil, false
	}
	return ev, true
}

// payloadReader walks a little-endian event payload. Any short read
// marks the reader failed; callers check once at the end.
type payloadReader struct {
	buf    []byte
	pos    int
	failed bool
}

func (r *payloadReader) take(n int) []byte {
	if r.failed || r.pos+n > len(r.buf) {
		r.failed = true
		return nil
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *payloadReader) pubkey() string {
	b := r.take(32)
	if b == nil {
		return ""
	}
	return base58.Encode(b)
}

func (r *payloadReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *payloadReader) i64() int64 {
	return int64(r.u64())
}

func (r *payloadReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}
