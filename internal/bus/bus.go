// Package bus relays monitor state changes to consumers.
//
// The message set is closed: ProposalAdded, ProposalRemoved,
// SwapObserved. Consumers subscribe per variant and receive messages on
// a buffered channel in publish order. A consumer that stalls loses its
// oldest messages rather than blocking the publisher or its peers.
package bus

import (
	"log/slog"
	"sync"

	"github.com/openfutarchy/futarchy-data/internal/model"
)

// Message is the closed set of bus messages.
type Message interface {
	kind() Kind
}

// ProposalAdded is published when enrichment commits a new proposal.
type ProposalAdded struct {
	Proposal model.MonitoredProposal
}

// ProposalRemoved is published on finalization, carrying the
// pre-removal snapshot.
type ProposalRemoved struct {
	Proposal model.MonitoredProposal
}

// SwapObserved is published for each swap on a tracked pool.
type SwapObserved struct {
	Swap model.SwapEvent
}

// Kind selects a message variant for subscription.
type Kind int

const (
	KindProposalAdded Kind = iota
	KindProposalRemoved
	KindSwapObserved
)

func (ProposalAdded) kind() Kind   { return KindProposalAdded }
func (ProposalRemoved) kind() Kind { return KindProposalRemoved }
func (SwapObserved) kind() Kind    { return KindSwapObserved }

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 1000

// Bus is a typed publish/subscribe relay.
type Bus struct {
	logger  *slog.Logger
	bufSize int

	mu     sync.RWMutex
	subs   map[Kind][]chan Message
	closed bool
}

// New creates a Bus. bufSize <= 0 uses DefaultBufferSize.
func New(bufSize int, logger *slog.Logger) *Bus {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:  logger,
		bufSize: bufSize,
		subs:    make(map[Kind][]chan Message),
	}
}

// Subscribe registers for one message variant and returns the delivery
// channel. The channel is closed by Close.
func (b *Bus) Subscribe(kind Kind) <-chan Message {
	ch := make(chan Message, b.bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[kind] = append(b.subs[kind], ch)
	return ch
}

// Publish delivers the message to every subscriber of its variant. A
// full subscriber channel drops its oldest message to make room, so one
// slow consumer cannot stall the publisher or other consumers.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, ch := range b.subs[msg.kind()] {
		select {
		case ch <- msg:
		default:
			select {
			case <-ch:
				b.logger.Warn("bus subscriber lagging, dropping oldest message", "kind", msg.kind())
			default:
			}
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

// Close terminates all subscriber channels. Publish after Close is a
// no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = nil
}
