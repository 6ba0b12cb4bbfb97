package monitor

import (
	"sync"

	"github.com/openfutarchy/futarchy-data/internal/model"
)

// poolRef locates a conditional pool inside a tracked proposal.
type poolRef struct {
	proposal string
	market   int
}

// trackerState holds the monitored proposal set together with the
// pool-to-proposal reverse index. The two structures change only inside
// upsert and removeByProposal, under one lock, so a reader can never see
// a pool pointing at a proposal that is not tracked.
type trackerState struct {
	mu        sync.RWMutex
	proposals map[string]model.MonitoredProposal
	pools     map[string]poolRef
}

func newTrackerState() *trackerState {
	return &trackerState{
		proposals: make(map[string]model.MonitoredProposal),
		pools:     make(map[string]poolRef),
	}
}

// upsert stores the proposal and rebuilds its pool index entries. A
// re-enrichment of an already tracked proposal replaces the previous
// record wholesale.
func (s *trackerState) upsert(p model.MonitoredProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.proposals[p.Proposal]; ok {
		for _, pool := range old.Pools {
			delete(s.pools, pool)
		}
	}

	s.proposals[p.Proposal] = p
	for i, pool := range p.Pools {
		s.pools[pool] = poolRef{proposal: p.Proposal, market: i}
	}
}

// removeByProposal drops the proposal and all of its pool entries,
// returning the removed snapshot. ok is false when the proposal was not
// tracked.
func (s *trackerState) removeByProposal(proposal string) (model.MonitoredProposal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[proposal]
	if !ok {
		return model.MonitoredProposal{}, false
	}

	delete(s.proposals, proposal)
	for _, pool := range p.Pools {
		delete(s.pools, pool)
	}
	return p, true
}

// get returns a copy of the tracked proposal.
func (s *trackerState) get(proposal string) (model.MonitoredProposal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[proposal]
	if !ok {
		return model.MonitoredProposal{}, false
	}
	return p.Clone(), true
}

// has reports whether the proposal is tracked, without copying.
func (s *trackerState) has(proposal string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.proposals[proposal]
	return ok
}

// list returns copies of every tracked proposal.
func (s *trackerState) list() []model.MonitoredProposal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.MonitoredProposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		out = append(out, p.Clone())
	}
	return out
}

// resolvePool maps a pool PDA to its owning proposal and market index.
func (s *trackerState) resolvePool(pool string) (poolRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.pools[pool]
	return ref, ok
}

// count returns the number of tracked proposals.
func (s *trackerState) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.proposals)
}
