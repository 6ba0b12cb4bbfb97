package model

import (
	"testing"
	"time"
)

func TestMonitoredProposal_Clone(t *testing.T) {
	p := MonitoredProposal{
		Proposal: "prop-1",
		Pools:    []string{"pool-a", "pool-b"},
		DAO:      &DAOLink{DAO: "dao-1", SpotPool: "spot-1", SpotPoolKind: "amm"},
	}

	c := p.Clone()

	c.Pools[0] = "mutated"
	c.DAO.DAO = "mutated"

	if p.Pools[0] != "pool-a" {
		t.Errorf("Pools[0] = %q, want %q (clone must not alias)", p.Pools[0], "pool-a")
	}
	if p.DAO.DAO != "dao-1" {
		t.Errorf("DAO.DAO = %q, want %q (clone must not alias)", p.DAO.DAO, "dao-1")
	}
}

func TestMonitoredProposal_Clone_NilDAO(t *testing.T) {
	p := MonitoredProposal{Proposal: "prop-1"}
	c := p.Clone()
	if c.DAO != nil {
		t.Error("expected nil DAO in clone")
	}
}

func TestMonitoredProposal_TimeRemaining(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		endsAt time.Time
		want   time.Duration
	}{
		{"future", now.Add(90 * time.Second), 90 * time.Second},
		{"past", now.Add(-time.Hour), 0},
		{"exact", now, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := MonitoredProposal{EndsAt: tt.endsAt}
			if got := p.TimeRemaining(now); got != tt.want {
				t.Errorf("TimeRemaining = %v, want %v", got, tt.want)
			}
		})
	}
}
