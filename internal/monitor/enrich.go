package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openfutarchy/futarchy-data/internal/bus"
	"github.com/openfutarchy/futarchy-data/internal/model"
	"github.com/openfutarchy/futarchy-data/internal/rpc"
)

// enrich runs the launch pipeline for one proposal: read the proposal
// account, authorize its moderator, resolve the moderator and optional
// DAO linkage, verify the pool set, then commit to the tracked set and
// announce on the bus.
//
// A transient read failure aborts without tracking; the reconcile loop
// retries later. An authorization or consistency failure rejects the
// proposal outright.
func (m *Monitor) enrich(ctx context.Context, address, origin string) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.EnrichTimeout)
	defer cancel()

	logger := m.logger.With("proposal", address, "origin", origin)

	acc, err := m.accounts.GetProposal(ctx, address)
	if err != nil {
		logger.Warn("enrichment aborted: proposal read failed", "error", err)
		return
	}

	allowed, err := m.allow.Contains(ctx, acc.Moderator)
	if err != nil {
		logger.Warn("enrichment aborted: allow-list lookup failed", "error", err)
		return
	}
	if !allowed {
		m.rejected.Add(1)
		logger.Info("proposal ignored: moderator not allow-listed", "moderator", acc.Moderator)
		return
	}

	mod, err := m.accounts.GetModerator(ctx, acc.Moderator)
	if err != nil {
		logger.Warn("enrichment aborted: moderator read failed", "moderator", acc.Moderator, "error", err)
		return
	}

	dao, ok := m.resolveDAO(ctx, logger, acc, mod)
	if !ok {
		return
	}

	pools, err := m.initializedPools(ctx, acc.Pools)
	if err != nil {
		logger.Warn("enrichment aborted: pool check failed", "error", err)
		return
	}

	now := time.Now()
	proposal := model.MonitoredProposal{
		Proposal:   acc.Proposal,
		ProposalID: acc.ProposalID,
		NumOptions: acc.NumOptions,
		Pools:      pools,
		EndsAt:     now.Add(time.Duration(acc.TimeRemaining) * time.Second),
		CreatedAt:  time.Unix(acc.CreatedAt, 0).UTC(),
		Moderator:  acc.Moderator,
		Name:       acc.Name,
		BaseMint:   acc.BaseMint,
		QuoteMint:  acc.QuoteMint,
		DAO:        dao,
	}

	m.state.upsert(proposal)
	m.enriched.Add(1)
	logger.Info("proposal tracked",
		"proposal_id", proposal.ProposalID,
		"pools", len(proposal.Pools),
		"ends_at", proposal.EndsAt,
		"has_dao", dao != nil,
	)
	m.bus.Publish(bus.ProposalAdded{Proposal: proposal.Clone()})
}

// resolveDAO follows the moderator's DAO reference. A missing DAO
// account is a normal launch-before-DAO ordering and yields a nil link.
// A child DAO or a moderator mismatch rejects the proposal.
func (m *Monitor) resolveDAO(ctx context.Context, logger *slog.Logger, acc *rpc.ProposalAccount, mod *rpc.ModeratorAccount) (*model.DAOLink, bool) {
	dao, err := m.accounts.GetDAO(ctx, mod.DAO)
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, true
	}
	if err != nil {
		logger.Warn("enrichment aborted: dao read failed", "dao", mod.DAO, "error", err)
		return nil, false
	}

	if dao.IsChild {
		m.rejected.Add(1)
		logger.Warn("proposal rejected: child DAOs are not supported", "dao", dao.DAO)
		return nil, false
	}
	if dao.Moderator != acc.Moderator {
		m.rejected.Add(1)
		logger.Error("proposal rejected: dao moderator mismatch",
			"dao", dao.DAO,
			"dao_moderator", dao.Moderator,
			"proposal_moderator", acc.Moderator,
		)
		return nil, false
	}

	return &model.DAOLink{
		DAO:          dao.DAO,
		SpotPool:     dao.SpotPool,
		SpotPoolKind: dao.SpotPoolKind,
	}, true
}

// initializedPools filters the proposal's pool list down to accounts
// that exist on-chain, preserving order.
func (m *Monitor) initializedPools(ctx context.Context, pools []string) ([]string, error) {
	out := make([]string, 0, len(pools))
	for _, pool := range pools {
		exists, err := m.accounts.PoolInitialized(ctx, pool)
		if err != nil {
			return nil, err
		}
		if exists {
			out = append(out, pool)
		}
	}
	return out, nil
}
