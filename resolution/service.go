// Package resolution drives the terminal transition of a dispute. Both paths
// land here: the unilateral resolve by the owner or assigned arbitrator, and
// the deadline-triggered finalize of a community vote. Nothing else in the
// system may mark a dispute Resolved or Rejected.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trustledger/chain"
	"trustledger/dispute"
	"trustledger/outbox"
	"trustledger/voting"
)

// CommunityResolution is the fixed resolution text stamped by Finalize.
const CommunityResolution = "Resolved by community voting"

// ErrUnauthorized signals a caller who is neither the owner nor the assigned
// arbitrator. Dispute parties are deliberately not authorized here.
var ErrUnauthorized = errors.New("resolution: unauthorized")

// DisputeStore is the slice of the dispute repository the engine needs.
type DisputeStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (dispute.Record, error)
	MarkTerminal(ctx context.Context, tx pgx.Tx, id int64, status dispute.Status, resolvedAtHeight int64, resolution string) error
}

// VoteTally reads the locked summary during finalization.
type VoteTally interface {
	GetSummaryForUpdate(ctx context.Context, tx pgx.Tx, disputeID int64) (voting.Summary, error)
}

// ArbitratorStats records resolution statistics for assigned arbitrators.
type ArbitratorStats interface {
	IncrementCases(ctx context.Context, tx pgx.Tx, principal string) error
}

// OutboxWriter appends facts inside the mutation's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service composes the dispute store, voting ledger, and arbitrator registry
// to produce terminal resolutions.
type Service struct {
	pool     TxBeginner
	disputes DisputeStore
	tally    VoteTally
	arbs     ArbitratorStats
	outbox   OutboxWriter
	clock    *chain.Clock
	owner    string
	now      func() time.Time
}

func NewService(pool *pgxpool.Pool, disputes DisputeStore, tally VoteTally, arbs ArbitratorStats, ob OutboxWriter, clock *chain.Clock, owner string) *Service {
	return &Service{
		pool:     pool,
		disputes: disputes,
		tally:    tally,
		arbs:     arbs,
		outbox:   ob,
		clock:    clock,
		owner:    owner,
		now:      time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithTxBeginner overrides the transaction source for tests.
func (s *Service) WithTxBeginner(pool TxBeginner) *Service {
	s.pool = pool
	return s
}

// Resolve applies a unilateral resolution. Authorized callers are exactly the
// system owner and the dispute's assigned arbitrator, if any. The dispute
// must be in arbitration; a dispute already resolved by the racing community
// path is rejected here rather than overwritten.
func (s *Service) Resolve(ctx context.Context, caller string, disputeID int64, resolutionText string, favorComplainant bool) (dispute.Record, error) {
	if resolutionText == "" {
		return dispute.Record{}, fmt.Errorf("resolution: resolution text required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return dispute.Record{}, fmt.Errorf("resolution: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.disputes.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return dispute.Record{}, err
	}

	authorized := caller == s.owner || (d.Arbitrator != nil && caller == *d.Arbitrator)
	if !authorized {
		return dispute.Record{}, ErrUnauthorized
	}
	if d.Status != dispute.StatusInArbitration {
		return dispute.Record{}, dispute.ErrInvalidStatus
	}

	status := dispute.StatusRejected
	if favorComplainant {
		status = dispute.StatusResolved
	}
	height := s.clock.HeightAt(s.now())

	if err := s.disputes.MarkTerminal(ctx, tx, disputeID, status, height, resolutionText); err != nil {
		return dispute.Record{}, err
	}
	if d.Arbitrator != nil {
		if err := s.arbs.IncrementCases(ctx, tx, *d.Arbitrator); err != nil {
			return dispute.Record{}, err
		}
	}

	if err := s.outbox.Enqueue(ctx, tx, outbox.TopicDisputeResolved, map[string]any{
		"dispute_id":        disputeID,
		"resolution":        resolutionText,
		"favor_complainant": favorComplainant,
		"resolved_by":       caller,
	}); err != nil {
		return dispute.Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return dispute.Record{}, fmt.Errorf("resolution: commit: %w", err)
	}
	resolvedTotal.WithLabelValues(string(status), "resolve").Inc()

	d.Status = status
	d.ResolvedAtHeight = &height
	d.Resolution = &resolutionText
	return d, nil
}

// Finalize closes a community vote once the deadline has passed. Callable by
// anyone; deadlines are evaluated lazily, so nothing happens until someone
// calls this. The complainant wins only on a strict stake majority; every
// tie, including a voteless 0-0, resolves for the respondent.
func (s *Service) Finalize(ctx context.Context, disputeID int64) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("resolution: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.disputes.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return false, err
	}
	if d.Status != dispute.StatusInArbitration {
		return false, dispute.ErrInvalidStatus
	}

	summary, err := s.tally.GetSummaryForUpdate(ctx, tx, disputeID)
	if err != nil {
		return false, err
	}
	if s.clock.HeightAt(s.now()) < summary.VotingEndsAt {
		return false, voting.ErrVotingClosed
	}

	wins := summary.ComplainantWins()
	status := dispute.StatusRejected
	if wins {
		status = dispute.StatusResolved
	}
	height := s.clock.HeightAt(s.now())

	if err := s.disputes.MarkTerminal(ctx, tx, disputeID, status, height, CommunityResolution); err != nil {
		return false, err
	}

	if err := s.outbox.Enqueue(ctx, tx, outbox.TopicVotingFinalized, map[string]any{
		"dispute_id":       disputeID,
		"complainant_wins": wins,
		"total_votes":      summary.TotalVotes,
		"total_stake":      summary.TotalStake,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("resolution: commit: %w", err)
	}
	resolvedTotal.WithLabelValues(string(status), "finalize").Inc()
	return wins, nil
}
