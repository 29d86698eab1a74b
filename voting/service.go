package voting

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
	"trustledger/params"
	"trustledger/token"
)

var (
	// ErrUnauthorized signals a caller who is not a dispute party.
	ErrUnauthorized = errors.New("voting: unauthorized")
	// ErrVotingClosed signals the deadline has passed.
	ErrVotingClosed = errors.New("voting: voting closed")
	// ErrInsufficientStake signals a stake below the protocol floor.
	ErrInsufficientStake = errors.New("voting: stake below minimum")
	// ErrTransferFailed signals the stake could not be moved into escrow.
	ErrTransferFailed = errors.New("voting: stake transfer failed")
)

// DisputeStore is the slice of the dispute repository the ledger needs.
type DisputeStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (dispute.Record, error)
	MarkInArbitration(ctx context.Context, tx pgx.Tx, id int64) error
}

// LedgerStore is the data access required by the service.
type LedgerStore interface {
	CreateSummary(ctx context.Context, tx pgx.Tx, disputeID, votingEndsAt int64) error
	GetSummaryForUpdate(ctx context.Context, tx pgx.Tx, disputeID int64) (Summary, error)
	HasVoted(ctx context.Context, tx pgx.Tx, disputeID int64, voter string) (bool, error)
	InsertVote(ctx context.Context, tx pgx.Tx, rec VoteRecord) error
	ApplyVote(ctx context.Context, tx pgx.Tx, disputeID int64, favorComplainant bool, stake int64) error
	GetSummary(ctx context.Context, disputeID int64) (Summary, error)
	GetVote(ctx context.Context, disputeID int64, voter string) (VoteRecord, error)
}

// OutboxWriter appends facts inside the mutation's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service owns per-voter stake records and the aggregated vote summary.
// Finalization lives in the resolution package; this ledger only opens
// windows and accumulates votes.
type Service struct {
	pool       TxBeginner
	repo       LedgerStore
	disputes   DisputeStore
	outbox     OutboxWriter
	clock      *chain.Clock
	now        func() time.Time
	transfer   func(ctx context.Context, tx pgx.Tx, from, to string, amount int64) error
	loadParams func(ctx context.Context, tx pgx.Tx) (params.Params, error)
}

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func NewService(pool *pgxpool.Pool, repo LedgerStore, disputes DisputeStore, ob OutboxWriter, clock *chain.Clock) *Service {
	if repo == nil {
		repo = NewRepository(pool)
	}
	return &Service{
		pool:       pool,
		repo:       repo,
		disputes:   disputes,
		outbox:     ob,
		clock:      clock,
		now:        time.Now,
		transfer:   token.Transfer,
		loadParams: params.Get,
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

// WithTransfer overrides the escrow transfer for tests.
func (s *Service) WithTransfer(fn func(ctx context.Context, tx pgx.Tx, from, to string, amount int64) error) *Service {
	s.transfer = fn
	return s
}

// WithParams overrides parameter loading for tests.
func (s *Service) WithParams(fn func(ctx context.Context, tx pgx.Tx) (params.Params, error)) *Service {
	s.loadParams = fn
	return s
}

// Start opens community voting on an Open dispute. Only a dispute party may
// start it; this is the alternative to direct arbitrator assignment and both
// paths converge on the same terminal states.
func (s *Service) Start(ctx context.Context, caller string, disputeID int64) (Summary, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("voting: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.disputes.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return Summary{}, err
	}
	if !d.Party(caller) {
		return Summary{}, ErrUnauthorized
	}
	if d.Status != dispute.StatusOpen {
		return Summary{}, dispute.ErrInvalidStatus
	}

	p, err := s.loadParams(ctx, tx)
	if err != nil {
		return Summary{}, err
	}
	endsAt := s.clock.HeightAt(s.now()) + p.VotingPeriod

	if err := s.repo.CreateSummary(ctx, tx, disputeID, endsAt); err != nil {
		return Summary{}, err
	}
	if err := s.disputes.MarkInArbitration(ctx, tx, disputeID); err != nil {
		return Summary{}, err
	}

	if err := s.outbox.Enqueue(ctx, tx, outbox.TopicVotingStarted, map[string]any{
		"dispute_id":     disputeID,
		"voting_ends_at": endsAt,
	}); err != nil {
		return Summary{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Summary{}, fmt.Errorf("voting: commit: %w", err)
	}
	return Summary{DisputeID: disputeID, VotingEndsAt: endsAt}, nil
}

// Cast records a stake-weighted vote. The stake moves into escrow in the same
// transaction as the record and summary writes: either all three happen or
// none do.
func (s *Service) Cast(ctx context.Context, caller string, disputeID int64, favorComplainant bool, stake int64) (VoteRecord, error) {
	if caller == "" {
		return VoteRecord{}, fmt.Errorf("voting: missing voter")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return VoteRecord{}, fmt.Errorf("voting: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	summary, err := s.repo.GetSummaryForUpdate(ctx, tx, disputeID)
	if err != nil {
		return VoteRecord{}, err
	}

	height := s.clock.HeightAt(s.now())
	if height >= summary.VotingEndsAt {
		return VoteRecord{}, ErrVotingClosed
	}

	// A duplicate vote is rejected as such no matter what stake it carries.
	voted, err := s.repo.HasVoted(ctx, tx, disputeID, caller)
	if err != nil {
		return VoteRecord{}, err
	}
	if voted {
		return VoteRecord{}, ErrAlreadyVoted
	}

	p, err := s.loadParams(ctx, tx)
	if err != nil {
		return VoteRecord{}, err
	}
	if stake < p.MinVoteStake {
		return VoteRecord{}, ErrInsufficientStake
	}

	// Escrow first: the record and tally must never exist without the stake.
	if err := s.transfer(ctx, tx, caller, token.EscrowAccount, stake); err != nil {
		if errors.Is(err, token.ErrInsufficientFunds) {
			return VoteRecord{}, ErrTransferFailed
		}
		return VoteRecord{}, fmt.Errorf("voting: escrow stake: %w", err)
	}

	rec := VoteRecord{
		DisputeID:        disputeID,
		Voter:            caller,
		FavorComplainant: favorComplainant,
		Stake:            stake,
		VotedAtHeight:    height,
	}
	if err := s.repo.InsertVote(ctx, tx, rec); err != nil {
		return VoteRecord{}, err
	}
	if err := s.repo.ApplyVote(ctx, tx, disputeID, favorComplainant, stake); err != nil {
		return VoteRecord{}, err
	}

	if err := s.outbox.Enqueue(ctx, tx, outbox.TopicVoteCast, map[string]any{
		"dispute_id": disputeID,
		"voter":      caller,
		"vote":       favorComplainant,
		"stake":      stake,
	}); err != nil {
		return VoteRecord{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return VoteRecord{}, fmt.Errorf("voting: commit: %w", err)
	}

	votesTotal.WithLabelValues(sideLabel(favorComplainant)).Inc()
	stakeEscrowed.Add(float64(stake))
	return rec, nil
}

// Summary returns the aggregated tally for a dispute.
func (s *Service) Summary(ctx context.Context, disputeID int64) (Summary, error) {
	return s.repo.GetSummary(ctx, disputeID)
}

// Vote returns a specific voter's record.
func (s *Service) Vote(ctx context.Context, disputeID int64, voter string) (VoteRecord, error) {
	return s.repo.GetVote(ctx, disputeID, voter)
}

func sideLabel(favorComplainant bool) string {
	if favorComplainant {
		return "complainant"
	}
	return "respondent"
}
