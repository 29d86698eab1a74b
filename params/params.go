// Package params owns the protocol parameters that gate dispute operations.
// They live in a single database row so every transaction reads a consistent
// snapshot; updates are owner-gated and affect only future operations.
package params

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Defaults applied by the initial migration.
const (
	DefaultArbitrationFee = 1_000_000
	DefaultVotingPeriod   = 144
	DefaultMinVoteStake   = 100_000
)

// ErrUnauthorized signals a non-owner attempting a parameter update.
var ErrUnauthorized = errors.New("params: unauthorized")

// Params is the protocol parameter snapshot.
type Params struct {
	ArbitrationFee int64
	VotingPeriod   int64
	MinVoteStake   int64
}

// Get loads the parameter row inside the caller's transaction.
func Get(ctx context.Context, tx pgx.Tx) (Params, error) {
	var p Params
	err := tx.QueryRow(ctx, `
		SELECT arbitration_fee, voting_period, min_vote_stake FROM protocol_params WHERE id = 1
	`).Scan(&p.ArbitrationFee, &p.VotingPeriod, &p.MinVoteStake)
	if err != nil {
		return Params{}, fmt.Errorf("params: load: %w", err)
	}
	return p, nil
}

// Service exposes owner-gated parameter updates and a pool-backed read.
type Service struct {
	pool  *pgxpool.Pool
	owner string
}

func NewService(pool *pgxpool.Pool, owner string) *Service {
	return &Service{pool: pool, owner: owner}
}

// Current returns the live parameter snapshot.
func (s *Service) Current(ctx context.Context) (Params, error) {
	var p Params
	err := s.pool.QueryRow(ctx, `
		SELECT arbitration_fee, voting_period, min_vote_stake FROM protocol_params WHERE id = 1
	`).Scan(&p.ArbitrationFee, &p.VotingPeriod, &p.MinVoteStake)
	if err != nil {
		return Params{}, fmt.Errorf("params: current: %w", err)
	}
	return p, nil
}

// SetArbitrationFee updates the fee charged on arbitrator registration.
func (s *Service) SetArbitrationFee(ctx context.Context, caller string, fee int64) error {
	return s.set(ctx, caller, "arbitration_fee", fee)
}

// SetVotingPeriod updates the voting window length in heights. Summaries
// already created keep their stored deadline.
func (s *Service) SetVotingPeriod(ctx context.Context, caller string, period int64) error {
	return s.set(ctx, caller, "voting_period", period)
}

// SetMinVoteStake updates the protocol stake floor for new votes.
func (s *Service) SetMinVoteStake(ctx context.Context, caller string, stake int64) error {
	return s.set(ctx, caller, "min_vote_stake", stake)
}

func (s *Service) set(ctx context.Context, caller, column string, value int64) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	if value <= 0 {
		return fmt.Errorf("params: %s must be positive", column)
	}
	// column is one of the fixed names above, never caller input.
	query := fmt.Sprintf(`UPDATE protocol_params SET %s = $1, updated_at = now() WHERE id = 1`, column)
	tag, err := s.pool.Exec(ctx, query, value)
	if err != nil {
		return fmt.Errorf("params: set %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("params: parameter row missing; run migrations")
	}
	return nil
}
