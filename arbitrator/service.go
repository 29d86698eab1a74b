package arbitrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trustledger/chain"
	"trustledger/outbox"
	"trustledger/params"
	"trustledger/token"
)

var (
	// ErrUnauthorized signals a caller without the required role.
	ErrUnauthorized = errors.New("arbitrator: unauthorized")
	// ErrTransferFailed signals the registration fee could not be collected.
	ErrTransferFailed = errors.New("arbitrator: fee transfer failed")
)

// OutboxWriter appends facts inside the registration transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Store is the data access required by the service.
type Store interface {
	Upsert(ctx context.Context, tx pgx.Tx, arb Arbitrator) error
	Deactivate(ctx context.Context, principal string) error
	Get(ctx context.Context, principal string) (Arbitrator, error)
}

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service implements the arbitrator registry: permissionless fee-gated
// registration, owner-gated deactivation.
type Service struct {
	pool       TxBeginner
	repo       Store
	outbox     OutboxWriter
	clock      *chain.Clock
	owner      string
	now        func() time.Time
	transfer   func(ctx context.Context, tx pgx.Tx, from, to string, amount int64) error
	loadParams func(ctx context.Context, tx pgx.Tx) (params.Params, error)
}

func NewService(pool *pgxpool.Pool, repo Store, ob OutboxWriter, clock *chain.Clock, owner string) *Service {
	if repo == nil {
		repo = NewRepository(pool)
	}
	return &Service{
		pool:       pool,
		repo:       repo,
		outbox:     ob,
		clock:      clock,
		owner:      owner,
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

// WithTransfer overrides the fee transfer for tests.
func (s *Service) WithTransfer(fn func(ctx context.Context, tx pgx.Tx, from, to string, amount int64) error) *Service {
	s.transfer = fn
	return s
}

// WithParams overrides parameter loading for tests.
func (s *Service) WithParams(fn func(ctx context.Context, tx pgx.Tx) (params.Params, error)) *Service {
	s.loadParams = fn
	return s
}

// Register collects the arbitration fee from the caller and creates (or
// overwrites) their arbitrator record: active, zero cases, initial
// reputation. Fee transfer and record creation commit together or not at all.
func (s *Service) Register(ctx context.Context, caller string) (Arbitrator, error) {
	if caller == "" {
		return Arbitrator{}, fmt.Errorf("arbitrator: missing caller")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Arbitrator{}, fmt.Errorf("arbitrator: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.loadParams(ctx, tx)
	if err != nil {
		return Arbitrator{}, err
	}

	if err := s.transfer(ctx, tx, caller, s.owner, p.ArbitrationFee); err != nil {
		if errors.Is(err, token.ErrInsufficientFunds) {
			return Arbitrator{}, ErrTransferFailed
		}
		return Arbitrator{}, fmt.Errorf("arbitrator: collect fee: %w", err)
	}

	arb := Arbitrator{
		Principal:          caller,
		Active:             true,
		CasesHandled:       0,
		Reputation:         InitialReputation,
		RegisteredAtHeight: s.clock.HeightAt(s.now()),
	}
	if err := s.repo.Upsert(ctx, tx, arb); err != nil {
		return Arbitrator{}, err
	}

	if err := s.outbox.Enqueue(ctx, tx, outbox.TopicArbitratorRegistered, map[string]any{
		"arbitrator": caller,
	}); err != nil {
		return Arbitrator{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Arbitrator{}, fmt.Errorf("arbitrator: commit: %w", err)
	}
	registrationsTotal.Inc()
	return arb, nil
}

// Deactivate revokes an arbitrator. Owner only; the record and its history
// survive.
func (s *Service) Deactivate(ctx context.Context, caller, principal string) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	return s.repo.Deactivate(ctx, principal)
}

// Get returns the arbitrator record for a principal.
func (s *Service) Get(ctx context.Context, principal string) (Arbitrator, error) {
	return s.repo.Get(ctx, principal)
}
