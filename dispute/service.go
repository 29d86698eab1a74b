package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trustledger/arbitrator"
	"trustledger/chain"
	"trustledger/outbox"
)

var (
	// ErrUnauthorized signals the caller lacks the required relationship to
	// the dispute, or the assignment target is not an active arbitrator.
	ErrUnauthorized = errors.New("dispute: unauthorized")
	// ErrInvalidStatus signals an operation against the wrong lifecycle state.
	ErrInvalidStatus = errors.New("dispute: invalid status")
)

// TxRepository is the data access the service needs within a transaction.
type TxRepository interface {
	Create(ctx context.Context, tx pgx.Tx, rec Record) (Record, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Record, error)
	SetArbitrator(ctx context.Context, tx pgx.Tx, id int64, arb string) error
	GetByID(ctx context.Context, id int64) (Record, error)
	GetByInvoice(ctx context.Context, invoiceID string) (Record, error)
	Count(ctx context.Context) (int64, error)
}

// ArbitratorDirectory resolves assignment targets inside the same transaction
// so a concurrent deactivation cannot slip between check and assignment.
type ArbitratorDirectory interface {
	GetTx(ctx context.Context, tx pgx.Tx, principal string) (arbitrator.Arbitrator, error)
}

// OutboxWriter appends facts inside the mutation's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service owns the canonical dispute record: filing and arbitrator
// assignment. Terminal transitions live in the resolution package.
type Service struct {
	pool   TxBeginner
	repo   TxRepository
	arbs   ArbitratorDirectory
	outbox OutboxWriter
	clock  *chain.Clock
	owner  string
	now    func() time.Time
}

func NewService(pool *pgxpool.Pool, repo TxRepository, arbs ArbitratorDirectory, ob OutboxWriter, clock *chain.Clock, owner string) *Service {
	if repo == nil {
		repo = NewRepository(pool)
	}
	return &Service{
		pool:   pool,
		repo:   repo,
		arbs:   arbs,
		outbox: ob,
		clock:  clock,
		owner:  owner,
		now:    time.Now,
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

// File opens a dispute against an invoice. The invoice id is an opaque
// reference; this store never consults the invoice ledger. At most one
// dispute may exist per invoice.
func (s *Service) File(ctx context.Context, caller, invoiceID, respondent, reason string, amount int64) (Record, error) {
	if caller == "" || respondent == "" {
		return Record{}, fmt.Errorf("dispute: complainant and respondent required")
	}
	if invoiceID == "" {
		return Record{}, fmt.Errorf("dispute: invoice id required")
	}
	if amount <= 0 {
		return Record{}, fmt.Errorf("dispute: disputed amount must be positive")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.Create(ctx, tx, Record{
		InvoiceID:       invoiceID,
		Complainant:     caller,
		Respondent:      respondent,
		Reason:          reason,
		Amount:          amount,
		Status:          StatusOpen,
		CreatedAtHeight: s.clock.HeightAt(s.now()),
	})
	if err != nil {
		return Record{}, err
	}

	if err := s.outbox.Enqueue(ctx, tx, outbox.TopicDisputeFiled, map[string]any{
		"dispute_id":  rec.ID,
		"invoice_id":  rec.InvoiceID,
		"complainant": rec.Complainant,
		"respondent":  rec.Respondent,
		"amount":      rec.Amount,
	}); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit: %w", err)
	}
	filedTotal.Inc()
	return rec, nil
}

// AssignArbitrator places an Open dispute under a registered, active
// arbitrator. Callable by the owner or either dispute party.
func (s *Service) AssignArbitrator(ctx context.Context, caller string, disputeID int64, arb string) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return Record{}, err
	}
	if caller != s.owner && !rec.Party(caller) {
		return Record{}, ErrUnauthorized
	}
	if rec.Status != StatusOpen {
		return Record{}, ErrInvalidStatus
	}

	target, err := s.arbs.GetTx(ctx, tx, arb)
	if err != nil {
		if errors.Is(err, arbitrator.ErrNotFound) {
			return Record{}, ErrUnauthorized
		}
		return Record{}, err
	}
	if !target.Active {
		return Record{}, ErrUnauthorized
	}

	if err := s.repo.SetArbitrator(ctx, tx, disputeID, arb); err != nil {
		return Record{}, err
	}

	if err := s.outbox.Enqueue(ctx, tx, outbox.TopicArbitratorAssigned, map[string]any{
		"dispute_id": disputeID,
		"arbitrator": arb,
	}); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit: %w", err)
	}

	rec.Arbitrator = &arb
	rec.Status = StatusInArbitration
	return rec, nil
}

// Get returns a dispute by id.
func (s *Service) Get(ctx context.Context, id int64) (Record, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByInvoice returns the dispute filed against an invoice.
func (s *Service) GetByInvoice(ctx context.Context, invoiceID string) (Record, error) {
	return s.repo.GetByInvoice(ctx, invoiceID)
}

// Count returns the number of disputes ever filed.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}
