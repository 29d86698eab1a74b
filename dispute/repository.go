package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the referenced dispute does not exist.
	ErrNotFound = errors.New("dispute: not found")
	// ErrAlreadyExists signals a dispute is already filed for the invoice.
	ErrAlreadyExists = errors.New("dispute: already filed for invoice")
)

// Repository handles data access for dispute records. Mutations run against a
// caller-owned transaction so the store composes with escrow transfers and
// fact emission.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectSQL = `
	SELECT id, invoice_id, complainant, respondent, reason, amount, status::text,
	       created_at_height, resolved_at_height, resolution, arbitrator, created_at
	FROM disputes`

// Create inserts a new Open dispute. Ids come from an identity column, so
// they are sequential and never reused. The unique invoice index enforces the
// one-dispute-per-invoice invariant.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO disputes (invoice_id, complainant, respondent, reason, amount, status, created_at_height)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, invoice_id, complainant, respondent, reason, amount, status::text,
		          created_at_height, resolved_at_height, resolution, arbitrator, created_at
	`, rec.InvoiceID, rec.Complainant, rec.Respondent, rec.Reason, rec.Amount, rec.Status, rec.CreatedAtHeight)

	created, err := scanRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrAlreadyExists
		}
		return Record{}, fmt.Errorf("dispute: create: %w", err)
	}
	return created, nil
}

// GetForUpdate locks and returns the dispute row. Every mutation of a dispute
// starts here so concurrent operations on the same dispute serialize.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Record, error) {
	return scanNotFound(scanRecord(tx.QueryRow(ctx, selectSQL+` WHERE id = $1 FOR UPDATE`, id)))
}

// GetByID returns a dispute without locking.
func (r *Repository) GetByID(ctx context.Context, id int64) (Record, error) {
	return scanNotFound(scanRecord(r.pool.QueryRow(ctx, selectSQL+` WHERE id = $1`, id)))
}

// GetByInvoice returns the dispute filed against an invoice.
func (r *Repository) GetByInvoice(ctx context.Context, invoiceID string) (Record, error) {
	return scanNotFound(scanRecord(r.pool.QueryRow(ctx, selectSQL+` WHERE invoice_id = $1`, invoiceID)))
}

// Count returns the total number of disputes ever filed.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM disputes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("dispute: count: %w", err)
	}
	return n, nil
}

// SetArbitrator stores the assignment and moves the dispute into arbitration.
func (r *Repository) SetArbitrator(ctx context.Context, tx pgx.Tx, id int64, arb string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE disputes SET arbitrator = $2, status = $3 WHERE id = $1
	`, id, arb, StatusInArbitration)
	if err != nil {
		return fmt.Errorf("dispute: set arbitrator: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkInArbitration moves an Open dispute into arbitration without an
// assignment; the community-voting path uses it.
func (r *Repository) MarkInArbitration(ctx context.Context, tx pgx.Tx, id int64) error {
	tag, err := tx.Exec(ctx, `UPDATE disputes SET status = $2 WHERE id = $1`, id, StatusInArbitration)
	if err != nil {
		return fmt.Errorf("dispute: mark in arbitration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkTerminal stamps the terminal status, resolution text, and resolved
// height in one write. Only the resolution engine calls this.
func (r *Repository) MarkTerminal(ctx context.Context, tx pgx.Tx, id int64, status Status, resolvedAtHeight int64, resolution string) error {
	if !status.Terminal() {
		return fmt.Errorf("dispute: %q is not a terminal status", status)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE disputes SET status = $2, resolved_at_height = $3, resolution = $4 WHERE id = $1
	`, id, status, resolvedAtHeight, resolution)
	if err != nil {
		return fmt.Errorf("dispute: mark terminal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.InvoiceID, &rec.Complainant, &rec.Respondent, &rec.Reason, &rec.Amount,
		&rec.Status, &rec.CreatedAtHeight, &rec.ResolvedAtHeight, &rec.Resolution, &rec.Arbitrator, &rec.CreatedAt,
	)
	return rec, err
}

func scanNotFound(rec Record, err error) (Record, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: scan: %w", err)
	}
	return rec, nil
}
