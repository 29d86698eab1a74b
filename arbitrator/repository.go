package arbitrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the arbitrator was never registered.
var ErrNotFound = errors.New("arbitrator: not found")

// Repository handles data access for arbitrator records.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert creates or overwrites the arbitrator row. Registration resets the
// case counter and reputation regardless of prior history.
func (r *Repository) Upsert(ctx context.Context, tx pgx.Tx, arb Arbitrator) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO arbitrators (principal, active, cases_handled, reputation, registered_at_height)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (principal) DO UPDATE
		SET active = EXCLUDED.active,
		    cases_handled = EXCLUDED.cases_handled,
		    reputation = EXCLUDED.reputation,
		    registered_at_height = EXCLUDED.registered_at_height
	`, arb.Principal, arb.Active, arb.CasesHandled, arb.Reputation, arb.RegisteredAtHeight)
	if err != nil {
		return fmt.Errorf("arbitrator: upsert: %w", err)
	}
	return nil
}

// GetTx loads an arbitrator inside the caller's transaction. Used by the
// dispute store to verify assignment targets without racing deactivation.
func (r *Repository) GetTx(ctx context.Context, tx pgx.Tx, principal string) (Arbitrator, error) {
	return scanArbitrator(tx.QueryRow(ctx, selectSQL+` WHERE principal = $1`, principal))
}

// Get loads an arbitrator outside any transaction.
func (r *Repository) Get(ctx context.Context, principal string) (Arbitrator, error) {
	return scanArbitrator(r.pool.QueryRow(ctx, selectSQL+` WHERE principal = $1`, principal))
}

// Deactivate flips the active flag, preserving history.
func (r *Repository) Deactivate(ctx context.Context, principal string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE arbitrators SET active = false WHERE principal = $1`, principal)
	if err != nil {
		return fmt.Errorf("arbitrator: deactivate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementCases bumps cases_handled. A missing row is deliberately not an
// error: resolution statistics never block a terminal transition.
func (r *Repository) IncrementCases(ctx context.Context, tx pgx.Tx, principal string) error {
	if _, err := tx.Exec(ctx, `
		UPDATE arbitrators SET cases_handled = cases_handled + 1 WHERE principal = $1
	`, principal); err != nil {
		return fmt.Errorf("arbitrator: increment cases: %w", err)
	}
	return nil
}

const selectSQL = `
	SELECT principal, active, cases_handled, reputation, registered_at_height, created_at
	FROM arbitrators`

func scanArbitrator(row pgx.Row) (Arbitrator, error) {
	var arb Arbitrator
	err := row.Scan(&arb.Principal, &arb.Active, &arb.CasesHandled, &arb.Reputation, &arb.RegisteredAtHeight, &arb.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Arbitrator{}, ErrNotFound
		}
		return Arbitrator{}, fmt.Errorf("arbitrator: scan: %w", err)
	}
	return arb, nil
}
