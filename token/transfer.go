// Package token implements the value-transfer primitive the dispute engine
// relies on: atomic balance movements between principals, executed inside the
// caller's transaction so a failed transfer aborts the surrounding operation.
package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EscrowAccount holds vote stakes for the duration of voting.
const EscrowAccount = "escrow"

var (
	// ErrInsufficientFunds signals the debit side cannot cover the amount.
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	// ErrInvalidAmount signals a non-positive transfer amount.
	ErrInvalidAmount = errors.New("token: amount must be positive")
)

// Transfer moves amount from one account to another within tx. The debit is
// guarded by the current balance, so the operation is all-or-nothing: either
// both sides move or ErrInsufficientFunds is returned and nothing changes.
func Transfer(ctx context.Context, tx pgx.Tx, from, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if from == "" || to == "" {
		return fmt.Errorf("token: missing account")
	}

	tag, err := tx.Exec(ctx, `
		UPDATE balances SET amount = amount - $1, updated_at = now()
		WHERE account_id = $2 AND amount >= $1
	`, amount, from)
	if err != nil {
		return fmt.Errorf("token: debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO balances (account_id, amount) VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = now()
	`, to, amount); err != nil {
		return fmt.Errorf("token: credit %s: %w", to, err)
	}
	return nil
}

// Service exposes balance reads and owner-gated minting. Minting exists to
// seed balances in non-production environments; it is not part of the dispute
// lifecycle.
type Service struct {
	pool  *pgxpool.Pool
	owner string
}

func NewService(pool *pgxpool.Pool, owner string) *Service {
	return &Service{pool: pool, owner: owner}
}

// BalanceOf returns the balance for an account, zero when no row exists.
func (s *Service) BalanceOf(ctx context.Context, account string) (int64, error) {
	var amount int64
	err := s.pool.QueryRow(ctx, `SELECT amount FROM balances WHERE account_id = $1`, account).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("token: balance of %s: %w", account, err)
	}
	return amount, nil
}

// ErrUnauthorized signals a caller without minting rights.
var ErrUnauthorized = errors.New("token: unauthorized")

// Mint credits an account out of thin air. Owner only.
func (s *Service) Mint(ctx context.Context, caller, account string, amount int64) error {
	if caller != s.owner {
		return ErrUnauthorized
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("token: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO balances (account_id, amount) VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = now()
	`, account, amount); err != nil {
		return fmt.Errorf("token: mint: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("token: commit: %w", err)
	}
	return nil
}
