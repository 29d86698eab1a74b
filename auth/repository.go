package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrAccountNotFound signals that the account does not exist.
	ErrAccountNotFound = errors.New("auth: account not found")
	// ErrDuplicateEmail signals that the email is already registered.
	ErrDuplicateEmail = errors.New("auth: email already exists")
)

// Repository handles data access for principal accounts.
type Repository interface {
	CreateAccount(ctx context.Context, acct Account) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectSQL = `
	SELECT id, email, display_name, password_hash, role, created_at
	FROM accounts`

// CreateAccount inserts a new account with a service-generated id.
func (r *PGRepository) CreateAccount(ctx context.Context, acct Account) (Account, error) {
	const insertSQL = `
		INSERT INTO accounts (id, email, display_name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, email, display_name, password_hash, role, created_at
	`
	created, err := scanAccount(r.pool.QueryRow(ctx, insertSQL,
		acct.ID, acct.Email, acct.DisplayName, acct.PasswordHash, acct.Role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateEmail
		}
		return Account{}, fmt.Errorf("auth: create account: %w", err)
	}
	return created, nil
}

// GetByEmail retrieves an account by email address.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	acct, err := scanAccount(r.pool.QueryRow(ctx, selectSQL+` WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("auth: get by email: %w", err)
	}
	return acct, nil
}

// GetByID retrieves an account by principal id.
func (r *PGRepository) GetByID(ctx context.Context, id string) (Account, error) {
	acct, err := scanAccount(r.pool.QueryRow(ctx, selectSQL+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("auth: get by id: %w", err)
	}
	return acct, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var acct Account
	err := row.Scan(&acct.ID, &acct.Email, &acct.DisplayName, &acct.PasswordHash, &acct.Role, &acct.CreatedAt)
	if err != nil {
		return Account{}, err
	}
	return acct, nil
}
