// Package pgtest provides in-memory stand-ins for pgx transactions so service
// tests can assert commit/rollback behavior without a database.
package pgtest

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Pool implements the TxBeginner seam the services expose.
type Pool struct {
	Tx       *Tx
	BeginErr error
}

func (p *Pool) Begin(ctx context.Context) (pgx.Tx, error) {
	if p.BeginErr != nil {
		return nil, p.BeginErr
	}
	p.Tx = &Tx{}
	return p.Tx, nil
}

// Tx records lifecycle calls. Query methods panic: service tests fake the
// repositories, so nothing should reach the transaction itself.
type Tx struct {
	Committed bool
	Rolled    bool
	CommitErr error
}

func (t *Tx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("pgtest: nested transactions not supported")
}

func (t *Tx) Commit(context.Context) error {
	if t.CommitErr != nil {
		return t.CommitErr
	}
	t.Committed = true
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	t.Rolled = true
	return nil
}

func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (t *Tx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (t *Tx) Conn() *pgx.Conn {
	return nil
}
