// Package actors contains the concurrent workloads for the stress harness.
// Every actor drives the real services, never raw writes, so the invariants
// the oracles check are enforced by the same code paths production uses.
// Actors tolerate transient errors (lost connections under chaos, domain
// rejections under contention); correctness is judged by the oracles.
package actors

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trustledger/arbitrator"
	"trustledger/dispute"
	"trustledger/resolution"
	"trustledger/voting"
)

// Services bundles the wired service layer for the actors.
type Services struct {
	Pool        *pgxpool.Pool
	Arbitrators *arbitrator.Service
	Disputes    *dispute.Service
	Votes       *voting.Service
	Resolutions *resolution.Service
	Owner       string
}

// Filer files disputes against a small pool of invoice ids so concurrent
// filers collide on the one-dispute-per-invoice constraint.
func Filer(ctx context.Context, s *Services, complainant, respondent string, invoices int, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		invoiceID := fmt.Sprintf("inv-%d", rand.Intn(invoices))
		_, _ = s.Disputes.File(ctx, complainant, invoiceID, respondent, "stress filing", int64(100+rand.Intn(900)))
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Registrar repeatedly re-registers as an arbitrator until the fee drains the
// account, exercising the overwrite-on-reregister path.
func Registrar(ctx context.Context, s *Services, principal string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, _ = s.Arbitrators.Register(ctx, principal)
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// Opener starts community voting on random open disputes. Racing openers and
// assigners lose with an invalid-status rejection once the dispute leaves Open.
func Opener(ctx context.Context, s *Services, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var id int64
		var complainant string
		err := s.Pool.QueryRow(ctx, `SELECT id, complainant FROM disputes WHERE status='open' ORDER BY random() LIMIT 1`).Scan(&id, &complainant)
		if err == nil {
			_, _ = s.Votes.Start(ctx, complainant, id)
		} else if err != pgx.ErrNoRows {
			time.Sleep(50 * time.Millisecond)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Assigner races the openers: it pushes random open disputes to a named
// arbitrator instead of a community vote.
func Assigner(ctx context.Context, s *Services, arb string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var id int64
		if err := s.Pool.QueryRow(ctx, `SELECT id FROM disputes WHERE status='open' ORDER BY random() LIMIT 1`).Scan(&id); err == nil {
			_, _ = s.Disputes.AssignArbitrator(ctx, s.Owner, id, arb)
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// Voter casts stake-weighted votes on random disputes with an open window.
// Double votes, closed windows, and drained balances are all expected here.
func Voter(ctx context.Context, s *Services, voter string, minStake int64, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var id int64
		if err := s.Pool.QueryRow(ctx, `SELECT dispute_id FROM vote_summaries ORDER BY random() LIMIT 1`).Scan(&id); err == nil {
			stake := minStake + int64(rand.Intn(200))
			_, _ = s.Votes.Cast(ctx, voter, id, rand.Intn(2) == 0, stake)
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// Resolver resolves random in-arbitration disputes as the owner, racing the
// finalizer for the terminal transition.
func Resolver(ctx context.Context, s *Services, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var id int64
		if err := s.Pool.QueryRow(ctx, `SELECT id FROM disputes WHERE status='in_arbitration' ORDER BY random() LIMIT 1`).Scan(&id); err == nil {
			_, _ = s.Resolutions.Resolve(ctx, s.Owner, id, "resolved under stress", rand.Intn(2) == 0)
		}
		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}

// Finalizer sweeps for vote windows and tries to finalize them; attempts
// before the deadline bounce off the deadline check.
func Finalizer(ctx context.Context, s *Services, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var id int64
		err := s.Pool.QueryRow(ctx, `SELECT s.dispute_id FROM vote_summaries s
                                      JOIN disputes d ON d.id = s.dispute_id
                                      WHERE d.status='in_arbitration'
                                      ORDER BY random() LIMIT 1`).Scan(&id)
		if err == nil {
			_, _ = s.Resolutions.Finalize(ctx, id)
		}
		time.Sleep(time.Duration(80+rand.Intn(80)) * time.Millisecond)
	}
}

// OutboxWorker consumes pending outbox messages with SKIP LOCKED, simulating
// a flaky downstream so attempts accumulate.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status='pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]int64, 0, 10)
		for rows.Next() {
			var id int64
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1 WHERE id=$1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status='dispatched', dispatched_at=NOW(), attempts=attempts+1 WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}
