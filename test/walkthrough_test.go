package test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"trustledger/arbitrator"
	"trustledger/chain"
	"trustledger/dispute"
	"trustledger/outbox"
	"trustledger/resolution"
	"trustledger/test/infra"
	"trustledger/token"
	"trustledger/voting"
)

// TestCommunityVotePath walks one dispute through the full community path:
// file, start voting, two opposing votes, deadline, finalize.
func TestCommunityVotePath(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, done := setupIntegration(t, ctx)
	defer done()

	const owner = "owner-e2e"
	clock := chain.NewClock(time.Now(), 100*time.Millisecond)
	ob := outbox.NewWriter()
	arbRepo := arbitrator.NewRepository(pool)
	dispRepo := dispute.NewRepository(pool)
	voteRepo := voting.NewRepository(pool)

	disputes := dispute.NewService(pool, dispRepo, arbRepo, ob, clock, owner)
	votes := voting.NewService(pool, voteRepo, dispRepo, ob, clock)
	resolutions := resolution.NewService(pool, dispRepo, voteRepo, arbRepo, ob, clock, owner)

	// Five 100ms blocks per window, stakes within reach of the seeded balances.
	if _, err := pool.Exec(ctx, `UPDATE protocol_params SET voting_period=5, min_vote_stake=100 WHERE id=1`); err != nil {
		t.Fatalf("set params: %v", err)
	}
	for voter, amount := range map[string]int64{"carol": 300_000, "dave": 300_000} {
		if _, err := pool.Exec(ctx, `INSERT INTO balances (account_id, amount) VALUES ($1, $2)
                                     ON CONFLICT (account_id) DO UPDATE SET amount = EXCLUDED.amount`, voter, amount); err != nil {
			t.Fatalf("fund %s: %v", voter, err)
		}
	}

	rec, err := disputes.File(ctx, "alice", "inv-e2e-1", "bob", "goods not delivered", 5_000)
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if rec.Status != dispute.StatusOpen {
		t.Fatalf("expected open dispute, got %s", rec.Status)
	}

	summary, err := votes.Start(ctx, "alice", rec.ID)
	if err != nil {
		t.Fatalf("start voting: %v", err)
	}

	if _, err := votes.Cast(ctx, "carol", rec.ID, true, 200_000); err != nil {
		t.Fatalf("cast favor: %v", err)
	}
	if _, err := votes.Cast(ctx, "dave", rec.ID, false, 150_000); err != nil {
		t.Fatalf("cast against: %v", err)
	}
	if _, err := votes.Cast(ctx, "carol", rec.ID, true, 100_000); !errors.Is(err, voting.ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted on second vote, got %v", err)
	}

	// Premature finalize must bounce.
	if _, err := resolutions.Finalize(ctx, rec.ID); !errors.Is(err, voting.ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed before deadline, got %v", err)
	}

	waitForHeight(t, clock, summary.VotingEndsAt)

	wins, err := resolutions.Finalize(ctx, rec.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !wins {
		t.Fatal("expected complainant to win on 200000 vs 150000")
	}

	final, err := disputes.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != dispute.StatusResolved {
		t.Errorf("expected resolved, got %s", final.Status)
	}
	if final.Resolution == nil || *final.Resolution != resolution.CommunityResolution {
		t.Errorf("expected resolution %q, got %v", resolution.CommunityResolution, final.Resolution)
	}

	// Finalize must not run twice.
	if _, err := resolutions.Finalize(ctx, rec.ID); !errors.Is(err, dispute.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus on second finalize, got %v", err)
	}

	// Both stakes stay escrowed.
	var escrow int64
	if err := pool.QueryRow(ctx, `SELECT amount FROM balances WHERE account_id=$1`, token.EscrowAccount).Scan(&escrow); err != nil {
		t.Fatalf("escrow balance: %v", err)
	}
	if escrow != 350_000 {
		t.Errorf("expected 350000 in escrow, got %d", escrow)
	}
}

// TestArbitratorPath walks the direct path: register, assign, resolve.
func TestArbitratorPath(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, done := setupIntegration(t, ctx)
	defer done()

	const owner = "owner-e2e"
	clock := chain.NewClock(time.Now(), 100*time.Millisecond)
	ob := outbox.NewWriter()
	arbRepo := arbitrator.NewRepository(pool)
	dispRepo := dispute.NewRepository(pool)
	voteRepo := voting.NewRepository(pool)

	arbitrators := arbitrator.NewService(pool, arbRepo, ob, clock, owner)
	disputes := dispute.NewService(pool, dispRepo, arbRepo, ob, clock, owner)
	resolutions := resolution.NewService(pool, dispRepo, voteRepo, arbRepo, ob, clock, owner)

	if _, err := pool.Exec(ctx, `UPDATE protocol_params SET arbitration_fee=10000 WHERE id=1`); err != nil {
		t.Fatalf("set params: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO balances (account_id, amount) VALUES ('judge', 50000)
                                 ON CONFLICT (account_id) DO UPDATE SET amount = EXCLUDED.amount`); err != nil {
		t.Fatalf("fund judge: %v", err)
	}

	if _, err := arbitrators.Register(ctx, "judge"); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec, err := disputes.File(ctx, "alice", "inv-e2e-2", "bob", "short shipment", 9_000)
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if _, err := disputes.AssignArbitrator(ctx, "bob", rec.ID, "judge"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Parties cannot resolve; only the owner or the assigned arbitrator.
	if _, err := resolutions.Resolve(ctx, "alice", rec.ID, "I win", true); !errors.Is(err, resolution.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for party, got %v", err)
	}

	final, err := resolutions.Resolve(ctx, "judge", rec.ID, "partial refund agreed", true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if final.Status != dispute.StatusResolved {
		t.Errorf("expected resolved, got %s", final.Status)
	}

	judge, err := arbitrators.Get(ctx, "judge")
	if err != nil {
		t.Fatalf("get judge: %v", err)
	}
	if judge.CasesHandled != 1 {
		t.Errorf("expected 1 case handled, got %d", judge.CasesHandled)
	}

	// Fee landed with the owner.
	var ownerBal int64
	if err := pool.QueryRow(ctx, `SELECT amount FROM balances WHERE account_id=$1`, owner).Scan(&ownerBal); err != nil {
		t.Fatalf("owner balance: %v", err)
	}
	if ownerBal != 10_000 {
		t.Errorf("expected fee 10000 with owner, got %d", ownerBal)
	}
}

// setupIntegration provisions an isolated schema on the database named by
// DATABASE_URL, or skips when none is configured.
func setupIntegration(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()
	dsn := integrationDSN(t, ctx)

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, true)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return pool, func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
		pool.Close()
	}
}

func integrationDSN(t *testing.T, ctx context.Context) string {
	t.Helper()
	if dsn := envDSN(); dsn != "" {
		return dsn
	}
	if !dockerAvailable(ctx) {
		t.Skip("set DATABASE_URL or install docker to run integration tests")
	}
	pgC, dsn, err := infra.StartPostgres16(ctx, "")
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })
	return dsn
}

func envDSN() string {
	for _, key := range []string{"DATABASE_URL", "STRESS_TEST_PG_DSN"} {
		if dsn := os.Getenv(key); dsn != "" {
			return dsn
		}
	}
	return ""
}

func waitForHeight(t *testing.T, clock *chain.Clock, target int64) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for clock.HeightAt(time.Now()) < target {
		if time.Now().After(deadline) {
			t.Fatal("voting window never closed")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
