package voting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"trustledger/chain"
	"trustledger/dispute"
	"trustledger/params"
	"trustledger/pgtest"
	"trustledger/token"
)

const testHeight = 100

func newTestService(repo *fakeLedger, disputes *fakeDisputes) (*Service, *pgtest.Pool, *fakeOutbox) {
	pool := &pgtest.Pool{}
	ob := &fakeOutbox{}
	clock := chain.NewClock(time.Unix(0, 0), 10*time.Minute)
	svc := NewService(nil, repo, disputes, ob, clock).
		WithTxBeginner(pool).
		WithClock(func() time.Time { return time.Unix(0, 0).Add(testHeight * 10 * time.Minute) }).
		WithTransfer(func(ctx context.Context, tx pgx.Tx, from, to string, amount int64) error { return nil }).
		WithParams(func(ctx context.Context, tx pgx.Tx) (params.Params, error) {
			return params.Params{ArbitrationFee: 1_000_000, VotingPeriod: 144, MinVoteStake: 100_000}, nil
		})
	return svc, pool, ob
}

func TestStart_PartyOnly(t *testing.T) {
	disputes := &fakeDisputes{rec: dispute.Record{ID: 1, Complainant: "alice", Respondent: "bob", Status: dispute.StatusOpen}}
	svc, _, _ := newTestService(&fakeLedger{}, disputes)

	if _, err := svc.Start(context.Background(), "mallory", 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestStart_RequiresOpenStatus(t *testing.T) {
	disputes := &fakeDisputes{rec: dispute.Record{ID: 1, Complainant: "alice", Respondent: "bob", Status: dispute.StatusInArbitration}}
	svc, pool, _ := newTestService(&fakeLedger{}, disputes)

	if _, err := svc.Start(context.Background(), "alice", 1); !errors.Is(err, dispute.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if pool.Tx.Committed {
		t.Error("expected rollback")
	}
}

func TestStart_Success(t *testing.T) {
	ledger := &fakeLedger{}
	disputes := &fakeDisputes{rec: dispute.Record{ID: 1, Complainant: "alice", Respondent: "bob", Status: dispute.StatusOpen}}
	svc, pool, ob := newTestService(ledger, disputes)

	summary, err := svc.Start(context.Background(), "bob", 1)
	if err != nil {
		t.Fatalf("start: unexpected error: %v", err)
	}
	if summary.VotingEndsAt != testHeight+144 {
		t.Errorf("expected window end %d, got %d", testHeight+144, summary.VotingEndsAt)
	}
	if !ledger.summaryCreated {
		t.Error("expected summary row")
	}
	if !disputes.marked {
		t.Error("expected dispute moved to in_arbitration")
	}
	if !pool.Tx.Committed {
		t.Error("expected commit")
	}
	if len(ob.topics) != 1 || ob.topics[0] != "voting.started" {
		t.Errorf("expected voting.started fact, got %v", ob.topics)
	}
}

func TestCast_AfterDeadline(t *testing.T) {
	ledger := &fakeLedger{summary: Summary{DisputeID: 1, VotingEndsAt: testHeight}}
	svc, _, _ := newTestService(ledger, &fakeDisputes{})

	if _, err := svc.Cast(context.Background(), "carol", 1, true, 200_000); !errors.Is(err, ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed at the boundary height, got %v", err)
	}
}

func TestCast_BelowMinimumStake(t *testing.T) {
	ledger := &fakeLedger{summary: Summary{DisputeID: 1, VotingEndsAt: testHeight + 144}}
	svc, _, _ := newTestService(ledger, &fakeDisputes{})

	if _, err := svc.Cast(context.Background(), "carol", 1, true, 99_999); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
}

func TestCast_AlreadyVoted(t *testing.T) {
	ledger := &fakeLedger{summary: Summary{DisputeID: 1, VotingEndsAt: testHeight + 144}, hasVoted: true}
	svc, _, _ := newTestService(ledger, &fakeDisputes{})

	if _, err := svc.Cast(context.Background(), "carol", 1, true, 200_000); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}

	// The duplicate is reported as such regardless of stake amount, even one
	// below the protocol floor.
	if _, err := svc.Cast(context.Background(), "carol", 1, true, 50_000); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted for sub-floor duplicate, got %v", err)
	}
}

func TestCast_EscrowFailureLeavesNoRecord(t *testing.T) {
	ledger := &fakeLedger{summary: Summary{DisputeID: 1, VotingEndsAt: testHeight + 144}}
	svc, pool, _ := newTestService(ledger, &fakeDisputes{})
	svc.WithTransfer(func(ctx context.Context, tx pgx.Tx, from, to string, amount int64) error {
		return token.ErrInsufficientFunds
	})

	_, err := svc.Cast(context.Background(), "carol", 1, true, 200_000)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if ledger.inserted || ledger.applied {
		t.Error("vote must not be recorded when the stake cannot be escrowed")
	}
	if pool.Tx.Committed {
		t.Error("expected rollback")
	}
}

func TestCast_Success(t *testing.T) {
	ledger := &fakeLedger{summary: Summary{DisputeID: 1, VotingEndsAt: testHeight + 144}}
	svc, pool, ob := newTestService(ledger, &fakeDisputes{})

	var escrowTo string
	var escrowAmount int64
	svc.WithTransfer(func(ctx context.Context, tx pgx.Tx, from, to string, amount int64) error {
		escrowTo = to
		escrowAmount = amount
		return nil
	})

	rec, err := svc.Cast(context.Background(), "carol", 1, true, 200_000)
	if err != nil {
		t.Fatalf("cast: unexpected error: %v", err)
	}
	if escrowTo != token.EscrowAccount || escrowAmount != 200_000 {
		t.Errorf("expected 200000 escrowed to %s, got %d to %s", token.EscrowAccount, escrowAmount, escrowTo)
	}
	if rec.VotedAtHeight != testHeight {
		t.Errorf("expected vote height %d, got %d", testHeight, rec.VotedAtHeight)
	}
	if !ledger.inserted || !ledger.applied {
		t.Error("expected vote record and tally update")
	}
	if !pool.Tx.Committed {
		t.Error("expected commit")
	}
	if len(ob.topics) != 1 || ob.topics[0] != "vote.cast" {
		t.Errorf("expected vote.cast fact, got %v", ob.topics)
	}
}

func TestSummary_ComplainantWins(t *testing.T) {
	cases := []struct {
		name                         string
		complainantStake, respondent int64
		want                         bool
	}{
		{"strict majority", 700_000, 300_000, true},
		{"minority", 300_000, 700_000, false},
		{"exact tie", 500_000, 500_000, false},
		{"no votes", 0, 0, false},
		{"one unit over", 500_001, 500_000, true},
	}
	for _, tc := range cases {
		s := Summary{ComplainantStake: tc.complainantStake, RespondentStake: tc.respondent}
		if got := s.ComplainantWins(); got != tc.want {
			t.Errorf("%s: ComplainantWins() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

type fakeLedger struct {
	summary        Summary
	summaryErr     error
	hasVoted       bool
	summaryCreated bool
	inserted       bool
	applied        bool
}

func (f *fakeLedger) CreateSummary(ctx context.Context, tx pgx.Tx, disputeID, votingEndsAt int64) error {
	f.summaryCreated = true
	return nil
}

func (f *fakeLedger) GetSummaryForUpdate(ctx context.Context, tx pgx.Tx, disputeID int64) (Summary, error) {
	if f.summaryErr != nil {
		return Summary{}, f.summaryErr
	}
	return f.summary, nil
}

func (f *fakeLedger) HasVoted(ctx context.Context, tx pgx.Tx, disputeID int64, voter string) (bool, error) {
	return f.hasVoted, nil
}

func (f *fakeLedger) InsertVote(ctx context.Context, tx pgx.Tx, rec VoteRecord) error {
	f.inserted = true
	return nil
}

func (f *fakeLedger) ApplyVote(ctx context.Context, tx pgx.Tx, disputeID int64, favorComplainant bool, stake int64) error {
	f.applied = true
	return nil
}

func (f *fakeLedger) GetSummary(ctx context.Context, disputeID int64) (Summary, error) {
	return f.summary, f.summaryErr
}

func (f *fakeLedger) GetVote(ctx context.Context, disputeID int64, voter string) (VoteRecord, error) {
	return VoteRecord{}, ErrNotFound
}

type fakeDisputes struct {
	rec    dispute.Record
	getErr error
	marked bool
}

func (f *fakeDisputes) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (dispute.Record, error) {
	if f.getErr != nil {
		return dispute.Record{}, f.getErr
	}
	return f.rec, nil
}

func (f *fakeDisputes) MarkInArbitration(ctx context.Context, tx pgx.Tx, id int64) error {
	f.marked = true
	return nil
}

type fakeOutbox struct {
	topics []string
}

func (f *fakeOutbox) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	f.topics = append(f.topics, topic)
	return nil
}
