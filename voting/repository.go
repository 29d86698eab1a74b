package voting

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals no vote summary (or vote record) exists.
	ErrNotFound = errors.New("voting: not found")
	// ErrAlreadyVoted signals a duplicate vote from the same principal.
	ErrAlreadyVoted = errors.New("voting: already voted")
)

// Repository handles data access for vote records and summaries.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const summarySQL = `
	SELECT dispute_id, total_votes, complainant_votes, respondent_votes,
	       total_stake, complainant_stake, respondent_stake, voting_ends_at
	FROM vote_summaries`

// CreateSummary opens the voting window with zeroed counters.
func (r *Repository) CreateSummary(ctx context.Context, tx pgx.Tx, disputeID, votingEndsAt int64) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO vote_summaries (dispute_id, voting_ends_at) VALUES ($1, $2)
	`, disputeID, votingEndsAt); err != nil {
		return fmt.Errorf("voting: create summary: %w", err)
	}
	return nil
}

// GetSummaryForUpdate locks and returns the summary row; vote and finalize
// operations serialize on it.
func (r *Repository) GetSummaryForUpdate(ctx context.Context, tx pgx.Tx, disputeID int64) (Summary, error) {
	return scanSummary(tx.QueryRow(ctx, summarySQL+` WHERE dispute_id = $1 FOR UPDATE`, disputeID))
}

// GetSummary returns the summary without locking.
func (r *Repository) GetSummary(ctx context.Context, disputeID int64) (Summary, error) {
	return scanSummary(r.pool.QueryRow(ctx, summarySQL+` WHERE dispute_id = $1`, disputeID))
}

// HasVoted reports whether the principal already holds a vote record.
func (r *Repository) HasVoted(ctx context.Context, tx pgx.Tx, disputeID int64, voter string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM vote_records WHERE dispute_id = $1 AND voter = $2)
	`, disputeID, voter).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("voting: check prior vote: %w", err)
	}
	return exists, nil
}

// InsertVote stores the vote record. The primary key backstops the HasVoted
// precheck under concurrent submissions.
func (r *Repository) InsertVote(ctx context.Context, tx pgx.Tx, rec VoteRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO vote_records (dispute_id, voter, favor_complainant, stake, voted_at_height)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.DisputeID, rec.Voter, rec.FavorComplainant, rec.Stake, rec.VotedAtHeight)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyVoted
		}
		return fmt.Errorf("voting: insert vote: %w", err)
	}
	return nil
}

// ApplyVote folds a vote into the summary counters.
func (r *Repository) ApplyVote(ctx context.Context, tx pgx.Tx, disputeID int64, favorComplainant bool, stake int64) error {
	var complainantVotes, complainantStake int64
	if favorComplainant {
		complainantVotes, complainantStake = 1, stake
	}
	tag, err := tx.Exec(ctx, `
		UPDATE vote_summaries
		SET total_votes = total_votes + 1,
		    complainant_votes = complainant_votes + $2,
		    respondent_votes = respondent_votes + (1 - $2),
		    total_stake = total_stake + $3,
		    complainant_stake = complainant_stake + $4,
		    respondent_stake = respondent_stake + ($3 - $4)
		WHERE dispute_id = $1
	`, disputeID, complainantVotes, stake, complainantStake)
	if err != nil {
		return fmt.Errorf("voting: apply vote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetVote returns a specific voter's record for a dispute.
func (r *Repository) GetVote(ctx context.Context, disputeID int64, voter string) (VoteRecord, error) {
	var rec VoteRecord
	err := r.pool.QueryRow(ctx, `
		SELECT dispute_id, voter, favor_complainant, stake, voted_at_height
		FROM vote_records WHERE dispute_id = $1 AND voter = $2
	`, disputeID, voter).Scan(&rec.DisputeID, &rec.Voter, &rec.FavorComplainant, &rec.Stake, &rec.VotedAtHeight)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VoteRecord{}, ErrNotFound
		}
		return VoteRecord{}, fmt.Errorf("voting: get vote: %w", err)
	}
	return rec, nil
}

func scanSummary(row pgx.Row) (Summary, error) {
	var s Summary
	err := row.Scan(
		&s.DisputeID, &s.TotalVotes, &s.ComplainantVotes, &s.RespondentVotes,
		&s.TotalStake, &s.ComplainantStake, &s.RespondentStake, &s.VotingEndsAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Summary{}, ErrNotFound
		}
		return Summary{}, fmt.Errorf("voting: scan summary: %w", err)
	}
	return s, nil
}
