// Package oracles holds the SQL invariants the stress harness checks while
// the actors hammer the services. Any returned row is a violation.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_dispute_per_invoice",
			SQL: `SELECT invoice_id, COUNT(*) FROM disputes
                  GROUP BY invoice_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_terminal_fields_paired",
			SQL: `SELECT id, status, resolved_at_height, resolution FROM disputes
                  WHERE (status IN ('resolved','rejected')) <> (resolution IS NOT NULL AND resolved_at_height IS NOT NULL)`,
		},
		{
			Name: "O3_summary_matches_records",
			SQL: `SELECT s.dispute_id FROM vote_summaries s
                  LEFT JOIN (
                      SELECT dispute_id,
                             COUNT(*) AS votes,
                             COALESCE(SUM(stake), 0) AS stake,
                             COALESCE(SUM(stake) FILTER (WHERE favor_complainant), 0) AS c_stake,
                             COUNT(*) FILTER (WHERE favor_complainant) AS c_votes
                      FROM vote_records GROUP BY dispute_id
                  ) r ON r.dispute_id = s.dispute_id
                  WHERE s.total_votes       <> COALESCE(r.votes, 0)
                     OR s.total_stake       <> COALESCE(r.stake, 0)
                     OR s.complainant_stake <> COALESCE(r.c_stake, 0)
                     OR s.complainant_votes <> COALESCE(r.c_votes, 0)`,
		},
		{
			Name: "O4_escrow_conservation",
			SQL: `SELECT b.amount, COALESCE(SUM(v.stake), 0) FROM balances b
                  LEFT JOIN vote_records v ON true
                  WHERE b.account_id = 'escrow'
                  GROUP BY b.amount
                  HAVING b.amount <> COALESCE(SUM(v.stake), 0)`,
		},
		{
			Name: "O5_no_vote_after_deadline",
			SQL: `SELECT v.dispute_id, v.voter FROM vote_records v
                  JOIN vote_summaries s ON s.dispute_id = v.dispute_id
                  WHERE v.voted_at_height >= s.voting_ends_at`,
		},
		{
			Name: "O6_summary_implies_in_arbitration",
			SQL: `SELECT s.dispute_id FROM vote_summaries s
                  JOIN disputes d ON d.id = s.dispute_id
                  WHERE d.status = 'open'`,
		},
		{
			Name: "O7_open_dispute_has_no_arbitrator",
			SQL: `SELECT id FROM disputes WHERE status = 'open' AND arbitrator IS NOT NULL`,
		},
		{
			Name: "O8_outbox_not_stuck",
			SQL: `SELECT id, topic FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O9_no_negative_balance",
			SQL:  `SELECT account_id, amount FROM balances WHERE amount < 0`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
