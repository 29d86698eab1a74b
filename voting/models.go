package voting

// Summary is the aggregated, stake-weighted tally for a dispute. It exists
// from the moment voting starts and is updated incrementally with each vote,
// so complainant_stake + respondent_stake always equals total_stake (and
// likewise for vote counts).
type Summary struct {
	DisputeID        int64
	TotalVotes       int64
	ComplainantVotes int64
	RespondentVotes  int64
	TotalStake       int64
	ComplainantStake int64
	RespondentStake  int64
	VotingEndsAt     int64
}

// ComplainantWins applies the fixed tally contract: strict stake majority for
// the complainant; any tie, including 0-0, goes to the respondent.
func (s Summary) ComplainantWins() bool {
	return s.ComplainantStake > s.RespondentStake
}

// VoteRecord mirrors the vote_records table. Keyed by (dispute, voter), so a
// voter contributes at most one record per dispute.
type VoteRecord struct {
	DisputeID        int64
	Voter            string
	FavorComplainant bool
	Stake            int64
	VotedAtHeight    int64
}
