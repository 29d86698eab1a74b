package dispute

import "time"

// Status represents the lifecycle of a dispute record. The sequence is
// monotonic: Open → InArbitration → Resolved or Rejected, and the two
// terminal states have no outgoing transitions.
type Status string

const (
	StatusOpen          Status = "open"
	StatusInArbitration Status = "in_arbitration"
	StatusResolved      Status = "resolved"
	StatusRejected      Status = "rejected"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// Record mirrors the disputes table. Heights are ledger heights, not
// timestamps; ResolvedAtHeight and Resolution are set together by the
// terminal transition and never separately.
type Record struct {
	ID               int64
	InvoiceID        string
	Complainant      string
	Respondent       string
	Reason           string
	Amount           int64
	Status           Status
	CreatedAtHeight  int64
	ResolvedAtHeight *int64
	Resolution       *string
	Arbitrator       *string
	CreatedAt        time.Time
}

// Party reports whether principal is the complainant or respondent.
func (r Record) Party(principal string) bool {
	return principal == r.Complainant || principal == r.Respondent
}
