package arbitrator

import "time"

// InitialReputation is assigned at registration and never updated by this
// engine afterwards.
const InitialReputation = 100

// Arbitrator mirrors the arbitrators table.
type Arbitrator struct {
	Principal          string
	Active             bool
	CasesHandled       int
	Reputation         int
	RegisteredAtHeight int64
	CreatedAt          time.Time
}
