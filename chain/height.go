// Package chain derives ledger heights from wall-clock time. All deadlines in
// the dispute engine are expressed in heights, so every service computes the
// current height through a Clock rather than comparing timestamps directly.
package chain

import "time"

// DefaultBlockInterval yields 144 heights per 24 hours.
const DefaultBlockInterval = 10 * time.Minute

// Clock maps wall-clock time onto a monotonically increasing height.
type Clock struct {
	Genesis       time.Time
	BlockInterval time.Duration
}

// NewClock builds a Clock, falling back to DefaultBlockInterval when the
// interval is zero or negative.
func NewClock(genesis time.Time, interval time.Duration) *Clock {
	if interval <= 0 {
		interval = DefaultBlockInterval
	}
	return &Clock{Genesis: genesis, BlockInterval: interval}
}

// HeightAt returns the height the ledger has reached at t. Times before
// genesis clamp to zero so a misconfigured genesis never produces negative
// heights.
func (c *Clock) HeightAt(t time.Time) int64 {
	if !t.After(c.Genesis) {
		return 0
	}
	return int64(t.Sub(c.Genesis) / c.BlockInterval)
}
