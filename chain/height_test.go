package chain

import (
	"testing"
	"time"
)

func TestHeightAt(t *testing.T) {
	genesis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewClock(genesis, 10*time.Minute)

	cases := []struct {
		name string
		at   time.Time
		want int64
	}{
		{"before genesis", genesis.Add(-time.Hour), 0},
		{"at genesis", genesis, 0},
		{"one interval minus a second", genesis.Add(10*time.Minute - time.Second), 0},
		{"one interval", genesis.Add(10 * time.Minute), 1},
		{"one day", genesis.Add(24 * time.Hour), 144},
	}

	for _, tc := range cases {
		if got := clock.HeightAt(tc.at); got != tc.want {
			t.Errorf("%s: HeightAt = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestNewClockDefaultsInterval(t *testing.T) {
	clock := NewClock(time.Unix(0, 0), 0)
	if clock.BlockInterval != DefaultBlockInterval {
		t.Fatalf("expected default interval, got %v", clock.BlockInterval)
	}
}
