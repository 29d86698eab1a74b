// Package outbox records the facts this engine emits for off-chain indexers.
// Facts are appended in the same transaction as the mutation that produced
// them, then shipped asynchronously by the Dispatcher. The engine never waits
// for acknowledgment; a fact is a statement about committed state.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Fact topics emitted by the dispute engine.
const (
	TopicDisputeFiled         = "dispute.filed"
	TopicArbitratorAssigned   = "arbitrator.assigned"
	TopicVotingStarted        = "voting.started"
	TopicVoteCast             = "vote.cast"
	TopicDisputeResolved      = "dispute.resolved"
	TopicVotingFinalized      = "voting.finalized"
	TopicArbitratorRegistered = "arbitrator.registered"
)

// Message is a single emitted fact.
type Message struct {
	ID        int64
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
}

// Writer appends facts inside a caller-owned transaction.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// Enqueue inserts a pending fact. It must be called with the transaction that
// performs the mutation the fact describes.
func (w *Writer) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`, topic, body); err != nil {
		return fmt.Errorf("outbox: enqueue %s: %w", topic, err)
	}
	return nil
}
