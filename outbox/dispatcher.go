package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher delivers a fact to whatever consumes the feed. Delivery is
// at-least-once: a failed publish leaves the row pending for the next sweep.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// LogPublisher writes facts to the structured log. It stands in for an
// external indexer feed in environments that have none.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p *LogPublisher) Publish(_ context.Context, msg Message) error {
	p.Logger.Info("fact emitted", "topic", msg.Topic, "payload", string(msg.Payload))
	return nil
}

// Dispatcher sweeps pending outbox rows and hands them to a Publisher.
type Dispatcher struct {
	pool      *pgxpool.Pool
	publisher Publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewDispatcher(pool *pgxpool.Pool, publisher Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		pool:      pool,
		publisher: publisher,
		logger:    logger,
		interval:  2 * time.Second,
		batchSize: 64,
	}
}

// WithInterval overrides the sweep interval.
func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	d.interval = interval
	return d
}

// Run sweeps until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := d.SweepOnce(ctx); err != nil {
				d.logger.Error("outbox sweep failed", "error", err)
			} else if n > 0 {
				d.logger.Debug("outbox sweep", "dispatched", n)
			}
		}
	}
}

// SweepOnce claims up to batchSize pending rows, publishes them, and marks
// them dispatched. Rows are claimed with SKIP LOCKED so multiple dispatchers
// never double-deliver within one sweep.
func (d *Dispatcher) SweepOnce(ctx context.Context) (int, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox: begin sweep: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, topic, payload, status, attempts, created_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("outbox: claim pending: %w", err)
	}

	msgs := make([]Message, 0, d.batchSize)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Topic, &msg.Payload, &msg.Status, &msg.Attempts, &msg.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("outbox: scan: %w", err)
		}
		msgs = append(msgs, msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("outbox: iterate: %w", err)
	}

	dispatched := 0
	for _, msg := range msgs {
		if err := d.publisher.Publish(ctx, msg); err != nil {
			d.logger.Warn("fact publish failed", "id", msg.ID, "topic", msg.Topic, "error", err)
			if _, err := tx.Exec(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE id = $1`, msg.ID); err != nil {
				return dispatched, fmt.Errorf("outbox: bump attempts: %w", err)
			}
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE outbox SET status = 'dispatched', attempts = attempts + 1, dispatched_at = now() WHERE id = $1
		`, msg.ID); err != nil {
			return dispatched, fmt.Errorf("outbox: mark dispatched: %w", err)
		}
		dispatched++
	}

	if err := tx.Commit(ctx); err != nil {
		return dispatched, fmt.Errorf("outbox: commit sweep: %w", err)
	}
	return dispatched, nil
}
