// Package outbox relays audit events from the outbox table to Kafka.
//
// The engine writes events and outbox rows in the same database; this worker
// publishes unpublished rows in order and stamps published_at. Redelivery is
// possible after a crash between produce and stamp, so downstream consumers
// must treat the event ID as the idempotency key.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// KafkaProducer is the slice of the producer the relay needs.
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Relay polls the outbox and publishes pending entries.
type Relay struct {
	db       *sql.DB
	producer KafkaProducer
	topic    string
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// Option configures the Relay.
type Option func(*Relay)

// WithInterval overrides the default poll interval.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) { r.interval = d }
}

// WithBatchSize overrides the default per-poll batch size.
func WithBatchSize(n int) Option {
	return func(r *Relay) { r.batch = n }
}

// New creates an outbox relay.
func New(db *sql.DB, producer KafkaProducer, topic string, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		db:       db,
		producer: producer,
		topic:    topic,
		interval: 2 * time.Second,
		batch:    100,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.publishBatch(ctx); err != nil {
				r.logger.ErrorContext(ctx, "outbox relay batch failed", "error", err)
			}
		}
	}
}

type outboxRow struct {
	id          string
	aggregateID string
	payload     []byte
}

func (r *Relay) publishBatch(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_id, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, r.batch)
	if err != nil {
		return fmt.Errorf("select outbox batch: %w", err)
	}
	defer rows.Close()

	var pending []outboxRow
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.id, &row.aggregateID, &row.payload); err != nil {
			return fmt.Errorf("scan outbox row: %w", err)
		}
		pending = append(pending, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate outbox rows: %w", err)
	}

	for _, row := range pending {
		// Key by aggregate so all events for one user land in one partition,
		// preserving per-user ordering.
		if err := r.producer.Produce(ctx, r.topic, []byte(row.aggregateID), row.payload); err != nil {
			return fmt.Errorf("publish outbox entry %s: %w", row.id, err)
		}
		if _, err := r.db.ExecContext(ctx,
			`UPDATE outbox SET published_at = $1 WHERE id = $2`,
			time.Now(), row.id,
		); err != nil {
			return fmt.Errorf("mark outbox entry %s published: %w", row.id, err)
		}
	}
	return nil
}
