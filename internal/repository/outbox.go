package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type EventStatus string

const (
	EventStatusCreated        EventStatus = "CREATED"
	EventStatusProcessing     EventStatus = "PROCESSING"
	EventStatusFailed         EventStatus = "FAILED"
	EventStatusNoAttemptsLeft EventStatus = "NO_ATTEMPTS_LEFT"
)

// OutboxEvent is one change-feed notification awaiting publication. Rows are
// written in the same request that mutates the orders table and relayed to
// the feed topic by the outbox poller.
type OutboxEvent struct {
	ID            int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Payload       []byte
	Status        EventStatus
	AttemptCount  int
	NextAttemptAt sql.NullTime
}

type OutboxRepository interface {
	CreateEvent(ctx context.Context, payload []byte) error
	GetPendingEvents(ctx context.Context, limit, maxAttempts int) ([]*OutboxEvent, error)
	MarkEventProcessing(ctx context.Context, id int64) error
	DeleteEvent(ctx context.Context, id int64) error
	UpdateEventFailure(ctx context.Context, id int64, attemptCount int, status EventStatus, nextAttemptAt time.Time) error
}

type PostgresOutboxRepository struct {
	db *sql.DB
}

func NewPostgresOutboxRepository(db *sql.DB) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{db: db}
}

func (r *PostgresOutboxRepository) CreateEvent(ctx context.Context, payload []byte) error {
	query := `
		INSERT INTO order_events (created_at, updated_at, payload, status, attempt_count)
		VALUES (NOW(), NOW(), $1, $2, 0)
	`
	_, err := r.db.ExecContext(ctx, query, payload, EventStatusCreated)
	if err != nil {
		return fmt.Errorf("create outbox event: %w", err)
	}
	return nil
}

func (r *PostgresOutboxRepository) GetPendingEvents(ctx context.Context, limit, maxAttempts int) ([]*OutboxEvent, error) {
	query := `
		SELECT id, created_at, updated_at, payload, status, attempt_count, next_attempt_at
		FROM order_events
		WHERE attempt_count < $1
		  AND status IN ($2, $3)
		  AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
		ORDER BY id ASC
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, maxAttempts, EventStatusCreated, EventStatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		e := &OutboxEvent{}
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt, &e.Payload, &e.Status, &e.AttemptCount, &e.NextAttemptAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *PostgresOutboxRepository) MarkEventProcessing(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE order_events SET status=$1, updated_at=NOW() WHERE id=$2`,
		EventStatusProcessing, id,
	)
	if err != nil {
		return fmt.Errorf("mark event processing: %w", err)
	}
	return nil
}

func (r *PostgresOutboxRepository) DeleteEvent(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM order_events WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete outbox event: %w", err)
	}
	return nil
}

func (r *PostgresOutboxRepository) UpdateEventFailure(ctx context.Context, id int64, attemptCount int, status EventStatus, nextAttemptAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE order_events SET attempt_count=$1, status=$2, next_attempt_at=$3, updated_at=NOW() WHERE id=$4`,
		attemptCount, status, nextAttemptAt, id,
	)
	if err != nil {
		return fmt.Errorf("update outbox event failure: %w", err)
	}
	return nil
}
