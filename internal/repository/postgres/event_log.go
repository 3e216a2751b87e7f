package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/egannguyen/go-order-payments/internal/entity"
	"github.com/egannguyen/go-order-payments/internal/repository"
	"github.com/google/uuid"
)

type eventLog struct {
	db *sql.DB
}

// NewEventLog creates an order-event audit log backed by Postgres.
// The log is append-only; orders are retained indefinitely for audit and
// so is their event history.
func NewEventLog(db *sql.DB) repository.EventLog {
	return &eventLog{db: db}
}

func (l *eventLog) Append(ctx context.Context, orderID string, event entity.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
	}

	_, err = l.db.ExecContext(ctx,
		"INSERT INTO order_events (id, order_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)",
		uuid.NewString(), orderID, event.EventType(), payload, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", event.EventType(), err)
	}
	return nil
}
