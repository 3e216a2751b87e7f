package repository

import (
	"context"

	"github.com/egannguyen/go-order-payments/internal/entity"
)

// OrderRepository handles persistence for Orders.
type OrderRepository interface {
	Get(ctx context.Context, id string) (*entity.Order, error)
	// GetByGatewayOrderID resolves an order from the gateway's order id,
	// the only reference a webhook payload carries.
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*entity.Order, error)
	Create(ctx context.Context, order *entity.Order) error
	// Update writes the order only if the stored version matches
	// order.Version, then increments it. Returns entity.ErrVersionConflict
	// when a concurrent writer got there first.
	Update(ctx context.Context, order *entity.Order) error
	FindByUser(ctx context.Context, userID string) ([]entity.Order, error)
	FindAll(ctx context.Context) ([]entity.Order, error)
}

// EventLog appends order lifecycle events to an audit trail.
type EventLog interface {
	Append(ctx context.Context, orderID string, event entity.Event) error
}

// WebhookDedup records processed webhook deliveries so gateway retries of
// the same event are acknowledged without re-dispatch.
type WebhookDedup interface {
	// MarkProcessed records key and reports whether this was the first
	// time it was seen.
	MarkProcessed(ctx context.Context, key string) (bool, error)
	// Forget removes key so the gateway's retry of a delivery that
	// failed mid-dispatch is processed again instead of short-circuited.
	Forget(ctx context.Context, key string) error
}
