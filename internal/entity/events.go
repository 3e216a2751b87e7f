package entity

import "time"

// Event represents a domain event.
type Event interface {
	EventType() string
}

// OrderCreated is emitted when an order and its gateway counterpart exist.
type OrderCreated struct {
	OrderID        string    `json:"order_id"`
	UserID         string    `json:"user_id"`
	GatewayOrderID string    `json:"gateway_order_id"`
	TotalPrice     float64   `json:"total_price"`
	CreatedAt      time.Time `json:"created_at"`
}

func (e OrderCreated) EventType() string { return "OrderCreated" }

// OrderPaid is emitted when either verification path confirms payment.
type OrderPaid struct {
	OrderID        string    `json:"order_id"`
	GatewayOrderID string    `json:"gateway_order_id"`
	PaymentID      string    `json:"payment_id"`
	Source         string    `json:"source"` // "client" or "webhook"
	PaidAt         time.Time `json:"paid_at"`
}

func (e OrderPaid) EventType() string { return "OrderPaid" }

// OrderDelivered is emitted when an operator marks an order delivered.
type OrderDelivered struct {
	OrderID     string    `json:"order_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

func (e OrderDelivered) EventType() string { return "OrderDelivered" }

// OrderRefunded is emitted after the gateway confirms a full refund.
type OrderRefunded struct {
	OrderID      string    `json:"order_id"`
	PaymentID    string    `json:"payment_id"`
	RefundID     string    `json:"refund_id"`
	RefundStatus string    `json:"refund_status"`
	Reason       string    `json:"reason"`
	RefundedAt   time.Time `json:"refunded_at"`
}

func (e OrderRefunded) EventType() string { return "OrderRefunded" }
