package entity

import (
	"time"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusCreated   OrderStatus = "created"
	StatusPaid      OrderStatus = "paid"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// OrderItem is a line item within an order. Items are fixed at creation
// and never recomputed afterwards.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// ShippingAddress is the destination for an order.
type ShippingAddress struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// PaymentResult tracks the order's state at the payment gateway.
// GatewayOrderID is assigned exactly once, when the remote order is
// created. PaymentID and Signature are set only by a successful
// verification; Signature keeps the last verified value for audit.
type PaymentResult struct {
	GatewayOrderID string `json:"gateway_order_id"`
	PaymentID      string `json:"payment_id,omitempty"`
	Signature      string `json:"signature,omitempty"`
	Status         string `json:"status,omitempty"`
	RefundID       string `json:"refund_id,omitempty"`
	RefundStatus   string `json:"refund_status,omitempty"`
}

// Order represents a customer order.
//
// Version is an optimistic-concurrency counter: every successful update
// increments it, and writers must present the version they read. The
// client-confirmation and webhook paths can race on the same order, so
// every transition to paid/delivered/cancelled goes through a versioned
// update.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	ItemsPrice      float64         `json:"items_price"`
	ShippingPrice   float64         `json:"shipping_price"`
	TotalPrice      float64         `json:"total_price"`
	IsPaid          bool            `json:"is_paid"`
	IsDelivered     bool            `json:"is_delivered"`
	Status          OrderStatus     `json:"status"`
	PaymentResult   PaymentResult   `json:"payment_result"`
	Version         int             `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
}
