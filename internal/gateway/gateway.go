package gateway

import "context"

// GatewayOrder is the remote order object created at the payment gateway.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Refund is the gateway's record of an issued refund.
type Refund struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// Client talks to the payment gateway. Amounts are in minor currency
// units (paise for INR).
type Client interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (GatewayOrder, error)
	Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (Refund, error)
}
