package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/egannguyen/go-order-payments/internal/entity"
	"github.com/egannguyen/go-order-payments/internal/repository"
	"github.com/egannguyen/go-order-payments/internal/signature"
)

// Ack is the response returned to the gateway for a processed delivery.
type Ack struct {
	Received bool `json:"received"`
}

// webhookEvent mirrors the shape of a Razorpay webhook body.
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// WebhookService authenticates asynchronous gateway notifications and
// dispatches them to the order lifecycle.
type WebhookService struct {
	orders *OrderService
	dedup  repository.WebhookDedup
	secret string
}

// NewWebhookService creates a webhook processor. An empty secret disables
// signature verification; that degraded mode is logged loudly so it is
// never enabled in production by accident.
func NewWebhookService(orders *OrderService, dedup repository.WebhookDedup, secret string) *WebhookService {
	if secret == "" {
		slog.Warn("Webhook secret not configured, signature verification disabled")
	}
	return &WebhookService{orders: orders, dedup: dedup, secret: secret}
}

// Handle processes one webhook delivery. The signature is computed over
// the exact raw body bytes as transported; re-serializing the JSON could
// reorder keys and break the digest.
func (s *WebhookService) Handle(ctx context.Context, body []byte, signatureHeader string) (Ack, error) {
	if s.secret != "" {
		if !signature.Verify(body, s.secret, signatureHeader) {
			slog.Warn("Webhook signature mismatch")
			return Ack{}, entity.ErrWebhookAuth
		}
	}

	// Gateways redeliver events until acknowledged; a body hash makes a
	// stable idempotency key across retries of the same delivery.
	var dedupKey string
	if s.dedup != nil {
		sum := sha256.Sum256(body)
		dedupKey = hex.EncodeToString(sum[:])
		first, err := s.dedup.MarkProcessed(ctx, dedupKey)
		if err != nil {
			return Ack{}, fmt.Errorf("failed to check webhook dedup: %w", err)
		}
		if !first {
			slog.Info("Duplicate webhook delivery acknowledged")
			return Ack{Received: true}, nil
		}
	}

	if err := s.dispatch(ctx, body); err != nil {
		// The delivery was not applied; release the dedup key so the
		// gateway's retry is dispatched again rather than acknowledged
		// as a duplicate.
		if dedupKey != "" {
			if forgetErr := s.dedup.Forget(ctx, dedupKey); forgetErr != nil {
				slog.Error("Failed to release webhook dedup key", "err", forgetErr)
			}
		}
		return Ack{}, err
	}

	return Ack{Received: true}, nil
}

func (s *WebhookService) dispatch(ctx context.Context, body []byte) error {
	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: malformed webhook body", entity.ErrValidation)
	}

	payment := event.Payload.Payment.Entity

	switch event.Event {
	case "payment.captured", "order.paid":
		if _, err := s.orders.ConfirmPaymentByGatewayOrder(ctx, payment.OrderID, payment.ID); err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				// The gateway account may serve orders created by other
				// systems; acknowledge so it stops retrying.
				slog.Warn("Webhook for unknown order", "event", event.Event, "gateway_order_id", payment.OrderID)
				return nil
			}
			return err
		}
	case "payment.failed":
		if err := s.orders.RecordPaymentFailure(ctx, payment.OrderID, payment.ID); err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				slog.Warn("Webhook for unknown order", "event", event.Event, "gateway_order_id", payment.OrderID)
				return nil
			}
			return err
		}
	default:
		// The gateway's event set grows over time; unknown types are not
		// errors, just acknowledged.
		slog.Info("Unhandled webhook event", "event", event.Event)
	}

	return nil
}
