package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/egannguyen/go-order-payments/internal/entity"
	"github.com/egannguyen/go-order-payments/internal/gateway"
	"github.com/egannguyen/go-order-payments/internal/messaging"
	"github.com/egannguyen/go-order-payments/internal/repository"
	"github.com/egannguyen/go-order-payments/internal/signature"
	"github.com/google/uuid"
)

// Retries for versioned updates losing a race against the other
// verification path. Each retry reloads and re-checks the order.
const maxUpdateRetries = 3

// Kafka topics for order lifecycle events.
const (
	TopicOrderCreated   = "orders.created"
	TopicOrderPaid      = "orders.paid"
	TopicOrderDelivered = "orders.delivered"
	TopicOrderRefunded  = "orders.refunded"
)

// CreateOrderInput carries everything needed to open a new order.
type CreateOrderInput struct {
	UserID          string
	Items           []entity.OrderItem
	ShippingAddress entity.ShippingAddress
	PaymentMethod   string
	ItemsPrice      float64
	ShippingPrice   float64
	TotalPrice      float64
}

// OrderService orchestrates the order lifecycle: creation against the
// payment gateway, payment verification, delivery marking and refunds.
type OrderService struct {
	orders    repository.OrderRepository
	events    repository.EventLog
	gateway   gateway.Client
	publisher messaging.Publisher
	keySecret string
	currency  string
}

func NewOrderService(
	orders repository.OrderRepository,
	events repository.EventLog,
	gatewayClient gateway.Client,
	publisher messaging.Publisher,
	keySecret string,
	currency string,
) *OrderService {
	return &OrderService{
		orders:    orders,
		events:    events,
		gateway:   gatewayClient,
		publisher: publisher,
		keySecret: keySecret,
		currency:  currency,
	}
}

// Create validates the request, creates the remote gateway order and only
// then persists the local record. If the gateway call fails nothing is
// persisted, so from the caller's point of view creation is atomic.
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (*entity.Order, gateway.GatewayOrder, error) {
	if err := validateCreateInput(in); err != nil {
		return nil, gateway.GatewayOrder{}, err
	}

	receipt := "rcpt_" + uuid.NewString()
	gatewayOrder, err := s.gateway.CreateOrder(ctx, minorUnits(in.TotalPrice), s.currency, receipt)
	if err != nil {
		return nil, gateway.GatewayOrder{}, fmt.Errorf("failed to create gateway order: %w", err)
	}

	order := &entity.Order{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		Items:           in.Items,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		ItemsPrice:      in.ItemsPrice,
		ShippingPrice:   in.ShippingPrice,
		TotalPrice:      in.TotalPrice,
		Status:          entity.StatusCreated,
		PaymentResult:   entity.PaymentResult{GatewayOrderID: gatewayOrder.ID},
		CreatedAt:       time.Now(),
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, gateway.GatewayOrder{}, fmt.Errorf("failed to persist order: %w", err)
	}

	s.record(ctx, TopicOrderCreated, order.ID, entity.OrderCreated{
		OrderID:        order.ID,
		UserID:         order.UserID,
		GatewayOrderID: gatewayOrder.ID,
		TotalPrice:     order.TotalPrice,
		CreatedAt:      order.CreatedAt,
	})

	slog.Info("Order created", "order_id", order.ID, "gateway_order_id", gatewayOrder.ID, "total", order.TotalPrice)
	return order, gatewayOrder, nil
}

// VerifyPayment checks the client-submitted confirmation signature and,
// on success, transitions the order to paid. Calling it again with the
// same valid arguments is a no-op returning the already-paid order.
func (s *OrderService) VerifyPayment(ctx context.Context, gatewayOrderID, paymentID, sig, orderID string) (*entity.Order, error) {
	if !signature.Verify(signature.PaymentMessage(gatewayOrderID, paymentID), s.keySecret, sig) {
		slog.Warn("Payment signature mismatch", "order_id", orderID, "gateway_order_id", gatewayOrderID)
		return nil, entity.ErrSignatureMismatch
	}

	for attempt := 0; ; attempt++ {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}

		// A valid signature only authorizes the order the confirmation
		// was issued for; it must not mark a different order paid.
		if order.PaymentResult.GatewayOrderID != gatewayOrderID {
			slog.Warn("Payment confirmation for a different gateway order",
				"order_id", orderID, "gateway_order_id", gatewayOrderID)
			return nil, fmt.Errorf("%w: confirmation is for a different gateway order", entity.ErrConflict)
		}

		if order.IsPaid {
			// Already paid, by this call's retry or by the webhook path.
			// Never overwrite the recorded payment id.
			return order, nil
		}

		markPaid(order, paymentID, sig)

		err = s.orders.Update(ctx, order)
		if errors.Is(err, entity.ErrVersionConflict) && attempt < maxUpdateRetries {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update order: %w", err)
		}

		s.record(ctx, TopicOrderPaid, order.ID, entity.OrderPaid{
			OrderID:        order.ID,
			GatewayOrderID: gatewayOrderID,
			PaymentID:      paymentID,
			Source:         "client",
			PaidAt:         *order.PaidAt,
		})

		slog.Info("Payment verified", "order_id", order.ID, "payment_id", paymentID)
		return order, nil
	}
}

// ConfirmPaymentByGatewayOrder transitions the order matching the gateway
// order id to paid. It is the webhook counterpart of VerifyPayment; the
// delivery's signature has already been authenticated against the raw body.
func (s *OrderService) ConfirmPaymentByGatewayOrder(ctx context.Context, gatewayOrderID, paymentID string) (*entity.Order, error) {
	for attempt := 0; ; attempt++ {
		order, err := s.orders.GetByGatewayOrderID(ctx, gatewayOrderID)
		if err != nil {
			return nil, err
		}

		if order.IsPaid {
			return order, nil
		}

		markPaid(order, paymentID, "")

		err = s.orders.Update(ctx, order)
		if errors.Is(err, entity.ErrVersionConflict) && attempt < maxUpdateRetries {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update order: %w", err)
		}

		s.record(ctx, TopicOrderPaid, order.ID, entity.OrderPaid{
			OrderID:        order.ID,
			GatewayOrderID: gatewayOrderID,
			PaymentID:      paymentID,
			Source:         "webhook",
			PaidAt:         *order.PaidAt,
		})

		slog.Info("Payment confirmed via webhook", "order_id", order.ID, "payment_id", paymentID)
		return order, nil
	}
}

// RecordPaymentFailure notes a failed gateway payment attempt on the
// order's payment result. Paid orders are left untouched.
func (s *OrderService) RecordPaymentFailure(ctx context.Context, gatewayOrderID, paymentID string) error {
	for attempt := 0; ; attempt++ {
		order, err := s.orders.GetByGatewayOrderID(ctx, gatewayOrderID)
		if err != nil {
			return err
		}

		if order.IsPaid {
			return nil
		}

		order.PaymentResult.PaymentID = paymentID
		order.PaymentResult.Status = "failed"

		err = s.orders.Update(ctx, order)
		if errors.Is(err, entity.ErrVersionConflict) && attempt < maxUpdateRetries {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}

		slog.Info("Payment failure recorded", "order_id", order.ID, "payment_id", paymentID)
		return nil
	}
}

// MarkDelivered sets the delivered flags on a paid order. Authorization
// is the caller's responsibility (admin-only at the HTTP layer).
func (s *OrderService) MarkDelivered(ctx context.Context, orderID string) (*entity.Order, error) {
	for attempt := 0; ; attempt++ {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}

		if !order.IsPaid {
			return nil, fmt.Errorf("%w: order is not paid yet", entity.ErrConflict)
		}

		if order.IsDelivered {
			// Repeated operator action; keep the original delivery stamp.
			return order, nil
		}

		now := time.Now()
		order.IsDelivered = true
		order.DeliveredAt = &now
		order.Status = entity.StatusDelivered

		err = s.orders.Update(ctx, order)
		if errors.Is(err, entity.ErrVersionConflict) && attempt < maxUpdateRetries {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update order: %w", err)
		}

		s.record(ctx, TopicOrderDelivered, order.ID, entity.OrderDelivered{
			OrderID:     order.ID,
			DeliveredAt: now,
		})

		slog.Info("Order delivered", "order_id", order.ID)
		return order, nil
	}
}

// Refund issues a full refund at the gateway and cancels the order. The
// local record is mutated only after the gateway confirms the refund.
func (s *OrderService) Refund(ctx context.Context, orderID, reason string) (*entity.Order, error) {
	if reason == "" {
		reason = "Order cancelled"
	}

	for attempt := 0; ; attempt++ {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}

		if !order.IsPaid {
			return nil, fmt.Errorf("%w: order is not paid yet", entity.ErrConflict)
		}
		if order.PaymentResult.PaymentID == "" {
			return nil, fmt.Errorf("%w: order has no payment id", entity.ErrConflict)
		}

		refund, err := s.gateway.Refund(ctx, order.PaymentResult.PaymentID, minorUnits(order.TotalPrice), map[string]string{
			"reason": reason,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to refund payment: %w", err)
		}

		order.Status = entity.StatusCancelled
		order.IsPaid = false
		order.PaymentResult.RefundID = refund.ID
		order.PaymentResult.RefundStatus = refund.Status

		err = s.orders.Update(ctx, order)
		if errors.Is(err, entity.ErrVersionConflict) && attempt < maxUpdateRetries {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update order: %w", err)
		}

		s.record(ctx, TopicOrderRefunded, order.ID, entity.OrderRefunded{
			OrderID:      order.ID,
			PaymentID:    order.PaymentResult.PaymentID,
			RefundID:     refund.ID,
			RefundStatus: refund.Status,
			Reason:       reason,
			RefundedAt:   time.Now(),
		})

		slog.Info("Order refunded", "order_id", order.ID, "refund_id", refund.ID)
		return order, nil
	}
}

// Get returns a single order.
func (s *OrderService) Get(ctx context.Context, orderID string) (*entity.Order, error) {
	return s.orders.Get(ctx, orderID)
}

// ListByUser returns the orders belonging to a user.
func (s *OrderService) ListByUser(ctx context.Context, userID string) ([]entity.Order, error) {
	return s.orders.FindByUser(ctx, userID)
}

// ListAll returns every order.
func (s *OrderService) ListAll(ctx context.Context) ([]entity.Order, error) {
	return s.orders.FindAll(ctx)
}

// record appends the event to the audit log and publishes it to the
// broker. Neither failure fails the request; the store is the source of
// truth and downstream consumers can resync from it.
func (s *OrderService) record(ctx context.Context, topic, orderID string, event entity.Event) {
	if s.events != nil {
		if err := s.events.Append(ctx, orderID, event); err != nil {
			slog.Error("Failed to append order event", "order_id", orderID, "event", event.EventType(), "err", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishEvent(ctx, topic, orderID, event); err != nil {
			slog.Error("Failed to publish order event", "order_id", orderID, "event", event.EventType(), "err", err)
		}
	}
}

// markPaid flips the order to paid. The gateway order id recorded at
// creation is left untouched.
func markPaid(order *entity.Order, paymentID, sig string) {
	now := time.Now()
	order.IsPaid = true
	order.PaidAt = &now
	order.Status = entity.StatusPaid
	order.PaymentResult.PaymentID = paymentID
	order.PaymentResult.Signature = sig
	order.PaymentResult.Status = "paid"
}

func validateCreateInput(in CreateOrderInput) error {
	if in.UserID == "" {
		return fmt.Errorf("%w: user id is required", entity.ErrValidation)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: no order items", entity.ErrValidation)
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 || item.Price < 0 {
			return fmt.Errorf("%w: invalid order item", entity.ErrValidation)
		}
	}
	if in.ItemsPrice < 0 || in.ShippingPrice < 0 || in.TotalPrice < 0 {
		return fmt.Errorf("%w: prices must be non-negative", entity.ErrValidation)
	}
	if math.Abs(in.TotalPrice-(in.ItemsPrice+in.ShippingPrice)) > 0.005 {
		return fmt.Errorf("%w: total price must equal items price plus shipping", entity.ErrValidation)
	}
	return nil
}

func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
