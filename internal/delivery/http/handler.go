package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/egannguyen/go-order-payments/internal/entity"
	"github.com/egannguyen/go-order-payments/internal/gateway"
	"github.com/egannguyen/go-order-payments/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// webhookSignatureHeader carries the gateway's digest of the raw body.
const webhookSignatureHeader = "X-Razorpay-Signature"

// Handler handles HTTP requests for the application.
type Handler struct {
	orders       *service.OrderService
	webhooks     *service.WebhookService
	auth         Authenticator
	gatewayKeyID string
}

func NewHandler(orders *service.OrderService, webhooks *service.WebhookService, auth Authenticator, gatewayKeyID string) *Handler {
	return &Handler{
		orders:       orders,
		webhooks:     webhooks,
		auth:         auth,
		gatewayKeyID: gatewayKeyID,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/config", h.handleGetConfig)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth(h.auth))

			r.Post("/", h.handleCreateOrder)
			r.Post("/verify", h.handleVerifyPayment)
			r.Get("/mine", h.handleGetMyOrders)
			r.Get("/{id}", h.handleGetOrder)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)

				r.Get("/", h.handleGetAllOrders)
				r.Put("/{id}/deliver", h.handleMarkDelivered)
				r.Post("/{id}/refund", h.handleRefund)
			})
		})
	})

	r.Post("/api/webhooks/razorpay", h.handleWebhook)
}

type errorResponse struct {
	Message string `json:"message"`
}

type createOrderRequest struct {
	Items           []entity.OrderItem     `json:"order_items"`
	ShippingAddress entity.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method"`
	ItemsPrice      float64                `json:"items_price"`
	ShippingPrice   float64                `json:"shipping_price"`
	TotalPrice      float64                `json:"total_price"`
}

type createOrderResponse struct {
	Order        *entity.Order        `json:"order"`
	GatewayOrder gateway.GatewayOrder `json:"gateway_order"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Message: "Invalid request body"})
		return
	}

	order, gatewayOrder, err := h.orders.Create(r.Context(), service.CreateOrderInput{
		UserID:          identity.UserID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		ItemsPrice:      req.ItemsPrice,
		ShippingPrice:   req.ShippingPrice,
		TotalPrice:      req.TotalPrice,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, createOrderResponse{Order: order, GatewayOrder: gatewayOrder})
}

// verifyPaymentRequest uses the field names the Razorpay checkout widget
// submits, so the client can forward its callback payload unchanged.
type verifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
	OrderID           string `json:"order_id"`
}

func (h *Handler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Message: "Invalid request body"})
		return
	}

	order, err := h.orders.VerifyPayment(r.Context(), req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature, req.OrderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, order)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	order, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Owners see their own orders; everything else needs the admin flag.
	if order.UserID != identity.UserID && !identity.IsAdmin {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errorResponse{Message: "Order not found"})
		return
	}

	render.JSON(w, r, order)
}

func (h *Handler) handleGetMyOrders(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())

	orders, err := h.orders.ListByUser(r.Context(), identity.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, orders)
}

func (h *Handler) handleGetAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, orders)
}

func (h *Handler) handleMarkDelivered(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.MarkDelivered(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, order)
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if r.Body != nil {
		// Body is optional; an empty reason gets a default downstream.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	order, err := h.orders.Refund(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, order)
}

// handleGetConfig exposes the public gateway key the checkout widget
// needs. The secret never leaves the server.
func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"key": h.gatewayKeyID})
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	// The digest is computed over the transported bytes, so the body must
	// be read raw, never decoded and re-encoded.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Message: "Failed to read request body"})
		return
	}

	ack, err := h.webhooks.Handle(r.Context(), body, r.Header.Get(webhookSignatureHeader))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, ack)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, entity.ErrSignatureMismatch):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Message: "Invalid payment signature"})
	case errors.Is(err, entity.ErrWebhookAuth):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Message: "Invalid webhook signature"})
	case errors.Is(err, entity.ErrValidation):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errorResponse{Message: err.Error()})
	case errors.Is(err, entity.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errorResponse{Message: "Order not found"})
	case errors.Is(err, entity.ErrConflict):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, errorResponse{Message: err.Error()})
	case errors.Is(err, entity.ErrGateway):
		slog.Error("Gateway error", "err", err)
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, errorResponse{Message: "Payment gateway error"})
	default:
		slog.Error("Internal error", "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{Message: "Internal server error"})
	}
}
