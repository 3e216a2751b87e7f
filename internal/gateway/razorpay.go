package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/egannguyen/go-order-payments/internal/entity"
)

const defaultBaseURL = "https://api.razorpay.com/v1"

// RazorpayClient implements Client against the Razorpay REST API.
// Credentials are injected once at construction and never read from the
// environment afterwards.
type RazorpayClient struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

// NewRazorpayClient creates a client with a bounded request timeout.
// A timed-out call surfaces as entity.ErrGateway like any other failure.
func NewRazorpayClient(keyID, keySecret string, timeout time.Duration) *RazorpayClient {
	return &RazorpayClient{
		baseURL:    defaultBaseURL,
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewRazorpayClientWithBaseURL is used by tests to point at a fake server.
func NewRazorpayClientWithBaseURL(baseURL, keyID, keySecret string, timeout time.Duration) *RazorpayClient {
	c := NewRazorpayClient(keyID, keySecret, timeout)
	c.baseURL = baseURL
	return c
}

type gatewayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (GatewayOrder, error) {
	body := map[string]any{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}

	var order GatewayOrder
	if err := c.post(ctx, "/orders", body, &order); err != nil {
		return GatewayOrder{}, err
	}
	return order, nil
}

func (c *RazorpayClient) Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (Refund, error) {
	body := map[string]any{
		"amount": amount,
	}
	if len(notes) > 0 {
		body["notes"] = notes
	}

	var refund Refund
	if err := c.post(ctx, "/payments/"+paymentID+"/refund", body, &refund); err != nil {
		return Refund{}, err
	}
	return refund, nil
}

func (c *RazorpayClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrGateway, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", entity.ErrGateway, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var gwErr gatewayError
		if json.Unmarshal(data, &gwErr) == nil && gwErr.Error.Description != "" {
			return fmt.Errorf("%w: %s (%s)", entity.ErrGateway, gwErr.Error.Description, gwErr.Error.Code)
		}
		return fmt.Errorf("%w: unexpected status %d", entity.ErrGateway, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", entity.ErrGateway, err)
	}
	return nil
}
