package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type CaptureConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// CaptureClient talks to the pull-style payment provider: the client creates
// an order during checkout, the shopper approves it on the provider's pages,
// and the backend later captures the approved order by id.
type CaptureClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

type CreateOrderRequest struct {
	ReferenceID string `json:"reference_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

type CreateOrderResponse struct {
	OrderID    string `json:"order_id"`
	Status     string `json:"status"`
	ApproveURL string `json:"approve_url"`
}

type CaptureOrderResponse struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	ReferenceID   string `json:"reference_id"`
}

// Captured reports whether the provider settled the order.
func (r *CaptureOrderResponse) Captured() bool {
	return r.Status == "COMPLETED" || r.Status == "CAPTURED"
}

func NewCaptureClient(cfg CaptureConfig) *CaptureClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &CaptureClient{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (cc *CaptureClient) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	var resp CreateOrderResponse
	if err := cc.post(ctx, "/v2/checkout/orders", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return &resp, nil
}

// CaptureOrder is safe to retry: the provider returns the same settled order
// for a repeated capture of an already-captured id.
func (cc *CaptureClient) CaptureOrder(ctx context.Context, orderID string) (*CaptureOrderResponse, error) {
	var resp CaptureOrderResponse
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", orderID)
	if err := cc.post(ctx, path, struct{}{}, &resp); err != nil {
		return nil, fmt.Errorf("failed to capture order %s: %w", orderID, err)
	}
	return &resp, nil
}

func (cc *CaptureClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cc.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(cc.clientID, cc.clientSecret)

	resp, err := cc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
