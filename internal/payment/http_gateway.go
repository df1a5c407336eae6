package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPDoer defines the http.Client interface subset.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// HTTPGateway talks to the payment provider over its JSON API. Provider
// declines (4xx) map to ErrDeclined; 5xx and transport errors surface as-is.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

// NewHTTPGateway builds a gateway client with base URL and API key.
func NewHTTPGateway(baseURL, apiKey string, client HTTPDoer) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// NewDefaultHTTPClient returns *http.Client with timeout.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

type preAuthorizeRequest struct {
	UserID    int64   `json:"user_id"`
	AmountEur float64 `json:"amount_eur"`
}

type preAuthorizeResponse struct {
	Ref string `json:"ref"`
}

type captureRequest struct {
	Ref       string  `json:"ref"`
	AmountEur float64 `json:"amount_eur"`
}

type cancelRequest struct {
	Ref string `json:"ref"`
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload interface{}) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// PreAuthorize places a hold and returns the provider reference.
func (g *HTTPGateway) PreAuthorize(ctx context.Context, userID int64, amountEur float64) (string, error) {
	status, body, err := g.post(ctx, "/v1/holds", preAuthorizeRequest{UserID: userID, AmountEur: amountEur})
	if err != nil {
		return "", fmt.Errorf("payment: preauthorize: %w", err)
	}
	if status >= 400 && status < 500 {
		return "", ErrDeclined
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", fmt.Errorf("payment: preauthorize: unexpected status %d", status)
	}

	var parsed preAuthorizeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("payment: preauthorize: decode response: %w", err)
	}
	if parsed.Ref == "" {
		return "", fmt.Errorf("payment: preauthorize: empty ref")
	}
	return parsed.Ref, nil
}

// Capture charges against a hold.
func (g *HTTPGateway) Capture(ctx context.Context, ref string, amountEur float64) (CaptureResult, error) {
	status, body, err := g.post(ctx, "/v1/captures", captureRequest{Ref: ref, AmountEur: amountEur})
	if err != nil {
		return CaptureResult{}, fmt.Errorf("payment: capture: %w", err)
	}
	if status >= 400 && status < 500 {
		return CaptureResult{}, ErrDeclined
	}
	if status != http.StatusOK {
		return CaptureResult{}, fmt.Errorf("payment: capture: unexpected status %d", status)
	}

	var parsed CaptureResult
	if err := json.Unmarshal(body, &parsed); err != nil {
		return CaptureResult{}, fmt.Errorf("payment: capture: decode response: %w", err)
	}
	return parsed, nil
}

// Cancel releases a hold. Cancelling an unknown or already-released ref is a
// no-op on the provider side.
func (g *HTTPGateway) Cancel(ctx context.Context, ref string) error {
	status, _, err := g.post(ctx, "/v1/cancellations", cancelRequest{Ref: ref})
	if err != nil {
		return fmt.Errorf("payment: cancel: %w", err)
	}
	if status >= 500 {
		return fmt.Errorf("payment: cancel: unexpected status %d", status)
	}
	return nil
}
