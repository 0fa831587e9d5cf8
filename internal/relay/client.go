package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/apitester/pkg/types"
)

// Forwarder sends one request through a relay.
type Forwarder interface {
	Forward(ctx context.Context, req types.RelayRequest) (types.RelayResponse, error)
}

// Client talks to a relay over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the relay at baseURL. The timeout covers the
// whole round trip including the relay's own forward.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Forward posts req to the relay. A relay-side failure still comes back as a
// decoded envelope with Success false; err is set only when no envelope could
// be read.
func (c *Client) Forward(ctx context.Context, req types.RelayRequest) (types.RelayResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return types.RelayResponse{}, fmt.Errorf("encode relay request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/wrapper", bytes.NewReader(payload))
	if err != nil {
		return types.RelayResponse{}, fmt.Errorf("build relay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return types.RelayResponse{}, fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return types.RelayResponse{}, fmt.Errorf("read relay response: %w", err)
	}
	var out types.RelayResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return types.RelayResponse{}, fmt.Errorf("relay returned status %d with unreadable body: %w", resp.StatusCode, err)
	}
	if !out.Success && out.Status == 0 {
		out.Status = resp.StatusCode
	}
	return out, nil
}

// Health fetches the relay liveness payload.
func (c *Client) Health(ctx context.Context) (types.HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return types.HealthStatus{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return types.HealthStatus{}, fmt.Errorf("relay health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.HealthStatus{}, fmt.Errorf("relay health: status %d", resp.StatusCode)
	}
	var hs types.HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return types.HealthStatus{}, fmt.Errorf("decode relay health: %w", err)
	}
	return hs, nil
}
