package types

import (
	"encoding/json"
	"time"
)

// RelayRequest is the body posted to the relay forwarding endpoint.
type RelayRequest struct {
	URL     string            `json:"url" validate:"required"`
	Method  string            `json:"method" validate:"required"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// RelayResponse is the envelope returned by the relay.
type RelayResponse struct {
	Success     bool              `json:"success"`
	Status      int               `json:"status,omitempty"`
	StatusText  string            `json:"statusText,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Data        json.RawMessage   `json:"data,omitempty"`
	Message     string            `json:"message,omitempty"`
	Error       string            `json:"error,omitempty"`
	WrapperInfo *WrapperInfo      `json:"wrapperInfo,omitempty"`
}

// WrapperInfo carries relay-side timing for a forwarded call.
type WrapperInfo struct {
	Timestamp    time.Time `json:"timestamp"`
	ResponseTime int64     `json:"responseTime"`
	TargetURL    string    `json:"targetUrl"`
	Method       string    `json:"method"`
}

// FailureText picks the text a failed relay envelope should surface.
func (r RelayResponse) FailureText() string {
	if r.Message != "" {
		return r.Message
	}
	if r.Error != "" {
		return r.Error
	}
	return "relay request failed"
}

// HealthStatus is the relay liveness probe payload.
type HealthStatus struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Version     string    `json:"version"`
	Environment string    `json:"environment"`
	ServerIP    string    `json:"serverIP"`
}
