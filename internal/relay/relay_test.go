package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/apitester/internal/config"
	"github.com/yourorg/apitester/pkg/types"
)

func testConfig() config.RelayConfig {
	return config.RelayConfig{
		Host:              "0.0.0.0",
		Environment:       "production",
		RateLimit:         100,
		RateWindowMinutes: 15,
		TimeoutSeconds:    5,
		MaxRedirects:      5,
	}
}

// viaLocalhost rewrites an httptest URL so it is not caught by the
// always-blocked 127.0.0.1 entry.
func viaLocalhost(raw string) string {
	return strings.Replace(raw, "127.0.0.1", "localhost", 1)
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, types.RelayResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/wrapper", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out types.RelayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestWrapperRejectsBadInput(t *testing.T) {
	h := NewServer(testConfig(), zerolog.Nop()).Handler()

	cases := []struct {
		name    string
		body    string
		errText string
		message string
	}{
		{"missing url", `{"method":"GET"}`, "Missing required field: url", "Please provide a target URL in the request body"},
		{"missing method", `{"url":"http://example.com"}`, "Missing required field: method", "Please provide an HTTP method (GET, POST, PUT, DELETE, etc.)"},
		{"invalid url", `{"url":"not a url","method":"GET"}`, "Invalid URL format", "Please provide a valid URL"},
		{"blocked host", `{"url":"http://127.0.0.1:9/x","method":"GET"}`, "Blocked hostname", "Cannot proxy requests to 127.0.0.1 for security reasons"},
		{"broken json", `{"url":`, "Invalid request body", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, out := post(t, h, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, out.Success)
			assert.Equal(t, tc.errText, out.Error)
			if tc.message != "" {
				assert.Equal(t, tc.message, out.Message)
			}
		})
	}
}

func TestLocalhostBlockedInDevelopment(t *testing.T) {
	cfg := testConfig()
	cfg.Environment = "development"
	h := NewServer(cfg, zerolog.Nop()).Handler()

	rec, out := post(t, h, `{"url":"http://LOCALHOST:8080/","method":"GET"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Blocked hostname", out.Error)
}

func TestConfiguredHostsBlocked(t *testing.T) {
	cfg := testConfig()
	cfg.BlockedHosts = []string{"Internal.Example.com"}
	h := NewServer(cfg, zerolog.Nop()).Handler()

	rec, out := post(t, h, `{"url":"https://internal.example.com/admin","method":"GET"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Cannot proxy requests to internal.example.com for security reasons", out.Message)
}

func TestForwardJSONResponse(t *testing.T) {
	var gotBody []byte
	var gotHeader, gotMethod string
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Trace")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-Id", "abc")
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7,"name":"ada"}`))
	}))
	defer target.Close()

	h := NewServer(testConfig(), zerolog.Nop()).Handler()
	body := `{"url":"` + viaLocalhost(target.URL) + `/users","method":"post","headers":{"X-Trace":"t1"},"body":{"name":"ada"}}`
	rec, out := post(t, h, body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, out.Success)
	assert.Equal(t, http.StatusCreated, out.Status)
	assert.Equal(t, "Created", out.StatusText)
	assert.JSONEq(t, `{"id":7,"name":"ada"}`, string(out.Data))
	assert.Equal(t, "abc", out.Headers["x-request-id"])
	assert.NotContains(t, out.Headers, "connection")
	require.NotNil(t, out.WrapperInfo)
	assert.Equal(t, "POST", out.WrapperInfo.Method)
	assert.Equal(t, viaLocalhost(target.URL)+"/users", out.WrapperInfo.TargetURL)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "t1", gotHeader)
	assert.JSONEq(t, `{"name":"ada"}`, string(gotBody))
}

func TestForwardKeepsTargetErrorStatus(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nothing here", http.StatusNotFound)
	}))
	defer target.Close()

	h := NewServer(testConfig(), zerolog.Nop()).Handler()
	rec, out := post(t, h, `{"url":"`+viaLocalhost(target.URL)+`/missing","method":"GET"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, out.Success)
	assert.Equal(t, http.StatusNotFound, out.Status)

	var text string
	require.NoError(t, json.Unmarshal(out.Data, &text))
	assert.Equal(t, "nothing here\n", text)
}

func TestForwardDropsBodyOnGet(t *testing.T) {
	var gotLen int64 = -2
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLen = r.ContentLength
		w.WriteHeader(http.StatusNoContent)
	}))
	defer target.Close()

	h := NewServer(testConfig(), zerolog.Nop()).Handler()
	_, out := post(t, h, `{"url":"`+viaLocalhost(target.URL)+`","method":"GET","body":{"a":1}}`)

	assert.True(t, out.Success)
	assert.Equal(t, int64(0), gotLen)
	assert.Equal(t, `""`, string(out.Data))
}

func TestForwardStringBodySentAsText(t *testing.T) {
	var got []byte
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
	}))
	defer target.Close()

	h := NewServer(testConfig(), zerolog.Nop()).Handler()
	post(t, h, `{"url":"`+viaLocalhost(target.URL)+`","method":"PUT","body":"a=1&b=2"}`)

	assert.Equal(t, "a=1&b=2", string(got))
}

func TestForwardRefusedMapsTo503(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	h := NewServer(testConfig(), zerolog.Nop()).Handler()
	rec, out := post(t, h, `{"url":"http://`+viaLocalhost(addr)+`/","method":"GET"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, out.Success)
	assert.Equal(t, "API Wrapper request failed", out.Error)
	assert.Equal(t, "Connection refused by target server", out.Message)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 2
	h := NewServer(cfg, zerolog.Nop()).Handler()

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many requests from this IP, please try again later.")

	other := httptest.NewRequest(http.MethodGet, "/health", nil)
	other.RemoteAddr = "10.0.0.9:4000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndNotFound(t *testing.T) {
	cfg := testConfig()
	cfg.ServerIP = "10.1.2.3"
	h := NewServer(cfg, zerolog.Nop()).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var hs types.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hs))
	assert.Equal(t, "OK", hs.Status)
	assert.Equal(t, "production", hs.Environment)
	assert.Equal(t, "10.1.2.3", hs.ServerIP)
	assert.Equal(t, Version, hs.Version)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "The requested endpoint does not exist")
}

func TestCORSReflectsOrigin(t *testing.T) {
	h := NewServer(testConfig(), zerolog.Nop()).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/wrapper", nil)
	req.Header.Set("Origin", "http://ui.local:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://ui.local:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestClientForwardAndHealth(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1,2,3]`))
	}))
	defer target.Close()
	relaySrv := httptest.NewServer(NewServer(testConfig(), zerolog.Nop()).Handler())
	defer relaySrv.Close()

	c := NewClient(relaySrv.URL+"/", 0)
	ctx := context.Background()

	resp, err := c.Forward(ctx, types.RelayRequest{URL: viaLocalhost(target.URL), Method: "GET"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `[1,2,3]`, string(resp.Data))

	resp, err = c.Forward(ctx, types.RelayRequest{URL: "http://127.0.0.1/", Method: "GET"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "Cannot proxy requests to 127.0.0.1 for security reasons", resp.FailureText())

	hs, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OK", hs.Status)
}

func TestClientUnreadableEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.Copy(w, bytes.NewBufferString("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).Forward(context.Background(), types.RelayRequest{URL: "http://x.test", Method: "GET"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
