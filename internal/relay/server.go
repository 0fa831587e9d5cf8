// Package relay forwards API calls on behalf of a client that cannot reach
// the target directly, and reports the target's answer in a fixed envelope.
package relay

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/yourorg/apitester/internal/config"
	"github.com/yourorg/apitester/pkg/types"
)

const (
	ServiceName = "API Tester Relay"
	Version     = "1.0.0"

	userAgent    = "API-Tester-Relay/1.0.0"
	maxBodyBytes = 10 << 20
)

var strippedHeaders = []string{"content-encoding", "transfer-encoding", "connection"}

var bodyMethods = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

// Server is the relay HTTP handler.
type Server struct {
	cfg     config.RelayConfig
	log     zerolog.Logger
	client  *http.Client
	blocked []string
	limiter *clientLimiter
	mux     *http.ServeMux
	now     func() time.Time
}

// NewServer builds a relay from cfg. cfg is expected to carry defaults.
func NewServer(cfg config.RelayConfig, log zerolog.Logger) *Server {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRedirects := cfg.MaxRedirects
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify} //nolint:gosec

	s := &Server{
		cfg: cfg,
		log: log,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		blocked: cfg.BlockedHostList(),
		limiter: newClientLimiter(cfg.RateLimit, time.Duration(cfg.RateWindowMinutes)*time.Minute),
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	s.mux.HandleFunc("/api/wrapper", s.handleWrapper)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/", s.handleNotFound)
	return s
}

// Handler returns the relay handler with CORS and rate limiting applied.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORS(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if !s.limiter.allow(clientKey(r)) {
			writeJSON(w, http.StatusTooManyRequests, types.RelayResponse{
				Success: false,
				Error:   "Too many requests",
				Message: "Too many requests from this IP, please try again later.",
			})
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

// ListenAndServe serves the relay on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.handleNotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, types.HealthStatus{
		Status:      "OK",
		Timestamp:   s.now().UTC(),
		Service:     ServiceName,
		Version:     Version,
		Environment: s.cfg.Environment,
		ServerIP:    s.serverIP(),
	})
}

func (s *Server) serverIP() string {
	if s.cfg.ServerIP != "" {
		return s.cfg.ServerIP
	}
	if s.cfg.Environment == "development" {
		return "localhost"
	}
	return s.cfg.Host
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, types.RelayResponse{
		Success: false,
		Error:   "Not found",
		Message: "The requested endpoint does not exist",
	})
}

func (s *Server) handleWrapper(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.handleNotFound(w, r)
		return
	}
	var req types.RelayRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.URL == "" {
		writeFailure(w, http.StatusBadRequest, "Missing required field: url", "Please provide a target URL in the request body")
		return
	}
	if req.Method == "" {
		writeFailure(w, http.StatusBadRequest, "Missing required field: method", "Please provide an HTTP method (GET, POST, PUT, DELETE, etc.)")
		return
	}
	target, err := url.Parse(req.URL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		writeFailure(w, http.StatusBadRequest, "Invalid URL format", "Please provide a valid URL")
		return
	}
	host := strings.ToLower(target.Hostname())
	if slices.Contains(s.blocked, host) {
		writeFailure(w, http.StatusBadRequest, "Blocked hostname",
			fmt.Sprintf("Cannot proxy requests to %s for security reasons", target.Hostname()))
		return
	}

	method := strings.ToUpper(req.Method)
	resp, err := s.forward(r.Context(), method, target, req)
	if err != nil {
		status, msg := classify(err)
		s.log.Warn().Err(err).Str("method", method).Str("target", target.String()).Int("status", status).Msg("relay forward failed")
		writeFailure(w, status, "API Wrapper request failed", msg)
		return
	}
	s.log.Info().
		Str("method", method).
		Str("target", target.String()).
		Int("status", resp.Status).
		Int64("duration_ms", resp.WrapperInfo.ResponseTime).
		Msg("relay forward")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) forward(ctx context.Context, method string, target *url.URL, req types.RelayRequest) (types.RelayResponse, error) {
	var body io.Reader
	sendBody := slices.Contains(bodyMethods, method) && len(req.Body) > 0 && string(req.Body) != "null"
	if sendBody {
		body = bytes.NewReader(requestPayload(req.Body))
	}
	out, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return types.RelayResponse{}, err
	}
	out.Header.Set("User-Agent", userAgent)
	out.Header.Set("Accept", "*/*")
	out.Header.Set("Cache-Control", "no-cache")
	if sendBody {
		out.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		out.Header.Set(k, v)
	}

	start := s.now()
	resp, err := s.client.Do(out)
	if err != nil {
		return types.RelayResponse{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return types.RelayResponse{}, err
	}
	elapsed := s.now().Sub(start)

	return types.RelayResponse{
		Success:    true,
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Headers:    responseHeaders(resp.Header),
		Data:       responseData(raw),
		WrapperInfo: &types.WrapperInfo{
			Timestamp:    s.now().UTC(),
			ResponseTime: elapsed.Milliseconds(),
			TargetURL:    target.String(),
			Method:       method,
		},
	}, nil
}

// requestPayload sends a JSON string body as its text, anything else as JSON.
func requestPayload(body json.RawMessage) []byte {
	var text string
	if err := json.Unmarshal(body, &text); err == nil {
		return []byte(text)
	}
	return body
}

func statusText(resp *http.Response) string {
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))); text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func responseHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		name := strings.ToLower(k)
		if slices.Contains(strippedHeaders, name) {
			continue
		}
		out[name] = strings.Join(v, ", ")
	}
	return out
}

// responseData keeps JSON bodies as JSON and wraps anything else as a string.
func responseData(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage(`""`)
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	text, _ := json.Marshal(string(raw))
	return text
}

func classify(err error) (int, string) {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		return http.StatusNotFound, "Target URL not found"
	case isRefused(err):
		return http.StatusServiceUnavailable, "Connection refused by target server"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return http.StatusGatewayTimeout, "Request timeout"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func isRefused(err error) bool {
	var opErr *net.OpError
	if !errors.As(err, &opErr) || opErr.Op != "dial" {
		return false
	}
	return strings.Contains(strings.ToLower(opErr.Err.Error()), "refused")
}

func writeFailure(w http.ResponseWriter, status int, title, message string) {
	writeJSON(w, status, types.RelayResponse{Success: false, Error: title, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func setCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	} else {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Add("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS, HEAD")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization, Cache-Control, Pragma")
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// clientLimiter holds one token bucket per client address.
type clientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	entries map[string]*limiterEntry
	sweeps  int
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

func newClientLimiter(n int, window time.Duration) *clientLimiter {
	if n <= 0 {
		return nil
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &clientLimiter{
		limit:   rate.Every(window / time.Duration(n)),
		burst:   n,
		idle:    window,
		entries: make(map[string]*limiterEntry),
	}
}

func (c *clientLimiter) allow(key string) bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	e, ok := c.entries[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(c.limit, c.burst)}
		c.entries[key] = e
	}
	e.seen = now
	c.sweeps++
	if c.sweeps >= 1000 {
		c.sweeps = 0
		for k, v := range c.entries {
			if now.Sub(v.seen) > c.idle {
				delete(c.entries, k)
			}
		}
	}
	return e.lim.AllowN(now, 1)
}
