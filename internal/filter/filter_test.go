package filter

import (
	"testing"

	"github.com/yourorg/apitester/pkg/types"
)

func TestApplyFiltersBasic(t *testing.T) {
	cfg := FilterConfig{
		IgnoreExtensions:   []string{".js", ".css", ".png"},
		IgnoreContentTypes: []string{"text/html", "image/*"},
		IgnorePaths:        []string{"/static/", "/assets/", "/favicon"},
	}
	exchanges := []types.Exchange{
		{Method: "OPTIONS", Path: "/api/ping", StatusCode: 204},
		{Method: "GET", Path: "/static/app.js", ResponseContentType: "application/javascript", StatusCode: 200},
		{Method: "GET", Path: "/index", ResponseContentType: "text/html; charset=utf-8", StatusCode: 200},
		{Method: "GET", Path: "/assets/logo.png", ResponseContentType: "image/png", StatusCode: 200},
		{Method: "GET", Path: "/favicon", ResponseContentType: "image/x-icon", StatusCode: 200},
		{Method: "GET", Path: "/api/data", ResponseContentType: "application/json", StatusCode: 200},
	}

	res := Run(exchanges, cfg)
	if len(res.Kept) != 1 {
		t.Fatalf("expected 1 exchange, got %d", len(res.Kept))
	}
	if res.Kept[0].Path != "/api/data" {
		t.Fatalf("expected /api/data, got %s", res.Kept[0].Path)
	}
	if res.Dropped[ReasonPreflight] != 1 || res.Dropped[ReasonExtension] != 2 || res.Dropped[ReasonContentType] != 2 {
		t.Fatalf("unexpected drop counts: %v", res.Dropped)
	}
}

func TestApplyFoldsIdenticalRequests(t *testing.T) {
	exchanges := []types.Exchange{
		{Method: "GET", Path: "/api/users", QueryParams: map[string][]string{"id": {"1"}}, StatusCode: 200},
		{Method: "get", Path: "/api/users", QueryParams: map[string][]string{"id": {"1"}}, StatusCode: 200},
		{Method: "GET", Path: "/api/users", QueryParams: map[string][]string{"id": {"2"}}, StatusCode: 200},
		{Method: "POST", Path: "/api/users", QueryParams: map[string][]string{"id": {"1"}}, StatusCode: 201},
	}

	out := Apply(exchanges, FilterConfig{})
	if len(out) != 3 {
		t.Fatalf("expected 3 exchanges, got %d", len(out))
	}
	if out[0].CallCount != 2 {
		t.Fatalf("expected CallCount 2, got %d", out[0].CallCount)
	}
	if out[1].CallCount != 1 || out[2].CallCount != 1 {
		t.Fatalf("expected single calls to count 1, got %d and %d", out[1].CallCount, out[2].CallCount)
	}
}

func TestApplyPrefersSuccessfulSample(t *testing.T) {
	exchanges := []types.Exchange{
		{Seq: 1, Method: "GET", Path: "/api/me", StatusCode: 401, ResponseBody: `{"error":"login"}`},
		{Seq: 2, Method: "GET", Path: "/api/other", StatusCode: 200},
		{Seq: 3, Method: "GET", Path: "/api/me", StatusCode: 200, ResponseBody: `{"id":1}`},
	}

	out := Apply(exchanges, FilterConfig{})
	if len(out) != 2 {
		t.Fatalf("expected 2 exchanges, got %d", len(out))
	}
	if out[0].StatusCode != 200 || out[0].ResponseBody != `{"id":1}` {
		t.Fatalf("expected successful sample to win, got %d %s", out[0].StatusCode, out[0].ResponseBody)
	}
	if out[0].Seq != 1 || out[0].CallCount != 2 {
		t.Fatalf("expected first position and CallCount 2, got seq %d count %d", out[0].Seq, out[0].CallCount)
	}
}

func TestApplyRemoveConsecutive5xxRetries(t *testing.T) {
	exchanges := []types.Exchange{
		{Method: "GET", Path: "/api/retry", StatusCode: 500},
		{Method: "GET", Path: "/api/retry", StatusCode: 502},
		{Method: "GET", Path: "/api/retry", StatusCode: 503},
	}

	res := Run(exchanges, FilterConfig{})
	if len(res.Kept) != 1 {
		t.Fatalf("expected 1 exchange after 5xx dedup, got %d", len(res.Kept))
	}
	if res.Kept[0].CallCount != 1 {
		t.Fatalf("expected CallCount 1 after dedup, got %d", res.Kept[0].CallCount)
	}
	if res.Kept[0].StatusCode != 500 {
		t.Fatalf("expected to keep first 5xx, got %d", res.Kept[0].StatusCode)
	}
	if res.Dropped[ReasonRetry] != 2 {
		t.Fatalf("expected 2 retries dropped, got %d", res.Dropped[ReasonRetry])
	}
}

func TestMatchesContentTypeWildcardNeedsSlash(t *testing.T) {
	if matchesContentType("imagery/png", []string{"image*"}) {
		t.Fatalf("bare prefix wildcard must not match")
	}
	if !matchesContentType("IMAGE/PNG", []string{"image/*"}) {
		t.Fatalf("expected case-insensitive wildcard match")
	}
	if matchesContentType("", []string{"image/*"}) {
		t.Fatalf("empty content type must not match")
	}
}
