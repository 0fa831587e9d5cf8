package filter

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/yourorg/apitester/pkg/types"
)

var testSanitize = SanitizeConfig{
	Headers:     []string{"Authorization", "X-Api-Key", "Set-Cookie"},
	BodyFields:  []string{"token", "password", "secret"},
	Replacement: "***REDACTED***",
}

func TestRedactResultHeadersQueryAndBodies(t *testing.T) {
	res := types.ExecutionResult{
		ID: "r1",
		Endpoint: types.Endpoint{
			ID:      "e1",
			Method:  "POST",
			URL:     "https://api.test/login?token=abc&q=ok",
			Headers: map[string]string{"authorization": "Bearer abc", "Accept": "application/json"},
			Body:    `{"user":"ada","password":"p"}`,
		},
		Response: &types.Response{
			Status:  200,
			Headers: map[string]string{"Set-Cookie": "sid=1", "Content-Type": "application/json"},
			Data:    json.RawMessage(`{"token":"t","profile":{"secret":"s","age":30},"items":[{"password":"x"}]}`),
		},
	}

	out := NewRedactor(testSanitize).Result(res)

	if out.Endpoint.Headers["authorization"] != testSanitize.Replacement {
		t.Fatalf("expected authorization redacted")
	}
	if out.Endpoint.Headers["Accept"] != "application/json" {
		t.Fatalf("expected accept unchanged")
	}
	if !strings.Contains(out.Endpoint.URL, "token=%2A%2A%2AREDACTED%2A%2A%2A") || !strings.Contains(out.Endpoint.URL, "q=ok") {
		t.Fatalf("expected token query redacted, got %s", out.Endpoint.URL)
	}
	if out.Endpoint.Body != `{"user":"ada","password":"***REDACTED***"}` {
		t.Fatalf("unexpected body: %s", out.Endpoint.Body)
	}
	if out.Response.Headers["Set-Cookie"] != testSanitize.Replacement {
		t.Fatalf("expected set-cookie redacted")
	}
	want := `{"token":"***REDACTED***","profile":{"secret":"***REDACTED***","age":30},"items":[{"password":"***REDACTED***"}]}`
	if string(out.Response.Data) != want {
		t.Fatalf("unexpected data:\n got %s\nwant %s", out.Response.Data, want)
	}

	if res.Endpoint.Headers["authorization"] != "Bearer abc" {
		t.Fatalf("input headers were mutated")
	}
	if !strings.Contains(string(res.Response.Data), `"token":"t"`) {
		t.Fatalf("input response was mutated")
	}
}

func TestRedactLeavesNonJSONBody(t *testing.T) {
	res := types.ExecutionResult{Endpoint: types.Endpoint{Body: "password=p"}}
	out := NewRedactor(testSanitize).Result(res)
	if out.Endpoint.Body != "password=p" {
		t.Fatalf("expected non-json body unchanged, got %s", out.Endpoint.Body)
	}
	if out.Response != nil {
		t.Fatalf("expected nil response to stay nil")
	}
}

func TestRedactExchange(t *testing.T) {
	ex := types.Exchange{
		RequestHeaders: map[string]string{"X-API-Key": "k"},
		QueryParams:    map[string][]string{"token": {"a", "b"}, "q": {"ok"}},
		RequestBody:    `{"secret":"s"}`,
	}
	out := NewRedactor(testSanitize).Exchange(ex)
	if out.RequestHeaders["X-API-Key"] != testSanitize.Replacement {
		t.Fatalf("expected api key redacted")
	}
	if out.QueryParams["token"][0] != testSanitize.Replacement || out.QueryParams["token"][1] != testSanitize.Replacement {
		t.Fatalf("expected token query params redacted")
	}
	if out.QueryParams["q"][0] != "ok" {
		t.Fatalf("expected q unchanged")
	}
	if out.RequestBody != `{"secret":"***REDACTED***"}` {
		t.Fatalf("unexpected body %s", out.RequestBody)
	}
	if ex.QueryParams["token"][0] != "a" {
		t.Fatalf("input query params were mutated")
	}
}
