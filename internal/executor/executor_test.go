package executor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/apitester/pkg/types"
)

type fakeRelay struct {
	calls    []types.RelayRequest
	inFlight int
	maxSeen  int
	reply    func(req types.RelayRequest) (types.RelayResponse, error)
	onCall   func(n int)
}

func (f *fakeRelay) Forward(_ context.Context, req types.RelayRequest) (types.RelayResponse, error) {
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	defer func() { f.inFlight-- }()
	f.calls = append(f.calls, req)
	if f.onCall != nil {
		f.onCall(len(f.calls))
	}
	return f.reply(req)
}

func ok(status int, data string) func(types.RelayRequest) (types.RelayResponse, error) {
	return func(types.RelayRequest) (types.RelayResponse, error) {
		return types.RelayResponse{Success: true, Status: status, Data: json.RawMessage(data)}, nil
	}
}

func endpoint(id, method, url string) types.Endpoint {
	return types.Endpoint{ID: id, Method: method, URL: url}
}

func TestRunSequentialInOrderWithProgress(t *testing.T) {
	fr := &fakeRelay{reply: func(req types.RelayRequest) (types.RelayResponse, error) {
		if req.URL == "https://api.test/b" {
			return types.RelayResponse{Success: false, Error: "Blocked hostname", Message: "Cannot proxy requests to api.test for security reasons"}, nil
		}
		return types.RelayResponse{Success: true, Status: 200, Data: json.RawMessage(`{"ok":true}`)}, nil
	}}
	eps := []types.Endpoint{
		endpoint("a", "GET", "https://api.test/a"),
		endpoint("b", "GET", "https://api.test/b"),
		endpoint("c", "GET", "https://api.test/c"),
	}

	var progress [][2]int
	results, err := New(fr, zerolog.Nop()).Run(context.Background(), eps, Options{CollectionID: "col"}, func(cur, total int) {
		progress = append(progress, [2]int{cur, total})
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)
	assert.Equal(t, 1, fr.maxSeen)
	for i, id := range []string{"a", "b", "c"} {
		assert.Equal(t, id, results[i].Endpoint.ID)
		assert.Equal(t, "col", results[i].CollectionID)
		assert.NotEmpty(t, results[i].ID)
	}
	assert.Equal(t, types.ExecutionSuccess, results[0].Status)
	assert.Equal(t, types.ExecutionFailed, results[1].Status)
	assert.Equal(t, "Cannot proxy requests to api.test for security reasons", results[1].Error)
	assert.Empty(t, results[1].ValidationResults)
	assert.Nil(t, results[1].Response)
	assert.Equal(t, types.ExecutionSuccess, results[2].Status)

	s := types.Summarize(results)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
}

func TestRunAppliesDefaultValidation(t *testing.T) {
	fr := &fakeRelay{reply: ok(200, `{}`)}
	runner := New(fr, zerolog.Nop())
	eps := []types.Endpoint{endpoint("a", "GET", "https://api.test/a")}

	results, err := runner.Run(context.Background(), eps, Options{ApplyDefaultValidation: true}, nil)
	require.NoError(t, err)
	require.Len(t, results[0].ValidationResults, 1)
	assert.Equal(t, "default-a", results[0].ValidationResults[0].ID)
	assert.True(t, results[0].ValidationResults[0].Passed())

	results, err = runner.Run(context.Background(), eps, Options{}, nil)
	require.NoError(t, err)
	assert.Empty(t, results[0].ValidationResults)
}

func TestExecuteEvaluatesOwnRules(t *testing.T) {
	fr := &fakeRelay{reply: ok(201, `{"user":{"name":"ada"}}`)}
	ep := endpoint("a", "POST", "https://api.test/users")
	ep.ValidationRules = []types.ValidationRule{
		{ID: "r1", Type: types.RuleStatus, Field: "status", ExpectedValue: "201", Condition: types.CondEquals},
		{ID: "r2", Type: types.RuleValue, Field: "user.name", ExpectedValue: "bob", Condition: types.CondEquals},
	}

	res := New(fr, zerolog.Nop()).Execute(context.Background(), ep, Options{ApplyDefaultValidation: true})
	require.Equal(t, types.ExecutionSuccess, res.Status)
	require.Len(t, res.ValidationResults, 2)
	assert.True(t, res.ValidationResults[0].Passed())
	assert.False(t, res.ValidationResults[1].Passed())
	assert.Equal(t, 1, res.PassedCount())
	assert.Empty(t, ep.ValidationRules[0].Result, "input rules untouched")
	assert.NotNil(t, res.Response.Headers)
}

func TestExecuteTransportErrorIsFailedResult(t *testing.T) {
	fr := &fakeRelay{reply: func(types.RelayRequest) (types.RelayResponse, error) {
		return types.RelayResponse{}, errors.New("relay request: connection reset")
	}}
	res := New(fr, zerolog.Nop()).Execute(context.Background(), endpoint("a", "GET", "https://x"), Options{})
	assert.Equal(t, types.ExecutionFailed, res.Status)
	assert.Equal(t, "relay request: connection reset", res.Error)
}

func TestRunStopsBetweenStepsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fr := &fakeRelay{reply: ok(200, `{}`), onCall: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	eps := []types.Endpoint{
		endpoint("a", "GET", "https://x/a"),
		endpoint("b", "GET", "https://x/b"),
		endpoint("c", "GET", "https://x/c"),
	}

	results, err := New(fr, zerolog.Nop()).Run(ctx, eps, Options{}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 2)
	assert.Len(t, fr.calls, 2)
}

func TestBuildRequest(t *testing.T) {
	ep := types.Endpoint{Method: "post", URL: "https://x", Headers: map[string]string{"A": "1"}, Body: `{"a":1}`}
	req := BuildRequest(ep)
	assert.Equal(t, "POST", req.Method)
	assert.JSONEq(t, `{"a":1}`, string(req.Body))
	assert.Equal(t, "1", req.Headers["A"])

	ep.Body = "a=1&b=2"
	assert.Equal(t, `"a=1&b=2"`, string(BuildRequest(ep).Body))

	ep.Body = "  "
	assert.Nil(t, BuildRequest(ep).Body)
}
