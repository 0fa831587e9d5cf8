// Package executor runs endpoints through the relay one at a time and scores
// each response against its validation rules.
package executor

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yourorg/apitester/internal/relay"
	"github.com/yourorg/apitester/internal/validation"
	"github.com/yourorg/apitester/pkg/types"
)

// ProgressFunc is called before each endpoint starts with its 1-based
// position in the batch.
type ProgressFunc func(current, total int)

// Options tunes one run.
type Options struct {
	CollectionID           string
	ApplyDefaultValidation bool
}

// Runner executes endpoints sequentially.
type Runner struct {
	relay relay.Forwarder
	log   zerolog.Logger
	now   func() time.Time
	newID func() string
}

// New returns a Runner forwarding through fwd.
func New(fwd relay.Forwarder, log zerolog.Logger) *Runner {
	return &Runner{
		relay: fwd,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Run executes endpoints in order, never more than one in flight. Results are
// returned in input order. When ctx is cancelled between steps the results
// gathered so far are returned together with ctx's error.
func (r *Runner) Run(ctx context.Context, endpoints []types.Endpoint, opts Options, progress ProgressFunc) ([]types.ExecutionResult, error) {
	results := make([]types.ExecutionResult, 0, len(endpoints))
	for i, ep := range endpoints {
		if err := ctx.Err(); err != nil {
			r.log.Info().Int("completed", i).Int("total", len(endpoints)).Msg("run cancelled")
			return results, err
		}
		if progress != nil {
			progress(i+1, len(endpoints))
		}
		results = append(results, r.Execute(ctx, ep, opts))
	}
	return results, nil
}

// Execute runs one endpoint. Relay and network failures come back as a
// failed result, never as an error.
func (r *Runner) Execute(ctx context.Context, ep types.Endpoint, opts Options) types.ExecutionResult {
	snapshot := ep.Clone()
	result := types.ExecutionResult{
		ID:                r.newID(),
		CollectionID:      opts.CollectionID,
		Endpoint:          snapshot,
		ValidationResults: []types.ValidationRule{},
		ExecutedAt:        r.now().UTC(),
	}

	start := r.now()
	resp, err := r.relay.Forward(ctx, BuildRequest(snapshot))
	elapsed := r.now().Sub(start)

	switch {
	case err != nil:
		result.Status = types.ExecutionFailed
		result.Error = err.Error()
	case !resp.Success:
		result.Status = types.ExecutionFailed
		result.Error = resp.FailureText()
	default:
		result.Status = types.ExecutionSuccess
		result.Response = toResponse(resp, elapsed)
		if rules := validation.RulesFor(snapshot, opts.ApplyDefaultValidation); len(rules) > 0 {
			result.ValidationResults = validation.Evaluate(result.Response, rules)
		}
	}

	var ev *zerolog.Event
	if result.Status == types.ExecutionFailed {
		ev = r.log.Warn().Str("error", result.Error)
	} else {
		ev = r.log.Info().Int("status", result.Response.Status).
			Int("passed", result.PassedCount()).
			Int("rules", len(result.ValidationResults))
	}
	ev.Str("method", snapshot.Method).Str("url", snapshot.URL).Dur("elapsed", elapsed).Msg("endpoint executed")
	return result
}

// BuildRequest turns an endpoint into a relay request. A body that parses as
// JSON is sent as JSON; any other text is sent as a JSON string.
func BuildRequest(ep types.Endpoint) types.RelayRequest {
	req := types.RelayRequest{
		URL:     ep.URL,
		Method:  strings.ToUpper(ep.Method),
		Headers: ep.Headers,
	}
	body := strings.TrimSpace(ep.Body)
	if body == "" {
		return req
	}
	if json.Valid([]byte(body)) {
		req.Body = json.RawMessage(body)
	} else {
		req.Body, _ = json.Marshal(ep.Body)
	}
	return req
}

func toResponse(resp types.RelayResponse, elapsed time.Duration) *types.Response {
	out := &types.Response{
		Status:         resp.Status,
		StatusText:     resp.StatusText,
		Headers:        resp.Headers,
		Data:           resp.Data,
		ResponseTimeMs: elapsed.Milliseconds(),
	}
	if out.Headers == nil {
		out.Headers = map[string]string{}
	}
	return out
}
