package bddgen

import (
	"encoding/json"

	"github.com/yourorg/apitester/pkg/types"
)

// Selection picks which endpoints of a collection to generate for.
type Selection struct {
	// IDs restricts the batch to these endpoints, keeping collection order.
	// Empty means every endpoint.
	IDs []string
	// OnlySuccessful drops endpoints whose latest execution did not succeed
	// or that were never executed.
	OnlySuccessful bool
}

// FromHistory selects endpoints and collects the captured response body of
// each one's latest execution, keyed by endpoint ID, for Options.Responses.
func FromHistory(endpoints []types.Endpoint, latest map[string]types.ExecutionResult, sel Selection) ([]types.Endpoint, map[string]json.RawMessage) {
	var wanted map[string]bool
	if len(sel.IDs) > 0 {
		wanted = make(map[string]bool, len(sel.IDs))
		for _, id := range sel.IDs {
			wanted[id] = true
		}
	}

	picked := make([]types.Endpoint, 0, len(endpoints))
	responses := make(map[string]json.RawMessage)
	for _, ep := range endpoints {
		if wanted != nil && !wanted[ep.ID] {
			continue
		}
		res, ran := latest[ep.ID]
		if sel.OnlySuccessful && (!ran || res.Status != types.ExecutionSuccess) {
			continue
		}
		picked = append(picked, ep)
		if ran && res.Status == types.ExecutionSuccess && res.Response != nil && len(res.Response.Data) > 0 {
			responses[ep.ID] = res.Response.Data
		}
	}
	return picked, responses
}
