package types

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the outcome of one execution attempt.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionPending ExecutionStatus = "pending"
)

// Response is a captured HTTP response.
type Response struct {
	Status         int               `json:"status"`
	StatusText     string            `json:"status_text,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Data           json.RawMessage   `json:"data,omitempty"`
	ResponseTimeMs int64             `json:"response_time_ms"`
}

// ExecutionResult records one run of one Endpoint. A new attempt produces a
// new result; stored results are never updated.
type ExecutionResult struct {
	ID                string           `json:"id"`
	CollectionID      string           `json:"collection_id,omitempty"`
	Endpoint          Endpoint         `json:"endpoint"`
	Status            ExecutionStatus  `json:"status"`
	Response          *Response        `json:"response,omitempty"`
	Error             string           `json:"error,omitempty"`
	ValidationResults []ValidationRule `json:"validation_results"`
	ExecutedAt        time.Time        `json:"executed_at"`
}

// PassedCount returns how many validation results passed.
func (r ExecutionResult) PassedCount() int {
	n := 0
	for _, v := range r.ValidationResults {
		if v.Passed() {
			n++
		}
	}
	return n
}

// RunSummary aggregates a batch of execution results.
type RunSummary struct {
	Total             int `json:"total"`
	Succeeded         int `json:"succeeded"`
	Failed            int `json:"failed"`
	ValidationsPassed int `json:"validations_passed"`
	ValidationsTotal  int `json:"validations_total"`
}

// Summarize counts successes and validation verdicts over results.
func Summarize(results []ExecutionResult) RunSummary {
	s := RunSummary{Total: len(results)}
	for _, r := range results {
		if r.Status == ExecutionSuccess {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.ValidationsPassed += r.PassedCount()
		s.ValidationsTotal += len(r.ValidationResults)
	}
	return s
}
