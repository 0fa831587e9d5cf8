package server

import (
	"net/http"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/apitester/internal/executor"
	"github.com/yourorg/apitester/internal/report"
	"github.com/yourorg/apitester/pkg/types"
)

const defaultExecutionLimit = 50

type runRequest struct {
	EndpointIDs            []string `json:"endpoint_ids"`
	ApplyDefaultValidation *bool    `json:"apply_default_validation"`
}

type runResponse struct {
	Results   []types.ExecutionResult `json:"results"`
	Summary   types.RunSummary        `json:"summary"`
	Cancelled bool                    `json:"cancelled,omitempty"`
}

// handleRun executes the collection's endpoints one after another through the
// relay and records every result.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request, collectionID string) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req runRequest
	if !decodeBody(w, r, &req) {
		return
	}
	col, err := s.store.GetCollection(collectionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	endpoints := pickEndpoints(col.Endpoints, req.EndpointIDs)
	if len(endpoints) == 0 {
		writeError(w, http.StatusBadRequest, "no endpoints to run")
		return
	}

	opts := executor.Options{
		CollectionID:           collectionID,
		ApplyDefaultValidation: s.cfg.Generator.ApplyDefaultValidation,
	}
	if req.ApplyDefaultValidation != nil {
		opts.ApplyDefaultValidation = *req.ApplyDefaultValidation
	}

	log := s.log.With().Str("collection", collectionID).Logger()
	results, err := s.runner.Run(r.Context(), endpoints, opts, func(current, total int) {
		log.Debug().Int("current", current).Int("total", total).Msg("running endpoint")
	})
	cancelled := err != nil
	for _, res := range results {
		if err := s.store.SaveExecution(res); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}

	summary := types.Summarize(results)
	log.Info().Int("total", summary.Total).Int("succeeded", summary.Succeeded).
		Int("validations_passed", summary.ValidationsPassed).Bool("cancelled", cancelled).Msg("run finished")
	writeJSON(w, http.StatusOK, runResponse{Results: results, Summary: summary, Cancelled: cancelled})
}

// pickEndpoints keeps collection order; an empty id list selects everything.
func pickEndpoints(endpoints []types.Endpoint, ids []string) []types.Endpoint {
	if len(ids) == 0 {
		return endpoints
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []types.Endpoint
	for _, ep := range endpoints {
		if wanted[ep.ID] {
			out = append(out, ep)
		}
	}
	return out
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request, collectionID string) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	limit := defaultExecutionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if _, err := s.store.GetCollection(collectionID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	results, err := s.store.ListExecutions(collectionID, limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if results == nil {
		results = []types.ExecutionResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleExecution(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id, tail, ok := splitPath(r.URL.Path, "/api/executions/")
	if !ok || tail != "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	res, err := s.store.GetExecution(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// latestInOrder returns the newest result of each endpoint, in collection order.
func (s *Server) latestInOrder(col *types.Collection) ([]types.ExecutionResult, error) {
	latest, err := s.store.LatestExecutions(col.ID)
	if err != nil {
		return nil, err
	}
	ordered := make([]types.ExecutionResult, 0, len(latest))
	for _, ep := range col.Endpoints {
		if res, ok := latest[ep.ID]; ok {
			ordered = append(ordered, res)
		}
	}
	return ordered, nil
}

// handleReport renders the latest results as Markdown and keeps a copy in
// the output directory.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, collectionID string) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	col, err := s.store.GetCollection(collectionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	results, err := s.latestInOrder(col)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if len(results) == 0 {
		writeError(w, http.StatusNotFound, "collection has no executions")
		return
	}
	if path, err := report.RenderMarkdown(col.Name, results, s.cfg.Output.Dir); err != nil {
		s.log.Warn().Err(err).Msg("report not written to output dir")
	} else {
		s.log.Debug().Str("path", path).Msg("report written")
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report.Markdown(col.Name, results, time.Now())))
}

// handleOpenAPI describes the collection as an OpenAPI 3 document.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request, collectionID string) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	col, err := s.store.GetCollection(collectionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	doc := report.OpenAPIDocument(col)
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, doc)
		return
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode openapi: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
