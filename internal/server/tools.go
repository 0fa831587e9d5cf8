package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/yourorg/apitester/internal/bddgen"
	"github.com/yourorg/apitester/internal/export"
	"github.com/yourorg/apitester/internal/jsonvalue"
	"github.com/yourorg/apitester/internal/validation"
	"github.com/yourorg/apitester/pkg/types"
)

type validateRequest struct {
	Response *types.Response        `json:"response"`
	Rules    []types.ValidationRule `json:"rules"`
}

// handleValidate scores an ad hoc response against rules without running
// anything.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req validateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Response == nil {
		writeError(w, http.StatusBadRequest, "response required")
		return
	}
	for i, rule := range req.Rules {
		if err := types.Validate(rule); err != nil {
			s.writeStoreError(w, fmt.Errorf("rule %d: %w", i, err))
			return
		}
	}

	results := validation.Evaluate(req.Response, req.Rules)
	passed := 0
	for _, res := range results {
		if res.Passed() {
			passed++
		}
	}
	writeJSON(w, http.StatusOK, struct {
		Results []types.ValidationRule `json:"results"`
		Passed  int                    `json:"passed"`
		Total   int                    `json:"total"`
	}{results, passed, len(results)})
}

type documentRequest struct {
	Data json.RawMessage `json:"data"`
}

func decodeDocument(w http.ResponseWriter, r *http.Request) (jsonvalue.Value, bool) {
	var req documentRequest
	if !decodeBody(w, r, &req) {
		return jsonvalue.Value{}, false
	}
	if len(bytes.TrimSpace(req.Data)) == 0 {
		writeError(w, http.StatusBadRequest, "data required")
		return jsonvalue.Value{}, false
	}
	v, err := jsonvalue.Parse(req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return jsonvalue.Value{}, false
	}
	return v, true
}

// handleExtract lists the distinct primitive values of a document for the
// value picker.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if !s.cfg.Features.ValueSelector {
		writeError(w, http.StatusForbidden, "value selector is disabled")
		return
	}
	v, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	values := jsonvalue.Extract(v)
	if values == nil {
		values = []jsonvalue.ExtractedValue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": values})
}

// handleFields lists the object key paths of a document.
func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	v, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	fields := jsonvalue.FieldPaths(v)
	if fields == nil {
		fields = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
}

type generateRequest struct {
	Endpoints          []types.Endpoint           `json:"endpoints"`
	EndpointIDs        []string                   `json:"endpoint_ids"`
	BasePackage        string                     `json:"base_package"`
	EndpointName       string                     `json:"endpoint_name"`
	OnlySuccessful     *bool                      `json:"only_successful"`
	DefaultErrorSchema *types.ErrorSchema         `json:"default_error_schema"`
	Responses          map[string]json.RawMessage `json:"responses"`
	Format             string                     `json:"format"`
}

// options fills unset request fields from the generator config. The base
// package must be a dotted Java name.
func (s *Server) options(req generateRequest) (bddgen.Options, error) {
	opts := bddgen.Options{
		EndpointName:       req.EndpointName,
		BasePackage:        req.BasePackage,
		DefaultErrorSchema: req.DefaultErrorSchema,
		Responses:          req.Responses,
	}
	if opts.EndpointName == "" {
		opts.EndpointName = s.cfg.Generator.EndpointName
	}
	if strings.TrimSpace(opts.BasePackage) == "" {
		opts.BasePackage = s.cfg.Generator.BasePackage
	}
	pkg, err := bddgen.NormalizePackage(opts.BasePackage)
	if err != nil {
		return opts, err
	}
	opts.BasePackage = pkg
	return opts, nil
}

// handleGenerate generates code for endpoints supplied in the request body.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if !s.cfg.Features.BDDGeneration {
		writeError(w, http.StatusForbidden, "bdd generation is disabled")
		return
	}
	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Endpoints) == 0 {
		writeError(w, http.StatusBadRequest, "endpoints required")
		return
	}
	eps := s.withIDs(req.Endpoints)
	for _, ep := range eps {
		if err := types.Validate(ep); err != nil {
			s.writeStoreError(w, fmt.Errorf("endpoint %q: %w", ep.Name, err))
			return
		}
	}
	opts, err := s.options(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeGenerated(w, r, eps, opts, req.Format)
}

// handleCollectionGenerate generates code for a stored collection, feeding
// the latest captured responses into the model stubs.
func (s *Server) handleCollectionGenerate(w http.ResponseWriter, r *http.Request, collectionID string) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if !s.cfg.Features.BDDGeneration {
		writeError(w, http.StatusForbidden, "bdd generation is disabled")
		return
	}
	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	opts, err := s.options(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	col, err := s.store.GetCollection(collectionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	latest, err := s.store.LatestExecutions(collectionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	sel := bddgen.Selection{IDs: req.EndpointIDs, OnlySuccessful: s.cfg.Generator.OnlySuccessful}
	if req.OnlySuccessful != nil {
		sel.OnlySuccessful = *req.OnlySuccessful
	}
	eps, responses := bddgen.FromHistory(col.Endpoints, latest, sel)
	if len(eps) == 0 {
		writeError(w, http.StatusBadRequest, "no endpoints selected for generation")
		return
	}

	opts.Responses = responses
	if opts.DefaultErrorSchema == nil {
		opts.DefaultErrorSchema = col.ErrorSchema
	}
	s.writeGenerated(w, r, eps, opts, req.Format)
}

// writeGenerated answers with the generated bundle as JSON, or as a zip
// download when format=zip is requested in the body or query.
func (s *Server) writeGenerated(w http.ResponseWriter, r *http.Request, eps []types.Endpoint, opts bddgen.Options, format string) {
	code := bddgen.Generate(eps, opts)
	s.log.Info().Int("endpoints", len(eps)).Str("package", opts.BasePackage).Msg("code generated")

	if format == "" {
		format = r.URL.Query().Get("format")
	}
	if format != "zip" {
		writeJSON(w, http.StatusOK, code)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteZip(&buf, code, opts.BasePackage); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.ArchiveName(opts.BasePackage)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
