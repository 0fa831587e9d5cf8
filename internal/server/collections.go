package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/yourorg/apitester/internal/importer"
	"github.com/yourorg/apitester/internal/jsonvalue"
	"github.com/yourorg/apitester/internal/schema"
	"github.com/yourorg/apitester/internal/store"
	"github.com/yourorg/apitester/pkg/types"
)

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Name      string           `json:"name"`
			Endpoints []types.Endpoint `json:"endpoints"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "name required")
			return
		}
		col, err := store.CreateWithEndpoints(s.store, req.Name, "manual", s.withIDs(req.Endpoints), nil)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, col)
		return
	}

	cols, err := s.store.ListCollections()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if cols == nil {
		cols = []types.Collection{}
	}
	writeJSON(w, http.StatusOK, cols)
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request, id string) {
	if !allow(w, r, http.MethodGet, http.MethodPut, http.MethodDelete) {
		return
	}
	switch r.Method {
	case http.MethodDelete:
		if err := s.store.DeleteCollection(id); err != nil {
			s.writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPut:
		var req struct {
			Name string `json:"name"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "name required")
			return
		}
		if err := s.store.RenameCollection(id, req.Name); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}
	col, err := s.store.GetCollection(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

// withIDs assigns IDs to endpoints that arrive without one.
func (s *Server) withIDs(eps []types.Endpoint) []types.Endpoint {
	out := make([]types.Endpoint, 0, len(eps))
	for _, ep := range eps {
		if ep.ID == "" {
			ep.ID = s.newID()
		}
		ep.Method = strings.ToUpper(strings.TrimSpace(ep.Method))
		out = append(out, ep)
	}
	return out
}

func (s *Server) handleSaveEndpoints(w http.ResponseWriter, r *http.Request, collectionID string) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var eps []types.Endpoint
	if !decodeBody(w, r, &eps) {
		return
	}
	if len(eps) == 0 {
		writeError(w, http.StatusBadRequest, "endpoints required")
		return
	}
	eps = s.withIDs(eps)
	if err := s.store.SaveEndpoints(collectionID, eps); err != nil {
		s.writeStoreError(w, err)
		return
	}
	saved, err := s.store.GetEndpoints(collectionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request, collectionID, endpointID string) {
	if !allow(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	ep, _, err := s.collectionEndpoint(collectionID, endpointID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, ep)
		return
	}
	if err := s.store.DeleteEndpoint(endpointID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// collectionEndpoint loads one endpoint together with its collection.
func (s *Server) collectionEndpoint(collectionID, endpointID string) (types.Endpoint, *types.Collection, error) {
	col, err := s.store.GetCollection(collectionID)
	if err != nil {
		return types.Endpoint{}, nil, err
	}
	for _, ep := range col.Endpoints {
		if ep.ID == endpointID {
			return ep, col, nil
		}
	}
	return types.Endpoint{}, nil, fmt.Errorf("endpoint %s: %w", endpointID, store.ErrNotFound)
}

func (s *Server) handleErrorSchema(w http.ResponseWriter, r *http.Request, collectionID string) {
	if !allow(w, r, http.MethodPut, http.MethodDelete) {
		return
	}
	var es *types.ErrorSchema
	if r.Method == http.MethodPut {
		es = &types.ErrorSchema{}
		if !decodeBody(w, r, es) {
			return
		}
		if es.Enabled && strings.TrimSpace(es.StatusCode) == "" {
			writeError(w, http.StatusBadRequest, "status_code required when enabled")
			return
		}
	}
	if err := s.store.SetErrorSchema(collectionID, es); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type schemaRequest struct {
	Source types.SchemaSource `json:"source"`
	Text   string             `json:"text"`
	// Sample overrides the captured response when inferring.
	Sample *jsonvalue.Value `json:"sample"`
}

// handleEndpointSchema attaches (POST) or removes (DELETE) an endpoint's
// response schema.
func (s *Server) handleEndpointSchema(w http.ResponseWriter, r *http.Request, collectionID, endpointID string) {
	if !allow(w, r, http.MethodPost, http.MethodDelete) {
		return
	}
	ep, col, err := s.collectionEndpoint(collectionID, endpointID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	if r.Method == http.MethodDelete {
		s.saveEndpoint(w, collectionID, schema.Clear(ep))
		return
	}

	var req schemaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.schemaSourceEnabled(req.Source) {
		writeError(w, http.StatusForbidden, fmt.Sprintf("schema source %q is disabled", req.Source))
		return
	}
	in := schema.Input{
		Table:  schema.NewTable(col.ExternalSchemas),
		Key:    schema.KeyFor(ep, types.RoleResponse),
		Text:   req.Text,
		Sample: req.Sample,
	}
	if req.Source == types.SchemaInferred && in.Sample == nil {
		if sample, ok := s.latestSample(collectionID, endpointID); ok {
			in.Sample = &sample
		}
	}

	sc, ok, err := schema.Synthesize(req.Source, in)
	switch {
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case !ok:
		writeError(w, http.StatusNotFound, fmt.Sprintf("no %s schema for %s %s", in.Key.Role, in.Key.Method, in.Key.Path))
		return
	}
	updated := ep.Clone()
	updated.ResponseSchema = types.ActiveSchema(sc)
	s.saveEndpoint(w, collectionID, updated)
}

func (s *Server) saveEndpoint(w http.ResponseWriter, collectionID string, ep types.Endpoint) {
	if err := s.store.SaveEndpoints(collectionID, []types.Endpoint{ep}); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (s *Server) schemaSourceEnabled(src types.SchemaSource) bool {
	f := s.cfg.Features
	switch src {
	case types.SchemaExternal:
		return f.OpenAPISchema
	case types.SchemaInferred:
		return f.SchemaInference
	case types.SchemaManual:
		return f.ManualSchema
	}
	return false
}

// latestSample is the response body of the endpoint's most recent execution.
func (s *Server) latestSample(collectionID, endpointID string) (jsonvalue.Value, bool) {
	latest, err := s.store.LatestExecutions(collectionID)
	if err != nil {
		return jsonvalue.Value{}, false
	}
	res, ok := latest[endpointID]
	if !ok || res.Response == nil || len(res.Response.Data) == 0 {
		return jsonvalue.Value{}, false
	}
	v, err := jsonvalue.Parse(res.Response.Data)
	if err != nil {
		return jsonvalue.Value{}, false
	}
	return v, true
}

// handleImport stores the uploaded Postman, OpenAPI or HAR document as a new
// collection. The document is the raw request body.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	res, err := importer.Import(data, importer.Options{
		Filter:       s.cfg.Filter,
		InferSchemas: s.cfg.Features.SchemaInference,
		NewID:        s.newID,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(res.Endpoints) == 0 {
		writeError(w, http.StatusBadRequest, "no endpoints found in document")
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = res.Name
	}
	if name == "" {
		name = "Imported " + string(res.Format)
	}

	col, err := store.CreateWithEndpoints(s.store, name, string(res.Format), res.Endpoints, res.ExternalSchemas)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.log.Info().Str("collection", col.ID).Str("format", string(res.Format)).Int("endpoints", len(res.Endpoints)).
		Int("skipped", len(res.Skipped)).Msg("document imported")
	writeJSON(w, http.StatusCreated, struct {
		Collection *types.Collection `json:"collection"`
		Skipped    []string          `json:"skipped,omitempty"`
	}{col, res.Skipped})
}
