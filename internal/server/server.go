package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yourorg/apitester/internal/config"
	"github.com/yourorg/apitester/internal/executor"
	"github.com/yourorg/apitester/internal/relay"
	"github.com/yourorg/apitester/internal/store"
	"github.com/yourorg/apitester/pkg/types"
)

// maxImportBytes bounds uploaded documents and request bodies.
const maxImportBytes = 20 << 20

// Server exposes collections, execution, validation and generation over HTTP.
type Server struct {
	cfg    *config.Config
	store  store.Store
	runner *executor.Runner
	log    zerolog.Logger
	mux    *http.ServeMux
	newID  func() string
}

// New constructs a new Server with routes registered. Endpoint runs are
// forwarded through fwd.
func New(cfg *config.Config, st store.Store, fwd relay.Forwarder, log zerolog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if st == nil {
		return nil, errors.New("store is nil")
	}
	if fwd == nil {
		return nil, errors.New("relay forwarder is nil")
	}

	srv := &Server{
		cfg:    cfg,
		store:  st,
		runner: executor.New(fwd, log),
		log:    log,
		mux:    http.NewServeMux(),
		newID:  uuid.NewString,
	}
	srv.registerRoutes()
	return srv, nil
}

// Handler returns the http handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORS(w, s.cfg.Server.CORSOrigin)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

func (s *Server) registerRoutes() {
	// Static file server for exported artifacts and reports.
	s.mux.Handle("/output/", http.StripPrefix("/output/", http.FileServer(http.Dir(s.cfg.Output.Dir))))

	s.mux.HandleFunc("/api/collections", s.handleCollections)
	s.mux.HandleFunc("/api/collections/", s.handleCollectionRoutes)
	s.mux.HandleFunc("/api/executions/", s.handleExecution)
	s.mux.HandleFunc("/api/import", s.handleImport)
	s.mux.HandleFunc("/api/validate", s.handleValidate)
	s.mux.HandleFunc("/api/extract", s.handleExtract)
	s.mux.HandleFunc("/api/fields", s.handleFields)
	s.mux.HandleFunc("/api/generate", s.handleGenerate)
}

// handleCollectionRoutes dispatches /api/collections/{id}[/...].
func (s *Server) handleCollectionRoutes(w http.ResponseWriter, r *http.Request) {
	id, tail, ok := splitPath(r.URL.Path, "/api/collections/")
	if !ok || id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch {
	case tail == "":
		s.handleCollection(w, r, id)
	case tail == "endpoints":
		s.handleSaveEndpoints(w, r, id)
	case strings.HasPrefix(tail, "endpoints/"):
		epID, rest, _ := strings.Cut(strings.TrimPrefix(tail, "endpoints/"), "/")
		switch rest {
		case "":
			s.handleDeleteEndpoint(w, r, id, epID)
		case "schema":
			s.handleEndpointSchema(w, r, id, epID)
		default:
			writeError(w, http.StatusNotFound, "not found")
		}
	case tail == "error-schema":
		s.handleErrorSchema(w, r, id)
	case tail == "run":
		s.handleRun(w, r, id)
	case tail == "executions":
		s.handleExecutions(w, r, id)
	case tail == "generate":
		s.handleCollectionGenerate(w, r, id)
	case tail == "openapi":
		s.handleOpenAPI(w, r, id)
	case tail == "report":
		s.handleReport(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func splitPath(fullPath, prefix string) (string, string, bool) {
	if !strings.HasPrefix(fullPath, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(fullPath, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}
	return id, tail, true
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// decodeBody reads a JSON request body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

type errorBody struct {
	Error   string             `json:"error"`
	Details []types.FieldError `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeStoreError maps store errors to responses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	var verr *types.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Details: verr.Errors})
	default:
		s.log.Error().Err(err).Msg("store operation failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func setCORS(w http.ResponseWriter, origin string) {
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}
