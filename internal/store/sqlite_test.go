package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/apitester/internal/config"
	"github.com/yourorg/apitester/internal/filter"
	"github.com/yourorg/apitester/pkg/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	cfg := &config.Config{}
	cfg.SetDefaults()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "apitester.db"), filter.NewRedactor(cfg.Sanitize))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleEndpoint(id string) types.Endpoint {
	return types.Endpoint{
		ID:                 id,
		Name:               "Get user " + id,
		Method:             "GET",
		URL:                "https://api.example.com/users/" + id,
		Headers:            map[string]string{"Accept": "application/json"},
		CustomizableFields: types.NewFieldSet("name"),
		ValidationRules: []types.ValidationRule{
			{ID: "r1", Type: types.RuleStatus, ExpectedValue: "200"},
		},
	}
}

func TestCollectionAndEndpointsCRUD(t *testing.T) {
	s := newTestStore(t)

	col, err := s.CreateCollection("Users", "postman")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(col.ID, "col_") || !strings.HasSuffix(col.ID, "_001") {
		t.Fatalf("unexpected collection id %q", col.ID)
	}
	second, err := s.CreateCollection("Orders", "openapi")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(second.ID, "_002") {
		t.Fatalf("expected sequential id, got %q", second.ID)
	}

	withSchema := sampleEndpoint("b")
	withSchema.ResponseSchema = types.ActiveSchema(types.Schema{Source: types.SchemaManual, Data: json.RawMessage(`{"id":1}`)})
	withSchema.ErrorSchema = &types.ErrorSchema{Enabled: true, StatusCode: "404", ErrorStructure: `{"error":"x"}`}
	if err := s.SaveEndpoints(col.ID, []types.Endpoint{sampleEndpoint("a"), withSchema}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCollection(col.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.EndpointCount != 2 || len(got.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got count=%d len=%d", got.EndpointCount, len(got.Endpoints))
	}
	if got.Endpoints[0].ID != "a" || got.Endpoints[1].ID != "b" {
		t.Fatalf("endpoint order not kept: %s, %s", got.Endpoints[0].ID, got.Endpoints[1].ID)
	}
	a := got.Endpoints[0]
	if a.Headers["Accept"] != "application/json" || !a.CustomizableFields.Has("name") || len(a.ValidationRules) != 1 {
		t.Fatalf("endpoint fields not round-tripped: %+v", a)
	}
	if a.ResponseSchema.State != types.SlotUnset {
		t.Fatalf("expected unset schema slot, got %s", a.ResponseSchema.State)
	}
	b := got.Endpoints[1]
	sc, ok := b.ResponseSchema.Get()
	if !ok || sc.Source != types.SchemaManual || string(sc.Data) != `{"id":1}` {
		t.Fatalf("schema slot not round-tripped: %+v", b.ResponseSchema)
	}
	if b.ErrorSchema == nil || b.ErrorSchema.StatusCode != "404" {
		t.Fatalf("error schema not round-tripped")
	}

	// Updating an endpoint keeps its position.
	a.Name = "renamed"
	a.ResponseSchema = types.ClearedSchema()
	if err := s.SaveEndpoints(col.ID, []types.Endpoint{a}); err != nil {
		t.Fatal(err)
	}
	eps, _ := s.GetEndpoints(col.ID)
	if len(eps) != 2 || eps[0].Name != "renamed" || eps[0].ResponseSchema.State != types.SlotCleared {
		t.Fatalf("update not applied in place: %+v", eps)
	}

	if err := s.DeleteEndpoint("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetEndpoint("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got, _ := s.GetCollection(col.ID); got.EndpointCount != 1 {
		t.Fatalf("endpoint_count not decremented: %d", got.EndpointCount)
	}

	list, err := s.ListCollections()
	if err != nil || len(list) != 2 {
		t.Fatalf("expected 2 collections, got %d err=%v", len(list), err)
	}
	if list[0].ID != second.ID {
		t.Fatalf("expected newest collection first")
	}
}

func TestSaveEndpointsRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	col, _ := s.CreateCollection("x", "manual")

	bad := sampleEndpoint("x")
	bad.Method = "TRACE"
	if err := s.SaveEndpoints(col.ID, []types.Endpoint{sampleEndpoint("ok"), bad}); err == nil {
		t.Fatalf("expected validation error")
	}
	if eps, _ := s.GetEndpoints(col.ID); len(eps) != 0 {
		t.Fatalf("expected nothing written, got %d", len(eps))
	}
	if err := s.SaveEndpoints("col_missing", []types.Endpoint{sampleEndpoint("y")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing collection, got %v", err)
	}
}

func TestCollectionSettings(t *testing.T) {
	s := newTestStore(t)
	col, _ := s.CreateCollection("x", "openapi")

	if err := s.RenameCollection(col.ID, "y"); err != nil {
		t.Fatal(err)
	}
	es := &types.ErrorSchema{Enabled: true, StatusCode: "400"}
	if err := s.SetErrorSchema(col.ID, es); err != nil {
		t.Fatal(err)
	}
	schemas := []types.ExternalSchema{
		{Key: types.SchemaKey{Method: "get", Path: "/users", Role: types.RoleResponse}, Data: json.RawMessage(`{"type":"array"}`)},
		{Key: types.SchemaKey{Method: "POST", Path: "/users", Role: types.RoleRequest}, Data: json.RawMessage(`{"type":"object"}`)},
	}
	if err := s.SaveExternalSchemas(col.ID, schemas); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCollection(col.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "y" || got.ErrorSchema == nil || got.ErrorSchema.StatusCode != "400" {
		t.Fatalf("settings not stored: %+v", got)
	}
	if len(got.ExternalSchemas) != 2 || got.ExternalSchemas[0].Key.Method != "GET" {
		t.Fatalf("external schemas not stored: %+v", got.ExternalSchemas)
	}

	if err := s.SetErrorSchema(col.ID, nil); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetCollection(col.ID); got.ErrorSchema != nil {
		t.Fatalf("expected error schema removed")
	}
	if err := s.RenameCollection("col_missing", "z"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExecutionsAreAppendOnlyAndRedacted(t *testing.T) {
	s := newTestStore(t)
	col, _ := s.CreateCollection("x", "manual")

	ep := sampleEndpoint("a")
	ep.Headers["Authorization"] = "Bearer secret"
	first := types.ExecutionResult{
		ID:           "e1",
		CollectionID: col.ID,
		Endpoint:     ep,
		Status:       types.ExecutionSuccess,
		Response: &types.Response{
			Status: 200,
			Data:   json.RawMessage(`{"token":"abc","id":1}`),
		},
		ExecutedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := s.SaveExecution(first); err != nil {
		t.Fatal(err)
	}
	if first.Endpoint.Headers["Authorization"] != "Bearer secret" {
		t.Fatalf("caller's result was mutated")
	}

	stored, err := s.GetExecution("e1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Endpoint.Headers["Authorization"] != "***REDACTED***" {
		t.Fatalf("authorization header not redacted: %q", stored.Endpoint.Headers["Authorization"])
	}
	if string(stored.Response.Data) != `{"token":"***REDACTED***","id":1}` {
		t.Fatalf("response body not redacted: %s", stored.Response.Data)
	}

	first.Status = types.ExecutionFailed
	if err := s.SaveExecution(first); !errors.Is(err, ErrDuplicateExecution) {
		t.Fatalf("expected ErrDuplicateExecution, got %v", err)
	}

	retry := first
	retry.ID = "e2"
	retry.ExecutedAt = first.ExecutedAt.Add(time.Minute)
	if err := s.SaveExecution(retry); err != nil {
		t.Fatal(err)
	}
	other := types.ExecutionResult{ID: "e3", CollectionID: col.ID, Endpoint: sampleEndpoint("b"), Status: types.ExecutionSuccess, ExecutedAt: first.ExecutedAt}
	if err := s.SaveExecution(other); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListExecutions(col.ID, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 executions, got %d err=%v", len(all), err)
	}
	if all[0].ID != "e2" {
		t.Fatalf("expected newest first, got %s", all[0].ID)
	}
	if limited, _ := s.ListExecutions(col.ID, 1); len(limited) != 1 {
		t.Fatalf("limit not applied")
	}
	if got, _ := s.GetExecution("e1"); got.Status != types.ExecutionSuccess {
		t.Fatalf("stored execution was overwritten")
	}

	latest, err := s.LatestExecutions(col.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 2 || latest["a"].ID != "e2" || latest["b"].ID != "e3" {
		t.Fatalf("unexpected latest executions: %+v", latest)
	}
}

func TestCascadeDelete(t *testing.T) {
	s := newTestStore(t)
	col, _ := s.CreateCollection("x", "har")
	_ = s.SaveEndpoints(col.ID, []types.Endpoint{sampleEndpoint("a")})
	_ = s.SaveExecution(types.ExecutionResult{ID: "e1", CollectionID: col.ID, Endpoint: sampleEndpoint("a"), Status: types.ExecutionSuccess})

	if err := s.DeleteCollection(col.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetCollection(col.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if eps, _ := s.GetEndpoints(col.ID); len(eps) != 0 {
		t.Fatalf("expected endpoints deleted")
	}
	if execs, _ := s.ListExecutions(col.ID, 0); len(execs) != 0 {
		t.Fatalf("expected executions deleted")
	}
	if err := s.DeleteCollection(col.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	s := newTestStore(t)
	col, _ := s.CreateCollection("concurrent", "manual")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.SaveExecution(types.ExecutionResult{
				ID:           fmt.Sprintf("e%d", i),
				CollectionID: col.ID,
				Endpoint:     sampleEndpoint(fmt.Sprintf("ep%d", i)),
				Status:       types.ExecutionSuccess,
			})
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.ListCollections()
		}()
	}
	wg.Wait()

	execs, err := s.ListExecutions(col.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) == 0 {
		t.Fatalf("expected executions")
	}
}

func TestCreateWithEndpoints(t *testing.T) {
	s := newTestStore(t)
	schemas := []types.ExternalSchema{{Key: types.SchemaKey{Method: "GET", Path: "/users/a", Role: types.RoleResponse}, Data: json.RawMessage(`{}`)}}

	col, err := CreateWithEndpoints(s, "Imported", "openapi", []types.Endpoint{sampleEndpoint("a")}, schemas)
	if err != nil {
		t.Fatal(err)
	}
	if col.EndpointCount != 1 || len(col.ExternalSchemas) != 1 {
		t.Fatalf("unexpected collection: %+v", col)
	}

	bad := sampleEndpoint("b")
	bad.URL = ""
	if _, err := CreateWithEndpoints(s, "Broken", "postman", []types.Endpoint{bad}, nil); err == nil {
		t.Fatalf("expected validation error")
	}
	if list, _ := s.ListCollections(); len(list) != 1 {
		t.Fatalf("expected failed collection removed, got %d collections", len(list))
	}
}
