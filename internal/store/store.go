package store

import (
	"errors"

	"github.com/yourorg/apitester/pkg/types"
)

// ErrNotFound is returned when a collection, endpoint or execution does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateExecution is returned when an execution ID is stored twice.
// Execution history is append-only.
var ErrDuplicateExecution = errors.New("execution already recorded")

type Store interface {
	CreateCollection(name, source string) (*types.Collection, error)
	GetCollection(id string) (*types.Collection, error)
	ListCollections() ([]types.Collection, error)
	RenameCollection(id, name string) error
	DeleteCollection(id string) error
	SetErrorSchema(collectionID string, es *types.ErrorSchema) error
	SaveExternalSchemas(collectionID string, schemas []types.ExternalSchema) error

	SaveEndpoints(collectionID string, endpoints []types.Endpoint) error
	GetEndpoints(collectionID string) ([]types.Endpoint, error)
	GetEndpoint(id string) (*types.Endpoint, error)
	DeleteEndpoint(id string) error

	SaveExecution(res types.ExecutionResult) error
	GetExecution(id string) (*types.ExecutionResult, error)
	ListExecutions(collectionID string, limit int) ([]types.ExecutionResult, error)
	LatestExecutions(collectionID string) (map[string]types.ExecutionResult, error)

	Close() error
}

// CreateWithEndpoints creates a collection holding endpoints and its
// externally-supplied schema table. A partly written collection is removed
// again when a later step fails.
func CreateWithEndpoints(st Store, name, source string, endpoints []types.Endpoint, schemas []types.ExternalSchema) (*types.Collection, error) {
	col, err := st.CreateCollection(name, source)
	if err != nil {
		return nil, err
	}
	if err := st.SaveEndpoints(col.ID, endpoints); err != nil {
		_ = st.DeleteCollection(col.ID)
		return nil, err
	}
	if len(schemas) > 0 {
		if err := st.SaveExternalSchemas(col.ID, schemas); err != nil {
			_ = st.DeleteCollection(col.ID)
			return nil, err
		}
	}
	return st.GetCollection(col.ID)
}
