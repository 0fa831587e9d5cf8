package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yourorg/apitester/internal/filter"
	"github.com/yourorg/apitester/pkg/types"
)

type SQLiteStore struct {
	db       *sql.DB
	redactor *filter.Redactor
}

// NewSQLiteStore opens the database at dsn. A non-nil redactor is applied to
// every execution before it is written.
func NewSQLiteStore(dsn string, redactor *filter.Redactor) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db, redactor: redactor}
	if err := s.Init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source TEXT NOT NULL,
			error_schema TEXT,
			endpoint_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS endpoints (
			id TEXT PRIMARY KEY,
			collection_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			method TEXT NOT NULL,
			url TEXT NOT NULL,
			headers TEXT,
			body TEXT,
			description TEXT,
			customizable_fields TEXT,
			endpoint_name TEXT,
			error_schema TEXT,
			response_schema TEXT,
			validation_rules TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_endpoints_collection ON endpoints(collection_id, position);`,
		`CREATE TABLE IF NOT EXISTS external_schemas (
			collection_id TEXT NOT NULL,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			role TEXT NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY(collection_id, method, path, role)
		);`,
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			collection_id TEXT NOT NULL,
			endpoint_id TEXT NOT NULL,
			status TEXT NOT NULL,
			result TEXT NOT NULL,
			executed_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_executions_collection ON executions(collection_id, executed_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) CreateCollection(name, source string) (*types.Collection, error) {
	now := time.Now().UTC()
	id, err := s.nextCollectionID(now)
	if err != nil {
		return nil, err
	}
	col := &types.Collection{ID: id, Name: name, Source: source, CreatedAt: now, UpdatedAt: now}
	_, err = s.db.Exec(`INSERT INTO collections(id,name,source,endpoint_count,created_at,updated_at) VALUES(?,?,?,?,?,?)`,
		col.ID, col.Name, col.Source, 0, col.CreatedAt, col.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return col, nil
}

func (s *SQLiteStore) nextCollectionID(now time.Time) (string, error) {
	prefix := fmt.Sprintf("col_%s_", now.Format("20060102"))
	rows, err := s.db.Query(`SELECT id FROM collections WHERE id LIKE ?`, prefix+"%")
	if err != nil {
		return "", err
	}
	defer rows.Close()
	maxN := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		var n int
		_, _ = fmt.Sscanf(id, prefix+"%03d", &n)
		if n > maxN {
			maxN = n
		}
	}
	return fmt.Sprintf("%s%03d", prefix, maxN+1), rows.Err()
}

// GetCollection returns the collection with its endpoints and schema table.
func (s *SQLiteStore) GetCollection(id string) (*types.Collection, error) {
	row := s.db.QueryRow(`SELECT id,name,source,error_schema,endpoint_count,created_at,updated_at FROM collections WHERE id=?`, id)
	col, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if col.Endpoints, err = s.GetEndpoints(id); err != nil {
		return nil, err
	}
	if col.ExternalSchemas, err = s.externalSchemas(id); err != nil {
		return nil, err
	}
	return col, nil
}

// ListCollections returns collection headers without endpoints, newest first.
func (s *SQLiteStore) ListCollections() ([]types.Collection, error) {
	rows, err := s.db.Query(`SELECT id,name,source,error_schema,endpoint_count,created_at,updated_at FROM collections ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Collection
	for rows.Next() {
		col, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *col)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCollection(row scanner) (*types.Collection, error) {
	var col types.Collection
	var errSchema sql.NullString
	if err := row.Scan(&col.ID, &col.Name, &col.Source, &errSchema, &col.EndpointCount, &col.CreatedAt, &col.UpdatedAt); err != nil {
		return nil, err
	}
	if errSchema.Valid && errSchema.String != "" {
		col.ErrorSchema = &types.ErrorSchema{}
		if err := json.Unmarshal([]byte(errSchema.String), col.ErrorSchema); err != nil {
			return nil, fmt.Errorf("decode collection error schema: %w", err)
		}
	}
	return &col, nil
}

func (s *SQLiteStore) RenameCollection(id, name string) error {
	return s.touch(`UPDATE collections SET name=?, updated_at=? WHERE id=?`, id, name)
}

// SetErrorSchema stores the collection-wide error schema default. A nil
// schema removes it.
func (s *SQLiteStore) SetErrorSchema(collectionID string, es *types.ErrorSchema) error {
	var val any
	if es != nil {
		data, err := json.Marshal(es)
		if err != nil {
			return err
		}
		val = string(data)
	}
	return s.touch(`UPDATE collections SET error_schema=?, updated_at=? WHERE id=?`, collectionID, val)
}

// touch runs an UPDATE whose last two parameters are updated_at and id.
func (s *SQLiteStore) touch(query, id string, args ...any) error {
	args = append(args, time.Now().UTC(), id)
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("collection %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteCollection(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.Exec(`DELETE FROM collections WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("collection %s: %w", id, ErrNotFound)
	}
	for _, q := range []string{
		`DELETE FROM endpoints WHERE collection_id=?`,
		`DELETE FROM external_schemas WHERE collection_id=?`,
		`DELETE FROM executions WHERE collection_id=?`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveExternalSchemas replaces the collection's externally-supplied schema table.
func (s *SQLiteStore) SaveExternalSchemas(collectionID string, schemas []types.ExternalSchema) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM external_schemas WHERE collection_id=?`, collectionID); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO external_schemas(collection_id,method,path,role,data) VALUES(?,?,?,?,?)
	ON CONFLICT(collection_id,method,path,role) DO UPDATE SET data=excluded.data`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, sc := range schemas {
		if _, err := stmt.Exec(collectionID, strings.ToUpper(sc.Key.Method), sc.Key.Path, string(sc.Key.Role), string(sc.Data)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) externalSchemas(collectionID string) ([]types.ExternalSchema, error) {
	rows, err := s.db.Query(`SELECT method,path,role,data FROM external_schemas WHERE collection_id=? ORDER BY path, method, role`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.ExternalSchema
	for rows.Next() {
		var sc types.ExternalSchema
		var role, data string
		if err := rows.Scan(&sc.Key.Method, &sc.Key.Path, &role, &data); err != nil {
			return nil, err
		}
		sc.Key.Role = types.SchemaRole(role)
		sc.Data = json.RawMessage(data)
		out = append(out, sc)
	}
	return out, rows.Err()
}

// SaveEndpoints upserts endpoints into a collection. New endpoints are
// appended after the existing ones; existing endpoints keep their position.
func (s *SQLiteStore) SaveEndpoints(collectionID string, endpoints []types.Endpoint) error {
	for _, ep := range endpoints {
		if err := types.Validate(ep); err != nil {
			return fmt.Errorf("endpoint %q: %w", ep.Name, err)
		}
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(1) FROM collections WHERE id=?`, collectionID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return fmt.Errorf("collection %s: %w", collectionID, ErrNotFound)
	}
	var next int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position)+1, 0) FROM endpoints WHERE collection_id=?`, collectionID).Scan(&next); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO endpoints(id,collection_id,position,name,method,url,headers,body,description,customizable_fields,endpoint_name,error_schema,response_schema,validation_rules)
	VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(id) DO UPDATE SET name=excluded.name,method=excluded.method,url=excluded.url,headers=excluded.headers,body=excluded.body,
		description=excluded.description,customizable_fields=excluded.customizable_fields,endpoint_name=excluded.endpoint_name,
		error_schema=excluded.error_schema,response_schema=excluded.response_schema,validation_rules=excluded.validation_rules`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, ep := range endpoints {
		row, err := encodeEndpoint(ep)
		if err != nil {
			return fmt.Errorf("endpoint %q: %w", ep.Name, err)
		}
		if _, err := stmt.Exec(ep.ID, collectionID, next, ep.Name, ep.Method, ep.URL, row.headers, ep.Body, ep.Description,
			row.fields, ep.EndpointName, row.errorSchema, row.responseSchema, row.rules); err != nil {
			return err
		}
		next++
	}
	if _, err := tx.Exec(`UPDATE collections SET endpoint_count=(SELECT COUNT(1) FROM endpoints WHERE collection_id=?), updated_at=? WHERE id=?`,
		collectionID, time.Now().UTC(), collectionID); err != nil {
		return err
	}
	return tx.Commit()
}

type endpointRow struct {
	headers        string
	fields         string
	errorSchema    sql.NullString
	responseSchema string
	rules          string
}

func encodeEndpoint(ep types.Endpoint) (endpointRow, error) {
	var row endpointRow
	h, err := json.Marshal(ep.Headers)
	if err != nil {
		return row, err
	}
	f, err := json.Marshal(ep.CustomizableFields)
	if err != nil {
		return row, err
	}
	rs, err := json.Marshal(ep.ResponseSchema)
	if err != nil {
		return row, err
	}
	rules := ep.ValidationRules
	if rules == nil {
		rules = []types.ValidationRule{}
	}
	r, err := json.Marshal(rules)
	if err != nil {
		return row, err
	}
	row.headers, row.fields, row.responseSchema, row.rules = string(h), string(f), string(rs), string(r)
	if ep.ErrorSchema != nil {
		es, err := json.Marshal(ep.ErrorSchema)
		if err != nil {
			return row, err
		}
		row.errorSchema = sql.NullString{String: string(es), Valid: true}
	}
	return row, nil
}

const endpointColumns = `id,name,method,url,headers,body,description,customizable_fields,endpoint_name,error_schema,response_schema,validation_rules`

func (s *SQLiteStore) GetEndpoints(collectionID string) ([]types.Endpoint, error) {
	rows, err := s.db.Query(`SELECT `+endpointColumns+` FROM endpoints WHERE collection_id=? ORDER BY position ASC`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.Endpoint, 0)
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ep)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetEndpoint(id string) (*types.Endpoint, error) {
	ep, err := scanEndpoint(s.db.QueryRow(`SELECT `+endpointColumns+` FROM endpoints WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("endpoint %s: %w", id, ErrNotFound)
	}
	return ep, err
}

func scanEndpoint(row scanner) (*types.Endpoint, error) {
	var ep types.Endpoint
	var headers, fields, respSchema, rules string
	var errSchema sql.NullString
	if err := row.Scan(&ep.ID, &ep.Name, &ep.Method, &ep.URL, &headers, &ep.Body, &ep.Description, &fields,
		&ep.EndpointName, &errSchema, &respSchema, &rules); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(headers), &ep.Headers); err != nil {
		return nil, fmt.Errorf("decode headers of %s: %w", ep.ID, err)
	}
	if err := json.Unmarshal([]byte(fields), &ep.CustomizableFields); err != nil {
		return nil, fmt.Errorf("decode customizable fields of %s: %w", ep.ID, err)
	}
	if err := json.Unmarshal([]byte(respSchema), &ep.ResponseSchema); err != nil {
		return nil, fmt.Errorf("decode response schema of %s: %w", ep.ID, err)
	}
	if err := json.Unmarshal([]byte(rules), &ep.ValidationRules); err != nil {
		return nil, fmt.Errorf("decode validation rules of %s: %w", ep.ID, err)
	}
	if len(ep.ValidationRules) == 0 {
		ep.ValidationRules = nil
	}
	if errSchema.Valid && errSchema.String != "" {
		ep.ErrorSchema = &types.ErrorSchema{}
		if err := json.Unmarshal([]byte(errSchema.String), ep.ErrorSchema); err != nil {
			return nil, fmt.Errorf("decode error schema of %s: %w", ep.ID, err)
		}
	}
	return &ep, nil
}

func (s *SQLiteStore) DeleteEndpoint(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var collectionID string
	if err := tx.QueryRow(`SELECT collection_id FROM endpoints WHERE id=?`, id).Scan(&collectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("endpoint %s: %w", id, ErrNotFound)
		}
		return err
	}
	if _, err := tx.Exec(`DELETE FROM endpoints WHERE id=?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE collections SET endpoint_count=endpoint_count-1, updated_at=? WHERE id=?`, time.Now().UTC(), collectionID); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveExecution appends res to the history. Results are redacted before
// they are written and an existing ID is never overwritten.
func (s *SQLiteStore) SaveExecution(res types.ExecutionResult) error {
	if res.ID == "" {
		return errors.New("execution result has no id")
	}
	if s.redactor != nil {
		res = s.redactor.Result(res)
	}
	if res.ExecutedAt.IsZero() {
		res.ExecutedAt = time.Now().UTC()
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode execution: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO executions(id,collection_id,endpoint_id,status,result,executed_at) VALUES(?,?,?,?,?,?)`,
		res.ID, res.CollectionID, res.Endpoint.ID, string(res.Status), string(data), res.ExecutedAt.UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("execution %s: %w", res.ID, ErrDuplicateExecution)
		}
		return err
	}
	return nil
}

func (s *SQLiteStore) GetExecution(id string) (*types.ExecutionResult, error) {
	var data string
	if err := s.db.QueryRow(`SELECT result FROM executions WHERE id=?`, id).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	var res types.ExecutionResult
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, fmt.Errorf("decode execution %s: %w", id, err)
	}
	return &res, nil
}

// ListExecutions returns the newest executions of a collection first. A
// limit of zero or less returns all of them.
func (s *SQLiteStore) ListExecutions(collectionID string, limit int) ([]types.ExecutionResult, error) {
	query := `SELECT result FROM executions WHERE collection_id=? ORDER BY executed_at DESC, rowid DESC`
	args := []any{collectionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryExecutions(query, args...)
}

// LatestExecutions returns the most recent execution of each endpoint in
// the collection, keyed by endpoint ID.
func (s *SQLiteStore) LatestExecutions(collectionID string) (map[string]types.ExecutionResult, error) {
	all, err := s.queryExecutions(`SELECT result FROM executions WHERE collection_id=? ORDER BY executed_at DESC, rowid DESC`, collectionID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]types.ExecutionResult)
	for _, res := range all {
		if _, ok := out[res.Endpoint.ID]; !ok {
			out[res.Endpoint.ID] = res
		}
	}
	return out, nil
}

func (s *SQLiteStore) queryExecutions(query string, args ...any) ([]types.ExecutionResult, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.ExecutionResult, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var res types.ExecutionResult
		if err := json.Unmarshal([]byte(data), &res); err != nil {
			return nil, fmt.Errorf("decode execution: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return errors.New("store is nil")
	}
	return s.db.Close()
}
