// Package schema attaches structural descriptions to endpoints. A schema is
// either taken from an externally-supplied table, inferred from a captured
// sample or authored by hand.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/yourorg/apitester/internal/jsonvalue"
	"github.com/yourorg/apitester/pkg/types"
)

// ErrEmptySchema is wrapped by ParseError when manual text is blank.
var ErrEmptySchema = errors.New("schema text is empty")

// ErrNoSample is returned when an inferred schema is requested without data.
var ErrNoSample = errors.New("no sample to infer a schema from")

// ParseError reports manual schema text that is not valid JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "schema parse error: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Table is an externally-supplied schema lookup keyed by method, path and role.
type Table map[types.SchemaKey]json.RawMessage

// NewTable indexes entries. A later entry for the same key wins.
func NewTable(entries []types.ExternalSchema) Table {
	t := make(Table, len(entries))
	for _, e := range entries {
		t[normalizeKey(e.Key)] = e.Data
	}
	return t
}

// Lookup finds the schema for key.
func (t Table) Lookup(key types.SchemaKey) (json.RawMessage, bool) {
	data, ok := t[normalizeKey(key)]
	return data, ok
}

// KeyFor derives the table key of ep for role: the upper-cased method and
// the URL path, with any leading {{variable}} base removed.
func KeyFor(ep types.Endpoint, role types.SchemaRole) types.SchemaKey {
	raw := strings.TrimSpace(ep.URL)
	if strings.HasPrefix(raw, "{{") {
		if i := strings.Index(raw, "}}"); i > 0 {
			raw = raw[i+2:]
		}
	}
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		p = "/"
	}
	return normalizeKey(types.SchemaKey{Method: ep.Method, Path: p, Role: role})
}

func normalizeKey(k types.SchemaKey) types.SchemaKey {
	k.Method = strings.ToUpper(strings.TrimSpace(k.Method))
	k.Path = strings.TrimSpace(k.Path)
	if len(k.Path) > 1 {
		k.Path = strings.TrimRight(k.Path, "/")
	}
	return k
}

// Input carries what each source needs. Only the fields relevant to the
// requested source are read.
type Input struct {
	Table  Table
	Key    types.SchemaKey
	Sample *jsonvalue.Value
	Text   string
}

// Synthesize produces a schema from source. The boolean is false when the
// external table has no entry for the key, which is not an error.
func Synthesize(source types.SchemaSource, in Input) (types.Schema, bool, error) {
	switch source {
	case types.SchemaExternal:
		data, ok := in.Table.Lookup(in.Key)
		if !ok {
			return types.Schema{}, false, nil
		}
		return types.Schema{Source: types.SchemaExternal, Data: data}, true, nil
	case types.SchemaInferred:
		if in.Sample == nil {
			return types.Schema{}, false, ErrNoSample
		}
		s, err := Inferred(*in.Sample)
		return s, err == nil, err
	case types.SchemaManual:
		s, err := Manual(in.Text)
		return s, err == nil, err
	}
	return types.Schema{}, false, fmt.Errorf("unknown schema source %q", source)
}

// Inferred wraps sample as a schema. No generalization is performed; the
// sample is the schema.
func Inferred(sample jsonvalue.Value) (types.Schema, error) {
	data, err := sample.MarshalJSON()
	if err != nil {
		return types.Schema{}, err
	}
	return types.Schema{Source: types.SchemaInferred, Data: data}, nil
}

// Manual parses author-supplied JSON text. Failures are *ParseError.
func Manual(text string) (types.Schema, error) {
	v, ok, err := jsonvalue.ParseOptional(text)
	if err != nil {
		return types.Schema{}, &ParseError{Err: err}
	}
	if !ok {
		return types.Schema{}, &ParseError{Err: ErrEmptySchema}
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return types.Schema{}, &ParseError{Err: err}
	}
	return types.Schema{Source: types.SchemaManual, Data: data}, nil
}

// Apply returns a copy of ep with its response schema synthesized from
// source. On any error ep is returned unchanged together with the error. An
// external source with no table entry also leaves ep unchanged.
func Apply(ep types.Endpoint, source types.SchemaSource, in Input) (types.Endpoint, error) {
	s, ok, err := Synthesize(source, in)
	if err != nil || !ok {
		return ep, err
	}
	out := ep.Clone()
	out.ResponseSchema = types.ActiveSchema(s)
	return out, nil
}

// Clear returns a copy of ep with the schema explicitly removed and its
// error-schema association dropped.
func Clear(ep types.Endpoint) types.Endpoint {
	out := ep.Clone()
	out.ResponseSchema = types.ClearedSchema()
	out.ErrorSchema = nil
	return out
}
