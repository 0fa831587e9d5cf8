package types

import (
	"encoding/json"
	"sort"
	"strings"
)

// HTTP methods an Endpoint may carry.
const (
	MethodGet     = "GET"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodDelete  = "DELETE"
	MethodPatch   = "PATCH"
	MethodHead    = "HEAD"
	MethodOptions = "OPTIONS"
)

// Endpoint is a named HTTP call definition.
type Endpoint struct {
	ID                 string            `json:"id" validate:"required"`
	Name               string            `json:"name"`
	Method             string            `json:"method" validate:"required,oneof=GET POST PUT DELETE PATCH HEAD OPTIONS"`
	URL                string            `json:"url" validate:"required"`
	Headers            map[string]string `json:"headers,omitempty"`
	Body               string            `json:"body,omitempty"`
	Description        string            `json:"description,omitempty"`
	CustomizableFields FieldSet          `json:"customizable_fields"`
	EndpointName       string            `json:"endpoint_name,omitempty"`
	ErrorSchema        *ErrorSchema      `json:"error_schema,omitempty"`
	ResponseSchema     SchemaSlot        `json:"response_schema"`
	ValidationRules    []ValidationRule  `json:"validation_rules,omitempty" validate:"dive"`
}

// ErrorSchema describes the expected shape of an error response.
type ErrorSchema struct {
	Enabled        bool   `json:"enabled"`
	StatusCode     string `json:"status_code"`
	ErrorStructure string `json:"error_structure,omitempty"`
}

// SupportsBody reports whether the method carries a JSON request body.
func SupportsBody(method string) bool {
	switch strings.ToUpper(method) {
	case MethodPost, MethodPut, MethodPatch:
		return true
	}
	return false
}

// Clone returns a deep copy so a generation or evaluation run can work on a snapshot.
func (e Endpoint) Clone() Endpoint {
	out := e
	if e.Headers != nil {
		out.Headers = make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			out.Headers[k] = v
		}
	}
	if e.ErrorSchema != nil {
		es := *e.ErrorSchema
		out.ErrorSchema = &es
	}
	if e.ValidationRules != nil {
		out.ValidationRules = append([]ValidationRule(nil), e.ValidationRules...)
	}
	out.ResponseSchema = e.ResponseSchema.Clone()
	return out
}

// FieldSet is an immutable set of top-level request-body field names.
// Edits return a new set; the receiver is never modified.
type FieldSet struct {
	names map[string]struct{}
}

// NewFieldSet builds a set from names, ignoring blanks.
func NewFieldSet(names ...string) FieldSet {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		m[n] = struct{}{}
	}
	return FieldSet{names: m}
}

// Has reports whether name is in the set.
func (s FieldSet) Has(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Len returns the number of names in the set.
func (s FieldSet) Len() int {
	return len(s.names)
}

// With returns a copy of the set that also contains name.
func (s FieldSet) With(name string) FieldSet {
	return NewFieldSet(append(s.Names(), name)...)
}

// Without returns a copy of the set with name removed.
func (s FieldSet) Without(name string) FieldSet {
	names := make([]string, 0, len(s.names))
	for n := range s.names {
		if n != name {
			names = append(names, n)
		}
	}
	return NewFieldSet(names...)
}

// Names returns the members in sorted order.
func (s FieldSet) Names() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s FieldSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

func (s *FieldSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewFieldSet(names...)
	return nil
}
