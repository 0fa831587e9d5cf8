package filter

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/yourorg/apitester/internal/config"
	"github.com/yourorg/apitester/internal/jsonvalue"
	"github.com/yourorg/apitester/pkg/types"
)

// SanitizeConfig is an alias of config.SanitizeConfig.
type SanitizeConfig = config.SanitizeConfig

// Redactor replaces configured secrets with a fixed marker.
type Redactor struct {
	headers     map[string]struct{}
	fields      map[string]struct{}
	replacement string
}

// NewRedactor builds a Redactor. Header and field names match case-insensitively.
func NewRedactor(cfg SanitizeConfig) *Redactor {
	return &Redactor{
		headers:     toLowerSet(cfg.Headers),
		fields:      toLowerSet(cfg.BodyFields),
		replacement: cfg.Replacement,
	}
}

// Result returns a redacted copy of res; res itself is left untouched.
// Stored executions go through here so tokens never reach the database.
func (r *Redactor) Result(res types.ExecutionResult) types.ExecutionResult {
	out := res
	out.Endpoint = res.Endpoint.Clone()
	out.Endpoint.Headers = r.headerMap(out.Endpoint.Headers)
	out.Endpoint.URL = r.url(out.Endpoint.URL)
	out.Endpoint.Body = r.text(out.Endpoint.Body)
	if res.Response != nil {
		resp := *res.Response
		resp.Headers = r.headerMap(resp.Headers)
		resp.Data = r.raw(resp.Data)
		out.Response = &resp
	}
	out.ValidationResults = append([]types.ValidationRule(nil), res.ValidationResults...)
	return out
}

// Exchange redacts a captured exchange.
func (r *Redactor) Exchange(ex types.Exchange) types.Exchange {
	ex.RequestHeaders = r.headerMap(ex.RequestHeaders)
	ex.ResponseHeaders = r.headerMap(ex.ResponseHeaders)
	ex.QueryParams = r.query(ex.QueryParams)
	ex.RequestBody = r.text(ex.RequestBody)
	ex.ResponseBody = r.text(ex.ResponseBody)
	return ex
}

func toLowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, v := range items {
		if v = strings.TrimSpace(strings.ToLower(v)); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func (r *Redactor) headerMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return in
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if _, ok := r.headers[strings.ToLower(k)]; ok {
			v = r.replacement
		}
		out[k] = v
	}
	return out
}

func (r *Redactor) query(in map[string][]string) map[string][]string {
	if len(in) == 0 {
		return in
	}
	out := make(map[string][]string, len(in))
	for k, vs := range in {
		cpy := append([]string(nil), vs...)
		if _, ok := r.fields[strings.ToLower(k)]; ok {
			for i := range cpy {
				cpy[i] = r.replacement
			}
		}
		out[k] = cpy
	}
	return out
}

func (r *Redactor) url(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := r.query(u.Query())
	u.RawQuery = url.Values(q).Encode()
	return u.String()
}

// text redacts a JSON body and leaves any other text alone.
func (r *Redactor) text(body string) string {
	if strings.TrimSpace(body) == "" {
		return body
	}
	return string(r.raw(json.RawMessage(body)))
}

func (r *Redactor) raw(data json.RawMessage) json.RawMessage {
	if len(data) == 0 || len(r.fields) == 0 {
		return data
	}
	v, err := jsonvalue.Parse(data)
	if err != nil {
		return data
	}
	out, err := r.value(v).MarshalJSON()
	if err != nil {
		return data
	}
	return out
}

// value rebuilds v with sensitive members replaced, keeping member order.
func (r *Redactor) value(v jsonvalue.Value) jsonvalue.Value {
	switch v.Kind() {
	case jsonvalue.KindObject:
		fields := make([]jsonvalue.Field, 0, v.Len())
		for _, f := range v.Fields() {
			if _, ok := r.fields[strings.ToLower(f.Key)]; ok {
				fields = append(fields, jsonvalue.Field{Key: f.Key, Value: jsonvalue.String(r.replacement)})
				continue
			}
			fields = append(fields, jsonvalue.Field{Key: f.Key, Value: r.value(f.Value)})
		}
		return jsonvalue.Object(fields...)
	case jsonvalue.KindArray:
		elems := make([]jsonvalue.Value, 0, v.Len())
		for _, e := range v.Elems() {
			elems = append(elems, r.value(e))
		}
		return jsonvalue.Array(elems...)
	}
	return v
}
