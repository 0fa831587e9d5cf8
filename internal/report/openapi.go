package report

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/apitester/internal/jsonvalue"
	"github.com/yourorg/apitester/internal/schema"
	"github.com/yourorg/apitester/pkg/types"
)

// OpenAPIFile is the file name RenderOpenAPI writes.
const OpenAPIFile = "openapi.yaml"

// RenderOpenAPI writes col as an OpenAPI 3.0 document to outputDir/openapi.yaml.
func RenderOpenAPI(col *types.Collection, outputDir string) (string, error) {
	if col == nil {
		return "", fmt.Errorf("collection is nil")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	data, err := yaml.Marshal(OpenAPIDocument(col))
	if err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, OpenAPIFile)
	return path, os.WriteFile(path, data, 0o644)
}

// OpenAPIDocument describes the collection's endpoints as an OpenAPI 3.0
// document tree. Response schemas come from the externally-supplied table
// when present and otherwise from the endpoint's active schema.
func OpenAPIDocument(col *types.Collection) map[string]interface{} {
	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":   col.Name,
			"version": "1.0.0",
		},
		"paths": map[string]interface{}{},
	}
	if server := serverURL(col.Endpoints); server != "" {
		spec["servers"] = []map[string]interface{}{{"url": server}}
	}

	table := schema.NewTable(col.ExternalSchemas)
	paths := spec["paths"].(map[string]interface{})
	for _, ep := range col.Endpoints {
		key := schema.KeyFor(ep, types.RoleResponse)
		pathItem, ok := paths[key.Path].(map[string]interface{})
		if !ok {
			pathItem = map[string]interface{}{}
			paths[key.Path] = pathItem
		}
		pathItem[strings.ToLower(ep.Method)] = operation(ep, col.ErrorSchema, table)
	}
	return spec
}

func operation(ep types.Endpoint, defaultErr *types.ErrorSchema, table schema.Table) map[string]interface{} {
	op := map[string]interface{}{"summary": displayName(ep)}
	if ep.Description != "" {
		op["description"] = ep.Description
	}

	params := make([]map[string]interface{}, 0)
	for _, name := range pathParams(schema.KeyFor(ep, types.RoleRequest).Path) {
		params = append(params, map[string]interface{}{
			"name": name, "in": "path", "required": true,
			"schema": map[string]interface{}{"type": "string"},
		})
	}
	for _, name := range sortedKeys(ep.Headers) {
		switch strings.ToLower(name) {
		case "accept", "content-type", "authorization":
			continue
		}
		params = append(params, map[string]interface{}{
			"name": name, "in": "header",
			"schema": map[string]interface{}{"type": "string"},
		})
	}
	if len(params) > 0 {
		op["parameters"] = params
	}

	if types.SupportsBody(ep.Method) {
		if body, ok, err := jsonvalue.ParseOptional(ep.Body); err == nil && ok {
			sc := schemaFromTable(table, schema.KeyFor(ep, types.RoleRequest))
			if sc == nil {
				sc = sampleSchema(body)
			}
			sc["example"] = toPlain(body)
			op["requestBody"] = map[string]interface{}{
				"content": map[string]interface{}{
					"application/json": map[string]interface{}{"schema": sc},
				},
			}
		}
	}

	responses := map[string]interface{}{}
	ok := map[string]interface{}{"description": "Successful response"}
	if sc := responseSchema(ep, table); sc != nil {
		ok["content"] = map[string]interface{}{
			"application/json": map[string]interface{}{"schema": sc},
		}
	}
	responses["200"] = ok

	errSchema := ep.ErrorSchema
	if errSchema == nil {
		errSchema = defaultErr
	}
	if errSchema != nil && errSchema.Enabled && errSchema.StatusCode != "" {
		resp := map[string]interface{}{"description": "Error response"}
		if sample, ok, err := jsonvalue.ParseOptional(errSchema.ErrorStructure); err == nil && ok {
			sc := sampleSchema(sample)
			sc["example"] = toPlain(sample)
			resp["content"] = map[string]interface{}{
				"application/json": map[string]interface{}{"schema": sc},
			}
		}
		responses[errSchema.StatusCode] = resp
	}
	op["responses"] = responses
	return op
}

func responseSchema(ep types.Endpoint, table schema.Table) map[string]interface{} {
	if sc := schemaFromTable(table, schema.KeyFor(ep, types.RoleResponse)); sc != nil {
		return sc
	}
	s, ok := ep.ResponseSchema.Get()
	if !ok {
		return nil
	}
	v, err := jsonvalue.Parse(s.Data)
	if err != nil {
		return nil
	}
	if s.Source == types.SchemaExternal {
		if m, ok := toPlain(v).(map[string]interface{}); ok {
			return m
		}
		return nil
	}
	sc := sampleSchema(v)
	sc["example"] = toPlain(v)
	return sc
}

func schemaFromTable(table schema.Table, key types.SchemaKey) map[string]interface{} {
	data, ok := table.Lookup(key)
	if !ok {
		return nil
	}
	v, err := jsonvalue.Parse(data)
	if err != nil {
		return nil
	}
	m, _ := toPlain(v).(map[string]interface{})
	return m
}

// sampleSchema derives a JSON Schema from a captured sample.
func sampleSchema(v jsonvalue.Value) map[string]interface{} {
	switch v.Kind() {
	case jsonvalue.KindObject:
		props := map[string]interface{}{}
		for _, f := range v.Fields() {
			props[f.Key] = sampleSchema(f.Value)
		}
		return map[string]interface{}{"type": "object", "properties": props}
	case jsonvalue.KindArray:
		sc := map[string]interface{}{"type": "array"}
		if elems := v.Elems(); len(elems) > 0 {
			sc["items"] = sampleSchema(elems[0])
		} else {
			sc["items"] = map[string]interface{}{}
		}
		return sc
	case jsonvalue.KindString:
		return map[string]interface{}{"type": "string"}
	case jsonvalue.KindNumber:
		if n, _ := v.AsNumber(); n == float64(int64(n)) {
			return map[string]interface{}{"type": "integer"}
		}
		return map[string]interface{}{"type": "number"}
	case jsonvalue.KindBool:
		return map[string]interface{}{"type": "boolean"}
	}
	return map[string]interface{}{"nullable": true}
}

// toPlain converts a Value to maps and slices for YAML encoding.
func toPlain(v jsonvalue.Value) interface{} {
	switch v.Kind() {
	case jsonvalue.KindObject:
		m := make(map[string]interface{}, v.Len())
		for _, f := range v.Fields() {
			m[f.Key] = toPlain(f.Value)
		}
		return m
	case jsonvalue.KindArray:
		out := make([]interface{}, 0, v.Len())
		for _, e := range v.Elems() {
			out = append(out, toPlain(e))
		}
		return out
	case jsonvalue.KindString:
		s, _ := v.AsString()
		return s
	case jsonvalue.KindNumber:
		n, _ := v.AsNumber()
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	case jsonvalue.KindBool:
		b, _ := v.AsBool()
		return b
	}
	return nil
}

// serverURL is the scheme and host shared by the first absolute endpoint URL.
func serverURL(eps []types.Endpoint) string {
	for _, ep := range eps {
		u, err := url.Parse(ep.URL)
		if err == nil && u.Scheme != "" && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	return ""
}

func pathParams(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") && len(seg) > 2 {
			out = append(out, seg[1:len(seg)-1])
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateOpenAPI loads a rendered document and returns its validation problems.
func ValidateOpenAPI(yamlPath string) []string {
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return []string{err.Error()}
	}
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return []string{err.Error()}
	}
	var errs []string
	if doc.Paths == nil || doc.Paths.Len() == 0 {
		errs = append(errs, "missing or empty paths")
	}
	if err := doc.Validate(context.Background(), openapi3.DisableExamplesValidation()); err != nil {
		errs = append(errs, err.Error())
	}
	return errs
}
