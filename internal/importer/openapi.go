package importer

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/yourorg/apitester/internal/jsonvalue"
	"github.com/yourorg/apitester/internal/schema"
	"github.com/yourorg/apitester/pkg/types"
)

// maxSchemaDepth bounds example generation and schema export on recursive models.
const maxSchemaDepth = 8

var methodOrder = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

func importOpenAPI(doc []byte) (Result, error) {
	spec, err := loadOpenAPI(doc)
	if err != nil {
		return Result{}, err
	}

	res := Result{}
	if spec.Info != nil {
		res.Name = spec.Info.Title
	}
	base := baseURL(spec)
	global := securityHeaders(spec)
	if spec.Paths == nil {
		return res, nil
	}

	paths := spec.Paths.Map()
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	for _, p := range keys {
		ops := paths[p].Operations()
		for _, method := range methodOrder {
			op, ok := ops[method]
			if !ok || op == nil {
				continue
			}
			ep := operationEndpoint(base, p, method, op, global)
			res.Endpoints = append(res.Endpoints, ep)
			res.ExternalSchemas = append(res.ExternalSchemas, operationSchemas(ep, op)...)
		}
	}
	return res, nil
}

func loadOpenAPI(doc []byte) (*openapi3.T, error) {
	var probe struct {
		Swagger string `json:"swagger"`
	}
	_ = json.Unmarshal(doc, &probe)
	if strings.HasPrefix(probe.Swagger, "2") {
		var v2 openapi2.T
		if err := json.Unmarshal(doc, &v2); err != nil {
			return nil, fmt.Errorf("parse swagger document: %w", err)
		}
		spec, err := openapi2conv.ToV3(&v2)
		if err != nil {
			return nil, fmt.Errorf("convert swagger document: %w", err)
		}
		return spec, nil
	}
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(doc)
	if err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	return spec, nil
}

// baseURL is the first server with its variables set to their defaults.
func baseURL(spec *openapi3.T) string {
	if len(spec.Servers) == 0 || spec.Servers[0] == nil {
		return ""
	}
	srv := spec.Servers[0]
	u := srv.URL
	for name, v := range srv.Variables {
		if v != nil {
			u = strings.ReplaceAll(u, "{"+name+"}", v.Default)
		}
	}
	return strings.TrimRight(u, "/")
}

func securityHeaders(spec *openapi3.T) map[string]string {
	out := map[string]string{}
	if spec.Components == nil {
		return out
	}
	names := make([]string, 0, len(spec.Components.SecuritySchemes))
	for name := range spec.Components.SecuritySchemes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ref := spec.Components.SecuritySchemes[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		s := ref.Value
		switch strings.ToLower(s.Type) {
		case "http":
			switch strings.ToLower(s.Scheme) {
			case "bearer":
				out["Authorization"] = "Bearer {{bearer_token}}"
			case "basic":
				out["Authorization"] = "Basic {{basic_auth}}"
			}
		case "apikey":
			if s.In == "header" && s.Name != "" {
				out[s.Name] = "{{" + name + "_key}}"
			}
		}
	}
	return out
}

func operationEndpoint(base, path, method string, op *openapi3.Operation, global map[string]string) types.Endpoint {
	headers := make(map[string]string, len(global))
	for k, v := range global {
		headers[k] = v
	}
	for _, p := range op.Parameters {
		if p != nil && p.Value != nil && p.Value.In == openapi3.ParameterInHeader {
			headers[p.Value.Name] = "{" + p.Value.Name + "}"
		}
	}

	name := op.Summary
	if name == "" {
		name = method + " " + path
	}
	return types.Endpoint{
		Name:               name,
		Method:             method,
		URL:                base + path,
		Headers:            headers,
		Body:               requestExample(op),
		Description:        op.Description,
		CustomizableFields: types.NewFieldSet(),
	}
}

func jsonMedia(content openapi3.Content) *openapi3.MediaType {
	if mt := content.Get("application/json"); mt != nil {
		return mt
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.HasSuffix(strings.Split(k, ";")[0], "+json") {
			return content[k]
		}
	}
	return nil
}

// requestExample prefers an explicit example and otherwise builds one from
// the body schema.
func requestExample(op *openapi3.Operation) string {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return ""
	}
	mt := jsonMedia(op.RequestBody.Value.Content)
	if mt == nil {
		return ""
	}
	var v jsonvalue.Value
	switch {
	case mt.Example != nil:
		v = fromAnyOrNull(mt.Example)
	case firstExample(mt.Examples) != nil:
		v = fromAnyOrNull(firstExample(mt.Examples))
	case mt.Schema != nil:
		v = exampleFromSchema(mt.Schema, 0)
	default:
		return ""
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return prettyJSON(data)
}

func firstExample(examples openapi3.Examples) any {
	names := make([]string, 0, len(examples))
	for n := range examples {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if ex := examples[n]; ex != nil && ex.Value != nil && ex.Value.Value != nil {
			return ex.Value.Value
		}
	}
	return nil
}

func fromAnyOrNull(x any) jsonvalue.Value {
	v, err := jsonvalue.FromAny(x)
	if err != nil {
		return jsonvalue.Null()
	}
	return v
}

func exampleFromSchema(ref *openapi3.SchemaRef, depth int) jsonvalue.Value {
	if ref == nil || ref.Value == nil || depth > maxSchemaDepth {
		return jsonvalue.Object()
	}
	s := ref.Value
	if s.Example != nil {
		return fromAnyOrNull(s.Example)
	}
	props := collectProperties(s, nil, 0)
	switch {
	case s.Type.Is(openapi3.TypeObject) || (s.Type == nil && len(props) > 0):
		names := sortedNames(props)
		fields := make([]jsonvalue.Field, 0, len(names))
		for _, n := range names {
			fields = append(fields, jsonvalue.Field{Key: n, Value: exampleFromSchema(props[n], depth+1)})
		}
		return jsonvalue.Object(fields...)
	case s.Type.Is(openapi3.TypeArray):
		if s.Items == nil {
			return jsonvalue.Array()
		}
		return jsonvalue.Array(exampleFromSchema(s.Items, depth+1))
	case s.Type.Is(openapi3.TypeString):
		if len(s.Enum) > 0 {
			return fromAnyOrNull(s.Enum[0])
		}
		if s.Format == "email" {
			return jsonvalue.String("user@example.com")
		}
		return jsonvalue.String("string")
	case s.Type.Is(openapi3.TypeInteger), s.Type.Is(openapi3.TypeNumber):
		return jsonvalue.Number(0)
	case s.Type.Is(openapi3.TypeBoolean):
		return jsonvalue.Bool(true)
	}
	return jsonvalue.Null()
}

// collectProperties merges a schema's own properties with those of its
// allOf parts. Own properties win.
func collectProperties(s *openapi3.Schema, into openapi3.Schemas, depth int) openapi3.Schemas {
	if into == nil {
		into = openapi3.Schemas{}
	}
	if s == nil || depth > maxSchemaDepth {
		return into
	}
	for n, p := range s.Properties {
		into[n] = p
	}
	for _, part := range s.AllOf {
		if part == nil || part.Value == nil {
			continue
		}
		for n, p := range collectProperties(part.Value, nil, depth+1) {
			if _, ok := into[n]; !ok {
				into[n] = p
			}
		}
	}
	return into
}

// collectRequired is the union of required names across s and its allOf parts.
func collectRequired(s *openapi3.Schema, depth int) []string {
	if s == nil || depth > maxSchemaDepth {
		return nil
	}
	out := append([]string(nil), s.Required...)
	for _, part := range s.AllOf {
		if part == nil || part.Value == nil {
			continue
		}
		for _, r := range collectRequired(part.Value, depth+1) {
			if !slices.Contains(out, r) {
				out = append(out, r)
			}
		}
	}
	return out
}

func sortedNames(props openapi3.Schemas) []string {
	names := make([]string, 0, len(props))
	for n := range props {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// operationSchemas records the request body, the lowest 2xx response and the
// lowest 4xx (or default) response as externally-supplied schemas.
func operationSchemas(ep types.Endpoint, op *openapi3.Operation) []types.ExternalSchema {
	var out []types.ExternalSchema
	add := func(role types.SchemaRole, ref *openapi3.SchemaRef) {
		if ref == nil || ref.Value == nil {
			return
		}
		data, err := schemaJSON(ref, 0).MarshalJSON()
		if err != nil {
			return
		}
		out = append(out, types.ExternalSchema{Key: schema.KeyFor(ep, role), Data: data})
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		if mt := jsonMedia(op.RequestBody.Value.Content); mt != nil {
			add(types.RoleRequest, mt.Schema)
		}
	}
	if op.Responses == nil {
		return out
	}
	success, failure := pickResponses(op.Responses.Map())
	for _, pick := range []struct {
		role types.SchemaRole
		ref  *openapi3.ResponseRef
	}{{types.RoleResponse, success}, {types.RoleError, failure}} {
		if pick.ref == nil || pick.ref.Value == nil {
			continue
		}
		if mt := jsonMedia(pick.ref.Value.Content); mt != nil {
			add(pick.role, mt.Schema)
		}
	}
	return out
}

func pickResponses(responses map[string]*openapi3.ResponseRef) (success, failure *openapi3.ResponseRef) {
	bestOK, bestErr := 1000, 1000
	for code, ref := range responses {
		n, err := strconv.Atoi(code)
		switch {
		case err != nil:
			if code == "default" && failure == nil {
				failure = ref
			}
		case n >= 200 && n < 300 && n < bestOK:
			bestOK, success = n, ref
		case n >= 400 && n < 500 && n < bestErr:
			bestErr, failure = n, ref
		}
	}
	return success, failure
}

// schemaJSON renders a resolved schema as plain JSON Schema with references
// inlined up to maxSchemaDepth. allOf parts are folded into properties.
func schemaJSON(ref *openapi3.SchemaRef, depth int) jsonvalue.Value {
	if ref == nil || ref.Value == nil {
		return jsonvalue.Object()
	}
	if depth > maxSchemaDepth {
		if ref.Ref != "" {
			return jsonvalue.Object(jsonvalue.Field{Key: "$ref", Value: jsonvalue.String(ref.Ref)})
		}
		return jsonvalue.Object()
	}
	s := ref.Value
	var fields []jsonvalue.Field
	put := func(key string, v jsonvalue.Value) {
		fields = append(fields, jsonvalue.Field{Key: key, Value: v})
	}

	props := collectProperties(s, nil, 0)
	switch ts := s.Type.Slice(); {
	case len(ts) == 1:
		put("type", jsonvalue.String(ts[0]))
	case len(ts) > 1:
		elems := make([]jsonvalue.Value, 0, len(ts))
		for _, t := range ts {
			elems = append(elems, jsonvalue.String(t))
		}
		put("type", jsonvalue.Array(elems...))
	case len(props) > 0:
		put("type", jsonvalue.String(openapi3.TypeObject))
	}
	if s.Format != "" {
		put("format", jsonvalue.String(s.Format))
	}
	if s.Nullable {
		put("nullable", jsonvalue.Bool(true))
	}
	if len(s.Enum) > 0 {
		put("enum", fromAnyOrNull(s.Enum))
	}
	if len(props) > 0 {
		names := sortedNames(props)
		members := make([]jsonvalue.Field, 0, len(names))
		for _, n := range names {
			members = append(members, jsonvalue.Field{Key: n, Value: schemaJSON(props[n], depth+1)})
		}
		put("properties", jsonvalue.Object(members...))
	}
	if required := collectRequired(s, 0); len(required) > 0 {
		req := make([]jsonvalue.Value, 0, len(required))
		for _, r := range required {
			req = append(req, jsonvalue.String(r))
		}
		put("required", jsonvalue.Array(req...))
	}
	if s.Items != nil {
		put("items", schemaJSON(s.Items, depth+1))
	}
	if s.Example != nil {
		put("example", fromAnyOrNull(s.Example))
	}
	return jsonvalue.Object(fields...)
}
