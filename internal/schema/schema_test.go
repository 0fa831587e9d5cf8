package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/apitester/internal/jsonvalue"
	"github.com/yourorg/apitester/pkg/types"
)

func TestSynthesizeExternalPassesThrough(t *testing.T) {
	raw := json.RawMessage(`{"type":"object","properties":{"id":{"type":"integer"}}}`)
	table := NewTable([]types.ExternalSchema{{
		Key:  types.SchemaKey{Method: "get", Path: "/users/{id}/", Role: types.RoleResponse},
		Data: raw,
	}})

	s, ok, err := Synthesize(types.SchemaExternal, Input{
		Table: table,
		Key:   types.SchemaKey{Method: "GET", Path: "/users/{id}", Role: types.RoleResponse},
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.SchemaExternal, s.Source)
	assert.Equal(t, string(raw), string(s.Data))

	_, ok, err = Synthesize(types.SchemaExternal, Input{
		Table: table,
		Key:   types.SchemaKey{Method: "GET", Path: "/users/{id}", Role: types.RoleError},
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSynthesizeInferredIsTheSample(t *testing.T) {
	sample := jsonvalue.MustFromAny(map[string]any{"id": 1, "name": "x"})

	s, ok, err := Synthesize(types.SchemaInferred, Input{Sample: &sample})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.SchemaInferred, s.Source)
	assert.JSONEq(t, `{"id":1,"name":"x"}`, string(s.Data))

	_, _, err = Synthesize(types.SchemaInferred, Input{})
	assert.ErrorIs(t, err, ErrNoSample)
}

func TestManualParseError(t *testing.T) {
	_, err := Manual(`{"id":`)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)

	var inner *jsonvalue.ParseError
	assert.True(t, errors.As(err, &inner))

	_, err = Manual("   ")
	assert.ErrorIs(t, err, ErrEmptySchema)
}

func TestManualKeepsMemberOrder(t *testing.T) {
	s, err := Manual(`{ "z": 1, "a": [true, null] }`)
	require.NoError(t, err)
	assert.Equal(t, types.SchemaManual, s.Source)
	assert.Equal(t, `{"z":1,"a":[true,null]}`, string(s.Data))
}

func TestApplyLeavesEndpointUntouchedOnError(t *testing.T) {
	prior, err := Manual(`{"ok":true}`)
	require.NoError(t, err)
	ep := types.Endpoint{ID: "e1", ResponseSchema: types.ActiveSchema(prior)}

	got, err := Apply(ep, types.SchemaManual, Input{Text: "not json"})
	require.Error(t, err)
	assert.Equal(t, ep, got)
	s, ok := got.ResponseSchema.Get()
	require.True(t, ok)
	assert.Equal(t, `{"ok":true}`, string(s.Data))
}

func TestApplySetsActiveSchemaOnCopy(t *testing.T) {
	ep := types.Endpoint{ID: "e1"}

	got, err := Apply(ep, types.SchemaManual, Input{Text: `{"id":1}`})
	require.NoError(t, err)
	assert.Equal(t, types.SlotActive, got.ResponseSchema.State)
	assert.Equal(t, types.SlotUnset, ep.ResponseSchema.State)
}

func TestClearIsDistinctFromUnset(t *testing.T) {
	s, err := Manual(`{"id":1}`)
	require.NoError(t, err)
	ep := types.Endpoint{
		ID:             "e1",
		ResponseSchema: types.ActiveSchema(s),
		ErrorSchema:    &types.ErrorSchema{Enabled: true, StatusCode: "400"},
	}

	got := Clear(ep)
	assert.Equal(t, types.SlotCleared, got.ResponseSchema.State)
	assert.Nil(t, got.ErrorSchema)
	_, ok := got.ResponseSchema.Get()
	assert.False(t, ok)

	assert.NotEqual(t, types.SlotUnset, got.ResponseSchema.State)
	assert.NotNil(t, ep.ErrorSchema)
	assert.Equal(t, types.SlotActive, ep.ResponseSchema.State)
}

func TestInferShape(t *testing.T) {
	v, err := jsonvalue.ParseString(`{
		"id": 7,
		"price": 9.5,
		"name": "x",
		"active": true,
		"note": null,
		"owner": {"email": "a@b.com"},
		"tags": ["a", "b"],
		"items": [{"sku": "1"}, {"sku": "2", "qty": 3}]
	}`)
	require.NoError(t, err)

	sh := Infer(v)
	require.Len(t, sh.Fields, 8)

	want := []FieldType{TypeInteger, TypeNumber, TypeString, TypeBoolean, TypeUnknown, TypeObject, TypeArray, TypeArray}
	for i, f := range sh.Fields {
		assert.Equal(t, want[i], f.Type, f.Name)
	}
	assert.Equal(t, "email", sh.Fields[5].Object.Fields[0].Name)
	assert.Equal(t, TypeString, sh.Fields[6].Elem)
	assert.Nil(t, sh.Fields[6].Object)

	items := sh.Fields[7].Object
	require.NotNil(t, items)
	require.Len(t, items.Fields, 2)
	assert.Equal(t, "qty", items.Fields[1].Name)
}

func TestInferRootArrayAndScalar(t *testing.T) {
	arr := jsonvalue.MustFromAny([]any{map[string]any{"a": 1}, map[string]any{"a": 1.5, "b": "x"}})
	sh := Infer(arr)
	require.Len(t, sh.Fields, 2)
	assert.Equal(t, TypeNumber, sh.Fields[0].Type)

	assert.True(t, Infer(jsonvalue.String("x")).Empty())
}

func TestFromJSONSchema(t *testing.T) {
	v, err := jsonvalue.ParseString(`{
		"type": "object",
		"properties": {
			"id": {"type": "integer"},
			"name": {"type": ["string", "null"]},
			"roles": {"type": "array", "items": {"type": "string"}},
			"address": {"properties": {"city": {"type": "string"}}},
			"ref": {"$ref": "#/components/schemas/Other"}
		}
	}`)
	require.NoError(t, err)

	sh := FromJSONSchema(v)
	require.Len(t, sh.Fields, 5)
	assert.Equal(t, TypeInteger, sh.Fields[0].Type)
	assert.Equal(t, TypeString, sh.Fields[1].Type)
	assert.Equal(t, TypeArray, sh.Fields[2].Type)
	assert.Equal(t, TypeString, sh.Fields[2].Elem)
	assert.Equal(t, TypeObject, sh.Fields[3].Type)
	assert.Equal(t, "city", sh.Fields[3].Object.Fields[0].Name)
	assert.Equal(t, TypeUnknown, sh.Fields[4].Type)
}

func TestShapeOfPicksReaderBySource(t *testing.T) {
	ext := types.Schema{Source: types.SchemaExternal, Data: json.RawMessage(`{"type":"object","properties":{"id":{"type":"string"}}}`)}
	sh, err := ShapeOf(ext)
	require.NoError(t, err)
	require.Len(t, sh.Fields, 1)
	assert.Equal(t, TypeString, sh.Fields[0].Type)

	sample := types.Schema{Source: types.SchemaInferred, Data: json.RawMessage(`{"type":"admin","level":2}`)}
	sh, err = ShapeOf(sample)
	require.NoError(t, err)
	require.Len(t, sh.Fields, 2)
	assert.Equal(t, TypeInteger, sh.Fields[1].Type)

	_, err = ShapeOf(types.Schema{Source: types.SchemaManual, Data: json.RawMessage(`{`)})
	assert.Error(t, err)
}

func TestFlatten(t *testing.T) {
	v, err := jsonvalue.ParseString(`{"user":{"id":1,"tags":["a"],"pets":[{"name":"rex"}]},"ok":true}`)
	require.NoError(t, err)

	got := Flatten(Infer(v))
	assert.Equal(t, []FlatField{
		{Path: "user.id", Type: TypeInteger},
		{Path: "user.tags[]", Type: TypeString},
		{Path: "user.pets[].name", Type: TypeString},
		{Path: "ok", Type: TypeBoolean},
	}, got)
}

func TestKeyFor(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://api.test/v1/users/{id}?x=1", "/v1/users/{id}"},
		{"{{baseUrl}}/orders/", "/orders"},
		{"https://api.test", "/"},
		{"/plain/path", "/plain/path"},
	}
	for _, tc := range cases {
		key := KeyFor(types.Endpoint{Method: "get", URL: tc.url}, types.RoleResponse)
		assert.Equal(t, tc.want, key.Path, tc.url)
		assert.Equal(t, "GET", key.Method)
		assert.Equal(t, types.RoleResponse, key.Role)
	}
}
