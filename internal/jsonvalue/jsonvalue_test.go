package jsonvalue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) Value {
	t.Helper()
	v, err := ParseString(s)
	require.NoError(t, err)
	return v
}

func TestParseKeepsMemberOrder(t *testing.T) {
	v := mustParse(t, `{"z":1,"a":{"y":true,"b":null},"m":[1,"x"]}`)

	require.Equal(t, KindObject, v.Kind())
	keys := make([]string, 0)
	for _, f := range v.Fields() {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"z", "a", "m"}, keys)

	out, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"z":1,"a":{"y":true,"b":null},"m":[1,"x"]}`, string(out))
	assert.Equal(t, `{"z":1,"a":{"y":true,"b":null},"m":[1,"x"]}`, string(out))
}

func TestParseRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{"", "{", `{"a":}`, `{"a":1} trailing`, `[1,2`} {
		_, err := ParseString(in)
		var perr *ParseError
		assert.ErrorAs(t, err, &perr, "input %q", in)
	}
}

func TestParseOptionalBlank(t *testing.T) {
	_, ok, err := ParseOptional("   ")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := ParseOptional(`{"a":1}`)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, v.Len())
}

func TestStringRendering(t *testing.T) {
	assert.Equal(t, "1", Number(1).String())
	assert.Equal(t, "1.5", Number(1.5).String())
	assert.Equal(t, "200", Number(200).String())
	assert.Equal(t, "1e-7", Number(1e-7).String())
	assert.Equal(t, "-2.5e-8", Number(-2.5e-8).String())
	assert.Equal(t, "1e-100", Number(1e-100).String())
	assert.Equal(t, "1e+21", Number(1e21).String())
	assert.Equal(t, "0.000001", Number(1e-6).String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "null", Null().String())
	assert.Equal(t, "abc", String("abc").String())
	assert.Equal(t, `{"a":[1,2]}`, Object(Field{Key: "a", Value: Array(Number(1), Number(2))}).String())
}

func TestResolve(t *testing.T) {
	root := mustParse(t, `{"a":{"b":{"c":"deep"},"n":null},"items":[{"id":1}],"flag":false}`)

	tests := []struct {
		name   string
		path   string
		want   Value
		wantOK bool
	}{
		{"nested", "a.b.c", String("deep"), true},
		{"null leaf", "a.n", Null(), true},
		{"missing key", "a.x", Value{}, false},
		{"through primitive", "a.b.c.d", Value{}, false},
		{"through null", "a.n.x", Value{}, false},
		{"array index not supported", "items.0.id", Value{}, false},
		{"bracket index is literal key", "items[0]", Value{}, false},
		{"false leaf", "flag", Bool(false), true},
		{"duplicate dots skipped", "a..b.c", String("deep"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(root, tt.path)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want.String(), got.String())
				assert.Equal(t, tt.want.Kind(), got.Kind())
			}
		})
	}
}

func TestResolveEmptyPathIsRoot(t *testing.T) {
	root := mustParse(t, `{"a":1}`)
	got, ok := Resolve(root, "")
	require.True(t, ok)
	assert.Equal(t, root.String(), got.String())
}

func TestResolveNeverPanicsOnScalars(t *testing.T) {
	for _, root := range []Value{Null(), Bool(true), Number(3), String("s"), Array(Number(1))} {
		assert.NotPanics(t, func() {
			_, ok := Resolve(root, "a.b")
			assert.False(t, ok)
		})
	}
}

func TestFieldPaths(t *testing.T) {
	root := mustParse(t, `{"user":{"id":1,"tags":["x"],"profile":{"name":"n"}},"ok":true}`)
	assert.Equal(t, []string{"user", "user.id", "user.tags", "user.profile", "user.profile.name", "ok"}, FieldPaths(root))
}

func TestExtractCountsAndOrders(t *testing.T) {
	root := mustParse(t, `{"user":{"id":1,"tags":["a","a","b"]}}`)

	got := Extract(root)

	assert.Equal(t, []ExtractedValue{
		{Value: "a", Path: "user.tags[0]", Type: TypeString, Count: 2},
		{Value: "b", Path: "user.tags[2]", Type: TypeString, Count: 1},
		{Value: "1", Path: "user.id", Type: TypeNumber, Count: 1},
	}, got)
}

func TestExtractSkipsNullAndSortsByTypeThenValue(t *testing.T) {
	root := mustParse(t, `{"ok":true,"n":null,"count":10,"name":"zed","list":[{"name":"amy","ok":true},2]}`)

	got := Extract(root)

	require.Len(t, got, 5)
	assert.Equal(t, "amy", got[0].Value)
	assert.Equal(t, "list[0].name", got[0].Path)
	assert.Equal(t, "zed", got[1].Value)
	assert.Equal(t, "10", got[2].Value)
	assert.Equal(t, "2", got[3].Value)
	assert.Equal(t, "list[1]", got[3].Path)
	assert.Equal(t, ExtractedValue{Value: "true", Path: "ok", Type: TypeBoolean, Count: 2}, got[4])
}

func TestExtractIsDeterministic(t *testing.T) {
	root := mustParse(t, `{"b":[3,3,"3"],"a":{"x":"y","z":false}}`)
	assert.Equal(t, Extract(root), Extract(root))
}

func TestExtractScalarRoot(t *testing.T) {
	assert.Empty(t, Extract(String("alone")))
	assert.Empty(t, Extract(Null()))
}

func TestFromAnySortsMapKeys(t *testing.T) {
	v, err := FromAny(map[string]any{"b": 1, "a": []any{"x", nil, true}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x",null,true],"b":1}`, v.String())
}
