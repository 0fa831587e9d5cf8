package schema

import (
	"math"

	"github.com/yourorg/apitester/internal/jsonvalue"
	"github.com/yourorg/apitester/pkg/types"
)

// FieldType is the inferred primitive or container type of a field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
	TypeUnknown FieldType = "unknown"
)

// Field is one named member of a Shape. Object is set for objects and for
// arrays of objects; Elem is the element type of arrays.
type Field struct {
	Name   string
	Type   FieldType
	Elem   FieldType
	Object *Shape
}

// Shape is the structure of a JSON object: its fields in document order.
type Shape struct {
	Fields []Field
}

// Empty reports whether the shape has no fields.
func (s Shape) Empty() bool { return len(s.Fields) == 0 }

// FlatField is a leaf of a flattened shape.
type FlatField struct {
	Path string
	Type FieldType
}

// Infer derives a shape from a sample. A root array is described by the
// merged shape of its object elements; a scalar root has an empty shape.
func Infer(v jsonvalue.Value) Shape {
	switch v.Kind() {
	case jsonvalue.KindObject:
		return inferObject(v)
	case jsonvalue.KindArray:
		if sh := inferElems(v.Elems()); sh != nil {
			return *sh
		}
	}
	return Shape{}
}

func inferObject(v jsonvalue.Value) Shape {
	var sh Shape
	for _, f := range v.Fields() {
		sh.Fields = append(sh.Fields, inferField(f.Key, f.Value))
	}
	return sh
}

func inferField(name string, v jsonvalue.Value) Field {
	f := Field{Name: name, Type: typeOf(v)}
	switch v.Kind() {
	case jsonvalue.KindObject:
		sh := inferObject(v)
		f.Object = &sh
	case jsonvalue.KindArray:
		f.Elem = TypeUnknown
		for _, e := range v.Elems() {
			if !e.IsNull() {
				f.Elem = mergeType(f.Elem, typeOf(e))
			}
		}
		f.Object = inferElems(v.Elems())
	}
	return f
}

// inferElems merges the shapes of the object elements of an array.
func inferElems(elems []jsonvalue.Value) *Shape {
	var merged *Shape
	for _, e := range elems {
		if e.Kind() != jsonvalue.KindObject {
			continue
		}
		sh := inferObject(e)
		if merged == nil {
			merged = &sh
			continue
		}
		*merged = mergeShapes(*merged, sh)
	}
	return merged
}

func mergeShapes(a, b Shape) Shape {
	out := Shape{Fields: append([]Field(nil), a.Fields...)}
	index := make(map[string]int, len(out.Fields))
	for i, f := range out.Fields {
		index[f.Name] = i
	}
	for _, f := range b.Fields {
		i, ok := index[f.Name]
		if !ok {
			index[f.Name] = len(out.Fields)
			out.Fields = append(out.Fields, f)
			continue
		}
		cur := out.Fields[i]
		cur.Type = mergeType(cur.Type, f.Type)
		if f.Elem != "" {
			cur.Elem = mergeType(cur.Elem, f.Elem)
		}
		switch {
		case cur.Object == nil:
			cur.Object = f.Object
		case f.Object != nil:
			sh := mergeShapes(*cur.Object, *f.Object)
			cur.Object = &sh
		}
		out.Fields[i] = cur
	}
	return out
}

func mergeType(a, b FieldType) FieldType {
	switch {
	case a == b:
		return a
	case a == TypeUnknown || a == "":
		return b
	case b == TypeUnknown || b == "":
		return a
	case (a == TypeInteger && b == TypeNumber) || (a == TypeNumber && b == TypeInteger):
		return TypeNumber
	}
	return a
}

func typeOf(v jsonvalue.Value) FieldType {
	switch v.Kind() {
	case jsonvalue.KindString:
		return TypeString
	case jsonvalue.KindNumber:
		n, _ := v.AsNumber()
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return TypeInteger
		}
		return TypeNumber
	case jsonvalue.KindBool:
		return TypeBoolean
	case jsonvalue.KindObject:
		return TypeObject
	case jsonvalue.KindArray:
		return TypeArray
	}
	return TypeUnknown
}

// FromJSONSchema reads a JSON Schema object ("type", "properties", "items")
// into a shape. Unresolved references read as unknown fields.
func FromJSONSchema(v jsonvalue.Value) Shape {
	if items, ok := v.Get("items"); ok && schemaType(v) == TypeArray {
		return FromJSONSchema(items)
	}
	props, ok := v.Get("properties")
	if !ok {
		return Shape{}
	}
	var sh Shape
	for _, p := range props.Fields() {
		f := Field{Name: p.Key, Type: schemaType(p.Value)}
		switch f.Type {
		case TypeObject:
			nested := FromJSONSchema(p.Value)
			f.Object = &nested
		case TypeArray:
			f.Elem = TypeUnknown
			if items, ok := p.Value.Get("items"); ok {
				f.Elem = schemaType(items)
				if f.Elem == TypeObject {
					nested := FromJSONSchema(items)
					f.Object = &nested
				}
			}
		}
		sh.Fields = append(sh.Fields, f)
	}
	return sh
}

func schemaType(v jsonvalue.Value) FieldType {
	t, _ := v.Get("type")
	if s, ok := t.AsString(); ok {
		switch FieldType(s) {
		case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeObject, TypeArray:
			return FieldType(s)
		}
	}
	// OpenAPI 3.1 allows a list of types; take the first non-null one.
	for _, e := range t.Elems() {
		if s, ok := e.AsString(); ok && s != "null" {
			return schemaType(jsonvalue.Object(jsonvalue.Field{Key: "type", Value: e}))
		}
	}
	if _, ok := v.Get("properties"); ok {
		return TypeObject
	}
	if _, ok := v.Get("items"); ok {
		return TypeArray
	}
	return TypeUnknown
}

// ShapeOf reads the shape described by an attached schema. External
// schemas are JSON Schema documents; inferred and manual schemas are
// samples.
func ShapeOf(s types.Schema) (Shape, error) {
	v, err := jsonvalue.Parse(s.Data)
	if err != nil {
		return Shape{}, err
	}
	if s.Source == types.SchemaExternal && looksLikeJSONSchema(v) {
		return FromJSONSchema(v), nil
	}
	return Infer(v), nil
}

func looksLikeJSONSchema(v jsonvalue.Value) bool {
	if _, ok := v.Get("properties"); ok {
		return true
	}
	t, ok := v.Get("type")
	if !ok {
		return false
	}
	_, isString := t.AsString()
	return isString || t.Kind() == jsonvalue.KindArray
}

// Flatten lists every leaf of the shape with a dotted path. Array members
// are written as name[].child.
func Flatten(s Shape) []FlatField {
	var out []FlatField
	flatten(s, "", &out)
	return out
}

func flatten(s Shape, prefix string, out *[]FlatField) {
	for _, f := range s.Fields {
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}
		switch {
		case f.Type == TypeObject && f.Object != nil && !f.Object.Empty():
			flatten(*f.Object, path, out)
		case f.Type == TypeArray && f.Object != nil && !f.Object.Empty():
			flatten(*f.Object, path+"[]", out)
		case f.Type == TypeArray:
			*out = append(*out, FlatField{Path: path + "[]", Type: f.Elem})
		default:
			*out = append(*out, FlatField{Path: path, Type: f.Type})
		}
	}
}
