package jsonvalue

import (
	"sort"
	"strconv"
)

// PrimitiveType is the type label of an extracted value.
type PrimitiveType string

const (
	TypeString  PrimitiveType = "string"
	TypeNumber  PrimitiveType = "number"
	TypeBoolean PrimitiveType = "boolean"
)

var typePriority = map[PrimitiveType]int{
	TypeString:  0,
	TypeNumber:  1,
	TypeBoolean: 2,
}

// ExtractedValue is one distinct primitive found in a document.
type ExtractedValue struct {
	Value string        `json:"value"`
	Path  string        `json:"path"`
	Type  PrimitiveType `json:"type"`
	Count int           `json:"count"`
}

// Extract walks root and returns every distinct primitive (by rendered
// value), the path it was first seen at, and how often it occurs. Nulls are
// skipped. The result is ordered strings first, then numbers, then booleans,
// and by value within a type.
func Extract(root Value) []ExtractedValue {
	byValue := make(map[string]int)
	var out []ExtractedValue

	record := func(v Value, path string) {
		s := v.String()
		if i, ok := byValue[s]; ok {
			out[i].Count++
			return
		}
		byValue[s] = len(out)
		out = append(out, ExtractedValue{Value: s, Path: path, Type: primitiveType(v), Count: 1})
	}

	var walk func(v Value, path string)
	walk = func(v Value, path string) {
		switch v.Kind() {
		case KindObject:
			for _, f := range v.Fields() {
				p := f.Key
				if path != "" {
					p = path + "." + f.Key
				}
				walk(f.Value, p)
			}
		case KindArray:
			for i, e := range v.Elems() {
				walk(e, path+"["+strconv.Itoa(i)+"]")
			}
		case KindString, KindNumber, KindBool:
			record(v, path)
		}
	}

	if root.Kind() != KindObject && root.Kind() != KindArray {
		return []ExtractedValue{}
	}
	walk(root, "")

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := typePriority[out[i].Type], typePriority[out[j].Type]
		if pi != pj {
			return pi < pj
		}
		return out[i].Value < out[j].Value
	})
	if out == nil {
		out = []ExtractedValue{}
	}
	return out
}

func primitiveType(v Value) PrimitiveType {
	switch v.Kind() {
	case KindNumber:
		return TypeNumber
	case KindBool:
		return TypeBoolean
	}
	return TypeString
}
