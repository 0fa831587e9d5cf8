package jsonvalue

import "strings"

// Resolve follows a dotted path ("a.b.c") through nested objects. Empty
// segments are skipped, so the empty path resolves to root. Arrays are not
// indexable by path: "items.0" does not match. The second result is false
// whenever a step misses.
func Resolve(root Value, path string) (Value, bool) {
	cur := root
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			continue
		}
		next, ok := cur.Get(seg)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// FieldPaths lists every object key path in root, parents before children.
// Arrays are leaves.
func FieldPaths(root Value) []string {
	var out []string
	var walk func(v Value, prefix string)
	walk = func(v Value, prefix string) {
		for _, f := range v.Fields() {
			p := f.Key
			if prefix != "" {
				p = prefix + "." + f.Key
			}
			out = append(out, p)
			if f.Value.Kind() == KindObject {
				walk(f.Value, p)
			}
		}
	}
	walk(root, "")
	return out
}
