package bddgen

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/yourorg/apitester/internal/jsonvalue"
	"github.com/yourorg/apitester/internal/schema"
)

const indentUnit = "    "

var javaKeywords = map[string]bool{
	"abstract": true, "assert": true, "boolean": true, "break": true, "byte": true,
	"case": true, "catch": true, "char": true, "class": true, "const": true,
	"continue": true, "default": true, "do": true, "double": true, "else": true,
	"enum": true, "extends": true, "final": true, "finally": true, "float": true,
	"for": true, "goto": true, "if": true, "implements": true, "import": true,
	"instanceof": true, "int": true, "interface": true, "long": true, "native": true,
	"new": true, "package": true, "private": true, "protected": true, "public": true,
	"return": true, "short": true, "static": true, "strictfp": true, "super": true,
	"switch": true, "synchronized": true, "this": true, "throw": true, "throws": true,
	"transient": true, "try": true, "void": true, "volatile": true, "while": true,
	"true": true, "false": true, "null": true, "var": true, "record": true,
}

// javaIdent turns a JSON key into a camelCase Java identifier.
func javaIdent(key string) string {
	id := camel(key)
	if id == "" {
		id = "field"
	}
	if javaKeywords[id] {
		id += "Value"
	}
	return id
}

// javaString quotes s as a Java string literal.
func javaString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// regexQuote escapes the regular expression metacharacters of s.
func regexQuote(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stepPattern is the anchored annotation text that matches exactly text.
func stepPattern(text string) string {
	return javaString("^" + regexQuote(text) + "$")
}

// javaType maps a field to its Java declaration type. Object and array
// element classes are named by classFor.
func javaType(f schema.Field, classFor func(schema.Field) string) string {
	switch f.Type {
	case schema.TypeString:
		return "String"
	case schema.TypeInteger:
		return "Integer"
	case schema.TypeNumber:
		return "Double"
	case schema.TypeBoolean:
		return "Boolean"
	case schema.TypeObject:
		if f.Object != nil && !f.Object.Empty() {
			return classFor(f)
		}
		return "Map<String, Object>"
	case schema.TypeArray:
		return "List<" + elemType(f, classFor) + ">"
	}
	return "Object"
}

func elemType(f schema.Field, classFor func(schema.Field) string) string {
	switch f.Elem {
	case schema.TypeString:
		return "String"
	case schema.TypeInteger:
		return "Integer"
	case schema.TypeNumber:
		return "Double"
	case schema.TypeBoolean:
		return "Boolean"
	case schema.TypeObject:
		if f.Object != nil && !f.Object.Empty() {
			return classFor(f)
		}
		return "Map<String, Object>"
	}
	return "Object"
}

// literal renders v as a Java expression of type javaTyp.
func literal(v jsonvalue.Value, javaTyp string) string {
	switch v.Kind() {
	case jsonvalue.KindNull:
		return "null"
	case jsonvalue.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case jsonvalue.KindString:
		s, _ := v.AsString()
		return javaString(s)
	case jsonvalue.KindNumber:
		n, _ := v.AsNumber()
		switch javaTyp {
		case "Long":
			return strconv.FormatInt(int64(n), 10) + "L"
		case "Integer":
			return strconv.FormatInt(int64(n), 10)
		}
		s := jsonvalue.FormatNumber(n)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	}
	return fmt.Sprintf("fromJson(%s, new TypeReference<%s>() {})", javaString(v.String()), javaTyp)
}

// fromText converts the String parameter param into javaTyp.
func fromText(param, javaTyp string) string {
	switch javaTyp {
	case "String", "Object":
		return param
	case "Integer", "Long", "Double", "Boolean":
		return javaTyp + ".valueOf(" + param + ")"
	}
	return fmt.Sprintf("fromJson(%s, new TypeReference<%s>() {})", param, javaTyp)
}

func fitsInt32(v jsonvalue.Value) bool {
	n, ok := v.AsNumber()
	return !ok || (n >= math.MinInt32 && n <= math.MaxInt32)
}

// imports tracks the optional imports a rendered class needs.
type imports struct {
	list         bool
	mapType      bool
	jsonProperty bool
	typeRef      bool
}

func (im *imports) note(javaTyp string) {
	if strings.Contains(javaTyp, "List<") {
		im.list = true
	}
	if strings.Contains(javaTyp, "Map<") {
		im.mapType = true
	}
}

// classWriter renders Lombok model classes with nested static classes for
// object members.
type classWriter struct {
	b   *strings.Builder
	imp *imports
	// overrides replaces the Java type of top-level fields by JSON key.
	overrides map[string]string
}

func (w *classWriter) write(name string, sh schema.Shape, builder bool, static bool, depth int, outer []string) {
	ind := strings.Repeat(indentUnit, depth)
	fmt.Fprintf(w.b, "%s@Data\n", ind)
	if builder {
		fmt.Fprintf(w.b, "%s@Builder\n", ind)
	}
	fmt.Fprintf(w.b, "%s@NoArgsConstructor\n", ind)
	fmt.Fprintf(w.b, "%s@AllArgsConstructor\n", ind)
	mod := "public class"
	if static {
		mod = "public static class"
	}
	fmt.Fprintf(w.b, "%s%s %s {\n", ind, mod, name)

	scope := append(append([]string(nil), outer...), name)
	nested := nestedNames(sh, scope)
	fields := fieldNames(sh)
	for i, f := range sh.Fields {
		typ := javaType(f, func(schema.Field) string { return nested[i] })
		if o, ok := w.overrides[f.Name]; ok {
			typ = o
		}
		w.imp.note(typ)
		if fields[i] != f.Name {
			w.imp.jsonProperty = true
			fmt.Fprintf(w.b, "%s%s@JsonProperty(%s)\n", ind, indentUnit, javaString(f.Name))
		}
		fmt.Fprintf(w.b, "%s%sprivate %s %s;\n", ind, indentUnit, typ, fields[i])
	}
	saved := w.overrides
	w.overrides = nil
	for i, f := range sh.Fields {
		if nested[i] == "" {
			continue
		}
		w.b.WriteString("\n")
		w.write(nested[i], *f.Object, builder, true, depth+1, scope)
	}
	w.overrides = saved
	fmt.Fprintf(w.b, "%s}\n", ind)
}

// fieldNames assigns distinct Java identifiers to the fields of sh.
func fieldNames(sh schema.Shape) []string {
	seen := map[string]int{}
	out := make([]string, len(sh.Fields))
	for i, f := range sh.Fields {
		id := javaIdent(f.Name)
		seen[id]++
		if n := seen[id]; n > 1 {
			id += strconv.Itoa(n)
		}
		out[i] = id
	}
	return out
}

// nestedNames names the nested class of every object-bearing field. Names
// never repeat an enclosing class name or each other.
func nestedNames(sh schema.Shape, scope []string) []string {
	taken := map[string]bool{}
	for _, s := range scope {
		taken[s] = true
	}
	out := make([]string, len(sh.Fields))
	for i, f := range sh.Fields {
		if f.Object == nil || f.Object.Empty() {
			continue
		}
		if f.Type != schema.TypeObject && !(f.Type == schema.TypeArray && f.Elem == schema.TypeObject) {
			continue
		}
		base := Pascal(f.Name)
		if base == "" {
			base = "Field"
		}
		if f.Type == schema.TypeArray {
			base += "Item"
		}
		name := base
		for n := 2; taken[name]; n++ {
			name = base + strconv.Itoa(n)
		}
		taken[name] = true
		out[i] = name
	}
	return out
}
