package bddgen

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/yourorg/apitester/pkg/types"
)

// Identifier returns the canonical snake_case name that seeds every artifact
// of ep. An explicit endpoint name wins; otherwise the method and URL path
// are lowercased and runs of other characters collapse to underscores.
func Identifier(ep types.Endpoint) string {
	if name := strings.TrimSpace(ep.EndpointName); name != "" {
		if id := strings.Join(lowerAll(splitWords(name)), "_"); id != "" {
			return id
		}
	}
	_, path := splitURL(ep.URL)
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	id := collapse(strings.ToLower(ep.Method + " " + path))
	if id == "" {
		return "endpoint"
	}
	return id
}

// collapse replaces every run of characters outside [a-z0-9] with one
// underscore and trims underscores at both ends.
func collapse(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// splitWords breaks s into words on non-alphanumerics and lower-to-upper
// case transitions: "getUserByID" gives get, User, By, ID.
func splitWords(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	rs := []rune(s)
	for i, r := range rs {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(cur) > 0 {
			prev := rs[i-1]
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

func lowerAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}

// Pascal joins the words of s with each word capitalized.
func Pascal(s string) string {
	var b strings.Builder
	for _, w := range splitWords(s) {
		rs := []rune(strings.ToLower(w))
		rs[0] = unicode.ToUpper(rs[0])
		b.WriteString(string(rs))
	}
	out := b.String()
	if out != "" && unicode.IsDigit([]rune(out)[0]) {
		out = "N" + out
	}
	return out
}

func camel(s string) string {
	p := Pascal(s)
	if p == "" {
		return p
	}
	rs := []rune(p)
	rs[0] = unicode.ToLower(rs[0])
	return string(rs)
}

// splitURL separates a base (scheme and host, or a leading {{variable}})
// from the path and query of raw.
func splitURL(raw string) (base, path string) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{{") {
		if end := strings.Index(raw, "}}"); end > 0 {
			base, raw = raw[:end+2], raw[end+2:]
		}
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		base = u.Scheme + "://" + u.Host
		path = u.Path
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
		return base, orRoot(path)
	}
	if i := strings.IndexAny(raw, "#"); i >= 0 {
		raw = raw[:i]
	}
	return base, orRoot(raw)
}

func orRoot(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

var templateVar = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}|\{([^{}]+)\}`)

// pathTemplate rewrites {{x}} and :x segments into the {x} form RestAssured
// resolves, and returns the parameter names in order of first appearance.
func pathTemplate(path string) (string, []string) {
	query := ""
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, query = path[:i], path[i:]
	}
	var names []string
	seen := map[string]bool{}
	rewrite := func(s string) string {
		return templateVar.ReplaceAllStringFunc(s, func(m string) string {
			sub := templateVar.FindStringSubmatch(m)
			name := strings.TrimSpace(sub[1] + sub[2])
			if name == "" {
				return m
			}
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
			return "{" + name + "}"
		})
	}
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		if len(seg) > 1 && seg[0] == ':' {
			seg = "{" + seg[1:] + "}"
		}
		segs[i] = rewrite(seg)
	}
	return strings.Join(segs, "/") + rewrite(query), names
}

var javaPackageSegment = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

var javaPackageKeywords = map[string]bool{
	"abstract": true, "assert": true, "boolean": true, "break": true, "byte": true, "case": true,
	"catch": true, "char": true, "class": true, "const": true, "continue": true, "default": true,
	"do": true, "double": true, "else": true, "enum": true, "extends": true, "false": true,
	"final": true, "finally": true, "float": true, "for": true, "goto": true, "if": true,
	"implements": true, "import": true, "instanceof": true, "int": true, "interface": true,
	"long": true, "native": true, "new": true, "null": true, "package": true, "private": true,
	"protected": true, "public": true, "return": true, "short": true, "static": true,
	"strictfp": true, "super": true, "switch": true, "synchronized": true, "this": true,
	"throw": true, "throws": true, "transient": true, "true": true, "try": true, "void": true,
	"volatile": true, "while": true, "_": true,
}

// NormalizePackage trims s and checks that it is a dotted Java package name.
// A blank s yields DefaultBasePackage.
func NormalizePackage(s string) (string, error) {
	pkg := strings.Trim(strings.TrimSpace(s), ".")
	if pkg == "" {
		return DefaultBasePackage, nil
	}
	for _, part := range strings.Split(pkg, ".") {
		if !javaPackageSegment.MatchString(part) || javaPackageKeywords[part] {
			return "", fmt.Errorf("invalid java package %q: segment %q", s, part)
		}
	}
	return pkg, nil
}

// resourceName is the last literal path segment, skipping templated ones
// such as {id}, :id and {{var}}.
func resourceName(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segs := strings.Split(path, "/")
	for i := len(segs) - 1; i >= 0; i-- {
		s := segs[i]
		if s == "" || strings.HasPrefix(s, ":") || strings.Contains(s, "{") {
			continue
		}
		return s
	}
	return ""
}

// uniqueNames hands out names, suffixing repeats with _2, _3 and so on
// until the derived Pascal form is unused as well.
type uniqueNames struct {
	idents  map[string]bool
	pascals map[string]bool
}

func newUniqueNames() *uniqueNames {
	return &uniqueNames{idents: map[string]bool{}, pascals: map[string]bool{}}
}

func (u *uniqueNames) claim(ident string) (string, string) {
	candidate := ident
	for n := 2; ; n++ {
		p := Pascal(candidate)
		if p == "" {
			p = "Endpoint"
		}
		if !u.idents[candidate] && !u.pascals[p] {
			u.idents[candidate] = true
			u.pascals[p] = true
			return candidate, p
		}
		candidate = ident + "_" + strconv.Itoa(n)
	}
}
