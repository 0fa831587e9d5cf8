package validation

import (
	"math"
	"strconv"
	"strings"

	"github.com/yourorg/apitester/internal/jsonvalue"
)

// looseEquals compares a resolved value with the text of an expected value
// using loose (coercing) equality: "200" matches 200 and "0" matches false.
// The literal texts "true" and "false" are compared as booleans.
func looseEquals(actual jsonvalue.Value, found bool, expected string) bool {
	if !found || actual.IsNull() {
		return false
	}

	switch expected {
	case "true", "false":
		want := 0.0
		if expected == "true" {
			want = 1
		}
		if b, ok := actual.AsBool(); ok {
			return b == (expected == "true")
		}
		return toNumber(actual) == want
	}

	switch actual.Kind() {
	case jsonvalue.KindString:
		s, _ := actual.AsString()
		return s == expected
	case jsonvalue.KindNumber:
		n, _ := actual.AsNumber()
		return n == stringToNumber(expected)
	case jsonvalue.KindBool:
		return toNumber(actual) == stringToNumber(expected)
	}
	return stringify(actual, true) == expected
}

// stringify renders a value as string concatenation would: arrays join their
// elements with commas, objects collapse to a fixed marker.
func stringify(v jsonvalue.Value, found bool) string {
	if !found {
		return "undefined"
	}
	switch v.Kind() {
	case jsonvalue.KindArray:
		parts := make([]string, 0, v.Len())
		for _, e := range v.Elems() {
			if e.IsNull() {
				parts = append(parts, "")
				continue
			}
			parts = append(parts, stringify(e, true))
		}
		return strings.Join(parts, ",")
	case jsonvalue.KindObject:
		return "[object Object]"
	}
	return v.String()
}

func toNumber(v jsonvalue.Value) float64 {
	switch v.Kind() {
	case jsonvalue.KindNumber:
		n, _ := v.AsNumber()
		return n
	case jsonvalue.KindBool:
		if b, _ := v.AsBool(); b {
			return 1
		}
		return 0
	case jsonvalue.KindNull:
		return 0
	}
	return stringToNumber(stringify(v, true))
}

var radixPrefix = map[byte]int{'x': 16, 'X': 16, 'o': 8, 'O': 8, 'b': 2, 'B': 2}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' {
		if base, ok := radixPrefix[s[1]]; ok {
			if n, err := strconv.ParseUint(s[2:], base, 64); err == nil {
				return float64(n)
			}
			return math.NaN()
		}
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || strings.ContainsAny(s, "_pP") || strings.EqualFold(s, "nan") || strings.Contains(strings.ToLower(s), "inf") {
		return math.NaN()
	}
	return n
}

// parseLeadingInt reads an optional sign and leading decimal digits, ignoring
// anything after them ("200 OK" reads as 200).
func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
