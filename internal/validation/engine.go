// Package validation evaluates declarative rules against captured HTTP responses.
package validation

import (
	"fmt"
	"strings"

	"github.com/yourorg/apitester/internal/jsonvalue"
	"github.com/yourorg/apitester/pkg/types"
)

const defaultExpectedStatus = "200"

// body is the parsed response payload shared by every rule of one call.
type body struct {
	value   jsonvalue.Value
	present bool
	err     error
}

// Evaluate scores every rule against resp and returns evaluated copies in
// input order. Inputs are not modified. A rule that cannot be evaluated fails
// with an explanatory message; it never stops its siblings.
func Evaluate(resp *types.Response, rules []types.ValidationRule) []types.ValidationRule {
	out := make([]types.ValidationRule, len(rules))
	if resp == nil {
		for i, r := range rules {
			out[i] = withResult(r, false, "No response to validate")
		}
		return out
	}

	var b body
	if len(resp.Data) > 0 {
		b.value, b.err = jsonvalue.Parse(resp.Data)
		b.present = b.err == nil
	}
	for i, r := range rules {
		out[i] = evaluateRule(resp.Status, b, r)
	}
	return out
}

// EvaluateOne scores a single rule.
func EvaluateOne(resp *types.Response, rule types.ValidationRule) types.ValidationRule {
	return Evaluate(resp, []types.ValidationRule{rule})[0]
}

func evaluateRule(status int, b body, rule types.ValidationRule) (out types.ValidationRule) {
	defer func() {
		if r := recover(); r != nil {
			out = withResult(rule, false, fmt.Sprintf("validation error: %v", r))
		}
	}()

	switch rule.Type {
	case types.RuleStatus:
		return evalStatus(status, rule)
	case types.RuleValue, types.RuleExistence:
		if b.err != nil {
			return withResult(rule, false, fmt.Sprintf("cannot validate %s: %v", rule.Field, b.err))
		}
		actual, found := lookup(b, rule.Field)
		if rule.Type == types.RuleValue {
			return evalValue(actual, found, rule)
		}
		return evalExistence(actual, found, rule)
	}
	return withResult(rule, false, "Unknown validation type")
}

func lookup(b body, field string) (jsonvalue.Value, bool) {
	if !b.present {
		return jsonvalue.Value{}, false
	}
	return jsonvalue.Resolve(b.value, field)
}

func evalStatus(actual int, rule types.ValidationRule) types.ValidationRule {
	raw := rule.ExpectedValue
	if strings.TrimSpace(raw) == "" {
		raw = defaultExpectedStatus
	}
	expected, ok := parseLeadingInt(raw)

	if rule.Condition == types.CondNotEquals {
		if !ok || actual != expected {
			return withResult(rule, true, fmt.Sprintf("Status %d differs from %s as expected", actual, raw))
		}
		return withResult(rule, false, fmt.Sprintf("Status %d equals %d, expected a different status", actual, expected))
	}

	if ok && actual == expected {
		return withResult(rule, true, fmt.Sprintf("Status %d matches expected %d", actual, expected))
	}
	return withResult(rule, false, fmt.Sprintf("Status %d does not match expected %s", actual, raw))
}

func evalValue(actual jsonvalue.Value, found bool, rule types.ValidationRule) types.ValidationRule {
	cond := rule.Condition
	var passed bool
	switch cond {
	case types.CondNotEquals:
		passed = !looseEquals(actual, found, rule.ExpectedValue)
	case types.CondContains:
		passed = strings.Contains(stringify(actual, found), rule.ExpectedValue)
	case types.CondStartsWith:
		passed = strings.HasPrefix(stringify(actual, found), rule.ExpectedValue)
	case types.CondEndsWith:
		passed = strings.HasSuffix(stringify(actual, found), rule.ExpectedValue)
	default:
		cond = types.CondEquals
		passed = looseEquals(actual, found, rule.ExpectedValue)
	}

	if passed {
		return withResult(rule, true, fmt.Sprintf("%s %s %s", rule.Field, conditionVerb(cond), rule.ExpectedValue))
	}
	return withResult(rule, false, fmt.Sprintf("%s is %s, expected %s %s", rule.Field, jsonText(actual, found), conditionVerb(cond), rule.ExpectedValue))
}

func evalExistence(actual jsonvalue.Value, found bool, rule types.ValidationRule) types.ValidationRule {
	missingOrNull := !found || actual.IsNull()
	empty := missingOrNull
	if s, ok := actual.AsString(); found && ok && s == "" {
		empty = true
	}

	cond := rule.Condition
	var passed bool
	switch cond {
	case types.CondIsEmpty:
		passed = empty
	case types.CondIsNull:
		passed = missingOrNull
	case types.CondIsNotNull:
		passed = !missingOrNull
	default:
		cond = types.CondIsNotEmpty
		passed = !empty
	}

	phrase := existencePhrase(cond)
	if passed {
		return withResult(rule, true, fmt.Sprintf("%s %s", rule.Field, phrase))
	}
	return withResult(rule, false, fmt.Sprintf("%s is %s, expected it to be %s", rule.Field, jsonText(actual, found), strings.TrimPrefix(phrase, "is ")))
}

func withResult(rule types.ValidationRule, passed bool, msg string) types.ValidationRule {
	rule.Result = types.ResultFail
	if passed {
		rule.Result = types.ResultPass
	}
	rule.Message = msg
	return rule
}

func conditionVerb(c types.Condition) string {
	switch c {
	case types.CondNotEquals:
		return "does not equal"
	case types.CondContains:
		return "contains"
	case types.CondStartsWith:
		return "starts with"
	case types.CondEndsWith:
		return "ends with"
	}
	return "equals"
}

func existencePhrase(c types.Condition) string {
	switch c {
	case types.CondIsEmpty:
		return "is empty"
	case types.CondIsNull:
		return "is null"
	case types.CondIsNotNull:
		return "is not null"
	}
	return "is not empty"
}

func jsonText(v jsonvalue.Value, found bool) string {
	if !found {
		return "undefined"
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return v.String()
	}
	return string(b)
}
