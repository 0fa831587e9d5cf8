package validation

import (
	"fmt"

	"github.com/yourorg/apitester/pkg/types"
)

// DefaultStatusRule is the rule applied to endpoints that have none when
// default validation is enabled.
func DefaultStatusRule(endpointID string) types.ValidationRule {
	return types.ValidationRule{
		ID:            "default-" + endpointID,
		Type:          types.RuleStatus,
		Field:         types.StatusField,
		ExpectedValue: defaultExpectedStatus,
		Condition:     types.CondEquals,
	}
}

// RulesFor returns the endpoint's rules, or the default status rule when it
// has none and applyDefault is set.
func RulesFor(ep types.Endpoint, applyDefault bool) []types.ValidationRule {
	if len(ep.ValidationRules) > 0 || !applyDefault {
		return append([]types.ValidationRule(nil), ep.ValidationRules...)
	}
	return []types.ValidationRule{DefaultStatusRule(ep.ID)}
}

// Describe renders a rule as a short human label, e.g. `user.name == John`.
func Describe(rule types.ValidationRule) string {
	switch rule.Type {
	case types.RuleStatus:
		op := "=="
		if rule.Condition == types.CondNotEquals {
			op = "!="
		}
		expected := rule.ExpectedValue
		if expected == "" {
			expected = defaultExpectedStatus
		}
		return fmt.Sprintf("Status Code %s %s", op, expected)
	case types.RuleValue:
		op := "=="
		switch rule.Condition {
		case types.CondNotEquals:
			op = "!="
		case types.CondContains:
			op = "contains"
		case types.CondStartsWith:
			op = "starts with"
		case types.CondEndsWith:
			op = "ends with"
		}
		return fmt.Sprintf("%s %s %s", rule.Field, op, rule.ExpectedValue)
	case types.RuleExistence:
		phrase := "exists"
		switch rule.Condition {
		case types.CondIsEmpty, types.CondIsNotEmpty, types.CondIsNull, types.CondIsNotNull:
			phrase = existencePhrase(rule.Condition)
		}
		return fmt.Sprintf("%s %s", rule.Field, phrase)
	}
	return "Unknown rule"
}
