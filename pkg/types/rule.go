package types

// RuleType selects how a ValidationRule is evaluated.
type RuleType string

const (
	RuleStatus    RuleType = "status"
	RuleValue     RuleType = "value"
	RuleExistence RuleType = "existence"
)

// Condition is the comparison operator of a rule.
type Condition string

const (
	CondEquals     Condition = "equals"
	CondNotEquals  Condition = "not_equals"
	CondContains   Condition = "contains"
	CondStartsWith Condition = "starts_with"
	CondEndsWith   Condition = "ends_with"
	CondIsEmpty    Condition = "is_empty"
	CondIsNotEmpty Condition = "is_not_empty"
	CondIsNull     Condition = "is_null"
	CondIsNotNull  Condition = "is_not_null"
)

// RuleResult is the computed verdict of a rule.
type RuleResult string

const (
	ResultPass RuleResult = "pass"
	ResultFail RuleResult = "fail"
)

// StatusField is the implicit field of status rules.
const StatusField = "status"

// ValidationRule is a single declarative assertion against a response.
// Result and Message are computed by the validation engine.
type ValidationRule struct {
	ID            string     `json:"id"`
	Type          RuleType   `json:"type" validate:"required,oneof=status value existence"`
	Field         string     `json:"field,omitempty" validate:"required_unless=Type status"`
	ExpectedValue string     `json:"expected_value,omitempty" validate:"required_if=Type value"`
	Condition     Condition  `json:"condition,omitempty" validate:"omitempty,oneof=equals not_equals contains starts_with ends_with is_empty is_not_empty is_null is_not_null"`
	Result        RuleResult `json:"result,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// Passed reports whether the rule was evaluated and passed.
func (r ValidationRule) Passed() bool {
	return r.Result == ResultPass
}
