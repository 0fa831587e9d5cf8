package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/apitester/pkg/types"
)

func response(status int, data string) *types.Response {
	return &types.Response{Status: status, Data: json.RawMessage(data)}
}

func TestEvaluateStatusDefaultsToEquals(t *testing.T) {
	resp := response(200, `{"success":true}`)

	got := Evaluate(resp, []types.ValidationRule{{ID: "r1", Type: types.RuleStatus, ExpectedValue: "200"}})

	require.Len(t, got, 1)
	assert.Equal(t, types.ResultPass, got[0].Result)
	assert.Contains(t, got[0].Message, "200")
}

func TestEvaluateStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected string
		cond     types.Condition
		want     types.RuleResult
	}{
		{"equal", 200, "200", "", types.ResultPass},
		{"mismatch", 200, "404", "", types.ResultFail},
		{"not equals passes", 404, "200", types.CondNotEquals, types.ResultPass},
		{"not equals fails", 200, "200", types.CondNotEquals, types.ResultFail},
		{"blank expected means 200", 200, "", "", types.ResultPass},
		{"leading digits", 201, "201 Created", types.CondEquals, types.ResultPass},
		{"non numeric", 200, "abc", types.CondEquals, types.ResultFail},
		{"unknown condition is equals", 500, "500", types.CondContains, types.ResultPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateOne(response(tt.status, `{}`), types.ValidationRule{Type: types.RuleStatus, ExpectedValue: tt.expected, Condition: tt.cond})
			assert.Equal(t, tt.want, got.Result, got.Message)
		})
	}
}

func TestEvaluateStatusMessageNamesBothValues(t *testing.T) {
	got := EvaluateOne(response(500, ``), types.ValidationRule{Type: types.RuleStatus, ExpectedValue: "200"})
	assert.Equal(t, types.ResultFail, got.Result)
	assert.Contains(t, got.Message, "500")
	assert.Contains(t, got.Message, "200")
}

func TestEvaluateValue(t *testing.T) {
	resp := response(200, `{"user":{"name":"John Smith","age":30,"active":true,"zero":0,"tags":["a","b"],"meta":{"k":"v"},"none":null,"flag":"true","tiny":1e-7}}`)

	tests := []struct {
		name     string
		field    string
		expected string
		cond     types.Condition
		want     types.RuleResult
	}{
		{"string equals", "user.name", "John Smith", "", types.ResultPass},
		{"numeric text equals number", "user.age", "30", types.CondEquals, types.ResultPass},
		{"numeric text with spaces", "user.age", " 30 ", types.CondEquals, types.ResultPass},
		{"boolean literal", "user.active", "true", types.CondEquals, types.ResultPass},
		{"boolean literal mismatch", "user.active", "false", types.CondEquals, types.ResultFail},
		{"zero loosely equals false", "user.zero", "false", types.CondEquals, types.ResultPass},
		{"zero loosely equals text 0", "user.zero", "0", types.CondEquals, types.ResultPass},
		{"string true is not boolean true", "user.flag", "true", types.CondEquals, types.ResultFail},
		{"array joins", "user.tags", "a,b", types.CondEquals, types.ResultPass},
		{"object marker", "user.meta", "[object Object]", types.CondEquals, types.ResultPass},
		{"null never equals", "user.none", "null", types.CondEquals, types.ResultFail},
		{"missing never equals", "user.missing", "undefined", types.CondEquals, types.ResultFail},
		{"not equals", "user.name", "Jane", types.CondNotEquals, types.ResultPass},
		{"not equals missing", "user.missing", "x", types.CondNotEquals, types.ResultPass},
		{"contains", "user.name", "ohn S", types.CondContains, types.ResultPass},
		{"contains number", "user.age", "3", types.CondContains, types.ResultPass},
		{"starts with", "user.name", "John", types.CondStartsWith, types.ResultPass},
		{"ends with", "user.name", "Smith", types.CondEndsWith, types.ResultPass},
		{"ends with fails", "user.name", "John", types.CondEndsWith, types.ResultFail},
		{"unknown condition is equals", "user.name", "John Smith", types.CondIsNull, types.ResultPass},
		{"array path unsupported", "user.tags.0", "a", types.CondEquals, types.ResultFail},
		{"zero equals binary text", "user.zero", "0b0", types.CondEquals, types.ResultPass},
		{"zero equals octal text", "user.zero", "0o0", types.CondEquals, types.ResultPass},
		{"bad binary digits", "user.zero", "0b2", types.CondEquals, types.ResultFail},
		{"small number uses short exponent", "user.tiny", "1e-7", types.CondContains, types.ResultPass},
		{"small number ends with exponent", "user.tiny", "e-7", types.CondEndsWith, types.ResultPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateOne(resp, types.ValidationRule{Type: types.RuleValue, Field: tt.field, ExpectedValue: tt.expected, Condition: tt.cond})
			assert.Equal(t, tt.want, got.Result, got.Message)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestEvaluateValueFailureMessage(t *testing.T) {
	got := EvaluateOne(response(200, `{"a":{"b":5}}`), types.ValidationRule{Type: types.RuleValue, Field: "a.b", ExpectedValue: "6"})
	assert.Equal(t, types.ResultFail, got.Result)
	assert.Equal(t, "a.b is 5, expected equals 6", got.Message)
}

func TestEvaluateExistence(t *testing.T) {
	resp := response(200, `{"a":{"b":null,"c":"","d":"x","z":0}}`)

	tests := []struct {
		field string
		cond  types.Condition
		want  types.RuleResult
	}{
		{"a.b", types.CondIsNull, types.ResultPass},
		{"a.c", types.CondIsNotEmpty, types.ResultFail},
		{"a.d", types.CondIsNotEmpty, types.ResultPass},
		{"a.e", types.CondIsNotNull, types.ResultFail},
		{"a.e", types.CondIsNull, types.ResultPass},
		{"a.e", types.CondIsEmpty, types.ResultPass},
		{"a.b", types.CondIsEmpty, types.ResultPass},
		{"a.c", types.CondIsNull, types.ResultFail},
		{"a.z", types.CondIsNotEmpty, types.ResultPass},
		{"a.d", "", types.ResultPass},
		{"a.c", "", types.ResultFail},
		{"a.d", types.CondContains, types.ResultPass},
	}
	for _, tt := range tests {
		t.Run(tt.field+"/"+string(tt.cond), func(t *testing.T) {
			got := EvaluateOne(resp, types.ValidationRule{Type: types.RuleExistence, Field: tt.field, Condition: tt.cond})
			assert.Equal(t, tt.want, got.Result, got.Message)
		})
	}
}

func TestEvaluateKeepsOrderAndDoesNotMutate(t *testing.T) {
	rules := []types.ValidationRule{
		{ID: "1", Type: types.RuleStatus, ExpectedValue: "404"},
		{ID: "2", Type: "bogus"},
		{ID: "3", Type: types.RuleExistence, Field: "ok", Condition: types.CondIsNotNull},
	}
	got := Evaluate(response(200, `{"ok":true}`), rules)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, types.ResultFail, got[0].Result)
	assert.Equal(t, types.ResultFail, got[1].Result)
	assert.Equal(t, "Unknown validation type", got[1].Message)
	assert.Equal(t, types.ResultPass, got[2].Result)
	for _, r := range rules {
		assert.Empty(t, r.Result)
		assert.Empty(t, r.Message)
	}
}

func TestEvaluateMalformedBodyFailsOnlyBodyRules(t *testing.T) {
	rules := []types.ValidationRule{
		{Type: types.RuleStatus, ExpectedValue: "200"},
		{Type: types.RuleValue, Field: "a", ExpectedValue: "1"},
	}
	got := Evaluate(response(200, `{not json`), rules)

	assert.Equal(t, types.ResultPass, got[0].Result)
	assert.Equal(t, types.ResultFail, got[1].Result)
	assert.Contains(t, got[1].Message, "cannot validate a")
}

func TestEvaluateNilResponse(t *testing.T) {
	got := Evaluate(nil, []types.ValidationRule{{Type: types.RuleStatus}})
	assert.Equal(t, types.ResultFail, got[0].Result)
	assert.Equal(t, "No response to validate", got[0].Message)
}

func TestEvaluateEmptyBody(t *testing.T) {
	got := EvaluateOne(&types.Response{Status: 204}, types.ValidationRule{Type: types.RuleExistence, Field: "id", Condition: types.CondIsEmpty})
	assert.Equal(t, types.ResultPass, got.Result)
}

func TestRulesForAppliesDefault(t *testing.T) {
	ep := types.Endpoint{ID: "ep1"}

	assert.Empty(t, RulesFor(ep, false))

	rules := RulesFor(ep, true)
	require.Len(t, rules, 1)
	assert.Equal(t, "default-ep1", rules[0].ID)
	assert.Equal(t, types.RuleStatus, rules[0].Type)

	ep.ValidationRules = []types.ValidationRule{{ID: "x", Type: types.RuleExistence, Field: "id"}}
	assert.Equal(t, ep.ValidationRules, RulesFor(ep, true))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Status Code == 200", Describe(types.ValidationRule{Type: types.RuleStatus}))
	assert.Equal(t, "Status Code != 500", Describe(types.ValidationRule{Type: types.RuleStatus, ExpectedValue: "500", Condition: types.CondNotEquals}))
	assert.Equal(t, "user.name == John", Describe(types.ValidationRule{Type: types.RuleValue, Field: "user.name", ExpectedValue: "John"}))
	assert.Equal(t, "user.name starts with J", Describe(types.ValidationRule{Type: types.RuleValue, Field: "user.name", ExpectedValue: "J", Condition: types.CondStartsWith}))
	assert.Equal(t, "data.id is not null", Describe(types.ValidationRule{Type: types.RuleExistence, Field: "data.id", Condition: types.CondIsNotNull}))
	assert.Equal(t, "data.id exists", Describe(types.ValidationRule{Type: types.RuleExistence, Field: "data.id"}))
}
