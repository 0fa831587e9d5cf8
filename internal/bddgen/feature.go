package bddgen

import (
	"fmt"
	"strings"

	"github.com/yourorg/apitester/pkg/types"
)

var stepEscaper = strings.NewReplacer("\r", `\r`, "\n", `\n`)

// requestStep is the Given text that prepares the request.
func (p *plan) requestStep() string {
	switch {
	case p.request != nil && p.hasCustom():
		parts := make([]string, 0, len(p.params))
		for _, pr := range p.params {
			if pr.custom {
				parts = append(parts, fmt.Sprintf("%s \"<%s>\"", pr.key, pr.key))
			}
		}
		return fmt.Sprintf("the %s request is built with %s", p.ident, strings.Join(parts, ", "))
	case p.request != nil:
		return fmt.Sprintf("the %s request is built with default values", p.ident)
	case p.rawBody != "":
		return fmt.Sprintf("the %s request uses the captured body", p.ident)
	}
	return fmt.Sprintf("the %s request is prepared", p.ident)
}

// invalidRequestStep is the Given text of the error scenario.
func (p *plan) invalidRequestStep() string {
	return fmt.Sprintf("the %s request is prepared with invalid input", p.ident)
}

func (p *plan) sendStep() string {
	return fmt.Sprintf("the user sends the %s request", p.ident)
}

func (p *plan) statusStep(code string, negate bool) string {
	if negate {
		return fmt.Sprintf("the %s response status should not be %s", p.ident, code)
	}
	return fmt.Sprintf("the %s response status should be %s", p.ident, code)
}

func (p *plan) receivedStep() string {
	return fmt.Sprintf("the %s response should be received", p.ident)
}

func (p *plan) responseModelStep() string {
	return fmt.Sprintf("the %s response should match the response model", p.ident)
}

func (p *plan) errorModelStep() string {
	return fmt.Sprintf("the %s response should match the error model", p.ident)
}

// ruleStep is the Then text of one validation rule.
func (p *plan) ruleStep(r types.ValidationRule) string {
	var text string
	switch r.Type {
	case types.RuleStatus:
		text = p.statusStep(expectedStatus(r), r.Condition == types.CondNotEquals)
	case types.RuleValue:
		text = fmt.Sprintf("the %s response field \"%s\" should %s \"%s\"", p.ident, r.Field, valueVerb(r.Condition), r.ExpectedValue)
	case types.RuleExistence:
		text = fmt.Sprintf("the %s response field \"%s\" should %s", p.ident, r.Field, existenceVerb(r.Condition))
	default:
		text = fmt.Sprintf("the %s response should satisfy rule \"%s\"", p.ident, r.ID)
	}
	return stepEscaper.Replace(text)
}

func expectedStatus(r types.ValidationRule) string {
	if s := strings.TrimSpace(r.ExpectedValue); s != "" {
		return s
	}
	return "200"
}

func valueVerb(c types.Condition) string {
	switch c {
	case types.CondNotEquals:
		return "not equal"
	case types.CondContains:
		return "contain"
	case types.CondStartsWith:
		return "start with"
	case types.CondEndsWith:
		return "end with"
	}
	return "equal"
}

func existenceVerb(c types.Condition) string {
	switch c {
	case types.CondIsEmpty:
		return "be empty"
	case types.CondIsNull:
		return "be null"
	case types.CondIsNotNull:
		return "not be null"
	}
	return "not be empty"
}

// successThens lists the Then texts of the success scenario in order.
func (p *plan) successThens() []string {
	var out []string
	for _, r := range p.ep.ValidationRules {
		out = append(out, p.ruleStep(r))
	}
	if len(out) == 0 {
		out = append(out, p.receivedStep())
	}
	if p.response != nil {
		out = append(out, p.responseModelStep())
	}
	return out
}

func (p *plan) errorThens() []string {
	out := []string{p.statusStep(fmt.Sprint(p.errStatus), false)}
	if p.errShape != nil {
		out = append(out, p.errorModelStep())
	}
	return out
}

func renderFeature(p *plan) string {
	b := &strings.Builder{}
	title := strings.TrimSpace(p.ep.Name)
	if title == "" {
		title = p.method + " " + p.path
	}
	fmt.Fprintf(b, "@%s\n", p.ident)
	fmt.Fprintf(b, "Feature: %s\n", stepEscaper.Replace(title))
	fmt.Fprintf(b, "  %s %s\n", p.method, p.path)
	for _, line := range strings.Split(strings.TrimSpace(p.ep.Description), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			fmt.Fprintf(b, "  %s\n", line)
		}
	}
	if p.bodyNote != "" {
		fmt.Fprintf(b, "  # %s\n", p.bodyNote)
	}

	examples := p.examplesTable()
	writeScenario(b, p, fmt.Sprintf("%s returns a successful response", p.ident), p.requestStep(), p.successThens(), examples)
	if p.errSchema != nil {
		if p.errNote != "" {
			fmt.Fprintf(b, "\n  # %s", p.errNote)
		}
		writeScenario(b, p, fmt.Sprintf("%s returns an error response", p.ident), p.invalidRequestStep(), p.errorThens(), nil)
	}
	return b.String()
}

func writeScenario(b *strings.Builder, p *plan, name, given string, thens []string, examples [][]string) {
	kind := "Scenario"
	if len(examples) > 0 {
		kind = "Scenario Outline"
	}
	fmt.Fprintf(b, "\n  %s: %s\n", kind, name)
	fmt.Fprintf(b, "    Given %s\n", given)
	fmt.Fprintf(b, "    When %s\n", p.sendStep())
	for i, t := range thens {
		kw := "And"
		if i == 0 {
			kw = "Then"
		}
		fmt.Fprintf(b, "    %s %s\n", kw, t)
	}
	if len(examples) == 0 {
		return
	}
	b.WriteString("\n    Examples:\n")
	writeTable(b, examples, "      ")
}

// examplesTable holds a header of the customizable fields and one row of
// their captured values; nil when there are none.
func (p *plan) examplesTable() [][]string {
	if p.request == nil || !p.hasCustom() {
		return nil
	}
	var header, row []string
	for _, pr := range p.params {
		if !pr.custom {
			continue
		}
		header = append(header, pr.key)
		cell := pr.value.String()
		if pr.value.IsNull() {
			cell = ""
		}
		row = append(row, cell)
	}
	return [][]string{header, row}
}

var cellEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`, "\n", `\n`)

func writeTable(b *strings.Builder, rows [][]string, indent string) {
	widths := make([]int, len(rows[0]))
	escaped := make([][]string, len(rows))
	for i, row := range rows {
		escaped[i] = make([]string, len(row))
		for j, cell := range row {
			c := cellEscaper.Replace(cell)
			escaped[i][j] = c
			if n := len([]rune(c)); n > widths[j] {
				widths[j] = n
			}
		}
	}
	for _, row := range escaped {
		b.WriteString(indent + "|")
		for j, cell := range row {
			fmt.Fprintf(b, " %s%s |", cell, strings.Repeat(" ", widths[j]-len([]rune(cell))))
		}
		b.WriteString("\n")
	}
}
