package bddgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yourorg/apitester/pkg/types"
)

const invalidPathValue = "invalid"

// stepMethod is one generated step definition.
type stepMethod struct {
	keyword string
	text    string
	// pattern overrides the quoted text when the step captures parameters.
	pattern string
	name    string
	params  []string
	body    []string
}

func renderSteps(p *plan, pkg string) string {
	var methods []stepMethod
	seen := map[string]bool{}
	add := func(m stepMethod) {
		if seen[m.text] {
			return
		}
		seen[m.text] = true
		methods = append(methods, m)
	}

	imp := &imports{}
	add(requestMethod(p, imp))
	send := "response = service.send();"
	if p.request != nil {
		send = "response = service.send(request);"
	}
	add(stepMethod{keyword: "When", text: p.sendStep(), name: "sendRequest", body: []string{send}})

	for i, r := range p.ep.ValidationRules {
		add(ruleMethod(p, i+1, r))
	}
	if len(p.ep.ValidationRules) == 0 {
		add(stepMethod{keyword: "Then", text: p.receivedStep(), name: "verifyResponseReceived",
			body: []string{"assertThat(response, notNullValue());"}})
	}
	if p.response != nil {
		add(stepMethod{keyword: "Then", text: p.responseModelStep(), name: "verifyResponseModel",
			body: []string{"assertThat(service.readResponse(response), notNullValue());"}})
	}
	if p.errSchema != nil {
		add(invalidRequestMethod(p))
		add(stepMethod{keyword: "Then", text: p.statusStep(strconv.Itoa(p.errStatus), false), name: "verifyErrorStatus",
			body: []string{fmt.Sprintf("assertThat(response.getStatusCode(), equalTo(%d));", p.errStatus)}})
		if p.errShape != nil {
			body := []string{"assertThat(service.readError(response), notNullValue());"}
			for _, f := range p.errShape.Fields {
				body = append(body, fmt.Sprintf("assertThat(response.jsonPath().get(%s), notNullValue());", javaString(f.Name)))
			}
			add(stepMethod{keyword: "Then", text: p.errorModelStep(), name: "verifyErrorModel", body: body})
		}
	}

	b := &strings.Builder{}
	fmt.Fprintf(b, "package %s.steps;\n\n", pkg)
	if imp.typeRef {
		b.WriteString("import com.fasterxml.jackson.core.type.TypeReference;\n")
		b.WriteString("import com.fasterxml.jackson.databind.ObjectMapper;\n")
	}
	fmt.Fprintf(b, "import %s.service.%s;\n", pkg, p.serviceClass())
	if p.request != nil {
		fmt.Fprintf(b, "import %s.service.%s.%s;\n", pkg, p.serviceClass(), p.requestClass())
	}
	b.WriteString("import io.cucumber.java.en.Given;\n")
	b.WriteString("import io.cucumber.java.en.Then;\n")
	b.WriteString("import io.cucumber.java.en.When;\n")
	b.WriteString("import io.restassured.response.Response;\n")
	if imp.typeRef {
		b.WriteString("import java.io.IOException;\n")
	}
	if imp.list {
		b.WriteString("import java.util.List;\n")
	}
	if imp.mapType {
		b.WriteString("import java.util.Map;\n")
	}
	b.WriteString("\nimport static org.hamcrest.MatcherAssert.assertThat;\n")
	b.WriteString("import static org.hamcrest.Matchers.*;\n\n")

	fmt.Fprintf(b, "public class %s {\n\n", p.stepsClass())
	if imp.typeRef {
		b.WriteString("    private static final ObjectMapper MAPPER = new ObjectMapper();\n\n")
	}
	fmt.Fprintf(b, "    private final %s service = new %s();\n", p.serviceClass(), p.serviceClass())
	if p.request != nil {
		fmt.Fprintf(b, "    private %s request;\n", p.requestClass())
	}
	b.WriteString("    private Response response;\n")

	for _, m := range methods {
		annotation := stepPattern(m.text)
		if m.pattern != "" {
			annotation = javaString(m.pattern)
		}
		fmt.Fprintf(b, "\n    @%s(%s)\n", m.keyword, annotation)
		fmt.Fprintf(b, "    public void %s(%s) {\n", m.name, strings.Join(m.params, ", "))
		for _, line := range m.body {
			fmt.Fprintf(b, "        %s\n", line)
		}
		b.WriteString("    }\n")
	}

	if imp.typeRef {
		b.WriteString("\n    private static <T> T fromJson(String json, TypeReference<T> type) {\n")
		b.WriteString("        try {\n")
		b.WriteString("            return MAPPER.readValue(json, type);\n")
		b.WriteString("        } catch (IOException e) {\n")
		b.WriteString("            throw new IllegalArgumentException(\"invalid JSON value: \" + json, e);\n")
		b.WriteString("        }\n")
		b.WriteString("    }\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// requestMethod builds the Given step. Customizable fields arrive as
// String parameters; every other field is set from its captured literal.
func requestMethod(p *plan, imp *imports) stepMethod {
	m := stepMethod{keyword: "Given", text: p.requestStep(), name: "prepareRequest"}
	if p.request == nil {
		if p.bodyNote != "" {
			m.body = append(m.body, "// "+p.bodyNote)
		} else {
			m.body = append(m.body, "// no request body")
		}
		return m
	}

	m.name = "buildRequest"
	if p.hasCustom() {
		pattern := "^" + regexQuote(m.text) + "$"
		for _, pr := range p.params {
			if pr.custom {
				pattern = strings.Replace(pattern, regexQuote(fmt.Sprintf("\"<%s>\"", pr.key)), `"(.*)"`, 1)
			}
		}
		m.pattern = pattern
	}

	m.body = append(m.body, fmt.Sprintf("request = %s.builder()", p.requestClass()))
	for _, pr := range p.params {
		var expr string
		if pr.custom {
			m.params = append(m.params, "String "+pr.ident)
			expr = fromText(pr.ident, pr.javaType)
		} else {
			expr = literal(pr.value, pr.javaType)
		}
		if strings.HasPrefix(expr, "fromJson(") {
			imp.typeRef = true
			imp.note(pr.javaType)
		}
		m.body = append(m.body, fmt.Sprintf("        .%s(%s)", pr.ident, expr))
	}
	m.body = append(m.body, "        .build();")
	return m
}

// invalidRequestMethod builds the error scenario's Given: an empty request
// body and placeholder path variables.
func invalidRequestMethod(p *plan) stepMethod {
	m := stepMethod{keyword: "Given", text: p.invalidRequestStep(), name: "prepareInvalidRequest"}
	if p.request != nil {
		m.body = append(m.body, fmt.Sprintf("request = new %s();", p.requestClass()))
	}
	for _, name := range p.pathParams {
		m.body = append(m.body, fmt.Sprintf("service.pathParam(%s, %s);", javaString(name), javaString(invalidPathValue)))
	}
	if len(m.body) == 0 {
		m.body = append(m.body, "// the captured request has no input to replace")
	}
	return m
}

func ruleMethod(p *plan, n int, r types.ValidationRule) stepMethod {
	m := stepMethod{keyword: "Then", text: p.ruleStep(r)}
	switch r.Type {
	case types.RuleStatus:
		m.name = fmt.Sprintf("verifyStatus%d", n)
		expected := expectedStatus(r)
		actual := "response.getStatusCode()"
		want := expected
		if _, err := strconv.Atoi(expected); err != nil {
			actual = "String.valueOf(response.getStatusCode())"
			want = javaString(expected)
		}
		matcher := fmt.Sprintf("equalTo(%s)", want)
		if r.Condition == types.CondNotEquals {
			matcher = "not(" + matcher + ")"
		}
		m.body = []string{fmt.Sprintf("assertThat(%s, %s);", actual, matcher)}
	case types.RuleValue:
		m.name = fmt.Sprintf("verifyField%d", n)
		want := javaString(r.ExpectedValue)
		var matcher string
		switch r.Condition {
		case types.CondNotEquals:
			matcher = "not(equalTo(" + want + "))"
		case types.CondContains:
			matcher = "containsString(" + want + ")"
		case types.CondStartsWith:
			matcher = "startsWith(" + want + ")"
		case types.CondEndsWith:
			matcher = "endsWith(" + want + ")"
		default:
			matcher = "equalTo(" + want + ")"
		}
		m.body = []string{fmt.Sprintf("assertThat(response.jsonPath().getString(%s), %s);", javaString(r.Field), matcher)}
	case types.RuleExistence:
		m.name = fmt.Sprintf("verifyPresence%d", n)
		var matcher string
		switch r.Condition {
		case types.CondIsEmpty:
			matcher = "anyOf(nullValue(), emptyString())"
		case types.CondIsNull:
			matcher = "nullValue()"
		case types.CondIsNotNull:
			matcher = "notNullValue()"
		default:
			matcher = "allOf(notNullValue(), not(emptyString()))"
		}
		m.body = []string{fmt.Sprintf("assertThat(response.jsonPath().getString(%s), %s);", javaString(r.Field), matcher)}
	default:
		m.name = fmt.Sprintf("verifyRule%d", n)
		m.body = []string{fmt.Sprintf("// unsupported rule type %s", javaString(string(r.Type)))}
	}
	return m
}
