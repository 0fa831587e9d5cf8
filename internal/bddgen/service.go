package bddgen

import (
	"fmt"
	"sort"
	"strings"
)

// defaultPathValue fills path variables no system property overrides.
const defaultPathValue = "1"

func renderService(p *plan, pkg string) string {
	imp := &imports{}
	models := &strings.Builder{}
	cw := &classWriter{b: models, imp: imp}
	outer := []string{p.serviceClass()}
	if p.request != nil {
		models.WriteString("\n")
		cw.overrides = p.requestTypes
		cw.write(p.requestClass(), *p.request, true, true, 1, outer)
		cw.overrides = nil
	}
	if p.response != nil {
		models.WriteString("\n")
		cw.write(p.responseClass(), *p.response, false, true, 1, outer)
	}
	if p.errShape != nil {
		models.WriteString("\n")
		cw.write(p.errorClass(), *p.errShape, false, true, 1, outer)
	}
	hasModels := models.Len() > 0
	if p.response != nil && p.rootArray {
		imp.list = true
	}

	b := &strings.Builder{}
	fmt.Fprintf(b, "package %s.service;\n\n", pkg)
	if imp.jsonProperty {
		b.WriteString("import com.fasterxml.jackson.annotation.JsonProperty;\n")
	}
	b.WriteString("import io.restassured.RestAssured;\n")
	if p.request != nil || p.rawBody != "" {
		b.WriteString("import io.restassured.http.ContentType;\n")
	}
	b.WriteString("import io.restassured.response.Response;\n")
	b.WriteString("import io.restassured.specification.RequestSpecification;\n")
	b.WriteString("import java.util.LinkedHashMap;\n")
	if imp.list {
		b.WriteString("import java.util.List;\n")
	}
	b.WriteString("import java.util.Map;\n")
	if hasModels {
		b.WriteString("import lombok.AllArgsConstructor;\n")
		if p.request != nil {
			b.WriteString("import lombok.Builder;\n")
		}
		b.WriteString("import lombok.Data;\n")
		b.WriteString("import lombok.NoArgsConstructor;\n")
	}

	base := p.base
	if strings.HasPrefix(base, "{{") {
		base = ""
	}
	fmt.Fprintf(b, "\npublic class %s {\n\n", p.serviceClass())
	fmt.Fprintf(b, "    private static final String BASE_URL = System.getProperty(\"api.baseUrl\", %s);\n", javaString(base))
	fmt.Fprintf(b, "    private static final String PATH = %s;\n", javaString(p.template))
	if p.request == nil && p.rawBody != "" {
		fmt.Fprintf(b, "    private static final String CAPTURED_BODY = %s;\n", javaString(p.rawBody))
	}
	b.WriteString("\n    private final Map<String, String> headers = new LinkedHashMap<>();\n")
	if len(p.pathParams) > 0 {
		b.WriteString("    private final Map<String, String> pathParams = new LinkedHashMap<>();\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(b, "    public %s() {\n", p.serviceClass())
	keys := make([]string, 0, len(p.ep.Headers))
	for k := range p.ep.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "        headers.put(%s, %s);\n", javaString(k), javaString(p.ep.Headers[k]))
	}
	for _, name := range p.pathParams {
		fmt.Fprintf(b, "        pathParam(%s, System.getProperty(%s, %s));\n",
			javaString(name), javaString("api.path."+name), javaString(defaultPathValue))
	}
	b.WriteString("    }\n\n")

	if len(p.pathParams) > 0 {
		fmt.Fprintf(b, "    public %s pathParam(String name, String value) {\n", p.serviceClass())
		b.WriteString("        pathParams.put(name, value);\n")
		b.WriteString("        return this;\n")
		b.WriteString("    }\n\n")
	}

	sendParams := ""
	if p.request != nil {
		sendParams = p.requestClass() + " body"
	}
	fmt.Fprintf(b, "    public Response send(%s) {\n", sendParams)
	b.WriteString("        RequestSpecification spec = RestAssured.given()\n")
	b.WriteString("                .baseUri(BASE_URL)\n")
	if len(p.pathParams) > 0 {
		b.WriteString("                .headers(headers)\n")
		b.WriteString("                .pathParams(pathParams);\n")
	} else {
		b.WriteString("                .headers(headers);\n")
	}
	switch {
	case p.request != nil:
		b.WriteString("        if (body != null) {\n")
		b.WriteString("            spec = spec.contentType(ContentType.JSON).body(body);\n")
		b.WriteString("        }\n")
	case p.rawBody != "":
		b.WriteString("        spec = spec.contentType(ContentType.JSON).body(CAPTURED_BODY);\n")
	}
	fmt.Fprintf(b, "        return spec.request(%s, PATH);\n", javaString(p.method))
	b.WriteString("    }\n")

	if p.response != nil {
		if p.rootArray {
			fmt.Fprintf(b, "\n    public List<%s> readResponse(Response response) {\n", p.responseClass())
			fmt.Fprintf(b, "        return response.jsonPath().getList(\".\", %s.class);\n", p.responseClass())
		} else {
			fmt.Fprintf(b, "\n    public %s readResponse(Response response) {\n", p.responseClass())
			fmt.Fprintf(b, "        return response.as(%s.class);\n", p.responseClass())
		}
		b.WriteString("    }\n")
	}
	if p.errShape != nil {
		fmt.Fprintf(b, "\n    public %s readError(Response response) {\n", p.errorClass())
		fmt.Fprintf(b, "        return response.as(%s.class);\n", p.errorClass())
		b.WriteString("    }\n")
	}

	b.WriteString(models.String())
	b.WriteString("}\n")
	return b.String()
}

// renderModel renders the standalone data model stub of a response shape.
func renderModel(p *plan, pkg, name string) string {
	imp := &imports{}
	body := &strings.Builder{}
	cw := &classWriter{b: body, imp: imp}
	cw.write(name, *p.response, false, false, 0, nil)

	b := &strings.Builder{}
	fmt.Fprintf(b, "package %s.model;\n\n", pkg)
	if imp.jsonProperty {
		b.WriteString("import com.fasterxml.jackson.annotation.JsonProperty;\n")
	}
	if imp.list {
		b.WriteString("import java.util.List;\n")
	}
	if imp.mapType {
		b.WriteString("import java.util.Map;\n")
	}
	b.WriteString("import lombok.AllArgsConstructor;\n")
	b.WriteString("import lombok.Data;\n")
	b.WriteString("import lombok.NoArgsConstructor;\n\n")
	fmt.Fprintf(b, "// Response model of %s %s.\n", p.method, p.path)
	b.WriteString(body.String())
	return b.String()
}
