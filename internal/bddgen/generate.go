// Package bddgen synthesizes Cucumber test scaffolding from endpoints: one
// Gherkin feature, one step definition class and one RestAssured service
// class per endpoint, plus standalone response model stubs.
//
// Generation is a pure function of its inputs. It performs no I/O and never
// fails for a single endpoint's malformed payload; that endpoint degrades to
// a parameter-free artifact set.
package bddgen

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/yourorg/apitester/pkg/types"
)

// DefaultBasePackage is used when Options.BasePackage is empty.
const DefaultBasePackage = "com.example.api"

// Options parameterizes one generation run.
type Options struct {
	// EndpointName names the artifacts of a single-endpoint batch whose
	// endpoint carries no name of its own.
	EndpointName string
	BasePackage  string
	// DefaultErrorSchema applies to endpoints without their own error schema.
	DefaultErrorSchema *types.ErrorSchema
	// Responses holds captured response bodies keyed by endpoint ID.
	Responses map[string]json.RawMessage
}

// Generate produces exactly one feature, one step definition and one service
// class per endpoint, in input order, plus one model stub per endpoint that
// has a response shape.
func Generate(endpoints []types.Endpoint, opts Options) types.GeneratedCode {
	pkg, err := NormalizePackage(opts.BasePackage)
	if err != nil {
		pkg = DefaultBasePackage
	}

	out := types.GeneratedCode{
		FeatureFiles:    []types.GeneratedFile{},
		StepDefinitions: []types.GeneratedFile{},
		ServiceClasses:  []types.GeneratedFile{},
		DataModelStubs:  []types.GeneratedFile{},
	}
	names := newUniqueNames()
	models := map[string]bool{}

	for _, raw := range endpoints {
		ep := raw.Clone()
		if strings.TrimSpace(ep.EndpointName) == "" && len(endpoints) == 1 {
			ep.EndpointName = opts.EndpointName
		}
		ident, pascal := names.claim(Identifier(ep))

		p := newPlan(ep, ident, pascal, opts)
		feature, steps, service, ok := renderAll(p, pkg)
		if !ok {
			p.degrade()
			feature, steps, service, _ = renderAll(p, pkg)
		}
		out.FeatureFiles = append(out.FeatureFiles, types.GeneratedFile{Name: pascal + ".feature", Content: feature})
		out.StepDefinitions = append(out.StepDefinitions, types.GeneratedFile{Name: p.stepsClass() + ".java", Content: steps})
		out.ServiceClasses = append(out.ServiceClasses, types.GeneratedFile{Name: p.serviceClass() + ".java", Content: service})

		if p.response == nil {
			continue
		}
		name := modelName(p, models)
		out.DataModelStubs = append(out.DataModelStubs, types.GeneratedFile{Name: name + ".java", Content: renderModel(p, pkg, name)})
	}
	return out
}

// renderAll renders the three per-endpoint artifacts. ok is false when a
// renderer panicked on the endpoint's payloads.
func renderAll(p *plan, pkg string) (feature, steps, service string, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return renderFeature(p), renderSteps(p, pkg), renderService(p, pkg), true
}

// modelName derives the model stub name from the resource the endpoint
// addresses. A name already taken in this run is suffixed with the
// endpoint's own class name.
func modelName(p *plan, taken map[string]bool) string {
	base := Pascal(resourceName(p.path))
	if base == "" {
		base = p.pascal
	}
	name := base + "Response"
	if taken[name] {
		name = base + "Response" + p.pascal
	}
	for n := 2; taken[name]; n++ {
		name = base + "Response" + p.pascal + strconv.Itoa(n)
	}
	taken[name] = true
	return name
}
