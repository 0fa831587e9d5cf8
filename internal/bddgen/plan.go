package bddgen

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/yourorg/apitester/internal/jsonvalue"
	"github.com/yourorg/apitester/internal/schema"
	"github.com/yourorg/apitester/pkg/types"
)

const defaultErrorStatus = 400

// param is one top-level request-body field.
type param struct {
	key      string
	ident    string
	value    jsonvalue.Value
	javaType string
	custom   bool
}

// plan is everything the renderers need for one endpoint, derived once
// from the endpoint snapshot.
type plan struct {
	ep     types.Endpoint
	ident  string
	pascal string
	method string
	base   string
	path   string
	// template is path in RestAssured form; pathParams names its variables.
	template   string
	pathParams []string

	rawBody  string
	bodyNote string
	request  *schema.Shape
	params   []param
	// requestTypes overrides top-level request field types by JSON key.
	requestTypes map[string]string

	response  *schema.Shape
	rootArray bool

	errSchema *types.ErrorSchema
	errStatus int
	errShape  *schema.Shape
	errNote   string
}

func (p *plan) serviceClass() string  { return p.pascal + "Service" }
func (p *plan) stepsClass() string    { return p.pascal + "Steps" }
func (p *plan) requestClass() string  { return p.pascal + "Request" }
func (p *plan) responseClass() string { return p.pascal + "Response" }
func (p *plan) errorClass() string    { return p.pascal + "Error" }

func (p *plan) hasCustom() bool {
	for _, pr := range p.params {
		if pr.custom {
			return true
		}
	}
	return false
}

func newPlan(ep types.Endpoint, ident, pascal string, opts Options) *plan {
	p := &plan{
		ep:     ep,
		ident:  ident,
		pascal: pascal,
		method: strings.ToUpper(strings.TrimSpace(ep.Method)),
	}
	p.base, p.path = splitURL(ep.URL)
	p.template, p.pathParams = pathTemplate(p.path)
	p.planRequest()
	p.planResponse(opts.Responses[ep.ID])
	p.planError(opts.DefaultErrorSchema)
	return p
}

func (p *plan) planRequest() {
	if !types.SupportsBody(p.method) || strings.TrimSpace(p.ep.Body) == "" {
		return
	}
	p.rawBody = p.ep.Body
	v, err := jsonvalue.ParseString(p.ep.Body)
	if err != nil {
		p.bodyNote = "request body is not valid JSON and is sent as captured"
		return
	}
	if v.Kind() != jsonvalue.KindObject {
		p.bodyNote = "request body is not a JSON object and is sent as captured"
		return
	}

	sh := schema.Infer(v)
	p.request = &sh
	p.requestTypes = map[string]string{}
	idents := fieldNames(sh)
	nested := nestedNames(sh, []string{p.serviceClass(), p.requestClass()})
	for i, f := range sh.Fields {
		fv, _ := v.Get(f.Name)
		typ := javaType(f, func(schema.Field) string { return p.requestClass() + "." + nested[i] })
		if f.Type == schema.TypeInteger && !fitsInt32(fv) {
			typ = "Long"
			p.requestTypes[f.Name] = typ
		}
		p.params = append(p.params, param{
			key:      f.Name,
			ident:    idents[i],
			value:    fv,
			javaType: typ,
			custom:   p.ep.CustomizableFields.Has(f.Name),
		})
	}
}

func (p *plan) planResponse(captured json.RawMessage) {
	if len(captured) > 0 {
		if v, err := jsonvalue.Parse(captured); err == nil {
			p.setResponse(schema.Infer(v), v.Kind() == jsonvalue.KindArray)
			return
		}
	}
	s, ok := p.ep.ResponseSchema.Get()
	if !ok {
		return
	}
	sh, err := schema.ShapeOf(s)
	if err != nil {
		return
	}
	v, _ := jsonvalue.Parse(s.Data)
	rootArray := v.Kind() == jsonvalue.KindArray
	if t, ok := v.Get("type"); ok && s.Source == types.SchemaExternal {
		str, _ := t.AsString()
		rootArray = str == "array"
	}
	p.setResponse(sh, rootArray)
}

func (p *plan) setResponse(sh schema.Shape, rootArray bool) {
	if sh.Empty() {
		return
	}
	p.response = &sh
	p.rootArray = rootArray
}

// planError picks the endpoint's own error schema over the collection default.
func (p *plan) planError(fallback *types.ErrorSchema) {
	es := p.ep.ErrorSchema
	if es == nil {
		es = fallback
	}
	if es == nil || !es.Enabled {
		return
	}
	p.errSchema = es
	p.errStatus = defaultErrorStatus
	if n, err := strconv.Atoi(strings.TrimSpace(es.StatusCode)); err == nil && n > 0 {
		p.errStatus = n
	}
	v, ok, err := jsonvalue.ParseOptional(es.ErrorStructure)
	switch {
	case err != nil:
		p.errNote = "error structure is not valid JSON; only the status code is checked"
	case ok:
		if sh := schema.Infer(v); !sh.Empty() {
			p.errShape = &sh
		}
	}
}

// degrade drops every part of the plan derived from payloads.
func (p *plan) degrade() {
	p.request, p.params, p.requestTypes = nil, nil, nil
	p.rawBody, p.bodyNote = "", ""
	p.response, p.rootArray = nil, false
	p.errShape, p.errNote = nil, ""
}
