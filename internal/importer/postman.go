package importer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/yourorg/apitester/internal/jsonvalue"
	"github.com/yourorg/apitester/pkg/types"
)

type postmanCollection struct {
	Info struct {
		Name        string      `json:"name"`
		Description textOrBlock `json:"description"`
	} `json:"info"`
	Item     []postmanItem `json:"item"`
	Variable []postmanKV   `json:"variable"`
	Auth     *postmanAuth  `json:"auth"`
}

type postmanItem struct {
	Name    string          `json:"name"`
	Request *postmanRequest `json:"request"`
	Item    []postmanItem   `json:"item"`
}

type postmanRequest struct {
	Method      string       `json:"method"`
	Header      []postmanKV  `json:"header"`
	URL         postmanURL   `json:"url"`
	Body        *postmanBody `json:"body"`
	Description textOrBlock  `json:"description"`
	Auth        *postmanAuth `json:"auth"`
}

type postmanBody struct {
	Mode       string      `json:"mode"`
	Raw        string      `json:"raw"`
	FormData   []postmanKV `json:"formdata"`
	URLEncoded []postmanKV `json:"urlencoded"`
}

type postmanKV struct {
	Key      string `json:"key"`
	Value    any    `json:"value"`
	Type     string `json:"type"`
	Disabled bool   `json:"disabled"`
}

func (kv postmanKV) text() string {
	switch v := kv.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

type postmanAuth struct {
	Type   string     `json:"type"`
	Bearer authParams `json:"bearer"`
	Basic  authParams `json:"basic"`
	APIKey authParams `json:"apikey"`
}

// authParams accepts the v2.1 list form and the v2.0 object form.
type authParams []postmanKV

func (p *authParams) UnmarshalJSON(data []byte) error {
	var list []postmanKV
	if err := json.Unmarshal(data, &list); err == nil {
		*p = list
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(authParams, 0, len(keys))
	for _, k := range keys {
		out = append(out, postmanKV{Key: k, Value: obj[k]})
	}
	*p = out
	return nil
}

// postmanURL is either a bare string or an object with a raw member.
type postmanURL struct {
	Raw string
}

func (u *postmanURL) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		u.Raw = s
		return nil
	}
	var obj struct {
		Raw string `json:"raw"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	u.Raw = obj.Raw
	return nil
}

// textOrBlock is a description given as a string or as {"content": "..."}.
type textOrBlock string

func (t *textOrBlock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = textOrBlock(s)
		return nil
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*t = textOrBlock(obj.Content)
	return nil
}

var postmanVar = regexp.MustCompile(`\{\{([^}]+)\}\}`)

type postmanVars map[string]string

// resolve substitutes known {{name}} references and leaves unknown ones.
func (v postmanVars) resolve(text string) string {
	if text == "" || len(v) == 0 {
		return text
	}
	return postmanVar.ReplaceAllStringFunc(text, func(m string) string {
		name := strings.TrimSpace(m[2 : len(m)-2])
		if val, ok := v[name]; ok {
			return val
		}
		return m
	})
}

func importPostman(doc []byte) (Result, error) {
	var col postmanCollection
	if err := json.Unmarshal(doc, &col); err != nil {
		return Result{}, fmt.Errorf("parse postman collection: %w", err)
	}
	vars := make(postmanVars, len(col.Variable))
	for _, kv := range col.Variable {
		if !kv.Disabled && kv.Key != "" {
			vars[kv.Key] = kv.text()
		}
	}
	global := authHeaders(col.Auth, vars)

	res := Result{Name: col.Info.Name}
	var walk func(items []postmanItem, folders []string)
	walk = func(items []postmanItem, folders []string) {
		for _, item := range items {
			if item.Request == nil {
				walk(item.Item, append(folders[:len(folders):len(folders)], item.Name))
				continue
			}
			res.Endpoints = append(res.Endpoints, postmanEndpoint(item, folders, global, vars))
		}
	}
	walk(col.Item, nil)
	return res, nil
}

func postmanEndpoint(item postmanItem, folders []string, global map[string]string, vars postmanVars) types.Endpoint {
	req := item.Request
	headers := make(map[string]string, len(global)+len(req.Header))
	for k, v := range global {
		headers[k] = v
	}
	if req.Auth != nil {
		for k, v := range authHeaders(req.Auth, vars) {
			headers[k] = v
		}
	}
	for _, h := range req.Header {
		if h.Disabled || h.Key == "" || h.text() == "" {
			continue
		}
		headers[h.Key] = vars.resolve(h.text())
	}

	name := item.Name
	if len(folders) > 0 {
		name = strings.Join(append(append([]string(nil), folders...), item.Name), " / ")
	}
	return types.Endpoint{
		Name:               name,
		Method:             req.Method,
		URL:                vars.resolve(req.URL.Raw),
		Headers:            headers,
		Body:               postmanBodyText(req.Body, vars),
		Description:        string(req.Description),
		CustomizableFields: types.NewFieldSet(),
	}
}

func postmanBodyText(b *postmanBody, vars postmanVars) string {
	if b == nil {
		return ""
	}
	switch b.Mode {
	case "raw":
		return vars.resolve(b.Raw)
	case "formdata", "urlencoded":
		entries := b.FormData
		if b.Mode == "urlencoded" {
			entries = b.URLEncoded
		}
		fields := make([]jsonvalue.Field, 0, len(entries))
		for _, f := range entries {
			if f.Disabled || f.Key == "" || f.Type == "file" {
				continue
			}
			fields = append(fields, jsonvalue.Field{Key: f.Key, Value: jsonvalue.String(vars.resolve(f.text()))})
		}
		if len(fields) == 0 {
			return ""
		}
		data, err := jsonvalue.Object(fields...).MarshalJSON()
		if err != nil {
			return ""
		}
		return prettyJSON(data)
	}
	return ""
}

// authHeaders maps a Postman auth block to request headers. Missing secrets
// become {{placeholders}} so the user can see what needs filling in.
func authHeaders(a *postmanAuth, vars postmanVars) map[string]string {
	out := map[string]string{}
	if a == nil {
		return out
	}
	lookup := func(kvs authParams, key, fallback string) string {
		for _, kv := range kvs {
			if kv.Key == key && kv.text() != "" {
				return vars.resolve(kv.text())
			}
		}
		return fallback
	}
	switch a.Type {
	case "bearer":
		out["Authorization"] = "Bearer " + lookup(a.Bearer, "token", "{{token}}")
	case "basic":
		user := lookup(a.Basic, "username", "")
		pass := lookup(a.Basic, "password", "")
		if user == "" && pass == "" {
			out["Authorization"] = "Basic {{base64_encoded_credentials}}"
		} else {
			out["Authorization"] = "Basic " + basicToken(user, pass)
		}
	case "apikey":
		if lookup(a.APIKey, "in", "header") == "header" {
			out[lookup(a.APIKey, "key", "X-API-Key")] = lookup(a.APIKey, "value", "{{apiKey}}")
		}
	}
	return out
}

func basicToken(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
