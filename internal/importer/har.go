package importer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/yourorg/apitester/internal/filter"
	"github.com/yourorg/apitester/internal/jsonvalue"
	"github.com/yourorg/apitester/internal/schema"
	"github.com/yourorg/apitester/pkg/types"
)

type harFile struct {
	Log struct {
		Creator struct {
			Name string `json:"name"`
		} `json:"creator"`
		Entries []harEntry `json:"entries"`
	} `json:"log"`
}

type harHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type harEntry struct {
	StartedDateTime string  `json:"startedDateTime"`
	Time            float64 `json:"time"`
	Request         struct {
		Method   string      `json:"method"`
		URL      string      `json:"url"`
		Headers  []harHeader `json:"headers"`
		PostData struct {
			MimeType string `json:"mimeType"`
			Text     string `json:"text"`
			Encoding string `json:"encoding"`
		} `json:"postData"`
	} `json:"request"`
	Response struct {
		Status  int         `json:"status"`
		Headers []harHeader `json:"headers"`
		Content struct {
			MimeType string `json:"mimeType"`
			Text     string `json:"text"`
			Encoding string `json:"encoding"`
		} `json:"content"`
	} `json:"response"`
}

// Request headers that describe the browser connection rather than the API
// call; replaying them through the relay is wrong or harmful.
var transportHeaders = map[string]struct{}{
	"host":               {},
	"content-length":     {},
	"connection":         {},
	"accept-encoding":    {},
	"cookie":             {},
	"origin":             {},
	"referer":            {},
	"user-agent":         {},
	"sec-fetch-dest":     {},
	"sec-fetch-mode":     {},
	"sec-fetch-site":     {},
	"sec-ch-ua":          {},
	"sec-ch-ua-mobile":   {},
	"sec-ch-ua-platform": {},
}

// ParseHAR reads HAR entries as exchanges ordered by start time.
func ParseHAR(data []byte) ([]types.Exchange, error) {
	var hf harFile
	if err := json.Unmarshal(data, &hf); err != nil {
		return nil, fmt.Errorf("parse har: %w", err)
	}
	out := make([]types.Exchange, 0, len(hf.Log.Entries))
	for i, e := range hf.Log.Entries {
		ts, err := time.Parse(time.RFC3339Nano, e.StartedDateTime)
		if err != nil {
			return nil, fmt.Errorf("entry %d: parse startedDateTime: %w", i, err)
		}
		u, err := url.Parse(e.Request.URL)
		if err != nil {
			return nil, fmt.Errorf("entry %d: parse request url: %w", i, err)
		}
		reqBody, reqEnc := decodeBody(e.Request.PostData.Text, e.Request.PostData.Encoding, e.Request.PostData.MimeType)
		respBody, _ := decodeBody(e.Response.Content.Text, e.Response.Content.Encoding, e.Response.Content.MimeType)

		out = append(out, types.Exchange{
			Timestamp:           ts,
			Method:              strings.ToUpper(e.Request.Method),
			URL:                 e.Request.URL,
			Host:                u.Host,
			Path:                u.Path,
			QueryParams:         u.Query(),
			RequestHeaders:      headerMap(e.Request.Headers),
			RequestBody:         reqBody,
			RequestBodyEncoding: reqEnc,
			ContentType:         e.Request.PostData.MimeType,
			StatusCode:          e.Response.Status,
			ResponseHeaders:     headerMap(e.Response.Headers),
			ResponseBody:        respBody,
			ResponseContentType: e.Response.Content.MimeType,
			LatencyMs:           int64(e.Time),
			CallCount:           1,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	for i := range out {
		out[i].Seq = i + 1
	}
	return out, nil
}

func headerMap(hs []harHeader) map[string]string {
	m := make(map[string]string, len(hs))
	for _, h := range hs {
		if h.Name == "" || strings.HasPrefix(h.Name, ":") {
			continue
		}
		m[h.Name] = h.Value
	}
	return m
}

func decodeBody(text, encoding, mimeType string) (string, string) {
	if text == "" {
		return "", "plain"
	}
	if isBinaryContentType(mimeType) {
		return "", "omitted"
	}
	if strings.EqualFold(encoding, "base64") {
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return "", "omitted"
		}
		return string(decoded), "base64"
	}
	return text, "plain"
}

func isBinaryContentType(mimeType string) bool {
	mt := strings.ToLower(mimeType)
	return strings.HasPrefix(mt, "image/") || strings.HasPrefix(mt, "audio/") || strings.HasPrefix(mt, "video/") || mt == "application/octet-stream"
}

func importHAR(doc []byte, opts Options) (Result, error) {
	exchanges, err := ParseHAR(doc)
	if err != nil {
		return Result{}, err
	}
	filtered := filter.Run(exchanges, opts.Filter)

	res := Result{}
	for reason, n := range filtered.Dropped {
		if n > 0 && reason != filter.ReasonDuplicate && reason != filter.ReasonRetry {
			res.Skipped = append(res.Skipped, fmt.Sprintf("%d %s entries filtered", n, reason))
		}
	}
	sort.Strings(res.Skipped)
	for _, ex := range filtered.Kept {
		res.Endpoints = append(res.Endpoints, exchangeEndpoint(ex, opts.InferSchemas))
	}
	return res, nil
}

func exchangeEndpoint(ex types.Exchange, infer bool) types.Endpoint {
	headers := make(map[string]string, len(ex.RequestHeaders))
	for k, v := range ex.RequestHeaders {
		if _, skip := transportHeaders[strings.ToLower(k)]; skip {
			continue
		}
		headers[k] = v
	}
	desc := ""
	if ex.CallCount > 1 {
		desc = fmt.Sprintf("Captured %d calls; sample status %d.", ex.CallCount, ex.StatusCode)
	} else if ex.StatusCode != 0 {
		desc = fmt.Sprintf("Captured status %d.", ex.StatusCode)
	}
	ep := types.Endpoint{
		Name:               ex.Method + " " + ex.Path,
		Method:             ex.Method,
		URL:                ex.URL,
		Headers:            headers,
		Body:               ex.RequestBody,
		Description:        desc,
		CustomizableFields: types.NewFieldSet(),
	}
	if infer && ex.StatusCode >= 200 && ex.StatusCode < 300 {
		if sample, ok, err := jsonvalue.ParseOptional(ex.ResponseBody); err == nil && ok && !sample.IsPrimitive() {
			if s, err := schema.Inferred(sample); err == nil {
				ep.ResponseSchema = types.ActiveSchema(s)
			}
		}
	}
	return ep
}
