package types

import "time"

// Exchange is one captured request/response pair, as read from a HAR
// recording. It is the raw material imported endpoints are built from.
type Exchange struct {
	Seq                 int                 `json:"seq"`
	Timestamp           time.Time           `json:"timestamp"`
	Method              string              `json:"method"`
	URL                 string              `json:"url"`
	Host                string              `json:"host"`
	Path                string              `json:"path"`
	QueryParams         map[string][]string `json:"query_params,omitempty"`
	RequestHeaders      map[string]string   `json:"request_headers,omitempty"`
	RequestBody         string              `json:"request_body,omitempty"`
	RequestBodyEncoding string              `json:"request_body_encoding,omitempty"`
	ContentType         string              `json:"content_type,omitempty"`
	StatusCode          int                 `json:"status_code"`
	ResponseHeaders     map[string]string   `json:"response_headers,omitempty"`
	ResponseBody        string              `json:"response_body,omitempty"`
	ResponseContentType string              `json:"response_content_type,omitempty"`
	LatencyMs           int64               `json:"latency_ms"`
	CallCount           int                 `json:"call_count"`
}
