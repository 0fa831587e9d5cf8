// Package importer turns Postman collections, OpenAPI/Swagger documents and
// HAR recordings into endpoints.
package importer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/apitester/internal/config"
	"github.com/yourorg/apitester/pkg/types"
)

// Format is a supported import format.
type Format string

const (
	FormatPostman Format = "postman"
	FormatOpenAPI Format = "openapi"
	FormatHAR     Format = "har"
)

// ErrUnsupportedFormat is returned when a document is none of the known formats.
var ErrUnsupportedFormat = errors.New("unsupported file format: expected a Swagger/OpenAPI spec, a Postman collection or a HAR file")

// Options tunes an import.
type Options struct {
	// Filter applies to HAR imports.
	Filter config.FilterConfig
	// InferSchemas attaches a response schema inferred from captured
	// response bodies (HAR only).
	InferSchemas bool
	// NewID generates endpoint IDs. Defaults to random UUIDs.
	NewID func() string
}

// Result is one imported document.
type Result struct {
	Name            string
	Format          Format
	Endpoints       []types.Endpoint
	ExternalSchemas []types.ExternalSchema
	// Skipped lists entries that could not become valid endpoints.
	Skipped []string
}

// ImportFile reads and imports the document at path.
func ImportFile(path string, opts Options) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	res, err := Import(data, opts)
	if err != nil {
		return Result{}, fmt.Errorf("import %s: %w", filepath.Base(path), err)
	}
	if res.Name == "" {
		res.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return res, nil
}

// Import detects the format of data and converts it.
func Import(data []byte, opts Options) (Result, error) {
	doc, err := toJSON(data)
	if err != nil {
		return Result{}, err
	}
	format, err := detect(doc)
	if err != nil {
		return Result{}, err
	}

	var res Result
	switch format {
	case FormatPostman:
		res, err = importPostman(doc)
	case FormatOpenAPI:
		res, err = importOpenAPI(doc)
	case FormatHAR:
		res, err = importHAR(doc, opts)
	}
	if err != nil {
		return Result{}, err
	}
	res.Format = format
	finalize(&res, opts)
	return res, nil
}

// Detect reports the format of data without converting it.
func Detect(data []byte) (Format, error) {
	doc, err := toJSON(data)
	if err != nil {
		return "", err
	}
	return detect(doc)
}

func detect(doc []byte) (Format, error) {
	var probe struct {
		OpenAPI string          `json:"openapi"`
		Swagger string          `json:"swagger"`
		Info    json.RawMessage `json:"info"`
		Item    json.RawMessage `json:"item"`
		Log     *struct {
			Entries json.RawMessage `json:"entries"`
		} `json:"log"`
	}
	if err := json.Unmarshal(doc, &probe); err != nil {
		return "", ErrUnsupportedFormat
	}
	switch {
	case len(probe.Info) > 0 && (probe.OpenAPI != "" || probe.Swagger != ""):
		return FormatOpenAPI, nil
	case len(probe.Info) > 0 && len(probe.Item) > 0:
		return FormatPostman, nil
	case probe.Log != nil && len(probe.Log.Entries) > 0:
		return FormatHAR, nil
	}
	return "", ErrUnsupportedFormat
}

// toJSON accepts JSON or YAML and returns JSON.
func toJSON(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("document is empty")
	}
	if trimmed[0] == '{' {
		if !json.Valid(trimmed) {
			return nil, errors.New("document is not valid JSON")
		}
		return trimmed, nil
	}
	var v any
	if err := yaml.Unmarshal(trimmed, &v); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, ErrUnsupportedFormat
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}
	return out, nil
}

// finalize assigns IDs and drops endpoints that fail model validation.
func finalize(res *Result, opts Options) {
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	kept := make([]types.Endpoint, 0, len(res.Endpoints))
	for _, ep := range res.Endpoints {
		ep.ID = newID()
		ep.Method = strings.ToUpper(strings.TrimSpace(ep.Method))
		if err := types.Validate(ep); err != nil {
			res.Skipped = append(res.Skipped, fmt.Sprintf("%s: %v", displayName(ep), err))
			continue
		}
		kept = append(kept, ep)
	}
	res.Endpoints = kept
}

func displayName(ep types.Endpoint) string {
	if ep.Name != "" {
		return ep.Name
	}
	return strings.TrimSpace(ep.Method + " " + ep.URL)
}

// prettyJSON indents a compact JSON document with two spaces.
func prettyJSON(data []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return string(data)
	}
	return buf.String()
}
