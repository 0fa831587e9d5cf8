package types

import "time"

// Collection groups endpoints imported or authored together.
type Collection struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Source          string           `json:"source"`
	Endpoints       []Endpoint       `json:"endpoints,omitempty"`
	ErrorSchema     *ErrorSchema     `json:"error_schema,omitempty"`
	ExternalSchemas []ExternalSchema `json:"external_schemas,omitempty"`
	EndpointCount   int              `json:"endpoint_count"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// GeneratedFile is one synthesized artifact.
type GeneratedFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// GeneratedCode is the output bundle of one generation run.
type GeneratedCode struct {
	FeatureFiles    []GeneratedFile `json:"feature_files"`
	StepDefinitions []GeneratedFile `json:"step_definitions"`
	ServiceClasses  []GeneratedFile `json:"service_classes"`
	DataModelStubs  []GeneratedFile `json:"data_model_stubs"`
}
