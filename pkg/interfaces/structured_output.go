package interfaces

import "encoding/json"

// ResponseFormatType selects plain text or JSON replies
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSON       ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat asks a provider for structured output. Judge verdicts use
// ResponseFormatJSON; Name and Schema only apply to ResponseFormatJSONSchema.
type ResponseFormat struct {
	Type   ResponseFormatType
	Name   string
	Schema JSONSchema
}

// JSONSchema is a schema document passed through to providers that support it
type JSONSchema map[string]interface{}

// MarshalJSON lets JSONSchema satisfy json.Marshaler for the OpenAI client
func (s JSONSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(s))
}
