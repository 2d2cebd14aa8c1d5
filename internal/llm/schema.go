package llm

import (
	"encoding/json"
	"fmt"

	jsonschema "github.com/google/jsonschema-go/jsonschema"
	openai "github.com/sashabaranov/go-openai"
)

// AnalysisRoute is the structured-output shape the Analysis namespace call
// constrains its response to: a single JSON object carrying the route
// classification, rather than free-form text. Grounded on the teacher's
// internal/utils.GenerateSchema[T] helper (jsonschema.For[T]), adapted from
// a tool-input schema to a response_format schema.
type AnalysisRoute struct {
	Route string `json:"route"`
}

// AnalysisResponseFormat builds the response_format: json_schema constraint
// passed as llm.CallOpts.ResponseFormat for the Analysis namespace call, per
// SPEC_FULL.md's 4-valued route classification.
func AnalysisResponseFormat() *openai.ChatCompletionResponseFormat {
	return &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   "analysis_route",
			Schema: generateSchema[AnalysisRoute](),
			Strict: true,
		},
	}
}

// generateSchema mirrors the teacher's utils.GenerateSchema[T]: reflect a
// JSON Schema for T via jsonschema.For and hand it back as a
// json.RawMessage, which already satisfies the json.Marshaler the
// go-openai response_format field expects.
func generateSchema[T any]() json.RawMessage {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("llm: failed to generate schema for %T: %v", *new(T), err))
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("llm: failed to marshal schema for %T: %v", *new(T), err))
	}
	return raw
}
