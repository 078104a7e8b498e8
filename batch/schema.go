package batch

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/teranos/verdict/errors"
)

// Decision labels
const (
	DecisionLong    = "LONG"
	DecisionShort   = "SHORT"
	DecisionUnknown = "UNKNOWN"
)

// decisionSchemaName names the schema in the response format and the compiler
const decisionSchemaName = "decision"

// DecisionSchema is the JSON schema every model answer must satisfy
func DecisionSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"decision": map[string]interface{}{
				"type":        "string",
				"enum":        []interface{}{DecisionLong, DecisionShort, DecisionUnknown},
				"description": "The suggested position",
			},
			"justification": map[string]interface{}{
				"type":        "string",
				"description": "Why, in at most 64 tokens",
			},
		},
		"required":             []interface{}{"decision", "justification"},
		"additionalProperties": false,
	}
}

// ResponseFormat is the strict json_schema response_format sent with each request
func ResponseFormat() map[string]interface{} {
	return map[string]interface{}{
		"type": "json_schema",
		"json_schema": map[string]interface{}{
			"name":   decisionSchemaName,
			"strict": true,
			"schema": DecisionSchema(),
		},
	}
}

// Answer is a model answer that passed validation
type Answer struct {
	Decision      string `json:"decision"`
	Justification string `json:"justification"`
}

// ResultValidator checks model answers against DecisionSchema
type ResultValidator struct {
	schema *jsonschema.Schema
}

// NewResultValidator compiles the decision schema
func NewResultValidator() (*ResultValidator, error) {
	b, err := json.Marshal(DecisionSchema())
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal decision schema")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(decisionSchemaName+".json", bytes.NewReader(b)); err != nil {
		return nil, errors.Wrap(err, "failed to add decision schema")
	}
	schema, err := compiler.Compile(decisionSchemaName + ".json")
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile decision schema")
	}
	return &ResultValidator{schema: schema}, nil
}

// Parse validates the raw message content and decodes it
func (v *ResultValidator) Parse(content string) (Answer, error) {
	var raw interface{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Answer{}, errors.Wrap(err, "answer is not JSON")
	}
	if err := v.schema.Validate(raw); err != nil {
		return Answer{}, errors.Wrap(err, "answer does not match decision schema")
	}
	var a Answer
	if err := json.Unmarshal([]byte(content), &a); err != nil {
		return Answer{}, errors.Wrap(err, "failed to decode answer")
	}
	return a, nil
}
