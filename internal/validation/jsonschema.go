package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/ruleflow/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ruleDocumentSchemaJSON is the JSON Schema for RuleDocument validation.
// Embedded as a constant to avoid filesystem dependencies.
//
// order and priority are optional and may be any integer; non-positive
// values are defaulted to 100 during normalization, not rejected here.
const ruleDocumentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://ruleflow.dev/schemas/rule-document.json",
  "type": "object",
  "required": ["subject", "rules"],
  "properties": {
    "subject": {
      "type": "string",
      "minLength": 1
    },
    "rules": {
      "type": "array",
      "items": { "$ref": "#/$defs/rule" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "rule": {
      "type": "object",
      "required": ["id", "name", "phase"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1
        },
        "name": {
          "type": "string",
          "minLength": 1
        },
        "phase": {
          "type": "string",
          "enum": ["before", "after", "async", "display"]
        },
        "order": { "type": "integer" },
        "priority": { "type": "integer" },
        "active": { "type": "boolean" },
        "triggers_insert": { "type": "boolean" },
        "triggers_update": { "type": "boolean" },
        "triggers_delete": { "type": "boolean" },
        "triggers_query": { "type": "boolean" },
        "aborts_on_condition": { "type": "boolean" },
        "filter_expression": { "type": "string" },
        "condition": { "type": "string" },
        "description": { "type": "string" },
        "script_body": { "type": "string" },
        "inherited_from": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator implements the Validator interface using JSON Schema
// Draft 2020-12. Safe for concurrent use; the schema is compiled once.
type JSONSchemaValidator struct {
	documentSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a validator with the rule-document schema
// pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(ruleDocumentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal rule document schema: %w", err)
	}
	if err := c.AddResource("https://ruleflow.dev/schemas/rule-document.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add rule document schema resource: %w", err)
	}

	compiled, err := c.Compile("https://ruleflow.dev/schemas/rule-document.json")
	if err != nil {
		return nil, fmt.Errorf("compile rule document schema: %w", err)
	}

	return &JSONSchemaValidator{documentSchema: compiled}, nil
}

// ValidateDocument validates a RuleDocument against the schema plus the
// structural checks JSON Schema cannot express.
func (v *JSONSchemaValidator) ValidateDocument(doc *schema.RuleDocument) error {
	if doc == nil {
		return schema.NewError(schema.ErrCodeValidation, "rule document is nil")
	}

	val, err := toJSONValue(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize rule document").WithCause(err)
	}

	if err := v.documentSchema.Validate(val); err != nil {
		return toFlowError(err)
	}

	return checkSemantics(doc)
}

// ValidateRaw validates raw JSON bytes and, on success, returns the decoded
// document with rules normalized.
func (v *JSONSchemaValidator) ValidateRaw(raw []byte) (*schema.RuleDocument, error) {
	if len(raw) == 0 {
		return nil, schema.NewError(schema.ErrCodeInputMissing, "rule document is empty")
	}

	val, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid JSON: %s", err.Error()).WithCause(err)
	}

	if err := v.documentSchema.Validate(val); err != nil {
		return nil, toFlowError(err)
	}

	var doc schema.RuleDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "failed to decode rule document").WithCause(err)
	}

	if err := checkSemantics(&doc); err != nil {
		return nil, err
	}

	schema.NormalizeRules(doc.Rules)
	return &doc, nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toFlowError converts a jsonschema.ValidationError into a FlowError with
// one message per leaf violation.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

var _ Validator = (*JSONSchemaValidator)(nil)
