package validation

import "github.com/rendis/ruleflow/pkg/schema"

// Validator checks rule documents for correctness before they are imported
// into the store. Uses JSON Schema Draft 2020-12.
type Validator interface {
	ValidateDocument(doc *schema.RuleDocument) error
	ValidateRaw(raw []byte) (*schema.RuleDocument, error)
}
