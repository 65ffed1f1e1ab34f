package validation

import (
	"github.com/rendis/ruleflow/pkg/schema"
)

// checkSemantics enforces the structural rules JSON Schema cannot express:
// rule IDs must be unique within the document, and an inherited rule cannot
// name the document's own subject as its origin.
func checkSemantics(doc *schema.RuleDocument) error {
	seen := make(map[string]struct{}, len(doc.Rules))
	for _, r := range doc.Rules {
		if _, exists := seen[r.ID]; exists {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"duplicate rule id %q", r.ID).WithRule(r.ID)
		}
		seen[r.ID] = struct{}{}

		if r.InheritedFrom == doc.Subject && r.InheritedFrom != "" {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"rule %q cannot be inherited from its own subject %q", r.ID, doc.Subject).
				WithRule(r.ID)
		}
	}
	return nil
}
