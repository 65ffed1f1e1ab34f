package expressions

import (
	"encoding/json"

	"github.com/rendis/ruleflow/pkg/schema"
)

// PreviewScope holds the sample data a rule expression is previewed against.
// The three namespaces mirror what the rule engine exposes at execution time:
// the record being written, its previous persisted state, and the acting user.
type PreviewScope struct {
	Record   map[string]any `json:"record"`
	Previous map[string]any `json:"previous"`
	User     map[string]any `json:"user"`
}

// Activation returns the evaluation data map. Missing namespaces become
// empty maps so expressions referencing them fail on the field, not the root.
// All values are deep-copied; engines never share state with the caller.
func (s PreviewScope) Activation() map[string]any {
	return map[string]any{
		"record":   copyOrEmpty(s.Record),
		"previous": copyOrEmpty(s.Previous),
		"user":     copyOrEmpty(s.User),
	}
}

func copyOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return deepCopyMap(m)
}

// RulesDocument converts a rule slice into a plain JSON object shaped as
// {"subject": ..., "rules": [...]} for jq projections. The round-trip through
// encoding/json yields the map[string]any / float64 forms gojq expects.
func RulesDocument(subject string, rules []schema.Rule) (map[string]any, error) {
	raw, err := json.Marshal(map[string]any{"subject": subject, "rules": rules})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"cannot encode rules for projection: %s", err.Error()).WithCause(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"cannot decode rules for projection: %s", err.Error()).WithCause(err)
	}
	return doc, nil
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively deep-copies maps and slices; primitives pass through.
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	default:
		return v
	}
}
