package schema

import "sort"

// Phase is the lifecycle moment a rule fires.
type Phase string

const (
	PhaseBefore  Phase = "before"
	PhaseAfter   Phase = "after"
	PhaseAsync   Phase = "async"
	PhaseDisplay Phase = "display"
)

// WritePhases are the phases composing the record-write pipeline row,
// in left-to-right column order.
var WritePhases = []Phase{PhaseBefore, PhaseAfter, PhaseAsync}

// ParsePhase maps a raw phase string to a recognized Phase.
// Unrecognized values return ok=false; callers drop such rules from the
// diagram rather than treating them as an error.
func ParsePhase(s string) (Phase, bool) {
	switch Phase(s) {
	case PhaseBefore, PhaseAfter, PhaseAsync, PhaseDisplay:
		return Phase(s), true
	default:
		return "", false
	}
}

// DefaultOrder is applied when a rule's order or priority is absent or invalid.
const DefaultOrder = 100

// Rule is a single lifecycle rule attached to a subject. Rules are immutable
// once fetched; the layout builder never mutates them.
type Rule struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Phase             string `json:"phase"`
	Order             int    `json:"order"`
	Priority          int    `json:"priority"`
	Active            bool   `json:"active"`
	TriggersInsert    bool   `json:"triggers_insert"`
	TriggersUpdate    bool   `json:"triggers_update"`
	TriggersDelete    bool   `json:"triggers_delete"`
	TriggersQuery     bool   `json:"triggers_query"`
	AbortsOnCondition bool   `json:"aborts_on_condition"`
	FilterExpression  string `json:"filter_expression,omitempty"`
	Condition         string `json:"condition,omitempty"`
	Description       string `json:"description,omitempty"`
	ScriptBody        string `json:"script_body,omitempty"`
	InheritedFrom     string `json:"inherited_from,omitempty"`
}

// Inherited reports whether the rule was inherited from an ancestor subject.
func (r Rule) Inherited() bool {
	return r.InheritedFrom != ""
}

// Normalize applies defaulting for absent or invalid numeric fields.
// Missing order/priority arrive as zero (or negative on bad input) and
// default to 100; this is a normalization policy, not a failure.
func (r *Rule) Normalize() {
	if r.Order <= 0 {
		r.Order = DefaultOrder
	}
	if r.Priority <= 0 {
		r.Priority = DefaultOrder
	}
}

// NormalizeRules normalizes every rule in place.
func NormalizeRules(rules []Rule) {
	for i := range rules {
		rules[i].Normalize()
	}
}

// SortByOrder sorts rules ascending by order. The sort is stable so ties
// keep their original retrieval order.
func SortByOrder(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Order < rules[j].Order
	})
}
