package layout

import "github.com/rendis/ruleflow/pkg/schema"

// Canvas geometry, in substrate pixels. All positions are derived from these
// constants so the output is fully deterministic.
const (
	RuleWidth  = 220.0
	RuleHeight = 44.0
	RuleGap    = 12.0

	GroupWidth           = 260.0
	GroupHeaderHeight    = 40.0
	GroupPadding         = 20.0
	GroupMinHeight       = 120.0
	GroupCollapsedHeight = 48.0

	PivotWidth  = 140.0
	PivotHeight = 140.0

	LabelWidth  = 220.0
	LabelHeight = 32.0
	LabelGap    = 16.0

	ColumnGap = 80.0
	RowGap    = 96.0
)

// Named handles on a group container, used for fallback edge routing when
// the group is empty or collapsed.
const (
	GroupHandleIn  = "group-in"
	GroupHandleOut = "group-out"
)

// GroupID returns the deterministic node ID of the container for a phase.
func GroupID(p schema.Phase) string {
	return "group-" + string(p)
}

// AllGroupIDs returns the container IDs of every recognized phase group,
// in row order. Used by the controller to collapse everything after a load.
func AllGroupIDs() []string {
	return []string{
		GroupID(schema.PhaseDisplay),
		GroupID(schema.PhaseBefore),
		GroupID(schema.PhaseAfter),
		GroupID(schema.PhaseAsync),
	}
}

// GroupHeight returns the rendered height of a phase group. A collapsed
// group is header-only regardless of rule count; an expanded group grows
// monotonically with its rule count, with a floor for 0-1 rules.
func GroupHeight(ruleCount int, collapsed bool) float64 {
	if collapsed {
		return GroupCollapsedHeight
	}
	h := GroupHeaderHeight + float64(ruleCount)*(RuleHeight+RuleGap) + GroupPadding
	if h < GroupMinHeight {
		return GroupMinHeight
	}
	return h
}

// titleForPhase is the human-readable group header per phase.
var titleForPhase = map[schema.Phase]string{
	schema.PhaseBefore:  "Before",
	schema.PhaseAfter:   "After",
	schema.PhaseAsync:   "Async",
	schema.PhaseDisplay: "Display",
}
