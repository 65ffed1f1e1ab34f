package layout

import (
	"fmt"

	"github.com/rendis/ruleflow/pkg/schema"
)

// Build converts a flat rule collection into the positioned diagram for one
// subject. It is a pure function: identical arguments always produce
// structurally identical output (same IDs, positions and ordering), and the
// input slice is never mutated.
//
// Rules are partitioned by phase into groups; rules whose phase is not one
// of the four recognized values are silently excluded. The diagram composes
// up to two pipeline rows: a form-load row (only when display rules exist)
// and the record-write row (always). Collapsed groups emit no child rule
// nodes and no intra-group edges.
func Build(subject string, rules []schema.Rule, collapsed map[string]bool, selectedID string) *schema.Diagram {
	groups := partition(rules, collapsed)
	b := &builder{selectedID: selectedID}

	y := 0.0

	// Form Load row: read pivot → display group → render pivot. Omitted
	// entirely when no display rules exist, contributing no vertical offset.
	display := groups[schema.PhaseDisplay]
	if len(display.rules) > 0 {
		b.emitLabel("label-form-load", "Form Load", y)
		top := y + LabelHeight + LabelGap
		tallest := GroupHeight(len(display.rules), display.collapsed)
		pivotY := top + pivotOffset(tallest)

		x := 0.0
		b.emitPivot("pivot-read", schema.PivotRead, "Form Read", x, pivotY)
		x += PivotWidth + ColumnGap
		b.emitGroup(display, x, top)
		x += GroupWidth + ColumnGap
		b.emitPivot("pivot-render", schema.PivotRender, "Form Render", x, pivotY)

		b.linkPivotToGroup("pivot-read", display)
		b.linkGroupToPivot(display, "pivot-render")

		y = top + rowHeight(tallest) + RowGap
	}

	// Record Write row: before group → write pivot → after group, with the
	// async group alongside. Async rules are fire-and-forget: they never get
	// a causal edge to the write pivot.
	before := groups[schema.PhaseBefore]
	after := groups[schema.PhaseAfter]
	async := groups[schema.PhaseAsync]

	b.emitLabel("label-record-write", "Record Write", y)
	top := y + LabelHeight + LabelGap
	tallest := maxHeight(
		GroupHeight(len(before.rules), before.collapsed),
		GroupHeight(len(after.rules), after.collapsed),
		GroupHeight(len(async.rules), async.collapsed),
	)
	pivotY := top + pivotOffset(tallest)

	x := 0.0
	b.emitGroup(before, x, top)
	x += GroupWidth + ColumnGap
	b.emitPivot("pivot-write", schema.PivotWrite, "Database Write", x, pivotY)
	x += PivotWidth + ColumnGap
	b.emitGroup(after, x, top)
	x += GroupWidth + ColumnGap
	b.emitGroup(async, x, top)

	b.linkGroupToPivot(before, "pivot-write")
	b.linkPivotToGroup("pivot-write", after)

	// Two-pass emit: containers first, then leaves, so any renderer that
	// resolves containment by first occurrence sees parents before children.
	nodes := make([]schema.Node, 0, len(b.containers)+len(b.leaves))
	nodes = append(nodes, b.containers...)
	nodes = append(nodes, b.leaves...)

	return &schema.Diagram{Subject: subject, Nodes: nodes, Edges: b.edges}
}

// phaseGroup is a recomputed, never-persisted bucket of one phase's rules,
// sorted ascending by order (stable on ties).
type phaseGroup struct {
	phase     schema.Phase
	rules     []schema.Rule
	collapsed bool
}

// partition buckets rules by recognized phase and applies the collapsed set.
// Unrecognized phases are dropped. Input order is preserved for order ties.
func partition(rules []schema.Rule, collapsed map[string]bool) map[schema.Phase]*phaseGroup {
	groups := make(map[schema.Phase]*phaseGroup, 4)
	for _, p := range []schema.Phase{schema.PhaseBefore, schema.PhaseAfter, schema.PhaseAsync, schema.PhaseDisplay} {
		groups[p] = &phaseGroup{phase: p, collapsed: collapsed[GroupID(p)]}
	}
	for _, r := range rules {
		p, ok := schema.ParsePhase(r.Phase)
		if !ok {
			continue
		}
		g := groups[p]
		g.rules = append(g.rules, r)
	}
	for _, g := range groups {
		schema.SortByOrder(g.rules)
	}
	return groups
}

type builder struct {
	selectedID string
	containers []schema.Node
	leaves     []schema.Node
	edges      []schema.Edge
}

func (b *builder) emitLabel(id, text string, y float64) {
	b.containers = append(b.containers, schema.Node{
		ID:       id,
		Kind:     schema.NodeKindLabel,
		Position: schema.Position{X: 0, Y: y},
		Size:     schema.Size{Width: LabelWidth, Height: LabelHeight},
		Label:    &schema.LabelData{Text: text},
	})
}

func (b *builder) emitPivot(id string, kind schema.PivotKind, label string, x, y float64) {
	b.containers = append(b.containers, schema.Node{
		ID:       id,
		Kind:     schema.NodeKindPivot,
		Position: schema.Position{X: x, Y: y},
		Size:     schema.Size{Width: PivotWidth, Height: PivotHeight},
		Pivot:    &schema.PivotData{Kind: kind, Label: label},
	})
}

// emitGroup adds the group container and, when expanded, its child rule
// nodes and the sequential edges between consecutive rules. Collapsed groups
// contribute the container only: children are absent, not hidden.
func (b *builder) emitGroup(g *phaseGroup, x, y float64) {
	id := GroupID(g.phase)
	b.containers = append(b.containers, schema.Node{
		ID:       id,
		Kind:     schema.NodeKindGroup,
		Position: schema.Position{X: x, Y: y},
		Size:     schema.Size{Width: GroupWidth, Height: GroupHeight(len(g.rules), g.collapsed)},
		Group: &schema.GroupData{
			Phase:     g.phase,
			Title:     titleForPhase[g.phase],
			RuleCount: len(g.rules),
			Collapsed: g.collapsed,
		},
	})
	if g.collapsed {
		return
	}
	for i, r := range g.rules {
		nodeID := ruleNodeID(r)
		b.leaves = append(b.leaves, schema.Node{
			ID:       nodeID,
			Kind:     schema.NodeKindRule,
			ParentID: id,
			Position: schema.Position{
				X: (GroupWidth - RuleWidth) / 2,
				Y: GroupHeaderHeight + float64(i)*(RuleHeight+RuleGap),
			},
			Size: schema.Size{Width: RuleWidth, Height: RuleHeight},
			Rule: &schema.RuleData{Rule: r, Selected: r.ID == b.selectedID},
		})
		if i > 0 {
			prev := ruleNodeID(g.rules[i-1])
			b.edges = append(b.edges, schema.Edge{
				ID:     fmt.Sprintf("seq-%s-%s", prev, nodeID),
				Source: prev,
				Target: nodeID,
				Kind:   schema.EdgeKindSequential,
			})
		}
	}
}

// linkGroupToPivot connects a group's outgoing boundary to a pivot. The edge
// originates from the group's last rule when the group is expanded and
// non-empty; otherwise it falls back to the container's named handle.
// Expanded-but-empty groups carry a human-readable annotation; collapsed
// groups do not, since the user chose to hide them.
func (b *builder) linkGroupToPivot(g *phaseGroup, pivotID string) {
	e := schema.Edge{Kind: schema.EdgeKindPivotLink, Target: pivotID}
	if !g.collapsed && len(g.rules) > 0 {
		e.Source = ruleNodeID(g.rules[len(g.rules)-1])
	} else {
		e.Source = GroupID(g.phase)
		e.SourceHandle = GroupHandleOut
		e.Intent = "dashed"
		if !g.collapsed {
			e.Annotation = emptyAnnotation(g.phase)
		}
	}
	e.ID = fmt.Sprintf("link-%s-%s", e.Source, e.Target)
	b.edges = append(b.edges, e)
}

// linkPivotToGroup connects a pivot to a group's incoming boundary, with the
// same fallback routing as linkGroupToPivot on the target side.
func (b *builder) linkPivotToGroup(pivotID string, g *phaseGroup) {
	e := schema.Edge{Kind: schema.EdgeKindPivotLink, Source: pivotID}
	if !g.collapsed && len(g.rules) > 0 {
		e.Target = ruleNodeID(g.rules[0])
	} else {
		e.Target = GroupID(g.phase)
		e.TargetHandle = GroupHandleIn
		e.Intent = "dashed"
		if !g.collapsed {
			e.Annotation = emptyAnnotation(g.phase)
		}
	}
	e.ID = fmt.Sprintf("link-%s-%s", e.Source, e.Target)
	b.edges = append(b.edges, e)
}

func ruleNodeID(r schema.Rule) string {
	return "rule-" + r.ID
}

func emptyAnnotation(p schema.Phase) string {
	return fmt.Sprintf("No %s rules", titleForPhase[p])
}

// pivotOffset vertically centers a pivot against the tallest group in its
// row, clamped so the pivot never rises above the row origin when every
// group is shorter than the pivot itself.
func pivotOffset(tallestGroup float64) float64 {
	off := (tallestGroup - PivotHeight) / 2
	if off < 0 {
		return 0
	}
	return off
}

// rowHeight is the vertical extent a row contributes to the cumulative
// offset: the tallest group or the pivot, whichever is larger.
func rowHeight(tallestGroup float64) float64 {
	if tallestGroup < PivotHeight {
		return PivotHeight
	}
	return tallestGroup
}

func maxHeight(hs ...float64) float64 {
	m := 0.0
	for _, h := range hs {
		if h > m {
			m = h
		}
	}
	return m
}
