package layout

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/ruleflow/pkg/schema"
)

// --- Test fixtures ---

func mkRule(id, phase string, order int) schema.Rule {
	return schema.Rule{
		ID:     id,
		Name:   "rule " + id,
		Phase:  phase,
		Order:  order,
		Active: true,
	}
}

func mkRules(phase string, n int) []schema.Rule {
	rules := make([]schema.Rule, 0, n)
	for i := 0; i < n; i++ {
		rules = append(rules, mkRule(fmt.Sprintf("%s-%d", phase, i), phase, (i+1)*10))
	}
	return rules
}

func findNode(t *testing.T, d *schema.Diagram, id string) schema.Node {
	t.Helper()
	for _, n := range d.Nodes {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("node %q not found", id)
	return schema.Node{}
}

func hasNode(d *schema.Diagram, id string) bool {
	for _, n := range d.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

func nodesOfKind(d *schema.Diagram, kind schema.NodeKind) []schema.Node {
	var out []schema.Node
	for _, n := range d.Nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func edgesOfKind(d *schema.Diagram, kind schema.EdgeKind) []schema.Edge {
	var out []schema.Edge
	for _, e := range d.Edges {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func findEdge(t *testing.T, d *schema.Diagram, source, target string) schema.Edge {
	t.Helper()
	for _, e := range d.Edges {
		if e.Source == source && e.Target == target {
			return e
		}
	}
	t.Fatalf("edge %s -> %s not found", source, target)
	return schema.Edge{}
}

func noCollapsed() map[string]bool { return map[string]bool{} }

// --- Scenario tests ---

func TestBuildOrdersWithinGroupAndLinksPivot(t *testing.T) {
	rules := []schema.Rule{
		mkRule("b1", "before", 100),
		mkRule("b2", "before", 50),
		mkRule("a1", "after", 10),
	}

	d := Build("incident", rules, noCollapsed(), "")

	// Before group holds two rules ordered [50, 100].
	before := findNode(t, d, "group-before")
	require.NotNil(t, before.Group)
	assert.Equal(t, 2, before.Group.RuleCount)

	var beforeRules []schema.Node
	for _, n := range d.Nodes {
		if n.ParentID == "group-before" {
			beforeRules = append(beforeRules, n)
		}
	}
	require.Len(t, beforeRules, 2)
	assert.Equal(t, "rule-b2", beforeRules[0].ID)
	assert.Equal(t, "rule-b1", beforeRules[1].ID)

	// Exactly one sequential edge, inside the before group.
	seq := edgesOfKind(d, schema.EdgeKindSequential)
	require.Len(t, seq, 1)
	assert.Equal(t, "rule-b2", seq[0].Source)
	assert.Equal(t, "rule-b1", seq[0].Target)

	// Last before-rule feeds the write pivot; the pivot feeds the only
	// after-rule.
	in := findEdge(t, d, "rule-b1", "pivot-write")
	assert.Empty(t, in.SourceHandle)
	assert.Empty(t, in.Annotation)
	out := findEdge(t, d, "pivot-write", "rule-a1")
	assert.Empty(t, out.TargetHandle)
	assert.Empty(t, out.Annotation)
}

func TestBuildAsyncOnly(t *testing.T) {
	rules := []schema.Rule{mkRule("x1", "async", 100)}

	d := Build("incident", rules, noCollapsed(), "")

	// Write pivot has annotated fallback edges on both sides.
	in := findEdge(t, d, "group-before", "pivot-write")
	assert.Equal(t, GroupHandleOut, in.SourceHandle)
	assert.Equal(t, "No Before rules", in.Annotation)

	out := findEdge(t, d, "pivot-write", "group-after")
	assert.Equal(t, GroupHandleIn, out.TargetHandle)
	assert.Equal(t, "No After rules", out.Annotation)

	// Async rule renders inside its group with no edge touching the pivot.
	async := findNode(t, d, "rule-x1")
	assert.Equal(t, "group-async", async.ParentID)
	for _, e := range d.Edges {
		assert.NotEqual(t, "rule-x1", e.Source)
		assert.NotEqual(t, "rule-x1", e.Target)
	}
}

func TestBuildAllPhasesTwoRows(t *testing.T) {
	var rules []schema.Rule
	rules = append(rules, mkRules("before", 2)...)
	rules = append(rules, mkRules("after", 3)...)
	rules = append(rules, mkRules("async", 1)...)
	rules = append(rules, mkRules("display", 2)...)

	d := Build("incident", rules, noCollapsed(), "")

	assert.Len(t, nodesOfKind(d, schema.NodeKindLabel), 2)
	assert.Len(t, nodesOfKind(d, schema.NodeKindGroup), 4)
	assert.Len(t, nodesOfKind(d, schema.NodeKindPivot), 3)
	assert.Len(t, nodesOfKind(d, schema.NodeKindRule), 8)

	// Form load row stacks above the record write row.
	formLoad := findNode(t, d, "label-form-load")
	recordWrite := findNode(t, d, "label-record-write")
	assert.Less(t, formLoad.Position.Y, recordWrite.Position.Y)

	display := findNode(t, d, "group-display")
	before := findNode(t, d, "group-before")
	assert.Less(t, display.Position.Y, before.Position.Y)

	// Read pivot, display group, render pivot run left to right.
	read := findNode(t, d, "pivot-read")
	render := findNode(t, d, "pivot-render")
	assert.Less(t, read.Position.X, display.Position.X)
	assert.Less(t, display.Position.X, render.Position.X)
}

func TestBuildCollapsedGroupsRouteViaHandles(t *testing.T) {
	var rules []schema.Rule
	rules = append(rules, mkRules("before", 2)...)
	rules = append(rules, mkRules("after", 2)...)

	collapsed := map[string]bool{"group-before": true, "group-after": true}
	d := Build("incident", rules, collapsed, "")

	// Pivot edges route via the group handles even though rules exist.
	in := findEdge(t, d, "group-before", "pivot-write")
	assert.Equal(t, GroupHandleOut, in.SourceHandle)
	assert.Empty(t, in.Annotation, "collapsed groups carry no annotation")

	out := findEdge(t, d, "pivot-write", "group-after")
	assert.Equal(t, GroupHandleIn, out.TargetHandle)
	assert.Empty(t, out.Annotation)

	// Child rule nodes and sequential edges are absent, not hidden.
	assert.Empty(t, nodesOfKind(d, schema.NodeKindRule))
	assert.Empty(t, edgesOfKind(d, schema.EdgeKindSequential))

	// Collapsed containers are header-only height.
	before := findNode(t, d, "group-before")
	assert.Equal(t, GroupCollapsedHeight, before.Size.Height)
	assert.Equal(t, 2, before.Group.RuleCount)
	assert.True(t, before.Group.Collapsed)
}

func TestBuildEmptyCollection(t *testing.T) {
	d := Build("incident", nil, noCollapsed(), "")

	assert.Empty(t, nodesOfKind(d, schema.NodeKindRule))
	for _, g := range nodesOfKind(d, schema.NodeKindGroup) {
		assert.Equal(t, 0, g.Group.RuleCount)
	}

	// No display rules: no form load row at all, record write row starts at
	// the top.
	assert.False(t, hasNode(d, "label-form-load"))
	assert.False(t, hasNode(d, "pivot-read"))
	assert.False(t, hasNode(d, "pivot-render"))
	assert.False(t, hasNode(d, "group-display"))
	label := findNode(t, d, "label-record-write")
	assert.Equal(t, 0.0, label.Position.Y)
}

// --- Property tests ---

func TestSequentialEdgeCountPerGroup(t *testing.T) {
	for _, n := range []int{0, 1, 2, 5, 9} {
		d := Build("incident", mkRules("before", n), noCollapsed(), "")
		want := n - 1
		if want < 0 {
			want = 0
		}
		assert.Len(t, edgesOfKind(d, schema.EdgeKindSequential), want, "n=%d", n)
	}
}

func TestCollapseExpandRoundTrip(t *testing.T) {
	var rules []schema.Rule
	rules = append(rules, mkRules("before", 3)...)
	rules = append(rules, mkRules("display", 2)...)

	open := Build("incident", rules, noCollapsed(), "")
	folded := Build("incident", rules, map[string]bool{"group-before": true}, "")
	reopened := Build("incident", rules, noCollapsed(), "")

	// Collapsing removes exactly the group's rule nodes and intra-group
	// edges; re-expanding over the same data restores the original output.
	assert.Equal(t, open, reopened)
	assert.Len(t, nodesOfKind(folded, schema.NodeKindRule), 2)
	for _, n := range nodesOfKind(folded, schema.NodeKindRule) {
		assert.Equal(t, "group-display", n.ParentID)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	var rules []schema.Rule
	rules = append(rules, mkRules("before", 2)...)
	rules = append(rules, mkRules("after", 2)...)
	rules = append(rules, mkRules("display", 1)...)

	collapsed := map[string]bool{"group-async": true}
	first := Build("incident", rules, collapsed, "before-0")
	second := Build("incident", rules, collapsed, "before-0")

	assert.Equal(t, first, second)
}

func TestGroupHeightMonotonic(t *testing.T) {
	prev := 0.0
	for n := 0; n <= 12; n++ {
		h := GroupHeight(n, false)
		assert.GreaterOrEqual(t, h, prev, "n=%d", n)
		assert.GreaterOrEqual(t, h, GroupMinHeight)
		prev = h
	}
	// Collapsed height ignores rule count.
	assert.Equal(t, GroupHeight(0, true), GroupHeight(50, true))
}

func TestStableOrderOnTies(t *testing.T) {
	rules := []schema.Rule{
		mkRule("first", "before", 100),
		mkRule("second", "before", 100),
		mkRule("third", "before", 100),
	}

	d := Build("incident", rules, noCollapsed(), "")

	var ids []string
	for _, n := range d.Nodes {
		if n.Kind == schema.NodeKindRule {
			ids = append(ids, n.ID)
		}
	}
	assert.Equal(t, []string{"rule-first", "rule-second", "rule-third"}, ids)
}

func TestUnrecognizedPhaseDropped(t *testing.T) {
	rules := []schema.Rule{
		mkRule("ok", "before", 10),
		mkRule("weird", "sometime", 10),
	}

	d := Build("incident", rules, noCollapsed(), "")

	assert.True(t, hasNode(d, "rule-ok"))
	assert.False(t, hasNode(d, "rule-weird"))
}

func TestPivotClampedToRowTop(t *testing.T) {
	var rules []schema.Rule
	rules = append(rules, mkRules("before", 4)...)
	rules = append(rules, mkRules("after", 1)...)

	// Everything collapsed: every group is shorter than the pivot, which
	// must sit at the row origin rather than above it.
	collapsed := map[string]bool{
		"group-before": true, "group-after": true, "group-async": true,
	}
	d := Build("incident", rules, collapsed, "")

	pivot := findNode(t, d, "pivot-write")
	group := findNode(t, d, "group-before")
	assert.Equal(t, group.Position.Y, pivot.Position.Y)

	// Expanded tall group: pivot centers against it, below the row top.
	open := Build("incident", rules, noCollapsed(), "")
	pivot = findNode(t, open, "pivot-write")
	group = findNode(t, open, "group-before")
	assert.Greater(t, pivot.Position.Y, group.Position.Y)
	assert.Less(t, pivot.Position.Y+PivotHeight, group.Position.Y+group.Size.Height)
}

func TestContainersPrecedeChildren(t *testing.T) {
	var rules []schema.Rule
	rules = append(rules, mkRules("before", 2)...)
	rules = append(rules, mkRules("display", 2)...)

	d := Build("incident", rules, noCollapsed(), "")

	seen := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ParentID != "" {
			assert.True(t, seen[n.ParentID], "parent %s must precede child %s", n.ParentID, n.ID)
		}
		seen[n.ID] = true
	}
}

func TestSelectedRuleFlagged(t *testing.T) {
	rules := mkRules("before", 3)

	d := Build("incident", rules, noCollapsed(), "before-1")

	selected := 0
	for _, n := range nodesOfKind(d, schema.NodeKindRule) {
		if n.Rule.Selected {
			selected++
			assert.Equal(t, "rule-before-1", n.ID)
		}
	}
	assert.Equal(t, 1, selected)
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	rules := []schema.Rule{
		mkRule("b1", "before", 100),
		mkRule("b2", "before", 50),
	}

	Build("incident", rules, noCollapsed(), "")

	assert.Equal(t, "b1", rules[0].ID)
	assert.Equal(t, "b2", rules[1].ID)
}
