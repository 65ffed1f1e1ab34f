package schema

// NodeKind classifies a diagram node by its visual variant.
type NodeKind string

const (
	NodeKindLabel NodeKind = "section-label"
	NodeKindGroup NodeKind = "group"
	NodeKindRule  NodeKind = "rule"
	NodeKindPivot NodeKind = "pivot"
)

// PivotKind identifies which fixed anchor a pivot node represents.
type PivotKind string

const (
	PivotRead   PivotKind = "read"
	PivotWrite  PivotKind = "write"
	PivotRender PivotKind = "render"
)

// EdgeKind classifies a diagram edge.
type EdgeKind string

const (
	EdgeKindSequential EdgeKind = "sequential"
	EdgeKindPivotLink  EdgeKind = "pivot-link"
)

// Position holds x/y coordinates for rendering a node on the canvas.
// Nodes with a parent are positioned relative to that parent's origin.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size holds a node's rendered dimensions.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node is a positioned visual unit in the diagram. Exactly one of the
// variant payloads (Label, Group, Rule, Pivot) is non-nil, matching Kind;
// renderers dispatch on the kind tag.
type Node struct {
	ID       string   `json:"id"`
	Kind     NodeKind `json:"kind"`
	Position Position `json:"position"`
	Size     Size     `json:"size"`
	ParentID string   `json:"parent_id,omitempty"`

	Label *LabelData `json:"label,omitempty"`
	Group *GroupData `json:"group,omitempty"`
	Rule  *RuleData  `json:"rule,omitempty"`
	Pivot *PivotData `json:"pivot,omitempty"`
}

// LabelData is the payload of a non-interactive section divider.
type LabelData struct {
	Text string `json:"text"`
}

// GroupData is the payload of a collapsible phase container.
type GroupData struct {
	Phase     Phase  `json:"phase"`
	Title     string `json:"title"`
	RuleCount int    `json:"rule_count"`
	Collapsed bool   `json:"collapsed"`
}

// RuleData is the payload of a leaf rule node.
type RuleData struct {
	Rule     Rule `json:"rule"`
	Selected bool `json:"selected"`
}

// PivotData is the payload of a fixed data-operation anchor.
type PivotData struct {
	Kind  PivotKind `json:"kind"`
	Label string    `json:"label"`
}

// Edge is a directed connector between two nodes. Handles name specific
// attachment points on the endpoint nodes (used for fallback routing onto a
// group container when the group is empty or collapsed). Intent is a
// pass-through visual hint the layout never interprets.
type Edge struct {
	ID           string   `json:"id"`
	Source       string   `json:"source"`
	Target       string   `json:"target"`
	SourceHandle string   `json:"source_handle,omitempty"`
	TargetHandle string   `json:"target_handle,omitempty"`
	Kind         EdgeKind `json:"kind"`
	Annotation   string   `json:"annotation,omitempty"`
	Intent       string   `json:"intent,omitempty"`
}

// Diagram is the full positioned output handed to the rendering substrate.
type Diagram struct {
	Subject string `json:"subject"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}
