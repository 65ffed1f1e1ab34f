package view

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rendis/ruleflow/internal/layout"
	"github.com/rendis/ruleflow/internal/store"
	"github.com/rendis/ruleflow/internal/streaming"
	"github.com/rendis/ruleflow/pkg/schema"
)

// ErrSuperseded is returned by LoadSubject when a newer load committed while
// this one was in flight. The stale result is discarded; callers can ignore
// the error since the newer load already owns the session state.
var ErrSuperseded = errors.New("load superseded by a newer request")

// Filter names accepted by SetFilter.
const (
	FilterHideInherited = "hide_inherited"
	FilterHideActive    = "hide_active"
	FilterHideInactive  = "hide_inactive"
)

// Filters are the active rule-visibility toggles. They apply as an
// intersection; enabling both hide_active and hide_inactive yields an empty
// diagram, which is valid content, not an error.
type Filters struct {
	HideInherited bool `json:"hide_inherited"`
	HideActive    bool `json:"hide_active"`
	HideInactive  bool `json:"hide_inactive"`
}

func (f Filters) hides(r schema.Rule) bool {
	if f.HideInherited && r.Inherited() {
		return true
	}
	if f.HideActive && r.Active {
		return true
	}
	if f.HideInactive && !r.Active {
		return true
	}
	return false
}

// State is a read-only snapshot of a session's view state.
type State struct {
	Subject         string   `json:"subject"`
	CollapsedGroups []string `json:"collapsed_groups"`
	SelectedRuleID  string   `json:"selected_rule_id,omitempty"`
	Filters         Filters  `json:"filters"`
}

// Controller owns one session's mutable view state and re-derives the
// diagram through layout.Build whenever that state changes. Every rebuild
// runs over an atomic snapshot taken under the lock, so concurrent callers
// never observe a half-updated diagram.
type Controller struct {
	sessionID string
	source    store.RuleSource
	prefs     store.PreferenceStore
	hub       streaming.EventHub
	logger    *slog.Logger

	mu         sync.Mutex
	gen        uint64 // load generation; stale fetches must not commit
	subject    string
	rules      []schema.Rule
	collapsed  map[string]bool
	selectedID string
	filters    Filters
	diagram    *schema.Diagram
}

// NewController creates a controller for one session. prefs and hub may be
// nil; preference persistence and event publishing are then skipped.
func NewController(sessionID string, source store.RuleSource, prefs store.PreferenceStore, hub streaming.EventHub, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		sessionID: sessionID,
		source:    source,
		prefs:     prefs,
		hub:       hub,
		logger:    logger,
		collapsed: make(map[string]bool),
	}
}

// SessionID returns the controller's session identifier.
func (c *Controller) SessionID() string { return c.sessionID }

// LoadSubject fetches the rule set for name and, on success, replaces the
// active state: selection cleared, every phase group collapsed (the right
// default for large rule sets), and the diagram recomputed. On failure or an
// empty result the previous diagram is left untouched.
//
// Each call takes a fresh generation before fetching; a response whose
// generation is no longer current returns ErrSuperseded instead of
// overwriting state that belongs to a newer request.
func (c *Controller) LoadSubject(ctx context.Context, name string) (*schema.Diagram, error) {
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeInputMissing, "subject name is required")
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	rules, err := c.source.FetchRules(ctx, name)
	if err != nil {
		err = classifyFetchErr(err, name)
		c.publish(ctx, streaming.StreamEvent{
			SessionID: c.sessionID,
			Subject:   name,
			EventType: streaming.EventSubjectFailed,
			Payload:   map[string]any{"error": err.Error()},
		})
		return nil, err
	}
	if len(rules) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeEmptyResult, "no rules found for subject %q", name)
	}
	schema.NormalizeRules(rules)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return nil, ErrSuperseded
	}
	if name != c.subject {
		// Switching subjects clears the whole view state.
		c.filters = Filters{}
	}
	c.subject = name
	c.rules = rules
	c.selectedID = ""
	c.collapsed = allCollapsed()
	d := c.recomputeLocked()
	c.mu.Unlock()

	c.publish(ctx, streaming.StreamEvent{
		SessionID: c.sessionID,
		Subject:   name,
		EventType: streaming.EventSubjectLoaded,
		Payload:   d,
	})
	c.savePreference(ctx, name)
	return d, nil
}

// ToggleGroup flips the collapsed state of one phase group and recomputes.
// An id with no corresponding group in the current diagram is a no-op.
func (c *Controller) ToggleGroup(ctx context.Context, groupID string) *schema.Diagram {
	c.mu.Lock()
	if !c.hasGroupLocked(groupID) {
		d := c.diagram
		c.mu.Unlock()
		return d
	}
	if c.collapsed[groupID] {
		delete(c.collapsed, groupID)
	} else {
		c.collapsed[groupID] = true
	}
	d := c.recomputeLocked()
	subject := c.subject
	c.mu.Unlock()

	c.publishRecompute(ctx, subject, d)
	return d
}

// SelectRule sets (or clears, with "") the selected rule and recomputes.
// A rule hidden by filters or a collapsed group is never rendered, so it
// cannot be selected in the first place; no guard is needed here.
func (c *Controller) SelectRule(ctx context.Context, ruleID string) *schema.Diagram {
	c.mu.Lock()
	c.selectedID = ruleID
	d := c.recomputeLocked()
	subject := c.subject
	c.mu.Unlock()

	c.publishRecompute(ctx, subject, d)
	return d
}

// SetFilter updates one visibility filter and recomputes. Enabling a filter
// that hides the currently selected rule clears the selection in the same
// transition: no detail may be shown for a rule the user just hid.
func (c *Controller) SetFilter(ctx context.Context, name string, value bool) (*schema.Diagram, error) {
	c.mu.Lock()
	switch name {
	case FilterHideInherited:
		c.filters.HideInherited = value
	case FilterHideActive:
		c.filters.HideActive = value
	case FilterHideInactive:
		c.filters.HideInactive = value
	default:
		c.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown filter %q", name)
	}
	if value && c.selectedID != "" && c.selectedHiddenLocked() {
		c.selectedID = ""
	}
	d := c.recomputeLocked()
	subject := c.subject
	c.mu.Unlock()

	c.publishRecompute(ctx, subject, d)
	return d, nil
}

// Diagram returns the last computed diagram, or nil before the first load.
func (c *Controller) Diagram() *schema.Diagram {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diagram
}

// State returns a snapshot of the current view state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	collapsed := make([]string, 0, len(c.collapsed))
	for _, id := range layout.AllGroupIDs() {
		if c.collapsed[id] {
			collapsed = append(collapsed, id)
		}
	}
	return State{
		Subject:         c.subject,
		CollapsedGroups: collapsed,
		SelectedRuleID:  c.selectedID,
		Filters:         c.filters,
	}
}

// Refresh re-fetches the current subject, keeping the session current when
// rules change underneath it. No-op before the first successful load.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	subject := c.subject
	c.mu.Unlock()
	if subject == "" {
		return nil
	}
	_, err := c.LoadSubject(ctx, subject)
	if errors.Is(err, ErrSuperseded) {
		return nil
	}
	return err
}

// --- internals ---

// recomputeLocked rebuilds the diagram from the current state snapshot.
// Caller must hold c.mu.
func (c *Controller) recomputeLocked() *schema.Diagram {
	visible := make([]schema.Rule, 0, len(c.rules))
	for _, r := range c.rules {
		if !c.filters.hides(r) {
			visible = append(visible, r)
		}
	}
	c.diagram = layout.Build(c.subject, visible, c.collapsed, c.selectedID)
	return c.diagram
}

func (c *Controller) hasGroupLocked(groupID string) bool {
	if c.diagram == nil {
		return false
	}
	for _, n := range c.diagram.Nodes {
		if n.ID == groupID && n.Kind == schema.NodeKindGroup {
			return true
		}
	}
	return false
}

func (c *Controller) selectedHiddenLocked() bool {
	for _, r := range c.rules {
		if r.ID == c.selectedID {
			return c.filters.hides(r)
		}
	}
	return false
}

func (c *Controller) publishRecompute(ctx context.Context, subject string, d *schema.Diagram) {
	c.publish(ctx, streaming.StreamEvent{
		SessionID: c.sessionID,
		Subject:   subject,
		EventType: streaming.EventDiagramRecomputed,
		Payload:   d,
	})
}

func (c *Controller) publish(ctx context.Context, event streaming.StreamEvent) {
	if c.hub == nil {
		return
	}
	if err := c.hub.Publish(ctx, event); err != nil {
		c.logger.Debug("event publish failed",
			slog.String("session_id", c.sessionID),
			slog.String("error", err.Error()))
	}
}

// savePreference records the subject in the recent history. Fire-and-forget:
// history is a convenience, so failures are swallowed.
func (c *Controller) savePreference(ctx context.Context, name string) {
	if c.prefs == nil {
		return
	}
	go func(ctx context.Context) {
		if err := c.prefs.SaveRecentSubject(ctx, name); err != nil {
			c.logger.Debug("saving recent subject failed",
				slog.String("subject", name),
				slog.String("error", err.Error()))
		}
	}(context.WithoutCancel(ctx))
}

func allCollapsed() map[string]bool {
	m := make(map[string]bool, 4)
	for _, id := range layout.AllGroupIDs() {
		m[id] = true
	}
	return m
}

// classifyFetchErr maps rule-source failures onto the error taxonomy:
// structured errors pass through, anything else is a transport failure.
func classifyFetchErr(err error, subject string) error {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeTransport, "rule source unreachable for %q", subject).WithCause(err)
}
