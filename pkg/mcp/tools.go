package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/ruleflow/internal/expressions"
	"github.com/rendis/ruleflow/internal/layout"
	"github.com/rendis/ruleflow/internal/streaming"
	"github.com/rendis/ruleflow/pkg/schema"
)

// handleSubjects lists every known subject plus the recent history.
func (s *FlowServer) handleSubjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjects, err := s.store.ListSubjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list subjects failed: %v", err)), nil
	}

	recent, err := s.store.RecentSubjects(ctx)
	if err != nil {
		recent = nil // history is a convenience; don't fail the listing
	}

	return marshalResult(map[string]any{
		"subjects": subjects,
		"recent":   recent,
	})
}

// handleRules returns a subject's normalized rule set.
func (s *FlowServer) handleRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject, err := req.RequireString("subject")
	if err != nil {
		return mcp.NewToolResultError("subject is required"), nil
	}

	rules, fetchErr := s.store.FetchRules(ctx, subject)
	if fetchErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetch rules failed: %v", fetchErr)), nil
	}
	schema.NormalizeRules(rules)

	s.captureWatch(ctx, subject)
	return marshalResult(map[string]any{
		"subject": subject,
		"rules":   rules,
	})
}

// handleDiagram builds the positioned diagram for a subject. Groups are
// expanded by default so agents see every rule node; collapsed="true"
// yields the compact layout a fresh panel session would show.
func (s *FlowServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject, err := req.RequireString("subject")
	if err != nil {
		return mcp.NewToolResultError("subject is required"), nil
	}

	rules, fetchErr := s.store.FetchRules(ctx, subject)
	if fetchErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetch rules failed: %v", fetchErr)), nil
	}
	if len(rules) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("no rules found for subject %q", subject)), nil
	}
	schema.NormalizeRules(rules)

	collapsed := map[string]bool{}
	if req.GetString("collapsed", "false") == "true" {
		for _, id := range layout.AllGroupIDs() {
			collapsed[id] = true
		}
	}

	s.captureWatch(ctx, subject)
	return marshalResult(layout.Build(subject, rules, collapsed, ""))
}

// handleScript fetches a rule's script body.
func (s *FlowServer) handleScript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ruleID, err := req.RequireString("rule_id")
	if err != nil {
		return mcp.NewToolResultError("rule_id is required"), nil
	}

	script, fetchErr := s.store.FetchScript(ctx, ruleID)
	if fetchErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetch script failed: %v", fetchErr)), nil
	}

	return marshalResult(map[string]string{
		"rule_id":     ruleID,
		"script_body": script,
	})
}

// handlePreview evaluates a condition or filter expression against sample data.
func (s *FlowServer) handlePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dialect, err := req.RequireString("dialect")
	if err != nil {
		return mcp.NewToolResultError("dialect is required"), nil
	}
	expression, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("expression is required"), nil
	}

	scope := parseScope(mcp.ParseStringMap(req, "scope", nil))

	var result any
	var evalErr error
	switch dialect {
	case "condition":
		result, evalErr = s.previewer.PreviewCondition(ctx, expression, scope)
	case "filter":
		result, evalErr = s.previewer.PreviewFilter(ctx, expression, scope)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown dialect %q: must be condition or filter", dialect)), nil
	}
	if evalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", evalErr)), nil
	}

	return marshalResult(map[string]any{"result": result})
}

// handleProject runs a jq expression over a subject's rule collection.
func (s *FlowServer) handleProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject, err := req.RequireString("subject")
	if err != nil {
		return mcp.NewToolResultError("subject is required"), nil
	}
	expression, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("expression is required"), nil
	}

	rules, fetchErr := s.store.FetchRules(ctx, subject)
	if fetchErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetch rules failed: %v", fetchErr)), nil
	}

	results, projErr := s.previewer.Project(ctx, expression, subject, rules)
	if projErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("projection failed: %v", projErr)), nil
	}

	return marshalResult(map[string]any{"results": results})
}

// handleImport validates a rule document and replaces the subject's rules.
func (s *FlowServer) handleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docRaw := mcp.ParseStringMap(req, "document", nil)
	if docRaw == nil {
		return mcp.NewToolResultError("document is required"), nil
	}

	raw, marshalErr := json.Marshal(docRaw)
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", marshalErr)), nil
	}

	doc, valErr := s.validator.ValidateRaw(raw)
	if valErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("validation failed: %v", valErr)), nil
	}

	if storeErr := s.store.ReplaceRules(ctx, doc.Subject, doc.Rules); storeErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("import failed: %v", storeErr)), nil
	}

	// Sessions watching this subject hold a stale diagram now.
	s.publishSubjectEvent(ctx, streaming.EventDiagramRecomputed, doc.Subject)

	return marshalResult(map[string]any{
		"subject":    doc.Subject,
		"rule_count": len(doc.Rules),
	})
}

// --- Internal helpers ---

// parseScope lifts a raw scope map into a PreviewScope.
func parseScope(raw map[string]any) expressions.PreviewScope {
	var scope expressions.PreviewScope
	if raw == nil {
		return scope
	}
	if m, ok := raw["record"].(map[string]any); ok {
		scope.Record = m
	}
	if m, ok := raw["previous"].(map[string]any); ok {
		scope.Previous = m
	}
	if m, ok := raw["user"].(map[string]any); ok {
		scope.User = m
	}
	return scope
}

// publishSubjectEvent feeds the hub the notifier subscribes to. Best-effort:
// a nil hub means no notifier is running.
func (s *FlowServer) publishSubjectEvent(ctx context.Context, eventType, subject string) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(ctx, streaming.StreamEvent{EventType: eventType, Subject: subject}); err != nil {
		s.logger.Debug("event publish failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}

// captureWatch maps the current MCP session to the subject it asked about so
// the notifier can push diagram updates back to it.
func (s *FlowServer) captureWatch(ctx context.Context, subject string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Watch(subject, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
