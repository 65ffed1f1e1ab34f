package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/ruleflow/internal/streaming"
)

// FlowNotifier forwards diagram events from the streaming hub to the MCP
// sessions watching the affected subject, as MCP push notifications.
type FlowNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
	logger    *slog.Logger
}

// NewFlowNotifier creates a notifier bound to the server's session registry.
func NewFlowNotifier(s *FlowServer) *FlowNotifier {
	return &FlowNotifier{
		mcpServer: s.mcpServer,
		sessions:  s.sessions,
		logger:    s.logger,
	}
}

// Run subscribes to diagram events and pushes them until ctx is cancelled.
func (n *FlowNotifier) Run(ctx context.Context, hub streaming.EventHub) error {
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{
		EventTypes: []string{
			streaming.EventSubjectLoaded,
			streaming.EventDiagramRecomputed,
			streaming.EventSubjectFailed,
		},
	})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			n.notify(event)
		}
	}
}

// notify pushes one event to every session watching its subject.
// Best-effort: expired sessions are pruned, other failures are logged.
func (n *FlowNotifier) notify(event streaming.StreamEvent) {
	for _, sessionID := range n.sessions.SessionsFor(event.Subject) {
		err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", map[string]any{
			"event_type": event.EventType,
			"subject":    event.Subject,
		})
		if errors.Is(err, server.ErrSessionNotFound) {
			n.sessions.Remove(sessionID)
			continue
		}
		if err != nil {
			n.logger.Debug("notification push failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
		}
	}
}
