package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/ruleflow/internal/expressions"
	"github.com/rendis/ruleflow/internal/store"
	"github.com/rendis/ruleflow/internal/streaming"
	"github.com/rendis/ruleflow/internal/validation"
)

// FlowServerDeps holds the dependencies for creating a FlowServer.
type FlowServerDeps struct {
	Store     store.Store
	Previewer *expressions.Previewer
	Validator validation.Validator
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// FlowServer wraps an MCP server with rule-diagram tool handlers so agents
// can inspect subjects, rules, and diagrams over stdio.
type FlowServer struct {
	store     store.Store
	previewer *expressions.Previewer
	validator validation.Validator
	hub       streaming.EventHub
	logger    *slog.Logger
	sessions  *SessionRegistry
	mcpServer *server.MCPServer
}

// NewFlowServer creates a FlowServer with all 7 tools registered.
func NewFlowServer(deps FlowServerDeps) *FlowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FlowServer{
		store:     deps.Store,
		previewer: deps.Previewer,
		validator: deps.Validator,
		hub:       deps.Hub,
		logger:    logger,
		sessions:  NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"ruleflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Ruleflow turns a subject's lifecycle rules into a positioned diagram. Use ruleflow.subjects to list subjects, ruleflow.rules for a subject's rule set, ruleflow.diagram for the laid-out graph, ruleflow.script for a rule's script body, ruleflow.preview to evaluate condition or filter expressions against sample data, ruleflow.project to run jq over a rule set, and ruleflow.import to replace a subject's rules."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *FlowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: subjectsTool(), Handler: s.handleSubjects},
		{Tool: rulesTool(), Handler: s.handleRules},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: scriptTool(), Handler: s.handleScript},
		{Tool: previewTool(), Handler: s.handlePreview},
		{Tool: projectTool(), Handler: s.handleProject},
		{Tool: importTool(), Handler: s.handleImport},
	}
}

// --- Tool definitions ---

func subjectsTool() mcp.Tool {
	return mcp.NewTool("ruleflow.subjects",
		mcp.WithDescription("List all known subjects and the recently viewed ones"),
	)
}

func rulesTool() mcp.Tool {
	return mcp.NewTool("ruleflow.rules",
		mcp.WithDescription("Fetch the normalized rule set for a subject"),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Subject name")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("ruleflow.diagram",
		mcp.WithDescription("Build the positioned rule diagram for a subject"),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Subject name")),
		mcp.WithString("collapsed", mcp.Description("Collapse all phase groups (default: false, groups expanded)")),
	)
}

func scriptTool() mcp.Tool {
	return mcp.NewTool("ruleflow.script",
		mcp.WithDescription("Fetch a rule's script body"),
		mcp.WithString("rule_id", mcp.Required(), mcp.Description("Rule ID")),
	)
}

func previewTool() mcp.Tool {
	return mcp.NewTool("ruleflow.preview",
		mcp.WithDescription("Evaluate a rule expression against sample record data"),
		mcp.WithString("dialect", mcp.Required(),
			mcp.Enum("condition", "filter"),
			mcp.Description("Expression dialect: condition (CEL) or filter (Expr)"),
		),
		mcp.WithString("expression", mcp.Required(), mcp.Description("Expression to evaluate")),
		mcp.WithObject("scope", mcp.Description("Sample data with record, previous, and user objects")),
	)
}

func projectTool() mcp.Tool {
	return mcp.NewTool("ruleflow.project",
		mcp.WithDescription("Run a jq expression over a subject's rule collection"),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Subject name")),
		mcp.WithString("expression", mcp.Required(), mcp.Description("jq expression, evaluated against {subject, rules}")),
	)
}

func importTool() mcp.Tool {
	return mcp.NewTool("ruleflow.import",
		mcp.WithDescription("Validate a rule document and atomically replace the subject's rules"),
		mcp.WithObject("document", mcp.Required(), mcp.Description("Rule document: {subject, rules}")),
	)
}
