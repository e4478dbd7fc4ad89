package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stewardhq/steward/internal/catalog"
	"github.com/stewardhq/steward/internal/store"
	"github.com/stewardhq/steward/internal/validation"
	"github.com/stewardhq/steward/pkg/schema"
)

// WorkflowRunner executes one workflow over a batch of initiatives.
// Satisfied by the engine runner.
type WorkflowRunner interface {
	Execute(ctx context.Context, wf *schema.Workflow, records []*schema.Initiative, onChange schema.RecordChange) *schema.ExecutionLog
}

// StewardServerDeps holds the dependencies for creating a StewardServer.
type StewardServerDeps struct {
	Catalog   *catalog.Catalog
	Store     store.Store
	Runner    WorkflowRunner
	Validator *validation.Validator
	Logger    *slog.Logger
}

// StewardServer wraps an MCP server with the workflow administration tools.
type StewardServer struct {
	catalog   *catalog.Catalog
	store     store.Store
	runner    WorkflowRunner
	validator *validation.Validator
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewStewardServer creates a StewardServer with all tools registered.
func NewStewardServer(deps StewardServerDeps) *StewardServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &StewardServer{
		catalog:   deps.Catalog,
		store:     deps.Store,
		runner:    deps.Runner,
		validator: deps.Validator,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"steward",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Steward automates portfolio initiative upkeep. Use steward.define to create workflow rules, steward.catalog to list them (system rules included), steward.update/toggle/duplicate/delete to manage custom rules, steward.test to run a rule against the current initiatives, and steward.logs to inspect recent runs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *StewardServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *StewardServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *StewardServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: catalogTool(), Handler: s.handleCatalog},
		{Tool: updateTool(), Handler: s.handleUpdate},
		{Tool: toggleTool(), Handler: s.handleToggle},
		{Tool: duplicateTool(), Handler: s.handleDuplicate},
		{Tool: deleteTool(), Handler: s.handleDelete},
		{Tool: testTool(), Handler: s.handleTest},
		{Tool: logsTool(), Handler: s.handleLogs},
	}
}

// --- Tool definitions ---

func defineTool() mcp.Tool {
	return mcp.NewTool("steward.define",
		mcp.WithDescription("Create a new automation workflow rule"),
		mcp.WithObject("workflow", mcp.Required(), mcp.Description("Workflow definition object (name, trigger, scope, condition, action)")),
	)
}

func catalogTool() mcp.Tool {
	return mcp.NewTool("steward.catalog",
		mcp.WithDescription("List workflow rules: the built-in system rules first, then custom rules"),
		mcp.WithString("trigger", mcp.Description("Filter by trigger type")),
		mcp.WithBoolean("enabled", mcp.Description("Filter by enabled state")),
	)
}

func updateTool() mcp.Tool {
	return mcp.NewTool("steward.update",
		mcp.WithDescription("Replace a custom rule's definition. System rules are read-only"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to update")),
		mcp.WithObject("workflow", mcp.Required(), mcp.Description("Replacement workflow definition")),
	)
}

func toggleTool() mcp.Tool {
	return mcp.NewTool("steward.toggle",
		mcp.WithDescription("Enable or disable a custom rule. System rules are always enabled"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to toggle")),
		mcp.WithBoolean("enabled", mcp.Required(), mcp.Description("Desired enabled state")),
	)
}

func duplicateTool() mcp.Tool {
	return mcp.NewTool("steward.duplicate",
		mcp.WithDescription("Copy a custom rule under a new ID. The copy starts disabled"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to duplicate")),
	)
}

func deleteTool() mcp.Tool {
	return mcp.NewTool("steward.delete",
		mcp.WithDescription("Delete a custom rule. System rules cannot be deleted"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to delete")),
	)
}

func testTool() mcp.Tool {
	return mcp.NewTool("steward.test",
		mcp.WithDescription("Run a rule against the current initiatives and report what it did"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to run")),
	)
}

func logsTool() mcp.Tool {
	return mcp.NewTool("steward.logs",
		mcp.WithDescription("Return a rule's recent execution log entries (newest last, capped at 10)"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to inspect")),
	)
}
