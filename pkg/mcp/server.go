package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wizzardx/davinci/internal/machine"
	"github.com/wizzardx/davinci/internal/pipeline"
	"github.com/wizzardx/davinci/internal/store"
)

// DavinciServerDeps holds the dependencies for creating a DavinciServer.
type DavinciServerDeps struct {
	Runner  *pipeline.Runner
	Store   store.Store // optional; davinci.history needs it
	Extract machine.ExtractOptions
	Version string
	Logger  *slog.Logger
}

// DavinciServer wraps an MCP server with the verification tools.
type DavinciServer struct {
	runner    *pipeline.Runner
	store     store.Store
	extract   machine.ExtractOptions
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewDavinciServer creates a DavinciServer with all tools registered.
func NewDavinciServer(deps DavinciServerDeps) *DavinciServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	runner := deps.Runner
	if runner == nil {
		runner = pipeline.NewRunner(pipeline.Options{}, deps.Store, logger)
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &DavinciServer{
		runner:  runner,
		store:   deps.Store,
		extract: deps.Extract,
		logger:  logger,
	}

	mcpSrv := server.NewMCPServer(
		"davinci",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Davinci checks declared properties of hierarchical component documents. Use davinci.verify to verify a document, davinci.extract to inspect the state machine derived from a component, and davinci.history to list past verification runs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *DavinciServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *DavinciServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *DavinciServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: verifyTool(), Handler: s.handleVerify},
		{Tool: extractTool(), Handler: s.handleExtract},
		{Tool: historyTool(), Handler: s.handleHistory},
	}
}

// --- Tool definitions ---

func verifyTool() mcp.Tool {
	return mcp.NewTool("davinci.verify",
		mcp.WithDescription("Verify the properties declared in a component document"),
		mcp.WithObject("document", mcp.Description("Document object with types, components and properties")),
		mcp.WithString("source", mcp.Description("Document text, JSON or YAML (used when document is absent)")),
		mcp.WithString("format",
			mcp.Enum("json", "text", "markdown"),
			mcp.Description("Report format (default: json)"),
		),
		mcp.WithString("filter", mcp.Description("jq filter applied to the JSON report")),
	)
}

func extractTool() mcp.Tool {
	return mcp.NewTool("davinci.extract",
		mcp.WithDescription("Extract the state machine of one component"),
		mcp.WithObject("document", mcp.Description("Document object with types, components and properties")),
		mcp.WithString("source", mcp.Description("Document text, JSON or YAML (used when document is absent)")),
		mcp.WithString("component", mcp.Required(), mcp.Description("Component id or slash-separated path")),
		mcp.WithString("format",
			mcp.Enum("json", "mermaid"),
			mcp.Description("Output format (default: json)"),
		),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("davinci.history",
		mcp.WithDescription("List past verification runs, or one property's outcomes"),
		mcp.WithString("property_id", mcp.Description("Return this property's outcomes instead of runs")),
		mcp.WithString("since", mcp.Description("Only runs started at or after this RFC 3339 time")),
		mcp.WithBoolean("failed_only", mcp.Description("Only runs that failed")),
		mcp.WithNumber("limit", mcp.Description("Maximum entries (default: 20)")),
	)
}
