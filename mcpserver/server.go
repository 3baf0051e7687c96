// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the execution router to the conversational
// tool layer. It uses the mark3labs/mcp-go library to handle the protocol
// details and provides the run_sandboxed tool as the single entry point for
// sandboxed execution. The tool always returns a plain string, never a
// protocol error, so a failed execution cannot break the caller's turn.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/coderouter/config"
	"github.com/isdmx/coderouter/sandbox"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	router    *sandbox.Router
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, router *sandbox.Router) (*MCPServer, error) {
	s := &MCPServer{
		config: cfg,
		logger: logger,
		router: router,
	}

	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("router.default_backend", cfg.Router.DefaultBackend),
		zap.Int("backends", len(router.Backends())))
	logger.Debug("effective configuration", zap.String("config", cfg.Redacted()))

	s.mcpServer = server.NewMCPServer("coderouter", "A multi-backend sandboxed code-execution router")

	s.registerRunSandboxedTool()
	s.registerListBackendsTool()

	return s, nil
}

// registerRunSandboxedTool registers the run_sandboxed tool
func (s *MCPServer) registerRunSandboxedTool() {
	types := make([]string, 0, len(s.router.Backends()))
	for _, t := range s.router.Backends() {
		types = append(types, string(t))
	}

	tool := mcp.Tool{
		Name:        "run_sandboxed",
		Description: "Run the configured computation in an isolated execution backend",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"sandbox_type": map[string]any{
					"type":        "string",
					"description": "Execution backend to use",
					"enum":        types,
				},
				"session_key": map[string]any{
					"type":        "string",
					"description": "Caller-chosen session identity, e.g. derived from the subject being researched",
				},
				"parameters": map[string]any{
					"type":        "object",
					"description": "String parameters substituted into the code template",
				},
				"timeout_ms": map[string]any{
					"type":        "number",
					"description": "Execution budget in milliseconds (optional, backend default applies)",
				},
			},
			Required: []string{"session_key"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunSandboxed)
}

// registerListBackendsTool registers the list_backends tool
func (s *MCPServer) registerListBackendsTool() {
	tool := mcp.Tool{
		Name:        "list_backends",
		Description: "List the registered execution backends",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}

	s.mcpServer.AddTool(tool, func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names := make([]string, 0, len(s.router.Backends()))
		for _, t := range s.router.Backends() {
			names = append(names, string(t))
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{Type: "text", Text: strings.Join(names, "\n")},
			},
		}, nil
	})
}

// handleRunSandboxed handles the run_sandboxed tool
func (s *MCPServer) handleRunSandboxed(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionKey, err := request.RequireString("session_key")
	if err != nil {
		return nil, fmt.Errorf("session_key parameter is required: %w", err)
	}

	sandboxType := request.GetString("sandbox_type", s.config.Router.DefaultBackend)

	params := make(map[string]string)
	args := request.GetArguments()
	if rawParams, ok := args["parameters"].(map[string]any); ok {
		for k, v := range rawParams {
			params[k] = fmt.Sprint(v)
		}
	}

	timeoutMs := 0
	if raw, ok := args["timeout_ms"].(float64); ok {
		timeoutMs = int(raw)
	}

	s.logger.Info("execution requested",
		zap.String("sandbox_type", sandboxType),
		zap.String("session_key", sessionKey),
		zap.Int("parameters", len(params)))

	// The router is fail-soft: the result is always a string, success or a
	// short diagnostic, so the conversation can continue either way.
	out := s.router.Run(ctx, sandboxType, sandbox.Request{
		SessionKey: sessionKey,
		Parameters: params,
		TimeoutMs:  timeoutMs,
	})

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: out},
		},
	}, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
