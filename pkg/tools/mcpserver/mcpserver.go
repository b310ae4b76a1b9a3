// Package mcpserver exposes a ToolBox over the Model Context Protocol, so the
// vegetation tools can be used by any MCP client.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
	"github.com/Berektassuly/terra-vision-ai/pkg/tools/toolbox"
)

// MCPServer serves tools over the MCP protocol using the official MCP Go SDK.
type MCPServer struct {
	server  *mcp.Server
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an MCPServer.
type Option func(*MCPServer)

// WithToolTimeout bounds each tool call. Zero means no bound.
func WithToolTimeout(d time.Duration) Option {
	return func(s *MCPServer) { s.timeout = d }
}

// WithLogger sets the logger used for per-call debug logs.
func WithLogger(l *slog.Logger) Option {
	return func(s *MCPServer) { s.logger = l }
}

// New creates a new MCPServer with the given name and version.
func New(name, version string, opts ...Option) *MCPServer {
	s := &MCPServer{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    name,
			Version: version,
		}, nil),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds every tool in tb to the server. Calls go through tb.Call, so
// argument validation, not-found handling and panic recovery match what the
// agent sees.
func (s *MCPServer) Register(tb *toolbox.ToolBox) {
	for _, t := range tb.Tools() {
		s.server.AddTool(toSDKTool(t), s.handler(tb, t.Name))
	}
}

// Serve starts serving MCP requests. It reads requests from in and writes
// responses to out. It blocks until ctx is cancelled or the transport closes.
func (s *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}

	return s.run(ctx, transport)
}

// run starts the server with the given transport. Tests call it directly with
// in-memory transports.
func (s *MCPServer) run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func toSDKTool(t toolbox.Tool) *mcp.Tool {
	schema := t.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	return &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}

// handler adapts a toolbox call to an SDK ToolHandler. The client receives
// the full result, including rendered images, as a single text block.
func (s *MCPServer) handler(tb *toolbox.ToolBox, name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		args := "{}"
		if len(req.Params.Arguments) > 0 {
			args = string(req.Params.Arguments)
		}

		start := time.Now()
		tr := tb.Call(ctx, content.ToolCall{Name: name, Arguments: args})
		s.logger.DebugContext(ctx, "mcp tool call",
			"tool", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", tr.IsError,
		)

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(tr.Full())}},
			IsError: tr.IsError,
		}, nil
	}
}

// nopWriteCloser wraps an io.Writer as an io.WriteCloser with a no-op Close.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
