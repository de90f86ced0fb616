package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/stategraph"
	mermaid "github.com/aretw0/stategraph/internal/presentation/graph"
	"github.com/aretw0/stategraph/internal/presentation/tui"
	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/aretw0/stategraph/pkg/ports"
	"github.com/aretw0/stategraph/pkg/registry"
	"github.com/aretw0/stategraph/pkg/state"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const resourcePrefix = "stategraph://graph/"

// InvokeArgs are the arguments of the invoke_graph tool.
type InvokeArgs struct {
	Name         string `json:"name"`
	Input        string `json:"input,omitempty"`
	RunID        string `json:"run_id,omitempty"`
	RetryCeiling int    `json:"retry_ceiling,omitempty"`
}

// ResumeArgs are the arguments of the resume_run tool.
type ResumeArgs struct {
	RunID        string `json:"run_id"`
	RetryCeiling int    `json:"retry_ceiling,omitempty"`
}

// DescribeArgs are the arguments of the describe_graph tool.
type DescribeArgs struct {
	Name string `json:"name"`
}

// RunResponse aligns with the HTTP RunInfo schema and adds the failure, if any.
type RunResponse struct {
	Run   *graph.RunInfo `json:"run" jsonschema_description:"Run ID, status, visit counters, executed path and final state"`
	Error string         `json:"error,omitempty" jsonschema_description:"Why the run stopped early; the state is the last good one"`
}

// GraphResponse describes one graph.
type GraphResponse struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Structure   graph.Description `json:"structure"`
	Mermaid     string            `json:"mermaid"`
}

// Options configures the MCP server.
type Options struct {
	// Store enables checkpointing and the resume_run tool.
	Store ports.CheckpointStore
	// RunOptions adds per-graph invocation options (hooks, logger).
	RunOptions func(name string) []graph.Option
}

// Server exposes a registry of compiled graphs as MCP tools and resources.
type Server struct {
	reg       *registry.Registry
	opts      Options
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(reg *registry.Registry, opts Options) *Server {
	s := &Server{
		reg:       reg,
		opts:      opts,
		mcpServer: server.NewMCPServer("stategraph-mcp", strings.TrimSpace(stategraph.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		slog.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_graphs",
		mcp.WithDescription("List the workflow graphs that can be invoked, with an example input for each."),
	), s.handleListGraphs)

	s.mcpServer.AddTool(mcp.NewTool("describe_graph",
		mcp.WithDescription("Describe a graph: state fields and merge policies, nodes, edges, conditional tables and a Mermaid diagram."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Graph name")),
		mcp.WithOutputSchema[GraphResponse](),
	), mcp.NewStructuredToolHandler(s.handleDescribe))

	s.mcpServer.AddTool(mcp.NewTool("invoke_graph",
		mcp.WithDescription("Run a graph from its entry point until it reaches END. Returns the final state, or the last good state and the error."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Graph name")),
		mcp.WithString("input", mcp.Description("JSON object with the initial state update (optional; defaults to the graph's example)")),
		mcp.WithString("run_id", mcp.Description("Run ID to use for checkpoints (optional)")),
		mcp.WithNumber("retry_ceiling", mcp.Description("Per-node visit ceiling for this run (optional)")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleInvoke))

	if s.opts.Store != nil {
		s.mcpServer.AddTool(mcp.NewTool("resume_run",
			mcp.WithDescription("Continue a checkpointed run from the node it stopped at."),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("Run ID")),
			mcp.WithNumber("retry_ceiling", mcp.Description("Per-node visit ceiling for the resumed run (optional)")),
			mcp.WithOutputSchema[RunResponse](),
		), mcp.NewStructuredToolHandler(s.handleResume))
	}
}

func (s *Server) handleListGraphs(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type summary struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Example     map[string]any `json:"example,omitempty"`
	}
	entries := s.reg.List()
	out := make([]summary, 0, len(entries))
	for _, e := range entries {
		out = append(out, summary{Name: e.Name, Description: e.Description, Example: e.Example})
	}
	jsonBytes, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleDescribe(_ context.Context, _ mcp.CallToolRequest, args DescribeArgs) (GraphResponse, error) {
	e, err := s.reg.Get(args.Name)
	if err != nil {
		return GraphResponse{}, err
	}
	return GraphResponse{
		Name:        e.Name,
		Description: e.Description,
		Structure:   e.Graph.Describe(),
		Mermaid:     mermaid.GenerateMermaid(e.Graph, nil),
	}, nil
}

func (s *Server) handleInvoke(ctx context.Context, _ mcp.CallToolRequest, args InvokeArgs) (RunResponse, error) {
	e, err := s.reg.Get(args.Name)
	if err != nil {
		return RunResponse{}, err
	}

	input := e.Example
	if strings.TrimSpace(args.Input) != "" {
		var u map[string]any
		if err := json.Unmarshal([]byte(args.Input), &u); err != nil {
			return RunResponse{}, fmt.Errorf("input must be a JSON object: %w", err)
		}
		input = state.Update(u)
	}

	opts := s.options(e.Name, args.RetryCeiling)
	if args.RunID != "" {
		opts = append(opts, graph.WithRunID(args.RunID))
	}
	info, err := e.Graph.Run(ctx, input, opts...)
	return response(info, err)
}

func (s *Server) handleResume(ctx context.Context, _ mcp.CallToolRequest, args ResumeArgs) (RunResponse, error) {
	cp, err := s.opts.Store.Load(ctx, args.RunID)
	if err != nil {
		return RunResponse{}, err
	}
	e, err := s.reg.Get(cp.Graph)
	if err != nil {
		return RunResponse{}, err
	}
	info, err := e.Graph.Resume(ctx, s.opts.Store, args.RunID, s.options(e.Name, args.RetryCeiling)...)
	return response(info, err)
}

// response keeps run-time failures in the result so the client sees the last good state.
func response(info *graph.RunInfo, err error) (RunResponse, error) {
	if err == nil {
		return RunResponse{Run: info}, nil
	}
	if info == nil || errors.Is(err, graph.ErrInvalidInput) {
		return RunResponse{}, err
	}
	slog.Warn("MCP run failed", "run_id", info.RunID, "error", err)
	return RunResponse{Run: info, Error: tui.FailureMessage(err)}, nil
}

func (s *Server) options(name string, ceiling int) []graph.Option {
	var opts []graph.Option
	if s.opts.RunOptions != nil {
		opts = append(opts, s.opts.RunOptions(name)...)
	}
	if s.opts.Store != nil {
		opts = append(opts, graph.WithCheckpointer(s.opts.Store))
	}
	if ceiling > 0 {
		opts = append(opts, graph.WithRetryCeiling(ceiling))
	}
	return opts
}

func (s *Server) registerResources() {
	for _, e := range s.reg.List() {
		uri := resourcePrefix + e.Name
		s.mcpServer.AddResource(mcp.NewResource(uri, e.Name+" graph (Mermaid)",
			mcp.WithResourceDescription(e.Description),
			mcp.WithMIMEType("text/vnd.mermaid"),
		), func(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      uri,
					MIMEType: "text/vnd.mermaid",
					Text:     mermaid.GenerateMermaid(e.Graph, nil),
				},
			}, nil
		})
	}
}
