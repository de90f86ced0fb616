package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/stategraph"
	"github.com/aretw0/stategraph/internal/presentation/tui"
	mermaid "github.com/aretw0/stategraph/internal/presentation/graph"
	"github.com/aretw0/stategraph/pkg/domain"
	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/aretw0/stategraph/pkg/ports"
	"github.com/aretw0/stategraph/pkg/registry"
	"github.com/aretw0/stategraph/pkg/state"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodySize bounds invoke and resume payloads.
const maxBodySize = 1 << 20

// Server exposes a registry of compiled graphs over HTTP.
type Server struct {
	Registry *registry.Registry

	// Store receives a checkpoint after every step. Without it the run
	// endpoints answer 404 and resume is unavailable.
	Store   ports.CheckpointStore
	Locker  ports.DistributedLocker
	LockTTL time.Duration

	// Gatherer backs GET /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// RunOptions adds per-graph invocation options (hooks, logger).
	RunOptions func(name string) []graph.Option

	Logger *slog.Logger
}

// InvokeRequest is the body of POST /graphs/{name}/invoke.
type InvokeRequest struct {
	Input        map[string]any `json:"input,omitempty"`
	RunID        string         `json:"run_id,omitempty"`
	RetryCeiling *int           `json:"retry_ceiling,omitempty"`
}

// ResumeRequest is the body of POST /runs/{id}/resume.
type ResumeRequest struct {
	Graph        string `json:"graph,omitempty"`
	RetryCeiling *int   `json:"retry_ceiling,omitempty"`
}

// GraphSummary is one element of GET /graphs.
type GraphSummary struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Example     map[string]any `json:"example,omitempty"`
}

// GraphDetail is the body of GET /graphs/{name}.
type GraphDetail struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Structure   graph.Description `json:"structure"`
	Mermaid     string            `json:"mermaid"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string         `json:"error"`
	Kind  string         `json:"kind,omitempty"`
	Node  string         `json:"node,omitempty"`
	Run   *graph.RunInfo `json:"run,omitempty"`
}

// NewHandler creates the HTTP handler for the server.
func NewHandler(s *Server) (http.Handler, error) {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	doc, err := GetSwagger()
	if err != nil {
		return nil, err
	}
	validate, err := validateRequests(doc)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(validate)
		r.Get("/health", s.GetHealth)
		r.Get("/info", s.GetInfo)
		r.Get("/graphs", s.ListGraphs)
		r.Get("/graphs/{name}", s.DescribeGraph)
		r.Post("/graphs/{name}/invoke", s.InvokeGraph)
		r.Get("/runs", s.ListRuns)
		r.Get("/runs/{id}", s.GetRun)
		r.Delete("/runs/{id}", s.DeleteRun)
		r.Post("/runs/{id}/resume", s.ResumeRun)
	})
	return r, nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Stategraph API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, _ *http.Request) {
	apiVersion := "unknown"
	if doc, err := GetSwagger(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "stategraph-http",
		"version":     strings.TrimSpace(stategraph.Version),
		"api_version": apiVersion,
	})
}

// ListGraphs handles GET /graphs.
func (s *Server) ListGraphs(w http.ResponseWriter, _ *http.Request) {
	entries := s.Registry.List()
	out := make([]GraphSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, GraphSummary{Name: e.Name, Description: e.Description, Example: e.Example})
	}
	writeJSON(w, http.StatusOK, out)
}

// DescribeGraph handles GET /graphs/{name}.
func (s *Server) DescribeGraph(w http.ResponseWriter, r *http.Request) {
	name, ok := s.pathParam(w, r, "name")
	if !ok {
		return
	}
	e, err := s.Registry.Get(name)
	if err != nil {
		s.writeRunError(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, GraphDetail{
		Name:        e.Name,
		Description: e.Description,
		Structure:   e.Graph.Describe(),
		Mermaid:     mermaid.GenerateMermaid(e.Graph, nil),
	})
}

// InvokeGraph handles POST /graphs/{name}/invoke.
func (s *Server) InvokeGraph(w http.ResponseWriter, r *http.Request) {
	name, ok := s.pathParam(w, r, "name")
	if !ok {
		return
	}
	var body InvokeRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	e, err := s.Registry.Get(name)
	if err != nil {
		s.writeRunError(w, nil, err)
		return
	}

	input := state.Update(body.Input)
	if body.Input == nil {
		input = e.Example
	}
	opts := s.options(name, body.RetryCeiling)
	if body.RunID != "" {
		opts = append(opts, graph.WithRunID(body.RunID))
	}

	info, err := e.Graph.Run(r.Context(), input, opts...)
	if err != nil {
		s.writeRunError(w, info, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ListRuns handles GET /runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	ids, err := s.Store.List(r.Context())
	if err != nil {
		s.writeRunError(w, nil, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// GetRun handles GET /runs/{id}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	cp, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// DeleteRun handles DELETE /runs/{id}.
func (s *Server) DeleteRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathParam(w, r, "id")
	if !ok {
		return
	}
	if s.Store == nil {
		s.writeRunError(w, nil, domain.ErrCheckpointNotFound)
		return
	}
	if err := s.Store.Delete(r.Context(), id); err != nil {
		s.writeRunError(w, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResumeRun handles POST /runs/{id}/resume.
func (s *Server) ResumeRun(w http.ResponseWriter, r *http.Request) {
	var body ResumeRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	cp, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	name := body.Graph
	if name == "" {
		name = cp.Graph
	}
	e, err := s.Registry.Get(name)
	if err != nil {
		s.writeRunError(w, nil, err)
		return
	}

	opts := s.options(name, body.RetryCeiling)
	if s.Locker != nil {
		opts = append(opts, graph.WithLocker(s.Locker, s.LockTTL))
	}
	info, err := e.Graph.Resume(r.Context(), s.Store, cp.RunID, opts...)
	if err != nil {
		s.writeRunError(w, info, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) options(name string, ceiling *int) []graph.Option {
	var opts []graph.Option
	if s.RunOptions != nil {
		opts = append(opts, s.RunOptions(name)...)
	}
	if s.Store != nil {
		opts = append(opts, graph.WithCheckpointer(s.Store))
	}
	if ceiling != nil {
		opts = append(opts, graph.WithRetryCeiling(*ceiling))
	}
	return opts
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*domain.Checkpoint, bool) {
	id, ok := s.pathParam(w, r, "id")
	if !ok {
		return nil, false
	}
	if s.Store == nil {
		s.writeRunError(w, nil, domain.ErrCheckpointNotFound)
		return nil, false
	}
	cp, err := s.Store.Load(r.Context(), id)
	if err != nil {
		s.writeRunError(w, nil, err)
		return nil, false
	}
	return cp, true
}

func (s *Server) pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var value string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &value, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid "+name+": "+err.Error(), nil)
		return "", false
	}
	return value, true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		s.Logger.Warn("invalid request body", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error(), nil)
		return false
	}
	return true
}

// writeRunError maps engine errors onto status codes.
func (s *Server) writeRunError(w http.ResponseWriter, info *graph.RunInfo, err error) {
	var (
		budget  *graph.RetryBudgetError
		routing *graph.RoutingError
		nodeErr *graph.NodeExecutionError
		defErr  *graph.DefinitionError
	)
	status, kind, node, msg := http.StatusInternalServerError, "internal", "", err.Error()

	switch {
	case errors.Is(err, registry.ErrGraphNotFound), errors.Is(err, domain.ErrCheckpointNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, graph.ErrInvalidInput):
		status, kind = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, graph.ErrRunCompleted):
		status, kind = http.StatusConflict, "completed"
	case errors.As(err, &budget):
		status, kind, node = http.StatusUnprocessableEntity, "retry_budget", budget.Node
		msg = tui.FailureMessage(err)
	case errors.As(err, &routing):
		kind, node = "routing", routing.Node
	case errors.As(err, &nodeErr):
		kind, node = "node_execution", nodeErr.Node
	case errors.As(err, &defErr):
		kind = "definition"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, kind = http.StatusServiceUnavailable, "canceled"
	}

	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", "kind", kind, "node", node, "error", err)
	}
	writeError(w, status, kind, msg, &ErrorResponse{Node: node, Run: info})
}

func writeError(w http.ResponseWriter, status int, kind, msg string, extra *ErrorResponse) {
	resp := ErrorResponse{Error: msg, Kind: kind}
	if extra != nil {
		resp.Node = extra.Node
		resp.Run = extra.Run
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
