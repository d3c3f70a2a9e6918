// Package server exposes the research controller as an MCP tool surface
// over stdio. Every tool returns a JSON payload inside a text content block;
// tool failures return an error result carrying the deepresearch error code.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"deepresearch/internal/cache"
	"deepresearch/internal/config"
	"deepresearch/internal/errs"
	"deepresearch/internal/got"
	"deepresearch/internal/ingest"
	"deepresearch/internal/logging"
	"deepresearch/internal/pipeline"
	"deepresearch/internal/report"
	"deepresearch/internal/session"
	"deepresearch/internal/store"
)

// Server wires the controller components behind the MCP tool registry.
// The config pointer is swapped atomically on hot reload; handlers read it
// through config() so an in-flight request sees one consistent snapshot.
type Server struct {
	cfg      atomic.Pointer[config.Config]
	store    *store.Store
	manager  *session.Manager
	engine   *got.Engine
	ingest   *ingest.Processor
	pipeline *pipeline.Runner
	report   *report.Renderer
	caches   *cache.Registry
	mcp      *mcpserver.MCPServer
	handlers map[string]mcpserver.ToolHandlerFunc
}

// NewServer builds the component graph and registers every tool.
func NewServer(st *store.Store, cfg *config.Config) *Server {
	s := &Server{
		store:    st,
		manager:  session.NewManager(st, cfg),
		engine:   got.NewEngine(st, cfg),
		ingest:   ingest.NewProcessor(st),
		pipeline: pipeline.NewRunner(st),
		report:   report.NewRenderer(st),
		caches:   cache.NewRegistry(cfg),
		handlers: make(map[string]mcpserver.ToolHandlerFunc),
	}
	s.cfg.Store(cfg)

	s.mcp = mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithToolCapabilities(true),
	)
	s.registerExtractionTools()
	s.registerBatchTools()
	s.registerGraphTools()
	s.registerSessionTools()
	s.registerDataTools()
	return s
}

func (s *Server) config() *config.Config {
	return s.cfg.Load()
}

// ApplyConfig installs the hot-swappable subset of a reloaded config:
// scoring defaults and cache TTLs. Everything else keeps its boot value
// until restart.
func (s *Server) ApplyConfig(next *config.Config) {
	merged := *s.cfg.Load()
	merged.Scoring = next.Scoring
	merged.Cache = next.Cache
	s.cfg.Store(&merged)
	s.caches.Retune(&merged)
	logging.Server().Infof("config reload applied (scoring, cache ttls)")
}

// Serve runs the stdio transport until the client closes the stream. The
// cache sweeper runs for the duration.
func (s *Server) Serve(ctx context.Context) error {
	s.caches.Start(ctx)
	defer s.caches.Stop()
	cfg := s.config()
	logging.Server().Infof("serving %s %s over stdio",
		cfg.Server.Name, cfg.Server.Version)
	return mcpserver.ServeStdio(s.mcp)
}

// handlerFunc is the internal handler shape: JSON-ready payload or error.
type handlerFunc func(ctx context.Context, args map[string]any) (any, error)

// addTool wraps h for the tool name and registers it with both the MCP
// registry and the dispatch table.
func (s *Server) addTool(tool mcp.Tool, h handlerFunc) {
	wrapped := s.wrap(tool.Name, h)
	s.handlers[tool.Name] = wrapped
	s.mcp.AddTool(tool, wrapped)
}

// rawText marks a payload that goes on the wire as-is instead of being
// JSON-encoded (render_progress).
type rawText string

// wrap adapts a handlerFunc to the mcp-go signature, recovers panics into
// processing errors, and encodes the payload.
func (s *Server) wrap(name string, h handlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (res *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				logging.Server().Errorf("panic in %s: %v", name, r)
				res = errResult(errs.Processing(name, fmt.Sprintf("panic: %v", r), nil))
				err = nil
			}
		}()

		payload, herr := h(ctx, req.Params.Arguments)
		if herr != nil {
			logging.Server().Debugf("%s failed: %v", name, herr)
			return errResult(herr), nil
		}
		if text, ok := payload.(rawText); ok {
			return mcp.NewToolResultText(string(text)), nil
		}
		b, merr := json.Marshal(payload)
		if merr != nil {
			return errResult(errs.Processing(name, "encoding result", merr)), nil
		}
		return mcp.NewToolResultText(string(b)), nil
	}
}

// errResult formats a tool failure as "[code] message".
func errResult(err error) *mcp.CallToolResult {
	var e *errs.Error
	if errors.As(err, &e) {
		return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	}
	return mcp.NewToolResultError(fmt.Sprintf("[%s] %v", errs.CodeOf(err), err))
}

// modeInjected forces the mode argument before delegating; legacy aliases
// route through the unified handlers this way. Injection is unconditional,
// a mode supplied by the caller is overwritten.
func modeInjected(mode string, h handlerFunc) handlerFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		forced := cloneArgs(args)
		forced["mode"] = mode
		return h(ctx, forced)
	}
}

func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	return out
}

// Argument access. JSON numbers arrive as float64; direct callers may pass
// native ints, so both are accepted.

func argString(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return def
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

func argFloat(args map[string]any, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func argBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func argStringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		if direct, ok := args[key].([]string); ok {
			return direct
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func argMap(args map[string]any, key string) map[string]any {
	if v, ok := args[key].(map[string]any); ok {
		return v
	}
	return nil
}

// decodeArg converts a structured argument (maps, slices of maps) into a
// typed value by JSON round trip.
func decodeArg(op string, v any, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errs.Validation(op, fmt.Sprintf("malformed argument: %v", err))
	}
	if err := json.Unmarshal(b, out); err != nil {
		return errs.Validation(op, fmt.Sprintf("malformed argument: %v", err))
	}
	return nil
}
