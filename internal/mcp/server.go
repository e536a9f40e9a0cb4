// Package mcp exposes the design-tool command catalog as MCP tools over
// streamable HTTP. Each tool call validates its parameters, resolves a
// channel, and dispatches through the bridge; the bridge itself never sees
// unvalidated input.
package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/glyphworks/canvasbridge/internal/bridge"
	"github.com/glyphworks/canvasbridge/internal/logger"
	"github.com/glyphworks/canvasbridge/internal/metrics"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// generateRequestID creates a unique request identifier
func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Server wraps the MCP server around the bridge channel manager.
type Server struct {
	manager   *bridge.Manager
	registry  *Registry
	mcpServer *mcp_sdk.Server
	httpSrv   *http.Server
}

// NewServer creates an MCP server dispatching through manager.
func NewServer(manager *bridge.Manager) *Server {
	s := &Server{
		manager:  manager,
		registry: NewRegistry(),
	}
	s.registerAllTools(s.registry)
	return s
}

// GetRegistry returns the tool registry for external access (e.g., tests)
func (s *Server) GetRegistry() *Registry {
	return s.registry
}

// Handler builds the full HTTP handler: MCP endpoints plus health and
// metrics.
func (s *Server) Handler() http.Handler {
	s.mcpServer = mcp_sdk.NewServer(&mcp_sdk.Implementation{
		Name:    "canvasbridge",
		Version: "0.1.0",
	}, nil)
	s.registry.RegisterWithMCPServer(s.mcpServer)

	mcpHandler := mcp_sdk.NewStreamableHTTPHandler(func(req *http.Request) *mcp_sdk.Server {
		return s.mcpServer
	}, &mcp_sdk.StreamableHTTPOptions{
		EventStore: mcp_sdk.NewMemoryEventStore(nil),
	})

	loggingHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), logger.ContextKeyRequestID, requestID)
		r = r.WithContext(ctx)

		logger.Info("HTTP %s %s from %s [request_id=%s]", r.Method, r.URL.Path, r.RemoteAddr, requestID)
		mcpHandler.ServeHTTP(w, r)
	})

	mainMux := http.NewServeMux()
	mainMux.HandleFunc("/health", s.handleHealthCheck)
	mainMux.HandleFunc("/ready", s.handleReadinessCheck)
	mainMux.Handle("/metrics", metrics.Handler())
	mainMux.Handle("/mcp", metrics.Middleware(loggingHandler))
	mainMux.Handle("/mcp/", metrics.Middleware(loggingHandler))
	return mainMux
}

// Serve starts the MCP HTTP server on addr and blocks until shutdown.
func (s *Server) Serve(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Handler()}

	logger.Info("canvasbridge MCP server listening on %s", addr)
	logger.Info("health check: http://localhost%s/health", addr)
	logger.Info("metrics: http://localhost%s/metrics", addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains the HTTP server and disconnects every channel.
func (s *Server) Shutdown(ctx context.Context) error {
	s.manager.DisconnectAll()
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// handleHealthCheck is a basic liveness check
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReadinessCheck reports whether any channel is connected. The server
// can serve tool calls either way; readiness distinguishes "up" from
// "usable" for orchestration.
func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	for _, name := range s.manager.Channels() {
		if c := s.manager.Get(name); c != nil && c.State() == bridge.StateConnected {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ready"}`))
			return
		}
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(`{"status":"not ready","reason":"no channel connected"}`))
}
