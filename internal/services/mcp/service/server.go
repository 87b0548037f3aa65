package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Thiagoxp95/portaria/internal/platform/branding"
	"github.com/Thiagoxp95/portaria/internal/services/consent"
	"github.com/Thiagoxp95/portaria/internal/services/directory"
	"github.com/Thiagoxp95/portaria/internal/services/mcp/domain"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
	// defaultShutdownTimeout is the maximum time to wait for graceful HTTP shutdown.
	defaultShutdownTimeout = 10 * time.Second
)

// Transport selects how the MCP server speaks to clients.
type Transport string

const (
	// TransportStdio serves MCP over stdin/stdout for local tool hosts.
	TransportStdio Transport = "stdio"
	// TransportHTTP serves MCP over streamable HTTP for remote hosts.
	TransportHTTP Transport = "http"
)

// Config carries the runtime configuration for the MCP service.
type Config struct {
	Transport Transport
	HTTPAddr  string
}

// Deps carries the domain services the MCP tools delegate to.
type Deps struct {
	Directory *directory.Service
	Consent   *consent.Service
}

// Server wraps an MCP server wired to the concierge tools.
type Server struct {
	mcpServer *mcp.Server
}

// NewServer builds an MCP server and registers the concierge tools on it.
func NewServer(deps Deps) (*Server, error) {
	if deps.Directory == nil {
		return nil, fmt.Errorf("directory service is required")
	}
	if deps.Consent == nil {
		return nil, fmt.Errorf("consent service is required")
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    branding.MCPServerName,
		Version: serverVersion,
	}, nil)

	mcp.AddTool(mcpServer, domain.GetPhoneByApartmentTool(), domain.GetPhoneByApartmentHandler(deps.Directory))
	mcp.AddTool(mcpServer, domain.StartConsentTool(), domain.StartConsentHandler(deps.Consent))
	mcp.AddTool(mcpServer, domain.GetConsentStatusTool(), domain.GetConsentStatusHandler(deps.Consent))

	return &Server{mcpServer: mcpServer}, nil
}

// Run is the service entrypoint for MCP and blocks until context cancellation.
func Run(ctx context.Context, cfg Config, deps Deps) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}

	server, err := NewServer(deps)
	if err != nil {
		return err
	}

	switch cfg.Transport {
	case TransportStdio:
		return server.serveWithTransport(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		return server.serveHTTP(ctx, cfg.HTTPAddr)
	default:
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}
}

// serveWithTransport starts the MCP server using the provided transport and
// blocks until it stops or the context ends. Context cancellation is the
// normal shutdown path, not an error.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

// serveHTTP exposes the MCP server over streamable HTTP on addr.
func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if addr == "" {
		addr = "localhost:8081"
	}

	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", streamable)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown MCP HTTP server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve MCP HTTP: %w", err)
	}
}
