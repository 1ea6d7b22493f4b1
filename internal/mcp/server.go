package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/archdoc/internal/config"
	"github.com/dshills/archdoc/internal/metrics"
	"github.com/dshills/archdoc/internal/pipeline"
)

const (
	// ServerName is the MCP server name
	ServerName = "archdoc"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	base    *config.Config
	lock    pipeline.RunLock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewServer creates a new MCP server instance. base holds the loaded
// configuration that every tool call starts from; project paths and
// per-call overrides are applied to a copy.
func NewServer(base *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Server, error) {
	if base == nil {
		return nil, fmt.Errorf("base configuration is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:     mcpServer,
		base:    base,
		logger:  logger,
		metrics: m,
	}

	// Register tools
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("serving MCP on stdio", slog.String("server", ServerName))
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(generateDocsTool(), s.handleGenerateDocs)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(getReportTool(), s.handleGetReport)
	return nil
}

// projectConfig derives the configuration of a run on path
func (s *Server) projectConfig(path string) *config.Config {
	cfg := *s.base
	cfg.Extensions = append([]string(nil), s.base.Extensions...)
	cfg.ExcludeDirs = append([]string(nil), s.base.ExcludeDirs...)
	cfg.ProjectDir = path
	cfg.StartFrom = 0
	return &cfg
}
