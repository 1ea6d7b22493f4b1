package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/archdoc/internal/config"
	"github.com/dshills/archdoc/internal/pipeline"
	"github.com/dshills/archdoc/internal/report"
	"github.com/dshills/archdoc/internal/storage"
	"github.com/dshills/archdoc/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound = -32001 // Specified path is not a readable directory
	ErrorCodeRunInProgress   = -32002 // Another analysis run is already running
	ErrorCodeNotAnalyzed     = -32003 // Requested output does not exist yet
	ErrorCodeRunFailed       = -32004 // The run stopped before writing outputs
)

// handleGenerateDocs handles the generate_docs tool invocation
func (s *Server) handleGenerateDocs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	cfg := s.projectConfig(path)
	cfg.Workers = getIntDefault(args, "workers", cfg.Workers)
	cfg.StartFrom = getIntDefault(args, "start_from", 0)
	cfg.Provider = getStringDefault(args, "provider", cfg.Provider)
	cfg.ContextFile = getStringDefault(args, "context_file", cfg.ContextFile)

	if err := cfg.Finalize(); err != nil {
		return nil, configError(err)
	}

	// One run at a time per server
	if !s.lock.TryAcquire() {
		return nil, newMCPError(ErrorCodeRunInProgress, "an analysis run is already in progress", nil)
	}
	defer s.lock.Release()

	outcome, err := pipeline.Run(ctx, cfg,
		pipeline.WithLogger(s.logger),
		pipeline.WithMetrics(s.metrics))
	if err != nil {
		var ce *config.ConfigError
		if errors.As(err, &ce) {
			return nil, configError(err)
		}
		data := map[string]interface{}{"error": err.Error()}
		if outcome != nil {
			data["run_id"] = outcome.RunID
		}
		return nil, newMCPError(ErrorCodeRunFailed, "analysis run failed", data)
	}

	// Format response
	response := map[string]interface{}{
		"run_id":             outcome.RunID,
		"files_total":        outcome.Schedule.FilesTotal,
		"files_analyzed":     outcome.Schedule.FilesAnalyzed,
		"files_skipped":      outcome.Schedule.FilesSkipped,
		"files_failed":       outcome.Schedule.FilesFailed,
		"files_not_analyzed": outcome.Schedule.FilesNotAnalyzed,
		"files_empty":        outcome.Schedule.FilesEmpty,
		"directories":        outcome.Aggregate.Directories,
		"directories_reused": outcome.Aggregate.Reused,
		"directories_failed": outcome.Aggregate.Failed,
		"overview_reused":    outcome.Overview.Reused > 0,
		"analysis_calls":     outcome.Schedule.Calls + outcome.Aggregate.Calls + outcome.Overview.Calls,
		"error_count":        len(outcome.Report.Errors),
		"output_dir":         outcome.OutputDir,
		"report_path":        filepath.Join(outcome.OutputDir, report.ArchitectureFile),
		"duration_ms":        outcome.Duration.Milliseconds(),
		"report_failed_dirs": outcome.Report.FailedDirectories,
	}

	if n := len(outcome.Report.Errors); n > 0 {
		// Include first few errors
		shown := outcome.Report.Errors
		if n > 5 {
			shown = shown[:5]
		}
		errs := make([]string, 0, len(shown))
		for _, rec := range shown {
			errs = append(errs, fmt.Sprintf("%s: %s: %s", rec.ID, rec.Kind, rec.Message))
		}
		response["errors"] = errs
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	cfg := s.projectConfig(path)
	if err := cfg.ResolvePaths(); err != nil {
		return nil, configError(err)
	}

	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		// Project not analyzed
		response := map[string]interface{}{
			"analyzed": false,
			"path":     path,
			"message":  "Project not analyzed. Use the generate_docs tool to analyze this project.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	db, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to open storage", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer func() { _ = db.Close() }()

	status, err := db.GetStatus(ctx, cfg.ProjectDir)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Format response
	response := map[string]interface{}{
		"analyzed":        status.FileResults > 0,
		"path":            path,
		"run_in_progress": s.lock.Held(),
		"statistics": map[string]interface{}{
			"runs":              status.Runs,
			"file_results":      status.FileResults,
			"directory_results": status.DirectoryResults,
			"failed_results":    status.FailedResults,
			"error_records":     status.ErrorRecords,
			"database_size_mb":  fmt.Sprintf("%.2f", status.DatabaseSizeMB),
		},
	}
	if run := status.LastRun; run != nil {
		last := map[string]interface{}{
			"run_id":       run.ID,
			"status":       run.Status,
			"provider":     run.Provider,
			"model":        run.Model,
			"start_from":   run.StartFrom,
			"workers":      run.Workers,
			"files_total":  run.FilesTotal,
			"files_failed": run.FilesFailed,
			"started_at":   run.StartedAt.Format(time.RFC3339),
		}
		if !run.FinishedAt.IsZero() {
			last["finished_at"] = run.FinishedAt.Format(time.RFC3339)
		}
		if run.Error != "" {
			last["error"] = run.Error
		}
		response["last_run"] = last
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetReport handles the get_report tool invocation
func (s *Server) handleGetReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	cfg := s.projectConfig(path)
	if err := cfg.ResolvePaths(); err != nil {
		return nil, configError(err)
	}

	section := getStringDefault(args, "section", SectionArchitecture)
	var file string
	switch section {
	case SectionArchitecture:
		file = filepath.Join(cfg.OutputDir, report.ArchitectureFile)
	case SectionErrors:
		file = filepath.Join(cfg.OutputDir, report.ErrorsFile)
	case SectionFile, SectionDirectory:
		id, err := targetID(args, section)
		if err != nil {
			return nil, err
		}
		if section == SectionFile {
			file = report.FilePath(cfg.OutputDir, id)
		} else {
			file = report.DirPath(cfg.OutputDir, id)
		}
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid section", map[string]interface{}{
			"param":   "section",
			"value":   section,
			"allowed": []string{SectionArchitecture, SectionErrors, SectionFile, SectionDirectory},
		})
	}

	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return nil, newMCPError(ErrorCodeNotAnalyzed, "report not found; run generate_docs first", map[string]interface{}{
			"section": section,
			"file":    file,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read report", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(string(data)), nil
}

// Helper functions

// requirePath extracts and validates the path parameter
func requirePath(args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	// Validate path exists and is accessible
	if err := validatePath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrNotDirectory) {
			code = ErrorCodeProjectNotFound
		}
		return "", newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	return filepath.Clean(path), nil
}

// targetID extracts the file or directory identity for get_report
func targetID(args map[string]interface{}, section string) (string, error) {
	target := getStringDefault(args, "target", "")
	if target == "" && section == SectionDirectory {
		return types.RootID, nil
	}
	id := types.NormalizeID(target)
	if target == "" || filepath.IsAbs(target) || id == ".." || strings.HasPrefix(id, "../") {
		return "", newMCPError(ErrorCodeInvalidParams, "target must be a path relative to the project root", map[string]interface{}{
			"param": "target",
			"value": target,
		})
	}
	return id, nil
}

// configError converts a configuration failure into an MCP error
func configError(err error) error {
	data := map[string]interface{}{"reason": err.Error()}
	var ce *config.ConfigError
	if errors.As(err, &ce) {
		data["param"] = ce.Field
	}
	return newMCPError(ErrorCodeInvalidParams, "invalid configuration", data)
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks if a path exists and is accessible
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	// Check if path is absolute
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	// Check if path exists
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	// Check if it's a directory
	if !info.IsDir() {
		return ErrNotDirectory
	}

	// Check if directory is readable
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
