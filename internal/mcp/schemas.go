package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Report sections served by get_report
const (
	SectionArchitecture = "architecture"
	SectionErrors       = "errors"
	SectionFile         = "file"
	SectionDirectory    = "directory"
)

// generateDocsTool returns the tool definition for generate_docs
func generateDocsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "generate_docs",
		Description: "Analyze a source tree and generate per-file reports, directory summaries and an architecture document. Completed work from earlier runs is reused.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root",
				},
				"workers": map[string]interface{}{
					"type":        "integer",
					"description": "Number of concurrent analysis calls",
					"minimum":     1,
				},
				"start_from": map[string]interface{}{
					"type":        "integer",
					"description": "Ordinal of the first file to dispatch; earlier files without a result are marked not analyzed",
					"default":     0,
					"minimum":     0,
				},
				"provider": map[string]interface{}{
					"type":        "string",
					"description": "Analysis provider",
					"enum":        []string{"deepseek", "openai", "offline"},
				},
				"context_file": map[string]interface{}{
					"type":        "string",
					"description": "Path to a framework context document sent with every call",
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query stored analysis results and the latest run for a project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root",
				},
			},
			Required: []string{"path"},
		},
	}
}

// getReportTool returns the tool definition for get_report
func getReportTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_report",
		Description: "Read a generated document: the architecture report, the error collection, or the report of one file or directory",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root",
				},
				"section": map[string]interface{}{
					"type":        "string",
					"description": "Document to return",
					"enum":        []string{SectionArchitecture, SectionErrors, SectionFile, SectionDirectory},
					"default":     SectionArchitecture,
				},
				"target": map[string]interface{}{
					"type":        "string",
					"description": "Relative path of the file or directory, for the file and directory sections",
				},
			},
			Required: []string{"path"},
		},
	}
}
