// Package mcp implements the Model Context Protocol (MCP) server for archdoc.
//
// The MCP server exposes three tools to AI coding assistants:
//   - generate_docs: Analyze a project and write its documentation
//   - get_status: Report stored results and the latest run
//   - get_report: Read a generated document
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport. The server is
// started with:
//
//	archdoc serve
//
// It listens on stdin for MCP messages and writes responses to stdout.
// Logs go to stderr.
//
// # Tool: generate_docs
//
//	Request:
//	{
//	  "name": "generate_docs",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "workers": 8,
//	    "start_from": 0,
//	    "provider": "deepseek"
//	  }
//	}
//
//	Response:
//	{
//	  "run_id": "5f0c...",
//	  "files_total": 412,
//	  "files_analyzed": 37,
//	  "files_skipped": 375,
//	  "files_failed": 0,
//	  "directories": 58,
//	  "error_count": 0,
//	  "report_path": "/path/to/project/technical_analysis/technical_architecture.md",
//	  "duration_ms": 95120
//	}
//
// Completed results from earlier runs are reused, so calling generate_docs
// again after an interruption only analyzes what is missing. Only one run
// executes at a time per server.
//
// # Tool: get_status
//
//	Request:
//	{
//	  "name": "get_status",
//	  "arguments": {"path": "/path/to/project"}
//	}
//
// Returns {"analyzed": false} when the project has no database yet,
// otherwise stored result counts, the latest run, and whether this server
// is executing a run.
//
// # Tool: get_report
//
// section selects the architecture document (default), the JSON error
// collection, or the report of one file or directory named by target.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "archdoc": {
//	      "command": "/usr/local/bin/archdoc",
//	      "args": ["serve"],
//	      "env": {
//	        "DEEPSEEK_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (missing arguments, bad configuration)
//   - -32603: Internal error (database, filesystem)
//   - -32001: Project not found
//   - -32002: Run in progress
//   - -32003: Not analyzed (requested output does not exist)
//   - -32004: Run failed (cancelled, store conflict, write failure)
package mcp
