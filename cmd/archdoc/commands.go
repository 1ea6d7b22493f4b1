package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/archdoc/internal/config"
	"github.com/dshills/archdoc/internal/mcp"
	"github.com/dshills/archdoc/internal/metrics"
	"github.com/dshills/archdoc/internal/pipeline"
	"github.com/dshills/archdoc/internal/report"
	"github.com/dshills/archdoc/internal/storage"
)

// Run command flags
var (
	apiKey      string
	workers     int
	startFrom   int
	contextFile string
	provider    string
	model       string
	baseURL     string
	dbPath      string
	outDir      string
	metricsAddr string
)

var (
	rootCmd = &cobra.Command{
		Use:   "archdoc",
		Short: "Generate architecture documentation for a source tree",
		Long: `archdoc analyzes every source file of a project with a language model,
summarizes each directory from its children and assembles a single
architecture document. Interrupted runs resume from stored results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run <project_dir>",
		Short: "Analyze a project and write its documentation",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalysis,
	}

	statusCmd = &cobra.Command{
		Use:   "status <project_dir>",
		Short: "Show stored results and the latest run of a project",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP protocol on stdio",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "archdoc\n")
			fmt.Fprintf(out, "Version: %s\n", version)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
		},
	}
)

func registerRunFlags() {
	f := runCmd.Flags()
	f.StringVar(&apiKey, "api-key", "", "API key for the analysis provider")
	f.IntVar(&workers, "workers", config.DefaultWorkers, "Number of concurrent analysis calls")
	f.IntVar(&startFrom, "start-from", 0, "Ordinal of the first file to dispatch")
	f.StringVar(&contextFile, "context", "", "Framework context document")
	f.StringVar(&provider, "provider", "", "Analysis provider (deepseek, openai, offline)")
	f.StringVar(&model, "model", "", "Model name")
	f.StringVar(&baseURL, "base-url", "", "API base URL")
	f.StringVar(&dbPath, "db", "", "Result database path (default: <out>/archdoc.db)")
	f.StringVar(&outDir, "out", "", "Output directory (default: <project_dir>/technical_analysis)")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
}

// applyRunFlags overrides cfg with the flags set on the command line
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("api-key") {
		cfg.APIKey = apiKey
	}
	if f.Changed("workers") {
		cfg.Workers = workers
	}
	if f.Changed("start-from") {
		cfg.StartFrom = startFrom
	}
	if f.Changed("context") {
		cfg.ContextFile = contextFile
	}
	if f.Changed("provider") {
		cfg.Provider = provider
	}
	if f.Changed("model") {
		cfg.Model = model
	}
	if f.Changed("base-url") {
		cfg.BaseURL = baseURL
	}
	if f.Changed("db") {
		cfg.DBPath = dbPath
	}
	if f.Changed("out") {
		cfg.OutputDir = outDir
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stderr)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.ProjectDir = args[0]
	applyRunFlags(cmd, cfg)
	if err := cfg.Finalize(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	outcome, err := pipeline.Run(ctx, cfg, pipeline.WithLogger(logger), pipeline.WithMetrics(m))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("run interrupted; completed results were saved, rerun to resume: %w", err)
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Analyzed %d of %d files (%d reused, %d failed, %d not analyzed)\n",
		outcome.Schedule.FilesAnalyzed, outcome.Schedule.FilesTotal,
		outcome.Schedule.FilesSkipped, outcome.Schedule.FilesFailed, outcome.Schedule.FilesNotAnalyzed)
	fmt.Fprintf(out, "Summarized %d directories (%d reused, %d failed)\n",
		outcome.Aggregate.Summarized, outcome.Aggregate.Reused, outcome.Aggregate.Failed)
	switch {
	case outcome.Overview.Failed > 0:
		fmt.Fprintln(out, "Project overview failed")
	case outcome.Overview.Reused > 0:
		fmt.Fprintln(out, "Project overview reused")
	default:
		fmt.Fprintln(out, "Project overview written")
	}
	fmt.Fprintf(out, "Report: %s\n", filepath.Join(outcome.OutputDir, report.ArchitectureFile))
	if n := len(outcome.Report.Errors); n > 0 {
		fmt.Fprintf(out, "Errors: %d (see %s)\n", n, filepath.Join(outcome.OutputDir, report.ErrorsFile))
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.ProjectDir = args[0]
	if err := cfg.ResolvePaths(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		fmt.Fprintf(out, "%s has not been analyzed\n", cfg.ProjectDir)
		return nil
	}

	db, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = db.Close() }()

	status, err := db.GetStatus(cmd.Context(), cfg.ProjectDir)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	fmt.Fprintf(out, "Project:     %s\n", cfg.ProjectDir)
	fmt.Fprintf(out, "Database:    %s (%.2f MB)\n", cfg.DBPath, status.DatabaseSizeMB)
	fmt.Fprintf(out, "Runs:        %d\n", status.Runs)
	fmt.Fprintf(out, "Files:       %d\n", status.FileResults)
	fmt.Fprintf(out, "Directories: %d\n", status.DirectoryResults)
	fmt.Fprintf(out, "Failed:      %d\n", status.FailedResults)
	fmt.Fprintf(out, "Errors:      %d\n", status.ErrorRecords)
	if run := status.LastRun; run != nil {
		fmt.Fprintf(out, "Last run:    %s %s (%s/%s, %d of %d files failed)\n",
			run.ID, run.Status, run.Provider, run.Model, run.FilesFailed, run.FilesTotal)
		if run.Error != "" {
			fmt.Fprintf(out, "Last error:  %s\n", run.Error)
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	// stdout is reserved for the MCP protocol
	logger := newLogger(os.Stderr)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	server, err := mcp.NewServer(cfg, logger, m)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errChan:
		return err
	}
}
