// Package config holds the immutable configuration of an analysis run.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables, then command-line flags applied by the caller.
// Finalize resolves paths, loads the context document and validates the
// result; the Config is not modified afterwards.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/archdoc/internal/analysis"
	"github.com/dshills/archdoc/internal/retry"
	"github.com/dshills/archdoc/internal/walker"
)

// Environment variables read by ApplyEnv
const (
	EnvWorkers     = "ARCHDOC_WORKERS"
	EnvContextFile = "ARCHDOC_CONTEXT_FILE"
	EnvOutputDir   = "ARCHDOC_OUTPUT_DIR"
	EnvDBPath      = "ARCHDOC_DB"
)

// Defaults
const (
	DefaultWorkers    = 8
	DefaultModuleName = "Assembly-CSharp"
	DefaultOutputDir  = "technical_analysis"
	DefaultDBName     = "archdoc.db"
)

// ErrInvalidConfig is matched by every ConfigError
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError reports a configuration value that cannot be used
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// RetryConfig configures the retry policy of analysis calls
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Multiplier  float64       `yaml:"multiplier"`
}

// Config is the configuration of one run
type Config struct {
	ProjectDir string `yaml:"project_dir"`
	ModuleName string `yaml:"module_name"`
	Title      string `yaml:"title"`

	// Analysis service
	Provider    string        `yaml:"provider"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheSize   int           `yaml:"cache_size"`

	// Scheduling
	Workers           int         `yaml:"workers"`
	StartFrom         int         `yaml:"start_from"`
	RequestsPerSecond float64     `yaml:"requests_per_second"`
	Burst             int         `yaml:"burst"`
	Retry             RetryConfig `yaml:"retry"`

	// Walking
	Extensions    []string `yaml:"extensions"`
	ExcludeDirs   []string `yaml:"exclude_dirs"`
	MaxFileSize   int64    `yaml:"max_file_size"`
	UseGitignore  bool     `yaml:"use_gitignore"`
	StripComments bool     `yaml:"strip_comments"`

	// Outputs
	ContextFile string `yaml:"context_file"`
	OutputDir   string `yaml:"output_dir"`
	DBPath      string `yaml:"db_path"`
	MetricsAddr string `yaml:"metrics_addr"`

	// Context is the loaded context document, set by Finalize
	Context string `yaml:"-"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		ModuleName:   DefaultModuleName,
		Provider:     analysis.ProviderDeepSeek,
		Temperature:  analysis.DefaultTemperature,
		MaxTokens:    analysis.DefaultMaxTokens,
		Timeout:      analysis.DefaultTimeout,
		CacheSize:    analysis.DefaultCacheSize,
		Workers:      DefaultWorkers,
		Extensions:   append([]string(nil), walker.DefaultExtensions...),
		UseGitignore: true,
		Retry: RetryConfig{
			MaxAttempts: retry.DefaultMaxAttempts,
			BaseDelay:   retry.DefaultBaseDelay,
			MaxDelay:    retry.DefaultMaxDelay,
			Multiplier:  retry.DefaultMultiplier,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path, if any,
// and the environment
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays environment variables on c
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(analysis.EnvProvider); v != "" {
		c.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(analysis.EnvModel); v != "" {
		c.Model = v
	}
	if v := os.Getenv(analysis.EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv(apiKeyEnv(c.Provider))
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: "workers", Reason: fmt.Sprintf("%s=%q is not an integer", EnvWorkers, v)}
		}
		c.Workers = n
	}
	if v := os.Getenv(EnvContextFile); v != "" {
		c.ContextFile = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	return nil
}

func apiKeyEnv(provider string) string {
	if provider == analysis.ProviderOpenAI {
		return analysis.EnvOpenAIAPIKey
	}
	return analysis.EnvDeepSeekAPIKey
}

// Finalize resolves relative paths, loads the context document and
// validates c
func (c *Config) Finalize() error {
	if err := c.ResolvePaths(); err != nil {
		return err
	}
	if c.Title == "" {
		c.Title = c.ModuleName + " Technical Architecture"
	}

	var err error
	c.Context, err = LoadContext(c.ContextFile)
	if err != nil {
		return err
	}
	return c.Validate()
}

// ResolvePaths makes the project, output and database paths absolute
func (c *Config) ResolvePaths() error {
	if c.ProjectDir == "" {
		return &ConfigError{Field: "project_dir", Reason: "required"}
	}
	abs, err := filepath.Abs(c.ProjectDir)
	if err != nil {
		return &ConfigError{Field: "project_dir", Reason: err.Error()}
	}
	c.ProjectDir = abs

	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.ProjectDir, DefaultOutputDir)
	} else if !filepath.IsAbs(c.OutputDir) {
		c.OutputDir = filepath.Join(c.ProjectDir, c.OutputDir)
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.OutputDir, DefaultDBName)
	} else if c.DBPath != ":memory:" && !filepath.IsAbs(c.DBPath) {
		c.DBPath = filepath.Join(c.ProjectDir, c.DBPath)
	}
	return nil
}

// Validate checks that every value is usable
func (c *Config) Validate() error {
	if c.ProjectDir == "" {
		return &ConfigError{Field: "project_dir", Reason: "required"}
	}
	switch c.Provider {
	case analysis.ProviderDeepSeek, analysis.ProviderOpenAI:
		if c.APIKey == "" {
			return &ConfigError{Field: "api_key", Reason: "required for provider " + c.Provider}
		}
	case analysis.ProviderOffline:
	default:
		return &ConfigError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", c.Provider)}
	}
	if c.Workers < 1 {
		return &ConfigError{Field: "workers", Reason: "must be at least 1"}
	}
	if c.StartFrom < 0 {
		return &ConfigError{Field: "start_from", Reason: "must not be negative"}
	}
	if c.RequestsPerSecond < 0 {
		return &ConfigError{Field: "requests_per_second", Reason: "must not be negative"}
	}
	if c.Retry.MaxAttempts < 1 {
		return &ConfigError{Field: "retry.max_attempts", Reason: "must be at least 1"}
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return &ConfigError{Field: "retry", Reason: "delays must not be negative"}
	}
	if c.MaxFileSize < 0 {
		return &ConfigError{Field: "max_file_size", Reason: "must not be negative"}
	}
	return nil
}

// ValidateStartFrom checks start_from against the number of walked files.
// start_from equal to the count is valid and dispatches nothing.
func (c *Config) ValidateStartFrom(fileCount int) error {
	if c.StartFrom < 0 || c.StartFrom > fileCount {
		return &ConfigError{
			Field:  "start_from",
			Reason: fmt.Sprintf("%d is outside [0, %d]", c.StartFrom, fileCount),
		}
	}
	return nil
}

// AnalysisConfig returns the analyzer configuration
func (c *Config) AnalysisConfig() analysis.Config {
	return analysis.Config{
		Provider:    c.Provider,
		APIKey:      c.APIKey,
		Model:       c.Model,
		BaseURL:     c.BaseURL,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout,
		CacheSize:   c.CacheSize,
	}
}

// RetryPolicy returns the policy applied to every analysis call
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
		Multiplier:  c.Retry.Multiplier,
		Retryable:   analysis.Retryable,
	}
}

// WalkerOptions returns the walk filters. The output directory is always
// excluded so a rerun never analyses its own reports.
func (c *Config) WalkerOptions() walker.Options {
	exclude := append([]string(nil), c.ExcludeDirs...)
	if c.OutputDir != "" {
		exclude = append(exclude, filepath.Base(c.OutputDir))
	}
	return walker.Options{
		Extensions:   c.Extensions,
		ExcludeDirs:  exclude,
		MaxFileSize:  c.MaxFileSize,
		UseGitignore: c.UseGitignore,
	}
}
