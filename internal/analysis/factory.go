package analysis

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Environment variables read by NewFromEnv
const (
	EnvProvider = "ARCHDOC_PROVIDER"
	EnvModel    = "ARCHDOC_MODEL"
	EnvBaseURL  = "ARCHDOC_BASE_URL"
)

// Config holds analyzer configuration
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	CacheSize   int
	Logger      *slog.Logger
}

// New creates an analyzer with explicit configuration
func New(cfg Config) (Analyzer, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderDeepSeek, ProviderOpenAI:
		return NewOpenAIProvider(cfg, cache)
	case ProviderOffline:
		return NewOfflineProvider(cache), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// NewFromEnv creates an analyzer based on environment variables
// Priority:
// 1. ARCHDOC_PROVIDER (deepseek, openai, offline)
// 2. Check for API keys: DEEPSEEK_API_KEY, OPENAI_API_KEY
// 3. Default to offline if no API keys found
func NewFromEnv() (Analyzer, error) {
	return New(Config{
		Provider:  DetectProvider(),
		Model:     os.Getenv(EnvModel),
		BaseURL:   os.Getenv(EnvBaseURL),
		CacheSize: DefaultCacheSize,
	})
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	if provider := os.Getenv(EnvProvider); provider != "" {
		return strings.ToLower(provider)
	}
	if os.Getenv(EnvDeepSeekAPIKey) != "" {
		return ProviderDeepSeek
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderOffline
}
