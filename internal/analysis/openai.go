package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Provider configuration
const (
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"
	ProviderOffline  = "offline"

	DeepSeekBaseURL = "https://api.deepseek.com/v1"

	DefaultDeepSeekModel = "deepseek-chat"
	DefaultOpenAIModel   = "gpt-4o-mini"

	DefaultTemperature = 0.3
	DefaultMaxTokens   = 8192
	DefaultTimeout     = 10 * time.Minute

	EnvDeepSeekAPIKey = "DEEPSEEK_API_KEY"
	EnvOpenAIAPIKey   = "OPENAI_API_KEY"
)

// OpenAIProvider implements Analyzer against any OpenAI-compatible chat
// completion endpoint. DeepSeek is served through the same client with its
// own base URL.
type OpenAIProvider struct {
	client      *openai.Client
	httpClient  *http.Client
	provider    string
	model       string
	temperature float32
	maxTokens   int
	cache       *Cache
	logger      *slog.Logger
}

// NewOpenAIProvider creates an analyzer for an OpenAI-compatible endpoint
func NewOpenAIProvider(cfg Config, cache *Cache) (*OpenAIProvider, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = ProviderDeepSeek
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(apiKeyEnv(provider))
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, apiKeyEnv(provider))
	}

	model := cfg.Model
	baseURL := cfg.BaseURL
	switch provider {
	case ProviderDeepSeek:
		if model == "" {
			model = DefaultDeepSeekModel
		}
		if baseURL == "" {
			baseURL = DeepSeekBaseURL
		}
	case ProviderOpenAI:
		if model == "" {
			model = DefaultOpenAIModel
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	clientCfg.HTTPClient = httpClient

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Initializing analysis client", "provider", provider, "model", model, "base_url", clientCfg.BaseURL)

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		httpClient:  httpClient,
		provider:    provider,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		cache:       cache,
		logger:      logger,
	}, nil
}

func (o *OpenAIProvider) Analyze(ctx context.Context, req Request) (string, error) {
	if err := ValidateRequest(req); err != nil {
		return "", err
	}

	hash := ComputeHash(req)
	if o.cache != nil {
		if text, ok := o.cache.Get(hash); ok {
			return text, nil
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt(req)},
		},
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	}

	o.logger.Debug("Requesting analysis", "path", req.Path, "kind", req.Kind, "model", o.model)
	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classify(req.Path, fmt.Errorf("chat completion: %w", err))
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", Permanent(req.Path, ErrEmptyResponse)
	}
	o.logger.Debug("Received analysis", "path", req.Path, "finish_reason", resp.Choices[0].FinishReason)

	text := resp.Choices[0].Message.Content
	if o.cache != nil {
		o.cache.Set(hash, text)
	}
	return text, nil
}

func (o *OpenAIProvider) Provider() string {
	return o.provider
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

func apiKeyEnv(provider string) string {
	if provider == ProviderOpenAI {
		return EnvOpenAIAPIKey
	}
	return EnvDeepSeekAPIKey
}
