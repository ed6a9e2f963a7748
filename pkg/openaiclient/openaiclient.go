// Package openaiclient constructs OpenAI SDK clients for any
// OpenAI-compatible chat-completion endpoint. The base URL is configurable
// so the same client works against OpenAI itself or a compatible gateway.
package openaiclient

import (
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Config struct {
	BaseURL  string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.openai.com/v1"`
	APIKey   string        `envconfig:"API_KEY" split_words:"true"`
	Timeout  time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
	SiteURL  string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName string        `envconfig:"SITE_NAME" split_words:"true"`
}

// New creates a client using the API key from cfg. Returns nil when no key
// is configured; tenants with their own keys use NewWithKey instead.
func New(cfg Config) *openaisdk.Client {
	return NewWithKey(cfg, cfg.APIKey)
}

// NewWithKey creates a client authenticated with the given key. Per-tenant
// keys are stored on the account record, so the dispatcher builds a client
// per invocation rather than holding a process-wide one.
func NewWithKey(cfg Config, apiKey string) *openaisdk.Client {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	// Optional attribution headers for OpenRouter-style gateways.
	if cfg.SiteURL != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.SiteURL))
	}
	if cfg.SiteName != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.SiteName))
	}

	client := openaisdk.NewClient(opts...)
	return &client
}
