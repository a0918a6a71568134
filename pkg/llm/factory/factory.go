package factory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"veritasai-be/pkg/llm"
	"veritasai-be/pkg/llm/anthropic"
	"veritasai-be/pkg/llm/gemini"
	"veritasai-be/pkg/llm/ollama"
	"veritasai-be/pkg/llm/openai"
)

// Defaults holds the built-in configuration for every supported provider.
var Defaults = map[string]llm.ProviderConfig{
	"ollama": {
		Name:           "ollama",
		ChatModel:      "llama3.1",
		EmbeddingModel: "nomic-embed-text",
		Dimension:      768,
		BaseURL:        ollama.DefaultBaseURL,
	},
	"openai": {
		Name:           "openai",
		ChatModel:      "gpt-3.5-turbo",
		EmbeddingModel: "text-embedding-3-small",
		Dimension:      1536,
		BaseURL:        "https://api.openai.com/v1",
	},
	"deepseek": {
		Name:      "deepseek",
		ChatModel: "deepseek-chat",
		BaseURL:   "https://api.deepseek.com/v1",
	},
	"anthropic": {
		Name:      "anthropic",
		ChatModel: "claude-3-5-sonnet-20241022",
		BaseURL:   anthropic.DefaultBaseURL,
	},
	"groq": {
		Name:      "groq",
		ChatModel: "llama-3.1-70b-versatile",
		BaseURL:   "https://api.groq.com/openai/v1",
	},
	"together": {
		Name:      "together",
		ChatModel: "meta-llama/Llama-2-70b-chat-hf",
		BaseURL:   "https://api.together.xyz/v1",
	},
	"huggingface": {
		Name:      "huggingface",
		ChatModel: "meta-llama/Llama-3.1-8B-Instruct",
		BaseURL:   "https://router.huggingface.co/v1",
	},
	"gemini": {
		Name:           "gemini",
		ChatModel:      "gemini-1.5-flash",
		EmbeddingModel: "text-embedding-004",
		Dimension:      768,
	},
}

// Registry resolves provider configuration and caches one client per
// provider name for the process lifetime.
type Registry struct {
	overrides map[string]llm.ProviderConfig
	timeout   time.Duration

	mu        sync.Mutex
	instances map[string]llm.Provider
}

// NewRegistry builds a registry. Non-zero fields of an override replace the
// provider's defaults.
func NewRegistry(overrides map[string]llm.ProviderConfig, timeout time.Duration) *Registry {
	if overrides == nil {
		overrides = map[string]llm.ProviderConfig{}
	}
	return &Registry{
		overrides: overrides,
		timeout:   timeout,
		instances: make(map[string]llm.Provider),
	}
}

// Names lists the supported providers in alphabetical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(Defaults))
	for name := range Defaults {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Resolve(name string) (llm.ProviderConfig, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	cfg, ok := Defaults[name]
	if !ok {
		return llm.ProviderConfig{}, fmt.Errorf("%w: %s", llm.ErrUnknownProvider, name)
	}

	if o, ok := r.overrides[name]; ok {
		if o.ChatModel != "" {
			cfg.ChatModel = o.ChatModel
		}
		if o.EmbeddingModel != "" {
			cfg.EmbeddingModel = o.EmbeddingModel
		}
		if o.Dimension > 0 {
			cfg.Dimension = o.Dimension
		}
		if o.APIKey != "" {
			cfg.APIKey = o.APIKey
		}
		if o.BaseURL != "" {
			cfg.BaseURL = o.BaseURL
		}
		if o.Timeout > 0 {
			cfg.Timeout = o.Timeout
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = r.timeout
	}
	return cfg, nil
}

// New constructs a fresh, uncached client for cfg.
func (r *Registry) New(ctx context.Context, cfg llm.ProviderConfig) (llm.Provider, error) {
	switch cfg.Name {
	case "ollama":
		return ollama.NewOllamaProvider(cfg), nil
	case "openai", "deepseek", "groq", "together", "huggingface":
		return openai.NewProvider(cfg), nil
	case "anthropic":
		return anthropic.NewProvider(cfg), nil
	case "gemini":
		return gemini.NewProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", llm.ErrUnknownProvider, cfg.Name)
	}
}

// Provider returns the cached client for name, creating it on first use.
func (r *Registry) Provider(ctx context.Context, name string) (llm.Provider, error) {
	cfg, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.instances[cfg.Name]; ok {
		return p, nil
	}
	p, err := r.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.instances[cfg.Name] = p
	return p, nil
}

// Fallback returns the alternate embedding path for name, or nil when the
// provider has none. For ollama this is the batched /api/embed endpoint.
func (r *Registry) Fallback(name string) llm.Provider {
	cfg, err := r.Resolve(name)
	if err != nil || cfg.Name != "ollama" {
		return nil
	}
	p := ollama.NewOllamaProvider(cfg)
	p.BatchEmbed = true
	return p
}

// Register injects a pre-built client, replacing any cached one.
func (r *Registry) Register(name string, p llm.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[strings.ToLower(name)] = p
}
