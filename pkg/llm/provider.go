package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const DefaultTemperature = 0.7

var (
	// ErrCapabilityNotSupported is returned when a backend lacks the requested
	// capability, e.g. embeddings on a chat-only provider.
	ErrCapabilityNotSupported = errors.New("capability not supported by provider")

	// ErrProviderUnavailable signals a connectivity or health-check failure.
	ErrProviderUnavailable = errors.New("provider unavailable")

	ErrUnknownProvider = errors.New("unknown provider")
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		if model != "" {
			o.Model = model
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxTokens = n
		}
	}
}

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) *Options {
	o := &Options{Temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProviderConfig is the resolved identity of a backend. It is built from
// configuration per request and never persisted.
type ProviderConfig struct {
	Name           string
	ChatModel      string
	EmbeddingModel string
	Dimension      int
	APIKey         string
	BaseURL        string
	Timeout        time.Duration
}

// SupportsEmbedding reports whether the provider has an embedding model.
func (c ProviderConfig) SupportsEmbedding() bool {
	return c.EmbeddingModel != ""
}

// ModelInfo describes one model a provider can serve.
type ModelInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Provider     string   `json:"provider"`
	Capabilities []string `json:"capabilities"`
	Size         int64    `json:"size,omitempty"`
}

// Provider defines the contract for any LLM backend
type Provider interface {
	Name() string

	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string, options ...Option) ([][]float32, error)

	Chat(ctx context.Context, history []Message, options ...Option) (*ChatResponse, error)

	// ChatStream emits incremental frames and closes the channel when the
	// completion ends. A frame with Err set is always the last one.
	ChatStream(ctx context.Context, history []Message, options ...Option) (<-chan StreamFrame, error)

	ListModels(ctx context.Context) ([]ModelInfo, error)

	Health(ctx context.Context) error
}

// Unavailable wraps a transport failure as ErrProviderUnavailable.
func Unavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, provider, err)
}

// Unsupported builds an ErrCapabilityNotSupported error for a capability.
func Unsupported(provider, capability string) error {
	return fmt.Errorf("%w: %s does not support %s", ErrCapabilityNotSupported, provider, capability)
}

// SplitSystem separates system messages from the conversation turns. Several
// system messages are joined with blank lines.
func SplitSystem(history []Message) (string, []Message) {
	var (
		system []string
		turns  = make([]Message, 0, len(history))
	)
	for _, m := range history {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}
