package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"veritasai-be/pkg/llm"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024
)

type Provider struct {
	apiKey       string
	baseURL      string
	model        string
	client       *http.Client
	streamClient *http.Client
}

var _ llm.Provider = &Provider{}

type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []llm.Message `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *apiError `json:"error,omitempty"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *apiError `json:"error,omitempty"`
}

func NewProvider(cfg llm.ProviderConfig) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Provider{
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		model:        cfg.ChatModel,
		client:       &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Embed(_ context.Context, _ []string, _ ...llm.Option) ([][]float32, error) {
	return nil, llm.Unsupported(p.Name(), "embeddings")
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (*llm.ChatResponse, error) {
	reqBody := p.request(history, false, options)

	resp, err := p.do(ctx, p.client, http.MethodPost, "/v1/messages", reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var msgResp messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if msgResp.Error != nil {
		return nil, fmt.Errorf("anthropic api returned error: %s", msgResp.Error.Message)
	}

	var text strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return llm.NewChatResponse(msgResp.ID, reqBody.Model, text.String()), nil
}

func (p *Provider) ChatStream(ctx context.Context, history []llm.Message, options ...llm.Option) (<-chan llm.StreamFrame, error) {
	resp, err := p.do(ctx, p.streamClient, http.MethodPost, "/v1/messages", p.request(history, true, options))
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamFrame)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		err := llm.ReadSSE(resp.Body, func(event, data string) error {
			var ev streamEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				return fmt.Errorf("decode anthropic stream: %w", err)
			}
			if event == "" {
				event = ev.Type
			}
			switch event {
			case "content_block_delta":
				if ev.Delta.Text == "" {
					return nil
				}
				if !llm.Send(ctx, ch, llm.DeltaFrame(ev.Delta.Text)) {
					return ctx.Err()
				}
			case "error":
				msg := "unknown error"
				if ev.Error != nil {
					msg = ev.Error.Message
				}
				return fmt.Errorf("anthropic stream error: %s", msg)
			case "message_stop":
				return llm.ErrStopStream
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			llm.Send(ctx, ch, llm.ErrorFrame(err))
		}
	}()
	return ch, nil
}

func (p *Provider) ListModels(_ context.Context) ([]llm.ModelInfo, error) {
	return []llm.ModelInfo{{
		ID:           p.model,
		Name:         p.model,
		Provider:     p.Name(),
		Capabilities: []string{"chat"},
	}}, nil
}

// Health sends a one-token completion; the API has no cheaper probe.
func (p *Provider) Health(ctx context.Context) error {
	_, err := p.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: "ping"}}, llm.WithMaxTokens(1))
	if err != nil {
		if errors.Is(err, llm.ErrProviderUnavailable) {
			return err
		}
		return llm.Unavailable(p.Name(), err)
	}
	return nil
}

func (p *Provider) request(history []llm.Message, stream bool, options []llm.Option) messagesRequest {
	opts := llm.NewOptions(llm.WithModel(p.model), llm.WithMaxTokens(defaultMaxTokens))
	for _, o := range options {
		o(opts)
	}
	system, turns := llm.SplitSystem(history)
	return messagesRequest{
		Model:       opts.Model,
		System:      system,
		Messages:    turns,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      stream,
	}
}

func (p *Provider) do(ctx context.Context, client *http.Client, method, path string, payload interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := client.Do(req)
	if err != nil {
		return nil, llm.Unavailable(p.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("anthropic api error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}
	return resp, nil
}
