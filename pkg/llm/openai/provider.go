// Package openai implements the OpenAI-compatible chat/embeddings protocol
// spoken by OpenAI, DeepSeek, Groq, Together and the HuggingFace router.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"veritasai-be/pkg/llm"
)

type Provider struct {
	name           string
	apiKey         string
	baseURL        string
	model          string
	embeddingModel string
	client         *http.Client
	streamClient   *http.Client
}

var _ llm.Provider = &Provider{}

// Request Payload Structure (OpenAI Compatible)
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type apiError struct {
	Message string `json:"message"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

func NewProvider(cfg llm.ProviderConfig) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Provider{
		name:           cfg.Name,
		apiKey:         cfg.APIKey,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		model:          cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		client:         &http.Client{Timeout: timeout},
		streamClient:   &http.Client{},
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Embed(ctx context.Context, texts []string, options ...llm.Option) ([][]float32, error) {
	if p.embeddingModel == "" {
		return nil, llm.Unsupported(p.name, "embeddings")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	opts := llm.NewOptions(llm.WithModel(p.embeddingModel))
	for _, o := range options {
		o(opts)
	}

	resp, err := p.do(ctx, p.client, http.MethodPost, "/embeddings", embeddingRequest{Model: opts.Model, Input: texts})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if embResp.Error != nil {
		return nil, fmt.Errorf("%s api returned error: %s", p.name, embResp.Error.Message)
	}
	if len(embResp.Data) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d inputs", p.name, len(embResp.Data), len(texts))
	}

	sort.Slice(embResp.Data, func(i, j int) bool { return embResp.Data[i].Index < embResp.Data[j].Index })
	out := make([][]float32, len(embResp.Data))
	for i, d := range embResp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (*llm.ChatResponse, error) {
	reqBody := p.chatRequest(history, false, options)

	resp, err := p.do(ctx, p.client, http.MethodPost, "/chat/completions", reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("%s api returned error: %s", p.name, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("empty choices from %s api", p.name)
	}

	model := chatResp.Model
	if model == "" {
		model = reqBody.Model
	}
	return llm.NewChatResponse(chatResp.ID, model, chatResp.Choices[0].Message.Content), nil
}

func (p *Provider) ChatStream(ctx context.Context, history []llm.Message, options ...llm.Option) (<-chan llm.StreamFrame, error) {
	resp, err := p.do(ctx, p.streamClient, http.MethodPost, "/chat/completions", p.chatRequest(history, true, options))
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamFrame)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		err := llm.ReadSSE(resp.Body, func(_, data string) error {
			if data == "[DONE]" {
				return llm.ErrStopStream
			}
			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return fmt.Errorf("decode %s stream: %w", p.name, err)
			}
			if chunk.Error != nil {
				return fmt.Errorf("%s api returned error: %s", p.name, chunk.Error.Message)
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				return nil
			}
			if !llm.Send(ctx, ch, llm.DeltaFrame(chunk.Choices[0].Delta.Content)) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			llm.Send(ctx, ch, llm.ErrorFrame(err))
		}
	}()
	return ch, nil
}

// ListModels returns the configured models; hosted catalogs are not queried.
func (p *Provider) ListModels(_ context.Context) ([]llm.ModelInfo, error) {
	models := []llm.ModelInfo{{
		ID:           p.model,
		Name:         p.model,
		Provider:     p.name,
		Capabilities: []string{"chat"},
	}}
	if p.embeddingModel != "" {
		models = append(models, llm.ModelInfo{
			ID:           p.embeddingModel,
			Name:         p.embeddingModel,
			Provider:     p.name,
			Capabilities: []string{"embedding"},
		})
	}
	return models, nil
}

func (p *Provider) Health(ctx context.Context) error {
	resp, err := p.do(ctx, p.client, http.MethodGet, "/models", nil)
	if err != nil {
		if errors.Is(err, llm.ErrProviderUnavailable) {
			return err
		}
		return llm.Unavailable(p.name, err)
	}
	resp.Body.Close()
	return nil
}

func (p *Provider) chatRequest(history []llm.Message, stream bool, options []llm.Option) chatRequest {
	opts := llm.NewOptions(llm.WithModel(p.model))
	for _, o := range options {
		o(opts)
	}
	return chatRequest{
		Model:       opts.Model,
		Messages:    history,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      stream,
	}
}

func (p *Provider) do(ctx context.Context, client *http.Client, method, path string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, llm.Unavailable(p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s api error (status %d): %s", p.name, resp.StatusCode, string(bodyBytes))
	}
	return resp, nil
}
