package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"veritasai-be/pkg/llm"
)

const DefaultBaseURL = "http://localhost:11434"

type OllamaProvider struct {
	BaseURL        string
	ModelName      string
	EmbeddingModel string

	// BatchEmbed switches Embed to the multi-input /api/embed endpoint.
	BatchEmbed bool

	Client       *http.Client
	StreamClient *http.Client
}

// Ensure OllamaProvider implements Provider
var _ llm.Provider = &OllamaProvider{}

func NewOllamaProvider(cfg llm.ProviderConfig) *OllamaProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaProvider{
		BaseURL:        baseURL,
		ModelName:      cfg.ChatModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Client: &http.Client{
			Timeout: timeout,
		},
		// streams are bounded by the request context only
		StreamClient: &http.Client{},
	}
}

// --- Request/Response structs (Internal to this package) ---

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

type batchEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type batchEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

type tagsResponse struct {
	Models []struct {
		Name    string `json:"name"`
		Model   string `json:"model"`
		Size    int64  `json:"size"`
		Details struct {
			Family string `json:"family"`
		} `json:"details"`
	} `json:"models"`
}

// --- Interface Implementation ---

func (o *OllamaProvider) Name() string { return "ollama" }

func (o *OllamaProvider) Embed(ctx context.Context, texts []string, opts ...llm.Option) ([][]float32, error) {
	options := llm.NewOptions(opts...)
	model := o.EmbeddingModel
	if options.Model != "" {
		model = options.Model
	}
	if model == "" {
		return nil, llm.Unsupported(o.Name(), "embeddings")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if o.BatchEmbed {
		return o.embedBatch(ctx, model, texts)
	}

	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		var resp embeddingResponse
		if err := o.postJSON(ctx, o.Client, "/api/embeddings", embeddingRequest{Model: model, Prompt: text}, &resp); err != nil {
			return nil, err
		}
		if len(resp.Embedding) == 0 {
			return nil, fmt.Errorf("ollama returned empty embedding")
		}
		out = append(out, normalizeVector(resp.Embedding))
	}
	return out, nil
}

func (o *OllamaProvider) embedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	var resp batchEmbedResponse
	if err := o.postJSON(ctx, o.Client, "/api/embed", batchEmbedRequest{Model: model, Input: texts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = normalizeVector(e)
	}
	return out, nil
}

func (o *OllamaProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (*llm.ChatResponse, error) {
	reqPayload := o.chatRequest(history, false, llm.NewOptions(opts...))

	var ollamaResp ollamaChatResponse
	if err := o.postJSON(ctx, o.Client, "/api/chat", reqPayload, &ollamaResp); err != nil {
		return nil, err
	}
	if ollamaResp.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", ollamaResp.Error)
	}

	return llm.NewChatResponse("", reqPayload.Model, ollamaResp.Message.Content), nil
}

func (o *OllamaProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.StreamFrame, error) {
	reqPayload := o.chatRequest(history, true, llm.NewOptions(opts...))

	resp, err := o.do(ctx, o.StreamClient, http.MethodPost, "/api/chat", reqPayload)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamFrame)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		// Ollama streams newline-delimited JSON objects until done=true.
		decoder := json.NewDecoder(resp.Body)
		for {
			var chunk ollamaChatResponse
			if err := decoder.Decode(&chunk); err != nil {
				if err != io.EOF {
					llm.Send(ctx, ch, llm.ErrorFrame(fmt.Errorf("decode ollama stream: %w", err)))
				}
				return
			}
			if chunk.Error != "" {
				llm.Send(ctx, ch, llm.ErrorFrame(fmt.Errorf("ollama error: %s", chunk.Error)))
				return
			}
			if chunk.Message.Content != "" {
				if !llm.Send(ctx, ch, llm.DeltaFrame(chunk.Message.Content)) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
	}()
	return ch, nil
}

func (o *OllamaProvider) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	resp, err := o.do(ctx, o.Client, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}

	models := make([]llm.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		caps := []string{"chat"}
		if strings.Contains(m.Name, "embed") || m.Details.Family == "nomic-bert" || m.Details.Family == "bert" {
			caps = []string{"embedding"}
		}
		models = append(models, llm.ModelInfo{
			ID:           m.Name,
			Name:         m.Name,
			Provider:     o.Name(),
			Capabilities: caps,
			Size:         m.Size,
		})
	}
	return models, nil
}

func (o *OllamaProvider) Health(ctx context.Context) error {
	resp, err := o.do(ctx, o.Client, http.MethodGet, "/api/tags", nil)
	if err != nil {
		if errors.Is(err, llm.ErrProviderUnavailable) {
			return err
		}
		return llm.Unavailable(o.Name(), err)
	}
	resp.Body.Close()
	return nil
}

func (o *OllamaProvider) chatRequest(history []llm.Message, stream bool, options *llm.Options) ollamaChatRequest {
	ollamaMessages := make([]ollamaMessage, len(history))
	for i, msg := range history {
		role := msg.Role
		if role == "model" {
			role = llm.RoleAssistant
		}
		ollamaMessages[i] = ollamaMessage{
			Role:    role,
			Content: msg.Content,
		}
	}

	model := o.ModelName
	if options.Model != "" {
		model = options.Model
	}

	reqPayload := ollamaChatRequest{
		Model:    model,
		Messages: ollamaMessages,
		Stream:   stream,
		Options: &ollamaOptions{
			Temperature: options.Temperature,
		},
	}
	if options.MaxTokens > 0 {
		reqPayload.Options.NumPredict = options.MaxTokens
	}
	return reqPayload
}

func (o *OllamaProvider) postJSON(ctx context.Context, client *http.Client, path string, payload, out interface{}) error {
	resp, err := o.do(ctx, client, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// do sends the request and returns the response only for 200 OK.
func (o *OllamaProvider) do(ctx context.Context, client *http.Client, method, path string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payloadBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, o.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, llm.Unavailable(o.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}
	return resp, nil
}

func normalizeVector(v []float64) []float32 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		if norm == 0 {
			out[i] = float32(x)
			continue
		}
		out[i] = float32(x / norm)
	}
	return out
}
