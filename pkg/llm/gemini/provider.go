package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"veritasai-be/pkg/llm"
)

type Provider struct {
	client         *genai.Client
	model          string
	embeddingModel string
}

var _ llm.Provider = (*Provider)(nil)

func NewProvider(ctx context.Context, cfg llm.ProviderConfig) (*Provider, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, llm.Unavailable("gemini", err)
	}
	return &Provider{client: cl, model: cfg.ChatModel, embeddingModel: cfg.EmbeddingModel}, nil
}

func (g *Provider) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *Provider) Name() string { return "gemini" }

// Embed batches all texts in one request. Document retrieval task type is
// used since queries and chunks share one vector space here.
func (g *Provider) Embed(ctx context.Context, texts []string, options ...llm.Option) ([][]float32, error) {
	if g.embeddingModel == "" {
		return nil, llm.Unsupported(g.Name(), "embeddings")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	opts := llm.NewOptions(llm.WithModel(g.embeddingModel))
	for _, o := range options {
		o(opts)
	}

	em := g.client.EmbeddingModel(opts.Model)
	em.TaskType = genai.TaskTypeRetrievalDocument

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

func (g *Provider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (*llm.ChatResponse, error) {
	cs, last, model, err := g.session(history, options)
	if err != nil {
		return nil, err
	}

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	return llm.NewChatResponse("", model, responseText(resp)), nil
}

func (g *Provider) ChatStream(ctx context.Context, history []llm.Message, options ...llm.Option) (<-chan llm.StreamFrame, error) {
	cs, last, _, err := g.session(history, options)
	if err != nil {
		return nil, err
	}

	iter := cs.SendMessageStream(ctx, genai.Text(last))
	ch := make(chan llm.StreamFrame)
	go func() {
		defer close(ch)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					llm.Send(ctx, ch, llm.ErrorFrame(fmt.Errorf("gemini stream: %w", err)))
				}
				return
			}
			if text := responseText(resp); text != "" {
				if !llm.Send(ctx, ch, llm.DeltaFrame(text)) {
					return
				}
			}
		}
	}()
	return ch, nil
}

func (g *Provider) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	it := g.client.ListModels(ctx)
	var models []llm.ModelInfo
	for {
		m, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, llm.Unavailable(g.Name(), err)
		}

		var caps []string
		for _, method := range m.SupportedGenerationMethods {
			switch method {
			case "generateContent":
				caps = append(caps, "chat")
			case "embedContent":
				caps = append(caps, "embedding")
			}
		}
		if len(caps) == 0 {
			continue
		}
		models = append(models, llm.ModelInfo{
			ID:           strings.TrimPrefix(m.Name, "models/"),
			Name:         m.DisplayName,
			Provider:     g.Name(),
			Capabilities: caps,
		})
	}
	return models, nil
}

func (g *Provider) Health(ctx context.Context) error {
	it := g.client.ListModels(ctx)
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return llm.Unavailable(g.Name(), err)
	}
	return nil
}

// session maps the conversation onto a chat session; the final message is
// returned separately because it is what gets sent.
func (g *Provider) session(history []llm.Message, options []llm.Option) (*genai.ChatSession, string, string, error) {
	opts := llm.NewOptions(llm.WithModel(g.model))
	for _, o := range options {
		o(opts)
	}

	system, turns := llm.SplitSystem(history)
	if len(turns) == 0 {
		return nil, "", "", fmt.Errorf("gemini: no message to send")
	}

	m := g.client.GenerativeModel(opts.Model)
	m.SetTemperature(float32(opts.Temperature))
	if opts.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	if system != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}

	cs := m.StartChat()
	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == llm.RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return cs, turns[len(turns)-1].Content, opts.Model, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
