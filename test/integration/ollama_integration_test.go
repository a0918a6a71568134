package integration

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"veritasai-be/pkg/llm"
	"veritasai-be/pkg/llm/ollama"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ollamaProvider(t *testing.T) *ollama.OllamaProvider {
	t.Helper()
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		t.Skip("Skipping integration test: OLLAMA_BASE_URL not set")
	}

	p := ollama.NewOllamaProvider(llm.ProviderConfig{
		Name:           "ollama",
		BaseURL:        baseURL,
		ChatModel:      envOr("OLLAMA_CHAT_MODEL", "llama3.2"),
		EmbeddingModel: envOr("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
		Timeout:        2 * time.Minute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Health(ctx); err != nil {
		t.Skipf("Skipping integration test: ollama unreachable: %v", err)
	}
	return p
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestOllamaEmbed(t *testing.T) {
	p := ollamaProvider(t)

	vectors, err := p.Embed(context.Background(), []string{"first text", "second text"})

	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.NotEmpty(t, vectors[0])
	assert.Len(t, vectors[1], len(vectors[0]))
}

func TestOllamaChatStream(t *testing.T) {
	p := ollamaProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	frames, err := p.ChatStream(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "Answer with a single word."},
		{Role: llm.RoleUser, Content: "What colour is the sky on a clear day?"},
	}, llm.WithTemperature(0))
	require.NoError(t, err)

	var sb strings.Builder
	for f := range frames {
		require.NoError(t, f.Err)
		for _, c := range f.Choices {
			sb.WriteString(c.Delta.Content)
		}
	}
	assert.NotEmpty(t, strings.TrimSpace(sb.String()))
}
