package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritasai-be/pkg/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProvider(llm.ProviderConfig{
		Name:      "anthropic",
		APIKey:    "key",
		BaseURL:   srv.URL,
		ChatModel: "claude-3-5-sonnet-20241022",
	})
}

func TestProvider_ChatStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "be brief", req.System)
		assert.Len(t, req.Messages, 1)
		assert.Equal(t, defaultMaxTokens, req.MaxTokens)

		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n")
		fmt.Fprint(w, "event: ping\ndata: {\"type\":\"ping\"}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"!\"}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	})

	stream, err := p.ChatStream(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "hello"},
	})
	require.NoError(t, err)

	var frames []string
	for f := range stream {
		require.NoError(t, f.Err)
		frames = append(frames, f.Content())
	}
	assert.Equal(t, []string{"Hi", "!"}, frames)
}

func TestProvider_ChatStreamErrorEvent(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"par\"}}\n\n")
		fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	})

	stream, err := p.ChatStream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hello"}})
	require.NoError(t, err)

	text, err := llm.Collect(stream)
	assert.Equal(t, "par", text)
	assert.ErrorContains(t, err, "Overloaded")
}

func TestProvider_Chat(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"msg_1","content":[{"type":"text","text":"Hello "},{"type":"text","text":"there"}]}`)
	})

	resp, err := p.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, "Hello there", resp.Content())
}

func TestProvider_EmbedNotSupported(t *testing.T) {
	p := NewProvider(llm.ProviderConfig{})
	_, err := p.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, llm.ErrCapabilityNotSupported)
}
