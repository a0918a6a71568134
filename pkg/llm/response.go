package llm

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// ChatResponse is the normalized non-streaming completion shape shared by all
// backends.
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
}

// Content returns the first choice's text.
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// NewChatResponse wraps a single assistant reply. An empty id gets a
// generated one.
func NewChatResponse(id, model, content string) *ChatResponse {
	if id == "" {
		id = "chatcmpl-" + uuid.NewString()
	}
	return &ChatResponse{
		ID:    id,
		Model: model,
		Choices: []Choice{
			{Index: 0, Message: Message{Role: RoleAssistant, Content: content}},
		},
	}
}

// StreamFrame is one incremental streaming event.
type StreamFrame struct {
	Choices []StreamChoice `json:"choices"`
	Err     error          `json:"-"`
}

type StreamChoice struct {
	Delta Delta `json:"delta"`
}

type Delta struct {
	Content string `json:"content"`
}

func DeltaFrame(content string) StreamFrame {
	return StreamFrame{Choices: []StreamChoice{{Delta: Delta{Content: content}}}}
}

func ErrorFrame(err error) StreamFrame {
	return StreamFrame{Err: err}
}

func (f StreamFrame) Content() string {
	if len(f.Choices) == 0 {
		return ""
	}
	return f.Choices[0].Delta.Content
}

// Send delivers a frame unless ctx is done first.
func Send(ctx context.Context, ch chan<- StreamFrame, frame StreamFrame) bool {
	select {
	case ch <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

// Collect drains a stream into the full text. The text gathered before an
// error frame is returned along with the error.
func Collect(stream <-chan StreamFrame) (string, error) {
	var b strings.Builder
	for frame := range stream {
		if frame.Err != nil {
			return b.String(), frame.Err
		}
		b.WriteString(frame.Content())
	}
	return b.String(), nil
}
