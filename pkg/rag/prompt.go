package rag

import (
	"fmt"
	"strings"
)

const FallbackPrompt = "You are a helpful assistant. If the context is empty or insufficient, answer based on your general knowledge."

// ScopeDescription names what the context was drawn from.
func ScopeDescription(documentName string) string {
	if documentName == "" {
		return "the available documents"
	}
	return fmt.Sprintf("this document ('%s')", documentName)
}

// Preamble is the grounding instruction that precedes the context block.
func Preamble(documentName string) string {
	var b strings.Builder
	b.WriteString("Based only on the following context from ")
	b.WriteString(ScopeDescription(documentName))
	b.WriteString(", answer the user's question. If you are not sure, say you are not sure and suggest where to look.\n\n")
	b.WriteString("Context:\n")
	return b.String()
}

// SystemPrompt grounds the model in context, or falls back to general
// knowledge when nothing was retrieved.
func SystemPrompt(documentName, context string) string {
	if strings.TrimSpace(context) == "" {
		return FallbackPrompt
	}
	return Preamble(documentName) + context
}
