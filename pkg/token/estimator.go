// Package token provides a character based token estimate.
//
// The numbers produced here are an approximation (roughly four characters per
// token for English text) and are only used for budget planning. They never
// match a real tokenizer exactly.
package token

import (
	"strings"
	"unicode/utf8"

	"veritasai-be/pkg/llm"
)

const charsPerToken = 4

// Estimate returns ceil(runes/4), or 0 for empty and whitespace-only text.
func Estimate(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return (utf8.RuneCountInString(text) + charsPerToken - 1) / charsPerToken
}

// EstimateMany applies Estimate to every element.
func EstimateMany(texts []string) []int {
	counts := make([]int, len(texts))
	for i, t := range texts {
		counts[i] = Estimate(t)
	}
	return counts
}

// Sum returns the total estimate over all texts.
func Sum(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += Estimate(t)
	}
	return total
}

// WouldExceed reports whether adding candidate to current goes over max.
func WouldExceed(current int, candidate string, max int) bool {
	return current+Estimate(candidate) > max
}

// EstimateMessages sums the estimate over message contents.
func EstimateMessages(msgs []llm.Message) int {
	total := 0
	for _, m := range msgs {
		total += Estimate(m.Content)
	}
	return total
}
