package rag

import (
	"strings"

	"veritasai-be/pkg/token"
)

const (
	DefaultSeparator        = "\n\n---\n\n"
	DefaultMaxContextTokens = 4000

	// share of the context window kept free for the answer
	responseReserve = 0.2
)

type Assembly struct {
	Context    string
	Chunks     []ScoredChunk
	UsedTokens int
}

func (a Assembly) Empty() bool {
	return strings.TrimSpace(a.Context) == ""
}

// AssembleContext takes candidates in order while they fit in budget. Each
// chunk costs its tokens plus one separator. Selection stops at the first
// chunk that does not fit, even if a later one would.
func AssembleContext(candidates []ScoredChunk, budget int, separator string) Assembly {
	if separator == "" {
		separator = DefaultSeparator
	}
	sepCost := token.Estimate(separator)

	var (
		selected []ScoredChunk
		used     int
	)
	for _, c := range candidates {
		cost := c.Tokens() + sepCost
		if used+cost > budget {
			break
		}
		selected = append(selected, c)
		used += cost
	}

	parts := make([]string, len(selected))
	for i, c := range selected {
		parts[i] = c.Content
	}
	return Assembly{
		Context:    strings.Join(parts, separator),
		Chunks:     selected,
		UsedTokens: used,
	}
}

// PlanBudget returns the tokens left for context once the preamble, the
// user's messages and the response reserve are taken out. Never negative.
func PlanBudget(maxContext int, preamble string, userMessages []string) int {
	if maxContext <= 0 {
		maxContext = DefaultMaxContextTokens
	}
	reserved := token.Estimate(preamble) + token.Sum(userMessages...) + int(float64(maxContext)*responseReserve)
	return max(maxContext-reserved, 0)
}
