// Package chunking splits extracted document text into overlapping chunks
// sized for embedding.
package chunking

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize = 1500
	DefaultOverlap   = 200
)

// separators are tried from the coarsest semantic unit to the finest.
var separators = []string{"\n\n", "\n", ". ", " "}

type Metadata struct {
	Length int `json:"length"`
}

type Chunk struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Chunker splits text into chunks of at most ChunkSize characters, each
// carrying up to Overlap trailing characters of its predecessor. Lengths are
// counted in runes.
type Chunker struct {
	ChunkSize int
	Overlap   int
}

func New(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > chunkSize/2 {
		overlap = chunkSize / 2
	}
	return &Chunker{ChunkSize: chunkSize, Overlap: overlap}
}

// Split is shorthand for New(chunkSize, overlap).Split(text).
func Split(text string, chunkSize, overlap int) []Chunk {
	return New(chunkSize, overlap).Split(text)
}

// Split never returns an empty slice: blank input yields one empty chunk.
func (c *Chunker) Split(text string) []Chunk {
	text = strings.TrimSpace(text)
	if runeLen(text) <= c.ChunkSize {
		return []Chunk{newChunk(text)}
	}

	contents := c.recursive(text, separators)
	chunks := make([]Chunk, 0, len(contents))
	for _, content := range contents {
		chunks = append(chunks, newChunk(content))
	}
	return chunks
}

// Contents returns only the chunk texts.
func Contents(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Content
	}
	return out
}

func (c *Chunker) recursive(text string, seps []string) []string {
	if runeLen(text) <= c.ChunkSize {
		return []string{text}
	}

	for i, sep := range seps {
		parts, joiner := splitOn(text, sep)
		if len(parts) > 1 {
			return c.merge(parts, joiner, seps[i+1:])
		}
	}

	return c.fixedWindows(text)
}

// splitOn splits text at sep and returns the string that rejoins the parts.
// Sentence splits keep the full stop on the sentence it ends.
func splitOn(text, sep string) ([]string, string) {
	if sep == ". " {
		return strings.SplitAfter(text, sep), " "
	}
	return strings.Split(text, sep), sep
}

// merge packs parts into chunks. Parts that are too large on their own are
// re-split with the finer separators only.
func (c *Chunker) merge(parts []string, sep string, finer []string) []string {
	var (
		chunks  []string
		current string
		carry   string
	)

	closeCurrent := func() {
		if current == "" {
			return
		}
		chunks = append(chunks, current)
		carry = c.carryOf(current)
		current = ""
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if runeLen(part) > c.ChunkSize {
			closeCurrent()
			seed := part
			if carry != "" {
				seed = carry + sep + part
			}
			sub := c.recursive(seed, finer)
			if len(sub) > 0 {
				chunks = append(chunks, sub...)
				carry = c.carryOf(sub[len(sub)-1])
			}
			continue
		}

		if current == "" {
			current = c.seed(carry, sep, part)
			continue
		}

		if runeLen(current)+runeLen(sep)+runeLen(part) > c.ChunkSize {
			closeCurrent()
			current = c.seed(carry, sep, part)
			continue
		}
		current = current + sep + part
	}

	closeCurrent()
	return chunks
}

// seed starts a new chunk with the carried overlap, shortened when needed so
// the chunk stays within ChunkSize+Overlap.
func (c *Chunker) seed(carry, sep, part string) string {
	if carry == "" {
		return part
	}
	room := c.ChunkSize + c.Overlap - runeLen(sep) - runeLen(part)
	if room <= 0 {
		return part
	}
	carry = tail(carry, room)
	return carry + sep + part
}

// fixedWindows is the fallback for text without any separator.
func (c *Chunker) fixedWindows(text string) []string {
	runes := []rune(text)
	total := len(runes)
	step := c.ChunkSize - c.Overlap

	var (
		chunks   []string
		previous string
	)
	for start := 0; start < total; {
		end := start + c.ChunkSize
		if end > total {
			end = total
		}
		window := string(runes[start:end])

		content := window
		if start > 0 && previous != "" {
			content = tail(previous, c.Overlap) + window
		}
		chunks = append(chunks, content)
		previous = window

		if end == total {
			break
		}
		next := start + step
		if next <= start {
			break
		}
		start = next
	}
	return chunks
}

func newChunk(content string) Chunk {
	return Chunk{Content: content, Metadata: Metadata{Length: runeLen(content)}}
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// carryOf returns the overlap carried from a finished chunk. Chunks no longer
// than the overlap carry nothing.
func (c *Chunker) carryOf(chunk string) string {
	if runeLen(chunk) <= c.Overlap {
		return ""
	}
	return tail(chunk, c.Overlap)
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
