// Package chunker splits long documents into size-bounded segments for embedding.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// Separator is the paragraph boundary text is split on.
const Separator = "\n\n"

// CharsPerToken is the rough characters-per-token ratio used to turn a token
// budget into a character budget.
const CharsPerToken = 4

// DefaultMaxTokens is the per-chunk token budget used for document ingestion.
const DefaultMaxTokens = 8000

// MaxCharsForTokens converts a token budget into a character budget.
func MaxCharsForTokens(maxTokens int) int {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return maxTokens * CharsPerToken
}

// Chunk splits text into chunks of at most maxSize characters.
//
// Text that already fits is returned as a single chunk, including the empty
// string. Otherwise paragraphs are packed greedily in order; a paragraph that
// alone exceeds maxSize becomes its own oversized chunk. Paragraphs are never
// trimmed, so strings.Join(chunks, Separator) == text.
func Chunk(text string, maxSize int) []string {
	if maxSize <= 0 || runeLen(text) <= maxSize {
		return []string{text}
	}

	var (
		chunks  []string
		current []string
		size    int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, Separator))
		current = current[:0]
		size = 0
	}

	for _, p := range strings.Split(text, Separator) {
		n := runeLen(p)
		grown := n
		if len(current) > 0 {
			grown = size + len(Separator) + n
		}
		if len(current) > 0 && grown > maxSize {
			flush()
			grown = n
		}
		current = append(current, p)
		size = grown
	}
	flush()
	return chunks
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
