package analysis

import "strings"

// DefaultChunkSize is the largest prompt-text chunk sent to the generative
// service in one call.
const DefaultChunkSize = 120000

// Chunk splits text into pieces of at most maxLen characters, preferring to
// break at the last whitespace within the bound. Concatenating the chunks
// reconstructs text exactly; only the final chunk may be shorter than the
// bound. maxLen <= 0 falls back to DefaultChunkSize.
func Chunk(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultChunkSize
	}

	var chunks []string
	for len(text) > maxLen {
		chunk := text[:maxLen]
		if i := strings.LastIndexByte(chunk, ' '); i > 0 {
			chunk = chunk[:i]
		}
		chunks = append(chunks, chunk)
		text = text[len(chunk):]
	}
	return append(chunks, text)
}
