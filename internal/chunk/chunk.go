// Package chunk splits document text into overlapping token windows for
// embedding. Chunks are ephemeral: they exist only to drive embedding
// generation and are reduced to a single per-document vector.
package chunk

import "strings"

const (
	// DefaultMaxTokens is the window size in whitespace tokens.
	DefaultMaxTokens = 220
	// DefaultOverlapTokens is the overlap between consecutive windows.
	DefaultOverlapTokens = 40
)

// Split divides text into overlapping windows of at most maxTokens
// whitespace-delimited tokens, advancing by maxTokens-overlapTokens per step.
//
// Guarantees:
//   - always returns at least one chunk (a single empty chunk for empty text)
//   - the final window ends exactly at the last token
//   - no chunk is empty in the multi-chunk case
func Split(text string, maxTokens, overlapTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlapTokens < 0 {
		overlapTokens = DefaultOverlapTokens
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return []string{""}
	}
	if len(tokens) <= maxTokens {
		return []string{strings.Join(tokens, " ")}
	}

	step := maxTokens - overlapTokens
	if step < 1 {
		step = 1
	}

	var chunks []string
	for i := 0; i < len(tokens); i += step {
		end := i + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, strings.Join(tokens[i:end], " "))
		// Once a window reaches the last token, stop even if the stride
		// would allow another (shorter, fully-overlapped) window.
		if i+maxTokens >= len(tokens) {
			break
		}
	}
	return chunks
}

// SplitDefault applies the default window and overlap sizes.
func SplitDefault(text string) []string {
	return Split(text, DefaultMaxTokens, DefaultOverlapTokens)
}
