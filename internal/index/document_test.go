package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Hello World", extractTitle("# Hello World\n\nbody", "x.md"))
	assert.Equal(t, "Second", extractTitle("intro text\n\n# Second\n", "x.md"))
	assert.Equal(t, "my-note", extractTitle("no heading here", "dir/my-note.md"))
	assert.Equal(t, "Trimmed", extractTitle("#   Trimmed   \n", "x.md"))
	// "##" is not an H1.
	assert.Equal(t, "x", extractTitle("## Subheading only", "x.md"))
}

func TestContentHashAndShortID(t *testing.T) {
	sha := contentHash("hello")
	assert.Len(t, sha, 64)
	assert.Equal(t, sha[:6], shortID(sha))
	// Stable across calls.
	assert.Equal(t, sha, contentHash("hello"))
	assert.NotEqual(t, sha, contentHash("hello!"))
}

func TestDisplayPath(t *testing.T) {
	assert.Equal(t, "notes/sub/a.md", displayPath("notes", "sub/a.md"))
}
