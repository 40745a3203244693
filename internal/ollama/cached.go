package ollama

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize is the default number of embeddings to keep.
// Hybrid search embeds the same query variants repeatedly; caching avoids
// one network round-trip per repeat.
const DefaultEmbeddingCacheSize = 256

// Embedder is the embedding capability consumed by the engines.
type Embedder interface {
	Embed(ctx context.Context, text, model string) ([]float64, error)
}

// Verify the client satisfies the capability interface.
var _ Embedder = (*Client)(nil)

// CachedEmbedder wraps an Embedder with an LRU cache keyed on (model, text).
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float64]
}

// NewCachedEmbedder creates a cached embedder wrapping inner.
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float64](size)
	return &CachedEmbedder{inner: inner, cache: cache}
}

func cacheKey(text, model string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Embed returns the cached vector when available, otherwise delegates and
// caches the result. Failures are never cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text, model string) ([]float64, error) {
	key := cacheKey(text, model)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text, model)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// Len reports the number of cached embeddings.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}
