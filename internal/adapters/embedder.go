// Package adapters binds the vendor clients in pkg/ to the capability
// interfaces in internal/ports.
package adapters

import (
	"context"
	"crypto/sha1" //nolint:gosec // cache key, not a security boundary
	"encoding/hex"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-finder/internal/ports"
	"github.com/sells-group/company-finder/pkg/ollama"
)

var _ ports.Embedder = (*OllamaEmbedder)(nil)

// DefaultEmbedCacheSize is the number of vectors kept when no size is given.
const DefaultEmbedCacheSize = 10000

// OllamaEmbedder serves embeddings from an Ollama server with a
// least-recently-used cache keyed by model and text. Safe for concurrent use.
type OllamaEmbedder struct {
	client ollama.Client
	cache  *lru.Cache[string, []float32]
}

// EmbedderOption configures an OllamaEmbedder.
type EmbedderOption func(*embedderOptions)

type embedderOptions struct {
	cacheSize int
}

// WithCacheSize caps the number of cached vectors. Sizes below 1 use
// DefaultEmbedCacheSize.
func WithCacheSize(n int) EmbedderOption {
	return func(o *embedderOptions) { o.cacheSize = n }
}

// NewOllamaEmbedder wraps an ollama client.
func NewOllamaEmbedder(client ollama.Client, opts ...EmbedderOption) *OllamaEmbedder {
	o := embedderOptions{cacheSize: DefaultEmbedCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cacheSize < 1 {
		o.cacheSize = DefaultEmbedCacheSize
	}
	cache, _ := lru.New[string, []float32](o.cacheSize) // only fails for size < 1
	return &OllamaEmbedder{client: client, cache: cache}
}

// CacheLen returns the number of cached vectors.
func (e *OllamaEmbedder) CacheLen() int { return e.cache.Len() }

// Embed returns the vector for one text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch returns one vector per text. Cached texts are not re-sent and
// each distinct uncached text is sent once.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missing []string
	pending := make(map[string][]int)
	for i, t := range texts {
		key := e.cacheKey(t)
		if vec := e.get(key); vec != nil {
			out[i] = vec
			continue
		}
		if _, seen := pending[key]; !seen {
			missing = append(missing, t)
		}
		pending[key] = append(pending[key], i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	resp, err := e.client.Embed(ctx, missing)
	if err != nil {
		return nil, eris.Wrap(err, "adapters: embed")
	}
	if len(resp.Embeddings) != len(missing) {
		return nil, eris.Errorf("adapters: embed returned %d vectors for %d texts", len(resp.Embeddings), len(missing))
	}

	for j, t := range missing {
		key := e.cacheKey(t)
		vec := resp.Embeddings[j]
		e.put(key, vec)
		for _, i := range pending[key] {
			out[i] = cloneVector(vec)
		}
	}
	return out, nil
}

func (e *OllamaEmbedder) cacheKey(text string) string {
	h := sha1.New() //nolint:gosec
	_, _ = io.WriteString(h, e.client.Model())
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

func (e *OllamaEmbedder) get(key string) []float32 {
	if vec, ok := e.cache.Get(key); ok {
		return cloneVector(vec)
	}
	return nil
}

func (e *OllamaEmbedder) put(key string, vec []float32) {
	e.cache.Add(key, cloneVector(vec))
}

func cloneVector(v []float32) []float32 {
	return append([]float32(nil), v...)
}
