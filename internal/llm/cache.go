package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// ResponseKey derives a stable cache key for one model call. The image is the
// dominant component; identical crops re-submitted against the same model and
// prompt are served from cache instead of re-running the local model.
func ResponseKey(model, prompt, imageB64 string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(imageB64))
	return "detectlab:v1:" + hex.EncodeToString(h.Sum(nil))
}

// CachedProvider wraps a Provider with an in-memory response cache.
type CachedProvider struct {
	inner Provider
	cache *gocache.Cache
	ttl   time.Duration
}

// NewCachedProvider creates a caching wrapper around a provider. A zero ttl
// disables expiry for the life of the process.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	defaultTTL := ttl
	if defaultTTL == 0 {
		defaultTTL = gocache.NoExpiration
	}
	return &CachedProvider{
		inner: inner,
		cache: gocache.New(defaultTTL, 10*time.Minute),
		ttl:   defaultTTL,
	}
}

// Name returns the wrapped provider's name
func (c *CachedProvider) Name() string {
	return c.inner.Name()
}

// IsAvailable defers to the wrapped provider
func (c *CachedProvider) IsAvailable(ctx context.Context) bool {
	return c.inner.IsAvailable(ctx)
}

// Generate serves identical requests from cache, otherwise calls through.
// Errors are never cached.
func (c *CachedProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	key := ResponseKey(req.Model, req.Prompt, req.ImageB64)
	if val, found := c.cache.Get(key); found {
		resp := val.(Response)
		zap.L().Debug("model response served from cache", zap.String("provider", c.inner.Name()))
		return &resp, nil
	}

	resp, err := c.inner.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, *resp, c.ttl)
	return resp, nil
}
