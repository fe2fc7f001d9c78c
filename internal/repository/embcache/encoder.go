package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/flagsearch/internal/db"
	"github.com/kailas-cloud/flagsearch/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "text_emb:"

// store is the consumer interface for the encoding cache.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// CachedTextEncoder caches text query embeddings in a key-value store.
// Keys include the model so switching encoders never serves stale vectors.
type CachedTextEncoder struct {
	inner      domain.TextEncoder
	store      store
	model      string
	dimensions int
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// Options tune the cache.
type Options struct {
	Model      string
	Dimensions int // cached vectors of another length are ignored; 0 disables the check
	TTL        time.Duration
	CacheTotal *prometheus.CounterVec // label "result" ("hit"/"miss"); nil disables counting
}

// New creates a caching decorator.
func New(inner domain.TextEncoder, s store, opts Options, logger *zap.Logger) *CachedTextEncoder {
	return &CachedTextEncoder{
		inner:      inner,
		store:      s,
		model:      opts.Model,
		dimensions: opts.Dimensions,
		ttl:        opts.TTL,
		cacheTotal: opts.CacheTotal,
		logger:     logger,
	}
}

// EncodeText returns a cached embedding or calls the inner encoder.
// Cache hit: TotalTokens = 0 (no real tokens consumed). Cache failures never fail the request.
func (c *CachedTextEncoder) EncodeText(ctx context.Context, text string) (domain.EncodingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return domain.EncodingResult{Embedding: vec}, nil
	}

	c.incCache("miss")

	result, err := c.inner.EncodeText(ctx, text)
	if err != nil {
		return domain.EncodingResult{}, fmt.Errorf("encode text: %w", err)
	}

	c.putToCache(ctx, key, result.Embedding)
	return result, nil
}

// HealthCheck delegates to the inner encoder when it supports health checks.
func (c *CachedTextEncoder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func (c *CachedTextEncoder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedTextEncoder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.model + "|" + text))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedTextEncoder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		c.evict(ctx, key)
		return nil, false
	}
	if c.dimensions > 0 && len(vec) != c.dimensions {
		c.logger.Warn("Ignoring cached embedding with wrong dimension",
			zap.String("key", key), zap.Int("got", len(vec)), zap.Int("want", c.dimensions))
		c.evict(ctx, key)
		return nil, false
	}

	return vec, true
}

// evict removes an unusable entry so it is not read again if the re-encode fails.
func (c *CachedTextEncoder) evict(ctx context.Context, key string) {
	if err := c.store.Del(ctx, key); err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		c.logger.Warn("Failed to evict cached embedding", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedTextEncoder) putToCache(ctx context.Context, key string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	if err := c.store.SetWithTTL(ctx, key, vectorToBytes(vec), c.ttl); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
