package flagsearch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/flagsearch/internal/corpus"
	dbRedis "github.com/kailas-cloud/flagsearch/internal/db/redis"
	"github.com/kailas-cloud/flagsearch/internal/domain"
	domentry "github.com/kailas-cloud/flagsearch/internal/domain/entry"
	"github.com/kailas-cloud/flagsearch/internal/domain/search/query"
	"github.com/kailas-cloud/flagsearch/internal/domain/search/result"
	"github.com/kailas-cloud/flagsearch/internal/repository/embcache"
	healthuc "github.com/kailas-cloud/flagsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/flagsearch/internal/usecase/search"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultCacheTTL         = 7 * 24 * time.Hour
)

// Internal interfaces for substitution in tests.
type searchUseCase interface {
	Search(ctx context.Context, q query.Query, topK int) ([]result.Result, error)
	SearchVector(ctx context.Context, vec []float32, topK int) ([]result.Result, error)
}

type corpusReader interface {
	EntryAt(i int) (domentry.Flag, error)
	IndexOf(name string) (int, bool)
	Size() int
	Dim() int
}

// Client is the flagsearch SDK entry point. It is safe for concurrent use.
type Client struct {
	corpus    corpusReader
	cache     *dbRedis.Store
	searchSvc searchUseCase
	healthSvc healthUseCase
	obs       *observer
}

// Open loads the corpus described by descriptor and returns a ready Client.
// The provided context is used for the cache readiness check.
func Open(ctx context.Context, descriptor string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{cacheTTL: defaultCacheTTL}
	for _, o := range opts {
		o.apply(cfg)
	}

	logger := zapLogger(cfg.logger)
	store, err := corpus.Load(descriptor, logger)
	if err != nil {
		return nil, fmt.Errorf("flagsearch: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	var cache *dbRedis.Store
	if len(cfg.cacheAddrs) > 0 && cfg.text != nil {
		cache, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.cacheAddrs,
			Password: cfg.cachePassword,
		})
		if err != nil {
			return nil, fmt.Errorf("flagsearch: create cache store: %w", err)
		}
		if err := cache.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			cache.Close()
			return nil, fmt.Errorf("flagsearch: cache not ready: %w", err)
		}
	}

	return wireClient(store, cache, cfg, obs, logger), nil
}

func wireClient(
	store *corpus.Store, cache *dbRedis.Store, cfg *clientConfig, obs *observer, logger *zap.Logger,
) *Client {
	var (
		text        domain.TextEncoder
		image       domain.ImageEncoder
		textHealth  healthuc.Checker
		imageHealth healthuc.Checker
		cacheHealth healthuc.Pinger
	)
	if cfg.text != nil {
		a := &textAdapter{inner: cfg.text}
		text, textHealth = a, a
		if cache != nil {
			text = embcache.New(a, cache, embcache.Options{
				Model:      cfg.textModel,
				Dimensions: store.Dim(),
				TTL:        cfg.cacheTTL,
			}, logger)
			cacheHealth = cache
		}
	}
	if cfg.image != nil {
		a := &imageAdapter{inner: cfg.image}
		image, imageHealth = a, a
	}

	return &Client{
		corpus:    store,
		cache:     cache,
		searchSvc: searchuc.New(searchuc.NewRanker(store, logger), text, image),
		healthSvc: healthuc.New(store, textHealth, imageHealth, cacheHealth),
		obs:       obs,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

// Ping checks cache connectivity. Without a cache it always succeeds.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if c.cache == nil {
		return nil
	}
	if err = c.cache.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// SearchText returns the topK flags most similar to a text description.
func (c *Client) SearchText(ctx context.Context, text string, topK int) (matches []Match, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search_text", start, err) }()

	res, err := c.searchSvc.Search(ctx, query.Text(text), topK)
	if err != nil {
		return nil, fmt.Errorf("search text: %w", err)
	}
	return matchesFromResults(res), nil
}

// SearchImage returns the topK flags most similar to an encoded image.
func (c *Client) SearchImage(ctx context.Context, data []byte, topK int) (matches []Match, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search_image", start, err) }()

	res, err := c.searchSvc.Search(ctx, query.Image(data), topK)
	if err != nil {
		return nil, fmt.Errorf("search image: %w", err)
	}
	return matchesFromResults(res), nil
}

// SearchVector ranks a precomputed embedding. It must have the corpus dimension.
func (c *Client) SearchVector(ctx context.Context, vec []float32, topK int) (matches []Match, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search_vector", start, err) }()

	res, err := c.searchSvc.SearchVector(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search vector: %w", err)
	}
	return matchesFromResults(res), nil
}

// Flag returns the flag at corpus row index.
func (c *Client) Flag(index int) (Flag, error) {
	f, err := c.corpus.EntryAt(index)
	if err != nil {
		return Flag{}, fmt.Errorf("flag: %w", err)
	}
	return flagFromDomain(&f), nil
}

// Lookup returns the corpus row of the named flag.
func (c *Client) Lookup(name string) (int, bool) {
	return c.corpus.IndexOf(name)
}

// Size returns the number of flags in the corpus.
func (c *Client) Size() int { return c.corpus.Size() }

// Dimensions returns the corpus embedding dimension.
func (c *Client) Dimensions() int { return c.corpus.Dim() }
