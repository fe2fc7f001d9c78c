package flagsearch

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	text      TextEncoder
	textModel string
	image     ImageEncoder

	cacheAddrs    []string
	cachePassword string
	cacheTTL      time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithTextEncoder enables SearchText. model identifies the encoder in cache keys,
// so changing it never serves vectors from another model.
func WithTextEncoder(e TextEncoder, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.text = e
		c.textModel = model
	})
}

// WithImageEncoder enables SearchImage.
func WithImageEncoder(e ImageEncoder) Option {
	return optionFunc(func(c *clientConfig) {
		c.image = e
	})
}

// WithValkey caches text query embeddings in a Valkey or Redis instance.
// Has no effect without a text encoder.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheAddrs = []string{addr}
		c.cachePassword = password
	})
}

// WithCacheTTL sets the lifetime of cached text embeddings. Default: 7 days.
func WithCacheTTL(ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheTTL = ttl
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
