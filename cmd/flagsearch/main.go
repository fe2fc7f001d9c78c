package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/flagsearch/internal/config"
	"github.com/kailas-cloud/flagsearch/internal/corpus"
	dbRedis "github.com/kailas-cloud/flagsearch/internal/db/redis"
	"github.com/kailas-cloud/flagsearch/internal/domain"
	logpkg "github.com/kailas-cloud/flagsearch/internal/logger"
	"github.com/kailas-cloud/flagsearch/internal/metrics"
	"github.com/kailas-cloud/flagsearch/internal/repository/embcache"
	chiTransport "github.com/kailas-cloud/flagsearch/internal/transport/chi"
	onnxEnc "github.com/kailas-cloud/flagsearch/internal/transport/onnx"
	openaiEnc "github.com/kailas-cloud/flagsearch/internal/transport/openai"
	"github.com/kailas-cloud/flagsearch/internal/usecase/encoding"
	healthuc "github.com/kailas-cloud/flagsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/flagsearch/internal/usecase/search"
	"github.com/kailas-cloud/flagsearch/internal/version"
)

// textBackend is a text encoder that can report its own health.
type textBackend interface {
	domain.TextEncoder
	domain.HealthChecker
}

// imageBackend is an image encoder that can report its own health.
type imageBackend interface {
	domain.ImageEncoder
	domain.HealthChecker
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting flagsearch API server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("corpus", cfg.Corpus.Descriptor),
		zap.String("text_encoder", cfg.Encoder.Text),
		zap.String("image_encoder", cfg.Encoder.Image),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterHTTPMetrics()
	metrics.RegisterEncoderMetrics()
	metrics.RegisterSearchMetrics()

	// Corpus is loaded once; refreshing requires a restart.
	store, err := corpus.Load(cfg.Corpus.Descriptor, logger)
	if err != nil {
		logger.Fatal("Failed to load corpus", zap.String("descriptor", cfg.Corpus.Descriptor), zap.Error(err))
	}
	metrics.CorpusFlags.Set(float64(store.Size()))
	metrics.CorpusDimensions.Set(float64(store.Dim()))

	ctx := context.Background()

	// Optional Valkey/Redis cache for text query embeddings
	var cache *dbRedis.Store
	if cfg.Cache.Enabled() {
		cache, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer cache.Close()

		if err := cache.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		logger.Info("Connected to cache", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	// Encoders close before the ONNX runtime is torn down (defers run in reverse).
	defer func() {
		if err := onnxEnc.Shutdown(); err != nil {
			logger.Warn("ONNX runtime shutdown failed", zap.Error(err))
		}
	}()
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn("Failed to close encoder", zap.Error(err))
			}
		}
	}()

	text, err := buildTextEncoder(cfg, store.Dim(), cache, &closers, logger)
	if err != nil {
		logger.Fatal("Failed to create text encoder", zap.Error(err))
	}
	image, err := buildImageEncoder(cfg, &closers, logger)
	if err != nil {
		logger.Fatal("Failed to create image encoder", zap.Error(err))
	}

	// Pass nil interfaces (not typed nil pointers!) for unconfigured modalities.
	var (
		textEnc     domain.TextEncoder
		imageEnc    domain.ImageEncoder
		textHealth  healthuc.Checker
		imageHealth healthuc.Checker
		cacheHealth healthuc.Pinger
	)
	if text != nil {
		textEnc, textHealth = text, text
	}
	if image != nil {
		imageEnc, imageHealth = image, image
	}
	if cache != nil {
		cacheHealth = cache
	}

	instrumented := encoding.NewInstrumented(textEnc, imageEnc, providerLabel(cfg), cfg.Encoder.Timeout(), logger)

	// Create use case services
	searchSvc := searchuc.New(searchuc.NewRanker(store, logger), instrumented.Text(), instrumented.Image())
	healthSvc := healthuc.New(store, textHealth, imageHealth, cacheHealth)

	// Create chi server
	server := chiTransport.NewServer(searchSvc, store, healthSvc, chiTransport.Limits{
		DefaultTopK:    cfg.Corpus.DefaultTopK,
		MaxTopK:        cfg.Corpus.MaxTopK,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes(),
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.CORSMiddleware(cfg.HTTP.CORSOrigins))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildTextEncoder assembles the text chain: provider -> Cached. Returns nil when text search is disabled.
func buildTextEncoder(
	cfg config.Config, dim int, cache *dbRedis.Store, closers *[]io.Closer, logger *zap.Logger,
) (textBackend, error) {
	var (
		base  textBackend
		model string
	)
	switch cfg.Encoder.Text {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderOpenAI:
		oc := cfg.Encoder.OpenAI
		base = openaiEnc.NewEncoder(&openaiEnc.Config{
			APIKey:     oc.APIKey,
			BaseURL:    oc.BaseURL,
			Model:      oc.Model,
			Dimensions: dim,
			User:       oc.User,
			Logger:     logger,
		})
		model = oc.Model
	case config.ProviderONNX:
		oc := cfg.Encoder.ONNX
		enc, err := onnxEnc.NewTextEncoder(&onnxEnc.TextConfig{
			LibraryPath:   oc.LibraryPath,
			ModelPath:     oc.TextModel,
			TokenizerPath: oc.Tokenizer,
			Inputs:        oc.TextInputs,
			Output:        oc.TextOutput,
			MaxSeqLen:     oc.MaxSeqLen,
			PadID:         oc.PadID,
			Threads:       oc.Threads,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, enc)
		base = enc
		model = "onnx:" + filepath.Base(oc.TextModel)
	default:
		return nil, fmt.Errorf("unknown text encoder %q", cfg.Encoder.Text)
	}

	logger.Info("Text encoder created", zap.String("provider", cfg.Encoder.Text), zap.String("model", model))
	if cache == nil {
		return base, nil
	}
	return embcache.New(base, cache, embcache.Options{
		Model:      model,
		Dimensions: dim,
		TTL:        cfg.Cache.TTL(),
		CacheTotal: metrics.EncoderCacheTotal,
	}, logger), nil
}

// buildImageEncoder returns nil when image search is disabled.
func buildImageEncoder(cfg config.Config, closers *[]io.Closer, logger *zap.Logger) (imageBackend, error) {
	if cfg.Encoder.Image != config.ProviderONNX {
		return nil, nil
	}
	oc := cfg.Encoder.ONNX
	enc, err := onnxEnc.NewImageEncoder(&onnxEnc.ImageConfig{
		LibraryPath: oc.LibraryPath,
		ModelPath:   oc.ImageModel,
		Input:       oc.ImageInput,
		Output:      oc.ImageOutput,
		ImageSize:   oc.ImageSize,
		MaxPixels:   oc.MaxPixels,
		Threads:     oc.Threads,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, enc)
	logger.Info("Image encoder created", zap.String("model", filepath.Base(oc.ImageModel)))
	return enc, nil
}

func providerLabel(cfg config.Config) string {
	if cfg.Encoder.Text != config.ProviderNone {
		return cfg.Encoder.Text
	}
	return cfg.Encoder.Image
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorCodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
