package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/flagsearch/internal/domain"
	"github.com/kailas-cloud/flagsearch/internal/metrics"
)

const modality = "text"

// Encoder is a text encoder backed by an OpenAI-compatible /embeddings endpoint
// serving the same CLIP text tower the corpus was built with.
type Encoder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	user       string
	provider   string
	logger     *zap.Logger
}

// Config holds the remote encoder settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	User       string
	Provider   string
	Logger     *zap.Logger
}

// NewEncoder creates an OpenAI-compatible text encoder.
func NewEncoder(cfg *Config) *Encoder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Encoder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		provider:   provider,
		logger:     log,
	}
}

// Model returns the configured model identifier.
func (e *Encoder) Model() string { return string(e.model) }

// EncodeText implements domain.TextEncoder.
func (e *Encoder) EncodeText(ctx context.Context, text string) (domain.EncodingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		e.fail("api_error")
		return domain.EncodingResult{}, parseAPIError(err)
	}
	if len(resp.Data) == 0 {
		e.fail("empty_response")
		return domain.EncodingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEncoderFailure)
	}
	vec := resp.Data[0].Embedding
	if e.dimensions > 0 && len(vec) != e.dimensions {
		e.fail("dimension_mismatch")
		return domain.EncodingResult{}, fmt.Errorf("model %s returned %d dimensions, configured %d: %w",
			e.model, len(vec), e.dimensions, domain.ErrEncoderFailure)
	}

	metrics.EncoderRequestsTotal.WithLabelValues(e.provider, modality, "success").Inc()
	metrics.EncoderRequestDuration.WithLabelValues(e.provider, modality).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.EncoderTokensTotal.WithLabelValues(e.provider, string(e.model)).Add(float64(resp.Usage.TotalTokens))
	}

	e.logger.Debug("Text encoded",
		zap.String("provider", e.provider),
		zap.String("model", string(e.model)),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(vec)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return domain.EncodingResult{Embedding: vec, TotalTokens: resp.Usage.TotalTokens}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Encoder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (e *Encoder) fail(errorType string) {
	metrics.EncoderRequestsTotal.WithLabelValues(e.provider, modality, "error").Inc()
	metrics.EncoderErrorsTotal.WithLabelValues(e.provider, modality, errorType).Inc()
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrEncoderFailure for 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrEncoderFailure

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("encoder API error %d: %s: %w", reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("encoder API error %d: %s: %w", reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("encoder API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("encoder request aborted: %w: %w", wrap, err)
	}
	return fmt.Errorf("encoder request failed: %w", wrap)
}

// extractDetail pulls the "detail" field out of a JSON error body (FastAPI-style servers).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
