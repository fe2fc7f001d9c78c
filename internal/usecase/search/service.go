package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/flagsearch/internal/domain"
	"github.com/kailas-cloud/flagsearch/internal/domain/search/query"
	"github.com/kailas-cloud/flagsearch/internal/domain/search/result"
	"github.com/kailas-cloud/flagsearch/internal/logger"
	"github.com/kailas-cloud/flagsearch/internal/metrics"
)

// VectorRanker ranks a query embedding against the corpus.
type VectorRanker interface {
	Rank(query []float32, topK int) ([]result.Result, error)
}

// Service resolves a query through the matching encoder and ranks the corpus.
type Service struct {
	ranker VectorRanker
	text   domain.TextEncoder
	image  domain.ImageEncoder
}

// New creates a search service. text and image can be nil when the modality is not configured.
func New(ranker VectorRanker, text domain.TextEncoder, image domain.ImageEncoder) *Service {
	return &Service{ranker: ranker, text: text, image: image}
}

// Search encodes q and returns the topK most similar flags.
func (s *Service) Search(ctx context.Context, q query.Query, topK int) ([]result.Result, error) {
	start := time.Now()
	kind := string(q.Kind())
	if kind == "" {
		kind = "unknown"
	}

	results, err := s.search(ctx, q, topK)
	observe(kind, start, results, err)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Debug("Search completed",
		zap.String("kind", kind),
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}

// SearchVector ranks a caller-supplied embedding, skipping the encoders.
func (s *Service) SearchVector(_ context.Context, vec []float32, topK int) ([]result.Result, error) {
	start := time.Now()
	results, err := s.rank(vec, topK)
	observe("vector", start, results, err)
	return results, err
}

// Capabilities reports which query modalities have an encoder.
func (s *Service) Capabilities() (text, image bool) {
	return s.text != nil, s.image != nil
}

func (s *Service) search(ctx context.Context, q query.Query, topK int) ([]result.Result, error) {
	if q.IsEmpty() {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidQuery)
	}

	vec, err := s.encode(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.rank(vec, topK)
}

func (s *Service) encode(ctx context.Context, q query.Query) ([]float32, error) {
	var (
		res domain.EncodingResult
		err error
	)
	switch q.Kind() {
	case query.KindText:
		if s.text == nil {
			return nil, fmt.Errorf("%w: text", domain.ErrEncoderUnavailable)
		}
		res, err = s.text.EncodeText(ctx, q.Text())
	case query.KindImage:
		if s.image == nil {
			return nil, fmt.Errorf("%w: image", domain.ErrEncoderUnavailable)
		}
		res, err = s.image.EncodeImage(ctx, q.Image())
	default:
		return nil, fmt.Errorf("%w: unknown query kind", domain.ErrInvalidQuery)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuery) || errors.Is(err, domain.ErrEncoderFailure) {
			return nil, fmt.Errorf("encode %s query: %w", q.Kind(), err)
		}
		return nil, fmt.Errorf("%w: encode %s query: %w", domain.ErrEncoderFailure, q.Kind(), err)
	}
	return res.Embedding, nil
}

func (s *Service) rank(vec []float32, topK int) ([]result.Result, error) {
	results, err := s.ranker.Rank(vec, topK)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}
	return results, nil
}

func observe(kind string, start time.Time, results []result.Result, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SearchRequestsTotal.WithLabelValues(kind, status).Inc()
	metrics.SearchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.SearchResults.Observe(float64(len(results)))
	}
}
