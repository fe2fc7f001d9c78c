package flagsearch

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/flagsearch/internal/domain"
)

// TextEncoder maps a text description into the corpus embedding space.
type TextEncoder interface {
	EncodeText(ctx context.Context, text string) ([]float32, error)
}

// ImageEncoder maps encoded image bytes (PNG, JPEG, ...) into the corpus embedding space.
type ImageEncoder interface {
	EncodeImage(ctx context.Context, data []byte) ([]float32, error)
}

// textAdapter wraps a public TextEncoder to satisfy domain.TextEncoder.
type textAdapter struct {
	inner TextEncoder
}

func (a *textAdapter) EncodeText(ctx context.Context, text string) (domain.EncodingResult, error) {
	vec, err := a.inner.EncodeText(ctx, text)
	if err != nil {
		return domain.EncodingResult{}, fmt.Errorf("encode text: %w", err)
	}
	return domain.EncodingResult{Embedding: vec}, nil
}

// HealthCheck delegates when the wrapped encoder can check itself.
func (a *textAdapter) HealthCheck(ctx context.Context) error {
	if hc, ok := a.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// imageAdapter wraps a public ImageEncoder to satisfy domain.ImageEncoder.
type imageAdapter struct {
	inner ImageEncoder
}

func (a *imageAdapter) EncodeImage(ctx context.Context, data []byte) (domain.EncodingResult, error) {
	vec, err := a.inner.EncodeImage(ctx, data)
	if err != nil {
		return domain.EncodingResult{}, fmt.Errorf("encode image: %w", err)
	}
	return domain.EncodingResult{Embedding: vec}, nil
}

// HealthCheck delegates when the wrapped encoder can check itself.
func (a *imageAdapter) HealthCheck(ctx context.Context) error {
	if hc, ok := a.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
