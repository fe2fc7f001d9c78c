package encoding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/flagsearch/internal/domain"
	"github.com/kailas-cloud/flagsearch/internal/logger"
)

// Instrumented wraps text and image encoders with a per-call deadline and logging.
// Transport metrics (requests, duration, tokens) are recorded by the encoders themselves.
type Instrumented struct {
	text     domain.TextEncoder
	image    domain.ImageEncoder
	provider string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewInstrumented wraps the given encoders. Either may be nil; timeout <= 0 disables the deadline.
func NewInstrumented(
	text domain.TextEncoder, image domain.ImageEncoder,
	provider string, timeout time.Duration, logger *zap.Logger,
) *Instrumented {
	return &Instrumented{
		text:     text,
		image:    image,
		provider: provider,
		timeout:  timeout,
		logger:   logger,
	}
}

// Text returns the wrapped text encoder, or nil if none is configured.
func (p *Instrumented) Text() domain.TextEncoder {
	if p.text == nil {
		return nil
	}
	return textFunc(p.EncodeText)
}

// Image returns the wrapped image encoder, or nil if none is configured.
func (p *Instrumented) Image() domain.ImageEncoder {
	if p.image == nil {
		return nil
	}
	return imageFunc(p.EncodeImage)
}

// EncodeText delegates to the text encoder under the configured deadline.
func (p *Instrumented) EncodeText(ctx context.Context, text string) (domain.EncodingResult, error) {
	if p.text == nil {
		return domain.EncodingResult{}, fmt.Errorf("%w: text", domain.ErrEncoderUnavailable)
	}
	return p.call(ctx, "text", zap.Int("chars", len(text)), func(ctx context.Context) (domain.EncodingResult, error) {
		return p.text.EncodeText(ctx, text)
	})
}

// EncodeImage delegates to the image encoder under the configured deadline.
func (p *Instrumented) EncodeImage(ctx context.Context, data []byte) (domain.EncodingResult, error) {
	if p.image == nil {
		return domain.EncodingResult{}, fmt.Errorf("%w: image", domain.ErrEncoderUnavailable)
	}
	return p.call(ctx, "image", zap.Int("bytes", len(data)), func(ctx context.Context) (domain.EncodingResult, error) {
		return p.image.EncodeImage(ctx, data)
	})
}

func (p *Instrumented) call(
	ctx context.Context, modality string, size zap.Field,
	fn func(context.Context) (domain.EncodingResult, error),
) (domain.EncodingResult, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	log := logger.FromContextOr(ctx, p.logger)

	start := time.Now()
	result, err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		log.Error("Encoding request failed",
			zap.String("provider", p.provider),
			zap.String("modality", modality),
			size,
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EncodingResult{}, fmt.Errorf("encode %s: %w", modality, err)
	}

	log.Debug("Encoding request completed",
		zap.String("provider", p.provider),
		zap.String("modality", modality),
		size,
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

type textFunc func(context.Context, string) (domain.EncodingResult, error)

func (f textFunc) EncodeText(ctx context.Context, text string) (domain.EncodingResult, error) {
	return f(ctx, text)
}

type imageFunc func(context.Context, []byte) (domain.EncodingResult, error)

func (f imageFunc) EncodeImage(ctx context.Context, data []byte) (domain.EncodingResult, error) {
	return f(ctx, data)
}
