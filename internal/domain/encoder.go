package domain

import "context"

// TextEncoder maps a text description into the shared embedding space.
type TextEncoder interface {
	EncodeText(ctx context.Context, text string) (EncodingResult, error)
}

// ImageEncoder maps raw image bytes (PNG, JPEG, ...) into the shared embedding space.
type ImageEncoder interface {
	EncodeImage(ctx context.Context, data []byte) (EncodingResult, error)
}

// HealthChecker verifies encoder backend availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EncodingResult carries the embedding and token usage through the decorator chain.
// TotalTokens is zero for image encodings and cache hits.
type EncodingResult struct {
	Embedding   []float32
	TotalTokens int
}
