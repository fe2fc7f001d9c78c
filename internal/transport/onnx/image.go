package onnx

import (
	"context"
	"fmt"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/flagsearch/internal/domain"
	"github.com/kailas-cloud/flagsearch/internal/imageproc"
)

// ImageConfig configures the local CLIP image encoder.
type ImageConfig struct {
	LibraryPath string
	ModelPath   string
	Input       string // default: pixel_values
	Output      string // default: image_embeds
	ImageSize   int    // default: 224
	MaxPixels   int
	Threads     int
	Logger      *zap.Logger
}

// ImageEncoder preprocesses uploads and runs the CLIP vision tower.
type ImageEncoder struct {
	sess   *session
	pre    *imageproc.Preprocessor
	logger *zap.Logger
}

// NewImageEncoder loads the image model.
func NewImageEncoder(cfg *ImageConfig) (*ImageEncoder, error) {
	input := cfg.Input
	if input == "" {
		input = "pixel_values"
	}
	output := cfg.Output
	if output == "" {
		output = "image_embeds"
	}
	size := cfg.ImageSize
	if size <= 0 {
		size = domain.DefaultEncoderConfig().ImageSize
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if err := requireFile("image model", cfg.ModelPath); err != nil {
		return nil, err
	}
	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}
	sess, err := newSession(cfg.ModelPath, []string{input}, []string{output}, cfg.Threads)
	if err != nil {
		return nil, err
	}

	pre := imageproc.New(size)
	if cfg.MaxPixels > 0 {
		pre = pre.WithMaxPixels(cfg.MaxPixels)
	}

	log.Info("ONNX image encoder loaded",
		zap.String("model", cfg.ModelPath),
		zap.String("input", input),
		zap.String("output", output),
		zap.Int("image_size", size),
	)
	return &ImageEncoder{sess: sess, pre: pre, logger: log}, nil
}

// EncodeImage implements domain.ImageEncoder. Undecodable input is domain.ErrInvalidQuery.
func (e *ImageEncoder) EncodeImage(ctx context.Context, data []byte) (domain.EncodingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EncodingResult{}, fmt.Errorf("encode image: %w", err)
	}
	start := time.Now()

	pixels, err := e.pre.Tensor(data)
	if err != nil {
		fail("image", "decode")
		return domain.EncodingResult{}, err
	}

	t, err := ort.NewTensor(ort.NewShape(e.pre.Shape()...), pixels)
	if err != nil {
		fail("image", "tensor")
		return domain.EncodingResult{}, fmt.Errorf("%w: pixel tensor: %w", domain.ErrEncoderFailure, err)
	}
	defer func() { _ = t.Destroy() }()

	shape, out, err := e.sess.run([]ort.Value{t})
	if err != nil {
		fail("image", "inference")
		return domain.EncodingResult{}, err
	}
	vec, err := pooledEmbedding(shape, out, 0)
	if err != nil {
		fail("image", "output_shape")
		return domain.EncodingResult{}, err
	}

	succeed("image", start)
	e.logger.Debug("Image encoded",
		zap.String("provider", provider),
		zap.Int("bytes", len(data)),
		zap.Int("dimensions", len(vec)),
		zap.Duration("duration", time.Since(start)),
	)
	return domain.EncodingResult{Embedding: vec}, nil
}

// HealthCheck reports whether the model session is still open.
func (e *ImageEncoder) HealthCheck(_ context.Context) error {
	return e.sess.alive()
}

// Close releases the model session.
func (e *ImageEncoder) Close() error {
	return e.sess.close()
}
