package index

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/flagsearch/internal/domain"
	dombatch "github.com/kailas-cloud/flagsearch/internal/domain/batch"
	domentry "github.com/kailas-cloud/flagsearch/internal/domain/entry"
)

// DefaultWorkers is the number of images decoded and encoded concurrently.
const DefaultWorkers = 4

// Output is an aligned corpus: Embeddings[i] belongs to Entries[i].
type Output struct {
	Entries    []domentry.Flag
	Embeddings [][]float32
}

// Service builds a corpus by encoding each flag's reference image.
type Service struct {
	encoder domain.ImageEncoder
	images  ImageSource
	workers int
	logger  *zap.Logger
}

// New creates an index builder.
func New(encoder domain.ImageEncoder, images ImageSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{encoder: encoder, images: images, workers: DefaultWorkers, logger: logger}
}

// WithWorkers configures the encoding concurrency.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// Build encodes every entry. A flag whose image cannot be read or encoded is skipped
// together with its row, so the output always satisfies the corpus alignment check.
// Input order is preserved. Only context cancellation fails the whole build.
func (s *Service) Build(ctx context.Context, entries []domentry.Flag) (Output, []dombatch.Result, error) {
	vecs := make([][]float32, len(entries))
	errs := make([]error, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vecs[i], errs[i] = s.encode(gctx, &entries[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Output{}, nil, fmt.Errorf("build corpus: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Output{}, nil, fmt.Errorf("build corpus: %w", err)
	}

	out := Output{
		Entries:    make([]domentry.Flag, 0, len(entries)),
		Embeddings: make([][]float32, 0, len(entries)),
	}
	results := make([]dombatch.Result, len(entries))
	seen := make(map[string]int, len(entries))
	dim := 0

	for i := range entries {
		name := entries[i].Name()
		err := errs[i]
		if err == nil {
			err = checkRow(name, i, vecs[i], dim, seen)
		}
		if err != nil {
			s.logger.Warn("Skipping flag",
				zap.Int("index", i),
				zap.String("name", name),
				zap.String("image", entries[i].LocalImage()),
				zap.Error(err),
			)
			results[i] = dombatch.NewSkipped(name, err)
			continue
		}

		if dim == 0 {
			dim = len(vecs[i])
		}
		seen[name] = i
		results[i] = dombatch.NewOK(name, len(out.Entries))
		out.Entries = append(out.Entries, entries[i])
		out.Embeddings = append(out.Embeddings, vecs[i])
	}

	ok, skipped := dombatch.Count(results)
	s.logger.Info("Corpus built",
		zap.Int("flags", ok),
		zap.Int("skipped", skipped),
		zap.Int("dimensions", dim),
	)
	return out, results, nil
}

func (s *Service) encode(ctx context.Context, f *domentry.Flag) ([]float32, error) {
	path := f.LocalImage()
	if path == "" {
		return nil, fmt.Errorf("%w: flag has no local image", domain.ErrValidation)
	}
	data, err := s.images.ReadImage(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	res, err := s.encoder.EncodeImage(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("encode image %s: %w", path, err)
	}
	return res.Embedding, nil
}

// checkRow rejects rows that would break the written corpus.
func checkRow(name string, i int, vec []float32, dim int, seen map[string]int) error {
	if first, dup := seen[name]; dup {
		return domain.NewDuplicateName(name, first, i)
	}
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty embedding", domain.ErrEncoderFailure)
	}
	for j, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: non-finite embedding component %d", domain.ErrEncoderFailure, j)
		}
	}
	if dim != 0 && len(vec) != dim {
		return domain.NewDimensionMismatch(len(vec), dim)
	}
	return nil
}
