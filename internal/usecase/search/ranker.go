package search

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kailas-cloud/flagsearch/internal/domain"
	"github.com/kailas-cloud/flagsearch/internal/domain/search/result"
)

// Ranker scores a query embedding against every corpus row by cosine similarity.
// It holds no per-call state and is safe for concurrent use.
type Ranker struct {
	corpus Corpus
	logger *zap.Logger
}

// NewRanker creates a ranker over a loaded corpus.
func NewRanker(corpus Corpus, logger *zap.Logger) *Ranker {
	return &Ranker{corpus: corpus, logger: logger}
}

// Rank returns up to topK hits ordered by descending score. Equal scores keep corpus order.
// topK larger than the corpus is clamped.
func (r *Ranker) Rank(query []float32, topK int) ([]result.Result, error) {
	n := r.corpus.Size()
	if n == 0 {
		return nil, domain.ErrEmptyCorpus
	}
	if dim := r.corpus.Dim(); len(query) != dim {
		return nil, domain.NewDimensionMismatch(len(query), dim)
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidTopK, topK)
	}
	topK = min(topK, n)

	scores, err := r.similarities(query)
	if err != nil {
		return nil, err
	}
	order := rankOrder(scores)

	results := make([]result.Result, topK)
	for i := 0; i < topK; i++ {
		idx := order[i]
		f, err := r.corpus.EntryAt(idx)
		if err != nil {
			return nil, fmt.Errorf("corpus entry %d: %w", idx, err)
		}
		results[i] = result.New(f, idx, scores[idx])
	}
	return results, nil
}

// similarities computes cos(query, row) for all rows with one matrix-vector product.
// A zero-norm query has no direction: every score is 0.
func (r *Ranker) similarities(query []float32) ([]float64, error) {
	scores := make([]float64, r.corpus.Size())

	// float64 before the norm: squared float32 components under- or overflow at extreme magnitudes.
	q := make([]float64, len(query))
	for i, v := range query {
		x := float64(v)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: non-finite component at %d", domain.ErrInvalidQuery, i)
		}
		q[i] = x
	}

	norm := floats.Norm(q, 2)
	if norm == 0 {
		r.logger.Warn("Zero-norm query embedding; all similarities are 0",
			zap.Int("dimensions", len(query)))
		return scores, nil
	}
	floats.Scale(1/norm, q)

	var sims mat.VecDense
	sims.MulVec(r.corpus.Matrix(), mat.NewVecDense(len(q), q))
	for i := range scores {
		v := sims.AtVec(i)
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: row %d has a non-finite similarity", domain.ErrCorpusIntegrity, i)
		}
		scores[i] = clampUnit(v)
	}
	return scores, nil
}

// rankOrder returns row indices sorted by descending score, stable on ties.
func rankOrder(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order
}

// clampUnit absorbs rounding that pushes a cosine just outside [-1, 1].
func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
