package search

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	vecsearch "github.com/viant/vec/search"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/kailas-cloud/flagsearch/internal/corpus"
	"github.com/kailas-cloud/flagsearch/internal/domain"
	domentry "github.com/kailas-cloud/flagsearch/internal/domain/entry"
)

func newStore(t *testing.T, names []string, rows [][]float32) *corpus.Store {
	t.Helper()
	entries := make([]domentry.Flag, len(names))
	for i, name := range names {
		f, err := domentry.New(name, domentry.Source{Page: name}, "", domentry.Table)
		if err != nil {
			t.Fatalf("entry.New(%q): %v", name, err)
		}
		entries[i] = f
	}
	s, err := corpus.New(entries, rows, zap.NewNop())
	if err != nil {
		t.Fatalf("corpus.New: %v", err)
	}
	return s
}

// toyRanker: Japan [1,0], Chad [0,1], Peru [-1,0].
func toyRanker(t *testing.T) (*Ranker, *corpus.Store) {
	t.Helper()
	s := newStore(t,
		[]string{"Japan", "Chad", "Peru"},
		[][]float32{{1, 0}, {0, 1}, {-1, 0}},
	)
	return NewRanker(s, zap.NewNop()), s
}

func randomStore(t *testing.T, n, dim int, seed uint64) (*corpus.Store, [][]float32) {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	names := make([]string, n)
	rows := make([][]float32, n)
	for i := range rows {
		names[i] = fmt.Sprintf("flag-%03d", i)
		rows[i] = make([]float32, dim)
		for j := range rows[i] {
			rows[i][j] = float32(rng.NormFloat64())
		}
	}
	return newStore(t, names, rows), rows
}

func TestRank_ToyScenario(t *testing.T) {
	r, _ := toyRanker(t)

	got, err := r.Rank([]float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []struct {
		name  string
		score float64
	}{
		{"Japan", 1},
		{"Chad", 0},
		{"Peru", -1},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(got))
	}
	for i, w := range want {
		f := got[i].Flag()
		if f.Name() != w.name {
			t.Errorf("rank %d: expected %s, got %s", i, w.name, f.Name())
		}
		if math.Abs(got[i].Score()-w.score) > 1e-6 {
			t.Errorf("rank %d: expected score %v, got %v", i, w.score, got[i].Score())
		}
		if f.Score() != got[i].Score() {
			t.Errorf("rank %d: flag score %v differs from result score %v", i, f.Score(), got[i].Score())
		}
	}
}

func TestRank_TopKClampedToCorpusSize(t *testing.T) {
	r, _ := toyRanker(t)

	got, err := r.Rank([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
}

func TestRank_TopKSize(t *testing.T) {
	s, _ := randomStore(t, 20, 8, 7)
	r := NewRanker(s, zap.NewNop())
	q := []float32{1, 2, 3, 4, 5, 6, 7, 8}

	for _, k := range []int{1, 5, 19, 20, 21, 100} {
		got, err := r.Rank(q, k)
		if err != nil {
			t.Fatalf("k=%d: unexpected error: %v", k, err)
		}
		if want := min(k, 20); len(got) != want {
			t.Errorf("k=%d: expected %d results, got %d", k, want, len(got))
		}
	}
}

func TestRank_DimensionMismatch(t *testing.T) {
	s, _ := randomStore(t, 4, 512, 1)
	r := NewRanker(s, zap.NewNop())

	got, err := r.Rank(make([]float32, 384), 3)
	if got != nil {
		t.Errorf("expected no partial result, got %d hits", len(got))
	}
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
	var dm *domain.DimensionMismatchError
	if !errors.As(err, &dm) {
		t.Fatalf("expected *DimensionMismatchError, got %T", err)
	}
	if dm.Got != 384 || dm.Want != 512 {
		t.Errorf("expected got=384 want=512, got %+v", dm)
	}
	if want := "query embedding dimension 384 does not match corpus dimension 512"; err.Error() != want {
		t.Errorf("expected message %q, got %q", want, err.Error())
	}
}

func TestRank_Errors(t *testing.T) {
	r, _ := toyRanker(t)
	empty := NewRanker(newStore(t, nil, nil), zap.NewNop())

	tests := []struct {
		name    string
		ranker  *Ranker
		query   []float32
		topK    int
		wantErr error
	}{
		{"empty corpus", empty, []float32{1, 0}, 3, domain.ErrEmptyCorpus},
		{"zero top_k", r, []float32{1, 0}, 0, domain.ErrInvalidTopK},
		{"negative top_k", r, []float32{1, 0}, -2, domain.ErrInvalidTopK},
		{"nan component", r, []float32{float32(math.NaN()), 0}, 1, domain.ErrInvalidQuery},
		{"inf component", r, []float32{float32(math.Inf(1)), 0}, 1, domain.ErrInvalidQuery},
		{"short query", r, []float32{1}, 1, domain.ErrVectorDimMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.ranker.Rank(tc.query, tc.topK)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if got != nil {
				t.Errorf("expected nil results, got %d", len(got))
			}
		})
	}
}

func TestRank_SelfSimilarity(t *testing.T) {
	s, rows := randomStore(t, 50, 32, 42)
	r := NewRanker(s, zap.NewNop())

	for i, row := range rows {
		got, err := r.Rank(row, 1)
		if err != nil {
			t.Fatalf("row %d: unexpected error: %v", i, err)
		}
		if got[0].Index() != i {
			t.Errorf("row %d: expected itself at rank 0, got index %d", i, got[0].Index())
		}
		if math.Abs(got[0].Score()-1) > 1e-6 {
			t.Errorf("row %d: expected score 1 ± 1e-6, got %v", i, got[0].Score())
		}
	}
}

func TestRank_ScalingInvariant(t *testing.T) {
	r, _ := toyRanker(t)

	a, err := r.Rank([]float32{0.001, 0.002}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := r.Rank([]float32{1000, 2000}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range a {
		if a[i].Index() != b[i].Index() || math.Abs(a[i].Score()-b[i].Score()) > 1e-6 {
			t.Errorf("rank %d differs: (%d, %v) vs (%d, %v)",
				i, a[i].Index(), a[i].Score(), b[i].Index(), b[i].Score())
		}
	}
}

func TestRank_ExtremeMagnitudeQuery(t *testing.T) {
	r, _ := toyRanker(t)

	for _, q := range [][]float32{
		{1e-25, 0},
		{1e25, 0},
		{math.SmallestNonzeroFloat32, 0},
		{math.MaxFloat32, 0},
	} {
		got, err := r.Rank(q, 3)
		if err != nil {
			t.Fatalf("Rank(%v): unexpected error: %v", q, err)
		}
		if got[0].Index() != 0 || math.Abs(got[0].Score()-1) > 1e-6 {
			t.Errorf("Rank(%v): expected Japan first with score 1, got index %d score %v",
				q, got[0].Index(), got[0].Score())
		}
		if got[2].Index() != 2 || math.Abs(got[2].Score()+1) > 1e-6 {
			t.Errorf("Rank(%v): expected Peru last with score -1, got index %d score %v",
				q, got[2].Index(), got[2].Score())
		}
	}
}

func TestRank_MatchesPairwiseCosine(t *testing.T) {
	s, rows := randomStore(t, 40, 24, 11)
	r := NewRanker(s, zap.NewNop())
	rng := rand.New(rand.NewPCG(5, 6))

	q := make([]float32, 24)
	for j := range q {
		q[j] = float32(rng.NormFloat64())
	}
	got, err := r.Rank(q, len(rows))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	qv := vecsearch.Float32s(q)
	for i := range got {
		row := rows[got[i].Index()]
		want := 1 - float64(qv.CosineDistance(row))
		if math.Abs(got[i].Score()-want) > 1e-4 {
			t.Errorf("row %d: score %v, pairwise cosine %v", got[i].Index(), got[i].Score(), want)
		}
	}
}

// matrixCorpus serves a fixed matrix without the store's load checks.
type matrixCorpus struct {
	m mat.Matrix
}

func (c matrixCorpus) Size() int {
	rows, _ := c.m.Dims()
	return rows
}

func (c matrixCorpus) Dim() int {
	_, dim := c.m.Dims()
	return dim
}

func (c matrixCorpus) Matrix() mat.Matrix { return c.m }

func (c matrixCorpus) EntryAt(i int) (domentry.Flag, error) {
	return domentry.Reconstruct(fmt.Sprintf("flag-%d", i), domentry.Source{}, "", domentry.Table, 0), nil
}

func TestRank_NonFiniteRowIsError(t *testing.T) {
	c := matrixCorpus{m: mat.NewDense(3, 2, []float64{0, 1, math.NaN(), 0, 1, 0})}
	r := NewRanker(c, zap.NewNop())

	got, err := r.Rank([]float32{1, 0}, 3)
	if !errors.Is(err, domain.ErrCorpusIntegrity) {
		t.Fatalf("expected ErrCorpusIntegrity, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil results, got %d", len(got))
	}
}

func TestRank_BoundsAndOrder(t *testing.T) {
	s, _ := randomStore(t, 200, 16, 3)
	r := NewRanker(s, zap.NewNop())
	rng := rand.New(rand.NewPCG(9, 10))

	for trial := 0; trial < 20; trial++ {
		q := make([]float32, 16)
		for j := range q {
			q[j] = float32(rng.NormFloat64())
		}
		got, err := r.Rank(q, 200)
		if err != nil {
			t.Fatalf("trial %d: unexpected error: %v", trial, err)
		}
		for i := range got {
			if sc := got[i].Score(); sc < -1 || sc > 1 {
				t.Errorf("trial %d rank %d: score %v out of [-1, 1]", trial, i, sc)
			}
			if i > 0 && got[i].Score() > got[i-1].Score() {
				t.Errorf("trial %d: score increases at rank %d: %v > %v",
					trial, i, got[i].Score(), got[i-1].Score())
			}
		}
	}
}

func TestRank_TieBreakKeepsCorpusOrder(t *testing.T) {
	s := newStore(t,
		[]string{"Tie-A", "Other", "Tie-B", "Tie-C"},
		[][]float32{{0, 1}, {1, 0}, {0, 2}, {0, 0.5}},
	)
	r := NewRanker(s, zap.NewNop())

	for run := 0; run < 5; run++ {
		got, err := r.Rank([]float32{0, 1}, 4)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		wantIdx := []int{0, 2, 3, 1}
		for i, w := range wantIdx {
			if got[i].Index() != w {
				t.Fatalf("run %d rank %d: expected index %d, got %d", run, i, w, got[i].Index())
			}
		}
	}
}

func TestRank_ZeroQueryScoresZero(t *testing.T) {
	r, _ := toyRanker(t)

	got, err := r.Rank([]float32{0, 0}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range got {
		if got[i].Score() != 0 {
			t.Errorf("rank %d: expected score 0, got %v", i, got[i].Score())
		}
		if got[i].Index() != i {
			t.Errorf("rank %d: expected corpus order on all-zero scores, got index %d", i, got[i].Index())
		}
	}
}

func TestRank_ZeroRowScoresZero(t *testing.T) {
	s := newStore(t,
		[]string{"Blank", "Japan"},
		[][]float32{{0, 0}, {1, 0}},
	)
	r := NewRanker(s, zap.NewNop())

	got, err := r.Rank([]float32{-1, 0}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Index() != 0 || got[0].Score() != 0 {
		t.Errorf("expected zero row first with score 0, got index %d score %v", got[0].Index(), got[0].Score())
	}
	if got[1].Index() != 1 || math.Abs(got[1].Score()+1) > 1e-6 {
		t.Errorf("expected Japan last with score -1, got index %d score %v", got[1].Index(), got[1].Score())
	}
}

func TestRank_DoesNotMutateCorpus(t *testing.T) {
	r, s := toyRanker(t)

	got, err := r.Rank([]float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc := got[0].Score(); sc == 0 {
		t.Fatalf("expected a non-zero top score, got %v", sc)
	}

	for i := 0; i < s.Size(); i++ {
		f, err := s.EntryAt(i)
		if err != nil {
			t.Fatalf("EntryAt(%d): %v", i, err)
		}
		if f.Score() != 0 {
			t.Errorf("stored entry %d score mutated to %v", i, f.Score())
		}
	}
}

func TestRank_DoesNotMutateQuery(t *testing.T) {
	r, _ := toyRanker(t)
	q := []float32{3, 4}

	if _, err := r.Rank(q, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q[0] != 3 || q[1] != 4 {
		t.Errorf("query mutated: %v", q)
	}
}

func TestRank_Concurrent(t *testing.T) {
	s, rows := randomStore(t, 64, 16, 11)
	r := NewRanker(s, zap.NewNop())

	var wg sync.WaitGroup
	errs := make(chan error, len(rows))
	for i, row := range rows {
		wg.Add(1)
		go func(i int, row []float32) {
			defer wg.Done()
			got, err := r.Rank(row, 3)
			if err != nil {
				errs <- err
				return
			}
			if got[0].Index() != i {
				errs <- fmt.Errorf("row %d: expected itself at rank 0, got %d", i, got[0].Index())
			}
		}(i, row)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestClampUnit(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.0000001, 1},
		{-1.0000001, -1},
		{0.5, 0.5},
		{-1, -1},
	}
	for _, tc := range tests {
		if got := clampUnit(tc.in); got != tc.want {
			t.Errorf("clampUnit(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
