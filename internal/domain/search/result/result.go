package result

import domentry "github.com/kailas-cloud/flagsearch/internal/domain/entry"

// Result is a single ranked hit. It owns a copy of the corpus flag.
type Result struct {
	flag  domentry.Flag
	index int
	score float64
}

// New creates a ranked hit; the flag copy carries the same score.
func New(f domentry.Flag, index int, score float64) Result {
	return Result{flag: f.WithScore(score), index: index, score: score}
}

// Flag returns the flag copy with its score set.
func (r *Result) Flag() domentry.Flag { return r.flag }

// Index returns the corpus row the hit came from.
func (r *Result) Index() int { return r.index }

// Score returns the cosine similarity in [-1, 1].
func (r *Result) Score() float64 { return r.score }
