package search

import (
	"gonum.org/v1/gonum/mat"

	domentry "github.com/kailas-cloud/flagsearch/internal/domain/entry"
)

// Corpus is the read-only view of the reference corpus the ranker scans.
// Matrix rows are L2-normalised and aligned with EntryAt indices.
type Corpus interface {
	Size() int
	Dim() int
	Matrix() mat.Matrix
	EntryAt(i int) (domentry.Flag, error)
}
