package flagsearch

import "github.com/kailas-cloud/flagsearch/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrCorpusLoad         = domain.ErrCorpusLoad
	ErrCorpusIntegrity    = domain.ErrCorpusIntegrity
	ErrIndexOutOfRange    = domain.ErrIndexOutOfRange
	ErrVectorDimMismatch  = domain.ErrVectorDimMismatch
	ErrEmptyCorpus        = domain.ErrEmptyCorpus
	ErrInvalidTopK        = domain.ErrInvalidTopK
	ErrInvalidQuery       = domain.ErrInvalidQuery
	ErrEncoderUnavailable = domain.ErrEncoderUnavailable
	ErrEncoderFailure     = domain.ErrEncoderFailure
)
