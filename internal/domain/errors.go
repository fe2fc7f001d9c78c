package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCorpusLoad signals a missing, unreadable or malformed corpus descriptor or embeddings file.
	ErrCorpusLoad = errors.New("corpus load failed")
	// ErrCorpusIntegrity signals a corpus whose entries and embeddings disagree.
	ErrCorpusIntegrity = errors.New("corpus integrity violation")
	// ErrValidation signals an entry that fails field validation.
	ErrValidation = errors.New("validation failed")
	// ErrIndexOutOfRange signals a corpus row index outside [0, size).
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmptyCorpus signals a ranking request against a corpus with no entries.
	ErrEmptyCorpus = errors.New("corpus is empty")
	// ErrInvalidTopK signals a non-positive top_k.
	ErrInvalidTopK = errors.New("top_k must be a positive integer")
	// ErrInvalidQuery signals an empty or unusable query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrEncoderUnavailable signals that no encoder is configured for the query kind.
	ErrEncoderUnavailable = errors.New("encoder unavailable")
	// ErrEncoderFailure signals an encoder backend failure.
	ErrEncoderFailure = errors.New("encoder error")
)

// DimensionMismatchError wraps ErrVectorDimMismatch with both dimensions.
type DimensionMismatchError struct {
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("query embedding dimension %d does not match corpus dimension %d", e.Got, e.Want)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrVectorDimMismatch }

// NewDimensionMismatch creates a dimension mismatch error.
func NewDimensionMismatch(got, want int) error {
	return &DimensionMismatchError{Got: got, Want: want}
}

// IntegrityError wraps ErrCorpusIntegrity with the reason the corpus was rejected.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return ErrCorpusIntegrity.Error() + ": " + e.Reason
}

func (e *IntegrityError) Unwrap() error { return ErrCorpusIntegrity }

// NewRowCountMismatch reports embeddings whose row count differs from the entry count.
func NewRowCountMismatch(entries, rows int) error {
	return &IntegrityError{Reason: fmt.Sprintf("%d entries but %d embedding rows", entries, rows)}
}

// NewDuplicateName reports a flag name that appears more than once.
func NewDuplicateName(name string, first, second int) error {
	return &IntegrityError{Reason: fmt.Sprintf("duplicate flag name %q at indices %d and %d", name, first, second)}
}
