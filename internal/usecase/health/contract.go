package health

import "context"

// Pinger checks cache availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker checks encoder backend availability.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CorpusInfo reports the loaded corpus shape.
type CorpusInfo interface {
	Size() int
	Dim() int
}
