package flagsearch

import (
	"context"

	healthuc "github.com/kailas-cloud/flagsearch/internal/usecase/health"
)

// Component names reported in HealthStatus.Checks.
const (
	ComponentCorpus       = healthuc.ComponentCorpus
	ComponentTextEncoder  = healthuc.ComponentTextEncoder
	ComponentImageEncoder = healthuc.ComponentImageEncoder
	ComponentCache        = healthuc.ComponentCache
)

// HealthStatus is the aggregated health of the corpus, encoders and cache.
// Components that were not configured are absent from Checks.
type HealthStatus struct {
	Status     string            // "ok", "degraded", "error"
	Checks     map[string]string // component -> "ok", "empty" or "error"
	CorpusSize int
}

// OK reports whether every configured component passed.
func (h HealthStatus) OK() bool {
	return h.Status == string(healthuc.Healthy)
}

// Health checks the corpus and every configured encoder and cache.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for component, res := range report.Checks {
		checks[component] = string(res)
	}
	return HealthStatus{
		Status:     string(report.Status),
		Checks:     checks,
		CorpusSize: c.corpus.Size(),
	}
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}
