package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates the service cannot answer searches.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckEmpty indicates a loaded but empty corpus.
	CheckEmpty CheckResult = "empty"
)

// Component names used as keys in Report.Checks.
const (
	ComponentCorpus       = "corpus"
	ComponentTextEncoder  = "text_encoder"
	ComponentImageEncoder = "image_encoder"
	ComponentCache        = "cache"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	corpus CorpusInfo
	text   Checker
	image  Checker
	cache  Pinger
}

// New creates a Service. text, image and cache can be nil when not configured.
func New(corpus CorpusInfo, text, image Checker, cache Pinger) *Service {
	return &Service{corpus: corpus, text: text, image: image, cache: cache}
}

// Check runs health checks against all configured components.
// An empty corpus makes the service unhealthy; other failures degrade it.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	corpusOK := s.corpus != nil && s.corpus.Size() > 0
	if corpusOK {
		checks[ComponentCorpus] = CheckOK
	} else {
		checks[ComponentCorpus] = CheckEmpty
	}

	check := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			checks[name] = CheckError
		} else {
			checks[name] = CheckOK
		}
	}
	if s.text != nil {
		check(ComponentTextEncoder, s.text.HealthCheck)
	}
	if s.image != nil {
		check(ComponentImageEncoder, s.image.HealthCheck)
	}
	if s.cache != nil {
		check(ComponentCache, s.cache.Ping)
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if !corpusOK {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}
