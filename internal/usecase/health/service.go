package health

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	Healthy  Status = "ok"
	Degraded Status = "degraded"
)

// CheckResult is the outcome of one probe.
type CheckResult string

const (
	CheckOK      CheckResult = "ok"
	CheckError   CheckResult = "error"
	CheckSkipped CheckResult = "skipped"
)

// Report is what /health renders.
type Report struct {
	Status    Status                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Prewarmed bool                   `json:"prewarmed"`
}

// Failed lists the probes that errored, sorted.
func (r Report) Failed() []string {
	var out []string
	for _, name := range slices.Sorted(maps.Keys(r.Checks)) {
		if r.Checks[name] == CheckError {
			out = append(out, name)
		}
	}
	return out
}

const defaultProbeTimeout = 2 * time.Second

type probe struct {
	name string
	fn   func(context.Context) error
}

// Service runs the component probes.
type Service struct {
	probes    []probe
	prewarmed func() bool
	timeout   time.Duration
}

// Option tunes a Service.
type Option func(*Service)

// WithProbeTimeout bounds each probe; zero or negative disables the bound.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// New creates a Service. embedding and prewarmed can be nil.
func New(store StorePinger, embedding EmbeddingChecker, prewarmed func() bool, opts ...Option) *Service {
	s := &Service{prewarmed: prewarmed, timeout: defaultProbeTimeout}
	s.probes = append(s.probes, probe{"store", store.Ping})
	if embedding != nil {
		s.probes = append(s.probes, probe{"embedding", embedding.HealthCheck})
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Check runs every probe concurrently and folds the results into a Report.
// Any errored probe degrades the status; skipped probes do not.
func (s *Service) Check(ctx context.Context) Report {
	results := make([]CheckResult, len(s.probes))
	var wg sync.WaitGroup
	for i, p := range s.probes {
		wg.Go(func() { results[i] = s.run(ctx, p) })
	}
	wg.Wait()

	r := Report{Status: Healthy, Checks: make(map[string]CheckResult, len(s.probes))}
	for i, p := range s.probes {
		r.Checks[p.name] = results[i]
		if results[i] == CheckError {
			r.Status = Degraded
		}
	}
	if s.prewarmed != nil {
		r.Prewarmed = s.prewarmed()
	}
	return r
}

func (s *Service) run(ctx context.Context, p probe) CheckResult {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	err := p.fn(ctx)
	switch {
	case err == nil:
		return CheckOK
	case errors.Is(err, ErrNotChecked):
		return CheckSkipped
	default:
		return CheckError
	}
}
