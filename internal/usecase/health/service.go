package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/domain"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component is failing; stored data is still reachable.
	Degraded Status = "degraded"
	// Unhealthy indicates the vector index is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckExhausted indicates a spent token budget.
	CheckExhausted CheckResult = "exhausted"
)

// Component names used as Report.Checks keys.
const (
	ComponentIndex     = "vector_index"
	ComponentEmbedding = "embedding"
	ComponentBudget    = "embedding_budget"
)

// DefaultCheckTimeout bounds each component probe.
const DefaultCheckTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status   Status                 `json:"status"`
	Checks   map[string]CheckResult `json:"checks"`
	Duration time.Duration          `json:"-"`
}

// Service coordinates health checks.
type Service struct {
	index     IndexPinger
	embedding EmbeddingChecker
	budget    BudgetReader
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a Service. embedding and budget can be nil.
func New(index IndexPinger, embedding EmbeddingChecker, budget BudgetReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		index:     index,
		embedding: embedding,
		budget:    budget,
		timeout:   DefaultCheckTimeout,
		logger:    logger,
	}
}

// Check probes the components concurrently, each under its own timeout.
func (s *Service) Check(ctx context.Context) Report {
	start := time.Now()
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult)
	)
	probe := func(name string, fn func(context.Context) error) {
		defer wg.Done()
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		res := CheckOK
		if err := fn(pctx); err != nil {
			s.logger.Warn("Health check failed", zap.String("component", name), zap.Error(err))
			res = CheckError
		}
		mu.Lock()
		checks[name] = res
		mu.Unlock()
	}

	wg.Add(1)
	go probe(ComponentIndex, s.index.Ping)
	if s.embedding != nil {
		wg.Add(1)
		go probe(ComponentEmbedding, s.embedding.HealthCheck)
	}
	wg.Wait()

	if s.budget != nil {
		checks[ComponentBudget] = CheckOK
		for _, w := range []domain.BudgetWindow{domain.BudgetDaily, domain.BudgetMonthly} {
			if s.budget.Remaining(w) == 0 {
				checks[ComponentBudget] = CheckExhausted
			}
		}
	}

	status := Healthy
	for name, v := range checks {
		if v == CheckOK {
			continue
		}
		if name == ComponentIndex {
			status = Unhealthy
			break
		}
		status = Degraded
	}

	return Report{Status: status, Checks: checks, Duration: time.Since(start)}
}
