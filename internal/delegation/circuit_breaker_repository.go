package delegation

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"edihub/internal/config"
	"edihub/internal/outbox"
	"edihub/pkg/circuitbreaker"
)

// CircuitBreakerRepository shields enqueue from a failing master-data store.
// With the breaker open, lookups fail fast instead of holding the enqueue
// path on a timing-out database.
type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerRepository(repo Repository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	if !cfg.Enabled {
		return &CircuitBreakerRepository{repo: repo}
	}

	cbConfig := circuitbreaker.DefaultConfig("masterdata-delegation")
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.MinRequests) {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		}
	}

	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.NewWrapper(cbConfig),
	}
}

func (r *CircuitBreakerRepository) GetDelegationFor(ctx context.Context, receiver outbox.Receiver, gridArea string, process outbox.ProcessType, at time.Time) (*Delegation, error) {
	if r.cb == nil {
		return r.repo.GetDelegationFor(ctx, receiver, gridArea, process, at)
	}

	result, err := r.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return r.repo.GetDelegationFor(ctx, receiver, gridArea, process, at)
	})

	r.cb.RecordRequest(err == nil)

	if err != nil {
		if r.cb.IsOpen() {
			return nil, fmt.Errorf("circuit breaker is open for masterdata-delegation: %w", err)
		}
		return nil, err
	}

	d, ok := result.(*Delegation)
	if !ok && result != nil {
		return nil, fmt.Errorf("repository returned invalid result type")
	}
	return d, nil
}
