package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"screenshare/internal/core/ports"
	"screenshare/pkg/circuitbreaker"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type HealthCheck struct {
	Name    string
	Check   func(ctx context.Context) error
	Timeout time.Duration
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func (s HealthStatus) Healthy() bool {
	return s.Status == StatusHealthy
}

// HealthChecker runs readiness checks on demand and, optionally, in the background
// so state changes show up in the logs before the next readiness check.
type HealthChecker struct {
	checks []HealthCheck
	mu     sync.RWMutex
	logger *zap.SugaredLogger
}

func NewHealthChecker(logger *zap.SugaredLogger) *HealthChecker {
	return &HealthChecker{
		checks: make([]HealthCheck, 0),
		logger: logger,
	}
}

func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.checks = append(h.checks, HealthCheck{
		Name:    name,
		Check:   check,
		Timeout: timeout,
	})
}

// AddPingCheck reports the backend unhealthy when Ping fails.
func (h *HealthChecker) AddPingCheck(name string, pinger ports.Pinger, timeout time.Duration) {
	h.AddCheck(name, pinger.Ping, timeout)
}

// AddBreakerCheck reports unhealthy while the storage circuit breaker is open.
func (h *HealthChecker) AddBreakerCheck(name string, stats func() circuitbreaker.Stats) {
	h.AddCheck(name, func(context.Context) error {
		if s := stats(); s.State == circuitbreaker.StateOpen {
			return fmt.Errorf("circuit breaker %s since %s, last failure at %s", s.State,
				s.StateChangeTime.UTC().Format(time.RFC3339), s.LastFailureTime.UTC().Format(time.RFC3339))
		}
		return nil
	}, time.Second)
}

// CheckAll runs every check concurrently.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]error, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		i, check := i, check
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
			defer cancel()
			results[i] = check.Check(checkCtx)
			return nil
		})
	}
	g.Wait()

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(checks)),
	}
	for i, check := range checks {
		if err := results[i]; err != nil {
			status.Status = StatusUnhealthy
			status.Checks[check.Name] = err.Error()
			continue
		}
		status.Checks[check.Name] = StatusHealthy
	}
	return status
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Healthy()
}

// StartBackgroundChecks logs transitions between healthy and unhealthy until ctx is done.
func (h *HealthChecker) StartBackgroundChecks(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := StatusHealthy
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status := h.CheckAll(ctx)
				if status.Status != last {
					h.logger.Warnw("readiness changed",
						"from", last,
						"to", status.Status,
						"checks", status.Checks,
					)
					last = status.Status
				}
			}
		}
	}()
}
