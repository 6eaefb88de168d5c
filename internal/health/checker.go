package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coldorg/coldbot/backend/internal/database"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusDisabled  = "disabled"
)

// Probe checks one dependency. A Critical probe failing makes the whole
// service unhealthy; any other failure only degrades it.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	ResponseTime int    `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
	LastChecked  string `json:"last_checked"`
}

// OverallHealth represents the overall system health
type OverallHealth struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
	Uptime   string          `json:"uptime"`
}

// HealthChecker manages health checks for all services
type HealthChecker struct {
	probes  []Probe
	cache   *database.Cache
	logger  *logrus.Logger
	timeout time.Duration
	started time.Time
}

func NewHealthChecker(cache *database.Cache, logger *logrus.Logger, probes ...Probe) *HealthChecker {
	return &HealthChecker{
		probes:  probes,
		cache:   cache,
		logger:  logger,
		timeout: 5 * time.Second,
		started: time.Now(),
	}
}

// DatabaseProbes builds the postgres and redis probes for a manager.
func DatabaseProbes(m *database.Manager) []Probe {
	return []Probe{
		{Name: "postgresql", Critical: true, Check: m.PingDatabase},
		{Name: "redis", Check: m.PingRedis},
	}
}

func (h *HealthChecker) check(ctx context.Context, probe Probe) ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := probe.Check(ctx)
	result := ServiceHealth{
		Name:         probe.Name,
		Status:       StatusHealthy,
		ResponseTime: int(time.Since(start).Milliseconds()),
		LastChecked:  time.Now().UTC().Format(time.RFC3339),
	}

	switch {
	case errors.Is(err, database.ErrRedisDisabled):
		result.Status = StatusDisabled
	case err != nil:
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		h.logger.WithError(err).WithField("service", probe.Name).Error("Health check failed")
	}
	return result
}

// CheckAll runs every probe concurrently.
func (h *HealthChecker) CheckAll(ctx context.Context) OverallHealth {
	services := make([]ServiceHealth, len(h.probes))

	var wg sync.WaitGroup
	for i, probe := range h.probes {
		wg.Add(1)
		go func(i int, probe Probe) {
			defer wg.Done()
			services[i] = h.check(ctx, probe)
		}(i, probe)
	}
	wg.Wait()

	overallStatus := StatusHealthy
	for i, service := range services {
		if service.Status != StatusUnhealthy {
			continue
		}
		if h.probes[i].Critical {
			overallStatus = StatusUnhealthy
			break
		}
		overallStatus = StatusDegraded
	}

	return OverallHealth{
		Status:   overallStatus,
		Services: services,
		Uptime:   time.Since(h.started).Round(time.Second).String(),
	}
}

// CheckCached returns the last periodic snapshot, or runs the checks when
// there is none.
func (h *HealthChecker) CheckCached(ctx context.Context) OverallHealth {
	var cached OverallHealth
	if err := h.cache.Get(ctx, database.SystemHealthKey, &cached); err == nil {
		cached.Uptime = time.Since(h.started).Round(time.Second).String()
		return cached
	}
	return h.CheckAll(ctx)
}

// PeriodicHealthCheck runs health checks periodically
func (h *HealthChecker) PeriodicHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health := h.CheckAll(ctx)

			// Cache the health status
			cacheCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := h.cache.Set(cacheCtx, database.SystemHealthKey, health, 2*interval); err != nil {
				h.logger.WithError(err).Error("Failed to cache health status")
			}
			cancel()

			h.logger.WithField("status", health.Status).Debug("Periodic health check completed")
		}
	}
}
