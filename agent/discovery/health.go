package discovery

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/a2abus/agent/bus"
)

// HealthCheckerConfig holds configuration for the health checker.
type HealthCheckerConfig struct {
	// Interval is the time between probe rounds.
	Interval time.Duration
	// Timeout bounds a single probe.
	Timeout time.Duration
	// Skip names agents that are never probed, such as the local node.
	Skip []string
}

// HealthChecker probes every registered agent periodically. The bus flips
// the registration status on each probe, so a single failed probe marks an
// agent unavailable; the checker only counts consecutive failures for
// logging.
type HealthChecker struct {
	config    HealthCheckerConfig
	registrar Registrar
	logger    *zap.Logger

	failureMu     sync.Mutex
	failureCounts map[string]int

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewHealthChecker creates a health checker.
func NewHealthChecker(config HealthCheckerConfig, registrar Registrar, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &HealthChecker{
		config:        config,
		registrar:     registrar,
		logger:        logger.With(zap.String("component", "health_checker")),
		failureCounts: make(map[string]int),
	}
}

// Start launches the probe loop.
func (h *HealthChecker) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	h.done = make(chan struct{})
	h.wg.Add(1)
	go h.run(h.done)
	h.logger.Info("health checker started")
}

// Stop ends the probe loop and waits for it.
func (h *HealthChecker) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	close(h.done)
	h.mu.Unlock()

	h.wg.Wait()
	h.logger.Info("health checker stopped")
}

func (h *HealthChecker) run(done <-chan struct{}) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.CheckAll(context.Background())
		case <-done:
			return
		}
	}
}

// CheckAll probes every registered agent except the skipped ones in
// parallel and returns the availability per probed agent.
func (h *HealthChecker) CheckAll(ctx context.Context) map[string]bool {
	agents := h.registrar.Agents()
	results := make(map[string]bool, len(agents))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, reg := range agents {
		if slices.Contains(h.config.Skip, reg.Name) {
			continue
		}
		wg.Add(1)
		go func(reg bus.Registration) {
			defer wg.Done()
			ok := h.checkAgent(ctx, reg)
			mu.Lock()
			results[reg.Name] = ok
			mu.Unlock()
		}(reg)
	}
	wg.Wait()
	return results
}

func (h *HealthChecker) checkAgent(ctx context.Context, reg bus.Registration) bool {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()
	healthy := h.registrar.CheckAvailability(ctx, reg.Name)

	h.failureMu.Lock()
	defer h.failureMu.Unlock()
	if healthy {
		if h.failureCounts[reg.Name] > 0 {
			h.logger.Info("agent health recovered", zap.String("agent", reg.Name))
		}
		h.failureCounts[reg.Name] = 0
		return true
	}
	h.failureCounts[reg.Name]++
	h.logger.Warn("agent health check failed",
		zap.String("agent", reg.Name),
		zap.String("address", reg.Address),
		zap.Int("consecutive_failures", h.failureCounts[reg.Name]),
	)
	return false
}

// Failures returns the consecutive failure count of an agent.
func (h *HealthChecker) Failures(name string) int {
	h.failureMu.Lock()
	defer h.failureMu.Unlock()
	return h.failureCounts[name]
}
