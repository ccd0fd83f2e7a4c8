// Package health runs periodic self-checks for a ledger node and reports
// the aggregate status served on /healthz.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status values reported per probe and overall.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// ProbeFunc returns nil when the checked resource is healthy.
type ProbeFunc func(ctx context.Context) error

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(probe string, success bool)

// ProbeStatus is the last known state of one probe.
type ProbeStatus struct {
	Status    string    `json:"status"`
	Failures  int       `json:"consecutive_failures"`
	LastError string    `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Report is a point-in-time view of every probe.
type Report struct {
	Status string                 `json:"status"`
	Probes map[string]ProbeStatus `json:"probes"`
}

// Healthy reports whether no probe is degraded.
func (r Report) Healthy() bool { return r.Status == StatusHealthy }

// Checker runs registered probes on an interval. A probe becomes degraded
// after FailThreshold consecutive failures and healthy again on the first
// success.
type Checker struct {
	mu        sync.Mutex
	probes    map[string]ProbeFunc
	state     map[string]ProbeStatus
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a Checker.
func New(cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{
		probes: make(map[string]ProbeFunc),
		state:  make(map[string]ProbeStatus),
		cfg:    cfg,
		logger: logger,
	}
}

// Add registers a named probe. Probes start healthy until checked.
func (h *Checker) Add(name string, fn ProbeFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = fn
	h.state[name] = ProbeStatus{Status: StatusHealthy}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs an immediate check and then one per interval until ctx is done.
func (h *Checker) Start(ctx context.Context) {
	h.CheckAll(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll runs every probe concurrently and waits for them to finish.
func (h *Checker) CheckAll(ctx context.Context) {
	h.mu.Lock()
	probes := make(map[string]ProbeFunc, len(h.probes))
	for name, fn := range h.probes {
		probes[name] = fn
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for name, fn := range probes {
		wg.Add(1)
		go func(name string, fn ProbeFunc) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := fn(pctx)
			cancel()
			h.record(name, err)
		}(name, fn)
	}
	wg.Wait()
}

func (h *Checker) record(name string, err error) {
	if h.onMetrics != nil {
		h.onMetrics(name, err == nil)
	}

	h.mu.Lock()
	prev := h.state[name]
	next := ProbeStatus{CheckedAt: time.Now().UTC()}
	if err == nil {
		next.Status = StatusHealthy
	} else {
		next.Failures = prev.Failures + 1
		next.LastError = err.Error()
		next.Status = prev.Status
		if next.Failures >= h.cfg.FailThreshold {
			next.Status = StatusDegraded
		}
	}
	h.state[name] = next
	h.mu.Unlock()

	switch {
	case prev.Status == StatusDegraded && next.Status == StatusHealthy:
		h.logger.Info("health: recovered", zap.String("probe", name))
	case prev.Status != StatusDegraded && next.Status == StatusDegraded:
		h.logger.Warn("health: degraded",
			zap.String("probe", name),
			zap.Int("fail_count", next.Failures),
			zap.Error(err),
		)
	case err != nil:
		h.logger.Debug("health: probe failed", zap.String("probe", name), zap.Error(err))
	}
}

// Report returns the current state of every probe.
func (h *Checker) Report() Report {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := Report{Status: StatusHealthy, Probes: make(map[string]ProbeStatus, len(h.state))}
	for name, s := range h.state {
		r.Probes[name] = s
		if s.Status == StatusDegraded {
			r.Status = StatusDegraded
		}
	}
	return r
}

// Degraded lists the names of degraded probes in sorted order.
func (h *Checker) Degraded() []string {
	var out []string
	for name, s := range h.Report().Probes {
		if s.Status == StatusDegraded {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
