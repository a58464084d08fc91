// Package health tracks whether the council's collaborators are reachable.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tjfontaine/polyglot-council/internal/core/ports"
)

const (
	DefaultInterval = 60 * time.Second
	DefaultTimeout  = 10 * time.Second
)

// Component and overall statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusDisabled  = "disabled"
	StatusUnknown   = "unknown"
)

// Check is the result of pinging one collaborator.
type Check struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

// Report is the cached view served by the health endpoint.
type Report struct {
	Status          string    `json:"status"`
	Reasoner        Check     `json:"reasoner"`
	ContextProvider Check     `json:"contextProvider"`
	Storage         Check     `json:"storage"`
	Members         int       `json:"members"`
	CheckedAt       time.Time `json:"checkedAt"`
}

// Monitor pings the reasoner, context provider, and store on an interval
// and caches the outcome. A nil collaborator is reported as disabled.
type Monitor struct {
	reasoner ports.Pinger
	context  ports.Pinger
	storage  ports.Pinger
	members  func() int
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.RWMutex
	last Report
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithContextProvider(p ports.Pinger) Option {
	return func(m *Monitor) { m.context = p }
}

func WithStorage(p ports.Pinger) Option {
	return func(m *Monitor) { m.storage = p }
}

// WithMemberCount reports the registry size alongside the checks.
func WithMemberCount(fn func() int) Option {
	return func(m *Monitor) { m.members = fn }
}

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// NewMonitor creates a monitor. Nothing is checked until Check or Run is
// called.
func NewMonitor(reasoner ports.Pinger, opts ...Option) *Monitor {
	m := &Monitor{
		reasoner: reasoner,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.last = Report{
		Status:          StatusUnknown,
		Reasoner:        Check{Status: StatusUnknown},
		ContextProvider: Check{Status: StatusUnknown},
		Storage:         Check{Status: StatusUnknown},
	}
	return m
}

// Interval returns the refresh period.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Run checks immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check pings every collaborator concurrently, caches and returns the report.
func (m *Monitor) Check(ctx context.Context) Report {
	var (
		wg      sync.WaitGroup
		checks  [3]Check
		targets = [3]ports.Pinger{m.reasoner, m.context, m.storage}
	)
	for i, p := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checks[i] = m.ping(ctx, p)
		}()
	}
	wg.Wait()

	r := Report{
		Reasoner:        checks[0],
		ContextProvider: checks[1],
		Storage:         checks[2],
		CheckedAt:       m.now().UTC(),
	}
	if m.members != nil {
		r.Members = m.members()
	}
	r.Status = overall(r)

	m.mu.Lock()
	prev := m.last.Status
	m.last = r
	m.mu.Unlock()

	if prev != r.Status {
		m.logger.Info("health status changed",
			slog.String("from", prev),
			slog.String("to", r.Status),
			slog.String("reasoner", r.Reasoner.Status),
			slog.String("context_provider", r.ContextProvider.Status),
			slog.String("storage", r.Storage.Status))
	}
	return r
}

// Report returns the last cached report.
func (m *Monitor) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *Monitor) ping(ctx context.Context, p ports.Pinger) Check {
	if p == nil {
		return Check{Status: StatusDisabled}
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	c := Check{Status: StatusHealthy, LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		c.Status = StatusUnhealthy
		c.Error = err.Error()
	}
	return c
}

// overall is unhealthy when the reasoner is down, since no deliberation can
// succeed. Any other failing collaborator only degrades.
func overall(r Report) string {
	switch {
	case r.Reasoner.Status == StatusUnhealthy:
		return StatusUnhealthy
	case r.ContextProvider.Status == StatusUnhealthy, r.Storage.Status == StatusUnhealthy:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
