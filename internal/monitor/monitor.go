// Package monitor runs periodic reachability checks and turns failures
// into incidents.
//
// A cycle probes every configured host concurrently. A failed probe is
// followed by a diagnostic trace and recorded as a new incident; a
// successful one resolves the host's recent open incidents.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/metrics"
	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/probes"
	"github.com/user/pingwatch/internal/util"
)

// ErrStopped is returned by Start once the monitor has been stopped.
var ErrStopped = errors.New("monitor stopped")

// IncidentStore is the persistence the monitor needs.
type IncidentStore interface {
	SaveIncident(ctx context.Context, inc *model.Incident) (int64, error)
	GetIncidentsByHost(ctx context.Context, host string, limit int) []model.Incident
	MarkIncidentResolved(ctx context.Context, id int64) (bool, error)
	GetStatistics(ctx context.Context) model.Statistics
	Close() error
}

// Options holds optional monitor collaborators.
type Options struct {
	Logger *zap.Logger
	// OnCycle is called after every completed cycle, once the cycle lock is
	// released. It runs on the scheduling goroutine, so it must not call
	// Stop synchronously (use go m.Stop()).
	OnCycle func(model.CycleSummary)
	// HandleSignals stops the monitor on SIGINT/SIGTERM.
	HandleSignals bool
}

// Monitor owns the check schedule and the incident store.
type Monitor struct {
	cfg     util.MonitorConfig
	prober  probes.Prober
	store   IncidentStore
	logger  *zap.Logger
	onCycle func(model.CycleSummary)
	signals bool

	mu      sync.Mutex
	running bool
	stopped bool
	task    *Task
	last    *model.CycleSummary
	done    chan struct{}
	sigStop chan struct{}
	sigOnce sync.Once
	cycleMu sync.Mutex
}

type hostOutcome struct {
	result   model.ProbeResult
	opened   bool
	resolved int
}

// New creates a monitor. cfg is expected to be validated already.
func New(cfg util.MonitorConfig, prober probes.Prober, store IncidentStore, opts Options) *Monitor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResolveWindow <= 0 {
		cfg.ResolveWindow = 10
	}
	return &Monitor{
		cfg:     cfg,
		prober:  prober,
		store:   store,
		logger:  logger,
		onCycle: opts.OnCycle,
		signals: opts.HandleSignals,
		done:    make(chan struct{}),
		sigStop: make(chan struct{}),
	}
}

// Start runs one cycle immediately, then schedules a cycle every interval.
// Calling Start on a running monitor logs a warning and does nothing.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if m.running {
		m.mu.Unlock()
		m.logger.Warn("monitor_already_running")
		return nil
	}
	m.running = true
	m.mu.Unlock()

	m.logger.Info("monitor_starting",
		zap.Strings("hosts", m.cfg.Hosts),
		zap.Duration("interval", m.cfg.Interval),
		zap.Int("timeout_ms", m.cfg.TimeoutMs),
		zap.Int("retries", m.cfg.Retries),
		zap.Int("resolve_window", m.cfg.ResolveWindow),
	)

	if m.signals {
		go m.handleSignals()
	}

	m.PerformCheck(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil
	}
	m.task = Every(ctx, "check_cycle", m.cfg.Interval, m.logger, func(ctx context.Context) error {
		m.PerformCheck(ctx)
		return nil
	})

	return nil
}

// Stop cancels the schedule, waits for a cycle in progress, closes the
// store and signals Done. It does nothing if the monitor never started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running || m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	task := m.task
	m.task = nil
	m.mu.Unlock()

	m.logger.Info("monitor_stopping")

	if task != nil {
		task.Stop()
	}
	m.sigOnce.Do(func() { close(m.sigStop) })

	// wait out a cycle in progress before releasing the store
	m.cycleMu.Lock()
	if err := m.store.Close(); err != nil {
		m.logger.Error("store_close_failed", zap.Error(err))
	}
	m.cycleMu.Unlock()

	m.logger.Info("monitor_stopped")
	close(m.done)
}

// Done is closed once Stop has completed.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// IsRunning reports whether the monitor has started and not yet stopped.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running && !m.stopped
}

// LastCycle returns the summary of the most recent cycle, or nil.
func (m *Monitor) LastCycle() *model.CycleSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return nil
	}
	s := *m.last
	return &s
}

// TaskStatus returns the state of the repeating check task, if armed.
func (m *Monitor) TaskStatus() *TaskStatus {
	m.mu.Lock()
	task := m.task
	m.mu.Unlock()
	if task == nil {
		return nil
	}
	s := task.Status()
	return &s
}

func (m *Monitor) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.logger.Info("signal_received", zap.String("signal", sig.String()))
		m.Stop()
	case <-m.sigStop:
	}
}

// PerformCheck runs one cycle: every host is checked concurrently and the
// cycle returns once all of them finish. A failing or panicking host never
// affects its siblings.
func (m *Monitor) PerformCheck(ctx context.Context) model.CycleSummary {
	summary := m.runCycle(ctx)

	if m.onCycle != nil {
		m.onCycle(summary)
	}

	return summary
}

func (m *Monitor) runCycle(ctx context.Context) model.CycleSummary {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	summary := model.CycleSummary{
		CycleID:      uuid.NewString(),
		StartedAt:    time.Now(),
		HostsChecked: len(m.cfg.Hosts),
	}
	logger := m.logger.With(zap.String("cycle_id", summary.CycleID))
	logger.Debug("check_cycle_started", zap.Int("hosts", len(m.cfg.Hosts)))

	outcomes := make([]hostOutcome, len(m.cfg.Hosts))

	var wg conc.WaitGroup
	for i, host := range m.cfg.Hosts {
		wg.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("host_check_panicked", zap.String("host", host), zap.Any("panic", r))
					outcomes[i] = hostOutcome{result: model.ProbeFailure(host, fmt.Sprintf("check panicked: %v", r), time.Now())}
				}
			}()

			out, err := m.checkHost(ctx, logger, host)
			outcomes[i] = out
			if err != nil {
				logger.Error("host_check_failed", zap.String("host", host), zap.Error(err))
			}
		})
	}
	wg.Wait()

	var latencySum float64
	var latencyN int
	for _, out := range outcomes {
		if out.result.Success {
			summary.Reachable++
			if out.result.LatencyMs != nil {
				latencySum += *out.result.LatencyMs
				latencyN++
			}
		} else {
			summary.Unreachable++
		}
		if out.opened {
			summary.IncidentsOpened++
		}
		summary.IncidentsResolved += out.resolved
	}
	if latencyN > 0 {
		mean := latencySum / float64(latencyN)
		summary.MeanLatencyMs = &mean
	}

	summary.Stats = m.store.GetStatistics(ctx)
	summary.Duration = time.Since(summary.StartedAt)

	metrics.ObserveCycle(summary.Duration, summary.Stats)

	logger.Info("check_cycle_complete",
		zap.Int("reachable", summary.Reachable),
		zap.Int("unreachable", summary.Unreachable),
		zap.Int("incidents_opened", summary.IncidentsOpened),
		zap.Int("incidents_resolved", summary.IncidentsResolved),
		zap.Int("total_incidents", summary.Stats.TotalIncidents),
		zap.Int("unresolved_incidents", summary.Stats.UnresolvedIncidents),
		zap.Int("hosts_affected", summary.Stats.HostsAffected),
		zap.Duration("duration", summary.Duration),
	)

	m.mu.Lock()
	last := summary
	m.last = &last
	m.mu.Unlock()

	return summary
}

// checkHost probes one host. Only store writes produce errors; an
// unreachable host is recorded, not returned.
func (m *Monitor) checkHost(ctx context.Context, logger *zap.Logger, host string) (hostOutcome, error) {
	res := m.prober.Ping(ctx, host, m.cfg.Retries, m.cfg.TimeoutMs)
	out := hostOutcome{result: res}
	metrics.ObserveProbe(res)

	if res.Success {
		fields := []zap.Field{zap.String("host", host)}
		if res.LatencyMs != nil {
			fields = append(fields, zap.Float64("latency_ms", *res.LatencyMs))
		}
		logger.Info("host_reachable", fields...)

		n, err := m.resolveIncidents(ctx, logger, host)
		out.resolved = n
		return out, err
	}

	logger.Warn("host_unreachable", zap.String("host", host), zap.String("error", res.Error))

	trace := m.prober.Trace(ctx, host, m.cfg.TimeoutMs)
	if trace.Hops == nil {
		trace.Hops = []model.TraceHop{}
	}

	inc := &model.Incident{
		Host:            host,
		Timestamp:       time.Now(),
		Resolved:        false,
		PingResult:      res,
		DiagnosticTrace: &trace,
	}

	id, err := m.store.SaveIncident(ctx, inc)
	if err != nil {
		return out, fmt.Errorf("failed to save incident for %s: %w", host, err)
	}
	out.opened = true
	metrics.IncidentOpened()

	fields := []zap.Field{
		zap.Int64("incident_id", id),
		zap.String("host", host),
		zap.Bool("trace_success", trace.Success),
		zap.Int("hops", len(trace.Hops)),
	}
	if hop := trace.LastReachableHop(); hop != nil {
		fields = append(fields, zap.Int("last_hop", hop.Hop), zap.String("last_hop_address", hop.Address))
		if hop.Hostname != "" {
			fields = append(fields, zap.String("last_hop_hostname", hop.Hostname))
		}
	}
	if trace.Error != "" {
		fields = append(fields, zap.String("trace_error", trace.Error))
	}
	logger.Warn("incident_opened", fields...)

	return out, nil
}

// resolveIncidents closes the open incidents among the host's most recent
// ResolveWindow incidents. Older open incidents are left alone.
func (m *Monitor) resolveIncidents(ctx context.Context, logger *zap.Logger, host string) (int, error) {
	recent := m.store.GetIncidentsByHost(ctx, host, m.cfg.ResolveWindow)

	var errs []error
	resolved := 0
	for _, inc := range recent {
		if inc.Resolved {
			continue
		}
		changed, err := m.store.MarkIncidentResolved(ctx, inc.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			resolved++
			logger.Info("incident_resolved", zap.Int64("incident_id", inc.ID), zap.String("host", host))
		}
	}
	metrics.IncidentsResolved(resolved)

	return resolved, errors.Join(errs...)
}
