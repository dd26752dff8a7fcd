// Package daemon runs the monitor as a long-lived background service.
package daemon

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/metrics"
	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/monitor"
	"github.com/user/pingwatch/internal/probes"
	"github.com/user/pingwatch/internal/storage"
	"github.com/user/pingwatch/internal/util"
	"github.com/user/pingwatch/internal/web"
)

// Options configures optional daemon services.
type Options struct {
	// WithWeb serves the query API next to the monitor.
	WithWeb bool
	WebPort int
	// Prober overrides the system ping/traceroute prober.
	Prober probes.Prober
	// Registerer receives the metrics collectors. Defaults to the
	// Prometheus default registry.
	Registerer prometheus.Registerer
	// Gatherer is served on /metrics when WithWeb is set.
	Gatherer prometheus.Gatherer
}

// Daemon manages the background service.
type Daemon struct {
	config  *util.Config
	logger  *zap.Logger
	opts    Options
	monitor *monitor.Monitor

	// the web API gets its own store handle so it can outlive the monitor's
	webStore *storage.IncidentStorage
	web      *web.Server
	webErr   chan error

	mu        sync.RWMutex
	running   bool
	startTime time.Time
	waitOnce  sync.Once
}

// New creates a new daemon instance.
func New(cfg *util.Config, logger *zap.Logger, opts Options) (*Daemon, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Prober == nil {
		sp := probes.NewSystemProber()
		sp.SetMaxHops(cfg.TraceMaxHops)
		opts.Prober = sp
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.WebPort == 0 {
		opts.WebPort = cfg.WebPort
	}

	if err := metrics.Register(opts.Registerer); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	db, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	d := &Daemon{
		config: cfg,
		logger: logger,
		opts:   opts,
	}

	store := storage.NewIncidentStorage(db, logger.Named("storage"))
	d.monitor = monitor.New(cfg.Monitor(), opts.Prober, store, monitor.Options{
		Logger:        logger.Named("monitor"),
		OnCycle:       d.onCycle,
		HandleSignals: true,
	})

	if opts.WithWeb {
		webDB, err := storage.Open(cfg.DataDir)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to open web database handle: %w", err)
		}
		d.webStore = storage.NewIncidentStorage(webDB, logger.Named("storage"))
		d.web = web.NewServer(d.webStore, logger.Named("web"), opts.Gatherer, opts.WebPort)
		d.webErr = make(chan error, 1)
	}

	return d, nil
}

// Start writes the PID file, starts the optional web API and runs the
// monitor's first cycle. It returns once the schedule is armed.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := writePIDFile(d.config.DataDir); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.logger.Info("daemon_starting", zap.Int("pid", os.Getpid()), zap.Bool("web", d.web != nil))

	if d.web != nil {
		go func() {
			if err := d.web.Start(); err != nil {
				d.logger.Error("web_server_failed", zap.Error(err))
				d.webErr <- err
			}
		}()
	}

	if err := d.monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	d.writeStatus(true)
	d.logger.Info("daemon_started", zap.Int("pid", os.Getpid()))

	return nil
}

// Wait blocks until the monitor stops, then shuts the rest of the daemon
// down. A web server failure also ends the daemon.
func (d *Daemon) Wait() {
	select {
	case <-d.monitor.Done():
	case <-d.webErr:
		d.monitor.Stop()
	}

	d.waitOnce.Do(d.shutdown)
}

// Stop stops the daemon gracefully.
func (d *Daemon) Stop() {
	d.monitor.Stop()
	d.waitOnce.Do(d.shutdown)
}

func (d *Daemon) shutdown() {
	if d.web != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := d.web.Stop(ctx); err != nil {
			d.logger.Warn("web_server_stop_failed", zap.Error(err))
		}
		cancel()
		d.webStore.Close()
	}

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.writeStatus(false)
	removePIDFile(d.config.DataDir)
	d.logger.Info("daemon_stopped")
}

// IsRunning returns whether the daemon is running.
func (d *Daemon) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Monitor returns the daemon's monitor.
func (d *Daemon) Monitor() *monitor.Monitor {
	return d.monitor
}

// GetStatus returns the daemon status.
func (d *Daemon) GetStatus() *StatusFile {
	d.mu.RLock()
	running, start := d.running, d.startTime
	d.mu.RUnlock()

	sf := &StatusFile{
		Running:         running,
		PID:             os.Getpid(),
		StartTime:       start,
		UpdatedAt:       time.Now(),
		Hosts:           d.config.Hosts,
		IntervalSeconds: d.config.Interval,
		LastCycle:       d.monitor.LastCycle(),
		Task:            d.monitor.TaskStatus(),
	}
	if d.web != nil {
		sf.WebPort = d.opts.WebPort
	}
	return sf
}

func (d *Daemon) onCycle(model.CycleSummary) {
	d.writeStatus(true)
}

func (d *Daemon) writeStatus(running bool) {
	sf := d.GetStatus()
	sf.Running = running
	if err := WriteStatusFile(d.config.DataDir, sf); err != nil {
		d.logger.Warn("status_file_write_failed", zap.Error(err))
	}
}
