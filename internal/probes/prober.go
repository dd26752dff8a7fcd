// Package probes provides network probing functionality.
package probes

import (
	"context"
	"os/exec"
	"time"

	"github.com/user/pingwatch/internal/model"
)

// Prober checks host reachability and collects path diagnostics.
// Network failures are reported as data, never as errors.
type Prober interface {
	Ping(ctx context.Context, host string, retries, timeoutMs int) model.ProbeResult
	Trace(ctx context.Context, host string, timeoutMs int) model.DiagnosticTrace
}

// CommandRunner runs an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// SystemProber drives the system ping and traceroute binaries.
type SystemProber struct {
	run        CommandRunner
	goos       string
	retryDelay time.Duration
	maxHops    int
}

// NewSystemProber creates a prober for the current platform.
func NewSystemProber() *SystemProber {
	return &SystemProber{
		run:        ExecRunner,
		goos:       currentOS,
		retryDelay: time.Second,
		maxHops:    30,
	}
}

// SetRunner replaces the command runner.
func (p *SystemProber) SetRunner(run CommandRunner) {
	if run != nil {
		p.run = run
	}
}

// SetRetryDelay sets the pause between failed ping attempts.
func (p *SystemProber) SetRetryDelay(d time.Duration) {
	if d >= 0 {
		p.retryDelay = d
	}
}

// SetMaxHops sets the maximum number of hops a trace follows (1-64).
func (p *SystemProber) SetMaxHops(n int) {
	if n > 0 && n <= 64 {
		p.maxHops = n
	}
}
