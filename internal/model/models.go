// Package model defines core data structures for pingwatch.
package model

import "time"

// ProbeResult is the outcome of one reachability check against a host.
// A successful result carries LatencyMs, a failed one carries Error.
type ProbeResult struct {
	Host      string    `json:"host"`
	Success   bool      `json:"success"`
	LatencyMs *float64  `json:"latency_ms,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProbeSuccess builds a successful ProbeResult.
func ProbeSuccess(host string, latencyMs float64, at time.Time) ProbeResult {
	if latencyMs < 0 {
		latencyMs = 0
	}
	return ProbeResult{
		Host:      host,
		Success:   true,
		LatencyMs: &latencyMs,
		Timestamp: at,
	}
}

// ProbeFailure builds a failed ProbeResult.
func ProbeFailure(host, errMsg string, at time.Time) ProbeResult {
	if errMsg == "" {
		errMsg = "host unreachable"
	}
	return ProbeResult{
		Host:      host,
		Success:   false,
		Error:     errMsg,
		Timestamp: at,
	}
}

// TraceHop represents a single hop in a diagnostic trace.
// Timed-out hops carry no address, hostname or RTT.
type TraceHop struct {
	Hop      int      `json:"hop"`
	Address  string   `json:"address,omitempty"`
	Hostname string   `json:"hostname,omitempty"`
	RTTMs    *float64 `json:"rtt_ms,omitempty"`
	TimedOut bool     `json:"timed_out"`
}

// DiagnosticTrace is the path evidence collected when a probe fails.
type DiagnosticTrace struct {
	Host      string     `json:"host"`
	Hops      []TraceHop `json:"hops"`
	Success   bool       `json:"success"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// LastReachableHop returns the last hop that answered with an address,
// or nil when no hop did.
func (t *DiagnosticTrace) LastReachableHop() *TraceHop {
	if t == nil {
		return nil
	}
	for i := len(t.Hops) - 1; i >= 0; i-- {
		hop := &t.Hops[i]
		if hop.TimedOut || hop.Address == "" {
			continue
		}
		return hop
	}
	return nil
}

// Incident is a durable record of one failed probe.
type Incident struct {
	ID              int64            `json:"id"`
	Host            string           `json:"host"`
	Timestamp       time.Time        `json:"timestamp"`
	Resolved        bool             `json:"resolved"`
	PingResult      ProbeResult      `json:"ping_result"`
	DiagnosticTrace *DiagnosticTrace `json:"diagnostic_trace,omitempty"`
}

// Statistics aggregates the incident table.
type Statistics struct {
	TotalIncidents      int `json:"total_incidents"`
	UnresolvedIncidents int `json:"unresolved_incidents"`
	HostsAffected       int `json:"hosts_affected"`
}

// CycleSummary describes one completed check cycle.
type CycleSummary struct {
	CycleID           string        `json:"cycle_id"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	HostsChecked      int           `json:"hosts_checked"`
	Reachable         int           `json:"reachable"`
	Unreachable       int           `json:"unreachable"`
	MeanLatencyMs     *float64      `json:"mean_latency_ms,omitempty"`
	IncidentsOpened   int           `json:"incidents_opened"`
	IncidentsResolved int           `json:"incidents_resolved"`
	Stats             Statistics    `json:"stats"`
}

// ReportOptions defines options for report generation.
type ReportOptions struct {
	Since      time.Time `json:"since"`
	Until      time.Time `json:"until"`
	Format     string    `json:"format"`
	OutputPath string    `json:"output_path"`
}
