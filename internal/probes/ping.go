package probes

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/user/pingwatch/internal/model"
)

var currentOS = runtime.GOOS

// Matches "time=12.3 ms", "time<1ms" and "time=12ms".
var pingTimeRegex = regexp.MustCompile(`(?i)time[=<]\s*(\d+(?:\.\d+)?)\s*ms`)

// Ping makes up to retries+1 attempts and returns on the first success.
// When every attempt fails the last failure is returned. Failed attempts
// are separated by the retry delay; there is no delay after the last one.
func (p *SystemProber) Ping(ctx context.Context, host string, retries, timeoutMs int) model.ProbeResult {
	attempts := retries + 1
	if attempts < 1 {
		attempts = 1
	}

	var last model.ProbeResult
	for i := 0; i < attempts; i++ {
		last = p.pingOnce(ctx, host, timeoutMs)
		if last.Success {
			return last
		}
		if i < attempts-1 {
			if err := sleepContext(ctx, p.retryDelay); err != nil {
				return model.ProbeFailure(host, "ping cancelled: "+err.Error(), time.Now())
			}
		}
	}

	return last
}

func (p *SystemProber) pingOnce(ctx context.Context, host string, timeoutMs int) model.ProbeResult {
	timeout := time.Duration(timeoutMs) * time.Millisecond
	// the binary enforces the timeout itself; the context is a backstop
	cctx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	name, args := pingCommand(p.goos, host, timeoutMs)

	output, err := p.run(cctx, name, args...)
	at := time.Now()

	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return model.ProbeFailure(host, fmt.Sprintf("timeout after %dms", timeoutMs), at)
		}
		return model.ProbeFailure(host, describePingFailure(string(output), err), at)
	}

	// Windows ping exits 0 on an ICMP error reply from a gateway, so a
	// clean exit only counts when the target itself answered with a time.
	out := string(output)
	latency, ok := parsePingLatency(out)
	if !ok || reportsNoReply(out) {
		return model.ProbeFailure(host, describePingFailure(out, nil), at)
	}

	return model.ProbeSuccess(host, latency, at)
}

func reportsNoReply(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "unreachable") || strings.Contains(lower, "timed out")
}

func pingCommand(goos, host string, timeoutMs int) (string, []string) {
	switch goos {
	case "windows":
		return "ping", []string{"-n", "1", "-w", strconv.Itoa(timeoutMs), host}
	case "darwin", "freebsd", "openbsd", "netbsd":
		// -t is the overall timeout in seconds on BSD ping
		return "ping", []string{"-c", "1", "-t", strconv.Itoa(ceilSeconds(timeoutMs)), host}
	default:
		return "ping", []string{"-c", "1", "-W", strconv.Itoa(ceilSeconds(timeoutMs)), host}
	}
}

// parsePingLatency extracts the round trip time from ping output.
func parsePingLatency(output string) (float64, bool) {
	m := pingTimeRegex.FindStringSubmatch(output)
	if len(m) < 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func describePingFailure(output string, err error) string {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "unknown host"),
		strings.Contains(lower, "name or service not known"),
		strings.Contains(lower, "could not find host"),
		strings.Contains(lower, "cannot resolve"):
		return "unknown host"
	case strings.Contains(lower, "100% packet loss"),
		strings.Contains(lower, "100.0% packet loss"),
		strings.Contains(lower, "request timed out"):
		return "request timed out"
	case strings.Contains(lower, "unreachable"):
		return "destination unreachable"
	case strings.Contains(lower, "operation not permitted"):
		return "ping not permitted"
	}
	if err == nil {
		return "no reply from host"
	}
	return fmt.Sprintf("ping failed: %v", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func ceilSeconds(ms int) int {
	s := (ms + 999) / 1000
	if s < 1 {
		s = 1
	}
	return s
}
