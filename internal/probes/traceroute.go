package probes

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/user/pingwatch/internal/model"
)

// traceDeadlineFactor bounds a whole trace to this many per-probe timeouts.
const traceDeadlineFactor = 6

var (
	hopLineRegex = regexp.MustCompile(`^\s*(\d+)\s+(.*)$`)
	// "router.lan (192.168.0.1)" or "router.lan [192.168.0.1]"
	namedHopRegex = regexp.MustCompile(`([A-Za-z0-9._-]+)\s*[\(\[](\d{1,3}(?:\.\d{1,3}){3})[\)\]]`)
	ipRegex       = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3})\b`)
	rttRegex      = regexp.MustCompile(`<?(\d+(?:\.\d+)?)\s*ms\b`)
)

// Trace runs a single traceroute to host. A failed trace is still returned,
// with Success=false, an error description and whatever hops were printed
// before the command failed or was killed.
func (p *SystemProber) Trace(ctx context.Context, host string, timeoutMs int) model.DiagnosticTrace {
	trace := model.DiagnosticTrace{
		Host: host,
		Hops: []model.TraceHop{},
	}

	deadline := time.Duration(timeoutMs) * time.Millisecond * traceDeadlineFactor
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	name, args := traceCommand(p.goos, host, timeoutMs, p.maxHops)
	output, err := p.run(cctx, name, args...)
	trace.Timestamp = time.Now()

	trace.Hops = parseTraceOutput(string(output))

	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			trace.Error = fmt.Sprintf("trace timed out after %s", deadline)
		} else {
			trace.Error = fmt.Sprintf("%s failed: %v", name, err)
		}
		return trace
	}

	trace.Success = true
	return trace
}

func traceCommand(goos, host string, timeoutMs, maxHops int) (string, []string) {
	if goos == "windows" {
		return "tracert", []string{"-d", "-h", strconv.Itoa(maxHops), "-w", strconv.Itoa(timeoutMs), host}
	}
	// -n = no reverse DNS, -q 1 = 1 probe per hop, -w = per-hop wait in seconds
	return "traceroute", []string{"-n", "-q", "1", "-w", strconv.Itoa(ceilSeconds(timeoutMs)),
		"-m", strconv.Itoa(maxHops), host}
}

// parseTraceOutput parses traceroute/tracert output into hops. Lines that do
// not start with a hop number (headers, trailers) are skipped.
func parseTraceOutput(output string) []model.TraceHop {
	hops := []model.TraceHop{}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		m := hopLineRegex.FindStringSubmatch(scanner.Text())
		if len(m) < 3 {
			continue
		}
		hopNum, err := strconv.Atoi(m[1])
		if err != nil || hopNum < 1 {
			continue
		}
		hops = append(hops, parseHop(hopNum, m[2]))
	}

	return hops
}

func parseHop(hopNum int, rest string) model.TraceHop {
	hop := model.TraceHop{Hop: hopNum}

	if m := namedHopRegex.FindStringSubmatch(rest); len(m) == 3 {
		hop.Address = m[2]
		if m[1] != m[2] {
			hop.Hostname = m[1]
		}
	} else if m := ipRegex.FindStringSubmatch(rest); len(m) == 2 {
		hop.Address = m[1]
	}

	if m := rttRegex.FindStringSubmatch(rest); len(m) == 2 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			hop.RTTMs = &v
		}
	}

	if hop.Address == "" && hop.RTTMs == nil {
		hop = model.TraceHop{Hop: hopNum, TimedOut: true}
	}

	return hop
}
