package model

import (
	"testing"
	"time"
)

func rtt(v float64) *float64 { return &v }

func TestLastReachableHop(t *testing.T) {
	tests := []struct {
		name  string
		trace *DiagnosticTrace
		want  string
	}{
		{"nil trace", nil, ""},
		{"no hops", &DiagnosticTrace{Hops: []TraceHop{}}, ""},
		{"all timed out", &DiagnosticTrace{Hops: []TraceHop{{Hop: 1, TimedOut: true}, {Hop: 2, TimedOut: true}}}, ""},
		{"trailing timeouts", &DiagnosticTrace{Hops: []TraceHop{
			{Hop: 1, Address: "192.168.1.1", RTTMs: rtt(1)},
			{Hop: 2, Address: "10.10.0.1", RTTMs: rtt(5)},
			{Hop: 3, TimedOut: true},
		}}, "10.10.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.trace.LastReachableHop()
			if tt.want == "" {
				if got != nil {
					t.Fatalf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil || got.Address != tt.want {
				t.Fatalf("got %+v, want address %s", got, tt.want)
			}
		})
	}
}

func TestProbeConstructors(t *testing.T) {
	now := time.Now()

	ok := ProbeSuccess("h", 12.5, now)
	if !ok.Success || ok.LatencyMs == nil || *ok.LatencyMs != 12.5 || ok.Error != "" {
		t.Errorf("unexpected success result %+v", ok)
	}

	fail := ProbeFailure("h", "", now)
	if fail.Success || fail.LatencyMs != nil || fail.Error == "" {
		t.Errorf("unexpected failure result %+v", fail)
	}
}
