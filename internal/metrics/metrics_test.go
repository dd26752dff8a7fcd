package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/user/pingwatch/internal/model"
)

func TestRegister_Twice(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second Register should tolerate duplicates: %v", err)
	}
}

func TestObservations_Gathered(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	now := time.Now()
	ObserveProbe(model.ProbeSuccess("a", 12, now))
	ObserveProbe(model.ProbeFailure("b", "timeout", now))
	IncidentOpened()
	IncidentsResolved(2)
	ObserveCycle(3*time.Second, model.Statistics{UnresolvedIncidents: 4})

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
		if f.GetName() == "pingwatch_unresolved_incidents" {
			if got := f.GetMetric()[0].GetGauge().GetValue(); got != 4 {
				t.Errorf("unresolved gauge = %v, want 4", got)
			}
		}
	}

	for _, name := range []string{
		"pingwatch_checks_total",
		"pingwatch_incidents_opened_total",
		"pingwatch_incidents_resolved_total",
		"pingwatch_probe_latency_milliseconds",
		"pingwatch_cycle_seconds",
		"pingwatch_unresolved_incidents",
	} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}
}
