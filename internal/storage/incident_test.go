package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/model"
)

func newTestStore(t *testing.T) *IncidentStorage {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	s := NewIncidentStorage(db, zap.NewNop())
	t.Cleanup(func() { s.Close() })
	return s
}

func float(v float64) *float64 { return &v }

func saveFailure(t *testing.T, s *IncidentStorage, host string, at time.Time, trace *model.DiagnosticTrace) int64 {
	t.Helper()
	inc := &model.Incident{
		Host:            host,
		Timestamp:       at,
		PingResult:      model.ProbeFailure(host, "timeout", at),
		DiagnosticTrace: trace,
	}
	id, err := s.SaveIncident(context.Background(), inc)
	if err != nil {
		t.Fatalf("SaveIncident: %v", err)
	}
	if inc.ID != id {
		t.Fatalf("incident ID not updated: %d vs %d", inc.ID, id)
	}
	return id
}

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if db.Path() != filepath.Join(dir, DBFileName) {
		t.Fatalf("unexpected path %s", db.Path())
	}
}

func TestSaveIncident_IDsStrictlyIncrease(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	var last int64
	for i := 0; i < 5; i++ {
		id := saveFailure(t, s, "10.0.0.1", now, nil)
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
}

func TestSaveIncident_HopRoundTrip(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	trace := &model.DiagnosticTrace{
		Host: "10.0.0.1",
		Hops: []model.TraceHop{
			{Hop: 1, Address: "192.168.1.1", Hostname: "router.lan", RTTMs: float(1.2)},
			{Hop: 2, TimedOut: true},
			{Hop: 3, Address: "10.10.0.1", RTTMs: float(12.5)},
		},
		Success:   true,
		Timestamp: now,
	}
	id := saveFailure(t, s, "10.0.0.1", now, trace)

	for name, got := range map[string]*model.Incident{
		"by id":  s.GetIncident(context.Background(), id),
		"latest": s.GetLatestIncident(context.Background()),
		"recent": &s.GetRecentIncidents(context.Background(), 1)[0],
		"host":   &s.GetIncidentsByHost(context.Background(), "10.0.0.1", 1)[0],
	} {
		if got == nil || got.DiagnosticTrace == nil {
			t.Fatalf("%s: missing incident or trace", name)
		}
		hops := got.DiagnosticTrace.Hops
		if len(hops) != 3 {
			t.Fatalf("%s: expected 3 hops, got %d", name, len(hops))
		}
		for i, h := range hops {
			want := trace.Hops[i]
			if h.Hop != want.Hop || h.TimedOut != want.TimedOut || h.Address != want.Address || h.Hostname != want.Hostname {
				t.Errorf("%s: hop %d = %+v, want %+v", name, i, h, want)
			}
		}
		if hops[1].RTTMs != nil {
			t.Errorf("%s: timed-out hop should have no RTT", name)
		}
		if !got.DiagnosticTrace.Success {
			t.Errorf("%s: trace success flag lost", name)
		}
		if got.PingResult.Success || got.PingResult.Error != "timeout" || got.PingResult.LatencyMs != nil {
			t.Errorf("%s: unexpected ping result %+v", name, got.PingResult)
		}
		if got.Resolved {
			t.Errorf("%s: new incident should be unresolved", name)
		}
	}
}

func TestSaveIncident_FailedTraceHasEmptyHops(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	id := saveFailure(t, s, "10.0.0.1", now, &model.DiagnosticTrace{
		Host: "10.0.0.1", Success: false, Error: "traceroute not found", Timestamp: now,
	})

	got := s.GetIncident(context.Background(), id)
	if got == nil || got.DiagnosticTrace == nil {
		t.Fatalf("expected incident with trace")
	}
	if got.DiagnosticTrace.Hops == nil || len(got.DiagnosticTrace.Hops) != 0 {
		t.Fatalf("expected empty, non-nil hops, got %#v", got.DiagnosticTrace.Hops)
	}
	if got.DiagnosticTrace.Error != "traceroute not found" {
		t.Fatalf("trace error lost: %q", got.DiagnosticTrace.Error)
	}
}

func TestSaveIncident_NoTrace(t *testing.T) {
	s := newTestStore(t)
	id := saveFailure(t, s, "10.0.0.1", time.Now(), nil)
	if got := s.GetIncident(context.Background(), id); got == nil || got.DiagnosticTrace != nil {
		t.Fatalf("expected incident without trace, got %+v", got)
	}
}

func TestGetRecentIncidents_OrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)

	saveFailure(t, s, "a", base, nil)
	saveFailure(t, s, "b", base.Add(2*time.Minute), nil)
	saveFailure(t, s, "c", base.Add(time.Minute), nil)

	got := s.GetRecentIncidents(context.Background(), 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 incidents, got %d", len(got))
	}
	if got[0].Host != "b" || got[1].Host != "c" {
		t.Fatalf("unexpected order: %s, %s", got[0].Host, got[1].Host)
	}
}

func TestGetRecentIncidents_ZeroLimit(t *testing.T) {
	s := newTestStore(t)
	saveFailure(t, s, "a", time.Now(), nil)

	got := s.GetRecentIncidents(context.Background(), 0)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty slice, got %#v", got)
	}
}

func TestGetIncidentsByHost_UnknownHost(t *testing.T) {
	s := newTestStore(t)
	saveFailure(t, s, "a", time.Now(), nil)

	if got := s.GetIncidentsByHost(context.Background(), "nonexistent-host", DefaultHostLimit); len(got) != 0 {
		t.Fatalf("expected no incidents, got %d", len(got))
	}
}

func TestMarkIncidentResolved_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := saveFailure(t, s, "a", time.Now(), nil)

	changed, err := s.MarkIncidentResolved(ctx, id)
	if err != nil || !changed {
		t.Fatalf("first resolve: changed=%v err=%v", changed, err)
	}
	changed, err = s.MarkIncidentResolved(ctx, id)
	if err != nil || changed {
		t.Fatalf("second resolve: changed=%v err=%v", changed, err)
	}
	if got := s.GetIncident(ctx, id); got == nil || !got.Resolved {
		t.Fatalf("incident should be resolved: %+v", got)
	}

	changed, err = s.MarkIncidentResolved(ctx, id+100)
	if err != nil || changed {
		t.Fatalf("missing id: changed=%v err=%v", changed, err)
	}
}

func TestGetUnresolvedIncidents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	first := saveFailure(t, s, "a", now.Add(-time.Minute), nil)
	second := saveFailure(t, s, "b", now, nil)

	if _, err := s.MarkIncidentResolved(ctx, first); err != nil {
		t.Fatalf("MarkIncidentResolved: %v", err)
	}

	open := s.GetUnresolvedIncidents(ctx)
	if len(open) != 1 || open[0].ID != second {
		t.Fatalf("unexpected unresolved set: %+v", open)
	}
}

func TestGetStatistics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if stats := s.GetStatistics(ctx); stats != (model.Statistics{}) {
		t.Fatalf("expected zero stats on empty table, got %+v", stats)
	}

	now := time.Now()
	a1 := saveFailure(t, s, "A", now, nil)
	saveFailure(t, s, "B", now, nil)
	saveFailure(t, s, "A", now, nil)
	if _, err := s.MarkIncidentResolved(ctx, a1); err != nil {
		t.Fatalf("MarkIncidentResolved: %v", err)
	}

	want := model.Statistics{TotalIncidents: 3, UnresolvedIncidents: 2, HostsAffected: 2}
	if got := s.GetStatistics(ctx); got != want {
		t.Fatalf("stats = %+v, want %+v", got, want)
	}
}

func TestGetIncidentsBetween(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	saveFailure(t, s, "old", now.Add(-48*time.Hour), nil)
	saveFailure(t, s, "new", now.Add(-time.Hour), nil)

	got := s.GetIncidentsBetween(context.Background(), now.Add(-24*time.Hour), now)
	if len(got) != 1 || got[0].Host != "new" {
		t.Fatalf("unexpected incidents: %+v", got)
	}
}

func TestClearAllIncidents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saveFailure(t, s, "a", time.Now(), nil)
	saveFailure(t, s, "b", time.Now(), nil)

	n, err := s.ClearAllIncidents(ctx)
	if err != nil || n != 2 {
		t.Fatalf("ClearAllIncidents: n=%d err=%v", n, err)
	}
	if s.GetLatestIncident(ctx) != nil {
		t.Fatalf("expected no latest incident after clear")
	}
}

func TestReads_DegradeAfterClose(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saveFailure(t, s, "a", time.Now(), nil)
	s.Close()

	if got := s.GetRecentIncidents(ctx, 10); got == nil || len(got) != 0 {
		t.Fatalf("expected empty result on closed store, got %#v", got)
	}
	if got := s.GetStatistics(ctx); got != (model.Statistics{}) {
		t.Fatalf("expected zero stats on closed store, got %+v", got)
	}
	if s.GetLatestIncident(ctx) != nil {
		t.Fatalf("expected nil latest on closed store")
	}
	if _, err := s.SaveIncident(ctx, &model.Incident{Host: "a"}); err == nil {
		t.Fatalf("expected write error on closed store")
	}
}

func TestReads_CorruptHopsDoNotHideIncidents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	trace := &model.DiagnosticTrace{
		Host:      "a",
		Hops:      []model.TraceHop{{Hop: 1, Address: "192.168.1.1", RTTMs: float(1.5)}},
		Success:   true,
		Timestamp: now,
	}
	bad := saveFailure(t, s, "a", now.Add(-time.Minute), trace)
	good := saveFailure(t, s, "a", now, trace)

	if _, err := s.db.ExecContext(ctx, `UPDATE incidents SET trace_hops = '{not json' WHERE id = ?`, bad); err != nil {
		t.Fatalf("corrupting row: %v", err)
	}

	got := s.GetIncidentsByHost(ctx, "a", 10)
	if len(got) != 2 {
		t.Fatalf("expected both incidents, got %d", len(got))
	}
	if got[0].ID != good || len(got[0].DiagnosticTrace.Hops) != 1 {
		t.Errorf("intact incident changed: %+v", got[0])
	}
	if got[1].ID != bad || got[1].DiagnosticTrace == nil || len(got[1].DiagnosticTrace.Hops) != 0 {
		t.Errorf("corrupt incident should read with no hops: %+v", got[1])
	}

	if inc := s.GetIncident(ctx, bad); inc == nil {
		t.Fatal("point lookup of the corrupt incident failed")
	}
	if n := len(s.GetUnresolvedIncidents(ctx)); n != 2 {
		t.Fatalf("expected 2 unresolved, got %d", n)
	}
}
