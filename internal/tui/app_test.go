package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/storage"
	"github.com/user/pingwatch/internal/util"
)

func newTestSource(t *testing.T) (*storage.IncidentStorage, *util.Config) {
	t.Helper()
	cfg := util.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Hosts = []string{"10.0.0.1", "8.8.8.8"}

	db, err := storage.Open(cfg.DataDir)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	s := storage.NewIncidentStorage(db, nil)
	t.Cleanup(func() { s.Close() })
	return s, cfg
}

func seedIncident(t *testing.T, s *storage.IncidentStorage, host string, at time.Time) int64 {
	t.Helper()
	inc := &model.Incident{
		Host:       host,
		Timestamp:  at,
		PingResult: model.ProbeFailure(host, "request timed out", at),
		DiagnosticTrace: &model.DiagnosticTrace{
			Host:      host,
			Hops:      []model.TraceHop{{Hop: 1, Address: "192.168.1.1"}, {Hop: 2, TimedOut: true}},
			Success:   true,
			Timestamp: at,
		},
	}
	id, err := s.SaveIncident(context.Background(), inc)
	if err != nil {
		t.Fatalf("SaveIncident: %v", err)
	}
	return id
}

func TestFetchDashboardData_HostStates(t *testing.T) {
	s, cfg := newTestSource(t)
	base := time.Now().Add(-time.Hour)
	seedIncident(t, s, "10.0.0.1", base)
	seedIncident(t, s, "10.0.0.1", base.Add(time.Minute))

	data := fetchDashboardData(context.Background(), s, cfg)

	if data.Stats.TotalIncidents != 2 || data.Stats.UnresolvedIncidents != 2 {
		t.Fatalf("unexpected stats: %+v", data.Stats)
	}
	if len(data.Hosts) != 2 {
		t.Fatalf("expected 2 host states, got %d", len(data.Hosts))
	}
	down := data.Hosts[0]
	if !down.Down || down.Host != "10.0.0.1" {
		t.Fatalf("expected 10.0.0.1 down, got %+v", down)
	}
	if !down.Since.Equal(base.Truncate(time.Millisecond)) {
		t.Fatalf("expected down since the oldest open incident %v, got %v", base, down.Since)
	}
	if data.Hosts[1].Down {
		t.Fatal("expected 8.8.8.8 to be up")
	}
	if data.DaemonRunning {
		t.Fatal("no daemon should be running in a fresh data dir")
	}
}

func TestModel_LoadAndRender(t *testing.T) {
	s, cfg := newTestSource(t)
	seedIncident(t, s, "10.0.0.1", time.Now())

	m := newModel(s, cfg)
	if !strings.Contains(m.View(), "Loading") {
		t.Fatal("expected loading view before data arrives")
	}

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	msg := loadData(s, cfg)()
	next, _ = next.Update(msg)

	view := next.View()
	for _, want := range []string{"pingwatch", "Open Incidents", "10.0.0.1", "192.168.1.1", "stopped"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_EmptyStore(t *testing.T) {
	s, cfg := newTestSource(t)

	m := newModel(s, cfg)
	next, _ := m.Update(loadData(s, cfg)())

	view := next.View()
	if !strings.Contains(view, "No open incidents") || !strings.Contains(view, "No incidents recorded yet") {
		t.Fatalf("expected empty-state messages, got:\n%s", view)
	}
}

func TestModel_Keys(t *testing.T) {
	s, cfg := newTestSource(t)
	m := newModel(s, cfg)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected q to quit")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("expected a refresh command")
	}
	if _, ok := cmd().(dataMsg); !ok {
		t.Fatal("expected r to reload data")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("a-very-long-hostname.example.com", 10); got != "a-very-..." {
		t.Fatalf("got %q", got)
	}
}
