package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/util"
)

type stubProber struct{}

func (stubProber) Ping(ctx context.Context, host string, retries, timeoutMs int) model.ProbeResult {
	return model.ProbeFailure(host, "request timed out", time.Now())
}

func (stubProber) Trace(ctx context.Context, host string, timeoutMs int) model.DiagnosticTrace {
	return model.DiagnosticTrace{
		Host:      host,
		Hops:      []model.TraceHop{{Hop: 1, Address: "192.168.1.1"}},
		Success:   true,
		Timestamp: time.Now(),
	}
}

func testConfig(t *testing.T) *util.Config {
	t.Helper()
	cfg := util.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Hosts = []string{"10.0.0.1"}
	cfg.Interval = 3600
	cfg.Timeout = 1000
	cfg.Retries = 1
	return cfg
}

func TestCheckRunning_NoPIDFile(t *testing.T) {
	running, pid := CheckRunning(t.TempDir())
	if running || pid != 0 {
		t.Fatalf("expected not running, got running=%v pid=%d", running, pid)
	}
}

func TestCheckRunning_GarbagePIDFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, PIDFileName), []byte("not-a-pid"), 0644); err != nil {
		t.Fatal(err)
	}

	if running, _ := CheckRunning(dir); running {
		t.Fatal("garbage PID file should not count as running")
	}
	if err := SendStop(dir); err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestCheckRunning_CurrentProcess(t *testing.T) {
	dir := t.TempDir()
	if err := writePIDFile(dir); err != nil {
		t.Fatal(err)
	}

	running, pid := CheckRunning(dir)
	if !running {
		t.Fatal("expected the test process to be reported as running")
	}
	if pid != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), pid)
	}
}

func TestStatusFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	start := time.Now().Add(-90 * time.Second).Truncate(time.Second)
	mean := 12.5

	in := &StatusFile{
		Running:         true,
		PID:             4242,
		StartTime:       start,
		UpdatedAt:       start.Add(90 * time.Second),
		Hosts:           []string{"8.8.8.8", "example.com"},
		IntervalSeconds: 60,
		LastCycle: &model.CycleSummary{
			CycleID:       "c1",
			HostsChecked:  2,
			Reachable:     1,
			Unreachable:   1,
			MeanLatencyMs: &mean,
		},
	}
	if err := WriteStatusFile(dir, in); err != nil {
		t.Fatalf("WriteStatusFile: %v", err)
	}

	out, err := ReadStatusFile(dir)
	if err != nil {
		t.Fatalf("ReadStatusFile: %v", err)
	}
	if !out.Running || out.PID != 4242 || len(out.Hosts) != 2 {
		t.Fatalf("unexpected status: %+v", out)
	}
	if out.LastCycle == nil || out.LastCycle.Unreachable != 1 || *out.LastCycle.MeanLatencyMs != mean {
		t.Fatalf("last cycle not preserved: %+v", out.LastCycle)
	}
	if got := out.Uptime(); got != 90*time.Second {
		t.Fatalf("expected uptime 90s, got %v", got)
	}
}

func TestReadStatusFile_Corrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, StatusFileName), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadStatusFile(dir); err == nil {
		t.Fatal("expected an error for a corrupt status file")
	}
}

func TestDaemon_Lifecycle(t *testing.T) {
	cfg := testConfig(t)

	d, err := New(cfg, zap.NewNop(), Options{
		Prober:     stubProber{},
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.IsRunning() {
		t.Fatal("expected daemon to be running")
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}

	running, pid := CheckRunning(cfg.DataDir)
	if !running || pid != os.Getpid() {
		t.Fatalf("expected PID file for this process, got running=%v pid=%d", running, pid)
	}

	sf, err := ReadStatusFile(cfg.DataDir)
	if err != nil {
		t.Fatalf("ReadStatusFile: %v", err)
	}
	if !sf.Running || sf.LastCycle == nil {
		t.Fatalf("expected running status with a first cycle, got %+v", sf)
	}
	if sf.LastCycle.IncidentsOpened != 1 || sf.LastCycle.Stats.TotalIncidents != 1 {
		t.Fatalf("expected one incident from the first cycle, got %+v", sf.LastCycle)
	}
	if sf.Task == nil || sf.Task.Name != "check_cycle" {
		t.Fatalf("expected armed check task, got %+v", sf.Task)
	}

	d.Stop()
	d.Wait()

	if d.IsRunning() {
		t.Fatal("expected daemon to be stopped")
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, PIDFileName)); !os.IsNotExist(err) {
		t.Fatalf("expected PID file to be removed, stat err=%v", err)
	}
	sf, err = ReadStatusFile(cfg.DataDir)
	if err != nil {
		t.Fatalf("ReadStatusFile after stop: %v", err)
	}
	if sf.Running {
		t.Fatal("expected final status to report not running")
	}
}
