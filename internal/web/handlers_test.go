package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/storage"
)

// ---- test helpers ----

func setupServer(t *testing.T) (*httptest.Server, *storage.IncidentStorage) {
	t.Helper()
	db, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	store := storage.NewIncidentStorage(db, zap.NewNop())
	t.Cleanup(func() { store.Close() })

	srv := NewServer(store, zap.NewNop(), prometheus.NewRegistry(), 0)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func seed(t *testing.T, store *storage.IncidentStorage, host string, at time.Time) int64 {
	t.Helper()
	id, err := store.SaveIncident(context.Background(), &model.Incident{
		Host:       host,
		Timestamp:  at,
		PingResult: model.ProbeFailure(host, "timeout", at),
		DiagnosticTrace: &model.DiagnosticTrace{
			Host:      host,
			Hops:      []model.TraceHop{{Hop: 1, Address: "192.168.1.1"}, {Hop: 2, TimedOut: true}},
			Success:   true,
			Timestamp: at,
		},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return id
}

func do(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

// ---- tests ----

func TestHealth(t *testing.T) {
	ts, _ := setupServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/api/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
}

func TestListIncidents(t *testing.T) {
	ts, store := setupServer(t)
	now := time.Now()
	seed(t, store, "a", now.Add(-2*time.Minute))
	seed(t, store, "b", now.Add(-time.Minute))
	seed(t, store, "a", now)

	resp := do(t, http.MethodGet, ts.URL+"/api/incidents?limit=2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	got := decode[[]model.Incident](t, resp)
	if len(got) != 2 || got[0].Host != "a" || got[1].Host != "b" {
		t.Fatalf("unexpected incidents %+v", got)
	}
	if got[0].DiagnosticTrace == nil || len(got[0].DiagnosticTrace.Hops) != 2 {
		t.Fatalf("trace hops missing: %+v", got[0].DiagnosticTrace)
	}

	byHost := decode[[]model.Incident](t, do(t, http.MethodGet, ts.URL+"/api/incidents?host=a"))
	if len(byHost) != 2 {
		t.Fatalf("expected 2 incidents for host a, got %d", len(byHost))
	}

	pathHost := decode[[]model.Incident](t, do(t, http.MethodGet, ts.URL+"/api/incidents/host/b"))
	if len(pathHost) != 1 || pathHost[0].Host != "b" {
		t.Fatalf("unexpected incidents for host b: %+v", pathHost)
	}

	empty := decode[[]model.Incident](t, do(t, http.MethodGet, ts.URL+"/api/incidents/host/nonexistent-host"))
	if len(empty) != 0 {
		t.Fatalf("expected empty list, got %d", len(empty))
	}
}

func TestListIncidents_BadLimit(t *testing.T) {
	ts, _ := setupServer(t)
	for _, q := range []string{"limit=abc", "limit=-1"} {
		resp := do(t, http.MethodGet, ts.URL+"/api/incidents?"+q)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: want 400, got %d", q, resp.StatusCode)
		}
	}

	resp := do(t, http.MethodGet, ts.URL+"/api/incidents?limit=0")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("limit=0: want 200, got %d", resp.StatusCode)
	}
	if got := decode[[]model.Incident](t, resp); len(got) != 0 {
		t.Fatalf("limit=0 should return nothing, got %d", len(got))
	}
}

func TestGetIncident(t *testing.T) {
	ts, store := setupServer(t)
	id := seed(t, store, "a", time.Now())

	resp := do(t, http.MethodGet, ts.URL+"/api/incidents/"+itoa(id))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	if got := decode[model.Incident](t, resp); got.ID != id {
		t.Fatalf("got id %d, want %d", got.ID, id)
	}

	if resp := do(t, http.MethodGet, ts.URL+"/api/incidents/9999"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing id: want 404, got %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, ts.URL+"/api/incidents/abc"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed id: want 400, got %d", resp.StatusCode)
	}
}

func TestLatestIncident(t *testing.T) {
	ts, store := setupServer(t)

	if resp := do(t, http.MethodGet, ts.URL+"/api/incidents/latest"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("empty store: want 404, got %d", resp.StatusCode)
	}

	seed(t, store, "old", time.Now().Add(-time.Hour))
	seed(t, store, "new", time.Now())

	got := decode[model.Incident](t, do(t, http.MethodGet, ts.URL+"/api/incidents/latest"))
	if got.Host != "new" {
		t.Fatalf("latest host = %s, want new", got.Host)
	}
}

func TestResolveIncident(t *testing.T) {
	ts, store := setupServer(t)
	id := seed(t, store, "a", time.Now())
	other := seed(t, store, "b", time.Now())

	resp := do(t, http.MethodPut, ts.URL+"/api/incidents/"+itoa(id)+"/resolve")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["changed"] != true {
		t.Fatalf("expected changed=true, got %v", body)
	}

	again := decode[map[string]any](t, do(t, http.MethodPost, ts.URL+"/api/incidents/"+itoa(id)+"/resolve"))
	if again["changed"] != false {
		t.Fatalf("expected changed=false on second resolve, got %v", again)
	}

	if resp := do(t, http.MethodPut, ts.URL+"/api/incidents/9999/resolve"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing id: want 404, got %d", resp.StatusCode)
	}

	open := decode[[]model.Incident](t, do(t, http.MethodGet, ts.URL+"/api/incidents/unresolved"))
	if len(open) != 1 || open[0].ID != other {
		t.Fatalf("unexpected unresolved incidents %+v", open)
	}
}

func TestStatisticsAndClear(t *testing.T) {
	ts, store := setupServer(t)
	a1 := seed(t, store, "A", time.Now())
	seed(t, store, "B", time.Now())
	seed(t, store, "A", time.Now())
	if _, err := store.MarkIncidentResolved(context.Background(), a1); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	stats := decode[model.Statistics](t, do(t, http.MethodGet, ts.URL+"/api/statistics"))
	want := model.Statistics{TotalIncidents: 3, UnresolvedIncidents: 2, HostsAffected: 2}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}

	cleared := decode[map[string]int64](t, do(t, http.MethodDelete, ts.URL+"/api/incidents"))
	if cleared["deleted"] != 3 {
		t.Fatalf("expected 3 deleted, got %v", cleared)
	}

	after := decode[model.Statistics](t, do(t, http.MethodGet, ts.URL+"/api/statistics"))
	if after != (model.Statistics{}) {
		t.Fatalf("expected zero stats after clear, got %+v", after)
	}
}

func TestClearIncidents_StoreFailure(t *testing.T) {
	ts, store := setupServer(t)
	store.Close()

	if resp := do(t, http.MethodDelete, ts.URL+"/api/incidents"); resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", resp.StatusCode)
	}
	// reads degrade instead of failing
	if resp := do(t, http.MethodGet, ts.URL+"/api/incidents"); resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
}

func TestDownloadReport(t *testing.T) {
	ts, store := setupServer(t)
	seed(t, store, "10.0.0.1", time.Now().Add(-time.Minute))

	resp := do(t, http.MethodGet, ts.URL+"/api/report?last=1h")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "### 10.0.0.1") {
		t.Errorf("report missing host section:\n%s", body)
	}

	if resp := do(t, http.MethodGet, ts.URL+"/api/report?last=never"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad window: want 400, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := setupServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
