package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/engine"
	"github.com/hamed0406/pagewatch/internal/filter"
	"github.com/hamed0406/pagewatch/internal/monitor"
	"github.com/hamed0406/pagewatch/internal/probe"
	"github.com/hamed0406/pagewatch/internal/repo/memory"
	"github.com/hamed0406/pagewatch/internal/snapshot"
	"github.com/hamed0406/pagewatch/internal/status"
)

// ---- test helpers ----

const page = `<!DOCTYPE html><html><head><title>t</title></head><body>
<div>advert</div>
<p>A paragraph with enough text in it to pass the content length check easily.</p>
</body></html>`

type fixture struct {
	api  *httptest.Server
	site *httptest.Server
	out  string
}

func setup(t *testing.T, previewRPM, previewBurst int) *fixture {
	t.Helper()
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page)
	}))
	t.Cleanup(site.Close)

	log := zap.NewNop()
	out := t.TempDir()
	store := memory.New()
	fetcher := probe.NewFetcher(log, probe.RetryPolicy{Attempts: 1}, time.Second)
	health := probe.NewHealthChecker(time.Second, time.Second)
	sv := monitor.New(log, store, fetcher, health, snapshot.NewStore(), monitor.Config{RetryDelay: time.Millisecond})
	eng := engine.New(engine.Deps{
		Logger:           log,
		Sites:            store,
		Supervisor:       sv,
		Reader:           status.NewReader(sv.IsRunning, time.Minute, log),
		Fetcher:          fetcher,
		Health:           health,
		DefaultOutputDir: out,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
	})

	api := httptest.NewServer(NewServer(log, eng).Router(nil, previewRPM, previewBurst))
	t.Cleanup(api.Close)
	return &fixture{api: api, site: site, out: out}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.api.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func wantStatus(t *testing.T, resp *http.Response, code int) {
	t.Helper()
	if resp.StatusCode != code {
		t.Fatalf("%s %s: want %d, got %d", resp.Request.Method, resp.Request.URL.Path, code, resp.StatusCode)
	}
}

// ---- tests ----

func TestHealthz(t *testing.T) {
	f := setup(t, 0, 0)
	wantStatus(t, f.do(t, http.MethodGet, "/healthz", nil), http.StatusOK)
}

func TestSites_UpsertListRemove(t *testing.T) {
	f := setup(t, 0, 0)

	resp := f.do(t, http.MethodPut, "/api/sites", map[string]any{
		"url":           "https://EXAMPLE.com/",
		"danger_level":  "High",
		"excluded_tags": []int{3, 1, 3},
	})
	wantStatus(t, resp, http.StatusOK)
	var stored domain.MonitoredSite
	decodeBody(t, resp, &stored)
	if stored.URL != "https://example.com" {
		t.Fatalf("url not normalized: %q", stored.URL)
	}
	if fmt.Sprint(stored.ExcludedElements) != "[1 3]" {
		t.Fatalf("exclusions not normalized: %v", stored.ExcludedElements)
	}
	if stored.OutputDir != f.out {
		t.Fatalf("want default output dir %q, got %q", f.out, stored.OutputDir)
	}

	resp = f.do(t, http.MethodGet, "/api/sites", nil)
	wantStatus(t, resp, http.StatusOK)
	var list []domain.MonitoredSite
	decodeBody(t, resp, &list)
	if len(list) != 1 {
		t.Fatalf("want 1 site, got %d", len(list))
	}

	wantStatus(t, f.do(t, http.MethodDelete, "/api/sites?url=https://example.com", nil), http.StatusNoContent)
	wantStatus(t, f.do(t, http.MethodDelete, "/api/sites?url=https://example.com", nil), http.StatusNotFound)
	wantStatus(t, f.do(t, http.MethodDelete, "/api/sites", nil), http.StatusBadRequest)
}

func TestSites_Invalid(t *testing.T) {
	f := setup(t, 0, 0)

	resp := f.do(t, http.MethodPut, "/api/sites", map[string]any{"url": "ftp://x", "danger_level": "Low"})
	wantStatus(t, resp, http.StatusBadRequest)

	resp = f.do(t, http.MethodPut, "/api/sites", map[string]any{"url": "https://example.com", "danger_level": "Severe"})
	wantStatus(t, resp, http.StatusBadRequest)
	var eb errorBody
	decodeBody(t, resp, &eb)
	if eb.Field != "danger_level" {
		t.Fatalf("want field danger_level, got %+v", eb)
	}
}

func TestMonitor_StartSessionsStopStatus(t *testing.T) {
	f := setup(t, 0, 0)
	wantStatus(t, f.do(t, http.MethodPut, "/api/sites", map[string]any{
		"url": f.site.URL, "danger_level": "Low",
	}), http.StatusOK)

	resp := f.do(t, http.MethodPost, "/api/monitor/start", map[string]any{
		"url": f.site.URL, "interval_seconds": 60, "duration_minutes": 5,
	})
	wantStatus(t, resp, http.StatusOK)
	var sv sessionView
	decodeBody(t, resp, &sv)
	if sv.State != domain.StateRunning || sv.IntervalSeconds != 60 || sv.DurationMinutes != 5 {
		t.Fatalf("unexpected session: %+v", sv)
	}
	if sv.Dir == "" {
		t.Fatal("session dir missing")
	}

	resp = f.do(t, http.MethodGet, "/api/monitor/sessions", nil)
	wantStatus(t, resp, http.StatusOK)
	var sessions []sessionView
	decodeBody(t, resp, &sessions)
	if len(sessions) != 1 || sessions[0].URL != f.site.URL {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}

	resp = f.do(t, http.MethodGet, "/api/status?url="+f.site.URL, nil)
	wantStatus(t, resp, http.StatusOK)
	var sum status.Summary
	decodeBody(t, resp, &sum)
	if !sum.IsActivelyMonitoring {
		t.Fatalf("want active, got %+v", sum)
	}

	resp = f.do(t, http.MethodPost, "/api/monitor/stop", map[string]any{"url": f.site.URL})
	wantStatus(t, resp, http.StatusOK)
	var stopped struct {
		Stopped bool `json:"stopped"`
	}
	decodeBody(t, resp, &stopped)
	if !stopped.Stopped {
		t.Fatal("want stopped=true")
	}
}

func TestMonitor_StartUnregisteredIsBadRequest(t *testing.T) {
	f := setup(t, 0, 0)
	resp := f.do(t, http.MethodPost, "/api/monitor/start", map[string]any{"url": "https://nobody.example"})
	wantStatus(t, resp, http.StatusBadRequest)

	resp = f.do(t, http.MethodPost, "/api/monitor/start", map[string]any{})
	wantStatus(t, resp, http.StatusBadRequest)
}

func TestMonitor_StartRejectsOverflowingDurations(t *testing.T) {
	f := setup(t, 0, 0)
	wantStatus(t, f.do(t, http.MethodPut, "/api/sites", map[string]any{
		"url": f.site.URL, "danger_level": "Low",
	}), http.StatusOK)

	resp := f.do(t, http.MethodPost, "/api/monitor/start", map[string]any{
		"url": f.site.URL, "interval_seconds": 1, "duration_minutes": int64(1) << 50,
	})
	wantStatus(t, resp, http.StatusBadRequest)
	var eb errorBody
	decodeBody(t, resp, &eb)
	if eb.Field != "duration" {
		t.Fatalf("want field duration, got %+v", eb)
	}

	resp = f.do(t, http.MethodPost, "/api/monitor/start", map[string]any{
		"url": f.site.URL, "interval_seconds": int64(1) << 40,
	})
	wantStatus(t, resp, http.StatusBadRequest)
	decodeBody(t, resp, &eb)
	if eb.Field != "interval" {
		t.Fatalf("want field interval, got %+v", eb)
	}
	if n := len(f.sessions(t)); n != 0 {
		t.Fatalf("no session should start, got %d", n)
	}
}

func (f *fixture) sessions(t *testing.T) []sessionView {
	t.Helper()
	resp := f.do(t, http.MethodGet, "/api/monitor/sessions", nil)
	wantStatus(t, resp, http.StatusOK)
	var out []sessionView
	decodeBody(t, resp, &out)
	return out
}

func TestStatus_UnknownSiteIsNotFound(t *testing.T) {
	f := setup(t, 0, 0)
	wantStatus(t, f.do(t, http.MethodGet, "/api/status?url=https://nobody.example", nil), http.StatusNotFound)

	resp := f.do(t, http.MethodGet, "/api/status", nil)
	wantStatus(t, resp, http.StatusOK)
	var all []status.Summary
	decodeBody(t, resp, &all)
	if len(all) != 0 {
		t.Fatalf("want empty, got %d", len(all))
	}
}

func TestHealth(t *testing.T) {
	f := setup(t, 0, 0)
	resp := f.do(t, http.MethodGet, "/api/health?url="+f.site.URL, nil)
	wantStatus(t, resp, http.StatusOK)
	var hr domain.HealthResult
	decodeBody(t, resp, &hr)
	if hr.Status != domain.HealthUp {
		t.Fatalf("want Up, got %+v", hr)
	}

	wantStatus(t, f.do(t, http.MethodGet, "/api/health?url=nope", nil), http.StatusBadRequest)
}

func TestPreview_ElementsFilteredAndUpstreamError(t *testing.T) {
	f := setup(t, 0, 0)

	resp := f.do(t, http.MethodGet, "/api/preview/elements?url="+f.site.URL, nil)
	wantStatus(t, resp, http.StatusOK)
	var els []filter.Element
	decodeBody(t, resp, &els)
	if len(els) == 0 || els[0].Tag != "html" {
		t.Fatalf("unexpected elements: %+v", els)
	}

	resp = f.do(t, http.MethodPost, "/api/preview/filtered", map[string]any{"url": f.site.URL, "excluded": []int{}})
	wantStatus(t, resp, http.StatusOK)
	var filtered struct {
		HTML string `json:"html"`
	}
	decodeBody(t, resp, &filtered)
	if filtered.HTML == "" {
		t.Fatal("empty html")
	}

	resp = f.do(t, http.MethodGet, "/api/preview/elements?url="+f.site.URL+"/missing", nil)
	wantStatus(t, resp, http.StatusBadGateway)
	var eb errorBody
	decodeBody(t, resp, &eb)
	if eb.Kind != string(domain.KindHTTPStatus) {
		t.Fatalf("want kind http_status, got %+v", eb)
	}
}

func TestPreview_RateLimited(t *testing.T) {
	f := setup(t, 1, 1)
	wantStatus(t, f.do(t, http.MethodGet, "/api/preview/elements?url="+f.site.URL, nil), http.StatusOK)
	wantStatus(t, f.do(t, http.MethodGet, "/api/preview/elements?url="+f.site.URL, nil), http.StatusTooManyRequests)
	// other routes are not limited
	wantStatus(t, f.do(t, http.MethodGet, "/api/sites", nil), http.StatusOK)
}
