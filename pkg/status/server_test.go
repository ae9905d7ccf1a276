package status

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/gjson"

	"logferry/pkg/engine"
	"logferry/pkg/ingest"
)

type fakeJobs struct {
	state   ingest.State
	current *engine.Report
	last    *ingest.JobResult
}

func (f *fakeJobs) State() ingest.State { return f.state }

func (f *fakeJobs) Current() (engine.Report, bool) {
	if f.current == nil {
		return engine.Report{}, false
	}
	return *f.current, true
}

func (f *fakeJobs) Last() (ingest.JobResult, bool) {
	if f.last == nil {
		return ingest.JobResult{}, false
	}
	return *f.last, true
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	s := New(&fakeJobs{state: ingest.Listening}, nil)

	rec := get(t, s, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := gjson.Parse(rec.Body.String())
	if body.Get("status").String() != "ok" {
		t.Errorf("expected status ok, got %s", rec.Body.String())
	}
	if body.Get("state").String() != "listening" {
		t.Errorf("expected state listening, got %s", body.Get("state").String())
	}
}

func TestServer_Job(t *testing.T) {
	jobs := &fakeJobs{
		state:   ingest.Streaming,
		current: &engine.Report{JobID: "live", Produced: 42},
		last: &ingest.JobResult{
			Report:   engine.Report{JobID: "prev", Committed: 7, Complete: true},
			State:    ingest.Failed,
			Err:      "sink down",
			Finished: time.Now(),
		},
	}
	s := New(jobs, nil)

	rec := get(t, s, "/api/job")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := gjson.Parse(rec.Body.String())

	checks := map[string]string{
		"state":                 "streaming",
		"current.job_id":        "live",
		"current.produced":      "42",
		"last.state":            "failed",
		"last.error":            "sink down",
		"last.report.committed": "7",
	}
	for path, want := range checks {
		if got := body.Get(path).String(); got != want {
			t.Errorf("%s: expected %q, got %q", path, want, got)
		}
	}
}

func TestServer_JobIdle(t *testing.T) {
	s := New(&fakeJobs{state: ingest.Listening}, nil)

	body := gjson.Parse(get(t, s, "/api/job").Body.String())
	if body.Get("current").Exists() || body.Get("last").Exists() {
		t.Errorf("expected no job details when idle, got %s", body.Raw)
	}
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "logferry_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	s := New(&fakeJobs{}, reg)
	rec := get(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "logferry_test_total 3") {
		t.Errorf("expected counter in output, got:\n%s", rec.Body.String())
	}
}

func TestServer_NoMetricsWithoutGatherer(t *testing.T) {
	s := New(&fakeJobs{}, nil)
	if rec := get(t, s, "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
