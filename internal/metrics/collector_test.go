package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, r *Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	return rec.Body.String()
}

func TestCounterVec_OneHeaderPerFamily(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounterVec("linkrelay_messages_total", "Handled messages", "kind", "outcome")
	c.Inc("youtube", "success")
	c.Inc("youtube", "success")
	c.Inc("instagram", "not_found")

	if got := c.Value("youtube", "success"); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}

	body := scrape(t, r)
	if n := strings.Count(body, "# TYPE linkrelay_messages_total counter"); n != 1 {
		t.Fatalf("expected one TYPE line, got %d in:\n%s", n, body)
	}
	for _, want := range []string{
		`linkrelay_messages_total{kind="youtube",outcome="success"} 2`,
		`linkrelay_messages_total{kind="instagram",outcome="not_found"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
	// Series are sorted by label values.
	if strings.Index(body, `kind="instagram"`) > strings.Index(body, `kind="youtube"`) {
		t.Fatalf("series out of order:\n%s", body)
	}
}

func TestCounterVec_UnlabelledRendersZero(t *testing.T) {
	r := NewRegistry()
	r.NewCounterVec("linkrelay_cleanup_failures_total", "Cleanup failures")
	if body := scrape(t, r); !strings.Contains(body, "linkrelay_cleanup_failures_total 0\n") {
		t.Fatalf("expected zero sample in:\n%s", body)
	}
}

func TestCounterVec_WrongLabelCountPanics(t *testing.T) {
	c := NewRegistry().NewCounterVec("x_total", "help", "kind")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	c.Inc("a", "b")
}

func TestGauge_IncDec(t *testing.T) {
	g := NewRegistry().NewGauge("in_flight", "help")
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 1 {
		t.Fatalf("expected 1, got %d", g.Value())
	}
}

func TestHistogram_Buckets(t *testing.T) {
	r := NewRegistry()
	h := r.NewHistogram("latency_seconds", "help", []float64{10, 1})
	h.Observe(0.5)
	h.Observe(5)
	h.Observe(50)

	body := scrape(t, r)
	for _, want := range []string{
		`latency_seconds_bucket{le="1"} 1`,
		`latency_seconds_bucket{le="10"} 2`,
		`latency_seconds_bucket{le="+Inf"} 3`,
		"latency_seconds_sum 55.5",
		"latency_seconds_count 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
}

type fakePool struct{ size, active, waiting int }

func (p fakePool) Size() int    { return p.size }
func (p fakePool) Active() int  { return p.active }
func (p fakePool) Waiting() int { return p.waiting }

func TestWatchPool_ExportsOccupancy(t *testing.T) {
	WatchPool(fakePool{size: 4, active: 3, waiting: 7})
	t.Cleanup(func() { WatchPool(nil) })

	body := scrape(t, Default)
	for _, want := range []string{
		"linkrelay_download_workers 4\n",
		"linkrelay_download_workers_active 3\n",
		"linkrelay_download_workers_waiting 7\n",
		"linkrelay_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
}

func TestRecordMessage_UsesDefaultRegistry(t *testing.T) {
	before := Messages.Value("instagram", "not_found")
	RecordMessage("instagram", "not_found")
	if after := Messages.Value("instagram", "not_found"); after != before+1 {
		t.Fatalf("expected counter to increase by 1, got %d -> %d", before, after)
	}
}
