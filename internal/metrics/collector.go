// Package metrics renders linkrelay's relay counters in the Prometheus text
// exposition format.
package metrics

import (
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Registry holds metrics in registration order.
type Registry struct {
	start   time.Time
	mu      sync.Mutex
	metrics []metric
}

type metric interface {
	write(w io.Writer)
}

func NewRegistry() *Registry {
	return &Registry{start: time.Now()}
}

func (r *Registry) register(m metric) {
	r.mu.Lock()
	r.metrics = append(r.metrics, m)
	r.mu.Unlock()
}

// Uptime returns how long the registry has existed.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.start)
}

// CounterVec is a counter family sharing one name and label set. A family
// without labels has a single series that is always rendered.
type CounterVec struct {
	name   string
	help   string
	labels []string
	mu     sync.Mutex
	series map[string]*atomic.Int64
}

func (r *Registry) NewCounterVec(name, help string, labels ...string) *CounterVec {
	c := &CounterVec{name: name, help: help, labels: labels, series: make(map[string]*atomic.Int64)}
	if len(labels) == 0 {
		c.get(nil)
	}
	r.register(c)
	return c
}

// Inc adds one to the series named by values, given in label order.
func (c *CounterVec) Inc(values ...string) { c.get(values).Add(1) }

// Value returns the current count of the series named by values.
func (c *CounterVec) Value(values ...string) int64 { return c.get(values).Load() }

func (c *CounterVec) get(values []string) *atomic.Int64 {
	if len(values) != len(c.labels) {
		panic(fmt.Sprintf("metrics: %s wants %d label values, got %d", c.name, len(c.labels), len(values)))
	}
	key := strings.Join(values, "\xff")
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.series[key]
	if !ok {
		v = new(atomic.Int64)
		c.series[key] = v
	}
	return v
}

func (c *CounterVec) write(w io.Writer) {
	header(w, c.name, c.help, "counter")
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range slices.Sorted(maps.Keys(c.series)) {
		fmt.Fprintf(w, "%s%s %d\n", c.name, labelPairs(c.labels, key), c.series[key].Load())
	}
}

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

func (r *Registry) NewGauge(name, help string) *Gauge {
	g := &Gauge{name: name, help: help}
	r.register(g)
	return g
}

func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

func (g *Gauge) write(w io.Writer) {
	header(w, g.name, g.help, "gauge")
	fmt.Fprintf(w, "%s %d\n", g.name, g.Value())
}

// gaugeFunc is a gauge read at scrape time.
type gaugeFunc struct {
	name string
	help string
	fn   func() int64
}

func (r *Registry) NewGaugeFunc(name, help string, fn func() int64) {
	r.register(&gaugeFunc{name: name, help: help, fn: fn})
}

func (g *gaugeFunc) write(w io.Writer) {
	header(w, g.name, g.help, "gauge")
	fmt.Fprintf(w, "%s %d\n", g.name, g.fn())
}

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

func (r *Registry) NewHistogram(name, help string, bounds []float64) *Histogram {
	bounds = slices.Clone(bounds)
	sort.Float64s(bounds)
	h := &Histogram{name: name, help: help, bounds: bounds, buckets: make([]int64, len(bounds))}
	r.register(h)
	return h
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

func (h *Histogram) write(w io.Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	header(w, h.name, h.help, "histogram")
	for i, le := range h.bounds {
		fmt.Fprintf(w, "%s_bucket{le=\"%g\"} %d\n", h.name, le, h.buckets[i])
	}
	fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", h.name, h.count)
	fmt.Fprintf(w, "%s_sum %s\n", h.name, formatFloat(h.sum))
	fmt.Fprintf(w, "%s_count %d\n", h.name, h.count)
}

func header(w io.Writer, name, help, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func labelPairs(names []string, key string) string {
	if len(names) == 0 {
		return ""
	}
	values := strings.Split(key, "\xff")
	pairs := make([]string, len(names))
	for i, n := range names {
		pairs[i] = fmt.Sprintf("%s=%q", n, values[i])
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

func formatFloat(v float64) string {
	if math.IsInf(v, 1) {
		return "+Inf"
	}
	return fmt.Sprintf("%g", v)
}

// Handler renders every registered metric, uptime first.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		header(&sb, "linkrelay_uptime_seconds", "Time since start in seconds", "gauge")
		fmt.Fprintf(&sb, "linkrelay_uptime_seconds %d\n", int64(r.Uptime().Seconds()))

		r.mu.Lock()
		ms := slices.Clone(r.metrics)
		r.mu.Unlock()
		for _, m := range ms {
			m.write(&sb)
		}
		fmt.Fprint(w, sb.String())
	}
}

// Default is the registry served by the gateway.
var Default = NewRegistry()

var (
	Messages         = Default.NewCounterVec("linkrelay_messages_total", "Handled messages by source kind and outcome", "kind", "outcome")
	CleanupFailures  = Default.NewCounterVec("linkrelay_cleanup_failures_total", "Temp files that could not be removed")
	MessagesInFlight = Default.NewGauge("linkrelay_messages_in_flight", "Messages currently being handled")
	DownloadLatency  = Default.NewHistogram("linkrelay_download_seconds", "Video download time in seconds, including the wait for a worker",
		[]float64{1, 5, 10, 30, 60, 120, 300, 600})
)

// PoolStats is the occupancy a download worker pool reports.
type PoolStats interface {
	Size() int
	Active() int
	Waiting() int
}

var (
	poolMu sync.Mutex
	pool   PoolStats
)

func init() {
	Default.NewGaugeFunc("linkrelay_download_workers", "Download worker slots", poolStat(PoolStats.Size))
	Default.NewGaugeFunc("linkrelay_download_workers_active", "Downloads currently running", poolStat(PoolStats.Active))
	Default.NewGaugeFunc("linkrelay_download_workers_waiting", "Downloads waiting for a worker slot", poolStat(PoolStats.Waiting))
}

// WatchPool makes p the pool behind the download worker gauges.
func WatchPool(p PoolStats) {
	poolMu.Lock()
	pool = p
	poolMu.Unlock()
}

func poolStat(read func(PoolStats) int) func() int64 {
	return func() int64 {
		poolMu.Lock()
		defer poolMu.Unlock()
		if pool == nil {
			return 0
		}
		return int64(read(pool))
	}
}

// RecordMessage counts one handled message by source kind and outcome.
func RecordMessage(kind, outcome string) {
	Messages.Inc(kind, outcome)
}
