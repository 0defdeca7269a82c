package observability

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics exports Metrics calls as Prometheus collectors. Each
// metric name is registered on first use; the label set seen first is the
// label set for the life of the process, and later calls fill missing labels
// with "".
type PrometheusMetrics struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*labeled[*prometheus.CounterVec]
	gauges     map[string]*labeled[*prometheus.GaugeVec]
	histograms map[string]*labeled[*prometheus.HistogramVec]
}

type labeled[V any] struct {
	vec    V
	labels []string
}

// NewPrometheusMetrics creates a collector set on a fresh registry that also
// carries the Go runtime and process collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &PrometheusMetrics{
		registry:   reg,
		counters:   make(map[string]*labeled[*prometheus.CounterVec]),
		gauges:     make(map[string]*labeled[*prometheus.GaugeVec]),
		histograms: make(map[string]*labeled[*prometheus.HistogramVec]),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusMetrics) Counter(name string, value int64, tags ...Tag) {
	if value < 0 {
		return
	}
	p.mu.Lock()
	c, ok := p.counters[name]
	if !ok {
		labels := labelNames(tags)
		c = &labeled[*prometheus.CounterVec]{
			vec: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: promName(name) + "_total",
				Help: name,
			}, labels),
			labels: labels,
		}
		p.registry.MustRegister(c.vec)
		p.counters[name] = c
	}
	p.mu.Unlock()
	c.vec.With(labelValues(c.labels, tags)).Add(float64(value))
}

func (p *PrometheusMetrics) Gauge(name string, value float64, tags ...Tag) {
	p.mu.Lock()
	g, ok := p.gauges[name]
	if !ok {
		labels := labelNames(tags)
		g = &labeled[*prometheus.GaugeVec]{
			vec: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: promName(name),
				Help: name,
			}, labels),
			labels: labels,
		}
		p.registry.MustRegister(g.vec)
		p.gauges[name] = g
	}
	p.mu.Unlock()
	g.vec.With(labelValues(g.labels, tags)).Set(value)
}

func (p *PrometheusMetrics) Histogram(name string, value float64, tags ...Tag) {
	p.histogram(name, promName(name), prometheus.DefBuckets, tags).Observe(value)
}

// Timing records durations in seconds.
func (p *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	buckets := []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0}
	p.histogram(name, promName(name)+"_seconds", buckets, tags).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) histogram(name, fqName string, buckets []float64, tags []Tag) prometheus.Observer {
	p.mu.Lock()
	h, ok := p.histograms[fqName]
	if !ok {
		labels := labelNames(tags)
		h = &labeled[*prometheus.HistogramVec]{
			vec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    fqName,
				Help:    name,
				Buckets: buckets,
			}, labels),
			labels: labels,
		}
		p.registry.MustRegister(h.vec)
		p.histograms[fqName] = h
	}
	p.mu.Unlock()
	return h.vec.With(labelValues(h.labels, tags))
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func labelNames(tags []Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, promName(t.Key))
	}
	sort.Strings(names)
	return names
}

func labelValues(names []string, tags []Tag) prometheus.Labels {
	labels := make(prometheus.Labels, len(names))
	for _, n := range names {
		labels[n] = ""
	}
	for _, t := range tags {
		key := promName(t.Key)
		if _, ok := labels[key]; ok {
			labels[key] = t.Value
		}
	}
	return labels
}
