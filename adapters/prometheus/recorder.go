// Package prommetrics records messaging metrics with Prometheus collectors.
package prommetrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-messaging/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultDurationBuckets are in milliseconds, matching the duration_ms metrics.
var DefaultDurationBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Recorder implements core.MetricsRecorder. Collectors are created on first use
// and keep the label set of that first observation. Later tags outside that set
// are dropped and missing ones are recorded as empty strings.
type Recorder struct {
	registry *prometheus.Registry
	buckets  []float64

	mu         sync.Mutex
	counters   map[string]*counterVec
	histograms map[string]*histogramVec
}

type counterVec struct {
	vec    *prometheus.CounterVec
	labels []string
}

type histogramVec struct {
	vec    *prometheus.HistogramVec
	labels []string
}

type Option func(*Recorder)

func WithRegistry(registry *prometheus.Registry) Option {
	return func(r *Recorder) {
		if registry != nil {
			r.registry = registry
		}
	}
}

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		registry:   prometheus.NewRegistry(),
		buckets:    DefaultDurationBuckets,
		counters:   map[string]*counterVec{},
		histograms: map[string]*histogramVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	c, err := r.counter(name, tags)
	if err != nil {
		return
	}
	c.vec.WithLabelValues(labelValues(c.labels, tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	h, err := r.histogram(name, tags)
	if err != nil {
		return
	}
	h.vec.WithLabelValues(labelValues(h.labels, tags)...).Observe(value)
}

func (r *Recorder) counter(name string, tags map[string]string) (*counterVec, error) {
	metric := MetricName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[metric]; ok {
		return existing, nil
	}
	labels := labelNames(tags)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metric,
		Help: fmt.Sprintf("Counter for %s.", strings.TrimSpace(name)),
	}, labels)
	if err := r.registry.Register(vec); err != nil {
		return nil, err
	}
	created := &counterVec{vec: vec, labels: labels}
	r.counters[metric] = created
	return created, nil
}

func (r *Recorder) histogram(name string, tags map[string]string) (*histogramVec, error) {
	metric := MetricName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[metric]; ok {
		return existing, nil
	}
	labels := labelNames(tags)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metric,
		Help:    fmt.Sprintf("Histogram for %s.", strings.TrimSpace(name)),
		Buckets: r.buckets,
	}, labels)
	if err := r.registry.Register(vec); err != nil {
		return nil, err
	}
	created := &histogramVec{vec: vec, labels: labels}
	r.histograms[metric] = created
	return created, nil
}

// MetricName maps dotted metric names onto the Prometheus charset.
func MetricName(name string) string {
	return sanitize(strings.TrimSpace(name))
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for key := range tags {
		label := sanitize(key)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		names = append(names, label)
	}
	sort.Strings(names)
	return names
}

func labelValues(labels []string, tags map[string]string) []string {
	byLabel := make(map[string]string, len(tags))
	for key, value := range tags {
		byLabel[sanitize(key)] = value
	}
	values := make([]string, len(labels))
	for i, label := range labels {
		values[i] = byLabel[label]
	}
	return values
}

func sanitize(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
