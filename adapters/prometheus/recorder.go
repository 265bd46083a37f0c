// Package prometheus exports container metrics through client_golang.
package prometheus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-container/core"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "container"

// Recorder implements core.MetricsRecorder. Metric vectors are created on
// first use, keyed by sanitized name and the sorted tag keys.
type Recorder struct {
	registerer prometheus.Registerer
	namespace  string
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	onError    func(err error)
}

type RecorderOption func(*Recorder)

func WithNamespace(namespace string) RecorderOption {
	return func(r *Recorder) {
		r.namespace = sanitizeName(namespace)
	}
}

func WithBuckets(buckets []float64) RecorderOption {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// WithErrorHandler receives registration failures. They are dropped otherwise.
func WithErrorHandler(fn func(err error)) RecorderOption {
	return func(r *Recorder) {
		r.onError = fn
	}
}

func NewRecorder(registerer prometheus.Registerer, opts ...RecorderOption) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		registerer: registerer,
		namespace:  defaultNamespace,
		// duration histograms are recorded in milliseconds
		buckets:    prometheus.ExponentialBuckets(1, 2, 16),
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	keys, values := splitTags(tags)
	vec, err := r.counterVec(name, keys)
	if err != nil {
		r.report(err)
		return
	}
	vec.WithLabelValues(values...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	keys, values := splitTags(tags)
	vec, err := r.histogramVec(name, keys)
	if err != nil {
		r.report(err)
		return
	}
	vec.WithLabelValues(values...).Observe(value)
}

func (r *Recorder) counterVec(name string, labels []string) (*prometheus.CounterVec, error) {
	metricName := r.metricName(name)
	key := metricName + "|" + strings.Join(labels, ",")
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[key]; ok {
		return vec, nil
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricName,
		Help: fmt.Sprintf("Container counter %s.", name),
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	r.counters[key] = vec
	return vec, nil
}

func (r *Recorder) histogramVec(name string, labels []string) (*prometheus.HistogramVec, error) {
	metricName := r.metricName(name)
	key := metricName + "|" + strings.Join(labels, ",")
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[key]; ok {
		return vec, nil
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricName,
		Help:    fmt.Sprintf("Container histogram %s.", name),
		Buckets: r.buckets,
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	r.histograms[key] = vec
	return vec, nil
}

// metricName maps "container.invoke.total" to "container_invoke_total"
// without repeating the namespace prefix.
func (r *Recorder) metricName(name string) string {
	sanitized := sanitizeName(name)
	if r.namespace == "" || sanitized == r.namespace || strings.HasPrefix(sanitized, r.namespace+"_") {
		return sanitized
	}
	return r.namespace + "_" + sanitized
}

func (r *Recorder) report(err error) {
	if r.onError != nil && err != nil {
		r.onError(err)
	}
}

func splitTags(tags map[string]string) ([]string, []string) {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		if sanitized := sanitizeName(key); sanitized != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	labels := make([]string, len(keys))
	values := make([]string, len(keys))
	for i, key := range keys {
		labels[i] = sanitizeName(key)
		values[i] = tags[key]
	}
	return labels, values
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	b.Grow(len(name))
	for i, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '_':
			b.WriteRune(ch)
		case ch >= '0' && ch <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(ch)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
