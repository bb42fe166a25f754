package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements core.MetricsSink, lazily creating one
// instrument per metric name the first time it is used, the same
// create-on-first-use-under-a-mutex idiom the rest of the stack's
// telemetry layer uses for its own lazily cached instruments.
type PrometheusSink struct {
	registry *prometheus.Registry

	mu         sync.RWMutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusSink builds a sink backed by its own registry so the gateway
// never shares global Prometheus state with a library it imports.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry exposes the underlying registry so an HTTP handler can serve it.
func (s *PrometheusSink) Registry() *prometheus.Registry {
	return s.registry
}

func (s *PrometheusSink) Counter(name string, labels ...string) {
	s.counterVec(name, len(labels)).WithLabelValues(labels...).Inc()
}

func (s *PrometheusSink) Gauge(name string, value float64, labels ...string) {
	s.gaugeVec(name, len(labels)).WithLabelValues(labels...).Set(value)
}

func (s *PrometheusSink) Histogram(name string, value float64, labels ...string) {
	s.histogramVec(name, len(labels)).WithLabelValues(labels...).Observe(value)
}

func (s *PrometheusSink) counterVec(name string, numLabels int) *prometheus.CounterVec {
	s.mu.RLock()
	v, ok := s.counters[name]
	s.mu.RUnlock()
	if ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok = s.counters[name]; ok {
		return v
	}
	v = prometheus.NewCounterVec(prometheus.CounterOpts{Name: sanitizeMetricName(name), Help: name}, labelNames(numLabels))
	s.registry.MustRegister(v)
	s.counters[name] = v
	return v
}

func (s *PrometheusSink) gaugeVec(name string, numLabels int) *prometheus.GaugeVec {
	s.mu.RLock()
	v, ok := s.gauges[name]
	s.mu.RUnlock()
	if ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok = s.gauges[name]; ok {
		return v
	}
	v = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: sanitizeMetricName(name), Help: name}, labelNames(numLabels))
	s.registry.MustRegister(v)
	s.gauges[name] = v
	return v
}

func (s *PrometheusSink) histogramVec(name string, numLabels int) *prometheus.HistogramVec {
	s.mu.RLock()
	v, ok := s.histograms[name]
	s.mu.RUnlock()
	if ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok = s.histograms[name]; ok {
		return v
	}
	v = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: sanitizeMetricName(name), Help: name}, labelNames(numLabels))
	s.registry.MustRegister(v)
	s.histograms[name] = v
	return v
}

func labelNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = labelName(i)
	}
	return names
}

func labelName(i int) string {
	return "label_" + string(rune('a'+i))
}

// sanitizeMetricName replaces characters Prometheus disallows in metric
// names (dots are common in our call sites, e.g. "gateway.log_events").
func sanitizeMetricName(name string) string {
	out := make([]rune, len(name))
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			out[i] = r
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
