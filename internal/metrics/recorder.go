package metrics

import (
	"time"

	"github.com/aegislabs/promptgate/internal/resilience"
)

// Recorder is the process-wide metrics front door: every call except
// RecordSuccess appends to the bounded ring buffer and, if a Prometheus sink
// is attached, also updates its counters/gauges/histograms; RecordSuccess
// only updates the sink. The ring buffer is unconditional
// per the spec's resolved open question: metrics are always recorded, and
// a performance monitor (here, Prometheus) is an optional sink, not a gate.
type Recorder struct {
	buffer *RingBuffer
	sink   *PrometheusSink
}

// NewRecorder builds a Recorder. sink may be nil to record ring-buffer-only.
func NewRecorder(bufferSize int, sink *PrometheusSink) *Recorder {
	return &Recorder{buffer: NewRingBuffer(bufferSize), sink: sink}
}

// Buffer exposes the underlying ring buffer for inspection endpoints.
func (r *Recorder) Buffer() *RingBuffer {
	return r.buffer
}

func (r *Recorder) record(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	r.buffer.Append(rec)
}

// RecordOperationCall logs one completed pipeline dispatch.
func (r *Recorder) RecordOperationCall(operation, preset string, duration time.Duration, errMsg string) {
	r.record(Record{Type: TypeOperationCall, Operation: operation, Preset: preset, DurationMs: duration.Milliseconds(), Error: errMsg})
	if r.sink != nil {
		r.sink.Counter("gateway.operation_calls", operation)
		r.sink.Histogram("gateway.operation_duration_ms", float64(duration.Milliseconds()), operation)
	}
}

// RecordCacheResult logs a cache hit or miss for operation.
func (r *Recorder) RecordCacheResult(operation string, hit bool) {
	t := TypeCacheMiss
	if hit {
		t = TypeCacheHit
	}
	r.record(Record{Type: t, Operation: operation})
	if r.sink != nil {
		if hit {
			r.sink.Counter("gateway.cache_hits", operation)
		} else {
			r.sink.Counter("gateway.cache_misses", operation)
		}
	}
}

// RecordSuccess implements resilience.MetricsCollector.
func (r *Recorder) RecordSuccess(target string) {
	if r.sink != nil {
		r.sink.Counter("gateway.circuit_success", target)
	}
}

// RecordFailure implements resilience.MetricsCollector.
func (r *Recorder) RecordFailure(target string) {
	r.record(Record{Type: TypeRetry, Operation: target})
	if r.sink != nil {
		r.sink.Counter("gateway.circuit_failure", target)
	}
}

// RecordStateChange implements resilience.MetricsCollector.
func (r *Recorder) RecordStateChange(target string, from, to resilience.CircuitState) {
	t := TypeCircuitOpen
	if to == resilience.StateClosed {
		t = TypeCircuitClose
	}
	r.record(Record{Type: t, Operation: target})
	if r.sink != nil {
		r.sink.Gauge("gateway.circuit_state", float64(to), target)
	}
}

// RecordRejection implements resilience.MetricsCollector.
func (r *Recorder) RecordRejection(target string) {
	r.record(Record{Type: TypeCircuitOpen, Operation: target})
	if r.sink != nil {
		r.sink.Counter("gateway.circuit_rejections", target)
	}
}
