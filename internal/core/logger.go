package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// LoggingConfig controls ProductionLogger output.
type LoggingConfig struct {
	Level  string // debug|info|warn|error
	Format string // "json" or "text"
	Output string // "stdout" or "stderr"
}

// ProductionLogger is the gateway's structured logger. It writes JSON when
// LoggingConfig.Format is "json" and a compact text line otherwise (an
// empty Format means text), and optionally mirrors event counts into the
// installed MetricsSink.
type ProductionLogger struct {
	level       string
	debug       bool
	component   string
	format      string
	output      io.Writer
	metricsOn   bool
}

// NewProductionLogger builds a logger from LoggingConfig. component is the
// default component label (see ComponentAwareLogger).
func NewProductionLogger(cfg LoggingConfig, component string) Logger {
	out := io.Writer(os.Stdout)
	if cfg.Output == "stderr" {
		out = os.Stderr
	}
	format := cfg.Format
	if format == "" {
		format = "text"
	}
	l := &ProductionLogger{
		level:     strings.ToLower(cfg.Level),
		debug:     strings.ToLower(cfg.Level) == "debug",
		component: component,
		format:    format,
		output:    out,
	}
	trackLogger(l)
	return l
}

// EnableMetrics turns on best-effort event counters; called by
// SetMetricsSink once a sink is available.
func (p *ProductionLogger) EnableMetrics() { p.metricsOn = true }

func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.log("INFO", msg, fields, nil)
}
func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.log("ERROR", msg, fields, nil)
}
func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.log("WARN", msg, fields, nil)
}
func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.log("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log("INFO", msg, fields, ctx)
}
func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log("ERROR", msg, fields, ctx)
}
func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log("WARN", msg, fields, ctx)
}
func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.log("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) log(level, msg string, fields map[string]interface{}, ctx context.Context) {
	ts := time.Now().Format(time.RFC3339)

	requestID := ""
	if ctx != nil {
		if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
			requestID = rid
		}
	}

	if p.format == "json" {
		entry := map[string]interface{}{
			"timestamp": ts,
			"level":     level,
			"component": p.component,
			"message":   msg,
		}
		if requestID != "" {
			entry["request_id"] = requestID
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
	} else {
		var b strings.Builder
		if requestID != "" {
			fmt.Fprintf(&b, "[req=%s] ", requestID)
		}
		for k, v := range fields {
			fmt.Fprintf(&b, "%s=%v ", k, v)
		}
		fmt.Fprintf(p.output, "%s [%s] [%s] %s %s\n", ts, level, p.component, msg, b.String())
	}

	if p.metricsOn {
		if sink := GlobalMetricsSink(); sink != nil {
			sink.Counter("gateway.log_events", "level", level, "component", p.component)
		}
	}
}

type requestIDKey struct{}

// WithRequestID attaches a request id to ctx for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id previously attached with
// WithRequestID, or "" if none is set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
