package logging

import (
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/traceroot-ai/traceroot-sdk/pkg/config"
)

// maxTrackedSpans bounds the per-span log counter state. When the live
// generation fills up it rotates, so memory stays bounded even for processes
// that never end their spans.
const maxTrackedSpans = 4096

// serviceHook stamps the service identity onto every record.
type serviceHook struct {
	cfg config.Config
}

// Run implements zerolog.Hook.
func (h serviceHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Str("service_name", h.cfg.ServiceName)
	e.Str("environment", h.cfg.Environment)
	e.Str("github_owner", h.cfg.GitHubOwner)
	e.Str("github_repo_name", h.cfg.GitHubRepoName)
	e.Str("github_commit_hash", h.cfg.GitHubCommitHash)
}

// traceHook stamps the active trace context onto every record, with the
// trace ID rendered in X-Ray form.
type traceHook struct{}

// Run implements zerolog.Hook.
func (traceHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	ctx := e.GetCtx()

	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return
	}

	e.Str("trace_id", XRayTraceID(spanCtx.TraceID()))
	e.Str("span_id", spanCtx.SpanID().String())
}

// spanEventHook mirrors each record onto the active span as a log.<level>
// event and maintains the span's num_<level>_logs attribute counters.
type spanEventHook struct {
	counts *spanLogCounts
}

func newSpanEventHook() *spanEventHook {
	return &spanEventHook{counts: newSpanLogCounts(maxTrackedSpans)}
}

// Run implements zerolog.Hook.
func (h *spanEventHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	span := trace.SpanFromContext(e.GetCtx())
	if !span.IsRecording() {
		return
	}

	name := levelName(level)

	span.AddEvent("log."+name, trace.WithAttributes(
		attribute.String("log.message", msg),
		attribute.String("log.level", name),
	))

	count := h.counts.increment(span.SpanContext().SpanID(), name)
	span.SetAttributes(attribute.Int64("num_"+name+"_logs", count))
}

func levelName(level zerolog.Level) string {
	switch level {
	case zerolog.WarnLevel:
		return "warning"
	case zerolog.FatalLevel:
		return "critical"
	default:
		return level.String()
	}
}

type spanCountKey struct {
	span  trace.SpanID
	level string
}

// spanLogCounts keeps per-span, per-level log counters across two rotating
// generations so the total entry count never exceeds twice the limit.
type spanLogCounts struct {
	mu       sync.Mutex
	limit    int
	current  map[spanCountKey]int64
	previous map[spanCountKey]int64
}

func newSpanLogCounts(limit int) *spanLogCounts {
	return &spanLogCounts{
		limit:   limit,
		current: make(map[spanCountKey]int64),
	}
}

func (c *spanLogCounts) increment(span trace.SpanID, level string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := spanCountKey{span: span, level: level}

	count, ok := c.current[key]
	if !ok {
		count = c.previous[key]
	}

	count++

	if _, ok := c.current[key]; !ok && len(c.current) >= c.limit {
		c.previous = c.current
		c.current = make(map[spanCountKey]int64, c.limit)
	}

	c.current[key] = count

	return count
}
