package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// disabled satisfies Logger, Metrics, and Tracer all at once. Unlike
// otel.go's SlogLogger/OTELMetrics/OTELTracer split - which exists because
// each wraps a distinct third-party client - "telemetry is off" is a
// single configuration, so one zero-value receiver covers coordinator.New's
// default and any run where metrics/tracing were never wired in.
type disabled struct{}

// disabledSpan is the Span a disabled Tracer hands back from Start/Span.
type disabledSpan struct{}

// NewNoopLogger constructs the Logger coordinator.New falls back to when
// NewWithLogger isn't used: every call is discarded.
func NewNoopLogger() Logger { return disabled{} }

// NewNoopMetrics constructs a Metrics recorder that discards every
// counter, timer, and gauge observation.
func NewNoopMetrics() Metrics { return disabled{} }

// NewNoopTracer constructs a Tracer whose spans record nothing and whose
// context is passed through unmodified.
func NewNoopTracer() Tracer { return disabled{} }

func (disabled) Debug(context.Context, string, ...any) {}

func (disabled) Info(context.Context, string, ...any) {}

func (disabled) Warn(context.Context, string, ...any) {}

func (disabled) Error(context.Context, string, ...any) {}

func (disabled) IncCounter(string, float64, ...string) {}

func (disabled) RecordTimer(string, time.Duration, ...string) {}

func (disabled) RecordGauge(string, float64, ...string) {}

// Start returns ctx unchanged alongside a span that records nothing.
func (disabled) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, Span) {
	return ctx, disabledSpan{}
}

// Span returns a span that records nothing.
func (disabled) Span(context.Context) Span { return disabledSpan{} }

func (disabledSpan) End(...trace.SpanEndOption) {}

func (disabledSpan) AddEvent(string, ...any) {}

func (disabledSpan) SetStatus(codes.Code, string) {}

func (disabledSpan) RecordError(error, ...trace.EventOption) {}
