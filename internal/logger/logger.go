// Package logger configures the process-wide slog logger.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// Options selects the handler format and level.
type Options struct {
	JSON  bool
	Debug bool
	// Output defaults to os.Stdout.
	Output io.Writer
}

// Setup installs the default logger and returns it.
func Setup(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	hopts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if opts.Debug {
		hopts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = NewTraceHandler(slog.NewJSONHandler(out, hopts))
	} else {
		handler = NewTraceHandler(slog.NewTextHandler(out, hopts))
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

// TraceHandler stamps records with the trace and span ids of the context.
type TraceHandler struct {
	slog.Handler
}

func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}
