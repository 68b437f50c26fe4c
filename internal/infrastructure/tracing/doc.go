/*
Package tracing provides lightweight request tracing.

# Overview

Spans are created per relay request and per scale call, carry a ULID trace
ID through context, and are logged through zap when they finish. There is
no exporter; the log line is the trace.

# Usage

	tracer := tracing.New("relay", logger.Logger)
	defer tracer.Close()

	err := tracer.Trace(ctx, "scale.call", func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("bytes", strconv.Itoa(len(payload)))
		return call(ctx)
	})

# Performance

- Buffered span collection (1000 spans); spans are dropped when full
- Async span processing on one goroutine
*/
package tracing
