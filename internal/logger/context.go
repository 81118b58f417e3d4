package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context.
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context, carried through a
// single store operation or control API request.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Layer     string    // Store layer emitting the log: blockcache, zerocache, ecprotect, httpio
	StoreOp   string    // Store operation: read, write, flush, shutdown, destroy
	ClientIP  string    // Remote client IP (control API requests)
	Principal string    // Authenticated principal (control API requests)
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a store operation.
func NewLogContext(layer string) *LogContext {
	return &LogContext{
		Layer:     layer,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		Layer:     lc.Layer,
		StoreOp:   lc.StoreOp,
		ClientIP:  lc.ClientIP,
		Principal: lc.Principal,
		StartTime: lc.StartTime,
	}
}

// WithStoreOp returns a copy with the store operation set.
func (lc *LogContext) WithStoreOp(op string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.StoreOp = op
	}
	return clone
}

// WithPrincipal returns a copy with the authenticated principal set.
func (lc *LogContext) WithPrincipal(clientIP, principal string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ClientIP = clientIP
		clone.Principal = principal
	}
	return clone
}

// WithTrace returns a copy with trace info set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
