package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for a single ITRC
// message as it moves through validation, ordering, and delivery.
type LogContext struct {
	TraceID       string    // OpenTelemetry trace ID
	SpanID        string    // OpenTelemetry span ID
	MessageType   string    // Wire message type (UPDATE, TC_SHARE, TC_FINAL, CONFIG, ...)
	ReplicaID     uint32    // Originating or local replica (machine_id)
	SiteID        uint32    // Site the replica belongs to
	ClientIP      string    // Peer address (without port)
	GlobalConfig  uint32    // global_configuration_number in effect
	Incarnation   uint32    // Client incarnation, when applicable
	StartTime     time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given peer address
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithMessageType returns a copy with the message type set
func (lc *LogContext) WithMessageType(mt string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.MessageType = mt
	}
	return clone
}

// WithReplica returns a copy with replica/site identity set
func (lc *LogContext) WithReplica(replicaID, siteID uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ReplicaID = replicaID
		clone.SiteID = siteID
	}
	return clone
}

// WithConfig returns a copy with the global configuration number set
func (lc *LogContext) WithConfig(globalConfig uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.GlobalConfig = globalConfig
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
