package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging across the replication
// control plane. Use these keys consistently so log lines from the
// master, the inject path, and the client adapter can be correlated.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Replica & Message Identity
	// ========================================================================
	KeyMessageType   = "message_type"   // Wire message type: UPDATE, TC_SHARE, TC_FINAL, CONFIG, ...
	KeyReplicaID     = "replica_id"     // machine_id of the replica involved
	KeySiteID        = "site_id"        // Site the replica belongs to
	KeyGlobalConfig  = "global_config"  // global_configuration_number in effect
	KeySenderID      = "sender_id"      // Sender's replica id as seen on the wire
	KeyClientID      = "client_id"      // SCADA client/RTU identifier

	// ========================================================================
	// Ordering
	// ========================================================================
	KeyOrdNum      = "ord_num"      // Ordinal number
	KeyEventIdx    = "event_idx"    // Index of the event within its ordinal
	KeyEventTot    = "event_tot"    // Total events batched under the ordinal
	KeyIncarnation = "incarnation"  // Client incarnation
	KeySeqNum      = "seq_num"      // Sequence number within an incarnation

	// ========================================================================
	// Threshold Crypto / Queues
	// ========================================================================
	KeyShareCount  = "share_count"  // Number of signature shares collected so far
	KeyThreshold   = "threshold"    // Shares required to combine (k)
	KeyQueueDepth  = "queue_depth"  // Entries currently resident in a TC/ST queue
	KeySnapshotLen = "snapshot_len" // Byte length of a state-transfer snapshot

	// ========================================================================
	// Network / Transport
	// ========================================================================
	KeyClientIP   = "client_ip"   // Peer IP address
	KeyClientPort = "client_port" // Peer source port
	KeyOverlay    = "overlay"     // Overlay/spines path identifier
	KeySocketPath = "socket_path" // Unix domain socket path

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric error/status code
	KeyOperation  = "operation"   // Sub-operation type for complex operations
	KeyReason     = "reason"      // Human-readable reason for a validation failure
)

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ----------------------------------------------------------------------------
// Replica & Message Identity
// ----------------------------------------------------------------------------

// MessageType returns a slog.Attr for the wire message type
func MessageType(t string) slog.Attr {
	return slog.String(KeyMessageType, t)
}

// ReplicaID returns a slog.Attr for a replica's machine_id
func ReplicaID(id uint32) slog.Attr {
	return slog.Any(KeyReplicaID, id)
}

// SiteID returns a slog.Attr for a site identifier
func SiteID(id uint32) slog.Attr {
	return slog.Any(KeySiteID, id)
}

// GlobalConfig returns a slog.Attr for the global configuration number
func GlobalConfig(n uint32) slog.Attr {
	return slog.Any(KeyGlobalConfig, n)
}

// SenderID returns a slog.Attr for the sender's replica id
func SenderID(id uint32) slog.Attr {
	return slog.Any(KeySenderID, id)
}

// ClientID returns a slog.Attr for a SCADA client/RTU identifier
func ClientID(id string) slog.Attr {
	return slog.String(KeyClientID, id)
}

// ----------------------------------------------------------------------------
// Ordering
// ----------------------------------------------------------------------------

// OrdNum returns a slog.Attr for an ordinal number
func OrdNum(n uint32) slog.Attr {
	return slog.Any(KeyOrdNum, n)
}

// EventIdx returns a slog.Attr for an event index within its ordinal
func EventIdx(n uint32) slog.Attr {
	return slog.Any(KeyEventIdx, n)
}

// EventTot returns a slog.Attr for the total events batched under an ordinal
func EventTot(n uint32) slog.Attr {
	return slog.Any(KeyEventTot, n)
}

// Incarnation returns a slog.Attr for a client incarnation
func Incarnation(n uint32) slog.Attr {
	return slog.Any(KeyIncarnation, n)
}

// SeqNum returns a slog.Attr for a sequence number
func SeqNum(n uint32) slog.Attr {
	return slog.Any(KeySeqNum, n)
}

// ----------------------------------------------------------------------------
// Threshold Crypto / Queues
// ----------------------------------------------------------------------------

// ShareCount returns a slog.Attr for the number of shares collected
func ShareCount(n int) slog.Attr {
	return slog.Int(KeyShareCount, n)
}

// Threshold returns a slog.Attr for the combine threshold k
func Threshold(k int) slog.Attr {
	return slog.Int(KeyThreshold, k)
}

// QueueDepth returns a slog.Attr for a queue's resident entry count
func QueueDepth(n int) slog.Attr {
	return slog.Int(KeyQueueDepth, n)
}

// SnapshotLen returns a slog.Attr for a state-transfer snapshot length
func SnapshotLen(n int) slog.Attr {
	return slog.Int(KeySnapshotLen, n)
}

// ----------------------------------------------------------------------------
// Network / Transport
// ----------------------------------------------------------------------------

// ClientIP returns a slog.Attr for a peer IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// ClientPort returns a slog.Attr for a peer source port
func ClientPort(port int) slog.Attr {
	return slog.Int(KeyClientPort, port)
}

// Overlay returns a slog.Attr for an overlay path identifier
func Overlay(path string) slog.Attr {
	return slog.String(KeyOverlay, path)
}

// SocketPath returns a slog.Attr for a unix domain socket path
func SocketPath(path string) slog.Attr {
	return slog.String(KeySocketPath, path)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric error/status code
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Operation returns a slog.Attr for sub-operation type
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Reason returns a slog.Attr for a validation failure reason
func Reason(r string) slog.Attr {
	return slog.String(KeyReason, r)
}

// Handle formats an opaque byte identifier (digests, handles) as hex
func Handle(h []byte) slog.Attr {
	return slog.String("handle", fmt.Sprintf("%x", h))
}
