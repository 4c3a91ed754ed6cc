package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for replication operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Peer attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"
	AttrClientPort = "client.port"

	// ========================================================================
	// Replica & message attributes
	// ========================================================================
	AttrReplicaID    = "itrc.replica_id"
	AttrSiteID       = "itrc.site_id"
	AttrMessageType  = "itrc.message_type"
	AttrGlobalConfig = "itrc.global_config"
	AttrClientID     = "itrc.client_id"

	// ========================================================================
	// Ordering attributes
	// ========================================================================
	AttrOrdNum      = "itrc.ord_num"
	AttrEventIdx    = "itrc.event_idx"
	AttrEventTot    = "itrc.event_tot"
	AttrIncarnation = "itrc.incarnation"
	AttrSeqNum      = "itrc.seq_num"

	// ========================================================================
	// Threshold crypto / queue attributes
	// ========================================================================
	AttrShareCount  = "itrc.share_count"
	AttrThreshold   = "itrc.threshold"
	AttrQueueDepth  = "itrc.queue_depth"
	AttrSnapshotLen = "itrc.snapshot_len"

	// ========================================================================
	// Status / error attributes
	// ========================================================================
	AttrStatus    = "itrc.status"
	AttrStatusMsg = "itrc.status_msg"
	AttrReason    = "itrc.reason"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// ========================================================================
	// Master ordering loop
	// ========================================================================
	SpanMasterRequest   = "master.request"
	SpanMasterOrder     = "master.order"
	SpanMasterDeliver   = "master.deliver"
	SpanMasterValidate  = "master.validate"
	SpanMasterReconfig  = "master.reconfig"

	// ========================================================================
	// Threshold-share collection
	// ========================================================================
	SpanTCInsert   = "tcqueue.insert"
	SpanTCCombine  = "tcqueue.combine"
	SpanTCDeliver  = "tcqueue.deliver"
	SpanSTInsert   = "stqueue.insert"
	SpanSTApply    = "stqueue.apply"

	// ========================================================================
	// Injection / client paths
	// ========================================================================
	SpanInjectSubmit  = "inject.submit"
	SpanClientRequest = "client.request"
	SpanClientReply   = "client.reply"

	// ========================================================================
	// Reconfiguration
	// ========================================================================
	SpanReconfigPropose = "reconfig.propose"
	SpanReconfigApply   = "reconfig.apply"
	SpanReconfigReset   = "reconfig.reset"
)

// ClientIP returns an attribute for the peer IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for the full peer address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// ReplicaID returns an attribute for a replica's machine_id
func ReplicaID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrReplicaID, int64(id))
}

// SiteID returns an attribute for a site identifier
func SiteID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrSiteID, int64(id))
}

// MessageType returns an attribute for the wire message type
func MessageType(t string) attribute.KeyValue {
	return attribute.String(AttrMessageType, t)
}

// GlobalConfig returns an attribute for the global configuration number
func GlobalConfig(n uint32) attribute.KeyValue {
	return attribute.Int64(AttrGlobalConfig, int64(n))
}

// ClientID returns an attribute for a SCADA client identifier
func ClientID(id string) attribute.KeyValue {
	return attribute.String(AttrClientID, id)
}

// OrdNum returns an attribute for an ordinal number
func OrdNum(n uint32) attribute.KeyValue {
	return attribute.Int64(AttrOrdNum, int64(n))
}

// EventIdx returns an attribute for an event index
func EventIdx(n uint32) attribute.KeyValue {
	return attribute.Int64(AttrEventIdx, int64(n))
}

// EventTot returns an attribute for the total events under an ordinal
func EventTot(n uint32) attribute.KeyValue {
	return attribute.Int64(AttrEventTot, int64(n))
}

// Incarnation returns an attribute for a client incarnation
func Incarnation(n uint32) attribute.KeyValue {
	return attribute.Int64(AttrIncarnation, int64(n))
}

// SeqNum returns an attribute for a client sequence number
func SeqNum(n uint32) attribute.KeyValue {
	return attribute.Int64(AttrSeqNum, int64(n))
}

// ShareCount returns an attribute for the number of shares collected
func ShareCount(n int) attribute.KeyValue {
	return attribute.Int(AttrShareCount, n)
}

// Threshold returns an attribute for the combine threshold k
func Threshold(k int) attribute.KeyValue {
	return attribute.Int(AttrThreshold, k)
}

// QueueDepth returns an attribute for a queue's resident entry count
func QueueDepth(n int) attribute.KeyValue {
	return attribute.Int(AttrQueueDepth, n)
}

// SnapshotLen returns an attribute for a state-transfer snapshot length
func SnapshotLen(n int) attribute.KeyValue {
	return attribute.Int(AttrSnapshotLen, n)
}

// Status returns an attribute for an operation status code
func Status(status int) attribute.KeyValue {
	return attribute.Int(AttrStatus, status)
}

// StatusMsg returns an attribute for a human-readable status message
func StatusMsg(msg string) attribute.KeyValue {
	return attribute.String(AttrStatusMsg, msg)
}

// Reason returns an attribute for a validation failure reason
func Reason(r string) attribute.KeyValue {
	return attribute.String(AttrReason, r)
}

// Digest formats an opaque byte digest/signature as hex for span attributes
func Digest(key string, b []byte) attribute.KeyValue {
	return attribute.String(key, fmt.Sprintf("%x", b))
}

// StartMasterSpan starts a span for a master ordering-loop operation.
func StartMasterSpan(ctx context.Context, op string, ordNum uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{OrdNum(ordNum)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, "master."+op, trace.WithAttributes(allAttrs...))
}

// StartQueueSpan starts a span for a TC/ST queue operation.
func StartQueueSpan(ctx context.Context, queue, op string, ordNum uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{OrdNum(ordNum)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, queue+"."+op, trace.WithAttributes(allAttrs...))
}

// StartClientSpan starts a span for a client-facing request/reply operation.
func StartClientSpan(ctx context.Context, op string, clientID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{ClientID(clientID)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, "client."+op, trace.WithAttributes(allAttrs...))
}

// StartReconfigSpan starts a span for a reconfiguration operation.
func StartReconfigSpan(ctx context.Context, op string, globalConfig uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{GlobalConfig(globalConfig)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, "reconfig."+op, trace.WithAttributes(allAttrs...))
}
