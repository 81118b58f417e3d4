package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for store operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Client attributes (control API)
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// Store layer / operation attributes
	// ========================================================================
	AttrLayer     = "store.layer"   // blockcache, zerocache, ecprotect, httpio
	AttrOperation = "store.op"      // read, write, flush, shutdown, destroy
	AttrBlockIdx  = "store.block_index"
	AttrBlockSize = "store.block_size"
	AttrNumBlocks = "store.num_blocks"

	// ========================================================================
	// Object store backend attributes
	// ========================================================================
	AttrBucket       = "storage.bucket"
	AttrPrefix       = "storage.prefix"
	AttrKey          = "storage.key"
	AttrRegion       = "storage.region"
	AttrAttempt      = "storage.attempt"
	AttrBytesRead    = "storage.bytes_read"
	AttrBytesWritten = "storage.bytes_written"

	// ========================================================================
	// Cache attributes
	// ========================================================================
	AttrCacheHit   = "cache.hit"
	AttrDirtyCount = "cache.dirty_count"

	// ========================================================================
	// Envelope attributes
	// ========================================================================
	AttrCompressed = "envelope.compressed"
	AttrEncrypted  = "envelope.encrypted"

	// ========================================================================
	// Auth attributes (control API)
	// ========================================================================
	AttrPrincipal = "auth.principal"

	// ========================================================================
	// Status attributes
	// ========================================================================
	AttrStatus    = "store.status"
	AttrErrorKind = "store.error_kind"
)

// Span names for store operations.
// Format: <layer>.<operation>
const (
	SpanBlockCacheRead  = "blockcache.read"
	SpanBlockCacheWrite = "blockcache.write"
	SpanBlockCacheFlush = "blockcache.flush"
	SpanBlockCacheEvict = "blockcache.evict"

	SpanZeroCacheRead  = "zerocache.read"
	SpanZeroCacheWrite = "zerocache.write"

	SpanECProtectRead  = "ecprotect.read"
	SpanECProtectWrite = "ecprotect.write"

	SpanHTTPIORead      = "httpio.read"
	SpanHTTPIOWrite     = "httpio.write"
	SpanHTTPIOList      = "httpio.list_blocks"
	SpanHTTPIOSurvey    = "httpio.survey_non_zero"
	SpanHTTPIODestroy   = "httpio.destroy"
	SpanHTTPIOOpen      = "httpio.open"

	SpanControlRequest = "controlapi.request"
)

// ClientIP returns an attribute for client IP address.
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Layer returns an attribute for the store layer name.
func Layer(name string) attribute.KeyValue {
	return attribute.String(AttrLayer, name)
}

// Operation returns an attribute for the store operation name.
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// BlockIndex returns an attribute for a block index.
func BlockIndex(idx uint64) attribute.KeyValue {
	return attribute.Int64(AttrBlockIdx, int64(idx))
}

// BlockSize returns an attribute for the configured block size.
func BlockSize(size int) attribute.KeyValue {
	return attribute.Int(AttrBlockSize, size)
}

// NumBlocks returns an attribute for the total block count.
func NumBlocks(n uint64) attribute.KeyValue {
	return attribute.Int64(AttrNumBlocks, int64(n))
}

// Bucket returns an attribute for the S3 bucket name.
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// Prefix returns an attribute for the key prefix.
func Prefix(p string) attribute.KeyValue {
	return attribute.String(AttrPrefix, p)
}

// StorageKey returns an attribute for the S3 object key.
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for cloud region.
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// Attempt returns an attribute for the retry attempt number.
func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

// BytesRead returns an attribute for actual bytes read.
func BytesRead(n int) attribute.KeyValue {
	return attribute.Int(AttrBytesRead, n)
}

// BytesWritten returns an attribute for actual bytes written.
func BytesWritten(n int) attribute.KeyValue {
	return attribute.Int(AttrBytesWritten, n)
}

// CacheHit returns an attribute for cache hit indicator.
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// DirtyCount returns an attribute for the current dirty block count.
func DirtyCount(n int) attribute.KeyValue {
	return attribute.Int(AttrDirtyCount, n)
}

// Compressed returns an attribute for whether a payload was compressed.
func Compressed(c bool) attribute.KeyValue {
	return attribute.Bool(AttrCompressed, c)
}

// Encrypted returns an attribute for whether a payload was encrypted.
func Encrypted(e bool) attribute.KeyValue {
	return attribute.Bool(AttrEncrypted, e)
}

// Principal returns an attribute for the authenticated principal.
func Principal(name string) attribute.KeyValue {
	return attribute.String(AttrPrincipal, name)
}

// Status returns an attribute for operation status.
func Status(status string) attribute.KeyValue {
	return attribute.String(AttrStatus, status)
}

// ErrorKind returns an attribute for a store.Kind value.
func ErrorKind(kind string) attribute.KeyValue {
	return attribute.String(AttrErrorKind, kind)
}

// StartLayerSpan starts a span for a store layer operation.
// This is a convenience function that sets the layer and operation
// attributes common to every storage-layer span.
func StartLayerSpan(ctx context.Context, layer, operation string, blockIdx uint64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Layer(layer),
		Operation(operation),
		BlockIndex(blockIdx),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, layer+"."+operation, trace.WithAttributes(allAttrs...))
}

// StartControlSpan starts a span for a control API request.
func StartControlSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Operation(operation),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "controlapi."+operation, trace.WithAttributes(allAttrs...))
}
