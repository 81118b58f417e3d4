package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the storage stack.
// Use these keys consistently across all log statements so aggregation
// and querying works the same way regardless of which layer emitted
// the record.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Store Layer & Operation
	// ========================================================================
	KeyLayer     = "layer"       // Store layer: blockcache, zerocache, ecprotect, httpio
	KeyStoreOp   = "store_op"    // Operation name: read, write, flush, shutdown, destroy
	KeyBlockIdx  = "block_index" // Block index within the device
	KeyBlockSize = "block_size"  // Configured block size in bytes
	KeyNumBlocks = "num_blocks"  // Total number of blocks in the device

	// ========================================================================
	// Object Store Backend (httpio)
	// ========================================================================
	KeyBucket     = "bucket"      // S3 bucket name
	KeyPrefix     = "prefix"      // Key prefix for this store
	KeyObjectKey  = "object_key"  // Full object key
	KeyRegion     = "region"      // Cloud region
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// Cache Layers (blockcache, zerocache, ecprotect)
	// ========================================================================
	KeyCacheHit      = "cache_hit"      // Cache hit indicator
	KeyDirtyCount    = "dirty_count"    // Current number of dirty blocks awaiting write-back
	KeyCacheCapacity = "cache_capacity" // Maximum cache capacity in blocks
	KeyEvicted       = "evicted"        // Number of entries evicted

	// ========================================================================
	// Envelope (compression / encryption)
	// ========================================================================
	KeyCompressed  = "compressed"   // Whether the payload was compressed on the wire
	KeyEncrypted   = "encrypted"    // Whether the payload was encrypted on the wire
	KeyPayloadSize = "payload_size" // Size of the payload after encode

	// ========================================================================
	// Control API
	// ========================================================================
	KeyClientIP  = "client_ip" // Remote client IP address
	KeyPrincipal = "principal" // Authenticated principal (from JWT subject)
	KeyRequestID = "request_id"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorKind  = "error_kind"  // store.Kind of a returned error
	KeyBytes      = "bytes"       // Bytes read or written
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Layer returns a slog.Attr for the store layer emitting the record.
func Layer(name string) slog.Attr {
	return slog.String(KeyLayer, name)
}

// StoreOp returns a slog.Attr for the store operation name.
func StoreOp(op string) slog.Attr {
	return slog.String(KeyStoreOp, op)
}

// BlockIndex returns a slog.Attr for a block index.
func BlockIndex(idx uint64) slog.Attr {
	return slog.Uint64(KeyBlockIdx, idx)
}

// BlockSize returns a slog.Attr for the configured block size.
func BlockSize(size int) slog.Attr {
	return slog.Int(KeyBlockSize, size)
}

// NumBlocks returns a slog.Attr for the total block count.
func NumBlocks(n uint64) slog.Attr {
	return slog.Uint64(KeyNumBlocks, n)
}

// Bucket returns a slog.Attr for the S3 bucket name.
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Prefix returns a slog.Attr for the key prefix.
func Prefix(p string) slog.Attr {
	return slog.String(KeyPrefix, p)
}

// ObjectKey returns a slog.Attr for a full object key.
func ObjectKey(k string) slog.Attr {
	return slog.String(KeyObjectKey, k)
}

// Region returns a slog.Attr for the cloud region.
func Region(r string) slog.Attr {
	return slog.String(KeyRegion, r)
}

// Attempt returns a slog.Attr for the retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for the maximum retry attempts.
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// CacheHit returns a slog.Attr for a cache hit indicator.
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// DirtyCount returns a slog.Attr for the current dirty block count.
func DirtyCount(n int) slog.Attr {
	return slog.Int(KeyDirtyCount, n)
}

// CacheCapacity returns a slog.Attr for the maximum cache capacity.
func CacheCapacity(n int) slog.Attr {
	return slog.Int(KeyCacheCapacity, n)
}

// Evicted returns a slog.Attr for the number of entries evicted.
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// Compressed returns a slog.Attr for whether a payload was compressed.
func Compressed(c bool) slog.Attr {
	return slog.Bool(KeyCompressed, c)
}

// Encrypted returns a slog.Attr for whether a payload was encrypted.
func Encrypted(e bool) slog.Attr {
	return slog.Bool(KeyEncrypted, e)
}

// PayloadSize returns a slog.Attr for the encoded payload size.
func PayloadSize(n int) slog.Attr {
	return slog.Int(KeyPayloadSize, n)
}

// ClientIP returns a slog.Attr for the remote client IP address.
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// Principal returns a slog.Attr for the authenticated principal.
func Principal(name string) slog.Attr {
	return slog.String(KeyPrincipal, name)
}

// RequestID returns a slog.Attr for a request identifier.
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorKind returns a slog.Attr for a store.Kind value rendered as a string.
func ErrorKind(kind string) slog.Attr {
	return slog.String(KeyErrorKind, kind)
}

// Bytes returns a slog.Attr for a byte count.
func Bytes(n int) slog.Attr {
	return slog.Int(KeyBytes, n)
}
