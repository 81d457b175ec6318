// Package tracer is a small tracing abstraction for the provider framework.
// It keeps the engine and providers off the OpenTelemetry APIs directly;
// production wires the OTel adapter, tests use the no-op tracer.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks the span as failed.
	// Call exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashAddress returns a short SHA-256 hash of a wallet address so traces can
// be correlated without recording the address itself.
func HashAddress(address string) string {
	if address == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(address))
	return hex.EncodeToString(hash[:8])
}

// Span names used by the provider framework.
const (
	SpanVerifyTypes    = "providers.verify_types"
	SpanProviderVerify = "providers.verify"
	SpanUpstreamCall   = "providers.upstream.call"
)

// Attribute keys used by the provider framework.
const (
	AttrProviderType = "provider.type"
	AttrTypeCount    = "request.type_count"
	AttrAddress      = "request.address_hash"
	AttrContextHit   = "context.hit"
)
