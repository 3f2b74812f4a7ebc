package eav

import (
	"context"
	"sync"
)

// TelemetryEmitter receives session measurements. Service wiring may register
// an OpenTelemetry-backed emitter or a test stub.
type TelemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

// Measurement names.
const (
	MetricFlushRows     = "eav_flush_rows"
	MetricCommitLatency = "eav_commit_latency_ms"
)

var (
	teleMu   sync.Mutex
	teleImpl TelemetryEmitter = func(context.Context, string, map[string]string, any) {}
)

// RegisterTelemetryEmitter replaces the emitter. A nil fn restores the no-op.
func RegisterTelemetryEmitter(fn TelemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(context.Context, string, map[string]string, any) {}
		return
	}
	teleImpl = fn
}

func emit(ctx context.Context, name string, labels map[string]string, value any) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, name, labels, value)
}

// emitFlushRows records the number of rows one flush wrote per operation:
// insert, upsert, orphan or delete.
func emitFlushRows(ctx context.Context, op string, rows int) {
	if rows == 0 {
		return
	}
	emit(ctx, MetricFlushRows, map[string]string{"op": op}, int64(rows))
}

// emitCommitLatency records how long a Commit took, labelled ok or error.
func emitCommitLatency(ctx context.Context, outcome string, ms int64) {
	emit(ctx, MetricCommitLatency, map[string]string{"outcome": outcome}, ms)
}
