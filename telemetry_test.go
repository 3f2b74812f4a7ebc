package eav

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedMetric struct {
	name   string
	labels map[string]string
	value  any
}

func recordTelemetry(t *testing.T) *[]recordedMetric {
	t.Helper()
	var got []recordedMetric
	RegisterTelemetryEmitter(func(_ context.Context, name string, labels map[string]string, value any) {
		got = append(got, recordedMetric{name: name, labels: labels, value: value})
	})
	t.Cleanup(func() { RegisterTelemetryEmitter(nil) })
	return &got
}

func flushRows(metrics []recordedMetric) map[string]any {
	rows := make(map[string]any)
	for _, m := range metrics {
		if m.name == MetricFlushRows {
			rows[m.labels["op"]] = m.value
		}
	}
	return rows
}

func commitOutcomes(metrics []recordedMetric) []string {
	var out []string
	for _, m := range metrics {
		if m.name == MetricCommitLatency {
			out = append(out, m.labels["outcome"])
		}
	}
	return out
}

func TestSessionTelemetry(t *testing.T) {
	ctx := context.Background()
	r, schema, storage := newSessionFixture(t)
	metrics := recordTelemetry(t)

	e, err := schema.New(map[string]any{"firstname": "Ada", "lastname": "Lovelace", "age": 36})
	require.NoError(t, err)
	s := NewSession(r, storage)
	defer s.Close(ctx)
	require.NoError(t, s.Add(e))
	require.NoError(t, s.Commit(ctx))

	assert.Equal(t, map[string]any{"insert": int64(1), "upsert": int64(3)}, flushRows(*metrics))
	assert.Equal(t, []string{"ok"}, commitOutcomes(*metrics))

	*metrics = nil
	require.NoError(t, e.Set("lastname", nil))
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, map[string]any{"orphan": int64(1)}, flushRows(*metrics))

	*metrics = nil
	storage.fail["commit"] = errors.New("serialization failure")
	require.NoError(t, s.Delete(e))
	require.Error(t, s.Commit(ctx))
	assert.Equal(t, map[string]any{"delete": int64(1)}, flushRows(*metrics))
	assert.Equal(t, []string{"error"}, commitOutcomes(*metrics))
}

func TestRegisterTelemetryEmitterNilRestoresNoop(t *testing.T) {
	RegisterTelemetryEmitter(nil)
	assert.NotPanics(t, func() { emitCommitLatency(context.Background(), "ok", 1) })
}
