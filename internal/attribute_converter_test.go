package internal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/eav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromJSONValue(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	at := time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)

	tests := []struct {
		name    string
		typ     eav.ValueType
		input   any
		want    any
		wantErr bool
	}{
		{name: "nil", typ: eav.Integer, input: nil, want: nil},
		{name: "float to integer", typ: eav.Integer, input: float64(36), want: int64(36)},
		{name: "fractional integer", typ: eav.Integer, input: 36.5, wantErr: true},
		{name: "json number integer", typ: eav.BigInteger, input: json.Number("9007199254740993"), want: int64(9007199254740993)},
		{name: "json number fraction", typ: eav.Integer, input: json.Number("1.5"), wantErr: true},
		{name: "json number float", typ: eav.Float, input: json.Number("0.25"), want: 0.25},
		{name: "string to integer", typ: eav.Integer, input: "old", wantErr: true},
		{name: "datetime", typ: eav.DateTime, input: at.Format(time.RFC3339Nano), want: at},
		{name: "bad datetime", typ: eav.DateTime, input: "yesterday", wantErr: true},
		{name: "uuid", typ: eav.UUID, input: id.String(), want: id},
		{name: "bad uuid", typ: eav.UUID, input: "xyz", wantErr: true},
		{name: "string passthrough", typ: eav.String(8), input: "Ada", want: "Ada"},
		{name: "bool passthrough", typ: eav.Boolean, input: true, want: true},
		{name: "mismatch left for descriptor", typ: eav.Boolean, input: "yes", want: "yes"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromJSONValue(tt.typ, tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if want, ok := tt.want.(time.Time); ok {
				assert.True(t, want.Equal(got.(time.Time)))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromJSONValues(t *testing.T) {
	fx := newScenarioSchemas(t)

	values, err := FromJSONValues(fx.employee, map[string]any{
		"firstname": "Ada",
		"age":       json.Number("36"),
		"salary":    10,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"firstname": "Ada", "age": int64(36), "salary": 10}, values)

	_, err = FromJSONValues(fx.employee, map[string]any{"age": "old"})
	require.Error(t, err)
	assert.True(t, eav.IsTypeMismatch(err))
	var e *eav.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "age", e.Field)
	assert.Equal(t, "Employee", e.Schema)
}

func TestToJSONValues(t *testing.T) {
	fx := newScenarioSchemas(t)
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))

	e, err := fx.badge.New(map[string]any{"code": id, "issued": at, "score": 0.5})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"code":   id.String(),
		"issued": "2024-01-02T02:04:05Z",
		"score":  0.5,
	}, ToJSONValues(e))
}
