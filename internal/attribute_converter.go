package internal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/eav"
)

// FromJSONValue converts a value decoded by encoding/json into the Go
// representation of t. JSON numbers arrive as float64 (or json.Number),
// timestamps and UUIDs as strings. A nil value stays nil.
func FromJSONValue(t eav.ValueType, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if n, ok := value.(json.Number); ok {
		switch t.Kind {
		case eav.KindInteger, eav.KindBigInteger:
			i, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("convert to integer: %w", err)
			}
			return i, nil
		default:
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("convert to float: %w", err)
			}
			value = f
		}
	}

	switch t.Kind {
	case eav.KindInteger, eav.KindBigInteger:
		i, err := toInt64(value)
		if err != nil {
			return nil, fmt.Errorf("convert to integer: %w", err)
		}
		return i, nil

	case eav.KindDateTime:
		s, ok := value.(string)
		if !ok {
			return value, nil
		}
		tm, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("convert to time: %w", err)
		}
		return tm, nil

	case eav.KindUUID:
		if _, ok := value.(string); !ok {
			return value, nil
		}
		id, ok := toUUID(value)
		if !ok {
			return nil, fmt.Errorf("convert to uuid: invalid value %v", value)
		}
		return id, nil

	default:
		// strings, floats and booleans already have their JSON shape;
		// anything else is left for the descriptor to reject.
		return value, nil
	}
}

// FromJSONValues converts a request payload into field values for schema.
// Unknown keys are passed through so the schema reports them.
func FromJSONValues(schema *eav.Schema, payload map[string]any) (map[string]any, error) {
	values := make(map[string]any, len(payload))
	for name, raw := range payload {
		desc, ok := schema.Field(name)
		if !ok {
			values[name] = raw
			continue
		}
		value, err := FromJSONValue(desc.ValueType(), raw)
		if err != nil {
			return nil, eav.NewValueMismatchError(name, desc.ValueType(), raw).
				WithSchema(schema.Name()).
				WithCause(err)
		}
		values[name] = value
	}
	return values, nil
}

// ToJSONValue renders a stored value in its JSON-friendly form.
func ToJSONValue(value any) any {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case uuid.UUID:
		return v.String()
	default:
		return v
	}
}

// ToJSONValues renders every set field of e.
func ToJSONValues(e *eav.Entity) map[string]any {
	values := e.Values()
	out := make(map[string]any, len(values))
	for name, value := range values {
		out[name] = ToJSONValue(value)
	}
	return out
}
