package eav

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind names a value type family recognised by the storage layer.
type Kind string

const (
	KindString     Kind = "String"
	KindText       Kind = "Text"
	KindInteger    Kind = "Integer"
	KindBigInteger Kind = "BigInteger"
	KindFloat      Kind = "Float"
	KindBoolean    Kind = "Boolean"
	KindDateTime   Kind = "DateTime"
	KindUUID       Kind = "UUID"
	KindEnum       Kind = "Enum"
)

// ValueType describes the scalar type stored in one value table.
// Length applies to String and Text, Name and Values to Enum.
type ValueType struct {
	Kind   Kind     `json:"kind"`
	Length int      `json:"length,omitempty"`
	Name   string   `json:"name,omitempty"`
	Values []string `json:"values,omitempty"`
}

// Parameterless value types.
var (
	Integer    = ValueType{Kind: KindInteger}
	BigInteger = ValueType{Kind: KindBigInteger}
	Float      = ValueType{Kind: KindFloat}
	Boolean    = ValueType{Kind: KindBoolean}
	DateTime   = ValueType{Kind: KindDateTime}
	UUID       = ValueType{Kind: KindUUID}
)

// String returns a VARCHAR-like type. A zero length means unbounded.
func String(length int) ValueType {
	return ValueType{Kind: KindString, Length: length}
}

// Text returns an unbounded text type.
func Text() ValueType {
	return ValueType{Kind: KindText}
}

// Enum returns a named enumeration over the given string values.
func Enum(name string, values ...string) ValueType {
	return ValueType{Kind: KindEnum, Name: name, Values: values}
}

type kindInfo struct {
	goType string
	coerce func(t ValueType, v any) (any, bool)
	scan   func() (dest any, read func() any)
}

var kinds = map[Kind]kindInfo{
	KindString:     {goType: "string", coerce: coerceString, scan: scanString},
	KindText:       {goType: "string", coerce: coerceString, scan: scanString},
	KindEnum:       {goType: "string", coerce: coerceEnum, scan: scanString},
	KindInteger:    {goType: "int64", coerce: coerceInt, scan: scanInt},
	KindBigInteger: {goType: "int64", coerce: coerceInt, scan: scanInt},
	KindFloat:      {goType: "float64", coerce: coerceFloat, scan: scanFloat},
	KindBoolean:    {goType: "bool", coerce: coerceBool, scan: scanBool},
	KindDateTime:   {goType: "time.Time", coerce: coerceTime, scan: scanTime},
	KindUUID:       {goType: "uuid.UUID", coerce: coerceUUID, scan: scanUUID},
}

// Validate reports whether t is a type the storage layer can represent.
func (t ValueType) Validate() error {
	if _, ok := kinds[t.Kind]; !ok {
		return NewUnsupportedTypeError(t, "unknown value kind")
	}
	if t.Length < 0 {
		return NewUnsupportedTypeError(t, "length must not be negative")
	}
	if t.Length > 0 && t.Kind != KindString && t.Kind != KindText {
		return NewUnsupportedTypeError(t, "length is only valid for String and Text")
	}
	if t.Kind == KindEnum {
		if !isIdentifier(t.Name) {
			return NewUnsupportedTypeError(t, "enum requires an identifier name")
		}
		if len(t.Values) == 0 {
			return NewUnsupportedTypeError(t, "enum requires at least one value")
		}
	} else if t.Name != "" || len(t.Values) > 0 {
		return NewUnsupportedTypeError(t, "name and values are only valid for Enum")
	}
	return nil
}

// CanonicalName is the cache key for t: the kind, then the name or the
// length when either is set.
func (t ValueType) CanonicalName() string {
	switch {
	case t.Name != "":
		return fmt.Sprintf("%s_%s", t.Kind, t.Name)
	case t.Length > 0:
		return fmt.Sprintf("%s_%d", t.Kind, t.Length)
	default:
		return string(t.Kind)
	}
}

// GoType names the Go type values of t are normalised to.
func (t ValueType) GoType() string {
	if info, ok := kinds[t.Kind]; ok {
		return info.goType
	}
	return "unknown"
}

// Coerce normalises v to the Go representation of t. The boolean is false
// when v does not belong to t.
func (t ValueType) Coerce(v any) (any, bool) {
	info, ok := kinds[t.Kind]
	if !ok || v == nil {
		return nil, false
	}
	return info.coerce(t, v)
}

// ScanTarget returns a destination suitable for rows.Scan and a reader that
// yields the normalised value after scanning.
func (t ValueType) ScanTarget() (any, func() any) {
	info, ok := kinds[t.Kind]
	if !ok {
		var raw any
		return &raw, func() any { return raw }
	}
	return info.scan()
}

func (t ValueType) String() string {
	switch {
	case t.Kind == KindEnum:
		return fmt.Sprintf("%s(%s:%s)", t.Kind, t.Name, strings.Join(t.Values, "|"))
	case t.Length > 0:
		return fmt.Sprintf("%s(%d)", t.Kind, t.Length)
	default:
		return string(t.Kind)
	}
}

var valueTypePattern = regexp.MustCompile(`^\s*([A-Za-z]+)\s*(?:\(\s*([^)]*)\s*\))?\s*$`)

// ParseValueType parses the textual form produced by ValueType.String, for
// example "Integer", "String(16)" or "Enum(status:active|archived)".
func ParseValueType(s string) (ValueType, error) {
	m := valueTypePattern.FindStringSubmatch(s)
	if m == nil {
		return ValueType{}, NewTypeMismatchError("", fmt.Sprintf("cannot parse value type %q", s)).
			WithCode(ErrCodeUnsupportedType)
	}

	t := ValueType{Kind: Kind(m[1])}
	arg := m[2]
	switch {
	case arg == "":
	case t.Kind == KindEnum:
		name, values, ok := strings.Cut(arg, ":")
		if !ok {
			return ValueType{}, NewUnsupportedTypeError(t, "enum expects name:value|value")
		}
		t.Name = strings.TrimSpace(name)
		for _, v := range strings.Split(values, "|") {
			if v = strings.TrimSpace(v); v != "" {
				t.Values = append(t.Values, v)
			}
		}
	default:
		n, err := strconv.Atoi(arg)
		if err != nil {
			return ValueType{}, NewUnsupportedTypeError(t, fmt.Sprintf("invalid length %q", arg))
		}
		t.Length = n
	}

	if err := t.Validate(); err != nil {
		return ValueType{}, err
	}
	return t, nil
}

func coerceString(_ ValueType, v any) (any, bool) {
	s, ok := v.(string)
	return s, ok
}

func coerceEnum(t ValueType, v any) (any, bool) {
	s, ok := v.(string)
	if !ok || !slices.Contains(t.Values, s) {
		return nil, false
	}
	return s, true
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

// Integer maps to a 32-bit column on Postgres and DuckDB; BigInteger carries the full range.
func coerceInt(t ValueType, v any) (any, bool) {
	n, ok := asInt64(v)
	if !ok {
		return nil, false
	}
	if t.Kind == KindInteger && (n < math.MinInt32 || n > math.MaxInt32) {
		return nil, false
	}
	return n, true
}

func coerceFloat(_ ValueType, v any) (any, bool) {
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	default:
		return nil, false
	}
}

func coerceBool(_ ValueType, v any) (any, bool) {
	b, ok := v.(bool)
	return b, ok
}

func coerceTime(_ ValueType, v any) (any, bool) {
	switch tm := v.(type) {
	case time.Time:
		return tm, true
	case *time.Time:
		if tm == nil {
			return nil, false
		}
		return *tm, true
	default:
		return nil, false
	}
}

func coerceUUID(_ ValueType, v any) (any, bool) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, true
	case *uuid.UUID:
		if id == nil {
			return nil, false
		}
		return *id, true
	default:
		return nil, false
	}
}

func scanString() (any, func() any) {
	var s string
	return &s, func() any { return s }
}

func scanInt() (any, func() any) {
	var n int64
	return &n, func() any { return n }
}

func scanFloat() (any, func() any) {
	var f float64
	return &f, func() any { return f }
}

func scanBool() (any, func() any) {
	var b bool
	return &b, func() any { return b }
}

func scanTime() (any, func() any) {
	var tm time.Time
	return &tm, func() any { return tm }
}

func scanUUID() (any, func() any) {
	var id uuid.UUID
	return &id, func() any { return id }
}
