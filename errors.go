package eav

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeTypeMismatch ErrorType = "type_mismatch"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInternal     ErrorType = "internal"
)

// Error is the structured error returned by the mapping layer. Errors raised
// by a Storage implementation are passed through unchanged instead.
type Error struct {
	Type     ErrorType      `json:"type"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Schema   string         `json:"schema,omitempty"`
	Field    string         `json:"field,omitempty"`
	EntityID int64          `json:"entityId,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Cause    error          `json:"-"`
}

func (e *Error) Error() string {
	if e.EntityID != 0 {
		return fmt.Sprintf("[%s:%s] entity %d: %s", e.Type, e.Code, e.EntityID, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	if e.Schema != "" {
		return fmt.Sprintf("[%s:%s] schema '%s': %s", e.Type, e.Code, e.Schema, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to an Error
func (e *Error) WithDetails(details map[string]any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to an Error
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to an Error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithField adds field context to an Error
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithSchema adds schema context to an Error
func (e *Error) WithSchema(schema string) *Error {
	e.Schema = schema
	return e
}

// WithCode overrides the error code
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

const (
	// Declaration errors
	ErrCodeInvalidIdentifier = "INVALID_IDENTIFIER"
	ErrCodeReservedName      = "RESERVED_NAME"
	ErrCodeNameTooLong       = "NAME_TOO_LONG"
	ErrCodeDuplicateField    = "DUPLICATE_FIELD"
	ErrCodeNoFields          = "NO_FIELDS"
	ErrCodeSchemaConflict    = "SCHEMA_CONFLICT"
	ErrCodeSchemaNotFound    = "SCHEMA_NOT_FOUND"
	ErrCodeUnknownField      = "UNKNOWN_FIELD"
	ErrCodeInvalidDefinition = "INVALID_DEFINITION"

	// Type errors
	ErrCodeUnsupportedType = "UNSUPPORTED_TYPE"
	ErrCodeTypeMismatch    = "TYPE_MISMATCH"
	ErrCodeEnumConflict    = "ENUM_CONFLICT"

	// Access errors
	ErrCodeDeleteProhibited = "DELETE_PROHIBITED"

	// Unit of work errors
	ErrCodeEntityNotFound   = "ENTITY_NOT_FOUND"
	ErrCodeForeignEntity    = "FOREIGN_ENTITY"
	ErrCodeIdentityConflict = "IDENTITY_CONFLICT"
	ErrCodeSessionClosed    = "SESSION_CLOSED"
	ErrCodeSchemaMismatch   = "SCHEMA_MISMATCH"
	ErrCodeUnsavedEntity    = "UNSAVED_ENTITY"
	ErrCodeStorageRequired  = "STORAGE_REQUIRED"
)

// NewError creates a new Error
func NewError(errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:    errorType,
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a validation error for a schema or field name
func NewValidationError(name, code, message string) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Field:   name,
	}
}

// NewTypeMismatchError creates a type mismatch error for a field
func NewTypeMismatchError(field, message string) *Error {
	return &Error{
		Type:    ErrorTypeTypeMismatch,
		Code:    ErrCodeTypeMismatch,
		Message: message,
		Field:   field,
	}
}

// NewUnsupportedTypeError reports a value type descriptor the storage layer cannot represent
func NewUnsupportedTypeError(t ValueType, reason string) *Error {
	return NewTypeMismatchError("", fmt.Sprintf("%s is not a supported value type: %s", t, reason)).
		WithCode(ErrCodeUnsupportedType).
		WithDetail("kind", string(t.Kind))
}

// NewValueMismatchError reports a value whose runtime type disagrees with the field type
func NewValueMismatchError(field string, expected ValueType, value any) *Error {
	return NewTypeMismatchError(field, fmt.Sprintf("%v (%T) is not of type %s", value, value, expected.GoType())).
		WithDetail("expected", expected.String())
}

// NewForbiddenOperationError creates a forbidden operation error
func NewForbiddenOperationError(field, message string) *Error {
	return &Error{
		Type:    ErrorTypeForbidden,
		Code:    ErrCodeDeleteProhibited,
		Message: message,
		Field:   field,
	}
}

// NewEntityNotFoundError creates an entity not found error
func NewEntityNotFoundError(id int64) *Error {
	return &Error{
		Type:     ErrorTypeNotFound,
		Code:     ErrCodeEntityNotFound,
		Message:  "entity not found",
		EntityID: id,
	}
}

// NewSchemaNotFoundError creates a schema not found error
func NewSchemaNotFoundError(name string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeSchemaNotFound,
		Message: "schema is not declared",
		Schema:  name,
	}
}

func hasType(err error, errorType ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// IsValidationError reports whether err is a declaration-time validation failure.
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsTypeMismatch reports whether err is an unsupported type or a rejected value.
func IsTypeMismatch(err error) bool { return hasType(err, ErrorTypeTypeMismatch) }

// IsForbidden reports whether err is a prohibited operation.
func IsForbidden(err error) bool { return hasType(err, ErrorTypeForbidden) }

// IsNotFound reports whether err is a missing entity or schema.
func IsNotFound(err error) bool { return hasType(err, ErrorTypeNotFound) }
