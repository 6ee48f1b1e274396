package relmap

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the compiler, the platforms and the diff engine.
var (
	// ErrNotFound is returned when a query that expects a row matches none.
	ErrNotFound = errors.New("relmap: entity not found")

	// ErrNoTableName is returned when an entity schema has no resolvable table name.
	ErrNoTableName = errors.New("relmap: schema has no table name")

	// ErrIncompatibleSchemas is returned when a diff is requested between two
	// tables that do not describe the same logical table.
	ErrIncompatibleSchemas = errors.New("relmap: incompatible schemas")

	// ErrUnknownField is returned when a query, filter or change-set references
	// a field the entity schema does not declare.
	ErrUnknownField = errors.New("relmap: unknown field")

	// ErrDeleteWithJoins is returned when a DELETE is compiled against a query
	// that declares joins. Fetch the ids first, then delete by id.
	ErrDeleteWithJoins = errors.New("relmap: delete with joins is not supported")

	// ErrUnsupported is returned for query shapes a platform cannot express.
	ErrUnsupported = errors.New("relmap: unsupported operation")
)

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("relmap: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ConfigError reports a schema or query description that cannot be compiled.
// Configuration errors are raised before any statement reaches a connection.
type ConfigError struct {
	Entity string // Entity or table the error refers to
	Msg    string
	Err    error // Sentinel or underlying cause
}

// Error returns the error string.
func (e *ConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("relmap: ")
	if e.Entity != "" {
		sb.WriteString(e.Entity)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Msg)
	if e.Err != nil && e.Msg == "" {
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError returns a new ConfigError wrapping the given sentinel.
func NewConfigError(entity string, err error, format string, args ...any) *ConfigError {
	return &ConfigError{Entity: entity, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsConfigError returns true if the error is a ConfigError.
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigError
	return errors.As(err, &e)
}

// UnsupportedError reports an operation the compiler refuses to emit.
type UnsupportedError struct {
	Op  string // Operation (e.g., "delete")
	Err error
}

// Error returns the error string.
func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("relmap: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *UnsupportedError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrUnsupported.
func (e *UnsupportedError) Is(err error) bool {
	return err == ErrUnsupported
}

// NewUnsupportedError returns a new UnsupportedError.
func NewUnsupportedError(op string, err error) *UnsupportedError {
	return &UnsupportedError{Op: op, Err: err}
}

// IsUnsupported returns true if the error is an UnsupportedError.
func IsUnsupported(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsupportedError
	return errors.As(err, &e) || errors.Is(err, ErrUnsupported)
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "relmap: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("relmap: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// QueryError wraps a query error with additional context.
type QueryError struct {
	Entity string // Entity type being queried
	Op     string // Operation (e.g., "find", "count", "patch")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("relmap: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("relmap: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a persistence error with additional context.
type MutationError struct {
	Entity string // Entity type being mutated
	Op     string // Operation (e.g., "insert", "update", "remove")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("relmap: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}
