package relgraph

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested instance does not exist.
	ErrNotFound = errors.New("relgraph: entity not found")

	// ErrCardinality is returned when a mutation would leave a relation
	// outside of its [lower, upper] bounds.
	ErrCardinality = errors.New("relgraph: cardinality violation")

	// ErrCascadeConflict is returned when a delete would strand a required,
	// non-cascading relation.
	ErrCascadeConflict = errors.New("relgraph: entity required by a non-cascading relation")

	// ErrStructuralConflict is returned when a creation payload contains
	// requests that cannot be satisfied together.
	ErrStructuralConflict = errors.New("relgraph: structural conflict")

	// ErrTxStarted is returned when attempting to start a new transaction
	// within an existing transaction.
	ErrTxStarted = errors.New("relgraph: cannot start a transaction within a transaction")
)

// NotFoundError represents an error when an instance is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the ID that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("relgraph: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("relgraph: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundErrorWithID returns a new NotFoundError with the ID that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// CardinalityError reports a relation mutation that would produce an edge
// count outside of the relation's bounds.
type CardinalityError struct {
	Entity   string // Owner entity type
	Relation string // Relation member name
	Op       string // Operation that was rejected
	Lower    int
	Upper    int // -1 means unbounded
	Count    int // Edge count the operation would produce
}

// Error returns the error string.
func (e *CardinalityError) Error() string {
	upper := "*"
	if e.Upper >= 0 {
		upper = fmt.Sprint(e.Upper)
	}
	return fmt.Sprintf("relgraph: cardinality violation on %s.%s (%s): %d edges outside [%d..%s]",
		e.Entity, e.Relation, e.Op, e.Count, e.Lower, upper)
}

// Is reports whether the target error matches ErrCardinality.
func (e *CardinalityError) Is(err error) bool {
	return err == ErrCardinality
}

// IsCardinalityError returns true if the error is a CardinalityError.
func IsCardinalityError(err error) bool {
	if err == nil {
		return false
	}
	var e *CardinalityError
	return errors.As(err, &e)
}

// Conflict describes a single relation that a delete would strand.
type Conflict struct {
	Entity    string // Type of the surviving owner
	Owner     string // ID of the surviving owner
	Relation  string // Relation member on the owner
	Target    string // Deleted instance the owner points to
	Remaining int    // Edges left on the owner after the delete
	Lower     int
}

// String returns a human-readable description of the conflict.
func (c Conflict) String() string {
	return fmt.Sprintf("%s(%s).%s requires %d, %d left after deleting %s",
		c.Entity, c.Owner, c.Relation, c.Lower, c.Remaining, c.Target)
}

// CascadeConflictError is returned when deleting an instance would strand
// one or more required relations that do not cascade.
type CascadeConflictError struct {
	Root      string // ID of the instance whose delete was requested
	Conflicts []Conflict
}

// Error returns the error string.
func (e *CascadeConflictError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "relgraph: cannot delete %s: entity required by a non-cascading relation", e.Root)
	for _, c := range e.Conflicts {
		sb.WriteString("\n  - ")
		sb.WriteString(c.String())
	}
	return sb.String()
}

// Is reports whether the target error matches ErrCascadeConflict.
func (e *CascadeConflictError) Is(err error) bool {
	return err == ErrCascadeConflict
}

// IsCascadeConflict returns true if the error is a CascadeConflictError.
func IsCascadeConflict(err error) bool {
	if err == nil {
		return false
	}
	var e *CascadeConflictError
	return errors.As(err, &e)
}

// StructuralConflictError reports conflicting attach/create requests in a
// single payload.
type StructuralConflictError struct {
	Path string // Location in the payload, e.g. "Car.wheels[2]"
	Msg  string
}

// Error returns the error string.
func (e *StructuralConflictError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("relgraph: structural conflict at %s: %s", e.Path, e.Msg)
	}
	return fmt.Sprintf("relgraph: structural conflict: %s", e.Msg)
}

// Is reports whether the target error matches ErrStructuralConflict.
func (e *StructuralConflictError) Is(err error) bool {
	return err == ErrStructuralConflict
}

// NewStructuralConflictError returns a new StructuralConflictError.
func NewStructuralConflictError(path, format string, args ...any) *StructuralConflictError {
	return &StructuralConflictError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// IsStructuralConflict returns true if the error is a StructuralConflictError.
func IsStructuralConflict(err error) bool {
	if err == nil {
		return false
	}
	var e *StructuralConflictError
	return errors.As(err, &e)
}

// RangeError is returned when a relation target lies outside of the
// relation's range.
type RangeError struct {
	Entity   string
	Relation string
	Target   string
}

// Error returns the error string.
func (e *RangeError) Error() string {
	return fmt.Sprintf("relgraph: %s is not a valid candidate for %s.%s", e.Target, e.Entity, e.Relation)
}

// IsRangeError returns true if the error is a RangeError.
func IsRangeError(err error) bool {
	if err == nil {
		return false
	}
	var e *RangeError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("relgraph: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// ValidationError represents a validation error for attribute values,
// payload shapes and schema definitions.
type ValidationError struct {
	Name string // Attribute, relation or entity name
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("relgraph: validator failed for %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given name.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("relgraph: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "relgraph: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("relgraph: multiple errors:")
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

// MutationError wraps the failure of a mutation with the operation and the
// type of the instance it was applied to.
type MutationError struct {
	Entity string // Entity type being mutated, empty if it could not be loaded
	Op     string // Operation (e.g., "create", "update", "delete")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	msg := strings.TrimPrefix(e.Err.Error(), "relgraph: ")
	if e.Entity == "" {
		return fmt.Sprintf("relgraph: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("relgraph: %s %s: %s", e.Op, e.Entity, msg)
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

// PrivacyError represents a privacy policy violation.
type PrivacyError struct {
	Entity string // Entity type
	Op     string // Operation (query or mutation)
	Rule   string // Rule that denied the operation
}

// Error returns the error string.
func (e *PrivacyError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("relgraph: privacy denied %s on %s (rule: %s)", e.Op, e.Entity, e.Rule)
	}
	return fmt.Sprintf("relgraph: privacy denied %s on %s", e.Op, e.Entity)
}

// NewPrivacyError returns a new PrivacyError.
func NewPrivacyError(entity, op, rule string) *PrivacyError {
	return &PrivacyError{Entity: entity, Op: op, Rule: rule}
}

// IsPrivacyError returns true if the error is a PrivacyError.
func IsPrivacyError(err error) bool {
	if err == nil {
		return false
	}
	var e *PrivacyError
	return errors.As(err, &e)
}
