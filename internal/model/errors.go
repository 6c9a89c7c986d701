package model

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per ErrorKind.
var (
	ErrConstraintViolation  = errors.New("constraint violation")
	ErrReferentialIntegrity = errors.New("referential integrity error")
	ErrBackupFailed         = errors.New("backup failed")
	ErrAmbiguousSuffix      = errors.New("ambiguous suffix")
	ErrConsistency          = errors.New("consistency error")
	ErrNotFound             = errors.New("not found")
)

// ErrorKind is a coarse-grained categorization for registry errors.
type ErrorKind string

const (
	KindConstraintViolation  ErrorKind = "constraint_violation"
	KindReferentialIntegrity ErrorKind = "referential_integrity"
	KindBackupFailed         ErrorKind = "backup_failed"
	KindAmbiguousSuffix      ErrorKind = "ambiguous_suffix"
	KindConsistency          ErrorKind = "consistency"
	KindNotFound             ErrorKind = "not_found"
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindConstraintViolation:
		return ErrConstraintViolation
	case KindReferentialIntegrity:
		return ErrReferentialIntegrity
	case KindBackupFailed:
		return ErrBackupFailed
	case KindAmbiguousSuffix:
		return ErrAmbiguousSuffix
	case KindConsistency:
		return ErrConsistency
	case KindNotFound:
		return ErrNotFound
	}
	return nil
}

// OpError wraps an underlying error with operation context and a kind.
type OpError struct {
	Op     string
	Kind   ErrorKind
	Entity string // Optional: table or entity the failure concerns
	Err    error
}

func (e *OpError) Error() string {
	if e == nil {
		return "<nil>"
	}

	base := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Entity != "" {
		base += fmt.Sprintf(" (%s)", e.Entity)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *OpError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is match an OpError against the sentinel of its kind.
func (e *OpError) Is(target error) bool {
	if e == nil {
		return false
	}
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// IsKind helps callers classify errors without depending on store internals.
func IsKind(err error, kind ErrorKind) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind == kind
	}
	return false
}

// Constraint builds a ConstraintViolation for op.
func Constraint(op, entity, format string, args ...any) *OpError {
	return &OpError{Op: op, Kind: KindConstraintViolation, Entity: entity, Err: fmt.Errorf(format, args...)}
}

// Referential builds a ReferentialIntegrityError for op.
func Referential(op, entity, format string, args ...any) *OpError {
	return &OpError{Op: op, Kind: KindReferentialIntegrity, Entity: entity, Err: fmt.Errorf(format, args...)}
}

// Consistency builds a ConsistencyError for op.
func Consistency(op, entity, format string, args ...any) *OpError {
	return &OpError{Op: op, Kind: KindConsistency, Entity: entity, Err: fmt.Errorf(format, args...)}
}
