package project

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kazz187/provisioner/pkg/remote"
	"github.com/kazz187/provisioner/pkg/sealbox"
)

type ErrorKind string

const (
	ErrorValidation   ErrorKind = "validation"
	ErrorConflict     ErrorKind = "conflict"
	ErrorRemote       ErrorKind = "remote"
	ErrorTransient    ErrorKind = "transient"
	ErrorSealing      ErrorKind = "sealing"
	ErrorCompensation ErrorKind = "compensation"
	ErrorCanceled     ErrorKind = "canceled"
	ErrorInternal     ErrorKind = "internal"
)

type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError rejects a request before any remote call is made.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Reason
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Violations = append(e.Violations, FieldViolation{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// orNil returns nil when nothing was recorded.
func (e *ValidationError) orNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

// CompensationError records an undo action that failed. It is reported in
// the outcome and never returned past the saga.
type CompensationError struct {
	Step     Step
	Resource Resource
	Err      error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("%s %s %q: %s", e.Step, e.Resource.Kind, e.Resource.Name, e.Err)
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}

func classify(err error) ErrorKind {
	var (
		verr *ValidationError
		cerr *CompensationError
		rerr *remote.Error
	)
	switch {
	case errors.As(err, &verr):
		return ErrorValidation
	case errors.As(err, &cerr):
		return ErrorCompensation
	case remote.IsConflict(err):
		return ErrorConflict
	case errors.Is(err, sealbox.ErrSealing):
		return ErrorSealing
	case errors.As(err, &rerr):
		return ErrorRemote
	case remote.IsTransient(err):
		return ErrorTransient
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorCanceled
	}
	return ErrorInternal
}
