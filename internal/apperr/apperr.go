// Package apperr defines the error taxonomy shared by the gateway components.
//
// Every error kind wraps one of the containerd/errdefs classes so callers can branch with
// errors.Is without knowing the concrete type.
package apperr

import (
	"context"
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// Authentication errors.
var (
	ErrUnauthenticated = fmt.Errorf("%w: user is not authenticated", errdefs.ErrUnauthenticated)
	ErrUnauthorized    = fmt.Errorf("%w: operation not permitted", errdefs.ErrPermissionDenied)
)

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Field  string
	Reason string
}

// Validation builds a ValidationError.
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid argument: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return errdefs.ErrInvalidArgument }

// NotFoundError reports an identifier that failed to resolve.
type NotFoundError struct {
	Entity     string
	Identifier string
}

// NotFound builds a NotFoundError.
func NotFound(entity, identifier string) *NotFoundError {
	return &NotFoundError{Entity: entity, Identifier: identifier}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Identifier)
}

func (e *NotFoundError) Unwrap() error { return errdefs.ErrNotFound }

// AlreadyExistsError reports a create attempted on an already resolvable name.
type AlreadyExistsError struct {
	Entity string
	Name   string
}

// AlreadyExists builds an AlreadyExistsError.
func AlreadyExists(entity, name string) *AlreadyExistsError {
	return &AlreadyExistsError{Entity: entity, Name: name}
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.Name)
}

func (e *AlreadyExistsError) Unwrap() error { return errdefs.ErrAlreadyExists }

// ExternalServiceError reports a failed or timed out call to the chat backend.
type ExternalServiceError struct {
	Op      string
	Status  int
	Timeout bool
	Cause   error
}

func (e *ExternalServiceError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("backend %s: timeout: %v", e.Op, e.Cause)
	case e.Status != 0:
		return fmt.Sprintf("backend %s: status %d: %v", e.Op, e.Status, e.Cause)
	default:
		return fmt.Sprintf("backend %s: %v", e.Op, e.Cause)
	}
}

// Unwrap exposes both the unavailable class and the underlying cause.
func (e *ExternalServiceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{errdefs.ErrUnavailable}
	}
	return []error{errdefs.ErrUnavailable, e.Cause}
}

// External wraps cause as an ExternalServiceError, flagging deadline expiry as a timeout.
func External(op string, cause error) *ExternalServiceError {
	var ext *ExternalServiceError
	if errors.As(cause, &ext) {
		return ext
	}
	return &ExternalServiceError{
		Op:      op,
		Timeout: errors.Is(cause, context.DeadlineExceeded),
		Cause:   cause,
	}
}

// IsTimeout reports whether err is a backend timeout.
func IsTimeout(err error) bool {
	var ext *ExternalServiceError
	return errors.As(err, &ext) && ext.Timeout
}
