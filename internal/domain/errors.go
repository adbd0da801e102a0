package domain

import (
	"errors"
	"fmt"
)

// Error types for consistent error handling across the BFA.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrLimitExceeded indicates a feature limit was reached.
type ErrLimitExceeded struct {
	Feature string
	Limit   int
	Current int
}

func (e *ErrLimitExceeded) Error() string {
	return fmt.Sprintf("limit exceeded [%s]: limit=%d current=%d", e.Feature, e.Limit, e.Current)
}

// ErrLimitUnknown indicates the policy function gave no usable limit.
type ErrLimitUnknown struct {
	Feature string
}

func (e *ErrLimitUnknown) Error() string {
	return fmt.Sprintf("no limit information for feature: %s", e.Feature)
}

// ErrInvalidTransition is returned when a quote provider cannot move
// from its current status to the requested one.
type ErrInvalidTransition struct {
	From QuoteStatus
	To   QuoteStatus
}

func (e *ErrInvalidTransition) Error() string {
	if e.From == "" {
		return fmt.Sprintf("invalid status transition to %s", e.To)
	}
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// ErrUnknownPostalCode is the lookup collaborator's sentinel for codes it
// does not know.
type ErrUnknownPostalCode struct {
	Code string
}

func (e *ErrUnknownPostalCode) Error() string {
	return fmt.Sprintf("unknown postal code: %s", e.Code)
}

// ErrForbidden indicates the user lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates a resource already exists (e.g. a second rating
// for the same job).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrorKind is the closed set of failure classes a call site can branch on.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindForbidden         ErrorKind = "forbidden"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindConflict          ErrorKind = "conflict"
	KindLimitExceeded     ErrorKind = "limit_exceeded"
	KindLimitUnknown      ErrorKind = "limit_unknown"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindUnavailable       ErrorKind = "unavailable"
	KindBackend           ErrorKind = "backend"
)

// KindOf classifies err. Unclassified errors are backend errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var (
		validation  *ErrValidation
		postal      *ErrUnknownPostalCode
		notFound    *ErrNotFound
		forbidden   *ErrForbidden
		unauth      *ErrUnauthorized
		conflict    *ErrConflict
		exceeded    *ErrLimitExceeded
		unknown     *ErrLimitUnknown
		transition  *ErrInvalidTransition
		circuitOpen *ErrCircuitOpen
	)

	switch {
	case errors.As(err, &validation), errors.As(err, &postal):
		return KindValidation
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &forbidden):
		return KindForbidden
	case errors.As(err, &unauth):
		return KindUnauthorized
	case errors.As(err, &conflict):
		return KindConflict
	case errors.As(err, &exceeded):
		return KindLimitExceeded
	case errors.As(err, &unknown):
		return KindLimitUnknown
	case errors.As(err, &transition):
		return KindInvalidTransition
	case errors.As(err, &circuitOpen):
		return KindUnavailable
	default:
		return KindBackend
	}
}
