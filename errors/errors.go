// Package errors provides standardized error handling for libbtrace.
// It defines the error taxonomy mirroring the native engine's status
// codes, behavioral classification (transient/invalid/fatal), and
// helper functions for consistent error wrapping across the system.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that a caller may retry
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables, one per native status code plus the
// boundary-validation and graph-construction conditions.
var (
	// ErrEnd signals that an iterator reached its logical end of
	// stream. It is terminal for that iterator but is not a failure.
	ErrEnd = errors.New("end of iteration")

	// ErrTryAgain signals a transient condition; the caller may
	// re-invoke the operation. Nothing in this module retries
	// automatically.
	ErrTryAgain = errors.New("try again")

	// ErrMemory indicates a native allocation failure, fatal by convention.
	ErrMemory = errors.New("memory error")

	// ErrOverflow indicates a numeric range violation, such as a value
	// outside a declared field width.
	ErrOverflow = errors.New("numeric overflow")

	// ErrUnknownObject indicates a query addressed an object kind the
	// target does not recognize. Callers treat it as "not applicable",
	// not as "broken".
	ErrUnknownObject = errors.New("unknown query object")

	// ErrInvalidArgument indicates an eager parameter validation
	// failure at the API boundary, before any native call.
	ErrInvalidArgument = errors.New("invalid argument")

	// Graph construction errors
	ErrComponentCreation = errors.New("component creation failed")
	ErrGraphConnection   = errors.New("cannot connect ports")

	// Orchestrator configuration errors
	ErrNoCommonVersion = errors.New("no operative protocol version across components")
	ErrUnusedInputs    = errors.New("inputs not consumed by any discovered component")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and may be retried by the caller
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	return errors.Is(err, ErrTryAgain)
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrMemory) ||
		errors.Is(err, ErrNoCommonVersion) ||
		errors.Is(err, ErrUnusedInputs)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrOverflow) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig)
}

// IsEnd reports whether err signals iterator exhaustion.
func IsEnd(err error) bool {
	return errors.Is(err, ErrEnd)
}

// Is reports whether any error in err's chain matches target. It lets
// callers keep a single errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	return ErrorTransient
}

// newClassified creates a new classified error.
// Internal helper: use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// Invalidf returns a new invalid-argument error with a formatted
// message. Used for eager parameter validation at API boundaries.
func Invalidf(format string, args ...any) error {
	err := fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
	return newClassified(ErrorInvalid, err, "", "", err.Error())
}
