// Package domain defines core types, interfaces, and errors for the query service.
package domain

import "fmt"

// NotFoundError indicates a job, schema, or schema version was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// NotReadyError indicates a result was requested before the job reached a
// terminal state.
type NotReadyError struct {
	Message string
}

func (e *NotReadyError) Error() string { return e.Message }

// UnknownEngineError indicates a submission named an engine with no
// registered adapter.
type UnknownEngineError struct {
	Message string
}

func (e *UnknownEngineError) Error() string { return e.Message }

// UnsupportedTypeError indicates a schema field type has no mapping in a
// target engine's dialect.
type UnsupportedTypeError struct {
	Message string
}

func (e *UnsupportedTypeError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate schema version).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotReady creates a NotReadyError with a formatted message.
func ErrNotReady(format string, args ...interface{}) *NotReadyError {
	return &NotReadyError{Message: fmt.Sprintf(format, args...)}
}

// ErrUnknownEngine creates an UnknownEngineError with a formatted message.
func ErrUnknownEngine(format string, args ...interface{}) *UnknownEngineError {
	return &UnknownEngineError{Message: fmt.Sprintf(format, args...)}
}

// ErrUnsupportedType creates an UnsupportedTypeError with a formatted message.
func ErrUnsupportedType(format string, args ...interface{}) *UnsupportedTypeError {
	return &UnsupportedTypeError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrorKind classifies a terminal job failure for the caller.
type ErrorKind string

// Failure classifications stored on a failed job.
const (
	// ErrorKindAdapterFailure means the engine rejected or errored the query.
	ErrorKindAdapterFailure ErrorKind = "ADAPTER_FAILURE"
	// ErrorKindTransient means a connection-level failure; resubmitting a new
	// job is safe. The manager never retries on its own.
	ErrorKindTransient ErrorKind = "TRANSIENT"
	// ErrorKindCancelled means execution was cancelled on request.
	ErrorKindCancelled ErrorKind = "CANCELLED"
	// ErrorKindInterrupted means the job was in flight during an unclean
	// process stop and was reconciled to FAILED on restart.
	ErrorKindInterrupted ErrorKind = "INTERRUPTED"
)

// AdapterError is the classified outcome of a failed or cancelled engine
// execution. Workers convert every adapter error into one of these before
// storing it on the job.
type AdapterError struct {
	Kind    ErrorKind
	Message string
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ErrAdapter creates an AdapterError with the given kind and formatted message.
func ErrAdapter(kind ErrorKind, format string, args ...interface{}) *AdapterError {
	return &AdapterError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
