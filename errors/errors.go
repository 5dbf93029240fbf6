// Package errors provides error classification and wrapping helpers shared
// by every pipeline component: pads, nodes, the pipeline itself, and the
// shared-memory channel.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Class represents the classification of an error for handling purposes.
type Class int

const (
	// ClassTransient represents temporary errors that may be retried.
	ClassTransient Class = iota
	// ClassInvalid represents errors caused by invalid input or misuse.
	ClassInvalid
	// ClassFatal represents unrecoverable errors that should stop processing.
	ClassFatal
)

// String returns the string representation of Class.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassInvalid:
		return "invalid"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard sentinel errors for common pipeline conditions.
var (
	// Lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrAlreadyStopped = errors.New("component already stopped")

	// Pad and node wiring errors
	ErrPadNotFound = errors.New("pad not found")
	ErrNotLinked   = errors.New("pad not linked")

	// Enqueue errors
	ErrQueueFull      = errors.New("queue full")
	ErrEnqueueTimeout = errors.New("enqueue timed out")

	// Shared-memory channel errors
	ErrSegmentInvalid  = errors.New("shared memory segment invalid")
	ErrSegmentNotFound = errors.New("shared memory segment not found")
	ErrOwnerDead       = errors.New("shared memory mutex owner died")
	ErrArenaExhausted  = errors.New("shared memory arena has no contiguous free space for this packet")
)

// ClassifiedError wraps an error with its classification and the component
// and operation that produced it.
type ClassifiedError struct {
	Class     Class
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

func newClassified(class Class, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// wrap formats a standardized message: "component.operation: message: err".
func wrap(err error, component, operation, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s: %w", component, operation, message, err)
}

// WrapTransient wraps err as a retryable error with component/operation context.
func WrapTransient(err error, component, operation, message string) error {
	if err == nil {
		return nil
	}
	wrapped := wrap(err, component, operation, message)
	return newClassified(ClassTransient, wrapped, component, operation, wrapped.Error())
}

// WrapInvalid wraps err as a caller-misuse error with component/operation context.
func WrapInvalid(err error, component, operation, message string) error {
	if err == nil {
		return nil
	}
	wrapped := wrap(err, component, operation, message)
	return newClassified(ClassInvalid, wrapped, component, operation, wrapped.Error())
}

// WrapFatal wraps err as an unrecoverable error with component/operation context.
func WrapFatal(err error, component, operation, message string) error {
	if err == nil {
		return nil
	}
	wrapped := wrap(err, component, operation, message)
	return newClassified(ClassFatal, wrapped, component, operation, wrapped.Error())
}

// IsTransient reports whether err is classified as transient, either
// explicitly via ClassifiedError or by matching a known transient sentinel
// or message pattern.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassTransient
	}

	if errors.Is(err, ErrQueueFull) ||
		errors.Is(err, ErrEnqueueTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "busy", "retry", "temporarily"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// IsFatal reports whether err is classified as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassFatal
	}

	return errors.Is(err, ErrSegmentInvalid) || errors.Is(err, ErrArenaExhausted)
}

// IsInvalid reports whether err is classified as a caller-misuse error.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassInvalid
	}

	return errors.Is(err, ErrPadNotFound) || errors.Is(err, ErrNotLinked)
}
