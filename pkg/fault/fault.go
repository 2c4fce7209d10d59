// Copyright 2016 IBM Corporation
//
//   Licensed under the Apache License, Version 2.0 (the "License");
//   you may not use this file except in compliance with the License.
//   You may obtain a copy of the License at
//
//       http://www.apache.org/licenses/LICENSE-2.0
//
//   Unless required by applicable law or agreed to in writing, software
//   distributed under the License is distributed on an "AS IS" BASIS,
//   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//   See the License for the specific language governing permissions and
//   limitations under the License.

// Package fault defines the error taxonomy shared by the resilience components.
// Admission-control kinds (CircuitOpen, BulkheadRejected, RateLimitExceeded, LockUnavailable)
// are control signals rather than faults of the protected operation, and are never
// counted against it.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error condition.
type Kind int

// Kind predefined values
const (
	Internal Kind = iota
	NotFound
	CircuitOpen
	BulkheadRejected
	RateLimitExceeded
	LockUnavailable
	Timeout
	Validation
)

var kindNames = map[Kind]string{
	Internal:          "INTERNAL",
	NotFound:          "NOT_FOUND",
	CircuitOpen:       "CIRCUIT_OPEN",
	BulkheadRejected:  "BULKHEAD_REJECTED",
	RateLimitExceeded: "RATE_LIMIT_EXCEEDED",
	LockUnavailable:   "LOCK_UNAVAILABLE",
	Timeout:           "TIMEOUT",
	Validation:        "VALIDATION_ERROR",
}

// String returns the symbolic name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND(%d)", int(k))
}

// Error is an error implementation that is associated with a Kind,
// and optionally with an HTTP-like status code and an underlying cause.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s - %s (%v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s - %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target is a fault error of the same kind.
func (e *Error) Is(target error) bool {
	var fe *Error
	if !errors.As(target, &fe) {
		return false
	}
	return fe.Kind == e.Kind
}

// New creates a new fault error with the specified kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new fault error with a Sprintf-style message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new fault error with the specified kind and message, caused by the given error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithStatusCode returns a copy of the error annotated with an HTTP-like status code.
func (e *Error) WithStatusCode(code int) *Error {
	clone := *e
	clone.StatusCode = code
	return &clone
}

// KindOf classifies an arbitrary error. Fault errors report their own kind,
// context deadline errors classify as Timeout, and anything else as Internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return Internal
}

// StatusCodeOf returns the status code carried by the error, if any.
func StatusCodeOf(err error) (int, bool) {
	var fe *Error
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		return fe.StatusCode, true
	}
	return 0, false
}

// IsKind reports whether the error classifies as the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNotFound reports whether the error indicates an unknown service, instance or policy id.
func IsNotFound(err error) bool { return IsKind(err, NotFound) }

// IsCircuitOpen reports whether the error indicates a breaker in the OPEN state.
func IsCircuitOpen(err error) bool { return IsKind(err, CircuitOpen) }

// IsRejection reports whether the error is an admission-control rejection
// (bulkhead, rate limiter or contested lock).
func IsRejection(err error) bool {
	switch KindOf(err) {
	case BulkheadRejected, RateLimitExceeded, LockUnavailable:
		return true
	}
	return false
}

// IsTimeout reports whether the error indicates an exceeded deadline.
func IsTimeout(err error) bool { return IsKind(err, Timeout) }

// IsValidation reports whether the error indicates malformed configuration or input.
func IsValidation(err error) bool { return IsKind(err, Validation) }
