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

// Package errors decorates errors with contextual messages.
package errors

import "fmt"

type wrapper struct {
	message string
	cause   error
}

// Wrap decorates the given error with the given message
func Wrap(cause error, message string) error {
	return &wrapper{message: message, cause: cause}
}

// Wrapf decorates the given error with a message built from the Sprintf-style format and arguments.
func Wrapf(cause error, format string, args ...interface{}) error {
	return Wrap(cause, fmt.Sprintf(format, args...))
}

// Error renders "message: cause". Either part may be absent.
func (w *wrapper) Error() string {
	switch {
	case w.message == "":
		if w.cause == nil {
			return ""
		}
		return w.cause.Error()
	case w.cause == nil:
		return w.message
	}
	return w.message + ": " + w.cause.Error()
}

// Unwrap returns the decorated error, making the wrapper transparent
// to the errors.Is and errors.As traversals.
func (w *wrapper) Unwrap() error {
	return w.cause
}
