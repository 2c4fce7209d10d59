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

// Package auth resolves request credentials to tenancy namespaces.
package auth

import "errors"

// Authentication failure modes. An authenticator in a chain signals
// ErrUnrecognizedToken to pass the token to the next link; every other
// error is final.
var (
	// ErrUnrecognizedToken is returned for a token the authenticator cannot attribute.
	ErrUnrecognizedToken = errors.New("unrecognized token")

	// ErrUnauthorized is returned for a recognized token that fails validation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrEmptyToken is returned when a credential is required but none was presented.
	ErrEmptyToken = errors.New("empty token")

	// ErrCommunicationError is returned when the token issuer cannot be
	// reached, leaving the token neither authorized nor rejected.
	ErrCommunicationError = errors.New("communication error")
)

// An Authenticator resolves a request credential to the namespace it
// grants access to.
type Authenticator interface {
	Authenticate(token string) (*Namespace, error)
}

// DefaultAuthenticator returns the authenticator used when none is
// configured: credential-less requests share the global namespace.
func DefaultAuthenticator() Authenticator {
	return NewGlobalAuthenticator()
}
