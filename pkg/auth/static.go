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

package auth

// NewGlobalAuthenticator creates an authenticator that maps the absence
// of a credential to the global namespace. Any actual token is passed on
// as unrecognized.
func NewGlobalAuthenticator() Authenticator {
	return &globalAuthenticator{}
}

type globalAuthenticator struct{}

func (ga *globalAuthenticator) Authenticate(token string) (*Namespace, error) {
	if token != "" {
		return nil, ErrUnrecognizedToken
	}
	namespace := GlobalNamespace
	return &namespace, nil
}

// NewTrustedAuthenticator creates an authenticator for deployments where
// the caller is already vetted. It accepts any non-empty token, using the
// token value itself as the namespace.
func NewTrustedAuthenticator() Authenticator {
	return &trustedAuthenticator{}
}

type trustedAuthenticator struct{}

func (ta *trustedAuthenticator) Authenticate(token string) (*Namespace, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	namespace := Namespace(token)
	return &namespace, nil
}
