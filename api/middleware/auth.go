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

package middleware

import (
	"net/http"
	"strings"

	"github.com/ant0ine/go-json-rest/rest"

	"github.com/amalgam8/vigil/api/env"
	"github.com/amalgam8/vigil/api/i18n"
	"github.com/amalgam8/vigil/pkg/auth"
)

// AuthMiddleware authenticates every request and resolves it to a
// namespace, published to the request env for the handlers downstream.
// Requests that fail authentication are answered without reaching the
// wrapped handler.
type AuthMiddleware struct {
	// TokenRouteParam names an optional route parameter carrying the auth
	// token, consulted when no Authorization header is present.
	TokenRouteParam string
	Authenticator   auth.Authenticator
}

// MiddlewareFunc makes AuthMiddleware implement the Middleware interface.
func (mw *AuthMiddleware) MiddlewareFunc(h rest.HandlerFunc) rest.HandlerFunc {
	if mw.Authenticator == nil {
		mw.Authenticator = auth.DefaultAuthenticator()
	}

	return func(w rest.ResponseWriter, r *rest.Request) {
		token, ok := mw.token(w, r)
		if !ok {
			return
		}

		namespace, err := mw.Authenticator.Authenticate(token)
		if err != nil {
			mw.reject(w, r, err)
			return
		}

		r.Env[env.Namespace] = *namespace
		h(w, r)
	}
}

// token extracts the credential: a Bearer Authorization header when
// present, else the configured route parameter.
func (mw *AuthMiddleware) token(w rest.ResponseWriter, r *rest.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return r.PathParam(mw.TokenRouteParam), true
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		i18n.Error(r, w, http.StatusUnauthorized, i18n.ErrorAuthorizationMalformedHeader)
		return "", false
	}
	return parts[1], true
}

func (mw *AuthMiddleware) reject(w rest.ResponseWriter, r *rest.Request, err error) {
	switch err {
	case auth.ErrEmptyToken:
		i18n.Error(r, w, http.StatusUnauthorized, i18n.ErrorAuthorizationMissingHeader)
	case auth.ErrUnauthorized, auth.ErrUnrecognizedToken:
		i18n.Error(r, w, http.StatusUnauthorized, i18n.ErrorAuthorizationNotAuthorized)
	case auth.ErrCommunicationError:
		i18n.Error(r, w, http.StatusServiceUnavailable, i18n.ErrorAuthorizationTokenValidationFailed)
	default:
		i18n.Error(r, w, http.StatusInternalServerError, i18n.ErrorInternalServer)
	}
}
