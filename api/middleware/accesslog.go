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
	"net"
	"net/http"
	"time"

	"github.com/ant0ine/go-json-rest/rest"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/api/env"
	"github.com/amalgam8/vigil/api/protocol"
	"github.com/amalgam8/vigil/pkg/auth"
	"github.com/amalgam8/vigil/utils/logging"
)

const (
	module         = "ACCESS"
	clientIPHeader = "X-Client-Ip"
)

// AccessLog writes one structured log line per request. It reads the timing
// and response fields recorded by TimerMiddleware and RecorderMiddleware,
// and the namespace resolved by the auth middleware, so it must wrap them
// in the middleware chain.
type AccessLog struct {
	logger *log.Entry
}

// MiddlewareFunc makes AccessLog implement the Middleware interface.
func (mw *AccessLog) MiddlewareFunc(h rest.HandlerFunc) rest.HandlerFunc {
	mw.logger = logging.GetLogger(module).WithField("apptype", "vigil")

	return func(w rest.ResponseWriter, r *rest.Request) {
		// Deferred so the line is written even when a handler panics.
		defer func() {
			mw.logger.WithFields(summarize(r)).Infof(
				"%s %s %s %s", clientAddress(r), r.Method, r.RequestURI, r.Proto)
		}()

		h(w, r)
	}
}

// summarize collects the per-request fields recorded along the middleware
// chain, tolerating absent entries when the chain aborted early.
func summarize(r *rest.Request) log.Fields {
	requestID, ok := r.Env[env.RequestID].(string)
	if !ok {
		requestID = "Unknown"
	}

	method := r.Method
	if op, ok := r.Env[env.APIOperation].(protocol.Operation); ok {
		method = op.String()
	}

	status := http.StatusInternalServerError
	if code, ok := r.Env[env.StatusCode].(int); ok {
		status = code
	}

	var written int64
	if n, ok := r.Env[env.BytesWritten].(int64); ok {
		written = n
	}

	var elapsed *time.Duration
	if d, ok := r.Env[env.ElapsedTime].(*time.Duration); ok {
		elapsed = d
	}

	namespace, _ := r.Env[env.Namespace].(auth.Namespace)

	return log.Fields{
		"request_id":   requestID,
		"namespace":    namespace,
		"method":       method,
		"returncode":   status,
		"byteswritten": written,
		"elapsedtime":  elapsed,
	}
}

// clientAddress prefers the client address reported by an edge proxy over
// the peer address of the connection.
func clientAddress(r *rest.Request) string {
	if addr := r.Header.Get(clientIPHeader); addr != "" {
		return addr
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
