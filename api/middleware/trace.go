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
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ant0ine/go-json-rest/rest"
	"github.com/pborman/uuid"

	"github.com/amalgam8/vigil/api/env"
)

// Trace stamps every request and its response with a unique request id,
// composed of a per-server prefix, the arrival timestamp and a request
// counter. The id keys all later log lines emitted for the request.
type Trace struct {
	prefix  string
	counter uint64
}

// NewTrace creates a trace middleware with a random server prefix.
func NewTrace() *Trace {
	return &Trace{
		prefix: uuid.New()[:8],
	}
}

// MiddlewareFunc makes Trace implement the Middleware interface.
func (mw *Trace) MiddlewareFunc(h rest.HandlerFunc) rest.HandlerFunc {
	return func(w rest.ResponseWriter, r *rest.Request) {
		id := mw.nextID()

		// Stamp before invoking the handler: downstream middleware may
		// begin writing the body, after which headers are sealed.
		r.Env[env.RequestID] = id
		w.Header().Set(env.RequestID, id)

		h(w, r)
	}
}

func (mw *Trace) nextID() string {
	return fmt.Sprintf("%s_%d_%d", mw.prefix, time.Now().UnixNano(), atomic.AddUint64(&mw.counter, 1))
}
