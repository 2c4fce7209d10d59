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

// Package env names the request.Env keys shared across the middleware
// chain. The STATUS_CODE, BYTES_WRITTEN, START_TIME and ELAPSED_TIME
// values are fixed by the go-json-rest recorder and timer middlewares.
package env

// Each key is read as request.Env[key].(type)
const (
	// Namespace is the tenancy scope resolved by the auth middleware
	// Type: auth.Namespace
	Namespace = "NAMESPACE"

	// RequestID is the unique request id assigned by the trace middleware
	// Type: string
	RequestID = "REQUEST_ID"

	// StatusCode is the HTTP status written, set by rest.RecorderMiddleware
	// Type: int
	StatusCode = "STATUS_CODE"

	// BytesWritten is the response body size, set by rest.RecorderMiddleware
	// Type: int64
	BytesWritten = "BYTES_WRITTEN"

	// StartTime is when handler execution began, set by rest.TimerMiddleware
	// Type: *time.Time
	StartTime = "START_TIME"

	// ElapsedTime is the handler execution time, set by rest.TimerMiddleware
	// Type: *time.Duration
	ElapsedTime = "ELAPSED_TIME"

	// APIOperation is the logical operation of the route, stamped by the
	// protocol descriptor when the route is built
	// Type: protocol.Operation
	APIOperation = "API_OPERATION"
)
