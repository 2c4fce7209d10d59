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

// Package health tracks the liveness of individual application components.
//
// A component registers a Checker (or a plain function, via RegisterFunc)
// under its name, either with an explicit Registry or with the process-wide
// default one. Each check reports a binary healthy/unhealthy Status,
// optionally carrying a message and, when unhealthy, a root cause.
//
// Attaching Handler() to an HTTP route exposes the aggregate: the body is a
// JSON map of component names to statuses, and the response code flips to
// 503 as soon as any component is unhealthy.
package health
