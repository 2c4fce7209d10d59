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

package store

import (
	"github.com/amalgam8/vigil/utils/health"
)

// livenessKey is the key probed by the store health check.
// Only the round trip matters; the key is never written.
const livenessKey = "liveness"

// healthChecker is a health.Checker implementation that verifies the backing
// database answers a cheap read.
type healthChecker struct {
	store   Store
	backend string
}

func newHealthChecker(s Store, backend string) *healthChecker {
	return &healthChecker{store: s, backend: backend}
}

func (hc *healthChecker) Check() health.Status {
	if _, err := hc.store.Exists(livenessKey); err != nil {
		return health.StatusUnhealthy("Store backend is unreachable", err)
	}
	return health.StatusHealthyWithProperties(map[string]interface{}{"backend": hc.backend})
}
