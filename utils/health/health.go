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

package health

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

const (
	// CheckPanicked is reported when a health check panics
	CheckPanicked = "healthcheck panic"

	// HTTPStatusCodeHealthChecksPass is the HTTP Status code used to indicate success
	HTTPStatusCodeHealthChecksPass = http.StatusOK
	// HTTPStatusCodeHealthChecksFail is the HTTP Status code used to indicate health check failure
	HTTPStatusCodeHealthChecksFail = http.StatusServiceUnavailable
)

// The Checker type defines an interface with a single Check() function that determines the health of a component and
// returns its status back to the caller.
type Checker interface {
	// Check performs a health check of the component.
	// Health checks should normally return quickly, and avoid synchronous network calls or long-running computations.
	// If such operations are needed, they should be performed in the background (e.g., by a separate goroutine).
	Check() Status
}

// The CheckerFunc is an adapter to allow the use of ordinary functions as health checkers.
// If fn is a function with the appropriate signature, CheckerFunc(fn) is a Checker object that calls fn.
type CheckerFunc func() Status

// Check calls fn()
func (fn CheckerFunc) Check() Status {
	return fn()
}

// Registry holds a set of named component health checkers.
// The zero value is not usable; use NewRegistry().
type Registry struct {
	checks map[string]Checker
	mutex  sync.Mutex
}

// NewRegistry creates a new, empty health check registry.
func NewRegistry() *Registry {
	return &Registry{
		checks: make(map[string]Checker),
	}
}

// Register adds the Checker and named component to the set of monitored components.
func (reg *Registry) Register(name string, check Checker) {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()

	reg.checks[name] = check
}

// RegisterFunc adds the Checker function and named component to the set of monitored components.
func (reg *Registry) RegisterFunc(name string, checker func() Status) {
	reg.Register(name, CheckerFunc(checker))
}

// Unregister removes the health checker currently registered for the named component.
func (reg *Registry) Unregister(name string) {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()

	delete(reg.checks, name)
}

// Components returns the registered components names (in arbitrary order).
func (reg *Registry) Components() []string {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()

	names := make([]string, 0, len(reg.checks))
	for name := range reg.checks {
		names = append(names, name)
	}
	return names
}

// RunChecks executes all health checks, returning a mapping between registered component names and their health
// check status.
func (reg *Registry) RunChecks() map[string]Status {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()

	var m sync.Mutex
	var wg sync.WaitGroup
	var c = len(reg.checks)

	wg.Add(c)

	results := make(map[string]Status, c)
	for name, check := range reg.checks {
		// run each component in its own go-routine to allow parallel execution
		go func(name string, hc Checker) {
			defer wg.Done()

			res := checkComponent(hc)

			m.Lock()
			defer m.Unlock()

			results[name] = res
		}(name, check)
	}
	wg.Wait()
	return results
}

// Handler returns an http.HandlerFunc that can be used to retrieve the JSON representation of health check statuses.
// The returned representation is a mapping from component name to its status.
func (reg *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hc := reg.RunChecks()

		b, err := json.Marshal(hc)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(err.Error()))
			return
		}

		responseCode := HTTPStatusCodeHealthChecksPass
		for _, status := range hc {
			if !status.Healthy { // health check failure, set the handler's response code to indicate failure
				responseCode = HTTPStatusCodeHealthChecksFail
				break
			}
		}

		w.Header().Add("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(responseCode)
		_, _ = w.Write(b)
	}
}

func checkComponent(hc Checker) (s Status) {
	defer func() {
		r := recover()
		if r != nil { // panicked - attempt to convert the common cases to an error
			msg := CheckPanicked
			if _, ok := r.(error); ok {
				s = StatusUnhealthy(msg, r.(error))
			} else if _, ok = r.(string); ok {
				s = StatusUnhealthy(msg, errors.New(r.(string)))
			} else if _, ok = r.(fmt.GoStringer); ok {
				s = StatusUnhealthy(msg, errors.New(r.(fmt.GoStringer).GoString()))
			} else if _, ok = r.(fmt.Stringer); ok {
				s = StatusUnhealthy(msg, errors.New(r.(fmt.Stringer).String()))
			} else { // panicked in an unexpected way
				panic(r)
			}
		}
	}()

	return hc.Check()
}

// The process-wide default registry, used by the package-level Register, RunChecks and Handler
// functions. Components that are constructed once per process may register here; anything
// instantiated more than once should be given an explicit Registry.
var defaultRegistry = NewRegistry()

// Register adds the Checker and named component to the default registry.
func Register(name string, check Checker) {
	defaultRegistry.Register(name, check)
}

// RegisterFunc adds the Checker function and named component to the default registry.
func RegisterFunc(name string, checker func() Status) {
	defaultRegistry.RegisterFunc(name, checker)
}

// Unregister removes the named component from the default registry.
func Unregister(name string) {
	defaultRegistry.Unregister(name)
}

// Components returns the component names registered with the default registry.
func Components() []string {
	return defaultRegistry.Components()
}

// RunChecks executes all health checks registered with the default registry.
func RunChecks() map[string]Status {
	return defaultRegistry.RunChecks()
}

// Handler returns an http.HandlerFunc reporting on the default registry.
func Handler() http.HandlerFunc {
	return defaultRegistry.Handler()
}
