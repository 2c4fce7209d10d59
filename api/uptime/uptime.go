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

// Package uptime exposes the process liveness endpoints.
package uptime

import (
	"math"
	"net/http"
	"syscall"
	"time"

	"github.com/ant0ine/go-json-rest/rest"

	"github.com/amalgam8/vigil/pkg/version"
	"github.com/amalgam8/vigil/utils/health"
)

const (
	uptimePath  = "/uptime"
	healthyPath = "/"

	component = "UPTIME"
)

// URL returns the path serving the aggregated component health report.
func URL() string {
	return uptimePath
}

// HealthyURL returns the path that unconditionally reports liveness.
func HealthyURL() string {
	return healthyPath
}

// RouteHandlers returns the uptime route handlers.
func RouteHandlers() []*rest.Route {
	return []*rest.Route{
		rest.Get(uptimePath, reportHealth),
		rest.Get(healthyPath, alwaysHealthy),
	}
}

var (
	startTime     = time.Now().UTC()
	healthHandler = health.Handler()
)

func init() {
	health.RegisterFunc(component, uptimeStatus)
}

func reportHealth(w rest.ResponseWriter, r *rest.Request) {
	healthHandler.ServeHTTP(w.(http.ResponseWriter), r.Request)
}

// alwaysHealthy answers 200 unconditionally. Cloud supervisors poll a bare
// endpoint (normally "/") to decide whether to recycle the process.
func alwaysHealthy(w rest.ResponseWriter, r *rest.Request) {
	w.WriteHeader(http.StatusOK)
}

// uptimeStatus is an ever-healthy check reporting process uptime, system
// load and build information.
func uptimeStatus() health.Status {
	loads := loadAverages()
	return health.StatusHealthyWithProperties(map[string]interface{}{
		"uptime":          time.Now().UTC().Sub(startTime).String(),
		"load_1m":         loads[0],
		"load_5m":         loads[1],
		"load_15m":        loads[2],
		"build_version":   version.Build.Version,
		"build_revision":  version.Build.GitRevision,
		"build_date":      version.Build.BuildDate,
		"build_goversion": version.Build.GolangVersion,
	})
}

// loadAverages reads the 1/5/15 minute load averages, all zero when the
// sysinfo call fails.
func loadAverages() [3]float64 {
	// Sysinfo reports loads as fixed-point with a 2^16 scale.
	const loadScale = 1 << 16

	var loads [3]float64
	var info syscall.Sysinfo_t
	if err := syscall.Sysinfo(&info); err != nil {
		return loads
	}
	for i, load := range info.Loads {
		loads[i] = roundTo(float64(load)/loadScale, 3)
	}
	return loads
}

func roundTo(num float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(num*scale) / scale
}
