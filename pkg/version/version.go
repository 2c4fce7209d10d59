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

// Package version holds build-time version information.
package version

import (
	"fmt"
	"runtime"
)

// Populated at build-time using -ldflags; e.g.,
// -ldflags "-X github.com/amalgam8/vigil/pkg/version.version=v1.0.0"
var (
	version     = "unknown"
	gitRevision = "unknown"
	buildDate   = "unknown"
)

// BuildInfo describes the binary build metadata.
type BuildInfo struct {
	Version       string
	GitRevision   string
	BuildDate     string
	GolangVersion string
}

// Build holds the build metadata of the running binary.
var Build BuildInfo

func init() {
	Build = BuildInfo{
		Version:       version,
		GitRevision:   gitRevision,
		BuildDate:     buildDate,
		GolangVersion: runtime.Version(),
	}
}

// String returns a single-line representation of the build information.
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (revision %s, built %s, %s)", b.Version, b.GitRevision, b.BuildDate, b.GolangVersion)
}
