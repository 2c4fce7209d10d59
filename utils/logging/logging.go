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

// Package logging provides a simple wrapper over the logrus logging library,
// adding consistent module-based scoping of log messages.
package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Supported log output formats.
const (
	TextFormat = "text"
	JSONFormat = "json"
)

// GetLogger returns a logger scoped with the given module name.
func GetLogger(module string) *logrus.Entry {
	if module == "" {
		logrus.Warn("Requested a logger without a module name")
		module = "undefined"
	}
	return logrus.WithField("module", module)
}

// GetLogFormatter returns the formatter for the given format name.
func GetLogFormatter(format string) (logrus.Formatter, error) {
	switch format {
	case TextFormat:
		return &logrus.TextFormatter{DisableColors: true}, nil
	case JSONFormat:
		return &logrus.JSONFormatter{}, nil
	}
	return nil, fmt.Errorf("unknown log format: %v", format)
}
