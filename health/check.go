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

// Package health implements instance health checking: probe execution
// (HTTP, HTTPS, TCP), periodic probe agents, and the hysteresis monitor
// that drives instance status in the service registry.
package health

import (
	"context"
	"fmt"
	"time"
)

// Supported health check types.
const (
	HTTPCheck  = "http"
	HTTPSCheck = "https"
	TCPCheck   = "tcp"
)

const (
	defaultInterval = 30 * time.Second
	defaultTimeout  = 5 * time.Second
)

// DefaultUnhealthyThreshold is the default number of consecutive failed
// probes required to mark an instance unhealthy.
const DefaultUnhealthyThreshold = 2

// DefaultHealthyThreshold is the default number of consecutive successful
// probes required to mark an instance healthy.
const DefaultHealthyThreshold = 2

// Check is an interface for performing a single probe.
type Check interface {

	// Execute the health check and return an error on failure.
	// A probe that outlives the context deadline fails.
	Execute(ctx context.Context) error
}

// Result is the outcome of one probe run.
type Result struct {
	Check Check
	Error error
}

// CheckConfig describes a single probe.
type CheckConfig struct {

	// Type of the check: "http", "https" or "tcp".
	Type string `json:"type" yaml:"type"`

	// Value is the probe target: a URL for HTTP(S) checks,
	// a "host:port" address for TCP checks.
	Value string `json:"value" yaml:"value"`

	// Method is the HTTP method used by HTTP(S) checks.
	Method string `json:"method,omitempty" yaml:"method"`

	// Code is the expected HTTP response code for HTTP(S) checks.
	Code int `json:"code,omitempty" yaml:"code"`

	// Interval is the time between consecutive probes.
	Interval time.Duration `json:"interval,omitempty" yaml:"interval"`

	// Timeout is the per-probe timeout.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout"`

	// CACertPath is an optional trusted CA bundle for HTTPS checks.
	CACertPath string `json:"ca_cert_path,omitempty" yaml:"ca_cert_path"`
}

// New creates a health check from the given configuration.
func New(conf CheckConfig) (Check, error) {
	switch conf.Type {
	case "", HTTPCheck, HTTPSCheck:
		return NewHTTP(conf)
	case TCPCheck:
		return NewTCP(conf)
	default:
		return nil, fmt.Errorf("unsupported healthcheck type: '%s'", conf.Type)
	}
}

// applyTimingDefaults fills unset probe timing fields.
func applyTimingDefaults(conf *CheckConfig) {
	if conf.Interval == 0 {
		conf.Interval = defaultInterval
	}
	if conf.Timeout == 0 {
		conf.Timeout = defaultTimeout
	}
}
