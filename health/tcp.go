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
	"context"
	"fmt"
	"net"
	"time"
)

// TCP performs connect probes against a "host:port" address.
type TCP struct {
	address string
	timeout time.Duration
}

// NewTCP creates a new TCP health check.
func NewTCP(conf CheckConfig) (Check, error) {
	if err := validateTCPConfig(&conf); err != nil {
		return nil, err
	}

	return &TCP{
		address: conf.Value,
		timeout: conf.Timeout,
	}, nil
}

// validateTCPConfig validates, sanitizes, and sets defaults for a TCP health check configuration.
func validateTCPConfig(conf *CheckConfig) error {
	if conf.Type != TCPCheck {
		return fmt.Errorf("invalid type for a TCP healthcheck: '%s'", conf.Type)
	}

	if conf.Value == "" {
		return fmt.Errorf("empty address for TCP healthcheck")
	}
	if _, _, err := net.SplitHostPort(conf.Value); err != nil {
		return fmt.Errorf("invalid address '%s' for TCP healthcheck: %v", conf.Value, err)
	}

	applyTimingDefaults(conf)
	return nil
}

// Execute dials the address and closes the connection.
func (t *TCP) Execute(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: t.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.address)
	if err != nil {
		return err
	}
	return conn.Close()
}
