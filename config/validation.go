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

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// ValidatorFunc performs a single configuration check.
type ValidatorFunc func() error

// Validate runs the checks in order, stopping at the first failure.
func Validate(validators []ValidatorFunc) error {
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsNotEmpty fails on an empty value.
func IsNotEmpty(name, value string) ValidatorFunc {
	return func() error {
		if value == "" {
			return errors.New(name + " must not be empty")
		}
		return nil
	}
}

// IsInRange fails unless min <= value <= max.
func IsInRange(name string, value, min, max int) ValidatorFunc {
	return func() error {
		if value < min || value > max {
			return fmt.Errorf("%s must be in the range [%d, %d]", name, min, max)
		}
		return nil
	}
}

// IsInRangeDuration fails unless min <= value <= max.
func IsInRangeDuration(name string, value, min, max time.Duration) ValidatorFunc {
	return func() error {
		if value < min || value > max {
			return fmt.Errorf("%s must be between %v and %v", name, min, max)
		}
		return nil
	}
}

// IsInSet fails unless the value is one of the set members.
func IsInSet(name, value string, set []string) ValidatorFunc {
	return func() error {
		for _, member := range set {
			if value == member {
				return nil
			}
		}
		return fmt.Errorf("%s must be one of %v", name, set)
	}
}

// IsValidDomain fails unless the value is a valid, non-root domain name.
func IsValidDomain(name, value string) ValidatorFunc {
	return func() error {
		if labels, ok := dns.IsDomainName(value); !ok || labels == 0 {
			return errors.New(name + " is not a valid domain name")
		}
		return nil
	}
}
