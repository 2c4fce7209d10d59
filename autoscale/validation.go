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

package autoscale

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/utils/logging"
)

// policySchema is the JSON schema every policy must satisfy before it is
// accepted by the manager. Cross-field constraints that JSON schema cannot
// express (min/max/desired ordering) are checked separately.
const policySchema = `{
	"$schema": "http://json-schema.org/draft-04/schema#",
	"type": "object",
	"required": ["service_id", "max_instances", "rules"],
	"properties": {
		"id": {
			"type": "string"
		},
		"service_id": {
			"type": "string",
			"minLength": 1
		},
		"min_instances": {
			"type": "integer",
			"minimum": 0
		},
		"max_instances": {
			"type": "integer",
			"minimum": 1
		},
		"desired_instances": {
			"type": "integer",
			"minimum": 0
		},
		"cooldown_period": {
			"type": "integer",
			"minimum": 0
		},
		"rules": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["metric", "threshold", "operator", "direction", "amount"],
				"properties": {
					"metric": {
						"type": "string",
						"minLength": 1
					},
					"threshold": {
						"type": "number"
					},
					"operator": {
						"type": "string",
						"enum": [">", ">=", "<", "<="]
					},
					"direction": {
						"type": "string",
						"enum": ["UP", "DOWN"]
					},
					"amount": {
						"type": "integer",
						"minimum": 1
					},
					"evaluation_periods": {
						"type": "integer",
						"minimum": 1
					}
				}
			}
		},
		"status": {
			"type": "string",
			"enum": ["ACTIVE", "SCALING", "COOLDOWN"]
		}
	}
}`

// Validator validates policies against the policy schema.
type Validator interface {
	Validate(policy *Policy) error
}

type validator struct {
	schema *gojsonschema.Schema
	logger *log.Entry
}

// NewValidator returns a new Validator.
func NewValidator() (Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(policySchema))
	if err != nil {
		return nil, err
	}

	return &validator{
		schema: schema,
		logger: logging.GetLogger(module),
	}, nil
}

// Validate a policy
func (v *validator) Validate(policy *Policy) error {
	if policy == nil {
		return fault.New(fault.Validation, "no policy provided")
	}

	result, err := v.schema.Validate(gojsonschema.NewGoLoader(policy))
	if err != nil {
		v.logger.WithError(err).Error("Could not validate policy with schema")
		return err
	}

	if !result.Valid() {
		descriptions := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			descriptions[i] = fmt.Sprintf("%v: %v", e.Field(), e.Description())
		}

		v.logger.WithFields(log.Fields{
			"descriptions": descriptions,
		}).Warn("Invalid autoscaling policy")

		return fault.Newf(fault.Validation, "invalid policy: %s", strings.Join(descriptions, "; "))
	}

	if policy.MinInstances > policy.MaxInstances {
		return fault.Newf(fault.Validation, "min instances %d exceeds max instances %d",
			policy.MinInstances, policy.MaxInstances)
	}
	if policy.DesiredInstances != 0 &&
		(policy.DesiredInstances < policy.MinInstances || policy.DesiredInstances > policy.MaxInstances) {
		return fault.Newf(fault.Validation, "desired instances %d outside [%d, %d]",
			policy.DesiredInstances, policy.MinInstances, policy.MaxInstances)
	}

	return nil
}
