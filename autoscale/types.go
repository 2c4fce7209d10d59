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
	"time"
)

// Status values of an autoscaling policy
type Status string

// Predefined policy status values
const (
	StatusActive   Status = "ACTIVE"
	StatusScaling  Status = "SCALING"
	StatusCooldown Status = "COOLDOWN"
)

// Operator compares an aggregated metric value against a rule threshold.
type Operator string

// Predefined comparison operators
const (
	GreaterThan    Operator = ">"
	GreaterOrEqual Operator = ">="
	LessThan       Operator = "<"
	LessOrEqual    Operator = "<="
)

// Direction of a scaling adjustment.
type Direction string

// Predefined scaling directions
const (
	ScaleUp   Direction = "UP"
	ScaleDown Direction = "DOWN"
)

// ScalingRule ties a metric condition to a scaling adjustment.
// The rule fires only when every one of the last EvaluationPeriods
// aggregation windows satisfies the condition, so a single noisy
// sample never triggers a fleet change.
type ScalingRule struct {

	// Metric is the name of the observed service metric.
	Metric string `json:"metric"`

	// Threshold is the boundary value the aggregated metric is compared against.
	Threshold float64 `json:"threshold"`

	// Operator is the comparison applied between the aggregated value and the threshold.
	Operator Operator `json:"operator"`

	// Direction determines whether firing grows or shrinks the fleet.
	Direction Direction `json:"direction"`

	// Amount is the number of instances added or removed per scaling action.
	Amount int `json:"amount"`

	// EvaluationPeriods is the number of consecutive windows that must
	// satisfy the condition before the rule fires.
	EvaluationPeriods int `json:"evaluation_periods"`
}

// Policy is an autoscaling policy attached to a single service.
type Policy struct {

	// ID uniquely identifies the policy. Assigned by the manager.
	ID string `json:"id,omitempty"`

	// ServiceID identifies the scaled service.
	ServiceID string `json:"service_id"`

	// MinInstances is the lower bound of the fleet size.
	MinInstances int `json:"min_instances"`

	// MaxInstances is the upper bound of the fleet size.
	MaxInstances int `json:"max_instances"`

	// DesiredInstances is the target fleet size. Defaults to MinInstances,
	// and stays within [MinInstances, MaxInstances] after every transition.
	DesiredInstances int `json:"desired_instances,omitempty"`

	// CooldownPeriod is the minimum time between two scaling actions.
	CooldownPeriod time.Duration `json:"cooldown_period,omitempty"`

	// Rules are the scaling rules evaluated on each tick, in order.
	Rules []ScalingRule `json:"rules"`

	// Status reports the current evaluation state of the policy.
	Status Status `json:"status,omitempty"`

	// LastScalingActivity is the time the last scaling action was applied.
	LastScalingActivity time.Time `json:"last_scaling_activity,omitempty"`
}

// Activity describes an applied scaling decision. Activities are published
// on the scaling activity channel of the state store.
type Activity struct {

	// PolicyID identifies the policy that produced the decision.
	PolicyID string `json:"policy_id"`

	// ServiceID identifies the scaled service.
	ServiceID string `json:"service_id"`

	// Metric is the metric of the rule that fired.
	Metric string `json:"metric"`

	// Direction of the applied adjustment.
	Direction Direction `json:"direction"`

	// PreviousDesired is the desired fleet size before the decision.
	PreviousDesired int `json:"previous_desired"`

	// Desired is the desired fleet size after the decision.
	Desired int `json:"desired"`

	// Instances is the observed fleet size at decision time.
	Instances int `json:"instances"`

	// Timestamp is the time the decision was applied.
	Timestamp time.Time `json:"timestamp"`
}
