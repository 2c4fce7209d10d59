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

package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/amalgam8/vigil/pkg/fault"
)

const (
	serviceNameMaxLength = 64
	statusMaxLength      = 32
	metadataMaxLength    = 1024
)

// InstanceStatus represents the lifecycle state of a service instance.
type InstanceStatus string

// Service instance lifecycle states.
const (
	InstanceStarting  InstanceStatus = "STARTING"
	InstanceRunning   InstanceStatus = "RUNNING"
	InstanceStopping  InstanceStatus = "STOPPING"
	InstanceStopped   InstanceStatus = "STOPPED"
	InstanceUnhealthy InstanceStatus = "UNHEALTHY"
	InstanceFailed    InstanceStatus = "FAILED"
)

// Valid reports whether the status is one of the recognized lifecycle states.
func (s InstanceStatus) Valid() bool {
	switch s {
	case InstanceStarting, InstanceRunning, InstanceStopping,
		InstanceStopped, InstanceUnhealthy, InstanceFailed:
		return true
	}
	return false
}

// HealthCheckSpec describes how instances of a service should be probed.
type HealthCheckSpec struct {

	// Path is the HTTP path to probe. An empty path implies a TCP dial probe.
	Path string `json:"path,omitempty"`

	// Interval is the time between consecutive probes.
	Interval time.Duration `json:"interval,omitempty"`

	// Timeout is the per-probe timeout. A probe exceeding it counts as a failure.
	Timeout time.Duration `json:"timeout,omitempty"`

	// UnhealthyThreshold is the number of consecutive failed probes
	// required to mark an instance unhealthy.
	UnhealthyThreshold int `json:"unhealthy_threshold,omitempty"`

	// HealthyThreshold is the number of consecutive successful probes
	// required to mark an instance healthy again.
	HealthyThreshold int `json:"healthy_threshold,omitempty"`
}

// ServiceDefinition describes a logical service known to the registry.
type ServiceDefinition struct {

	// ID is the unique ID of this service. Defaults to the service name.
	ID string `json:"id,omitempty"`

	// Name is the service name.
	Name string `json:"name"`

	// Dependencies is the set of service IDs this service depends on.
	Dependencies []string `json:"dependencies,omitempty"`

	// MinInstances is the lower bound on the number of instances.
	MinInstances int `json:"min_instances,omitempty"`

	// MaxInstances is the upper bound on the number of instances.
	MaxInstances int `json:"max_instances,omitempty"`

	// HealthCheck describes how instances of this service are probed.
	HealthCheck *HealthCheckSpec `json:"health_check,omitempty"`
}

// Validate checks the scalar fields of the service definition.
// Dependency cycles are validated at registration time, against the
// full set of registered definitions.
func (sd *ServiceDefinition) Validate() error {
	if sd.Name == "" {
		return fault.New(fault.Validation, "service name is required")
	}
	if len(sd.Name) > serviceNameMaxLength {
		return fault.Newf(fault.Validation, "service name length exceeds %d characters", serviceNameMaxLength)
	}
	if sd.MinInstances < 0 {
		return fault.New(fault.Validation, "min_instances must be non-negative")
	}
	if sd.MaxInstances < sd.MinInstances {
		return fault.Newf(fault.Validation, "max_instances (%d) must not be less than min_instances (%d)",
			sd.MaxInstances, sd.MinInstances)
	}
	return nil
}

// DeepClone creates a deep copy of the service definition.
func (sd *ServiceDefinition) DeepClone() *ServiceDefinition {
	cloned := *sd
	if sd.Dependencies != nil {
		cloned.Dependencies = make([]string, len(sd.Dependencies))
		copy(cloned.Dependencies, sd.Dependencies)
	}
	if sd.HealthCheck != nil {
		hc := *sd.HealthCheck
		cloned.HealthCheck = &hc
	}
	return &cloned
}

// ServiceInstance describes a single instance of a service.
type ServiceInstance struct {

	// ID is the unique ID assigned to this service instance.
	ID string `json:"id,omitempty"`

	// ServiceID is the ID of the service this instance belongs to.
	ServiceID string `json:"service_id"`

	// Address is the network address of this instance, in "host:port" form.
	Address string `json:"address"`

	// Status is the lifecycle state of this instance.
	Status InstanceStatus `json:"status,omitempty"`

	// Tags is a set of arbitrary tags attached to this instance.
	Tags []string `json:"tags,omitempty"`

	// Metadata is a marshaled JSON value associated with this instance, in encoded form.
	Metadata json.RawMessage `json:"metadata,omitempty"`

	// LastHeartbeat is the timestamp at which a heartbeat was last received
	// for this instance.
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
}

// Validate checks the fields of the service instance.
func (si *ServiceInstance) Validate() error {
	if si.ServiceID == "" {
		return fault.New(fault.Validation, "instance service_id is required")
	}
	if si.Address == "" {
		return fault.New(fault.Validation, "instance address is required")
	}
	if si.Status != "" && !si.Status.Valid() {
		return fault.Newf(fault.Validation, "unrecognized instance status %q", si.Status)
	}
	if len(si.Status) > statusMaxLength {
		return fault.New(fault.Validation, "instance status length too long")
	}
	if si.Metadata != nil && len(si.Metadata) > metadataMaxLength {
		return fault.New(fault.Validation, "instance metadata length too long")
	}
	return nil
}

// DeepClone creates a deep copy of the service instance.
func (si *ServiceInstance) DeepClone() *ServiceInstance {
	cloned := *si
	if si.Tags != nil {
		cloned.Tags = make([]string, len(si.Tags))
		copy(cloned.Tags, si.Tags)
	}
	if si.Metadata != nil {
		cloned.Metadata = make(json.RawMessage, len(si.Metadata))
		copy(cloned.Metadata, si.Metadata)
	}
	return &cloned
}

// String produces a short human-readable description of the instance.
func (si *ServiceInstance) String() string {
	return fmt.Sprintf("%s (%s at %s, %s)", si.ID, si.ServiceID, si.Address, si.Status)
}

// computeInstanceID derives a deterministic instance ID, so that duplicate
// registration requests for the same endpoint converge on the same record.
func computeInstanceID(si *ServiceInstance) string {
	hash := sha256.New()
	hash.Write([]byte(strings.Join([]string{si.ServiceID, si.Address}, "/")))
	md := hash.Sum(nil)
	mdStr := hex.EncodeToString(md)
	return mdStr[:16]
}
