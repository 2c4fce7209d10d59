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

package v1

import (
	"github.com/amalgam8/vigil/autoscale"
	"github.com/amalgam8/vigil/registry"
)

// ServicesList is the response body of a service listing call
type ServicesList struct {
	Services []*registry.ServiceDefinition `json:"services"`
}

// InstancesList is the response body of an instance listing call
type InstancesList struct {
	Instances []*registry.ServiceInstance `json:"instances"`
}

// PoliciesList is the response body of an autoscaling policy listing call
type PoliciesList struct {
	Policies []*autoscale.Policy `json:"policies"`
}

// StatusUpdate is the request body of an instance status update call
type StatusUpdate struct {
	Status registry.InstanceStatus `json:"status"`
}

// MetricSample is the request body of a metric ingestion call
type MetricSample struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
}
