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

import "time"

// Event types published on the instance status channel.
const (
	EventInstanceRegistered   = "instance_registered"
	EventInstanceDeregistered = "instance_deregistered"
	EventInstanceStatusChange = "instance_status_change"
)

// InstanceEvent is the payload published on the instance status channel
// whenever an instance is registered, deregistered, or changes status.
// Delivery is at-least-once; consumers must tolerate duplicates.
type InstanceEvent struct {
	Type       string         `json:"type"`
	Namespace  string         `json:"namespace,omitempty"`
	ServiceID  string         `json:"service_id"`
	InstanceID string         `json:"instance_id"`
	Status     InstanceStatus `json:"status,omitempty"`
	PrevStatus InstanceStatus `json:"prev_status,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
