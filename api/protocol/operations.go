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

package protocol

// Operation represents an operation exposed by the coordination API.
type Operation string

// The following are the current operations exposed by the coordination API.
const (
	RegisterService      Operation = "RegisterService"
	UpdateService                  = "UpdateService"
	DeregisterService              = "DeregisterService"
	GetService                     = "GetService"
	ListServices                   = "ListServices"
	RegisterInstance               = "RegisterInstance"
	DeregisterInstance             = "DeregisterInstance"
	RenewInstance                  = "RenewInstance"
	SetInstanceStatus              = "SetInstanceStatus"
	ListServiceInstances           = "ListServiceInstances"
	AddPolicy                      = "AddPolicy"
	ListPolicies                   = "ListPolicies"
	GetPolicy                      = "GetPolicy"
	UpdatePolicy                   = "UpdatePolicy"
	DeletePolicy                   = "DeletePolicy"
	RecordMetric                   = "RecordMetric"
)

// String returns a string representation of this Operation value.
func (op Operation) String() string {
	return string(op)
}
