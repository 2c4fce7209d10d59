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
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/store"
	"github.com/amalgam8/vigil/utils/logging"
)

const policyKeyPrefix = "autoscale:policy:"

// Manager maintains the set of autoscaling policies. Policies are persisted
// in the state store, so every evaluator instance observes the same set.
type Manager interface {
	// AddPolicy validates the given policy, assigns it an ID and stores it.
	// A service carries at most one policy.
	AddPolicy(policy *Policy) (*Policy, error)

	// GetPolicy returns the policy with the given ID.
	GetPolicy(id string) (*Policy, error)

	// GetServicePolicy returns the policy attached to the given service.
	GetServicePolicy(serviceID string) (*Policy, error)

	// ListPolicies returns all stored policies.
	ListPolicies() ([]*Policy, error)

	// UpdatePolicy validates and stores the given policy in place of the
	// stored version with the same ID.
	UpdatePolicy(policy *Policy) error

	// DeletePolicy removes the policy with the given ID.
	DeletePolicy(id string) error
}

type manager struct {
	store     store.Store
	validator Validator
	logger    *log.Entry
}

// NewManager creates a store-backed policy manager.
func NewManager(s store.Store, validator Validator) (Manager, error) {
	if s == nil {
		return nil, fault.New(fault.Validation, "manager requires a store")
	}
	if validator == nil {
		v, err := NewValidator()
		if err != nil {
			return nil, err
		}
		validator = v
	}

	return &manager{
		store:     s,
		validator: validator,
		logger:    logging.GetLogger(module),
	}, nil
}

func (m *manager) AddPolicy(policy *Policy) (*Policy, error) {
	if err := m.validator.Validate(policy); err != nil {
		return nil, err
	}

	existing, err := m.GetServicePolicy(policy.ServiceID)
	if err != nil && !fault.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return nil, fault.Newf(fault.Validation, "service %q already has policy %q",
			policy.ServiceID, existing.ID).WithStatusCode(http.StatusConflict)
	}

	added := *policy
	added.ID = uuid.New()
	if added.DesiredInstances == 0 {
		added.DesiredInstances = added.MinInstances
	}
	if added.Status == "" {
		added.Status = StatusActive
	}

	if err := m.persist(&added); err != nil {
		return nil, err
	}

	m.logger.WithFields(log.Fields{
		"policy_id":  added.ID,
		"service_id": added.ServiceID,
	}).Info("Autoscaling policy added")

	return &added, nil
}

func (m *manager) GetPolicy(id string) (*Policy, error) {
	data, err := m.store.Get(policyKeyPrefix + id)
	if err != nil {
		if fault.IsNotFound(err) {
			return nil, fault.Newf(fault.NotFound, "no such policy %q", id)
		}
		return nil, err
	}

	policy := &Policy{}
	if err := json.Unmarshal(data, policy); err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"policy_id": id,
		}).Error("Could not unmarshal stored policy")
		return nil, err
	}
	return policy, nil
}

func (m *manager) GetServicePolicy(serviceID string) (*Policy, error) {
	policies, err := m.ListPolicies()
	if err != nil {
		return nil, err
	}
	for _, policy := range policies {
		if policy.ServiceID == serviceID {
			return policy, nil
		}
	}
	return nil, fault.Newf(fault.NotFound, "service %q has no policy", serviceID)
}

func (m *manager) ListPolicies() ([]*Policy, error) {
	keys, err := m.store.Keys(policyKeyPrefix + "*")
	if err != nil {
		return nil, err
	}

	policies := make([]*Policy, 0, len(keys))
	for _, key := range keys {
		data, err := m.store.Get(key)
		if err != nil {
			// Deleted between the key scan and the read.
			if fault.IsNotFound(err) {
				continue
			}
			return nil, err
		}

		policy := &Policy{}
		if err := json.Unmarshal(data, policy); err != nil {
			m.logger.WithError(err).WithFields(log.Fields{
				"key": key,
			}).Error("Could not unmarshal stored policy")
			return nil, err
		}
		policies = append(policies, policy)
	}
	return policies, nil
}

func (m *manager) UpdatePolicy(policy *Policy) error {
	if policy == nil || policy.ID == "" {
		return fault.New(fault.Validation, "policy ID not set")
	}
	if err := m.validator.Validate(policy); err != nil {
		return err
	}

	stored, err := m.GetPolicy(policy.ID)
	if err != nil {
		return err
	}

	updated := *policy
	if updated.DesiredInstances == 0 {
		updated.DesiredInstances = updated.MinInstances
	}

	// Evaluation state is owned by the evaluator. Updates that leave it
	// unset keep the stored values.
	if updated.Status == "" {
		updated.Status = stored.Status
	}
	if updated.LastScalingActivity.IsZero() {
		updated.LastScalingActivity = stored.LastScalingActivity
	}

	return m.persist(&updated)
}

func (m *manager) DeletePolicy(id string) error {
	err := m.store.Delete(policyKeyPrefix + id)
	if fault.IsNotFound(err) {
		return fault.Newf(fault.NotFound, "no such policy %q", id)
	}
	return err
}

func (m *manager) persist(policy *Policy) error {
	data, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("could not marshal policy %q: %v", policy.ID, err)
	}
	return m.store.Set(policyKeyPrefix+policy.ID, data, 0)
}
