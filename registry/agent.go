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
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/utils/logging"
)

// DefaultHeartbeatsPerTTL is the default number of heartbeats sent per
// freshness window.
const DefaultHeartbeatsPerTTL = 3

// registrationRetryDelay is the pause between failed registration attempts.
const registrationRetryDelay = 5 * time.Second

// InstanceRegistry is the subset of registry operations the registration
// agent depends on.
type InstanceRegistry interface {
	RegisterInstance(si *ServiceInstance) (*ServiceInstance, error)
	UpdateInstanceHeartbeat(instanceID string) error
	DeregisterInstance(instanceID string) error
}

// AgentConfig encapsulates the configuration of a RegistrationAgent.
type AgentConfig struct {

	// Registry to maintain the registration with.
	Registry InstanceRegistry

	// Instance to register. The ID may be left empty for derivation.
	Instance *ServiceInstance

	// TTL is the heartbeat freshness window the agent maintains.
	// Zero selects DefaultStalenessTTL.
	TTL time.Duration
}

// RegistrationAgent maintains an instance's registration: it registers the
// instance, renews its heartbeat every TTL/DefaultHeartbeatsPerTTL,
// re-registers when the registry no longer knows the instance, and
// deregisters on Stop.
type RegistrationAgent struct {
	config AgentConfig
	logger *log.Entry
	active bool
	stop   chan struct{}
	mutex  sync.Mutex
}

// NewRegistrationAgent validates the configuration and builds an inactive agent.
func NewRegistrationAgent(config AgentConfig) (*RegistrationAgent, error) {
	if config.Registry == nil {
		return nil, fault.New(fault.Validation, "registration agent requires a registry")
	}
	if config.Instance == nil {
		return nil, fault.New(fault.Validation, "registration agent requires an instance")
	}
	if config.TTL <= 0 {
		config.TTL = DefaultStalenessTTL
	}

	agent := &RegistrationAgent{
		config: config,
		logger: logging.GetLogger(module),
		stop:   make(chan struct{}),
	}

	return agent, nil
}

// Start maintaining the registration. Non-blocking.
func (agent *RegistrationAgent) Start() {
	agent.mutex.Lock()
	defer agent.mutex.Unlock()

	if agent.active {
		return
	}
	agent.active = true

	go agent.register()
}

// Stop maintaining the registration.
// Blocks until the deregistration attempt is complete.
func (agent *RegistrationAgent) Stop() {
	agent.mutex.Lock()
	defer agent.mutex.Unlock()

	if !agent.active {
		return
	}
	agent.active = false

	agent.stop <- struct{}{}
	<-agent.stop
}

func (agent *RegistrationAgent) register() {
	for {
		registered, err := agent.config.Registry.RegisterInstance(agent.config.Instance)
		if err == nil {
			agent.logger.WithFields(log.Fields{
				"service_id":  registered.ServiceID,
				"instance_id": registered.ID,
			}).Info("Service instance successfully registered")

			go agent.renew(registered)
			return
		}

		agent.logger.WithError(err).Warnf("Instance registration failed, retrying in %s", registrationRetryDelay)

		select {
		case <-time.After(registrationRetryDelay):
			continue
		case <-agent.stop:
			agent.stop <- struct{}{}
			return
		}
	}
}

func (agent *RegistrationAgent) renew(instance *ServiceInstance) {
	interval := agent.config.TTL / DefaultHeartbeatsPerTTL

	for {
		select {
		case <-time.After(interval):
			err := agent.config.Registry.UpdateInstanceHeartbeat(instance.ID)
			if err != nil {
				agent.logger.WithError(err).WithFields(log.Fields{
					"service_id":  instance.ServiceID,
					"instance_id": instance.ID,
				}).Warn("Instance heartbeat renewal failed")

				if fault.KindOf(err) == fault.NotFound {
					go agent.register()
					return
				}
			}

		case <-agent.stop:
			agent.deregister(instance)
			agent.stop <- struct{}{}
			return
		}
	}
}

func (agent *RegistrationAgent) deregister(instance *ServiceInstance) {
	err := agent.config.Registry.DeregisterInstance(instance.ID)
	if err != nil {
		agent.logger.WithError(err).WithFields(log.Fields{
			"service_id":  instance.ServiceID,
			"instance_id": instance.ID,
		}).Warn("Instance deregistration failed")
	} else {
		agent.logger.WithFields(log.Fields{
			"service_id":  instance.ServiceID,
			"instance_id": instance.ID,
		}).Info("Service instance successfully deregistered")
	}
}
