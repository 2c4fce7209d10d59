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
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/registry"
	"github.com/amalgam8/vigil/store"
	"github.com/amalgam8/vigil/utils/logging"
)

// InstanceSource is the subset of registry operations the checker depends on.
type InstanceSource interface {
	GetService(serviceID string) (*registry.ServiceDefinition, error)
	GetServiceInstances(serviceID string) ([]*registry.ServiceInstance, error)
	ListInstances() []*registry.ServiceInstance
	UpdateInstanceStatus(instanceID string, status registry.InstanceStatus) error
}

// CheckerConfig encapsulates the configuration of a Checker.
type CheckerConfig struct {

	// Registry provides the monitored instances and receives status updates.
	Registry InstanceSource

	// Store delivers instance lifecycle events and carries transition events.
	Store store.Store
}

// Checker maintains one health monitor per registered instance of every
// service that carries a health-check spec. It follows instance lifecycle
// events: a registration spawns a monitor, a deregistration stops it.
type Checker struct {
	registry InstanceSource
	store    store.Store
	logger   *log.Entry

	monitors     map[string]*Monitor
	subscription store.Subscription
	active       bool
	mutex        sync.Mutex
}

// NewChecker creates a Checker.
func NewChecker(conf CheckerConfig) (*Checker, error) {
	if conf.Registry == nil {
		return nil, fault.New(fault.Validation, "checker requires a registry")
	}
	if conf.Store == nil {
		return nil, fault.New(fault.Validation, "checker requires a store")
	}

	return &Checker{
		registry: conf.Registry,
		store:    conf.Store,
		logger:   logging.GetLogger(module),
		monitors: make(map[string]*Monitor),
	}, nil
}

// Start monitoring. Monitors are created for all currently registered
// instances and maintained as instances come and go.
func (c *Checker) Start() error {
	c.mutex.Lock()
	if c.active {
		c.mutex.Unlock()
		return nil
	}

	subscription, err := c.store.Subscribe(store.InstanceStatusChannel, c.handleEvent)
	if err != nil {
		c.mutex.Unlock()
		return err
	}
	c.subscription = subscription
	c.active = true
	c.mutex.Unlock()

	for _, si := range c.registry.ListInstances() {
		c.ensureMonitor(si.ServiceID, si.ID)
	}
	return nil
}

// Stop monitoring and stop all monitors.
func (c *Checker) Stop() {
	c.mutex.Lock()
	if !c.active {
		c.mutex.Unlock()
		return
	}
	c.active = false

	subscription := c.subscription
	c.subscription = nil
	stopped := make([]*Monitor, 0, len(c.monitors))
	for id, monitor := range c.monitors {
		stopped = append(stopped, monitor)
		delete(c.monitors, id)
	}
	c.mutex.Unlock()

	// Monitors are stopped outside the lock. A stopping monitor may be
	// mid-transition, and its status update re-enters handleEvent when
	// event delivery is synchronous.
	if err := subscription.Unsubscribe(); err != nil {
		c.logger.WithError(err).Warn("Failed to unsubscribe from instance events")
	}
	for _, monitor := range stopped {
		monitor.Stop()
	}
}

// Status reports the current state of every monitored instance, keyed by
// instance ID.
func (c *Checker) Status() map[string]CheckStatus {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	statuses := make(map[string]CheckStatus, len(c.monitors))
	for id, monitor := range c.monitors {
		statuses[id] = monitor.Status()
	}
	return statuses
}

func (c *Checker) handleEvent(msg store.Message) {
	event := &registry.InstanceEvent{}
	if err := json.Unmarshal(msg.Payload, event); err != nil {
		c.logger.WithError(err).Warn("Failed to decode instance event")
		return
	}

	switch event.Type {
	case registry.EventInstanceRegistered:
		c.ensureMonitor(event.ServiceID, event.InstanceID)
	case registry.EventInstanceDeregistered:
		c.removeMonitor(event.InstanceID)
	}
}

func (c *Checker) removeMonitor(instanceID string) {
	c.mutex.Lock()
	monitor := c.monitors[instanceID]
	delete(c.monitors, instanceID)
	c.mutex.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
}

// ensureMonitor creates and starts a monitor for the given instance if its
// service carries a health-check spec. An existing monitor is replaced, as
// a re-registration may change the probe target.
func (c *Checker) ensureMonitor(serviceID, instanceID string) {
	def, err := c.registry.GetService(serviceID)
	if err != nil || def.HealthCheck == nil {
		return
	}

	instances, err := c.registry.GetServiceInstances(serviceID)
	if err != nil {
		return
	}
	var instance *registry.ServiceInstance
	for _, si := range instances {
		if si.ID == instanceID {
			instance = si
			break
		}
	}
	if instance == nil {
		return
	}

	check, err := checkFor(def.HealthCheck, instance)
	if err != nil {
		c.logger.WithError(err).Warnf("Failed to build health check for instance %s", instanceID)
		return
	}

	monitor, err := NewMonitor(MonitorConfig{
		ServiceID:          serviceID,
		InstanceID:         instanceID,
		Check:              check,
		Interval:           def.HealthCheck.Interval,
		UnhealthyThreshold: def.HealthCheck.UnhealthyThreshold,
		HealthyThreshold:   def.HealthCheck.HealthyThreshold,
		Registry:           c.registry,
		Publisher:          c.store,
	})
	if err != nil {
		c.logger.WithError(err).Warnf("Failed to create monitor for instance %s", instanceID)
		return
	}

	c.mutex.Lock()
	if !c.active {
		c.mutex.Unlock()
		return
	}
	existing := c.monitors[instanceID]
	c.monitors[instanceID] = monitor
	monitor.Start()
	c.mutex.Unlock()

	if existing != nil {
		existing.Stop()
	}
}

// checkFor builds the probe for an instance from its service's spec: an
// HTTP probe against the spec path when one is set, a TCP connect probe
// otherwise.
func checkFor(spec *registry.HealthCheckSpec, instance *registry.ServiceInstance) (Check, error) {
	if spec.Path != "" {
		path := spec.Path
		if path[0] != '/' {
			path = "/" + path
		}
		return NewHTTP(CheckConfig{
			Type:    HTTPCheck,
			Value:   fmt.Sprintf("http://%s%s", instance.Address, path),
			Timeout: spec.Timeout,
		})
	}
	return NewTCP(CheckConfig{
		Type:    TCPCheck,
		Value:   instance.Address,
		Timeout: spec.Timeout,
	})
}
