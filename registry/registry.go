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

// Package registry implements the service registry: service definitions,
// service instances, heartbeat tracking, and the healthy-instance view.
// The store is the source of truth; the in-memory projection is a disposable
// cache rebuilt from the store on startup.
package registry

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/auth"
	"github.com/amalgam8/vigil/pkg/datastructures"
	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/store"
	"github.com/amalgam8/vigil/utils/logging"
)

const (
	module = "REGISTRY"

	serviceKeyPrefix   = "service:"
	instanceKeyPrefix  = "instance:"
	heartbeatKeyPrefix = "heartbeat:"

	servicesMetricName   = "registry.services.count"
	instancesMetricName  = "registry.instances.count"
	heartbeatsMetricName = "registry.heartbeats"
)

// DefaultStalenessTTL is the default heartbeat freshness window, equal to
// two default health-check intervals. An instance whose heartbeat is older
// is excluded from the healthy view regardless of its recorded status.
const DefaultStalenessTTL = 60 * time.Second

// Config encapsulates the configuration of a Registry.
type Config struct {

	// Namespace scopes all keys written by this registry instance.
	Namespace auth.Namespace

	// StalenessTTL is the heartbeat freshness window for services that do
	// not carry their own health-check spec. Zero selects DefaultStalenessTTL.
	StalenessTTL time.Duration
}

// Registry provides service and instance registration backed by the
// distributed state store.
type Registry struct {
	store        store.Store
	namespace    auth.Namespace
	stalenessTTL time.Duration
	logger       *log.Entry

	services  map[string]*ServiceDefinition
	instances map[string]*ServiceInstance
	byService map[string]map[string]*ServiceInstance

	servicesMetric   metrics.Counter
	instancesMetric  metrics.Counter
	heartbeatsMetric metrics.Meter

	sync.RWMutex
}

// New creates a Registry over the given store and rebuilds the in-memory
// projection from whatever state the store already holds.
func New(s store.Store, conf *Config) (*Registry, error) {
	if s == nil {
		return nil, fault.New(fault.Validation, "registry requires a backing store")
	}
	if conf == nil {
		conf = &Config{}
	}

	stalenessTTL := conf.StalenessTTL
	if stalenessTTL <= 0 {
		stalenessTTL = DefaultStalenessTTL
	}

	counterFactory := func() metrics.Counter { return metrics.NewCounter() }
	meterFactory := func() metrics.Meter { return metrics.NewMeter() }

	r := &Registry{
		store:        s,
		namespace:    conf.Namespace,
		stalenessTTL: stalenessTTL,
		logger:       logging.GetLogger(module),

		services:  make(map[string]*ServiceDefinition),
		instances: make(map[string]*ServiceInstance),
		byService: make(map[string]map[string]*ServiceInstance),

		servicesMetric:   metrics.GetOrRegister(servicesMetricName, counterFactory).(metrics.Counter),
		instancesMetric:  metrics.GetOrRegister(instancesMetricName, counterFactory).(metrics.Counter),
		heartbeatsMetric: metrics.GetOrRegister(heartbeatsMetricName, meterFactory).(metrics.Meter),
	}

	if err := r.rebuild(); err != nil {
		return nil, err
	}

	return r, nil
}

// RegisterService registers or updates a service definition.
// The definition ID defaults to the service name.
func (r *Registry) RegisterService(def *ServiceDefinition) (*ServiceDefinition, error) {
	if def == nil {
		return nil, fault.New(fault.Validation, "service definition is required")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	registered := def.DeepClone()
	if registered.ID == "" {
		registered.ID = registered.Name
	}

	r.Lock()
	defer r.Unlock()

	if err := r.checkDependencyCycle(registered); err != nil {
		return nil, err
	}

	value, err := json.Marshal(registered)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, "failed to encode service definition", err)
	}
	if err := r.store.Set(r.key(serviceKeyPrefix, registered.ID), value, 0); err != nil {
		return nil, err
	}

	if _, exists := r.services[registered.ID]; !exists {
		r.servicesMetric.Inc(1)
	} else {
		r.logger.Debugf("Overwriting service definition %s due to re-registration", registered.ID)
	}
	r.services[registered.ID] = registered
	if _, exists := r.byService[registered.ID]; !exists {
		r.byService[registered.ID] = make(map[string]*ServiceInstance)
	}

	return registered.DeepClone(), nil
}

// DeregisterService removes a service definition along with any instances
// still registered for it.
func (r *Registry) DeregisterService(serviceID string) error {
	r.Lock()

	if _, exists := r.services[serviceID]; !exists {
		r.Unlock()
		return fault.Newf(fault.NotFound, "no such service %q", serviceID)
	}

	events := make([]*InstanceEvent, 0, len(r.byService[serviceID]))
	for id, si := range r.byService[serviceID] {
		if err := r.store.Delete(r.key(instanceKeyPrefix, id)); err != nil && fault.KindOf(err) != fault.NotFound {
			r.logger.WithError(err).Warnf("Failed to delete instance %s of deregistered service %s", id, serviceID)
		}
		r.deleteHeartbeat(id)
		delete(r.instances, id)
		r.instancesMetric.Dec(1)
		events = append(events, r.instanceEvent(EventInstanceDeregistered, si, ""))
	}
	delete(r.byService, serviceID)

	if err := r.store.Delete(r.key(serviceKeyPrefix, serviceID)); err != nil && fault.KindOf(err) != fault.NotFound {
		r.Unlock()
		return err
	}
	delete(r.services, serviceID)
	r.servicesMetric.Dec(1)

	r.Unlock()

	for _, event := range events {
		r.publish(event)
	}
	return nil
}

// GetService returns a copy of the service definition with the given ID.
func (r *Registry) GetService(serviceID string) (*ServiceDefinition, error) {
	r.RLock()
	defer r.RUnlock()

	def, exists := r.services[serviceID]
	if !exists {
		return nil, fault.Newf(fault.NotFound, "no such service %q", serviceID)
	}
	return def.DeepClone(), nil
}

// ListServices returns copies of all registered service definitions,
// ordered by service ID.
func (r *Registry) ListServices() []*ServiceDefinition {
	r.RLock()
	defer r.RUnlock()

	defs := make([]*ServiceDefinition, 0, len(r.services))
	for _, def := range r.services {
		defs = append(defs, def.DeepClone())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// RegisterInstance registers a service instance. A registration with an
// existing instance ID overwrites the previous record. The instance ID is
// derived from the service ID and address when absent, and the status
// defaults to STARTING. Registration counts as the initial heartbeat.
func (r *Registry) RegisterInstance(si *ServiceInstance) (*ServiceInstance, error) {
	if si == nil {
		return nil, fault.New(fault.Validation, "service instance is required")
	}
	if err := si.Validate(); err != nil {
		return nil, err
	}

	registered := si.DeepClone()
	if registered.ID == "" {
		registered.ID = computeInstanceID(registered)
	}
	if registered.Status == "" {
		registered.Status = InstanceStarting
	}
	registered.LastHeartbeat = time.Now()

	r.Lock()

	def, exists := r.services[registered.ServiceID]
	if !exists {
		r.Unlock()
		return nil, fault.Newf(fault.NotFound, "no such service %q", registered.ServiceID)
	}

	if err := r.persistInstance(registered); err != nil {
		r.Unlock()
		return nil, err
	}
	r.setHeartbeat(registered.ID, r.stalenessFor(def))

	previous, alreadyExists := r.instances[registered.ID]
	if alreadyExists {
		r.logger.Debugf("Overwriting existing instance ID %s due to re-registration", registered.ID)
		delete(r.byService[previous.ServiceID], registered.ID)
	} else {
		r.instancesMetric.Inc(1)
	}
	r.instances[registered.ID] = registered
	r.byService[registered.ServiceID][registered.ID] = registered

	event := r.instanceEvent(EventInstanceRegistered, registered, "")
	r.Unlock()

	r.publish(event)
	return registered.DeepClone(), nil
}

// DeregisterInstance removes a registered service instance.
func (r *Registry) DeregisterInstance(instanceID string) error {
	r.Lock()

	si, exists := r.instances[instanceID]
	if !exists {
		r.Unlock()
		return fault.Newf(fault.NotFound, "no such service instance %q", instanceID)
	}

	if err := r.store.Delete(r.key(instanceKeyPrefix, instanceID)); err != nil && fault.KindOf(err) != fault.NotFound {
		r.Unlock()
		return err
	}
	r.deleteHeartbeat(instanceID)

	delete(r.instances, instanceID)
	delete(r.byService[si.ServiceID], instanceID)
	r.instancesMetric.Dec(1)

	event := r.instanceEvent(EventInstanceDeregistered, si, "")
	r.Unlock()

	r.publish(event)
	return nil
}

// UpdateInstanceStatus transitions an instance to the given lifecycle status.
// A no-op transition publishes no event.
func (r *Registry) UpdateInstanceStatus(instanceID string, status InstanceStatus) error {
	if !status.Valid() {
		return fault.Newf(fault.Validation, "unrecognized instance status %q", status)
	}

	r.Lock()

	si, exists := r.instances[instanceID]
	if !exists {
		r.Unlock()
		return fault.Newf(fault.NotFound, "no such service instance %q", instanceID)
	}

	previous := si.Status
	if previous == status {
		r.Unlock()
		return nil
	}

	si.Status = status
	if err := r.persistInstance(si); err != nil {
		si.Status = previous
		r.Unlock()
		return err
	}

	event := r.instanceEvent(EventInstanceStatusChange, si, previous)
	r.Unlock()

	r.publish(event)
	return nil
}

// UpdateInstanceHeartbeat renews the heartbeat of a registered instance.
func (r *Registry) UpdateInstanceHeartbeat(instanceID string) error {
	r.Lock()
	defer r.Unlock()

	si, exists := r.instances[instanceID]
	if !exists {
		return fault.Newf(fault.NotFound, "no such service instance %q", instanceID)
	}

	si.LastHeartbeat = time.Now()
	r.setHeartbeat(instanceID, r.stalenessFor(r.services[si.ServiceID]))
	r.heartbeatsMetric.Mark(1)
	return nil
}

// GetServiceInstances returns copies of all instances registered for the
// given service, ordered by instance ID.
func (r *Registry) GetServiceInstances(serviceID string) ([]*ServiceInstance, error) {
	r.RLock()
	defer r.RUnlock()

	instances, exists := r.byService[serviceID]
	if !exists {
		return nil, fault.Newf(fault.NotFound, "no such service %q", serviceID)
	}

	result := make([]*ServiceInstance, 0, len(instances))
	for _, si := range instances {
		result = append(result, si.DeepClone())
	}
	sortInstances(result)
	return result, nil
}

// GetHealthyInstances returns copies of the instances of the given service
// that are RUNNING and whose heartbeat is fresh. Both conditions are
// required: a RUNNING instance with a stale heartbeat is excluded even if
// its status was never explicitly downgraded.
func (r *Registry) GetHealthyInstances(serviceID string) ([]*ServiceInstance, error) {
	r.RLock()
	defer r.RUnlock()

	instances, exists := r.byService[serviceID]
	if !exists {
		return nil, fault.Newf(fault.NotFound, "no such service %q", serviceID)
	}

	staleness := r.stalenessFor(r.services[serviceID])
	now := time.Now()

	result := make([]*ServiceInstance, 0, len(instances))
	for _, si := range instances {
		if si.Status != InstanceRunning {
			continue
		}
		if now.Sub(si.LastHeartbeat) >= staleness {
			continue
		}
		result = append(result, si.DeepClone())
	}
	sortInstances(result)
	return result, nil
}

// ListInstances returns copies of all registered instances across all
// services, ordered by instance ID.
func (r *Registry) ListInstances() []*ServiceInstance {
	r.RLock()
	defer r.RUnlock()

	result := make([]*ServiceInstance, 0, len(r.instances))
	for _, si := range r.instances {
		result = append(result, si.DeepClone())
	}
	sortInstances(result)
	return result
}

func sortInstances(instances []*ServiceInstance) {
	sort.Slice(instances, func(i, j int) bool { return instances[i].ID < instances[j].ID })
}

// checkDependencyCycle verifies that registering the given definition keeps
// the dependency graph acyclic. Any cycle introduced by this definition must
// pass through it, so a DFS from its dependencies looking for a path back
// suffices. Dependencies on not-yet-registered services are allowed.
// Callers must hold the write lock.
func (r *Registry) checkDependencyCycle(def *ServiceDefinition) error {
	visited := datastructures.NewStringSet()
	stack := make([]string, 0, len(def.Dependencies))

	for _, dep := range def.Dependencies {
		if dep == def.ID {
			return fault.Newf(fault.Validation, "service %q depends on itself", def.ID)
		}
		stack = append(stack, dep)
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visited.Add(id) {
			continue
		}

		next, exists := r.services[id]
		if !exists {
			continue
		}
		for _, dep := range next.Dependencies {
			if dep == def.ID {
				return fault.Newf(fault.Validation,
					"dependency cycle: service %q transitively depends on itself through %q", def.ID, id)
			}
			if !visited.Exists(dep) {
				stack = append(stack, dep)
			}
		}
	}
	return nil
}

// rebuild reloads the projection maps from the backing store.
func (r *Registry) rebuild() error {
	serviceKeys, err := r.store.Keys(r.key(serviceKeyPrefix, "*"))
	if err != nil {
		return err
	}
	for _, k := range serviceKeys {
		value, err := r.store.Get(k)
		if err != nil {
			r.logger.WithError(err).Warnf("Failed to read service definition key %s", k)
			continue
		}
		def := &ServiceDefinition{}
		if err := json.Unmarshal(value, def); err != nil {
			r.logger.WithError(err).Warnf("Failed to decode service definition key %s", k)
			continue
		}
		r.services[def.ID] = def
		if _, exists := r.byService[def.ID]; !exists {
			r.byService[def.ID] = make(map[string]*ServiceInstance)
		}
		r.servicesMetric.Inc(1)
	}

	instanceKeys, err := r.store.Keys(r.key(instanceKeyPrefix, "*"))
	if err != nil {
		return err
	}
	now := time.Now()
	for _, k := range instanceKeys {
		value, err := r.store.Get(k)
		if err != nil {
			r.logger.WithError(err).Warnf("Failed to read instance key %s", k)
			continue
		}
		si := &ServiceInstance{}
		if err := json.Unmarshal(value, si); err != nil {
			r.logger.WithError(err).Warnf("Failed to decode instance key %s", k)
			continue
		}

		// A live heartbeat key means the instance renewed within its
		// freshness window, so the rebuilt record is treated as fresh.
		// Without it, the persisted timestamp stands and the instance
		// ages out of the healthy view naturally.
		if fresh, err := r.store.Exists(r.key(heartbeatKeyPrefix, si.ID)); err == nil && fresh {
			si.LastHeartbeat = now
		}

		r.instances[si.ID] = si
		if _, exists := r.byService[si.ServiceID]; !exists {
			r.byService[si.ServiceID] = make(map[string]*ServiceInstance)
		}
		r.byService[si.ServiceID][si.ID] = si
		r.instancesMetric.Inc(1)
	}

	if len(r.services) > 0 || len(r.instances) > 0 {
		r.logger.Infof("Rebuilt registry projection with %d services and %d instances",
			len(r.services), len(r.instances))
	}
	return nil
}

// stalenessFor computes the heartbeat freshness window of a service:
// healthCheckInterval times the unhealthy threshold when the service
// carries a health-check spec, the registry default otherwise.
func (r *Registry) stalenessFor(def *ServiceDefinition) time.Duration {
	if def != nil && def.HealthCheck != nil &&
		def.HealthCheck.Interval > 0 && def.HealthCheck.UnhealthyThreshold > 0 {
		return def.HealthCheck.Interval * time.Duration(def.HealthCheck.UnhealthyThreshold)
	}
	return r.stalenessTTL
}

func (r *Registry) persistInstance(si *ServiceInstance) error {
	value, err := json.Marshal(si)
	if err != nil {
		return fault.Wrap(fault.Internal, "failed to encode service instance", err)
	}
	return r.store.Set(r.key(instanceKeyPrefix, si.ID), value, 0)
}

func (r *Registry) setHeartbeat(instanceID string, ttl time.Duration) {
	if err := r.store.Set(r.key(heartbeatKeyPrefix, instanceID), []byte("1"), ttl); err != nil {
		r.logger.WithError(err).Warnf("Failed to write heartbeat key for instance %s", instanceID)
	}
}

func (r *Registry) deleteHeartbeat(instanceID string) {
	err := r.store.Delete(r.key(heartbeatKeyPrefix, instanceID))
	if err != nil && fault.KindOf(err) != fault.NotFound {
		r.logger.WithError(err).Warnf("Failed to delete heartbeat key for instance %s", instanceID)
	}
}

func (r *Registry) instanceEvent(eventType string, si *ServiceInstance, prev InstanceStatus) *InstanceEvent {
	return &InstanceEvent{
		Type:       eventType,
		Namespace:  string(r.namespace),
		ServiceID:  si.ServiceID,
		InstanceID: si.ID,
		Status:     si.Status,
		PrevStatus: prev,
		Timestamp:  time.Now(),
	}
}

// publish sends an instance event on the instance status channel.
// Events are best-effort: a publish failure is logged, not surfaced.
func (r *Registry) publish(event *InstanceEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to encode instance event")
		return
	}
	if err := r.store.Publish(store.InstanceStatusChannel, payload); err != nil {
		r.logger.WithError(err).Warnf("Failed to publish instance event for %s", event.InstanceID)
	}
}

func (r *Registry) key(prefix, id string) string {
	if r.namespace != "" {
		return string(r.namespace) + "." + prefix + id
	}
	return prefix + id
}
