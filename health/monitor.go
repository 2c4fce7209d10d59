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
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/registry"
	"github.com/amalgam8/vigil/store"
	"github.com/amalgam8/vigil/utils/logging"
)

const module = "HEALTHCHECK"

// CheckStatus is the reported state of a monitored health check.
type CheckStatus string

// Monitored health check states. WARNING is a reported decoration of a
// HEALTHY state whose latest probe failed without crossing the unhealthy
// threshold; it is never a stored transition.
const (
	StatusUnknown   CheckStatus = "UNKNOWN"
	StatusHealthy   CheckStatus = "HEALTHY"
	StatusUnhealthy CheckStatus = "UNHEALTHY"
	StatusWarning   CheckStatus = "WARNING"
)

// StatusUpdater is the subset of registry operations the monitor depends on.
type StatusUpdater interface {
	UpdateInstanceStatus(instanceID string, status registry.InstanceStatus) error
}

// Publisher is the subset of store operations the monitor depends on.
type Publisher interface {
	Publish(channel string, message []byte) error
}

// Event is the payload published on the health check channel on every
// state transition.
type Event struct {
	ServiceID  string      `json:"service_id"`
	InstanceID string      `json:"instance_id"`
	Status     CheckStatus `json:"status"`
	PrevStatus CheckStatus `json:"prev_status"`
	Reason     string      `json:"reason,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// MonitorConfig encapsulates the configuration of a Monitor.
type MonitorConfig struct {

	// ServiceID of the monitored instance.
	ServiceID string

	// InstanceID of the monitored instance.
	InstanceID string

	// Check to execute.
	Check Check

	// Interval between consecutive probes.
	Interval time.Duration

	// UnhealthyThreshold is the number of consecutive failed probes
	// required to transition to UNHEALTHY. Zero selects the default.
	UnhealthyThreshold int

	// HealthyThreshold is the number of consecutive successful probes
	// required to transition to HEALTHY. Zero selects the default.
	HealthyThreshold int

	// Registry receives instance status updates on transitions. Optional.
	Registry StatusUpdater

	// Publisher receives transition events on the health check channel. Optional.
	Publisher Publisher
}

// Monitor runs one health check periodically and applies consecutive-result
// hysteresis to its outcomes: a run of UnhealthyThreshold failures moves the
// state to UNHEALTHY, a run of HealthyThreshold successes moves it to
// HEALTHY, and non-qualifying runs keep the current state. Transitions are
// pushed to the registry and published as events.
type Monitor struct {
	serviceID  string
	instanceID string

	unhealthyThreshold int
	healthyThreshold   int

	registry  StatusUpdater
	publisher Publisher
	agent     *Agent
	logger    *log.Entry

	status     CheckStatus
	lastChange time.Time
	fails      int
	passes     int
	lastError  error

	statusChan chan Result
	stop       chan struct{}
	active     bool
	mutex      sync.RWMutex
}

// NewMonitor creates a Monitor. The initial state is UNKNOWN.
func NewMonitor(conf MonitorConfig) (*Monitor, error) {
	if conf.Check == nil {
		return nil, fault.New(fault.Validation, "monitor requires a check")
	}
	if conf.InstanceID == "" {
		return nil, fault.New(fault.Validation, "monitor requires an instance ID")
	}
	if conf.UnhealthyThreshold <= 0 {
		conf.UnhealthyThreshold = DefaultUnhealthyThreshold
	}
	if conf.HealthyThreshold <= 0 {
		conf.HealthyThreshold = DefaultHealthyThreshold
	}

	return &Monitor{
		serviceID:          conf.ServiceID,
		instanceID:         conf.InstanceID,
		unhealthyThreshold: conf.UnhealthyThreshold,
		healthyThreshold:   conf.HealthyThreshold,
		registry:           conf.Registry,
		publisher:          conf.Publisher,
		agent:              NewAgent(conf.Check, conf.Interval),
		logger:             logging.GetLogger(module),
		status:             StatusUnknown,
		lastChange:         time.Now(),
		stop:               make(chan struct{}),
	}, nil
}

// Start monitoring. Non-blocking.
func (m *Monitor) Start() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.active {
		return
	}
	m.active = true

	m.statusChan = make(chan Result, 1)
	m.agent.Start(m.statusChan)
	go m.consume(m.statusChan)
}

// Stop monitoring. The monitor keeps its last state and can be restarted.
func (m *Monitor) Stop() {
	m.mutex.Lock()
	if !m.active {
		m.mutex.Unlock()
		return
	}
	m.active = false
	m.mutex.Unlock()

	// The handshake must happen outside the lock. The consumer may be
	// inside handle(), which takes the same lock.
	m.agent.Stop()
	m.stop <- struct{}{}
}

// Status returns the reported check state. A HEALTHY state whose latest
// probe failed is reported as WARNING.
func (m *Monitor) Status() CheckStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.status == StatusHealthy && m.fails > 0 {
		return StatusWarning
	}
	return m.status
}

// LastStatusChange returns the time of the last state transition.
func (m *Monitor) LastStatusChange() time.Time {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.lastChange
}

// LastError returns the error of the most recent failed probe, or nil if
// the latest probe passed.
func (m *Monitor) LastError() error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.lastError
}

func (m *Monitor) consume(statusChan <-chan Result) {
	for {
		select {
		case result := <-statusChan:
			m.handle(result)
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) handle(result Result) {
	m.mutex.Lock()

	if result.Error == nil {
		m.passes++
		m.fails = 0
		m.lastError = nil
	} else {
		m.fails++
		m.passes = 0
		m.lastError = result.Error
	}

	prev := m.status
	next := prev
	switch m.status {
	case StatusUnknown:
		if m.fails >= m.unhealthyThreshold {
			next = StatusUnhealthy
		} else if m.passes >= m.healthyThreshold {
			next = StatusHealthy
		}
	case StatusHealthy:
		if m.fails >= m.unhealthyThreshold {
			next = StatusUnhealthy
		}
	case StatusUnhealthy:
		if m.passes >= m.healthyThreshold {
			next = StatusHealthy
		}
	}

	if next == prev {
		m.mutex.Unlock()
		return
	}

	m.status = next
	m.lastChange = time.Now()
	var reason string
	if m.lastError != nil {
		reason = m.lastError.Error()
	}
	m.mutex.Unlock()

	m.transition(prev, next, reason)
}

func (m *Monitor) transition(prev, next CheckStatus, reason string) {
	m.logger.WithFields(log.Fields{
		"service_id":  m.serviceID,
		"instance_id": m.instanceID,
		"status":      next,
		"prev_status": prev,
	}).Info("Health check state transition")

	if m.registry != nil {
		instanceStatus := registry.InstanceRunning
		if next == StatusUnhealthy {
			instanceStatus = registry.InstanceUnhealthy
		}
		if err := m.registry.UpdateInstanceStatus(m.instanceID, instanceStatus); err != nil {
			m.logger.WithError(err).Warnf("Failed to update status of instance %s", m.instanceID)
		}
	}

	if m.publisher != nil {
		payload, err := json.Marshal(&Event{
			ServiceID:  m.serviceID,
			InstanceID: m.instanceID,
			Status:     next,
			PrevStatus: prev,
			Reason:     reason,
			Timestamp:  time.Now(),
		})
		if err != nil {
			m.logger.WithError(err).Warn("Failed to encode health check event")
			return
		}
		if err := m.publisher.Publish(store.HealthCheckChannel, payload); err != nil {
			m.logger.WithError(err).Warnf("Failed to publish health check event for instance %s", m.instanceID)
		}
	}
}
