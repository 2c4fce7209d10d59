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

// Package notification re-publishes coordination events from the state
// store's pub/sub channels to Kafka topics of the same names, making
// instance status changes, health transitions and scaling activity
// available to external consumers.
package notification

import (
	"encoding/json"
	"sync"

	metrics "github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/store"
	"github.com/amalgam8/vigil/utils/logging"
)

const module = "NOTIFICATION"

const (
	forwardedMetricName = "notification.forwarded"
	droppedMetricName   = "notification.dropped"
)

// DefaultChannels returns the store channels bridged when none are configured.
func DefaultChannels() []string {
	return []string{
		store.InstanceStatusChannel,
		store.ScalingChannel,
		store.HealthCheckChannel,
	}
}

// Config encapsulates the configuration of a Bridge.
type Config struct {

	// Producer receives the forwarded events. Required.
	Producer Producer

	// Store is the pub/sub source. Required.
	Store store.Store

	// Channels to bridge. Defaults to DefaultChannels.
	Channels []string
}

// Bridge subscribes to store pub/sub channels and forwards every message
// to the producer, one topic per channel. Forwarding is best-effort: a
// failed send is logged and dropped, never retried, so a broker outage
// cannot back-pressure the publishing components.
type Bridge struct {
	producer Producer
	store    store.Store
	channels []string
	logger   *log.Entry

	forwardedMetric metrics.Meter
	droppedMetric   metrics.Meter

	subscriptions []store.Subscription
	active        bool
	mutex         sync.Mutex
}

// NewBridge creates a Bridge over the given producer and store.
func NewBridge(conf Config) (*Bridge, error) {
	if conf.Producer == nil {
		return nil, fault.New(fault.Validation, "bridge requires a producer")
	}
	if conf.Store == nil {
		return nil, fault.New(fault.Validation, "bridge requires a store")
	}

	channels := conf.Channels
	if len(channels) == 0 {
		channels = DefaultChannels()
	}

	meterFactory := func() metrics.Meter { return metrics.NewMeter() }

	return &Bridge{
		producer:        conf.Producer,
		store:           conf.Store,
		channels:        channels,
		logger:          logging.GetLogger(module),
		forwardedMetric: metrics.GetOrRegister(forwardedMetricName, meterFactory).(metrics.Meter),
		droppedMetric:   metrics.GetOrRegister(droppedMetricName, meterFactory).(metrics.Meter),
	}, nil
}

// Start subscribing and forwarding. Non-blocking.
func (b *Bridge) Start() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.active {
		return nil
	}

	for _, channel := range b.channels {
		sub, err := b.store.Subscribe(channel, b.forward)
		if err != nil {
			b.unsubscribe()
			return err
		}
		b.subscriptions = append(b.subscriptions, sub)
	}
	b.active = true

	b.logger.Infof("Notification bridge started on channels %v", b.channels)
	return nil
}

// Stop forwarding and release the subscriptions. The producer is left
// open; its lifecycle belongs to the caller.
func (b *Bridge) Stop() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.active {
		return
	}
	b.active = false
	b.unsubscribe()

	b.logger.Info("Notification bridge stopped")
}

func (b *Bridge) unsubscribe() {
	for _, sub := range b.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.WithError(err).Warn("Failed to unsubscribe notification bridge")
		}
	}
	b.subscriptions = nil
}

func (b *Bridge) forward(msg store.Message) {
	err := b.producer.SendEvent(msg.Channel, messageKey(msg.Payload), string(msg.Payload))
	if err != nil {
		b.droppedMetric.Mark(1)
		b.logger.WithError(err).Errorf("Failed to forward event on channel %s", msg.Channel)
		return
	}
	b.forwardedMetric.Mark(1)
}

// messageKey extracts the partition key for an event payload. All bridged
// events carry their service ID; keying on it keeps per-service ordering
// stable on the broker side.
func messageKey(payload []byte) string {
	var event struct {
		ServiceID string `json:"service_id"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return ""
	}
	return event.ServiceID
}
