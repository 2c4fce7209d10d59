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

package server

import (
	"encoding/json"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/autoscale"
	"github.com/amalgam8/vigil/health"
	"github.com/amalgam8/vigil/metrics"
	"github.com/amalgam8/vigil/store"
	"github.com/amalgam8/vigil/utils/logging"
)

// reporting forwards health check transitions and scaling activity from the
// store channels to the metric reporter. Transitions of a service count
// against "healthcheck.<service>"; the desired fleet size of a scaled
// service is gauged as "fleet.<service>".
type reporting struct {
	store         store.Store
	reporter      metrics.Reporter
	subscriptions []store.Subscription
	logger        *log.Entry
}

func newReporting(s store.Store, reporter metrics.Reporter) *reporting {
	return &reporting{
		store:    s,
		reporter: reporter,
		logger:   logging.GetLogger(module),
	}
}

func (r *reporting) Start() error {
	healthSub, err := r.store.Subscribe(store.HealthCheckChannel, r.forwardHealth)
	if err != nil {
		return err
	}
	r.subscriptions = append(r.subscriptions, healthSub)

	scalingSub, err := r.store.Subscribe(store.ScalingChannel, r.forwardScaling)
	if err != nil {
		r.Stop()
		return err
	}
	r.subscriptions = append(r.subscriptions, scalingSub)

	return nil
}

func (r *reporting) Stop() {
	for _, subscription := range r.subscriptions {
		if err := subscription.Unsubscribe(); err != nil {
			r.logger.WithError(err).Warn("Failed to unsubscribe metric reporting")
		}
	}
	r.subscriptions = nil
}

func (r *reporting) forwardHealth(msg store.Message) {
	event := &health.Event{}
	if err := json.Unmarshal(msg.Payload, event); err != nil {
		r.logger.WithError(err).Warn("Failed to decode health check event")
		return
	}

	id := "healthcheck." + event.ServiceID
	switch event.Status {
	case health.StatusHealthy:
		if err := r.reporter.Success(id, 0); err != nil {
			r.logger.WithError(err).Warnf("Failed to report health transition of %s", event.InstanceID)
		}
	case health.StatusUnhealthy:
		reason := event.Reason
		if reason == "" {
			reason = "health check failed"
		}
		if err := r.reporter.Failure(id, 0, errors.New(reason)); err != nil {
			r.logger.WithError(err).Warnf("Failed to report health transition of %s", event.InstanceID)
		}
	}
}

func (r *reporting) forwardScaling(msg store.Message) {
	activity := &autoscale.Activity{}
	if err := json.Unmarshal(msg.Payload, activity); err != nil {
		r.logger.WithError(err).Warn("Failed to decode scaling activity")
		return
	}

	if err := r.reporter.Gauge("fleet."+activity.ServiceID, int64(activity.Desired)); err != nil {
		r.logger.WithError(err).Warnf("Failed to report fleet size of %s", activity.ServiceID)
	}
}
