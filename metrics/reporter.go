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

// Package metrics reports operational outcomes of the coordination
// components, either to the log or to a statsd collector.
package metrics

import (
	"time"

	"github.com/cactus/go-statsd-client/v5/statsd"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/errors"
	"github.com/amalgam8/vigil/utils/logging"
)

const module = "METRICS"

// DefaultPrefix is prepended to every statsd stat name.
const DefaultPrefix = "vigil"

const flushInterval = 300 * time.Millisecond

// Reporter records the outcome of component operations: breaker state
// changes, health transitions, scaling activity.
type Reporter interface {
	Failure(id string, elapsed time.Duration, err error) error
	Success(id string, elapsed time.Duration) error
	Gauge(id string, value int64) error
	Close() error
}

type logReporter struct {
	logger *log.Entry
}

// NewReporter returns a Reporter that records to the log only. It is the
// fallback when no statsd collector is configured.
func NewReporter() Reporter {
	return &logReporter{logger: logging.GetLogger(module)}
}

func (l *logReporter) Failure(id string, elapsed time.Duration, err error) error {
	l.logger.WithFields(log.Fields{
		"err":       err,
		"metric_id": id,
		"time":      elapsed.String(),
	}).Error("Metric recorded failure")
	return nil
}

func (l *logReporter) Success(id string, elapsed time.Duration) error {
	l.logger.WithFields(log.Fields{
		"metric_id": id,
		"time":      elapsed.String(),
	}).Debug("Metric recorded success")
	return nil
}

func (l *logReporter) Gauge(id string, value int64) error {
	l.logger.WithFields(log.Fields{
		"metric_id": id,
		"value":     value,
	}).Debug("Metric recorded gauge")
	return nil
}

func (l *logReporter) Close() error {
	return nil
}

type statsdReporter struct {
	client statsd.Statter
	logger *log.Entry
}

// NewStatsdReporter returns a Reporter sending to the statsd collector at
// the given UDP address. The underlying client is buffered; stats are
// flushed on a short interval rather than per call. An empty prefix
// selects DefaultPrefix.
func NewStatsdReporter(address, prefix string) (Reporter, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	client, err := statsd.NewClientWithConfig(&statsd.ClientConfig{
		Address:       address,
		Prefix:        prefix,
		UseBuffered:   true,
		FlushInterval: flushInterval,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed creating statsd client")
	}

	return &statsdReporter{
		client: client,
		logger: logging.GetLogger(module),
	}, nil
}

func (s *statsdReporter) Failure(id string, elapsed time.Duration, err error) error {
	s.logger.WithFields(log.Fields{
		"err":       err,
		"metric_id": id,
		"time":      elapsed.String(),
	}).Debug("Metric recorded failure")

	if err := s.client.Inc(id+".failure", 1, 1.0); err != nil {
		return err
	}
	return s.client.TimingDuration(id+".latency", elapsed, 1.0)
}

func (s *statsdReporter) Success(id string, elapsed time.Duration) error {
	if err := s.client.Inc(id+".success", 1, 1.0); err != nil {
		return err
	}
	return s.client.TimingDuration(id+".latency", elapsed, 1.0)
}

func (s *statsdReporter) Gauge(id string, value int64) error {
	return s.client.Gauge(id, value, 1.0)
}

func (s *statsdReporter) Close() error {
	return s.client.Close()
}
