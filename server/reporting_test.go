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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amalgam8/vigil/autoscale"
	"github.com/amalgam8/vigil/health"
	"github.com/amalgam8/vigil/store"
)

type metricReport struct {
	kind  string
	id    string
	value int64
	err   error
}

type mockReporter struct {
	reports chan metricReport
}

func newMockReporter() *mockReporter {
	return &mockReporter{reports: make(chan metricReport, 16)}
}

func (m *mockReporter) Failure(id string, elapsed time.Duration, err error) error {
	m.reports <- metricReport{kind: "failure", id: id, err: err}
	return nil
}

func (m *mockReporter) Success(id string, elapsed time.Duration) error {
	m.reports <- metricReport{kind: "success", id: id}
	return nil
}

func (m *mockReporter) Gauge(id string, value int64) error {
	m.reports <- metricReport{kind: "gauge", id: id, value: value}
	return nil
}

func (m *mockReporter) Close() error {
	return nil
}

func (m *mockReporter) next(t *testing.T) metricReport {
	select {
	case report := <-m.reports:
		return report
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a metric report")
		return metricReport{}
	}
}

func (m *mockReporter) expectNone(t *testing.T) {
	select {
	case report := <-m.reports:
		t.Fatalf("unexpected metric report for %s", report.id)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestReporting(t *testing.T) (*reporting, store.Store, *mockReporter) {
	backing, err := store.New(nil)
	require.NoError(t, err)

	reporter := newMockReporter()
	return newReporting(backing, reporter), backing, reporter
}

func publishHealthEvent(t *testing.T, backing store.Store, event *health.Event) {
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, backing.Publish(store.HealthCheckChannel, payload))
}

func TestReportingHealthTransitions(t *testing.T) {
	reports, backing, reporter := newTestReporting(t)
	require.NoError(t, reports.Start())
	defer reports.Stop()

	publishHealthEvent(t, backing, &health.Event{
		ServiceID:  "checkout",
		InstanceID: "i-1",
		Status:     health.StatusUnhealthy,
		PrevStatus: health.StatusHealthy,
		Reason:     "connection refused",
	})

	report := reporter.next(t)
	assert.Equal(t, "failure", report.kind)
	assert.Equal(t, "healthcheck.checkout", report.id)
	require.Error(t, report.err)
	assert.Contains(t, report.err.Error(), "connection refused")

	publishHealthEvent(t, backing, &health.Event{
		ServiceID:  "checkout",
		InstanceID: "i-1",
		Status:     health.StatusHealthy,
		PrevStatus: health.StatusUnhealthy,
	})

	report = reporter.next(t)
	assert.Equal(t, "success", report.kind)
	assert.Equal(t, "healthcheck.checkout", report.id)
}

func TestReportingIgnoresUnknownTransitions(t *testing.T) {
	reports, backing, reporter := newTestReporting(t)
	require.NoError(t, reports.Start())
	defer reports.Stop()

	publishHealthEvent(t, backing, &health.Event{
		ServiceID:  "checkout",
		InstanceID: "i-1",
		Status:     health.StatusUnknown,
	})
	reporter.expectNone(t)
}

func TestReportingScalingActivity(t *testing.T) {
	reports, backing, reporter := newTestReporting(t)
	require.NoError(t, reports.Start())
	defer reports.Stop()

	payload, err := json.Marshal(&autoscale.Activity{
		PolicyID:        "pol-1",
		ServiceID:       "checkout",
		Metric:          "cpu",
		Direction:       autoscale.ScaleUp,
		PreviousDesired: 3,
		Desired:         4,
		Instances:       3,
	})
	require.NoError(t, err)
	require.NoError(t, backing.Publish(store.ScalingChannel, payload))

	report := reporter.next(t)
	assert.Equal(t, "gauge", report.kind)
	assert.Equal(t, "fleet.checkout", report.id)
	assert.Equal(t, int64(4), report.value)
}

func TestReportingStop(t *testing.T) {
	reports, backing, reporter := newTestReporting(t)
	require.NoError(t, reports.Start())
	reports.Stop()

	publishHealthEvent(t, backing, &health.Event{
		ServiceID: "checkout",
		Status:    health.StatusHealthy,
	})
	reporter.expectNone(t)

	// Stopping again is a no-op.
	reports.Stop()
}