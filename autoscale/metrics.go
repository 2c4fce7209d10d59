package autoscale

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pborman/uuid"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/store"
)

// DefaultRetention bounds how long recorded metric samples stay readable.
const DefaultRetention = 15 * time.Minute

// Window is the aggregate of the metric samples observed during one
// evaluation window.
type Window struct {

	// Mean is the arithmetic mean of the samples in the window.
	Mean float64 `json:"mean"`

	// Count is the number of samples in the window.
	Count int `json:"count"`
}

// MetricSource supplies windowed aggregates of service metrics.
type MetricSource interface {
	// Windows aggregates the named metric of the given service over the last
	// n windows of the given width, oldest window first. A window without
	// samples reports a zero Count.
	Windows(serviceID, metric string, n int, width time.Duration) ([]Window, error)
}

// MetricRecorder ingests raw metric samples.
type MetricRecorder interface {
	// Record stores one observation of the named metric of the given service.
	Record(serviceID, metric string, value float64) error
}

type sample struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// StoreMetrics records metric samples in the state store and aggregates them
// into evaluation windows. Each sample lives under its own key with a TTL, so
// expiry prunes old samples without a sweeper.
type StoreMetrics struct {
	store     store.Store
	retention time.Duration
}

// NewStoreMetrics creates a store-backed metric source. A non-positive
// retention falls back to DefaultRetention.
func NewStoreMetrics(s store.Store, retention time.Duration) *StoreMetrics {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &StoreMetrics{
		store:     s,
		retention: retention,
	}
}

// Record stores one observation of the named metric.
func (m *StoreMetrics) Record(serviceID, metric string, value float64) error {
	if serviceID == "" || metric == "" {
		return fault.New(fault.Validation, "metric sample requires a service and a metric name")
	}

	data, err := json.Marshal(&sample{Value: value, At: time.Now()})
	if err != nil {
		return err
	}
	return m.store.Set(sampleKey(serviceID, metric, uuid.New()), data, m.retention)
}

// Windows implements MetricSource.
func (m *StoreMetrics) Windows(serviceID, metric string, n int, width time.Duration) ([]Window, error) {
	if n <= 0 || width <= 0 {
		return nil, fault.Newf(fault.Validation, "invalid window request: n=%d width=%v", n, width)
	}

	keys, err := m.store.Keys(sampleKey(serviceID, metric, "*"))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sums := make([]float64, n)
	counts := make([]int, n)
	for _, key := range keys {
		data, err := m.store.Get(key)
		if err != nil {
			// Expired between the key scan and the read.
			if fault.IsNotFound(err) {
				continue
			}
			return nil, err
		}

		s := sample{}
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}

		age := now.Sub(s.At)
		if age < 0 {
			age = 0
		}
		// Window n-1 is the most recent.
		index := n - 1 - int(age/width)
		if index < 0 {
			continue
		}
		sums[index] += s.Value
		counts[index]++
	}

	windows := make([]Window, n)
	for i := range windows {
		windows[i].Count = counts[i]
		if counts[i] > 0 {
			windows[i].Mean = sums[i] / float64(counts[i])
		}
	}
	return windows, nil
}

func sampleKey(serviceID, metric, id string) string {
	return fmt.Sprintf("autoscale:metric:%s:%s:%s", serviceID, metric, id)
}
