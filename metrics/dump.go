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

package metrics

import (
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/utils/logging"
)

// interval at which the metrics registry is dumped
const dumpInterval = 10 * time.Minute

var dumpLogger = logging.GetLogger(module)

// DumpPeriodically logs the values of the entire go-metrics registry, periodically.
// This function blocks, so should be called within a separate goroutine.
func DumpPeriodically() {
	dumpPeriodically(dumpInterval, gometrics.DefaultRegistry)
}

func dumpPeriodically(interval time.Duration, registry gometrics.Registry) {
	for range time.Tick(interval) {
		dumpRegistry(registry)
	}
}

func dumpRegistry(registry gometrics.Registry) {
	dumpLogger.Info("Dumping metrics registry")
	registry.Each(func(name string, metric interface{}) {
		fields := fieldsOf(metric)
		if fields == nil {
			return
		}
		fields["name"] = name
		dumpLogger.WithFields(fields).Info()
	})
}

// fieldsOf flattens a go-metrics value into loggable fields, nil for
// unrecognized metric types.
func fieldsOf(metric interface{}) logrus.Fields {
	switch m := metric.(type) {
	case gometrics.Counter:
		return logrus.Fields{"count": m.Count()}
	case gometrics.Gauge:
		return logrus.Fields{"value": m.Value()}
	case gometrics.GaugeFloat64:
		return logrus.Fields{"value": m.Value()}
	case gometrics.Meter:
		s := m.Snapshot()
		fields := rateFields(s.Rate1(), s.Rate5(), s.Rate15(), s.RateMean())
		fields["count"] = s.Count()
		return fields
	case gometrics.Histogram:
		s := m.Snapshot()
		return distributionFields(s.Count(), s.Sum(), s.Min(), s.Max(), s.Mean(), s.StdDev(), s.Variance())
	case gometrics.Timer:
		s := m.Snapshot()
		fields := distributionFields(s.Count(), s.Sum(), s.Min(), s.Max(), s.Mean(), s.StdDev(), s.Variance())
		for key, value := range rateFields(s.Rate1(), s.Rate5(), s.Rate15(), s.RateMean()) {
			fields[key] = value
		}
		return fields
	}
	return nil
}

func rateFields(one, five, fifteen, mean float64) logrus.Fields {
	return logrus.Fields{
		"rate-one-minute":     one,
		"rate-five-minute":    five,
		"rate-fifteen-minute": fifteen,
		"rate-mean":           mean,
	}
}

func distributionFields(count, sum, min, max int64, mean, stddev, variance float64) logrus.Fields {
	return logrus.Fields{
		"count":    count,
		"sum":      sum,
		"min":      min,
		"max":      max,
		"mean":     mean,
		"stddev":   stddev,
		"variance": variance,
	}
}
