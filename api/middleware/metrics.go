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

package middleware

import (
	"fmt"
	"time"

	"github.com/ant0ine/go-json-rest/rest"
	"github.com/rcrowley/go-metrics"

	"github.com/amalgam8/vigil/api/env"
	"github.com/amalgam8/vigil/api/protocol"
	"github.com/amalgam8/vigil/utils/logging"
)

// MetricsMiddleware meters API usage per operation: request rate, status
// code distribution and latency, plus an API-wide latency histogram. It
// reads the fields recorded by rest.TimerMiddleware, rest.RecorderMiddleware
// and the operation routes, so it must wrap them in the chain.
type MetricsMiddleware struct{}

// MiddlewareFunc implements the Middleware interface
func (mw *MetricsMiddleware) MiddlewareFunc(h rest.HandlerFunc) rest.HandlerFunc {
	return func(w rest.ResponseWriter, r *rest.Request) {
		h(w, r)
		mw.meter(r)
	}
}

func (mw *MetricsMiddleware) meter(r *rest.Request) {
	operation, ok := r.Env[env.APIOperation].(protocol.Operation)
	if !ok {
		// Not an API operation route (e.g. /uptime).
		return
	}

	latency, ok := r.Env[env.ElapsedTime].(*time.Duration)
	if !ok {
		logging.GetLogger(module).Error("Request reached metering without an ELAPSED_TIME value")
		return
	}

	status, ok := r.Env[env.StatusCode].(int)
	if !ok {
		logging.GetLogger(module).Error("Request reached metering without a STATUS_CODE value")
		return
	}

	name := operation.String()
	meterOf(fmt.Sprintf("api.%s.status.%d", name, status)).Mark(1)
	meterOf(fmt.Sprintf("api.%s.rate", name)).Mark(1)
	histogramOf(fmt.Sprintf("api.%s.latency", name)).Update(int64(*latency))
	histogramOf("api.global.latency").Update(int64(*latency))
}

func meterOf(name string) metrics.Meter {
	newMeter := func() metrics.Meter { return metrics.NewMeter() }
	return metrics.DefaultRegistry.GetOrRegister(name, newMeter).(metrics.Meter)
}

func histogramOf(name string) metrics.Histogram {
	newHistogram := func() metrics.Histogram {
		return metrics.NewHistogram(metrics.NewExpDecaySample(256, 0.015))
	}
	return metrics.DefaultRegistry.GetOrRegister(name, newHistogram).(metrics.Histogram)
}
