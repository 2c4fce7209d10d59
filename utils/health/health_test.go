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

package health_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amalgam8/vigil/utils/health"
)

func TestHealthyConstant(t *testing.T) {
	assert.True(t, health.Healthy.Healthy)
	assert.Empty(t, health.Healthy.Properties)
}

func TestHealthyStatusCarriesMessage(t *testing.T) {
	st := health.StatusHealthy("connection pool warm")

	assert.True(t, st.Healthy)
	assert.Equal(t, "connection pool warm", st.Properties["message"])
}

func TestStatusOmitsEmptyMessage(t *testing.T) {
	st := health.StatusHealthy("")

	assert.True(t, st.Healthy)
	assert.Empty(t, st.Properties)
}

func TestUnhealthyStatusCarriesCause(t *testing.T) {
	cause := errors.New("connection refused")
	st := health.StatusUnhealthy("backend unreachable", cause)

	assert.False(t, st.Healthy)
	assert.Equal(t, "backend unreachable", st.Properties["message"])
	assert.Equal(t, cause.Error(), st.Properties["cause"])
}

func TestUnhealthyStatusWithoutCause(t *testing.T) {
	st := health.StatusUnhealthy("stale data", nil)

	assert.False(t, st.Healthy)
	assert.NotContains(t, st.Properties, "cause")
}

func TestStatusWithProperties(t *testing.T) {
	props := map[string]interface{}{"uptime": "3h2m", "build": "deadbeef"}
	st := health.StatusHealthyWithProperties(props)

	assert.True(t, st.Healthy)
	assert.Equal(t, props, st.Properties)
}

func TestRegistryRunChecks(t *testing.T) {
	reg := health.NewRegistry()
	reg.RegisterFunc("good", func() health.Status { return health.Healthy })
	reg.RegisterFunc("bad", func() health.Status { return health.StatusUnhealthy("broken", nil) })

	results := reg.RunChecks()
	assert.Len(t, results, 2)
	assert.True(t, results["good"].Healthy)
	assert.False(t, results["bad"].Healthy)
}

func TestRegistryUnregister(t *testing.T) {
	reg := health.NewRegistry()
	reg.RegisterFunc("gone", func() health.Status { return health.Healthy })
	reg.Unregister("gone")

	assert.Empty(t, reg.Components())
	assert.Empty(t, reg.RunChecks())
}

func TestRegistryCheckPanics(t *testing.T) {
	reg := health.NewRegistry()
	reg.RegisterFunc("panicky", func() health.Status {
		panic(errors.New("something bad"))
	})

	results := reg.RunChecks()
	assert.False(t, results["panicky"].Healthy)
	assert.Equal(t, health.CheckPanicked, results["panicky"].Properties["message"])
	assert.Equal(t, "something bad", results["panicky"].Properties["cause"])
}

func TestHandlerHealthy(t *testing.T) {
	reg := health.NewRegistry()
	reg.RegisterFunc("component", func() health.Status { return health.Healthy })

	recorder := httptest.NewRecorder()
	request, _ := http.NewRequest("GET", "/health", nil)
	reg.Handler().ServeHTTP(recorder, request)

	assert.Equal(t, health.HTTPStatusCodeHealthChecksPass, recorder.Code)

	statuses := map[string]health.Status{}
	err := json.Unmarshal(recorder.Body.Bytes(), &statuses)
	assert.NoError(t, err)
	assert.True(t, statuses["component"].Healthy)
}

func TestHandlerUnhealthy(t *testing.T) {
	reg := health.NewRegistry()
	reg.RegisterFunc("good", func() health.Status { return health.Healthy })
	reg.RegisterFunc("bad", func() health.Status { return health.StatusUnhealthy("down", nil) })

	recorder := httptest.NewRecorder()
	request, _ := http.NewRequest("GET", "/health", nil)
	reg.Handler().ServeHTTP(recorder, request)

	assert.Equal(t, health.HTTPStatusCodeHealthChecksFail, recorder.Code)
}
