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

package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amalgam8/vigil/utils/health"
)

func TestHealthCheckReachableBackend(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Close()

	status := newHealthChecker(s, InMemory).Check()
	assert.True(t, status.Healthy, "Expected a healthy store but got %v", status)
	assert.Equal(t, InMemory, status.Properties["backend"])
}

func TestHealthCheckUnreachableBackend(t *testing.T) {
	mockedConn := new(MockedConn)
	mockedConn.On("Do", "EXISTS", []interface{}{livenessKey}).Return(nil, errors.New("connection refused"))
	db := NewRedisDatabaseWithConn(mockedConn, "addr", "pass")

	status := newHealthChecker(NewRedisStore(db), Redis).Check()
	assert.False(t, status.Healthy, "Expected an unhealthy store but got %v", status)
	assert.Contains(t, status.Properties["cause"], "connection refused")
}

func TestNewRegistersHealthCheck(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Close()

	assert.Contains(t, health.Components(), module)
}
