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

package balancer

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/registry"
)

func makeInstances(ids ...string) []*registry.ServiceInstance {
	instances := make([]*registry.ServiceInstance, len(ids))
	for i, id := range ids {
		instances[i] = &registry.ServiceInstance{
			ID:        id,
			ServiceID: "test_service",
			Address:   fmt.Sprintf("10.0.0.%d:8080", i+1),
			Status:    registry.InstanceRunning,
		}
	}
	return instances
}

func TestNewUnknownStrategy(t *testing.T) {
	_, err := New("FASTEST_FIRST")
	assert.Equal(t, fault.Validation, fault.KindOf(err))
}

func TestEmptyInstanceSet(t *testing.T) {
	for _, strategy := range []string{RoundRobin, LeastConnections, WeightedRoundRobin, Random, IPHash} {
		b, err := New(strategy)
		require.NoError(t, err)

		_, err = b.Next(nil, "")
		assert.Equal(t, ErrNoInstances, err, strategy)
	}
}

func TestRoundRobinCycles(t *testing.T) {
	b, err := New(RoundRobin)
	require.NoError(t, err)

	instances := makeInstances("a", "b", "c")
	var picked []string
	for i := 0; i < 6; i++ {
		si, err := b.Next(instances, "")
		require.NoError(t, err)
		picked = append(picked, si.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, picked)
}

func TestLeastConnectionsPrefersIdleInstances(t *testing.T) {
	b, err := New(LeastConnections)
	require.NoError(t, err)

	instances := makeInstances("a", "b", "c")

	var picked []string
	for i := 0; i < 3; i++ {
		si, err := b.Next(instances, "")
		require.NoError(t, err)
		picked = append(picked, si.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, picked)

	// Releasing b makes it the least loaded
	b.Done("b")
	si, err := b.Next(instances, "")
	require.NoError(t, err)
	assert.Equal(t, "b", si.ID)
}

func TestLeastConnectionsTieBrokenByID(t *testing.T) {
	b, err := New(LeastConnections)
	require.NoError(t, err)

	// Ties resolve by instance ID, not slice position
	si, err := b.Next(makeInstances("c", "b", "a"), "")
	require.NoError(t, err)
	assert.Equal(t, "a", si.ID)
}

func TestLeastConnectionsDoneWithoutNext(t *testing.T) {
	b, err := New(LeastConnections)
	require.NoError(t, err)

	b.Done("ghost")
	si, err := b.Next(makeInstances("a"), "")
	require.NoError(t, err)
	assert.Equal(t, "a", si.ID)
}

func TestWeightedRoundRobinHonorsWeights(t *testing.T) {
	b, err := New(WeightedRoundRobin)
	require.NoError(t, err)

	instances := makeInstances("a", "b")
	instances[0].Metadata = json.RawMessage(`{"weight":3}`)
	instances[1].Metadata = json.RawMessage(`{"weight":1}`)

	counts := make(map[string]int)
	for i := 0; i < 4; i++ {
		si, err := b.Next(instances, "")
		require.NoError(t, err)
		counts[si.ID]++
	}
	assert.Equal(t, 3, counts["a"])
	assert.Equal(t, 1, counts["b"])
}

func TestWeightedRoundRobinDefaultsToEqualWeights(t *testing.T) {
	b, err := New(WeightedRoundRobin)
	require.NoError(t, err)

	instances := makeInstances("a", "b")
	var picked []string
	for i := 0; i < 4; i++ {
		si, err := b.Next(instances, "")
		require.NoError(t, err)
		picked = append(picked, si.ID)
	}
	assert.Equal(t, []string{"a", "b", "a", "b"}, picked)
}

func TestRandomPicksMembers(t *testing.T) {
	b, err := New(Random)
	require.NoError(t, err)

	instances := makeInstances("a", "b", "c")
	for i := 0; i < 20; i++ {
		si, err := b.Next(instances, "")
		require.NoError(t, err)
		assert.Contains(t, []string{"a", "b", "c"}, si.ID)
	}
}

func TestIPHashIsDeterministic(t *testing.T) {
	b, err := New(IPHash)
	require.NoError(t, err)

	instances := makeInstances("a", "b", "c")

	first, err := b.Next(instances, "192.168.1.10")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		si, err := b.Next(instances, "192.168.1.10")
		require.NoError(t, err)
		assert.Equal(t, first.ID, si.ID)
	}
}
