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

// Package balancer implements instance selection strategies over the
// healthy-instance view of the service registry. A Balancer holds the
// per-service selection state (rotation index, in-flight counts), so
// callers keep one Balancer per service.
package balancer

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/registry"
)

// Strategy names.
const (
	RoundRobin         = "ROUND_ROBIN"
	LeastConnections   = "LEAST_CONNECTIONS"
	WeightedRoundRobin = "WEIGHTED_ROUND_ROBIN"
	Random             = "RANDOM"
	IPHash             = "IP_HASH"
)

const defaultWeight = 1

// ErrNoInstances is returned by Next when the instance set is empty.
var ErrNoInstances = errors.New("no instances available")

// Balancer selects an instance out of a set of healthy instances.
type Balancer interface {

	// Next selects an instance from the given set. The key carries caller
	// identity for affinity strategies and is ignored by the others.
	Next(instances []*registry.ServiceInstance, key string) (*registry.ServiceInstance, error)

	// Done reports completion of a call previously routed to the given
	// instance. Strategies that do not track in-flight calls ignore it.
	Done(instanceID string)
}

// New creates a balancer implementing the named strategy.
func New(strategy string) (Balancer, error) {
	switch strategy {
	case RoundRobin:
		return &roundRobin{}, nil
	case LeastConnections:
		return &leastConnections{active: make(map[string]int64)}, nil
	case WeightedRoundRobin:
		return &weightedRoundRobin{current: make(map[string]int)}, nil
	case Random:
		return &random{}, nil
	case IPHash:
		return &ipHash{}, nil
	default:
		return nil, fault.Newf(fault.Validation, "unrecognized balancer strategy %q", strategy)
	}
}

// roundRobin rotates through the instance set in order.
type roundRobin struct {
	next uint64
}

func (rr *roundRobin) Next(instances []*registry.ServiceInstance, key string) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	idx := atomic.AddUint64(&rr.next, 1) - 1
	return instances[idx%uint64(len(instances))], nil
}

func (rr *roundRobin) Done(instanceID string) {}

// leastConnections selects the instance with the fewest in-flight calls,
// breaking ties by instance ID ordering so the choice is deterministic.
type leastConnections struct {
	active map[string]int64
	mutex  sync.Mutex
}

func (lc *leastConnections) Next(instances []*registry.ServiceInstance, key string) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	lc.mutex.Lock()
	defer lc.mutex.Unlock()

	var best *registry.ServiceInstance
	var bestCount int64
	for _, si := range instances {
		count := lc.active[si.ID]
		if best == nil || count < bestCount || (count == bestCount && si.ID < best.ID) {
			best = si
			bestCount = count
		}
	}

	lc.active[best.ID]++
	return best, nil
}

func (lc *leastConnections) Done(instanceID string) {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()

	if count := lc.active[instanceID]; count > 1 {
		lc.active[instanceID] = count - 1
	} else {
		delete(lc.active, instanceID)
	}
}

// weightedRoundRobin implements smooth weighted rotation: each selection
// raises every instance's credit by its weight and charges the chosen one
// the weight total, interleaving instances proportionally to their weights.
type weightedRoundRobin struct {
	current map[string]int
	mutex   sync.Mutex
}

func (wrr *weightedRoundRobin) Next(instances []*registry.ServiceInstance, key string) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	wrr.mutex.Lock()
	defer wrr.mutex.Unlock()

	seen := make(map[string]struct{}, len(instances))
	total := 0
	var best *registry.ServiceInstance
	for _, si := range instances {
		seen[si.ID] = struct{}{}
		weight := instanceWeight(si)
		total += weight
		wrr.current[si.ID] += weight
		if best == nil || wrr.current[si.ID] > wrr.current[best.ID] {
			best = si
		}
	}
	wrr.current[best.ID] -= total

	// Drop credit carried for instances that left the set.
	for id := range wrr.current {
		if _, ok := seen[id]; !ok {
			delete(wrr.current, id)
		}
	}

	return best, nil
}

func (wrr *weightedRoundRobin) Done(instanceID string) {}

// instanceWeight reads the instance's weight from its metadata,
// defaulting to 1 when absent or invalid.
func instanceWeight(si *registry.ServiceInstance) int {
	if len(si.Metadata) == 0 {
		return defaultWeight
	}
	var meta struct {
		Weight int `json:"weight"`
	}
	if err := json.Unmarshal(si.Metadata, &meta); err != nil || meta.Weight <= 0 {
		return defaultWeight
	}
	return meta.Weight
}

type random struct{}

func (r *random) Next(instances []*registry.ServiceInstance, key string) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	return instances[rand.Intn(len(instances))], nil
}

func (r *random) Done(instanceID string) {}

// ipHash provides caller affinity: the same key maps to the same instance
// as long as the instance set is unchanged.
type ipHash struct{}

func (ih *ipHash) Next(instances []*registry.ServiceInstance, key string) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return instances[int(h.Sum32()%uint32(len(instances)))], nil
}

func (ih *ipHash) Done(instanceID string) {}
