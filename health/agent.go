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

package health

import (
	"context"
	"sync"
	"time"
)

// Agent executes a health check at a given interval.
type Agent struct {
	stop   chan struct{}
	cancel context.CancelFunc
	active bool
	mutex  sync.Mutex

	interval time.Duration
	check    Check
}

// NewAgent wraps a check in a periodic execution agent.
func NewAgent(check Check, interval time.Duration) *Agent {
	if interval == 0 {
		interval = defaultInterval
	}

	return &Agent{
		check:    check,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start the health check agent. Non-blocking; probe results are delivered
// on statusChan.
func (a *Agent) Start(statusChan chan<- Result) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.active {
		return
	}
	a.active = true

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.run(ctx, statusChan)
}

// Stop the health check agent. An in-flight probe is abandoned, not awaited.
func (a *Agent) Stop() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if !a.active {
		return
	}
	a.active = false

	a.cancel()
	a.stop <- struct{}{}
}

// run performs periodic health checks until the agent is stopped.
func (a *Agent) run(ctx context.Context, statusChan chan<- Result) {
	// Perform an initial health check on start.
	if !a.report(ctx, statusChan) {
		return
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !a.report(ctx, statusChan) {
				return
			}
		case <-a.stop:
			return
		}
	}
}

// report executes one probe and delivers its result. It returns false when
// the agent was stopped while delivering.
func (a *Agent) report(ctx context.Context, statusChan chan<- Result) bool {
	err := a.check.Execute(ctx)
	select {
	case statusChan <- Result{Check: a.check, Error: err}:
		return true
	case <-a.stop:
		return false
	}
}
