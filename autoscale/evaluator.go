// Package autoscale evaluates autoscaling policies against observed service
// metrics and applies fleet-size decisions. Evaluators on different nodes
// coordinate through the distributed locks of the state store, so at most one
// of them scales a given service at a time.
package autoscale

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/fault"
	pkgmath "github.com/amalgam8/vigil/pkg/math"
	"github.com/amalgam8/vigil/registry"
	"github.com/amalgam8/vigil/store"
	"github.com/amalgam8/vigil/utils/logging"
)

const (
	module = "AUTOSCALE"

	scalingsMetricName     = "autoscale.scalings.count"
	suppressionsMetricName = "autoscale.suppressions.count"
)

// Default evaluator timing values
const (
	DefaultEvaluationInterval = 30 * time.Second
	DefaultLockTTL            = 30 * time.Second
)

// InstanceLister is the subset of registry operations the evaluator depends on.
type InstanceLister interface {
	GetServiceInstances(serviceID string) ([]*registry.ServiceInstance, error)
}

// EvaluatorConfig encapsulates the configuration of an Evaluator.
type EvaluatorConfig struct {

	// Manager supplies the evaluated policies and persists their state.
	Manager Manager

	// Metrics supplies windowed metric aggregates.
	Metrics MetricSource

	// Registry reports the current fleet of each scaled service.
	Registry InstanceLister

	// Store provides the distributed locks guarding scaling actions, and
	// carries scaling activity publications.
	Store store.Store

	// Scaler applies decisions. Defaults to a logging scaler.
	Scaler Scaler

	// Interval between evaluation ticks. Defaults to DefaultEvaluationInterval.
	Interval time.Duration

	// WindowWidth is the width of one metric aggregation window.
	// Defaults to the evaluation interval.
	WindowWidth time.Duration

	// LockTTL bounds how long a crashed evaluator can block others.
	// Defaults to DefaultLockTTL.
	LockTTL time.Duration
}

// Evaluator periodically evaluates every stored policy. On each tick it
// aggregates each rule's metric over the rule's evaluation periods, fires the
// first satisfied rule, and applies the decision under the service's
// distributed lock, honoring the policy's cooldown.
type Evaluator struct {
	manager     Manager
	metrics     MetricSource
	registry    InstanceLister
	store       store.Store
	scaler      Scaler
	interval    time.Duration
	windowWidth time.Duration
	lockTTL     time.Duration
	logger      *log.Entry

	scalingsMetric     metrics.Counter
	suppressionsMetric metrics.Counter

	stop   chan struct{}
	active bool
	mutex  sync.Mutex
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(conf EvaluatorConfig) (*Evaluator, error) {
	if conf.Manager == nil {
		return nil, fault.New(fault.Validation, "evaluator requires a policy manager")
	}
	if conf.Metrics == nil {
		return nil, fault.New(fault.Validation, "evaluator requires a metric source")
	}
	if conf.Registry == nil {
		return nil, fault.New(fault.Validation, "evaluator requires a registry")
	}
	if conf.Store == nil {
		return nil, fault.New(fault.Validation, "evaluator requires a store")
	}
	if conf.Scaler == nil {
		conf.Scaler = NewLogScaler()
	}
	if conf.Interval <= 0 {
		conf.Interval = DefaultEvaluationInterval
	}
	if conf.WindowWidth <= 0 {
		conf.WindowWidth = conf.Interval
	}
	if conf.LockTTL <= 0 {
		conf.LockTTL = DefaultLockTTL
	}

	counterFactory := func() metrics.Counter { return metrics.NewCounter() }
	return &Evaluator{
		manager:            conf.Manager,
		metrics:            conf.Metrics,
		registry:           conf.Registry,
		store:              conf.Store,
		scaler:             conf.Scaler,
		interval:           conf.Interval,
		windowWidth:        conf.WindowWidth,
		lockTTL:            conf.LockTTL,
		logger:             logging.GetLogger(module),
		scalingsMetric:     metrics.GetOrRegister(scalingsMetricName, counterFactory).(metrics.Counter),
		suppressionsMetric: metrics.GetOrRegister(suppressionsMetricName, counterFactory).(metrics.Counter),
		stop:               make(chan struct{}),
	}, nil
}

// Start begins periodic evaluation.
func (e *Evaluator) Start() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.active {
		return nil
	}
	e.active = true

	go e.run()
	return nil
}

// Stop halts periodic evaluation. A tick in progress completes first.
func (e *Evaluator) Stop() {
	e.mutex.Lock()
	if !e.active {
		e.mutex.Unlock()
		return
	}
	e.active = false
	e.mutex.Unlock()

	e.stop <- struct{}{}
}

func (e *Evaluator) run() {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.Evaluate()
	for {
		select {
		case <-ticker.C:
			e.Evaluate()
		case <-e.stop:
			return
		}
	}
}

// Evaluate runs a single evaluation pass over all stored policies.
func (e *Evaluator) Evaluate() {
	policies, err := e.manager.ListPolicies()
	if err != nil {
		e.logger.WithError(err).Error("Could not list autoscaling policies")
		return
	}

	for _, policy := range policies {
		e.evaluatePolicy(policy)
	}
}

func (e *Evaluator) evaluatePolicy(policy *Policy) {
	instances, err := e.registry.GetServiceInstances(policy.ServiceID)
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"policy_id":  policy.ID,
			"service_id": policy.ServiceID,
		}).Warn("Could not determine current fleet size")
		return
	}
	current := len(instances)

	rule, desired := e.decide(policy, current)
	cooled := e.cooled(policy, time.Now())

	if rule == nil {
		if policy.Status == StatusCooldown && cooled {
			e.clearCooldown(policy)
		}
		return
	}

	if !cooled {
		e.suppressionsMetric.Inc(1)
		e.logger.WithFields(log.Fields{
			"policy_id":  policy.ID,
			"service_id": policy.ServiceID,
			"metric":     rule.Metric,
		}).Debug("Scaling suppressed by cooldown")
		return
	}

	if desired == current && desired == policy.DesiredInstances {
		// Already at the clamp boundary. Applying would only burn a
		// cooldown window.
		return
	}

	e.apply(policy, rule, current, desired)
}

// decide returns the first rule that fires, with the clamped fleet size it
// asks for, or nil when no rule fires.
func (e *Evaluator) decide(policy *Policy, current int) (*ScalingRule, int) {
	for i := range policy.Rules {
		rule := &policy.Rules[i]

		periods := rule.EvaluationPeriods
		if periods <= 0 {
			periods = 1
		}

		windows, err := e.metrics.Windows(policy.ServiceID, rule.Metric, periods, e.windowWidth)
		if err != nil {
			e.logger.WithError(err).WithFields(log.Fields{
				"policy_id": policy.ID,
				"metric":    rule.Metric,
			}).Warn("Could not aggregate metric windows")
			continue
		}
		if !fires(rule, windows) {
			continue
		}

		desired := current
		switch rule.Direction {
		case ScaleDown:
			desired -= rule.Amount
		default:
			desired += rule.Amount
		}
		return rule, pkgmath.Clamp(desired, policy.MinInstances, policy.MaxInstances)
	}
	return nil, 0
}

// fires reports whether every window satisfies the rule. Windows without
// samples never satisfy it.
func fires(rule *ScalingRule, windows []Window) bool {
	if len(windows) == 0 {
		return false
	}
	for _, w := range windows {
		if w.Count == 0 || !satisfies(rule.Operator, w.Mean, rule.Threshold) {
			return false
		}
	}
	return true
}

func satisfies(op Operator, value, threshold float64) bool {
	switch op {
	case GreaterThan:
		return value > threshold
	case GreaterOrEqual:
		return value >= threshold
	case LessThan:
		return value < threshold
	case LessOrEqual:
		return value <= threshold
	default:
		return false
	}
}

func (e *Evaluator) cooled(policy *Policy, now time.Time) bool {
	if policy.LastScalingActivity.IsZero() || policy.CooldownPeriod <= 0 {
		return true
	}
	return now.Sub(policy.LastScalingActivity) >= policy.CooldownPeriod
}

// apply takes the service's scaling lock, re-reads the policy and applies the
// decision if the cooldown still allows it. Re-reading under the lock is what
// keeps two evaluators from both scaling within one cooldown window.
func (e *Evaluator) apply(policy *Policy, rule *ScalingRule, current, desired int) {
	lock, err := e.store.AcquireLock(lockKey(policy.ServiceID), e.lockTTL)
	if err != nil {
		if fault.IsKind(err, fault.LockUnavailable) {
			e.logger.WithFields(log.Fields{
				"service_id": policy.ServiceID,
			}).Debug("Another evaluator holds the scaling lock")
		} else {
			e.logger.WithError(err).WithFields(log.Fields{
				"service_id": policy.ServiceID,
			}).Warn("Could not acquire scaling lock")
		}
		return
	}
	defer func() {
		if _, err := e.store.ReleaseLock(lock); err != nil {
			e.logger.WithError(err).Warn("Could not release scaling lock")
		}
	}()

	fresh, err := e.manager.GetPolicy(policy.ID)
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"policy_id": policy.ID,
		}).Warn("Policy vanished before scaling")
		return
	}

	now := time.Now()
	if !e.cooled(fresh, now) {
		e.suppressionsMetric.Inc(1)
		return
	}

	fresh.Status = StatusScaling
	if err := e.manager.UpdatePolicy(fresh); err != nil {
		e.logger.WithError(err).Error("Could not persist scaling state")
		return
	}

	if err := e.scaler.Scale(fresh.ServiceID, current, desired); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"service_id": fresh.ServiceID,
			"desired":    desired,
		}).Error("Scaler failed to apply decision")

		fresh.Status = StatusActive
		if err := e.manager.UpdatePolicy(fresh); err != nil {
			e.logger.WithError(err).Error("Could not restore policy state")
		}
		return
	}

	previous := fresh.DesiredInstances
	fresh.DesiredInstances = desired
	fresh.LastScalingActivity = now
	fresh.Status = StatusCooldown
	if err := e.manager.UpdatePolicy(fresh); err != nil {
		e.logger.WithError(err).Error("Could not persist applied decision")
		return
	}

	e.scalingsMetric.Inc(1)
	e.logger.WithFields(log.Fields{
		"policy_id":  fresh.ID,
		"service_id": fresh.ServiceID,
		"metric":     rule.Metric,
		"direction":  rule.Direction,
		"previous":   previous,
		"desired":    desired,
		"instances":  current,
	}).Info("Scaling service")

	e.publish(&Activity{
		PolicyID:        fresh.ID,
		ServiceID:       fresh.ServiceID,
		Metric:          rule.Metric,
		Direction:       rule.Direction,
		PreviousDesired: previous,
		Desired:         desired,
		Instances:       current,
		Timestamp:       now,
	})
}

// clearCooldown returns a cooled-down policy to ACTIVE, under the lock so a
// concurrent scaling action is not overwritten.
func (e *Evaluator) clearCooldown(policy *Policy) {
	lock, err := e.store.AcquireLock(lockKey(policy.ServiceID), e.lockTTL)
	if err != nil {
		return
	}
	defer func() {
		if _, err := e.store.ReleaseLock(lock); err != nil {
			e.logger.WithError(err).Warn("Could not release scaling lock")
		}
	}()

	fresh, err := e.manager.GetPolicy(policy.ID)
	if err != nil {
		return
	}
	if fresh.Status != StatusCooldown || !e.cooled(fresh, time.Now()) {
		return
	}

	fresh.Status = StatusActive
	if err := e.manager.UpdatePolicy(fresh); err != nil {
		e.logger.WithError(err).Error("Could not clear cooldown state")
	}
}

func (e *Evaluator) publish(activity *Activity) {
	data, err := json.Marshal(activity)
	if err != nil {
		e.logger.WithError(err).Error("Could not marshal scaling activity")
		return
	}
	if err := e.store.Publish(store.ScalingChannel, data); err != nil {
		e.logger.WithError(err).Warn("Could not publish scaling activity")
	}
}

func lockKey(serviceID string) string {
	return "autoscale:" + serviceID
}
