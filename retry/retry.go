// Package retry implements bounded retry with exponential backoff around a
// call. Only errors the policy names as retryable consume retries; anything
// else propagates on the first attempt. A breaker's CircuitOpen rejection is
// never retried, regardless of policy.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/utils/logging"
)

const module = "RETRY"

// Default policy values
const (
	DefaultMaxRetries        = 3
	DefaultInitialInterval   = 100 * time.Millisecond
	DefaultBackoffMultiplier = 2.0
	DefaultMaxInterval       = 10 * time.Second
)

const retriesMetricName = "retry.attempts.count"

// Policy is the pure retry configuration. It carries no state across
// invocations.
type Policy struct {

	// MaxRetries bounds the number of retries after the first attempt.
	MaxRetries int

	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration

	// BackoffMultiplier grows the delay between consecutive retries.
	BackoffMultiplier float64

	// MaxInterval caps the grown delay.
	MaxInterval time.Duration

	// Jitter randomizes each delay within [delay/2, delay).
	Jitter bool

	// RetryableKinds lists the fault kinds eligible for retry. Empty
	// defaults to Timeout only.
	RetryableKinds []fault.Kind

	// RetryableStatusCodes lists status codes eligible for retry regardless
	// of kind.
	RetryableStatusCodes []int
}

// Executor retries operations according to a Policy.
type Executor struct {
	maxRetries int
	initial    time.Duration
	multiplier float64
	max        time.Duration
	jitter     bool

	retryableKinds map[fault.Kind]bool
	retryableCodes map[int]bool

	logger        *log.Entry
	retriesMetric metrics.Counter
}

// New creates an Executor for the given policy.
func New(policy Policy) (*Executor, error) {
	if policy.MaxRetries < 0 {
		return nil, fault.New(fault.Validation, "max retries must be non-negative")
	}
	if policy.BackoffMultiplier == 0 {
		policy.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if policy.BackoffMultiplier < 1 {
		return nil, fault.Newf(fault.Validation, "backoff multiplier %v must not shrink delays", policy.BackoffMultiplier)
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultInitialInterval
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = DefaultMaxInterval
	}
	if policy.MaxInterval < policy.InitialInterval {
		return nil, fault.Newf(fault.Validation, "max interval %v below initial interval %v",
			policy.MaxInterval, policy.InitialInterval)
	}

	kinds := make(map[fault.Kind]bool, len(policy.RetryableKinds))
	for _, kind := range policy.RetryableKinds {
		kinds[kind] = true
	}
	if len(kinds) == 0 {
		kinds[fault.Timeout] = true
	}
	codes := make(map[int]bool, len(policy.RetryableStatusCodes))
	for _, code := range policy.RetryableStatusCodes {
		codes[code] = true
	}

	counterFactory := func() metrics.Counter { return metrics.NewCounter() }
	return &Executor{
		maxRetries:     policy.MaxRetries,
		initial:        policy.InitialInterval,
		multiplier:     policy.BackoffMultiplier,
		max:            policy.MaxInterval,
		jitter:         policy.Jitter,
		retryableKinds: kinds,
		retryableCodes: codes,
		logger:         logging.GetLogger(module),
		retriesMetric:  metrics.GetOrRegister(retriesMetricName, counterFactory).(metrics.Counter),
	}, nil
}

// Execute runs op, retrying retryable failures with exponential backoff. It
// returns the last error once retries are exhausted, or immediately on a
// non-retryable error or on ctx cancellation during backoff.
func (e *Executor) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt >= e.maxRetries || !e.retryable(err) {
			return err
		}

		delay := e.delay(attempt)
		e.retriesMetric.Inc(1)
		e.logger.WithFields(log.Fields{
			"attempt": attempt + 1,
			"delay":   delay,
			"error":   err,
		}).Debug("Retrying failed operation")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return err
		}
		timer.Stop()
	}
}

// retryable reports whether err consumes a retry. CircuitOpen is excluded
// unconditionally; retrying into an open breaker only prolongs the outage
// it signals.
func (e *Executor) retryable(err error) bool {
	if fault.IsCircuitOpen(err) {
		return false
	}
	if code, ok := fault.StatusCodeOf(err); ok && e.retryableCodes[code] {
		return true
	}
	return e.retryableKinds[fault.KindOf(err)]
}

// delay returns the backoff before retry n (zero-based), grown by the
// multiplier and capped at the max interval.
func (e *Executor) delay(n int) time.Duration {
	d := float64(e.initial) * math.Pow(e.multiplier, float64(n))
	if d > float64(e.max) {
		d = float64(e.max)
	}
	if e.jitter {
		d = d/2 + rand.Float64()*d/2
	}
	return time.Duration(d)
}
