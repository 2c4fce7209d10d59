// Package breaker implements a per-call-site circuit breaker. A breaker
// starts CLOSED and counts call failures; crossing the failure threshold
// trips it to OPEN, where calls are rejected without invoking the protected
// operation. After a reset timeout the next call is admitted as a HALF_OPEN
// trial, one at a time; a run of successful trials closes the breaker, any
// failed trial reopens it.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pborman/uuid"
	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/utils/logging"
)

const module = "BREAKER"

// State of a circuit breaker.
type State string

// Circuit breaker states
const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

// Policy selects how failures are counted while the breaker is closed.
type Policy string

// Failure counting policies
const (
	// RollingWindow counts all failures within a sliding time window.
	RollingWindow Policy = "rolling_window"

	// Consecutive counts only uninterrupted runs of failures.
	Consecutive Policy = "consecutive"
)

// Default configuration values
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 1
	DefaultResetTimeout     = 30 * time.Second
	DefaultWindowSize       = 60 * time.Second
)

const (
	tripsMetricName      = "breaker.trips.count"
	rejectionsMetricName = "breaker.rejections.count"
)

// Operation is a call protected by a breaker.
type Operation func(ctx context.Context) error

// Fallback handles a call rejected while the breaker is open.
type Fallback func(ctx context.Context, err error) error

// Counts is a point-in-time aggregate of call outcomes over the rolling
// window.
type Counts struct {
	Calls           uint64  `json:"calls"`
	Successes       uint64  `json:"successes"`
	Failures        uint64  `json:"failures"`
	Timeouts        uint64  `json:"timeouts"`
	Rejections      uint64  `json:"rejections"`
	ErrorPercentage float64 `json:"error_percentage"`
}

// Config encapsulates the configuration of a Breaker.
type Config struct {

	// Name identifies the breaker in logs and state change notifications.
	// Defaults to a generated ID.
	Name string

	// Policy selects the failure counting mode. Defaults to RollingWindow.
	Policy Policy

	// FailureThreshold is the failure count that trips the breaker.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successful trial calls
	// required to close the breaker again.
	SuccessThreshold int

	// Timeout bounds each protected call. A call exceeding it is abandoned
	// and counted as a failed, timed-out call. Zero disables the bound.
	Timeout time.Duration

	// ResetTimeout is how long the breaker stays open before admitting a
	// trial call.
	ResetTimeout time.Duration

	// WindowSize is the span of the rolling failure counting window.
	WindowSize time.Duration

	// Fallback, when set, is invoked with calls rejected while open.
	Fallback Fallback

	// OnStateChange, when set, is notified of every state transition. It is
	// called with the breaker's lock held and must not call back into the
	// breaker.
	OnStateChange func(name string, from, to State)
}

// Breaker is a CLOSED/OPEN/HALF_OPEN state machine guarding one call site.
// All state reads and writes are serialized behind a single mutex, so
// concurrent callers cannot lose updates.
type Breaker struct {
	name             string
	policy           Policy
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	resetTimeout     time.Duration
	fallback         Fallback
	onStateChange    func(name string, from, to State)

	logger *log.Entry

	mutex            sync.Mutex
	state            State
	lastStateChange  time.Time
	window           *window
	consecutiveFails int
	trialInFlight    bool
	trialSuccesses   int

	tripsMetric      metrics.Counter
	rejectionsMetric metrics.Counter
}

// New creates a breaker in the CLOSED state.
func New(conf Config) (*Breaker, error) {
	switch conf.Policy {
	case "":
		conf.Policy = RollingWindow
	case RollingWindow, Consecutive:
	default:
		return nil, fault.Newf(fault.Validation, "unknown failure counting policy %q", conf.Policy)
	}
	if conf.Name == "" {
		conf.Name = uuid.New()
	}
	if conf.FailureThreshold <= 0 {
		conf.FailureThreshold = DefaultFailureThreshold
	}
	if conf.SuccessThreshold <= 0 {
		conf.SuccessThreshold = DefaultSuccessThreshold
	}
	if conf.ResetTimeout <= 0 {
		conf.ResetTimeout = DefaultResetTimeout
	}
	if conf.WindowSize <= 0 {
		conf.WindowSize = DefaultWindowSize
	}

	counterFactory := func() metrics.Counter { return metrics.NewCounter() }
	return &Breaker{
		name:             conf.Name,
		policy:           conf.Policy,
		failureThreshold: conf.FailureThreshold,
		successThreshold: conf.SuccessThreshold,
		timeout:          conf.Timeout,
		resetTimeout:     conf.ResetTimeout,
		fallback:         conf.Fallback,
		onStateChange:    conf.OnStateChange,
		logger:           logging.GetLogger(module),
		state:            Closed,
		lastStateChange:  time.Now(),
		window:           newWindow(conf.WindowSize),
		tripsMetric:      metrics.GetOrRegister(tripsMetricName, counterFactory).(metrics.Counter),
		rejectionsMetric: metrics.GetOrRegister(rejectionsMetricName, counterFactory).(metrics.Counter),
	}, nil
}

// Name returns the breaker's identifier.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the stored state. The OPEN to HALF_OPEN transition is lazy;
// it happens on the next Execute after the reset timeout, not here.
func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

// LastStateChange returns the time of the last state transition.
func (b *Breaker) LastStateChange() time.Time {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.lastStateChange
}

// Counts returns a snapshot of the rolling-window call metrics.
func (b *Breaker) Counts() Counts {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.window.aggregate(time.Now())
}

// Execute runs op under the breaker. While OPEN, op is not invoked and the
// call fails with a CircuitOpen fault, or with the fallback's result when
// one is configured. The error returned by op is passed through unchanged.
func (b *Breaker) Execute(ctx context.Context, op Operation) error {
	if err := b.admit(); err != nil {
		if b.fallback != nil {
			return b.fallback(ctx, err)
		}
		return err
	}

	opCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- op(opCtx) }()

	var err error
	select {
	case err = <-done:
	case <-opCtx.Done():
		// The call is abandoned at its deadline, not awaited further.
		err = opCtx.Err()
	}

	b.record(err)
	return err
}

// admit decides whether a call may proceed, applying the lazy OPEN to
// HALF_OPEN transition. When the call is rejected, a CircuitOpen fault is
// returned and the rejection is recorded.
func (b *Breaker) admit() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	now := time.Now()
	switch b.state {
	case Closed:
		return nil
	case Open:
		if now.Sub(b.lastStateChange) >= b.resetTimeout {
			b.transition(HalfOpen, now)
			b.trialInFlight = true
			b.trialSuccesses = 0
			return nil
		}
	case HalfOpen:
		if !b.trialInFlight {
			b.trialInFlight = true
			return nil
		}
	}

	b.window.current(now).rejections++
	b.rejectionsMetric.Inc(1)
	return fault.Newf(fault.CircuitOpen, "circuit breaker %s is open", b.name)
}

// record applies one call outcome to the breaker state.
func (b *Breaker) record(err error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	now := time.Now()
	bucket := b.window.current(now)
	bucket.calls++

	// Caller cancellation and admission rejections surfaced by the wrapped
	// call are control signals, not faults of the protected operation. They
	// count as neither success nor failure.
	if err != nil && (errors.Is(err, context.Canceled) || fault.IsRejection(err)) {
		bucket.rejections++
		if b.state == HalfOpen {
			b.trialInFlight = false
		}
		return
	}

	if err == nil {
		bucket.successes++
		b.consecutiveFails = 0
	} else {
		bucket.failures++
		b.consecutiveFails++
		if fault.IsTimeout(err) {
			bucket.timeouts++
		}
	}

	switch b.state {
	case Closed:
		if err != nil && b.thresholdReached(now) {
			b.trip(now)
		}
	case HalfOpen:
		b.trialInFlight = false
		if err == nil {
			b.trialSuccesses++
			if b.trialSuccesses >= b.successThreshold {
				b.transition(Closed, now)
				b.window.reset()
				b.consecutiveFails = 0
			}
		} else {
			b.trip(now)
		}
	case Open:
		// A call admitted before the trip finished after it. Its outcome is
		// recorded but drives no transition.
	}
}

func (b *Breaker) thresholdReached(now time.Time) bool {
	if b.policy == Consecutive {
		return b.consecutiveFails >= b.failureThreshold
	}
	return b.window.aggregate(now).Failures >= uint64(b.failureThreshold)
}

// trip moves the breaker to OPEN and restarts the reset timeout clock.
func (b *Breaker) trip(now time.Time) {
	b.tripsMetric.Inc(1)
	b.trialInFlight = false
	b.trialSuccesses = 0
	b.transition(Open, now)
}

func (b *Breaker) transition(next State, now time.Time) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.lastStateChange = now

	b.logger.WithFields(log.Fields{
		"breaker":    b.name,
		"state":      next,
		"prev_state": prev,
	}).Info("Circuit breaker state change")

	if b.onStateChange != nil {
		b.onStateChange(b.name, prev, next)
	}
}
