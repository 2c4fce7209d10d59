// Package ratelimit implements throughput admission control. A limiter
// replenishes a fixed number of permits every refresh period; callers
// acquire a permit, wait a bounded time for the next refill, or are
// rejected. Refill is driven by the clock, never by call arrivals, and idle
// time accumulates at most one period's worth of permits.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/utils/logging"
)

const module = "RATELIMIT"

// Policy selects the replenishment model.
type Policy string

// Replenishment policies
const (
	// FixedWindow resets the full permit budget at every period boundary.
	FixedWindow Policy = "fixed_window"

	// TokenBucket replenishes permits continuously at limit-per-period rate,
	// capped at one period's worth.
	TokenBucket Policy = "token_bucket"
)

// Default configuration values
const (
	DefaultLimitForPeriod     = 50
	DefaultLimitRefreshPeriod = time.Second
)

const rejectionsMetricName = "ratelimit.rejections.count"

// Config encapsulates the configuration of a Limiter.
type Config struct {

	// Name identifies the limiter in logs.
	Name string

	// Policy selects the replenishment model. Defaults to FixedWindow.
	Policy Policy

	// LimitForPeriod is the number of permits available per refresh period.
	LimitForPeriod int

	// LimitRefreshPeriod is the permit replenishment period.
	LimitRefreshPeriod time.Duration

	// TimeoutDuration bounds how long an acquire may wait for replenishment.
	// Zero rejects immediately when no permit is available.
	TimeoutDuration time.Duration
}

// Limiter is a permit-based throughput limiter.
type Limiter struct {
	name    string
	policy  Policy
	limit   int
	period  time.Duration
	timeout time.Duration

	mutex       sync.Mutex
	permits     float64
	windowStart time.Time
	lastRefill  time.Time

	logger           *log.Entry
	rejectionsMetric metrics.Counter
}

// New creates a Limiter with a full permit budget.
func New(conf Config) (*Limiter, error) {
	switch conf.Policy {
	case "":
		conf.Policy = FixedWindow
	case FixedWindow, TokenBucket:
	default:
		return nil, fault.Newf(fault.Validation, "unknown rate limiting policy %q", conf.Policy)
	}
	if conf.LimitForPeriod < 0 {
		return nil, fault.New(fault.Validation, "limit must be non-negative")
	}
	if conf.LimitForPeriod == 0 {
		conf.LimitForPeriod = DefaultLimitForPeriod
	}
	if conf.LimitRefreshPeriod <= 0 {
		conf.LimitRefreshPeriod = DefaultLimitRefreshPeriod
	}
	if conf.Name == "" {
		conf.Name = "default"
	}

	now := time.Now()
	counterFactory := func() metrics.Counter { return metrics.NewCounter() }
	return &Limiter{
		name:             conf.Name,
		policy:           conf.Policy,
		limit:            conf.LimitForPeriod,
		period:           conf.LimitRefreshPeriod,
		timeout:          conf.TimeoutDuration,
		permits:          float64(conf.LimitForPeriod),
		windowStart:      now,
		lastRefill:       now,
		logger:           logging.GetLogger(module),
		rejectionsMetric: metrics.GetOrRegister(rejectionsMetricName, counterFactory).(metrics.Counter),
	}, nil
}

// Name returns the limiter's identifier.
func (l *Limiter) Name() string {
	return l.name
}

// Remaining returns the number of whole permits currently available.
func (l *Limiter) Remaining() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.refill(time.Now())
	return int(l.permits)
}

// TryAcquire claims a permit without waiting.
func (l *Limiter) TryAcquire() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.refill(time.Now())
	if l.permits >= 1 {
		l.permits--
		return true
	}
	return false
}

// Acquire claims a permit, waiting up to the configured timeout for
// replenishment. It fails with a RateLimitExceeded fault when no permit can
// become available in time or when ctx is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	deadline := time.Now().Add(l.timeout)
	for {
		l.mutex.Lock()
		now := time.Now()
		l.refill(now)
		if l.permits >= 1 {
			l.permits--
			l.mutex.Unlock()
			return nil
		}
		wait := l.nextPermitIn(now)
		l.mutex.Unlock()

		// Reject up front when no permit can arrive within the timeout.
		if l.timeout <= 0 || now.Add(wait).After(deadline) {
			l.rejectionsMetric.Inc(1)
			return fault.Newf(fault.RateLimitExceeded, "rate limiter %s exhausted", l.name)
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			l.rejectionsMetric.Inc(1)
			return fault.Wrap(fault.RateLimitExceeded, "wait for rate limiter "+l.name+" abandoned", ctx.Err())
		}
		timer.Stop()
	}
}

// Execute runs op once a permit is acquired. Permits are consumed, not
// returned; op's outcome does not affect the limiter.
func (l *Limiter) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	return op(ctx)
}

// refill replenishes permits according to the policy. Callers must hold the
// mutex.
func (l *Limiter) refill(now time.Time) {
	switch l.policy {
	case FixedWindow:
		elapsed := now.Sub(l.windowStart)
		if elapsed < l.period {
			return
		}
		l.windowStart = l.windowStart.Add(elapsed / l.period * l.period)
		l.permits = float64(l.limit)
	case TokenBucket:
		elapsed := now.Sub(l.lastRefill)
		l.lastRefill = now
		l.permits += elapsed.Seconds() / l.period.Seconds() * float64(l.limit)
		if l.permits > float64(l.limit) {
			l.permits = float64(l.limit)
		}
	}
}

// nextPermitIn returns how long until one permit becomes available. Callers
// must hold the mutex.
func (l *Limiter) nextPermitIn(now time.Time) time.Duration {
	switch l.policy {
	case FixedWindow:
		return l.windowStart.Add(l.period).Sub(now)
	default:
		missing := 1 - l.permits
		return time.Duration(missing / float64(l.limit) * float64(l.period))
	}
}
