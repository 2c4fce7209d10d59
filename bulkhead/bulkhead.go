// Package bulkhead implements concurrency admission control. A bulkhead
// bounds the number of concurrent calls to a protected resource and queues
// a bounded number of waiters; everything beyond that is rejected so a slow
// dependency cannot absorb every caller in the process.
package bulkhead

import (
	"context"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/amalgam8/vigil/pkg/fault"
	"github.com/amalgam8/vigil/utils/logging"
)

const module = "BULKHEAD"

// Default configuration values
const (
	DefaultMaxConcurrentCalls = 10
	DefaultQueueSize          = 10
)

const (
	rejectionsMetricName      = "bulkhead.rejections.count"
	queueRejectionsMetricName = "bulkhead.queue.rejections.count"
)

// Config encapsulates the configuration of a Bulkhead.
type Config struct {

	// Name identifies the bulkhead in logs.
	Name string

	// MaxConcurrentCalls bounds the number of concurrently admitted calls.
	MaxConcurrentCalls int

	// QueueSize bounds the number of callers waiting for a slot. A caller
	// arriving with the queue full is rejected immediately.
	QueueSize int

	// MaxWaitTime bounds how long a queued caller waits for a slot. Zero
	// disables queueing entirely; calls either acquire immediately or are
	// rejected.
	MaxWaitTime time.Duration
}

// Bulkhead is a counting semaphore with a bounded FIFO wait queue.
type Bulkhead struct {
	name        string
	maxWaitTime time.Duration
	queueSize   int

	// Buffered channel holding the free slots. Blocked receivers are woken
	// in arrival order, which makes slot hand-off FIFO.
	slots chan struct{}

	mutex   sync.Mutex
	active  int
	waiting int

	logger *log.Entry

	rejectionsMetric      metrics.Counter
	queueRejectionsMetric metrics.Counter
}

// New creates a Bulkhead with all slots free.
func New(conf Config) (*Bulkhead, error) {
	if conf.MaxConcurrentCalls < 0 || conf.QueueSize < 0 {
		return nil, fault.New(fault.Validation, "bulkhead sizes must be non-negative")
	}
	if conf.MaxConcurrentCalls == 0 {
		conf.MaxConcurrentCalls = DefaultMaxConcurrentCalls
	}
	if conf.Name == "" {
		conf.Name = "default"
	}

	slots := make(chan struct{}, conf.MaxConcurrentCalls)
	for i := 0; i < conf.MaxConcurrentCalls; i++ {
		slots <- struct{}{}
	}

	counterFactory := func() metrics.Counter { return metrics.NewCounter() }
	return &Bulkhead{
		name:                  conf.Name,
		maxWaitTime:           conf.MaxWaitTime,
		queueSize:             conf.QueueSize,
		slots:                 slots,
		logger:                logging.GetLogger(module),
		rejectionsMetric:      metrics.GetOrRegister(rejectionsMetricName, counterFactory).(metrics.Counter),
		queueRejectionsMetric: metrics.GetOrRegister(queueRejectionsMetricName, counterFactory).(metrics.Counter),
	}, nil
}

// Name returns the bulkhead's identifier.
func (b *Bulkhead) Name() string {
	return b.name
}

// Active returns the number of currently admitted calls.
func (b *Bulkhead) Active() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.active
}

// Waiting returns the number of queued callers.
func (b *Bulkhead) Waiting() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.waiting
}

// Acquire claims a slot, waiting up to the configured wait time if none is
// free. It fails with a BulkheadRejected fault when the queue is full on
// arrival, when the wait times out, or when ctx is cancelled while waiting.
// Every successful Acquire must be paired with a Release.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	b.mutex.Lock()

	// New arrivals do not barge past queued callers.
	if b.waiting == 0 {
		select {
		case <-b.slots:
			b.active++
			b.mutex.Unlock()
			return nil
		default:
		}
	}

	if b.maxWaitTime <= 0 || b.waiting >= b.queueSize {
		b.mutex.Unlock()
		b.rejectionsMetric.Inc(1)
		return fault.Newf(fault.BulkheadRejected, "bulkhead %s is full", b.name)
	}

	b.waiting++
	b.mutex.Unlock()

	timer := time.NewTimer(b.maxWaitTime)
	defer timer.Stop()

	select {
	case <-b.slots:
		b.mutex.Lock()
		b.waiting--
		b.active++
		b.mutex.Unlock()
		return nil
	case <-timer.C:
		b.leaveQueue()
		return fault.Newf(fault.BulkheadRejected, "bulkhead %s wait exceeded %v", b.name, b.maxWaitTime)
	case <-ctx.Done():
		b.leaveQueue()
		return fault.Wrap(fault.BulkheadRejected, "wait for bulkhead "+b.name+" abandoned", ctx.Err())
	}
}

// Release frees one slot, handing it to the longest-waiting queued caller
// if any.
func (b *Bulkhead) Release() {
	b.mutex.Lock()
	if b.active == 0 {
		b.mutex.Unlock()
		b.logger.Warnf("Release of bulkhead %s without a matching acquire", b.name)
		return
	}
	b.active--
	b.mutex.Unlock()

	b.slots <- struct{}{}
}

// Execute runs op inside the bulkhead, releasing its slot when op returns.
func (b *Bulkhead) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return op(ctx)
}

func (b *Bulkhead) leaveQueue() {
	b.mutex.Lock()
	b.waiting--
	b.mutex.Unlock()
	b.queueRejectionsMetric.Inc(1)
}
