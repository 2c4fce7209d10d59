package breaker

import "time"

const windowBuckets = 10

// bucketCounts holds the outcome counts of one bucket of the rolling window.
type bucketCounts struct {
	calls      uint64
	successes  uint64
	failures   uint64
	timeouts   uint64
	rejections uint64
}

// window aggregates call outcomes over a sliding span, bucketed to bound
// memory. Not safe for concurrent use; the owning breaker serializes access.
type window struct {
	span       time.Duration
	bucketSpan time.Duration
	buckets    [windowBuckets]bucketCounts
	starts     [windowBuckets]time.Time
}

func newWindow(span time.Duration) *window {
	return &window{
		span:       span,
		bucketSpan: span / windowBuckets,
	}
}

// current returns the bucket covering now, resetting it first if it still
// holds counts from an earlier rotation.
func (w *window) current(now time.Time) *bucketCounts {
	start := now.Truncate(w.bucketSpan)
	idx := int(start.UnixNano()/int64(w.bucketSpan)) % windowBuckets
	if idx < 0 {
		idx += windowBuckets
	}
	if !w.starts[idx].Equal(start) {
		w.buckets[idx] = bucketCounts{}
		w.starts[idx] = start
	}
	return &w.buckets[idx]
}

// aggregate sums the buckets overlapping the span ending at now.
func (w *window) aggregate(now time.Time) Counts {
	var counts Counts
	cutoff := now.Add(-w.span)
	for i := range w.buckets {
		if w.starts[i].IsZero() || w.starts[i].Add(w.bucketSpan).Before(cutoff) {
			continue
		}
		b := &w.buckets[i]
		counts.Calls += b.calls
		counts.Successes += b.successes
		counts.Failures += b.failures
		counts.Timeouts += b.timeouts
		counts.Rejections += b.rejections
	}
	if counts.Calls > 0 {
		counts.ErrorPercentage = float64(counts.Failures) / float64(counts.Calls) * 100
	}
	return counts
}

func (w *window) reset() {
	w.buckets = [windowBuckets]bucketCounts{}
	w.starts = [windowBuckets]time.Time{}
}
