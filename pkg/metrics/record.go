// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// bucketWidth and bucketCount give a ring covering just over 15 minutes of
// 5-second buckets.
const (
	bucketWidth = 5 * time.Second
	bucketCount = 181

	histogramBuckets = 200
)

type bucket struct {
	epoch    int64 // unix seconds, floored to bucketWidth; 0 means unused
	requests uint64
	errors   uint64
}

// record is the per-(kind, namespace, name) metrics accumulator described in
// one resource: monotonic counters, a time-bucketed ring for windowed rates, a
// logarithmic latency histogram, and lifetime min/mean/max.
type record struct {
	requestsTotal atomic.Uint64
	errorsTotal   atomic.Uint64

	mu         sync.Mutex
	buckets    [bucketCount]bucket
	histogram  [histogramBuckets]uint64
	minMs      float64
	maxMs      float64
	sumMs      float64
	sampleSeen bool
}

func newRecord() *record {
	return &record{}
}

// observe records one completed request. durationMs is the request's
// latency in milliseconds, from arrival until the response was written.
func (r *record) observe(now time.Time, durationMs float64, isError bool) {
	r.requestsTotal.Add(1)
	if isError {
		r.errorsTotal.Add(1)
	}

	epoch := flooredEpoch(now)
	idx := ringIndex(epoch)
	hIdx := histogramIndex(durationMs)

	r.mu.Lock()
	defer r.mu.Unlock()

	b := &r.buckets[idx]
	if b.epoch != epoch {
		*b = bucket{epoch: epoch}
	}
	b.requests++
	if isError {
		b.errors++
	}

	r.histogram[hIdx]++

	if !r.sampleSeen {
		r.minMs, r.maxMs, r.sampleSeen = durationMs, durationMs, true
	} else {
		if durationMs < r.minMs {
			r.minMs = durationMs
		}
		if durationMs > r.maxMs {
			r.maxMs = durationMs
		}
	}
	r.sumMs += durationMs
}

func flooredEpoch(t time.Time) int64 {
	sec := t.Unix()
	return sec - sec%int64(bucketWidth/time.Second)
}

func ringIndex(epoch int64) int {
	idx := (epoch / int64(bucketWidth/time.Second)) % bucketCount
	if idx < 0 {
		idx += bucketCount
	}
	return int(idx)
}

// histogramIndex buckets a latency as floor(10*log2(max(ms,1))),
// capped at histogramBuckets-1.
func histogramIndex(ms float64) int {
	if ms < 1 {
		ms = 1
	}
	idx := int(math.Floor(10 * math.Log2(ms)))
	if idx < 0 {
		idx = 0
	}
	if idx >= histogramBuckets {
		idx = histogramBuckets - 1
	}
	return idx
}

// histogramUpperBoundMs is the inverse of histogramIndex: the latency (ms)
// at the upper edge of bucket idx.
func histogramUpperBoundMs(idx int) float64 {
	return math.Pow(2, float64(idx+1)/10)
}

// windowed sums the ring's requests/errors within the last `window`,
// inclusive of the current bucket.
func (r *record) windowed(now time.Time, window time.Duration) (requests, errors uint64) {
	lowerBound := now.Add(-window).Unix()
	nowEpoch := now.Unix()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.buckets {
		if b.epoch == 0 {
			continue
		}
		if b.epoch >= lowerBound && b.epoch <= nowEpoch {
			requests += b.requests
			errors += b.errors
		}
	}
	return requests, errors
}

// percentile returns the estimated latency (ms) at the given quantile
// (0, 1], derived from the histogram by cumulative counting.
func (r *record) percentile(q float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total uint64
	for _, c := range r.histogram {
		total += c
	}
	if total == 0 {
		return 0
	}

	target := uint64(math.Ceil(q * float64(total)))
	if target == 0 {
		target = 1
	}

	var cumulative uint64
	for idx, c := range r.histogram {
		cumulative += c
		if cumulative >= target {
			return histogramUpperBoundMs(idx)
		}
	}
	return histogramUpperBoundMs(histogramBuckets - 1)
}

// lifetime returns the min/mean/max request latency (ms) observed since
// process start.
func (r *record) lifetime() (min, mean, max float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.sampleSeen {
		return 0, 0, 0
	}
	count := r.requestsTotal.Load()
	if count == 0 {
		return r.minMs, 0, r.maxMs
	}
	return r.minMs, r.sumMs / float64(count), r.maxMs
}

func (r *record) totals() (requests, errs uint64) {
	return r.requestsTotal.Load(), r.errorsTotal.Load()
}
