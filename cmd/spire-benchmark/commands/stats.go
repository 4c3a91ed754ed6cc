package commands

import (
	"fmt"
	"sync"
	"time"

	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

// numBuckets and bucketWidth size the round-trip latency histogram:
// 500 one-millisecond buckets span the 0-500ms range Process_Msg in
// original_source/benchmark/benchmark.cpp tabulates; any latency
// beyond that falls into the overflow bucket.
const (
	numBuckets  = 500
	bucketWidth = time.Millisecond
)

// benchmarkRunner tracks in-flight pings and the latency distribution
// of their replies, and implements client.LocalLink so a verified
// BENCHMARK reply is recorded as soon as Client.Receive delivers it.
// Grounded on Gen_Msg/Process_Msg/Print_Statistics in
// original_source/benchmark/benchmark.cpp.
type benchmarkRunner struct {
	clientID uint32
	target   uint32

	mu       sync.Mutex
	pending  map[uint32]time.Time
	buckets  [numBuckets + 1]uint64
	sum      time.Duration
	min, max time.Duration
	count    uint32

	done chan struct{}
	once sync.Once
}

func newBenchmarkRunner(clientID uint32, target uint32) *benchmarkRunner {
	return &benchmarkRunner{
		clientID: clientID,
		target:   target,
		pending:  make(map[uint32]time.Time),
		done:     make(chan struct{}),
	}
}

// recordSent remembers when a ping with the given sequence number was
// sent, so its matching reply's round-trip latency can be measured.
func (r *benchmarkRunner) recordSent(seqNum uint32, at time.Time) {
	r.mu.Lock()
	r.pending[seqNum] = at
	r.mu.Unlock()
}

// Send implements client.LocalLink: it decodes one routed reply,
// matches it against a pending ping by sequence number, and folds its
// round-trip latency into the histogram.
func (r *benchmarkRunner) Send(payload []byte) error {
	inner, err := wire.Decode(payload)
	if err != nil {
		return fmt.Errorf("benchmark: decode inner envelope: %w", err)
	}
	if inner.Type != wire.Benchmark {
		return nil
	}
	bm, err := wire.DecodeBenchmarkMsg(inner.Payload)
	if err != nil {
		return fmt.Errorf("benchmark: decode benchmark reply: %w", err)
	}

	now := time.Now()
	r.mu.Lock()
	sentAt, ok := r.pending[bm.Seq.SeqNum]
	if ok {
		delete(r.pending, bm.Seq.SeqNum)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	r.record(now.Sub(sentAt))
	return nil
}

func (r *benchmarkRunner) record(rtt time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := int(rtt / bucketWidth)
	if bucket > numBuckets {
		bucket = numBuckets
	}
	r.buckets[bucket]++
	r.sum += rtt
	if r.count == 0 || rtt < r.min {
		r.min = rtt
	}
	if rtt > r.max {
		r.max = rtt
	}
	r.count++

	if r.count >= r.target {
		r.once.Do(func() { close(r.done) })
	}
}

// printStatistics reports the latency histogram and summary
// statistics gathered so far, mirroring Print_Statistics.
func (r *benchmarkRunner) printStatistics() {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Printf("spire-benchmark: client %d, %d of %d replies received\n", r.clientID, r.count, r.target)
	if r.count == 0 {
		return
	}
	avg := r.sum / time.Duration(r.count)
	fmt.Printf("latency: min=%s avg=%s max=%s\n", r.min, avg, r.max)

	fmt.Println("histogram (ms bucket: count):")
	for i, n := range r.buckets {
		if n == 0 {
			continue
		}
		if i == numBuckets {
			fmt.Printf("  >=%dms: %d\n", numBuckets, n)
			continue
		}
		fmt.Printf("  %dms: %d\n", i, n)
	}
}
