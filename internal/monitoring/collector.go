package monitoring

import (
	"sync"
	"time"
)

// MetricsSnapshot holds a point-in-time view of transfer volume.
type MetricsSnapshot struct {
	ElapsedTime     time.Duration `json:"elapsed_time"`
	NetworkBytes    uint64        `json:"network_bytes"`
	ProcessingBytes uint64        `json:"processing_bytes"`
	Failures        uint64        `json:"failures"`
	CollectedAt     time.Time     `json:"collected_at"`
}

// Collector accumulates network and processing byte counts across the
// whole process, with per-worker subtotals. All mutations go through a
// single mutex; counters only grow.
type Collector struct {
	mu              sync.Mutex
	networkBytes    uint64
	processingBytes uint64
	failures        uint64
	perWorker       map[string]uint64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{perWorker: make(map[string]uint64)}
}

// RecordNetworkBytes adds n bytes to the network total, attributed to
// workerID when non-empty.
func (c *Collector) RecordNetworkBytes(n uint64, workerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.networkBytes += n
	if workerID != "" {
		c.perWorker[workerID] += n
	}
}

// RecordProcessingBytes adds n bytes to the processing total.
func (c *Collector) RecordProcessingBytes(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processingBytes += n
}

// RecordFailure increments the failure counter.
func (c *Collector) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
}

// NetworkBytes returns the cumulative network byte count.
func (c *Collector) NetworkBytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.networkBytes
}

// ProcessingBytes returns the cumulative processing byte count.
func (c *Collector) ProcessingBytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processingBytes
}

// WorkerBytes returns the network bytes attributed to a single worker.
func (c *Collector) WorkerBytes(workerID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perWorker[workerID]
}

// Workers returns a copy of the per-worker subtotals.
func (c *Collector) Workers() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.perWorker))
	for k, v := range c.perWorker {
		out[k] = v
	}
	return out
}

// Snapshot returns a consistent point-in-time view with the given
// elapsed duration stamped in.
func (c *Collector) Snapshot(elapsed time.Duration) MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return MetricsSnapshot{
		ElapsedTime:     elapsed,
		NetworkBytes:    c.networkBytes,
		ProcessingBytes: c.processingBytes,
		Failures:        c.failures,
		CollectedAt:     time.Now().UTC(),
	}
}
