package jbpfio

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// covering 1us to 10s with logarithmic spacing -- unchanged from the
// teacher's histogram shape, since the same spread fits send_msg/unpack_msg
// latencies as well as it fit device I/O latencies.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks operational statistics for one io_ctx: message traffic
// through channels, mempool pressure, ioqueue ring occupancy, and
// operation latency.
// Adapted from the teacher's per-device I/O Metrics struct.
type Metrics struct {
	SendOps   atomic.Uint64 // Total send_msg calls
	UnpackOps atomic.Uint64 // Total unpack_msg calls

	SendBytes   atomic.Uint64
	UnpackBytes atomic.Uint64

	SendErrors   atomic.Uint64
	UnpackErrors atomic.Uint64

	// Mempool pressure.
	PoolAllocs      atomic.Uint64
	PoolAllocFailed atomic.Uint64
	PoolReleases    atomic.Uint64
	PoolReclaims    atomic.Uint64

	// ioqueue ring occupancy samples.
	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordSend records one send_msg call.
func (m *Metrics) RecordSend(bytes uint64, latencyNs uint64, success bool) {
	m.SendOps.Add(1)
	if success {
		m.SendBytes.Add(bytes)
	} else {
		m.SendErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordUnpack records one unpack_msg call.
func (m *Metrics) RecordUnpack(bytes uint64, latencyNs uint64, success bool) {
	m.UnpackOps.Add(1)
	if success {
		m.UnpackBytes.Add(bytes)
	} else {
		m.UnpackErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordPoolAlloc records one mempool.Pool.Alloc outcome.
func (m *Metrics) RecordPoolAlloc(success bool) {
	m.PoolAllocs.Add(1)
	if !success {
		m.PoolAllocFailed.Add(1)
	}
}

// RecordPoolRelease records one mempool.Pool.Release call.
func (m *Metrics) RecordPoolRelease() { m.PoolReleases.Add(1) }

// RecordPoolReclaim adds n reclaimed pool entries to PoolReclaims.
func (m *Metrics) RecordPoolReclaim(n int) { m.PoolReclaims.Add(uint64(n)) }

// RecordQueueDepth records a sampled ring occupancy.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)
	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the io_ctx as stopped.
func (m *Metrics) Stop() { m.StopTime.Store(time.Now().UnixNano()) }

// MetricsSnapshot is a point-in-time snapshot of Metrics with derived
// rates and latency percentiles computed.
type MetricsSnapshot struct {
	SendOps      uint64
	UnpackOps    uint64
	SendBytes    uint64
	UnpackBytes  uint64
	SendErrors   uint64
	UnpackErrors uint64

	PoolAllocs      uint64
	PoolAllocFailed uint64
	PoolReleases    uint64
	PoolReclaims    uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	SendIOPS    float64
	UnpackIOPS  float64
	TotalOps    uint64
	TotalBytes  uint64
	ErrorRate   float64
}

// Snapshot creates a point-in-time snapshot of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		SendOps:         m.SendOps.Load(),
		UnpackOps:       m.UnpackOps.Load(),
		SendBytes:       m.SendBytes.Load(),
		UnpackBytes:     m.UnpackBytes.Load(),
		SendErrors:      m.SendErrors.Load(),
		UnpackErrors:    m.UnpackErrors.Load(),
		PoolAllocs:      m.PoolAllocs.Load(),
		PoolAllocFailed: m.PoolAllocFailed.Load(),
		PoolReleases:    m.PoolReleases.Load(),
		PoolReclaims:    m.PoolReclaims.Load(),
		MaxQueueDepth:   m.MaxQueueDepth.Load(),
	}

	snap.TotalOps = snap.SendOps + snap.UnpackOps
	snap.TotalBytes = snap.SendBytes + snap.UnpackBytes

	if qc := m.QueueDepthCount.Load(); qc > 0 {
		snap.AvgQueueDepth = float64(m.QueueDepthTotal.Load()) / float64(qc)
	}

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.SendIOPS = float64(snap.SendOps) / uptimeSeconds
		snap.UnpackIOPS = float64(snap.UnpackOps) / uptimeSeconds
	}

	totalErrors := snap.SendErrors + snap.UnpackErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) by linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}
	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes every counter and restarts StartTime; useful in tests.
func (m *Metrics) Reset() {
	m.SendOps.Store(0)
	m.UnpackOps.Store(0)
	m.SendBytes.Store(0)
	m.UnpackBytes.Store(0)
	m.SendErrors.Store(0)
	m.UnpackErrors.Store(0)
	m.PoolAllocs.Store(0)
	m.PoolAllocFailed.Store(0)
	m.PoolReleases.Store(0)
	m.PoolReclaims.Store(0)
	m.QueueDepthTotal.Store(0)
	m.QueueDepthCount.Store(0)
	m.MaxQueueDepth.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection by callers that don't want
// to poll Metrics directly (e.g. a Prometheus exporter adapter).
type Observer interface {
	ObserveSend(bytes uint64, latencyNs uint64, success bool)
	ObserveUnpack(bytes uint64, latencyNs uint64, success bool)
	ObserveQueueDepth(depth uint32)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSend(uint64, uint64, bool)   {}
func (NoOpObserver) ObserveUnpack(uint64, uint64, bool) {}
func (NoOpObserver) ObserveQueueDepth(uint32)           {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver { return &MetricsObserver{metrics: m} }

func (o *MetricsObserver) ObserveSend(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordSend(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveUnpack(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordUnpack(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveQueueDepth(depth uint32) {
	o.metrics.RecordQueueDepth(depth)
}

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = (*NoOpObserver)(nil)
)
