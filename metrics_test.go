package jbpfio

import (
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.TotalOps != 0 {
		t.Errorf("expected 0 initial ops, got %d", snap.TotalOps)
	}

	m.RecordSend(1024, 1_000_000, true)
	m.RecordUnpack(2048, 2_000_000, true)
	m.RecordSend(512, 500_000, false)

	snap = m.Snapshot()
	if snap.SendOps != 2 {
		t.Errorf("SendOps = %d, want 2", snap.SendOps)
	}
	if snap.UnpackOps != 1 {
		t.Errorf("UnpackOps = %d, want 1", snap.UnpackOps)
	}
	if snap.SendBytes != 1024 {
		t.Errorf("SendBytes = %d, want 1024", snap.SendBytes)
	}
	if snap.UnpackBytes != 2048 {
		t.Errorf("UnpackBytes = %d, want 2048", snap.UnpackBytes)
	}
	if snap.SendErrors != 1 {
		t.Errorf("SendErrors = %d, want 1", snap.SendErrors)
	}

	expectedErrorRate := float64(1) / float64(3) * 100.0
	if snap.ErrorRate < expectedErrorRate-0.1 || snap.ErrorRate > expectedErrorRate+0.1 {
		t.Errorf("ErrorRate = %.2f, want ~%.2f", snap.ErrorRate, expectedErrorRate)
	}
}

func TestMetricsQueueDepth(t *testing.T) {
	m := NewMetrics()
	m.RecordQueueDepth(10)
	m.RecordQueueDepth(20)
	m.RecordQueueDepth(15)

	snap := m.Snapshot()
	if snap.MaxQueueDepth != 20 {
		t.Errorf("MaxQueueDepth = %d, want 20", snap.MaxQueueDepth)
	}
	expectedAvg := float64(10+20+15) / 3.0
	if snap.AvgQueueDepth < expectedAvg-0.1 || snap.AvgQueueDepth > expectedAvg+0.1 {
		t.Errorf("AvgQueueDepth = %.2f, want ~%.2f", snap.AvgQueueDepth, expectedAvg)
	}
}

func TestMetricsPoolCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordPoolAlloc(true)
	m.RecordPoolAlloc(false)
	m.RecordPoolRelease()
	m.RecordPoolReclaim(3)

	snap := m.Snapshot()
	if snap.PoolAllocs != 2 {
		t.Errorf("PoolAllocs = %d, want 2", snap.PoolAllocs)
	}
	if snap.PoolAllocFailed != 1 {
		t.Errorf("PoolAllocFailed = %d, want 1", snap.PoolAllocFailed)
	}
	if snap.PoolReleases != 1 {
		t.Errorf("PoolReleases = %d, want 1", snap.PoolReleases)
	}
	if snap.PoolReclaims != 3 {
		t.Errorf("PoolReclaims = %d, want 3", snap.PoolReclaims)
	}
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()
	m.RecordSend(1024, 1_000_000, true)
	m.RecordUnpack(1024, 2_000_000, true)

	snap := m.Snapshot()
	if snap.AvgLatencyNs != 1_500_000 {
		t.Errorf("AvgLatencyNs = %d, want 1500000", snap.AvgLatencyNs)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()
	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	if snap.UptimeNs < 10*1_000_000 {
		t.Errorf("UptimeNs = %d, want >= 10ms", snap.UptimeNs)
	}

	m.Stop()
	time.Sleep(5 * time.Millisecond)
	snap2 := m.Snapshot()
	if snap2.UptimeNs > snap.UptimeNs+2*1_000_000 {
		t.Errorf("uptime grew too much after Stop: %d -> %d", snap.UptimeNs, snap2.UptimeNs)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordSend(1024, 1_000_000, true)
	m.RecordUnpack(2048, 2_000_000, true)
	m.RecordQueueDepth(10)

	if m.Snapshot().TotalOps == 0 {
		t.Fatal("expected some operations before reset")
	}

	m.Reset()
	snap := m.Snapshot()
	if snap.TotalOps != 0 {
		t.Errorf("TotalOps = %d, want 0 after reset", snap.TotalOps)
	}
	if snap.TotalBytes != 0 {
		t.Errorf("TotalBytes = %d, want 0 after reset", snap.TotalBytes)
	}
	if snap.MaxQueueDepth != 0 {
		t.Errorf("MaxQueueDepth = %d, want 0 after reset", snap.MaxQueueDepth)
	}
}

func TestObserver(t *testing.T) {
	observer := &NoOpObserver{}
	observer.ObserveSend(1024, 1_000_000, true)
	observer.ObserveUnpack(1024, 1_000_000, true)
	observer.ObserveQueueDepth(10)

	m := NewMetrics()
	metricsObserver := NewMetricsObserver(m)
	metricsObserver.ObserveSend(1024, 1_000_000, true)
	metricsObserver.ObserveUnpack(2048, 2_000_000, true)

	snap := m.Snapshot()
	if snap.SendOps != 1 {
		t.Errorf("SendOps = %d, want 1", snap.SendOps)
	}
	if snap.UnpackOps != 1 {
		t.Errorf("UnpackOps = %d, want 1", snap.UnpackOps)
	}
}

func TestMetricsRates(t *testing.T) {
	m := NewMetrics()
	startTime := time.Now()
	m.StartTime.Store(startTime.UnixNano())

	m.RecordSend(1024, 1_000_000, true)
	m.RecordUnpack(2048, 2_000_000, true)

	stopTime := startTime.Add(1 * time.Second)
	m.StopTime.Store(stopTime.UnixNano())

	snap := m.Snapshot()
	if snap.SendIOPS < 0.9 || snap.SendIOPS > 1.1 {
		t.Errorf("SendIOPS = %.2f, want ~1.0", snap.SendIOPS)
	}
	if snap.UnpackIOPS < 0.9 || snap.UnpackIOPS > 1.1 {
		t.Errorf("UnpackIOPS = %.2f, want ~1.0", snap.UnpackIOPS)
	}
}

func TestMetricsHistogram(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 50; i++ {
		m.RecordSend(1024, 500_000, true)
	}
	for i := 0; i < 49; i++ {
		m.RecordUnpack(1024, 5_000_000, true)
	}
	m.RecordUnpack(1024, 50_000_000, true)

	snap := m.Snapshot()
	if snap.TotalOps != 100 {
		t.Errorf("TotalOps = %d, want 100", snap.TotalOps)
	}
	if snap.LatencyP50Ns < 100_000 || snap.LatencyP50Ns > 1_000_000 {
		t.Errorf("P50 = %d ns, want 100us-1ms range", snap.LatencyP50Ns)
	}
	if snap.LatencyP99Ns < 5_000_000 || snap.LatencyP99Ns > 100_000_000 {
		t.Errorf("P99 = %d ns, want 5ms-100ms range", snap.LatencyP99Ns)
	}
}
