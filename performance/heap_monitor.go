package performance

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// HeapMonitor treats the Go heap as the device. Every Synchronize samples
// runtime.MemStats; Start adds periodic sampling in the background so that
// short-lived peaks between synchronisation points are not missed.
type HeapMonitor struct {
	mu        sync.Mutex
	peak      uint64
	samples   uint64
	interval  time.Duration
	readStats func(*runtime.MemStats)
}

// HeapOption configures a HeapMonitor.
type HeapOption func(*HeapMonitor)

// WithSampleInterval sets the background sampling period used by Start.
func WithSampleInterval(d time.Duration) HeapOption {
	return func(h *HeapMonitor) { h.interval = d }
}

// withStatsReader replaces runtime.ReadMemStats in tests.
func withStatsReader(fn func(*runtime.MemStats)) HeapOption {
	return func(h *HeapMonitor) { h.readStats = fn }
}

// NewHeapMonitor creates a monitor with a 10ms sample interval.
func NewHeapMonitor(opts ...HeapOption) *HeapMonitor {
	h := &HeapMonitor{
		interval:  10 * time.Millisecond,
		readStats: runtime.ReadMemStats,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Available implements DeviceMonitor.
func (h *HeapMonitor) Available() bool { return true }

// Synchronize implements DeviceMonitor by taking a sample.
func (h *HeapMonitor) Synchronize() { h.sample() }

// ResetPeak implements DeviceMonitor.
func (h *HeapMonitor) ResetPeak() {
	var ms runtime.MemStats
	h.readStats(&ms)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peak = ms.HeapAlloc
	h.samples = 0
}

// PeakMemoryBytes implements DeviceMonitor.
func (h *HeapMonitor) PeakMemoryBytes() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peak
}

// Start samples the heap every interval until ctx is done.
func (h *HeapMonitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.sample()
			}
		}
	}()
}

// Stats returns a human-readable summary for logs.
func (h *HeapMonitor) Stats() map[string]interface{} {
	var ms runtime.MemStats
	h.readStats(&ms)
	h.mu.Lock()
	defer h.mu.Unlock()
	return map[string]interface{}{
		"samples":    h.samples,
		"peak":       humanize.IBytes(h.peak),
		"heap_alloc": humanize.IBytes(ms.HeapAlloc),
		"heap_sys":   humanize.IBytes(ms.HeapSys),
		"num_gc":     ms.NumGC,
	}
}

func (h *HeapMonitor) sample() {
	var ms runtime.MemStats
	h.readStats(&ms)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples++
	if ms.HeapAlloc > h.peak {
		h.peak = ms.HeapAlloc
	}
}
