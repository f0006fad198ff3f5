package performance

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type scriptedHeap struct {
	values []uint64
	i      int
}

func (s *scriptedHeap) read(ms *runtime.MemStats) {
	ms.HeapAlloc = s.values[min(s.i, len(s.values)-1)]
	s.i++
}

func TestNoDevice(t *testing.T) {
	var d DeviceMonitor = NoDevice{}
	assert.False(t, d.Available())
	d.Synchronize()
	d.ResetPeak()
	assert.Zero(t, d.PeakMemoryBytes())
	assert.Zero(t, PeakMB(d))
}

func TestHeapMonitorTracksPeak(t *testing.T) {
	heap := &scriptedHeap{values: []uint64{100, 300, 200, 50}}
	h := NewHeapMonitor(withStatsReader(heap.read))

	h.ResetPeak() // baseline 100
	assert.Equal(t, uint64(100), h.PeakMemoryBytes())
	h.Synchronize() // 300
	h.Synchronize() // 200
	assert.Equal(t, uint64(300), h.PeakMemoryBytes())

	h.ResetPeak() // 50
	assert.Equal(t, uint64(50), h.PeakMemoryBytes())
}

func TestHeapMonitorPeakMB(t *testing.T) {
	heap := &scriptedHeap{values: []uint64{2 * BytesPerMB}}
	h := NewHeapMonitor(withStatsReader(heap.read))
	h.ResetPeak()
	assert.True(t, h.Available())
	assert.Equal(t, 2.0, PeakMB(h))
}

func TestHeapMonitorStartSamples(t *testing.T) {
	h := NewHeapMonitor(WithSampleInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)

	assert.Eventually(t, func() bool {
		return h.Stats()["samples"].(uint64) > 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.NotZero(t, h.PeakMemoryBytes())
}
