// Package performance abstracts the accelerator state sampled during
// benchmark evaluation: synchronisation points and peak memory counters.
package performance

// BytesPerMB converts byte counters to the MB figures reported by benchmarks.
const BytesPerMB = 1024 * 1024

// DeviceMonitor is the capability the benchmark evaluator uses to time and
// measure a compute device. Implementations are only meaningful while a single
// evaluation pass owns the device.
type DeviceMonitor interface {
	// Available reports whether a device is present. When false, the other
	// methods are not called.
	Available() bool
	// Synchronize blocks until queued device work has finished.
	Synchronize()
	// ResetPeak restarts peak tracking from the current allocation.
	ResetPeak()
	// PeakMemoryBytes is the highest allocation observed since ResetPeak.
	PeakMemoryBytes() uint64
}

// NoDevice is a DeviceMonitor for hosts without an accelerator.
type NoDevice struct{}

// Available implements DeviceMonitor.
func (NoDevice) Available() bool { return false }

// Synchronize implements DeviceMonitor.
func (NoDevice) Synchronize() {}

// ResetPeak implements DeviceMonitor.
func (NoDevice) ResetPeak() {}

// PeakMemoryBytes implements DeviceMonitor.
func (NoDevice) PeakMemoryBytes() uint64 { return 0 }

// PeakMB returns m's peak in MB.
func PeakMB(m DeviceMonitor) float64 {
	return float64(m.PeakMemoryBytes()) / BytesPerMB
}
