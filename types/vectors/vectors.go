// Package vectors implements Vector, the distributed-vector collaborator of the scatter engine.
//
// A Vector is a container that keeps in sync two materializations of the same values:
//
//   - `local`: the values stored in host memory, as a flat []float64 covering the locally owned
//     elements of the (possibly distributed) vector.
//   - `onDevice`: an optional copy of the values resident on an accelerator device
//     (see github.com/parvec/parvec/devices).
//
// The container is lazy: values are only transferred to the device when asked for, and the device
// copy is invalidated as soon as the local values are mutated. Element storage and arithmetic
// kernels are out of scope here; the scatter engine only consumes the local size, raw access to
// the local buffer, and the device-residency flag.
package vectors

import (
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/parvec/parvec/devices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Vector holds the locally owned elements of a numerical vector, with an optional device-resident
// mirror of the same values.
type Vector struct {
	// mu protects the device fields; the local flat data is single-owner by convention,
	// like the rest of the scatter call sequence.
	mu sync.Mutex

	local []float64

	device      devices.Device
	onDevice    devices.Buffer
	deviceValid bool
}

// New returns a zero-valued Vector with n locally owned elements.
func New(n int) *Vector {
	if n < 0 {
		exceptions.Panicf("vectors.New: negative local size %d", n)
	}
	return &Vector{local: make([]float64, n)}
}

// FromFlatData returns a Vector that takes ownership of flat as its local storage.
func FromFlatData(flat []float64) *Vector {
	return &Vector{local: flat}
}

// LocalSize returns the number of locally owned elements.
func (v *Vector) LocalSize() int {
	v.assertValid()
	return len(v.local)
}

// ConstData returns the local element buffer for reading.
//
// The caller must not write through the returned slice; use MutableData for that, so the device
// mirror is properly invalidated.
func (v *Vector) ConstData() []float64 {
	v.assertValid()
	return v.local
}

// MutableData returns the local element buffer for writing and invalidates any device mirror.
func (v *Vector) MutableData() []float64 {
	v.assertValid()
	v.InvalidateDevice()
	return v.local
}

// HasDeviceData reports whether a valid device-resident mirror of the local buffer exists.
func (v *Vector) HasDeviceData() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deviceValid
}

// Device returns the device layer holding this vector's mirror, or nil if the vector was never
// materialized on a device.
func (v *Vector) Device() devices.Device {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.device
}

// DeviceBuffer returns the opaque device buffer, or nil if there is no valid mirror.
func (v *Vector) DeviceBuffer() devices.Buffer {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.deviceValid {
		return nil
	}
	return v.onDevice
}

// MaterializeOnDevice creates (or refreshes) the device mirror of the local buffer on dev.
// It is a no-op if a valid mirror already exists on dev.
func (v *Vector) MaterializeOnDevice(dev devices.Device) error {
	v.assertValid()
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.deviceValid && v.device == dev {
		return nil
	}
	v.releaseDeviceLocked()
	buffer, err := dev.BufferFromFlatData(v.local)
	if err != nil {
		return errors.WithMessagef(err, "materializing vector of size %d on device %q", len(v.local), dev.Name())
	}
	v.device = dev
	v.onDevice = buffer
	v.deviceValid = true
	return nil
}

// SyncFromDevice copies the device mirror values back into the local buffer.
func (v *Vector) SyncFromDevice() error {
	v.assertValid()
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.deviceValid {
		return errors.Errorf("vector has no valid device mirror to sync from")
	}
	return v.device.BufferToFlatData(v.onDevice, v.local)
}

// InvalidateDevice marks the device mirror as stale. The device buffer is released.
func (v *Vector) InvalidateDevice() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.releaseDeviceLocked()
}

// Finalize releases the local storage and any device mirror. The vector becomes invalid.
func (v *Vector) Finalize() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.releaseDeviceLocked()
	v.device = nil
	v.local = nil
}

func (v *Vector) releaseDeviceLocked() {
	if v.onDevice != nil {
		if err := v.device.BufferFinalize(v.onDevice); err != nil {
			klog.Warningf("failed to release device buffer on device %q: %v", v.device.Name(), err)
		}
	}
	v.onDevice = nil
	v.deviceValid = false
}

func (v *Vector) assertValid() {
	if v == nil {
		exceptions.Panicf("Vector is nil")
	}
	if v.local == nil {
		exceptions.Panicf("Vector was finalized or never initialized")
	}
}
