// Package hostdev implements a portable device layer backed by host memory.
//
// It simulates an accelerator by keeping separate copies of buffers and transfer indices, so the
// rest of the library can exercise the full device code path without an actual accelerator.
package hostdev

import (
	"github.com/parvec/parvec/devices"
	"github.com/parvec/parvec/types/xslices"
	"github.com/pkg/errors"
)

// DeviceName to be used in PARVEC_DEVICE to select this device layer.
const DeviceName = "host"

func init() {
	devices.Register(DeviceName, New)
}

// New constructs a host-memory Device. There are no configurations, the string is ignored.
func New(_ string) devices.Device {
	return &Device{}
}

// Device implements devices.Device on host memory.
type Device struct{}

// Compile-time check:
var _ devices.Device = &Device{}

// Buffer for the host device owns a copy of the flat data.
type Buffer struct {
	flat  []float64
	valid bool
}

// Transfer holds device-side copies of the send and receive index buffers.
type Transfer struct {
	sendIndices, recvIndices []int32
	valid                    bool
}

// Name returns the short name of the device layer.
func (d *Device) Name() string { return DeviceName }

// Description is a longer description of the device.
func (d *Device) Description() string {
	return "Host-memory device (simulated accelerator)"
}

// BufferFromFlatData copies flat into a new device buffer.
func (d *Device) BufferFromFlatData(flat []float64) (devices.Buffer, error) {
	return &Buffer{flat: xslices.Copy(flat), valid: true}, nil
}

// BufferToFlatData copies the buffer values back into flat.
func (d *Device) BufferToFlatData(buffer devices.Buffer, flat []float64) error {
	buf, err := d.checkBuffer(buffer)
	if err != nil {
		return err
	}
	if len(flat) != len(buf.flat) {
		return errors.Errorf("flat slice has %d elements, device buffer has %d", len(flat), len(buf.flat))
	}
	copy(flat, buf.flat)
	return nil
}

// BufferFinalize releases the buffer.
func (d *Device) BufferFinalize(buffer devices.Buffer) error {
	buf, err := d.checkBuffer(buffer)
	if err != nil {
		return err
	}
	buf.valid = false
	buf.flat = nil
	return nil
}

func (d *Device) checkBuffer(buffer devices.Buffer) (*Buffer, error) {
	buf, ok := buffer.(*Buffer)
	if !ok {
		return nil, errors.Errorf("buffer of type %T was not created by the %q device", buffer, DeviceName)
	}
	if !buf.valid {
		return nil, errors.Errorf("buffer was already finalized")
	}
	return buf, nil
}

// TransferIndices stores device-side copies of the two index buffers.
func (d *Device) TransferIndices(sendIndices, recvIndices []int32) (devices.TransferHandle, error) {
	return &Transfer{
		sendIndices: xslices.Copy(sendIndices),
		recvIndices: xslices.Copy(recvIndices),
		valid:       true,
	}, nil
}

// TransferFinalize releases the transfer-index buffers.
func (d *Device) TransferFinalize(handle devices.TransferHandle) error {
	tr, ok := handle.(*Transfer)
	if !ok {
		return errors.Errorf("transfer handle of type %T was not created by the %q device", handle, DeviceName)
	}
	if !tr.valid {
		return errors.Errorf("transfer handle was already finalized")
	}
	tr.valid = false
	tr.sendIndices = nil
	tr.recvIndices = nil
	return nil
}

// SendIndices exposes the device-resident send-index buffer. Meant for tests and device kernels.
func (tr *Transfer) SendIndices() []int32 { return tr.sendIndices }

// RecvIndices exposes the device-resident receive-index buffer. Meant for tests and device kernels.
func (tr *Transfer) RecvIndices() []int32 { return tr.recvIndices }
