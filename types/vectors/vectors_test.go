package vectors

import (
	"testing"

	"github.com/parvec/parvec/devices/hostdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndFromFlatData(t *testing.T) {
	v := New(3)
	assert.Equal(t, 3, v.LocalSize())
	assert.Equal(t, []float64{0, 0, 0}, v.ConstData())

	flat := []float64{1, 2}
	w := FromFlatData(flat)
	assert.Equal(t, 2, w.LocalSize())
	flat[0] = 9 // FromFlatData takes ownership, it does not copy.
	assert.Equal(t, []float64{9, 2}, w.ConstData())

	assert.Panics(t, func() { New(-1) })
}

func TestDeviceMirrorLifecycle(t *testing.T) {
	dev := hostdev.New("")
	v := FromFlatData([]float64{1, 2, 3})
	assert.False(t, v.HasDeviceData())
	assert.Nil(t, v.Device())
	assert.Nil(t, v.DeviceBuffer())

	require.NoError(t, v.MaterializeOnDevice(dev))
	assert.True(t, v.HasDeviceData())
	assert.Same(t, dev, v.Device())
	assert.NotNil(t, v.DeviceBuffer())

	// Materializing again on the same device reuses the mirror.
	buffer := v.DeviceBuffer()
	require.NoError(t, v.MaterializeOnDevice(dev))
	assert.Same(t, buffer, v.DeviceBuffer())
}

func TestMutableDataInvalidatesMirror(t *testing.T) {
	v := FromFlatData([]float64{1, 2, 3})
	require.NoError(t, v.MaterializeOnDevice(hostdev.New("")))

	data := v.MutableData()
	data[0] = 42
	assert.False(t, v.HasDeviceData())
	assert.Nil(t, v.DeviceBuffer())

	// ConstData does not invalidate.
	require.NoError(t, v.MaterializeOnDevice(v.Device()))
	_ = v.ConstData()
	assert.True(t, v.HasDeviceData())
}

func TestSyncFromDevice(t *testing.T) {
	v := FromFlatData([]float64{1, 2, 3})
	require.NoError(t, v.MaterializeOnDevice(hostdev.New("")))

	// Clobber the local values without going through MutableData, then restore from the mirror.
	local := v.ConstData()
	local[0], local[1], local[2] = 0, 0, 0
	require.NoError(t, v.SyncFromDevice())
	assert.Equal(t, []float64{1, 2, 3}, v.ConstData())

	v.InvalidateDevice()
	require.Error(t, v.SyncFromDevice())
}

func TestFinalize(t *testing.T) {
	v := FromFlatData([]float64{1})
	require.NoError(t, v.MaterializeOnDevice(hostdev.New("")))
	v.Finalize()
	assert.Panics(t, func() { v.LocalSize() })
	assert.Panics(t, func() { v.ConstData() })
}
