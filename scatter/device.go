package scatter

import (
	"github.com/gomlx/exceptions"
	"github.com/parvec/parvec/devices"
	"github.com/parvec/parvec/types/vectors"
	"github.com/parvec/parvec/types/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// deviceMirror is the lazily-created device attachment of a distributed context: deduplicated,
// block-expanded transfer-index buffers and the opaque handle to their device-resident copies.
type deviceMirror struct {
	dev    devices.Device
	handle devices.TransferHandle

	// Host-side staging of the expanded index sets; transient, released by FinalizeForDevice.
	// The handle survives until the context is destroyed.
	sendIndices, recvIndices []int32
}

// InitializeForDevice readies the context for device-resident execution: on first use it builds
// the index buffers needed to move exactly the elements this rank exchanges, hands them to x's
// device layer, and caches the resulting transfer handle on the context.
//
// It is a no-op for local (non-distributed) contexts, for vectors without device-resident data,
// and on every call after the first (the cached handle is reused). A later Remap discards the
// cached handle: the caller must initialize again.
//
// The send set is the union of the "to" side's message-block indices and its same-rank slots;
// the recv set likewise from the "from" side. Reverse direction swaps the two sides. Each set is
// deduplicated and expanded into blockSize contiguous component indices.
func (ctx *Context) InitializeForDevice(x *vectors.Vector, dir Direction) error {
	if ctx == nil || ctx.to == nil {
		exceptions.Panicf("scatter context is nil or was destroyed")
	}
	if ctx.IsSequential() {
		return nil
	}
	if ctx.mirror != nil {
		return nil
	}
	if x == nil || !x.HasDeviceData() {
		return nil
	}
	send, recv := sides(ctx, dir)
	if len(send.peers) == 0 && len(recv.peers) == 0 {
		return nil
	}

	sendIndices := expandUnique(append(xslices.Copy(send.indices), send.slots...), send.bs)
	recvIndices := expandUnique(append(xslices.Copy(recv.indices), recv.slots...), recv.bs)

	dev := x.Device()
	handle, err := dev.TransferIndices(sendIndices, recvIndices)
	if err != nil {
		return errors.WithMessagef(err, "creating device transfer indices on device %q", dev.Name())
	}
	ctx.mirror = &deviceMirror{
		dev:         dev,
		handle:      handle,
		sendIndices: sendIndices,
		recvIndices: recvIndices,
	}
	klog.V(1).Infof("scatter: context %s prepared for device %q: %d send / %d recv component indices",
		ctx.id, dev.Name(), len(sendIndices), len(recvIndices))
	return nil
}

// FinalizeForDevice releases the transient host-side index staging of the device mirror. The
// cached transfer handle is kept; it is released by Destroy.
func (ctx *Context) FinalizeForDevice() {
	if ctx == nil || ctx.mirror == nil {
		return
	}
	ctx.mirror.sendIndices = nil
	ctx.mirror.recvIndices = nil
}

// DeviceHandle returns the cached device transfer handle, or nil if the context was not
// initialized for device execution.
func (ctx *Context) DeviceHandle() devices.TransferHandle {
	if ctx == nil || ctx.mirror == nil {
		return nil
	}
	return ctx.mirror.handle
}

// releaseMirror frees the device transfer handle, if any, and unsets the mirror.
func (ctx *Context) releaseMirror() {
	if ctx.mirror == nil {
		return
	}
	if err := ctx.mirror.dev.TransferFinalize(ctx.mirror.handle); err != nil {
		klog.Warningf("scatter: context %s failed to release device transfer handle: %v", ctx.id, err)
	}
	ctx.mirror = nil
}

// expandUnique deduplicates the index set and expands each surviving index into bs contiguous
// component indices.
func expandUnique(indices []int, bs int) []int32 {
	unique := xslices.SortedAndUnique(indices)
	expanded := make([]int32, 0, len(unique)*bs)
	for _, idx := range unique {
		for k := 0; k < bs; k++ {
			expanded = append(expanded, int32(idx+k))
		}
	}
	return expanded
}
