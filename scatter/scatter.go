// Package scatter implements the generalized data-redistribution layer of the library: contexts
// that move subsets of elements between two vectors that may be partitioned differently across a
// group of cooperating ranks, or between a distributed vector and a local buffer.
//
// A Context encodes an element-wise correspondence y[toIndex[i]] = x[fromIndex[i]] and is used
// repeatedly through a split-phase protocol: Begin issues non-blocking transfers and performs
// purely local copies, End completes outstanding transfers. Between the two calls the caller may
// overlap unrelated computation with the communication, but must not mutate the source vector.
//
// A scatter is a neighbor-wise collective: every participating rank calls Begin and End in the
// same order for the same logical transfer, but only ranks that actually exchange data with a
// given peer communicate with it.
package scatter

import (
	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/parvec/parvec/comm"
	"github.com/parvec/parvec/types/vectors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CombineMode selects how scattered values combine with the destination.
type CombineMode int

const (
	// Insert overwrites destination elements. Locations not scattered to keep their old values;
	// for duplicate destinations the last write in index-list order wins.
	Insert CombineMode = iota

	// Add accumulates scattered values into the destination elements.
	Add
)

// String implements fmt.Stringer.
func (m CombineMode) String() string {
	switch m {
	case Insert:
		return "insert"
	case Add:
		return "add"
	}
	return "invalid-combine-mode"
}

// Direction selects whether a context runs in its nominal orientation or backwards.
type Direction int

const (
	// Forward scatters from the nominal "from" vector into the nominal "to" vector.
	Forward Direction = iota

	// Reverse swaps the roles of the two index lists and the two vectors. The caller passes
	// x and y swapped relative to the Forward call.
	Reverse
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// SizeUnknown marks a declared context size that cannot be statically checked, e.g. after a
// remap. Size validation in Begin is skipped while either side is unknown.
const SizeUnknown = -1

// Context is one configured element mapping between a "from" side and a "to" side, usable
// repeatedly through Begin/End cycles.
//
// A Context is used by a single logical owner at a time: the in-use flag is a single-writer
// guard against re-entry, not a mutex.
type Context struct {
	id string

	// group is the process group of a distributed context; nil for purely local contexts.
	group *comm.Group
	// tag identifies this context's messages within the group.
	tag int

	// Declared local sizes of the two sides, or SizeUnknown.
	toN, fromN int

	inUse     bool
	merged    bool
	setUpDone bool
	refCount  int

	to, from format

	mirror *deviceMirror
}

func newContext(to, from format) *Context {
	return &Context{
		id:       uuid.NewString()[:8],
		toN:      SizeUnknown,
		fromN:    SizeUnknown,
		refCount: 1,
		to:       to,
		from:     from,
	}
}

// validate panics on programmer error: operating on a nil or destroyed context or nil vectors.
func (ctx *Context) validate(x, y *vectors.Vector) {
	if ctx == nil || ctx.to == nil || ctx.from == nil {
		exceptions.Panicf("scatter context is nil or was destroyed")
	}
	if x == nil || y == nil {
		exceptions.Panicf("scatter called with nil vector")
	}
}

// DeclareSizes sets the declared local sizes of the "to" and "from" sides, enabling the size
// validation in Begin. Pass SizeUnknown to skip validation for a side.
func (ctx *Context) DeclareSizes(toN, fromN int) {
	ctx.toN, ctx.fromN = toN, fromN
}

// DeclaredSizes returns the declared local sizes of the "to" and "from" sides.
// Either may be SizeUnknown.
func (ctx *Context) DeclaredSizes() (toN, fromN int) {
	return ctx.toN, ctx.fromN
}

// GetMerged reports whether the scatter is completed entirely inside Begin, with End doing
// nothing.
func (ctx *Context) GetMerged() bool {
	return ctx.merged
}

// SetMerged selects whether Begin folds the end phase into itself. Merging trades away the
// communication/computation overlap for a simpler call sequence; intended for small transfers.
// It must not be changed between a Begin and its matching End.
func (ctx *Context) SetMerged(flag bool) {
	if ctx.inUse {
		exceptions.Panicf("cannot change merged mode while the scatter context is in use")
	}
	ctx.merged = flag
}

// FormatKinds returns the format kinds of the "to" and "from" sides.
func (ctx *Context) FormatKinds() (to, from Kind) {
	return ctx.to.kind(), ctx.from.kind()
}

// IsSequential reports whether both sides are local (non-distributed) formats.
func (ctx *Context) IsSequential() bool {
	to, from := ctx.FormatKinds()
	return to != KindDistributedGeneral && from != KindDistributedGeneral
}

// RefCount returns the current number of owners of the context.
func (ctx *Context) RefCount() int {
	return ctx.refCount
}

// hasEnd reports whether the format combination has a separate end phase. Local scatters
// complete entirely during Begin.
func (ctx *Context) hasEnd() bool {
	return ctx.to.kind() == KindDistributedGeneral
}

// SetUp prepares the context for its first Begin: it builds the memcpy plans and, for
// distributed contexts, sizes the per-peer message staging. Safe to call more than once.
func (ctx *Context) SetUp() {
	if ctx == nil || ctx.to == nil {
		exceptions.Panicf("scatter context is nil or was destroyed")
	}
	if ctx.setUpDone {
		return
	}
	switch to := ctx.to.(type) {
	case *distGeneral:
		from := ctx.from.(*distGeneral)
		setUpDistributed(to, from)
	case *localGeneral:
		switch from := ctx.from.(type) {
		case *localGeneral:
			to.plan = newPairPlan(to.slots, from.slots, to.bs)
		case *localStride:
			if from.step == 1 {
				to.plan = newIndexPlan([]int{0, len(to.slots)}, to.slots, to.bs)
			}
		}
	case *localStride:
		if from, ok := ctx.from.(*localGeneral); ok && to.step == 1 {
			from.plan = newIndexPlan([]int{0, len(from.slots)}, from.slots, from.bs)
		}
	}
	ctx.setUpDone = true
}

// Begin starts a generalized scatter from x into y. Complete the phase with End.
//
// Preconditions: the context is not in use, and the local sizes of x and y match the declared
// sizes for the given direction, when known. The values of x must not be mutated until End
// returns.
func (ctx *Context) Begin(x, y *vectors.Vector, mode CombineMode, dir Direction) error {
	ctx.validate(x, y)
	if ctx.inUse {
		return errors.WithMessage(ErrWrongState, "scatter context already in use")
	}
	if err := ctx.checkSizes(x, y, dir); err != nil {
		return err
	}
	ctx.SetUp()

	ctx.inUse = true
	var err error
	if ctx.hasEnd() {
		err = beginDistributed(ctx, x, y, mode, dir)
		if err == nil && ctx.merged {
			ctx.inUse = false
			err = endDistributed(ctx, x, y, mode, dir)
		}
	} else {
		err = beginLocal(ctx, x, y, mode, dir)
	}
	return err
}

// End completes a generalized scatter started by the matching Begin: it waits for outstanding
// transfers and applies received values into the destination under the same combine mode and
// direction given to Begin.
func (ctx *Context) End(x, y *vectors.Vector, mode CombineMode, dir Direction) error {
	ctx.validate(x, y)
	ctx.inUse = false
	if !ctx.hasEnd() {
		return nil
	}
	if ctx.merged {
		return nil
	}
	return endDistributed(ctx, x, y, mode, dir)
}

// checkSizes validates the vectors against the declared sizes, skipping the check when either
// declared size is unknown.
func (ctx *Context) checkSizes(x, y *vectors.Vector, dir Direction) error {
	if ctx.toN < 0 || ctx.fromN < 0 {
		return nil
	}
	toLocal, fromLocal := y.LocalSize(), x.LocalSize()
	if dir == Reverse {
		if toLocal != ctx.fromN {
			return errors.WithMessagef(ErrSizeMismatch,
				"destination has local size %d, reverse scatter expects the context's from size %d", toLocal, ctx.fromN)
		}
		if fromLocal != ctx.toN {
			return errors.WithMessagef(ErrSizeMismatch,
				"source has local size %d, reverse scatter expects the context's to size %d", fromLocal, ctx.toN)
		}
		return nil
	}
	if toLocal != ctx.toN {
		return errors.WithMessagef(ErrSizeMismatch,
			"destination has local size %d, scatter context declares to size %d", toLocal, ctx.toN)
	}
	if fromLocal != ctx.fromN {
		return errors.WithMessagef(ErrSizeMismatch,
			"source has local size %d, scatter context declares from size %d", fromLocal, ctx.fromN)
	}
	return nil
}

// Reference registers an additional owner of the context. Each Reference must be matched by one
// extra Destroy.
func (ctx *Context) Reference() {
	if ctx == nil || ctx.to == nil {
		exceptions.Panicf("scatter context is nil or was destroyed")
	}
	ctx.refCount++
}

// Destroy drops one owner of the context. When the last owner is dropped, the backend state, any
// memcpy plan and any device mirror are released and the context becomes invalid.
//
// Destroying the last reference of a context that is mid-transfer is a state error.
func (ctx *Context) Destroy() error {
	if ctx == nil || ctx.to == nil {
		return nil
	}
	if ctx.inUse && ctx.refCount == 1 {
		return errors.WithMessage(ErrWrongState, "cannot destroy a scatter context that is in use")
	}
	ctx.refCount--
	if ctx.refCount > 0 {
		return nil
	}
	ctx.releaseMirror()
	ctx.to = nil
	ctx.from = nil
	return nil
}

// Copy deep-duplicates the context: index lists, starts tables and block sizes are copied and
// share nothing mutable with the source. Memcpy plans are rebuilt by the copy's own SetUp, and
// the device mirror is not copied: it is rebuilt lazily on first device use.
func (ctx *Context) Copy() (*Context, error) {
	if ctx == nil || ctx.to == nil {
		exceptions.Panicf("scatter context is nil or was destroyed")
	}
	var to, from format
	switch t := ctx.to.(type) {
	case *distGeneral:
		to = t.clone()
		from = ctx.from.(*distGeneral).clone()
	case *localGeneral:
		to = t.clone()
		switch f := ctx.from.(type) {
		case *localGeneral:
			from = f.clone()
		case *localStride:
			from = f.clone()
		}
	case *localStride:
		to = t.clone()
		switch f := ctx.from.(type) {
		case *localGeneral:
			from = f.clone()
		case *localStride:
			from = f.clone()
		}
	}
	if to == nil || from == nil {
		return nil, errors.WithMessagef(ErrNotSupported, "cannot copy a %s/%s scatter context",
			ctx.to.kind(), ctx.from.kind())
	}
	newCtx := newContext(to, from)
	newCtx.toN, newCtx.fromN = ctx.toN, ctx.fromN
	newCtx.merged = ctx.merged
	newCtx.group = ctx.group
	if ctx.group != nil {
		newCtx.tag = ctx.group.AllocTag()
	}
	klog.V(2).Infof("scatter: context %s copied into %s", ctx.id, newCtx.id)
	return newCtx, nil
}
