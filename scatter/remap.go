package scatter

import (
	"github.com/gomlx/exceptions"
	"github.com/parvec/parvec/types/xslices"
	"github.com/pkg/errors"
)

// Remap rewrites the index values inside an existing context through toMap, adapting it to a
// renumbering of the side the data is read from. For experts: the context keeps its message
// structure, only the index values change.
//
// For distributed contexts the rewritten side is the "to" side (the indices taken locally and
// sent to peers); for local contexts it is the side data is read from. A local-stride side
// accepts only the no-op remap: identity stride with an identity toMap. Rewriting the "from"
// side is not supported: a non-nil fromMap fails with ErrNotSupported.
//
// Index translation invalidates any cached memcpy plan, which is rebuilt from the new indices,
// and leaves any device mirror unset: the mirror encodes the old indices and must be rebuilt
// explicitly. After a successful remap, including the nil-toMap no-op, both declared sizes report
// as SizeUnknown, since the indices no longer determine the vectors' local sizes.
func (ctx *Context) Remap(toMap, fromMap []int) error {
	if ctx == nil || ctx.to == nil {
		exceptions.Panicf("scatter context is nil or was destroyed")
	}
	if fromMap != nil {
		return errors.WithMessage(ErrNotSupported, "remapping the from side of a scatter context")
	}
	if toMap == nil {
		// Even the nil-map no-op invalidates the declared sizes.
		ctx.toN, ctx.fromN = SizeUnknown, SizeUnknown
		return nil
	}

	switch to := ctx.to.(type) {
	case *distGeneral:
		from := ctx.from.(*distGeneral)
		// Rebuild-and-swap: translate into fresh slices so a failure cannot leave a
		// half-rewritten index list, then replace plans free-then-create.
		newIndices := translate(to.indices, toMap)
		newSlots := translate(to.slots, toMap)
		to.indices, to.slots = newIndices, newSlots
		to.plan, from.plan = nil, nil
		to.plan = newIndexPlan(to.starts, to.indices, to.bs)
		from.plan = newIndexPlan(from.starts, from.indices, from.bs)

	default:
		// Local contexts: data is read through the from side, backwards from the
		// distributed naming.
		switch from := ctx.from.(type) {
		case *localGeneral:
			from.slots = translate(from.slots, toMap)
			switch t := ctx.to.(type) {
			case *localStride:
				if t.step == 1 {
					from.plan = nil
					from.plan = newIndexPlan([]int{0, len(from.slots)}, from.slots, from.bs)
				}
			case *localGeneral:
				t.plan = nil
				t.plan = newPairPlan(t.slots, from.slots, t.bs)
			}
		case *localStride:
			if !from.isIdentity() {
				return errors.WithMessagef(ErrNotSupported,
					"cannot remap a strided scatter (first=%d, step=%d)", from.first, from.step)
			}
			for i := 0; i < from.n; i++ {
				if toMap[i] != i {
					return errors.WithMessage(ErrNotSupported,
						"cannot remap an identity-stride scatter with a non-identity map")
				}
			}
		}
	}

	// The remapped indices no longer determine the vectors' local sizes.
	ctx.toN, ctx.fromN = SizeUnknown, SizeUnknown

	// Invalidation edge: the mirror encodes the old indices, it must never survive a remap.
	ctx.releaseMirror()
	return nil
}

func translate(indices, m []int) []int {
	return xslices.Map(indices, func(idx int) int { return m[idx] })
}
