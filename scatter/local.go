package scatter

import "github.com/parvec/parvec/types/vectors"

// Local scatters complete entirely inside Begin: both sides live in this process, so the
// "transfer" is a pure copy between the two local buffers, there is no end phase.

func beginLocal(ctx *Context, xv, yv *vectors.Vector, mode CombineMode, dir Direction) error {
	x := xv.ConstData()
	y := yv.MutableData()
	reversed := dir == Reverse

	switch to := ctx.to.(type) {
	case *localGeneral:
		switch from := ctx.from.(type) {
		case *localGeneral:
			if plan := to.plan; plan != nil && plan.optimized[0] {
				plan.copyPairs(x, y, mode, reversed)
				return nil
			}
			if reversed {
				copyGeneralPairs(from.slots, to.slots, to.bs, x, y, mode)
			} else {
				copyGeneralPairs(to.slots, from.slots, to.bs, x, y, mode)
			}
		case *localStride:
			// Forward reads the strided side, reverse writes it.
			copyStrideGeneral(to, from, x, y, mode, !reversed)
		}
	case *localStride:
		switch from := ctx.from.(type) {
		case *localGeneral:
			copyStrideGeneral(from, to, x, y, mode, reversed)
		case *localStride:
			copyStridePair(to, from, x, y, mode, reversed)
		}
	}
	return nil
}

// copyGeneralPairs applies y[dstSlots[i]+k] = x[srcSlots[i]+k] element-wise, in list order, so
// the last write wins for duplicate destinations.
func copyGeneralPairs(dstSlots, srcSlots []int, bs int, x, y []float64, mode CombineMode) {
	if bs == 1 {
		if mode == Insert {
			for i, d := range dstSlots {
				y[d] = x[srcSlots[i]]
			}
			return
		}
		for i, d := range dstSlots {
			y[d] += x[srcSlots[i]]
		}
		return
	}
	for i, d := range dstSlots {
		s := srcSlots[i]
		if mode == Insert {
			copy(y[d:d+bs], x[s:s+bs])
			continue
		}
		for k := 0; k < bs; k++ {
			y[d+k] += x[s+k]
		}
	}
}

// copyStrideGeneral moves data between a local-general side g and a local-stride side s.
// When generalIsDst, y is indexed by g's slots and x by the stride; otherwise the other way
// around. g carries the cached index plan, usable whenever the stride has unit step.
func copyStrideGeneral(g *localGeneral, s *localStride, x, y []float64, mode CombineMode, generalIsDst bool) {
	if plan := g.plan; plan != nil && s.step == 1 && plan.optimized[0] && mode == Insert {
		for _, run := range plan.msgs[0] {
			if generalIsDst {
				copy(y[run.src:run.src+run.n], x[s.first+run.dst:s.first+run.dst+run.n])
			} else {
				copy(y[s.first+run.dst:s.first+run.dst+run.n], x[run.src:run.src+run.n])
			}
		}
		return
	}
	for i, slot := range g.slots {
		strided := s.first + i*s.step
		d, sIdx := slot, strided
		if !generalIsDst {
			d, sIdx = strided, slot
		}
		if mode == Insert {
			y[d] = x[sIdx]
		} else {
			y[d] += x[sIdx]
		}
	}
}

// copyStridePair moves data between two local-stride sides.
func copyStridePair(to, from *localStride, x, y []float64, mode CombineMode, reversed bool) {
	dst, src := to, from
	if reversed {
		dst, src = from, to
	}
	n := dst.n
	if dst.step == 1 && src.step == 1 {
		if mode == Insert {
			copy(y[dst.first:dst.first+n], x[src.first:src.first+n])
			return
		}
		dstSeg := y[dst.first : dst.first+n]
		srcSeg := x[src.first : src.first+n]
		for k := range dstSeg {
			dstSeg[k] += srcSeg[k]
		}
		return
	}
	for i := 0; i < n; i++ {
		d := dst.first + i*dst.step
		s := src.first + i*src.step
		if mode == Insert {
			y[d] = x[s]
		} else {
			y[d] += x[s]
		}
	}
}
