package scatter

// The memcpy planner analyzes an index list once and decomposes it into maximal runs of
// consecutive memory, so repeated Begin/End cycles on the same context replace element-wise copy
// loops with block copies. A plan is pure derived state: it is invalidated and recomputed when
// the indices change (see Remap) and every consumer falls back to element-wise copies when it is
// absent. Removing a plan never changes transferred values, only speed.

// copyRun describes one block copy of n scalars.
//
// For message plans (pack/unpack of a distributed block) dst is the scalar position within the
// packed message and src the component offset into vector memory. For pairwise local plans dst
// and src are component offsets into the destination and source vectors.
type copyRun struct {
	dst, src, n int
}

// memcpyPlan is the run decomposition of an index list, one run list per message block.
type memcpyPlan struct {
	msgs [][]copyRun

	// optimized[i] reports whether block i is worth executing through its runs rather than an
	// element-wise loop. Runs are always correct either way.
	optimized []bool
}

// worthOptimizing: block copies only pay off once runs span more than a couple of scalars each.
func worthOptimizing(scalars, runs int) bool {
	return runs > 0 && scalars >= 2*runs
}

// newIndexPlan decomposes each indices[starts[i]:starts[i+1]] block into maximal runs where
// consecutive logical indices are bs apart in memory, i.e. their blocks are adjacent.
func newIndexPlan(starts, indices []int, bs int) *memcpyPlan {
	nMsgs := len(starts) - 1
	plan := &memcpyPlan{
		msgs:      make([][]copyRun, nMsgs),
		optimized: make([]bool, nMsgs),
	}
	for m := 0; m < nMsgs; m++ {
		lo, hi := starts[m], starts[m+1]
		var runs []copyRun
		pos := 0
		for i := lo; i < hi; {
			j := i + 1
			for j < hi && indices[j] == indices[j-1]+bs {
				j++
			}
			n := (j - i) * bs
			runs = append(runs, copyRun{dst: pos, src: indices[i], n: n})
			pos += n
			i = j
		}
		plan.msgs[m] = runs
		plan.optimized[m] = worthOptimizing((hi-lo)*bs, len(runs))
	}
	return plan
}

// newPairPlan decomposes two equal-length slot lists into maximal runs contiguous on both sides
// simultaneously: within a run, destination and source offsets both advance by bs per index.
func newPairPlan(dstSlots, srcSlots []int, bs int) *memcpyPlan {
	n := len(dstSlots)
	var runs []copyRun
	for i := 0; i < n; {
		j := i + 1
		for j < n && dstSlots[j] == dstSlots[j-1]+bs && srcSlots[j] == srcSlots[j-1]+bs {
			j++
		}
		runs = append(runs, copyRun{dst: dstSlots[i], src: srcSlots[i], n: (j - i) * bs})
		i = j
	}
	return &memcpyPlan{
		msgs:      [][]copyRun{runs},
		optimized: []bool{worthOptimizing(n*bs, len(runs))},
	}
}

// pack gathers the block-m runs from vector memory x into the packed message buf.
func (p *memcpyPlan) pack(m int, x, buf []float64) {
	for _, run := range p.msgs[m] {
		copy(buf[run.dst:run.dst+run.n], x[run.src:run.src+run.n])
	}
}

// unpack spreads the packed message buf into vector memory y following the block-m runs.
func (p *memcpyPlan) unpack(m int, buf, y []float64, mode CombineMode) {
	if mode == Insert {
		for _, run := range p.msgs[m] {
			copy(y[run.src:run.src+run.n], buf[run.dst:run.dst+run.n])
		}
		return
	}
	for _, run := range p.msgs[m] {
		dst := y[run.src : run.src+run.n]
		src := buf[run.dst : run.dst+run.n]
		for k := range dst {
			dst[k] += src[k]
		}
	}
}

// copyPairs applies the single-block pairwise runs: y[dst] = x[src] run by run, in list order.
// reversed swaps the roles of the two offset columns, for reverse-direction scatters.
func (p *memcpyPlan) copyPairs(x, y []float64, mode CombineMode, reversed bool) {
	for _, run := range p.msgs[0] {
		d, s := run.dst, run.src
		if reversed {
			d, s = s, d
		}
		dst := y[d : d+run.n]
		src := x[s : s+run.n]
		if mode == Insert {
			copy(dst, src)
			continue
		}
		for k := range dst {
			dst[k] += src[k]
		}
	}
}
