package scatter

import (
	"github.com/parvec/parvec/comm"
	"github.com/parvec/parvec/types/vectors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Distributed scatters run the split-phase protocol proper: Begin posts the receives, packs and
// sends the per-peer message blocks, and performs the same-rank portion; End waits for this
// rank's own outstanding transfers and spreads the received blocks into the destination. No rank
// blocks inside Begin.

// setUpDistributed builds both sides' pack/unpack plans and the per-peer message staging.
func setUpDistributed(to, from *distGeneral) {
	to.plan = newIndexPlan(to.starts, to.indices, to.bs)
	from.plan = newIndexPlan(from.starts, from.indices, from.bs)
	ensureStaging(to)
	ensureStaging(from)
}

func ensureStaging(d *distGeneral) {
	if d.bufs != nil {
		return
	}
	d.bufs = make([][]float64, len(d.peers))
	for i := range d.bufs {
		d.bufs[i] = make([]float64, d.msgLen(i))
	}
	d.reqs = make([]*comm.Request, len(d.peers))
}

// sides resolves which side sends and which receives for the given direction.
func sides(ctx *Context, dir Direction) (send, recv *distGeneral) {
	send = ctx.to.(*distGeneral)
	recv = ctx.from.(*distGeneral)
	if dir == Reverse {
		send, recv = recv, send
	}
	return
}

func beginDistributed(ctx *Context, xv, yv *vectors.Vector, mode CombineMode, dir Direction) error {
	send, recv := sides(ctx, dir)
	group := ctx.group
	x := xv.ConstData()
	y := yv.MutableData()

	// Post all receives before any send is issued.
	for pi, peer := range recv.peers {
		recv.reqs[pi] = group.Irecv(peer, ctx.tag, comm.FloatsAsBytes(recv.bufs[pi]))
	}

	// Gather each peer's block from x and hand it to the substrate.
	for pi, peer := range send.peers {
		buf := send.bufs[pi]
		if plan := send.plan; plan != nil && plan.optimized[pi] {
			plan.pack(pi, x, buf)
		} else {
			packBlock(send, pi, x, buf)
		}
		send.reqs[pi] = group.Isend(peer, ctx.tag, comm.FloatsAsBytes(buf))
	}
	klog.V(2).Infof("scatter: context %s begin %s: %d sends, %d receives, %d same-rank indices",
		ctx.id, dir, len(send.peers), len(recv.peers), len(send.slots))

	// Same-rank portion: a straight local copy, no message involved.
	copyGeneralPairs(recv.slots, send.slots, send.bs, x, y, mode)
	return nil
}

func endDistributed(ctx *Context, _, yv *vectors.Vector, mode CombineMode, dir Direction) error {
	send, recv := sides(ctx, dir)
	y := yv.MutableData()

	// Wait for this rank's receives and spread each block into y.
	for pi := range recv.peers {
		req := recv.reqs[pi]
		if req == nil {
			return errors.WithMessagef(ErrWrongState, "scatter context ended without a matching begin for peer %d", recv.peers[pi])
		}
		recv.reqs[pi] = nil
		if err := req.Wait(); err != nil {
			return errors.WithMessagef(err, "receiving scatter block from rank %d", recv.peers[pi])
		}
		if plan := recv.plan; plan != nil && plan.optimized[pi] && mode == Insert {
			plan.unpack(pi, recv.bufs[pi], y, mode)
			continue
		}
		unpackBlock(recv, pi, recv.bufs[pi], y, mode)
	}

	// Drain this rank's sends so the staging buffers may be reused by the next cycle.
	for pi := range send.peers {
		req := send.reqs[pi]
		send.reqs[pi] = nil
		if req == nil {
			continue
		}
		if err := req.Wait(); err != nil {
			return errors.WithMessagef(err, "sending scatter block to rank %d", send.peers[pi])
		}
	}
	return nil
}

// packBlock gathers the pi-th peer block from x into buf, element-wise.
func packBlock(d *distGeneral, pi int, x, buf []float64) {
	pos := 0
	for _, idx := range d.indices[d.starts[pi]:d.starts[pi+1]] {
		copy(buf[pos:pos+d.bs], x[idx:idx+d.bs])
		pos += d.bs
	}
}

// unpackBlock spreads the pi-th peer block from buf into y, element-wise, honoring mode.
func unpackBlock(d *distGeneral, pi int, buf, y []float64, mode CombineMode) {
	pos := 0
	for _, idx := range d.indices[d.starts[pi]:d.starts[pi+1]] {
		if mode == Insert {
			copy(y[idx:idx+d.bs], buf[pos:pos+d.bs])
		} else {
			for k := 0; k < d.bs; k++ {
				y[idx+k] += buf[pos+k]
			}
		}
		pos += d.bs
	}
}
