package scatter

import (
	"github.com/parvec/parvec/comm"
	"github.com/parvec/parvec/types/xslices"
	"github.com/pkg/errors"
)

// Constructors assemble configured contexts from explicit index descriptions. The index-set
// convention throughout is y[toIndex[i]] = x[fromIndex[i]] for the forward direction; index
// values are component start offsets, and each logical index moves blockSize contiguous scalar
// components.

// NewLocal creates a local general-to-general context: y[toIdx[i]+k] = x[fromIdx[i]+k] for
// k < bs. Indices may repeat and appear in any order; for duplicate destinations the last write
// in list order wins.
func NewLocal(toIdx, fromIdx []int, bs int) (*Context, error) {
	if len(toIdx) != len(fromIdx) {
		return nil, errors.Errorf("to and from index lists must have equal length, got %d and %d",
			len(toIdx), len(fromIdx))
	}
	if bs < 1 {
		return nil, errors.Errorf("block size must be at least 1, got %d", bs)
	}
	to := &localGeneral{bs: bs, slots: xslices.Copy(toIdx)}
	from := &localGeneral{bs: bs, slots: xslices.Copy(fromIdx)}
	return newContext(to, from), nil
}

// NewStrideToGeneral creates a local context gathering from a strided source:
// y[toIdx[i]] = x[first + i*step].
func NewStrideToGeneral(toIdx []int, first, step int) (*Context, error) {
	if err := checkStride(first, step); err != nil {
		return nil, err
	}
	to := &localGeneral{bs: 1, slots: xslices.Copy(toIdx)}
	from := &localStride{n: len(toIdx), first: first, step: step}
	return newContext(to, from), nil
}

// NewGeneralToStride creates a local context scattering into a strided destination:
// y[first + i*step] = x[fromIdx[i]].
func NewGeneralToStride(fromIdx []int, first, step int) (*Context, error) {
	if err := checkStride(first, step); err != nil {
		return nil, err
	}
	to := &localStride{n: len(fromIdx), first: first, step: step}
	from := &localGeneral{bs: 1, slots: xslices.Copy(fromIdx)}
	return newContext(to, from), nil
}

// NewStrideToStride creates a local context between two arithmetic progressions:
// y[toFirst + i*toStep] = x[fromFirst + i*fromStep] for i < n.
func NewStrideToStride(n, toFirst, toStep, fromFirst, fromStep int) (*Context, error) {
	if n < 0 {
		return nil, errors.Errorf("index count must be non-negative, got %d", n)
	}
	if err := checkStride(toFirst, toStep); err != nil {
		return nil, err
	}
	if err := checkStride(fromFirst, fromStep); err != nil {
		return nil, err
	}
	to := &localStride{n: n, first: toFirst, step: toStep}
	from := &localStride{n: n, first: fromFirst, step: fromStep}
	return newContext(to, from), nil
}

func checkStride(first, step int) error {
	if first < 0 {
		return errors.Errorf("stride start must be non-negative, got %d", first)
	}
	if step == 0 {
		return errors.Errorf("stride step must be non-zero")
	}
	return nil
}

// Block describes the traffic with one peer rank of a distributed context: the contiguous range
// of indices exchanged with that peer.
type Block struct {
	// Peer rank within the group.
	Peer int

	// Indices are component start offsets into this rank's local buffer: into the source
	// vector for a send block, into the destination vector for a receive block.
	Indices []int
}

// NewDistributed creates this rank's side of a distributed general-to-general context.
//
// sends lists, per peer, the local indices of x gathered and shipped to that peer; recvs lists,
// per peer, the local indices of y where that peer's data lands. sendSlots/recvSlots describe
// the same-rank portion, paired position-wise: y[recvSlots[i]] = x[sendSlots[i]].
//
// The construction is collective in shape: if rank a sends k indices to rank b, rank b must
// post a receive block of k indices for rank a, and every rank must construct its contexts in
// the same order so message tags line up.
func NewDistributed(group *comm.Group, bs int, sends, recvs []Block, sendSlots, recvSlots []int) (*Context, error) {
	if group == nil {
		return nil, errors.Errorf("distributed scatter context requires a process group")
	}
	if bs < 1 {
		return nil, errors.Errorf("block size must be at least 1, got %d", bs)
	}
	if len(sendSlots) != len(recvSlots) {
		return nil, errors.Errorf("same-rank slot lists must have equal length, got %d and %d",
			len(sendSlots), len(recvSlots))
	}
	to, err := newDistSide(group, bs, sends, sendSlots)
	if err != nil {
		return nil, err
	}
	from, err := newDistSide(group, bs, recvs, recvSlots)
	if err != nil {
		return nil, err
	}
	ctx := newContext(to, from)
	ctx.group = group
	ctx.tag = group.AllocTag()
	return ctx, nil
}

func newDistSide(group *comm.Group, bs int, blocks []Block, slots []int) (*distGeneral, error) {
	d := &distGeneral{
		bs:     bs,
		slots:  xslices.Copy(slots),
		starts: make([]int, 1, len(blocks)+1),
	}
	for _, b := range blocks {
		if b.Peer < 0 || b.Peer >= group.Size() {
			return nil, errors.Errorf("peer rank %d out of range [0,%d)", b.Peer, group.Size())
		}
		if b.Peer == group.Rank() {
			return nil, errors.Errorf("traffic with own rank %d belongs in the same-rank slot lists, not a peer block", b.Peer)
		}
		d.peers = append(d.peers, b.Peer)
		d.indices = append(d.indices, b.Indices...)
		d.starts = append(d.starts, len(d.indices))
	}
	return d, nil
}
