package scatter

import (
	"github.com/parvec/parvec/comm"
	"github.com/parvec/parvec/types/xslices"
)

// Kind tags the closed set of backend formats a context side can take.
type Kind int

const (
	// KindDistributedGeneral partitions indices into per-peer message blocks plus a purely
	// local portion.
	KindDistributedGeneral Kind = iota

	// KindLocalGeneral is a flat ordered list of local index slots; arbitrary order, duplicates
	// allowed.
	KindLocalGeneral

	// KindLocalStride is an arithmetic progression of local indices: first + i*step.
	KindLocalStride
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindDistributedGeneral:
		return "distributed-general"
	case KindLocalGeneral:
		return "local-general"
	case KindLocalStride:
		return "local-stride"
	}
	return "invalid-format"
}

// format is the closed union of backend representations. Operations pattern-match on the
// concrete type; there is no open dispatch.
//
// Naming of the two sides of a context follows the element-flow convention
// y[toIndex[i]] = x[fromIndex[i]]: for local contexts the "to" side holds the indices where data
// lands and the "from" side where it is read. For distributed contexts the "to" side instead
// holds what is taken locally and sent to peers, and the "from" side where received data lands --
// the parallel and local conventions are backwards from each other.
type format interface {
	kind() Kind
}

// distGeneral is the distributed-general format: the traffic of one direction of a context on
// one rank, as per-peer contiguous blocks of a flat index buffer plus a same-rank portion.
type distGeneral struct {
	// bs is the number of contiguous scalar components moved per logical index.
	bs int

	// slots is the same-rank portion: component start offsets, paired position-wise with the
	// other side's slots.
	slots []int

	// peers[i] is the rank whose message block is indices[starts[i]:starts[i+1]].
	// starts has len(peers)+1 entries and is monotonically increasing.
	peers   []int
	starts  []int
	indices []int

	// plan is the derived pack/unpack decomposition of indices; nil forces element-wise copies.
	plan *memcpyPlan

	// Message staging, sized by SetUp: bufs[i] holds bs*(starts[i+1]-starts[i]) scalars.
	bufs [][]float64
	reqs []*comm.Request
}

func (*distGeneral) kind() Kind { return KindDistributedGeneral }

// msgLen returns the number of scalars exchanged with the i-th peer.
func (d *distGeneral) msgLen(i int) int {
	return d.bs * (d.starts[i+1] - d.starts[i])
}

// totalIndices returns the number of logical indices across all message blocks.
func (d *distGeneral) totalIndices() int {
	return xslices.Last(d.starts)
}

func (d *distGeneral) clone() *distGeneral {
	c := &distGeneral{
		bs:      d.bs,
		slots:   xslices.Copy(d.slots),
		peers:   xslices.Copy(d.peers),
		starts:  xslices.Copy(d.starts),
		indices: xslices.Copy(d.indices),
	}
	return c
}

// localGeneral is the local-general format: an arbitrary ordered list of local index slots.
type localGeneral struct {
	bs    int
	slots []int

	// plan caches either a pairwise run decomposition against the other side (when both sides
	// are local-general, carried by the "to" side) or an index-run decomposition (when paired
	// with a unit-step stride, carried by the general side). Nil forces element-wise copies.
	plan *memcpyPlan
}

func (*localGeneral) kind() Kind { return KindLocalGeneral }

func (g *localGeneral) clone() *localGeneral {
	return &localGeneral{bs: g.bs, slots: xslices.Copy(g.slots)}
}

// localStride is the local-stride format: indices first, first+step, ..., first+(n-1)*step.
type localStride struct {
	n, first, step int
}

func (*localStride) kind() Kind { return KindLocalStride }

// isIdentity reports the identity pattern: step 1 starting at 0.
func (s *localStride) isIdentity() bool { return s.first == 0 && s.step == 1 }

func (s *localStride) clone() *localStride {
	c := *s
	return &c
}
