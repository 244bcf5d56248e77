// Package comm implements the point-to-point messaging substrate used by the scatter engine: a
// ranked group of cooperating endpoints with non-blocking sends and receives of tagged byte
// ranges, with reliable, ordered delivery between each pair of ranks.
//
// The in-process Fabric implementation connects all ranks through shared memory, so a whole
// process group can be driven from one test or benchmark binary, one goroutine per rank. The
// Group surface is what the scatter engine programs against; nothing in it assumes the in-process
// transport.
package comm

import (
	"sync"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/parvec/parvec/types/xsync"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Request tracks one outstanding non-blocking send or receive.
//
// It is a latch: it triggers exactly once, when the operation completes, and never changes state
// afterwards.
type Request struct {
	done *xsync.LatchWithValue[error]
}

func newRequest() *Request {
	return &Request{done: xsync.NewLatchWithValue[error]()}
}

func (r *Request) complete(err error) {
	r.done.Trigger(err)
}

// Wait blocks until the operation completes and returns its error, if any.
// Wait may be called multiple times and from multiple goroutines.
func (r *Request) Wait() error {
	return r.done.Wait()
}

// Done reports whether the operation has completed, without blocking.
func (r *Request) Done() bool {
	return r.done.Test()
}

// WaitAll waits for every given request and returns the first error found.
// Nil requests are skipped.
func WaitAll(reqs ...*Request) error {
	var firstErr error
	for _, req := range reqs {
		if req == nil {
			continue
		}
		if err := req.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// message is one tagged byte range in flight between a pair of ranks.
type message struct {
	tag  int
	data []byte
}

// pendingRecv is a posted receive not yet matched by a send.
type pendingRecv struct {
	tag  int
	data []byte
	req  *Request
}

// mailbox holds the traffic of one directed (sender rank, receiver rank) pair.
// Matching sends to receives in arrival order per tag gives the per-pair ordering guarantee.
type mailbox struct {
	mu      sync.Mutex
	queued  []message
	waiting []pendingRecv
}

// Fabric is an in-process process group: `size` ranks connected all-to-all through shared memory.
type Fabric struct {
	id    string
	size  int
	boxes []*mailbox // indexed by sender*size+receiver.
}

// NewFabric creates an in-process fabric with the given number of ranks.
func NewFabric(size int) *Fabric {
	if size <= 0 {
		exceptions.Panicf("comm.NewFabric: group size must be positive, got %d", size)
	}
	f := &Fabric{
		id:    uuid.NewString()[:8],
		size:  size,
		boxes: make([]*mailbox, size*size),
	}
	for ii := range f.boxes {
		f.boxes[ii] = &mailbox{}
	}
	klog.V(1).Infof("comm: fabric %s created with %d ranks", f.id, size)
	return f
}

// ID returns a short unique identifier of the fabric, for log correlation.
func (f *Fabric) ID() string { return f.id }

// Size returns the number of ranks in the fabric.
func (f *Fabric) Size() int { return f.size }

// Group returns the endpoint of the given rank.
func (f *Fabric) Group(rank int) *Group {
	if rank < 0 || rank >= f.size {
		exceptions.Panicf("comm.Fabric.Group: rank %d out of range [0,%d)", rank, f.size)
	}
	return &Group{fabric: f, rank: rank}
}

// Groups returns the endpoints of all ranks, indexed by rank.
func (f *Fabric) Groups() []*Group {
	groups := make([]*Group, f.size)
	for rank := range groups {
		groups[rank] = f.Group(rank)
	}
	return groups
}

func (f *Fabric) box(sender, receiver int) *mailbox {
	return f.boxes[sender*f.size+receiver]
}

// Group is one rank's endpoint into a process group.
//
// A Group is owned by a single logical caller (usually one goroutine per rank); the tag counter
// is not synchronized across concurrent callers of AllocTag on the same Group.
type Group struct {
	fabric  *Fabric
	rank    int
	nextTag int
}

// Rank of this endpoint, in [0, Size).
func (g *Group) Rank() int { return g.rank }

// Size of the process group.
func (g *Group) Size() int { return g.fabric.size }

// AllocTag returns a fresh message tag.
//
// Tags are allocated per rank in increasing order, so ranks that perform the same sequence of
// collective constructions obtain matching tags without communicating.
func (g *Group) AllocTag() int {
	tag := g.nextTag
	g.nextTag++
	return tag
}

// Isend issues a non-blocking send of data to rank `to` under the given tag.
//
// The data is staged internally: the returned request completes as soon as the message is
// buffered, and the caller may reuse data after Wait returns.
func (g *Group) Isend(to, tag int, data []byte) *Request {
	g.checkPeer(to)
	req := newRequest()
	box := g.fabric.box(g.rank, to)

	box.mu.Lock()
	// Match the oldest posted receive with this tag, if any.
	for ii, pr := range box.waiting {
		if pr.tag != tag {
			continue
		}
		box.waiting = append(box.waiting[:ii], box.waiting[ii+1:]...)
		box.mu.Unlock()
		pr.req.complete(deliver(pr.data, data, tag))
		req.complete(nil)
		return req
	}
	staged := make([]byte, len(data))
	copy(staged, data)
	box.queued = append(box.queued, message{tag: tag, data: staged})
	box.mu.Unlock()

	req.complete(nil)
	return req
}

// Irecv issues a non-blocking receive from rank `from` under the given tag, into data.
//
// The request completes when a matching message arrives; the message length must equal len(data).
func (g *Group) Irecv(from, tag int, data []byte) *Request {
	g.checkPeer(from)
	req := newRequest()
	box := g.fabric.box(from, g.rank)

	box.mu.Lock()
	// Match the oldest queued message with this tag, if any.
	for ii, msg := range box.queued {
		if msg.tag != tag {
			continue
		}
		box.queued = append(box.queued[:ii], box.queued[ii+1:]...)
		box.mu.Unlock()
		req.complete(deliver(data, msg.data, tag))
		return req
	}
	box.waiting = append(box.waiting, pendingRecv{tag: tag, data: data, req: req})
	box.mu.Unlock()
	return req
}

func (g *Group) checkPeer(peer int) {
	if peer < 0 || peer >= g.fabric.size {
		exceptions.Panicf("comm: peer rank %d out of range [0,%d)", peer, g.fabric.size)
	}
}

func deliver(dst, src []byte, tag int) error {
	if len(dst) != len(src) {
		return errors.Errorf("message with tag %d carries %d bytes, receive posted for %d bytes",
			tag, len(src), len(dst))
	}
	copy(dst, src)
	return nil
}

// FloatsAsBytes returns a zero-copy byte view of a []float64, for handing scalar buffers to the
// byte-oriented substrate. The view aliases the input slice.
func FloatsAsBytes(flat []float64) []byte {
	if len(flat) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&flat[0])), len(flat)*8)
}
