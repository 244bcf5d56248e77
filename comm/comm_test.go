package comm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSendThenReceive(t *testing.T) {
	fabric := NewFabric(2)
	sender, receiver := fabric.Group(0), fabric.Group(1)

	payload := []byte{1, 2, 3, 4}
	require.NoError(t, sender.Isend(1, 7, payload).Wait())

	got := make([]byte, 4)
	require.NoError(t, receiver.Irecv(0, 7, got).Wait())
	assert.Equal(t, payload, got)
}

func TestReceivePostedFirst(t *testing.T) {
	fabric := NewFabric(2)
	sender, receiver := fabric.Group(0), fabric.Group(1)

	got := make([]byte, 3)
	recvReq := receiver.Irecv(0, 1, got)
	assert.False(t, recvReq.Done())

	require.NoError(t, sender.Isend(1, 1, []byte{9, 8, 7}).Wait())
	require.NoError(t, recvReq.Wait())
	assert.True(t, recvReq.Done())
	assert.Equal(t, []byte{9, 8, 7}, got)
}

func TestTagMatchingOutOfOrder(t *testing.T) {
	fabric := NewFabric(2)
	sender, receiver := fabric.Group(0), fabric.Group(1)

	require.NoError(t, sender.Isend(1, 10, []byte{10}).Wait())
	require.NoError(t, sender.Isend(1, 20, []byte{20}).Wait())

	// Receiving tag 20 first skips over the queued tag-10 message.
	got20 := make([]byte, 1)
	require.NoError(t, receiver.Irecv(0, 20, got20).Wait())
	assert.Equal(t, []byte{20}, got20)

	got10 := make([]byte, 1)
	require.NoError(t, receiver.Irecv(0, 10, got10).Wait())
	assert.Equal(t, []byte{10}, got10)
}

func TestPerPairOrderingWithinTag(t *testing.T) {
	fabric := NewFabric(2)
	sender, receiver := fabric.Group(0), fabric.Group(1)

	for ii := byte(0); ii < 5; ii++ {
		require.NoError(t, sender.Isend(1, 3, []byte{ii}).Wait())
	}
	for ii := byte(0); ii < 5; ii++ {
		got := make([]byte, 1)
		require.NoError(t, receiver.Irecv(0, 3, got).Wait())
		assert.Equal(t, ii, got[0])
	}
}

func TestSenderMayReuseBuffer(t *testing.T) {
	fabric := NewFabric(2)
	sender, receiver := fabric.Group(0), fabric.Group(1)

	payload := []byte{1, 2}
	require.NoError(t, sender.Isend(1, 0, payload).Wait())
	payload[0], payload[1] = 99, 99

	got := make([]byte, 2)
	require.NoError(t, receiver.Irecv(0, 0, got).Wait())
	assert.Equal(t, []byte{1, 2}, got)
}

func TestLengthMismatchFailsReceive(t *testing.T) {
	fabric := NewFabric(2)
	sender, receiver := fabric.Group(0), fabric.Group(1)

	require.NoError(t, sender.Isend(1, 0, []byte{1, 2, 3}).Wait())
	err := receiver.Irecv(0, 0, make([]byte, 2)).Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 bytes")
}

func TestWaitAll(t *testing.T) {
	fabric := NewFabric(2)
	sender, receiver := fabric.Group(0), fabric.Group(1)

	got1, got2 := make([]byte, 1), make([]byte, 1)
	req1 := receiver.Irecv(0, 1, got1)
	req2 := receiver.Irecv(0, 2, got2)
	sendReq := sender.Isend(1, 1, []byte{1})
	require.NoError(t, sender.Isend(1, 2, []byte{2}).Wait())

	require.NoError(t, WaitAll(req1, nil, req2, sendReq))
	assert.Equal(t, []byte{1}, got1)
	assert.Equal(t, []byte{2}, got2)
}

func TestConcurrentRanks(t *testing.T) {
	// Every rank sends its rank number to every other rank and receives from all of them.
	const n = 4
	fabric := NewFabric(n)

	var eg errgroup.Group
	for rank := 0; rank < n; rank++ {
		group := fabric.Group(rank)
		eg.Go(func() error {
			reqs := make([]*Request, 0, 2*(n-1))
			inbox := make([][]byte, n)
			for peer := 0; peer < n; peer++ {
				if peer == group.Rank() {
					continue
				}
				inbox[peer] = make([]byte, 1)
				reqs = append(reqs, group.Irecv(peer, 0, inbox[peer]))
				reqs = append(reqs, group.Isend(peer, 0, []byte{byte(group.Rank())}))
			}
			if err := WaitAll(reqs...); err != nil {
				return err
			}
			for peer := 0; peer < n; peer++ {
				if peer == group.Rank() {
					continue
				}
				if inbox[peer][0] != byte(peer) {
					return fmt.Errorf("rank %d: got %d from peer %d", group.Rank(), inbox[peer][0], peer)
				}
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
}

func TestAllocTagMatchesAcrossRanks(t *testing.T) {
	fabric := NewFabric(3)
	tags := make([][]int, 3)
	for rank, group := range fabric.Groups() {
		for ii := 0; ii < 4; ii++ {
			tags[rank] = append(tags[rank], group.AllocTag())
		}
	}
	assert.Equal(t, tags[0], tags[1])
	assert.Equal(t, tags[1], tags[2])
}

func TestGroupsAndRanks(t *testing.T) {
	fabric := NewFabric(3)
	assert.Equal(t, 3, fabric.Size())
	assert.NotEmpty(t, fabric.ID())
	groups := fabric.Groups()
	require.Len(t, groups, 3)
	for rank, group := range groups {
		assert.Equal(t, rank, group.Rank())
		assert.Equal(t, 3, group.Size())
	}
	assert.Panics(t, func() { fabric.Group(3) })
	assert.Panics(t, func() { NewFabric(0) })
}

func TestFloatsAsBytes(t *testing.T) {
	flat := []float64{1.5, -2.0}
	view := FloatsAsBytes(flat)
	require.Len(t, view, 16)

	// The view aliases the slice in both directions.
	flat[0] = 3.25
	roundTrip := make([]float64, 2)
	copy(FloatsAsBytes(roundTrip), view)
	assert.Equal(t, flat, roundTrip)

	assert.Nil(t, FloatsAsBytes(nil))
}
