package xsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatch(t *testing.T) {
	l := NewLatch()
	assert.False(t, l.Test())
	select {
	case <-l.WaitChan():
		t.Fatal("latch triggered before Trigger")
	default:
	}

	l.Trigger()
	assert.True(t, l.Test())
	l.Wait() // Must not block.
	l.Trigger()
	assert.True(t, l.Test())
}

func TestLatchWithValue(t *testing.T) {
	l := NewLatchWithValue[int]()
	assert.False(t, l.Test())

	go l.Trigger(42)
	assert.Equal(t, 42, l.Wait())

	// A second trigger discards its value.
	l.Trigger(7)
	assert.Equal(t, 42, l.Wait())
}
