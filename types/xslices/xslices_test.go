package xslices

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	count := 17
	in := make([]int, count)
	for ii := 0; ii < count; ii++ {
		in[ii] = ii
	}
	out := Map(in, func(v int) int32 { return int32(v + 1) })
	for ii := 0; ii < count; ii++ {
		assert.Equalf(t, int32(ii+1), out[ii], "element %d doesn't match", ii)
	}
	assert.Equal(t, []string{"0", "1"}, Map([]int{0, 1}, func(v int) string { return fmt.Sprintf("%d", v) }))
}

func TestIota(t *testing.T) {
	assert.Equal(t, []int{3, 4}, Iota(3, 2))
	assert.Equal(t, []float64{0, 1, 2}, Iota(0.0, 3))
	assert.Empty(t, Iota(0, 0))
}

func TestSliceWithValueAndFill(t *testing.T) {
	s := SliceWithValue(3, 7)
	assert.Equal(t, []int{7, 7, 7}, s)
	FillSlice(s, -1)
	assert.Equal(t, []int{-1, -1, -1}, s)
}

func TestCopyAndLast(t *testing.T) {
	orig := []int{1, 2, 3}
	dup := Copy(orig)
	dup[0] = 99
	assert.Equal(t, []int{1, 2, 3}, orig)
	assert.Nil(t, Copy[int](nil))
	assert.Equal(t, 3, Last(orig))
}

func TestSortedAndUnique(t *testing.T) {
	orig := []int{4, 1, 4, 2, 1, 9}
	assert.Equal(t, []int{1, 2, 4, 9}, SortedAndUnique(orig))
	assert.Equal(t, []int{4, 1, 4, 2, 1, 9}, orig, "input must not be modified")
	assert.Nil(t, SortedAndUnique[int](nil))
	assert.Equal(t, []int{5}, SortedAndUnique([]int{5, 5, 5}))
}

func TestIsIdentity(t *testing.T) {
	assert.True(t, IsIdentity([]int{0, 1, 2}))
	assert.True(t, IsIdentity[int](nil))
	assert.False(t, IsIdentity([]int{0, 2, 1}))
	assert.False(t, IsIdentity([]int32{1}))
}
