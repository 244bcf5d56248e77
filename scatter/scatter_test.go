package scatter

import (
	"strings"
	"testing"

	"github.com/parvec/parvec/types/vectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginWhileInUseFails(t *testing.T) {
	ctx, err := NewLocal([]int{0, 1}, []int{1, 0}, 1)
	require.NoError(t, err)
	defer func() { require.NoError(t, ctx.Destroy()) }()

	x := vectorWithSequence(2)
	y := vectorWithValue(2, 0)
	require.NoError(t, ctx.Begin(x, y, Insert, Forward))

	err = ctx.Begin(x, y, Insert, Forward)
	require.ErrorIs(t, err, ErrWrongState)
	// The context stays in use: a third Begin still fails.
	require.ErrorIs(t, ctx.Begin(x, y, Insert, Forward), ErrWrongState)

	require.NoError(t, ctx.End(x, y, Insert, Forward))
	require.NoError(t, ctx.Begin(x, y, Insert, Forward))
	require.NoError(t, ctx.End(x, y, Insert, Forward))
}

func TestSizeValidation(t *testing.T) {
	ctx, err := NewLocal([]int{0, 1}, []int{1, 0}, 1)
	require.NoError(t, err)
	defer func() { require.NoError(t, ctx.Destroy()) }()
	ctx.DeclareSizes(4, 3)

	x3, x4 := vectorWithSequence(3), vectorWithSequence(4)
	y3, y4 := vectorWithValue(3, 0), vectorWithValue(4, 0)

	require.NoError(t, ctx.Begin(x3, y4, Insert, Forward))
	require.NoError(t, ctx.End(x3, y4, Insert, Forward))

	require.ErrorIs(t, ctx.Begin(x4, y4, Insert, Forward), ErrSizeMismatch)
	require.ErrorIs(t, ctx.Begin(x3, y3, Insert, Forward), ErrSizeMismatch)

	// Reverse swaps which side each vector is checked against.
	require.NoError(t, ctx.Begin(y4, x3, Insert, Reverse))
	require.NoError(t, ctx.End(y4, x3, Insert, Reverse))
	require.ErrorIs(t, ctx.Begin(x3, y4, Insert, Reverse), ErrSizeMismatch)

	// Unknown sizes skip the check entirely.
	ctx.DeclareSizes(SizeUnknown, SizeUnknown)
	require.NoError(t, ctx.Begin(x4, y3, Insert, Forward))
	require.NoError(t, ctx.End(x4, y3, Insert, Forward))
}

func TestDestroyRefCounting(t *testing.T) {
	ctx, err := NewLocal([]int{0}, []int{0}, 1)
	require.NoError(t, err)

	ctx.Reference()
	require.Equal(t, 2, ctx.RefCount())

	require.NoError(t, ctx.Destroy())
	require.Equal(t, 1, ctx.RefCount())

	// Backend state is still alive: the context remains usable.
	x := vectorWithSequence(1)
	y := vectorWithValue(1, 0)
	require.NoError(t, ctx.Begin(x, y, Insert, Forward))
	require.NoError(t, ctx.End(x, y, Insert, Forward))

	require.NoError(t, ctx.Destroy())
	assert.Panics(t, func() { _ = ctx.Begin(x, y, Insert, Forward) })
}

func TestDestroyWhileInUse(t *testing.T) {
	ctx, err := NewLocal([]int{0}, []int{0}, 1)
	require.NoError(t, err)

	x := vectorWithSequence(1)
	y := vectorWithValue(1, 0)
	require.NoError(t, ctx.Begin(x, y, Insert, Forward))
	require.ErrorIs(t, ctx.Destroy(), ErrWrongState)

	// A second owner may drop its reference mid-transfer, only the last one may not.
	ctx.Reference()
	require.NoError(t, ctx.Destroy())

	require.NoError(t, ctx.End(x, y, Insert, Forward))
	require.NoError(t, ctx.Destroy())
}

func TestMergedFlag(t *testing.T) {
	ctx, err := NewLocal([]int{0}, []int{0}, 1)
	require.NoError(t, err)
	defer func() { require.NoError(t, ctx.Destroy()) }()

	assert.False(t, ctx.GetMerged())
	ctx.SetMerged(true)
	assert.True(t, ctx.GetMerged())
	ctx.SetMerged(false)
	assert.False(t, ctx.GetMerged())
}

func TestCopySharesNothing(t *testing.T) {
	ctx, err := NewLocal([]int{2, 0, 1}, []int{0, 1, 2}, 1)
	require.NoError(t, err)
	defer func() { require.NoError(t, ctx.Destroy()) }()
	ctx.DeclareSizes(3, 3)

	dup, err := ctx.Copy()
	require.NoError(t, err)
	defer func() { require.NoError(t, dup.Destroy()) }()

	toN, fromN := dup.DeclaredSizes()
	assert.Equal(t, 3, toN)
	assert.Equal(t, 3, fromN)

	// Remapping the original must not leak into the copy.
	require.NoError(t, ctx.Remap([]int{1, 2, 0}, nil))

	x := vectorWithSequence(3)
	y := vectors.New(3)
	require.NoError(t, dup.Begin(x, y, Insert, Forward))
	require.NoError(t, dup.End(x, y, Insert, Forward))
	assert.Equal(t, []float64{11, 12, 10}, y.ConstData())
}

func TestFormatKinds(t *testing.T) {
	local, err := NewLocal([]int{0}, []int{0}, 1)
	require.NoError(t, err)
	defer func() { require.NoError(t, local.Destroy()) }()
	toKind, fromKind := local.FormatKinds()
	assert.Equal(t, KindLocalGeneral, toKind)
	assert.Equal(t, KindLocalGeneral, fromKind)
	assert.True(t, local.IsSequential())

	strided, err := NewStrideToGeneral([]int{0, 1}, 0, 1)
	require.NoError(t, err)
	defer func() { require.NoError(t, strided.Destroy()) }()
	_, fromKind = strided.FormatKinds()
	assert.Equal(t, KindLocalStride, fromKind)
}

func TestView(t *testing.T) {
	ctx, err := NewLocal([]int{0, 1, 2}, []int{2, 1, 0}, 1)
	require.NoError(t, err)
	defer func() { require.NoError(t, ctx.Destroy()) }()
	ctx.SetUp()

	var sb strings.Builder
	require.NoError(t, ctx.View(&sb))
	out := sb.String()
	assert.Contains(t, out, "local-general")
	assert.Contains(t, out, "3 index slots")
	assert.Contains(t, out, "plan built")
}
