package base_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/snunet/base"
)

func variable(t *testing.T, vs *nn.VarStore, name string) []float64 {
	t.Helper()
	vars := vs.Variables()
	v, ok := vars[name]
	require.Truef(t, ok, "variable %q not found", name)
	return v.Float64Values()
}

func TestConvBlockShape(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	blk := base.NewConvBlock(vs.Root().Sub("blk"), 5, 8, 8)
	require.Nil(t, blk.Proj)

	for _, hw := range [][2]int64{{17, 13}, {8, 8}, {1, 1}} {
		x := ts.MustRand([]int64{2, 5, hw[0], hw[1]}, gotch.Float, gotch.CPU)
		out := blk.ForwardT(x, false)
		assert.Equal(t, []int64{2, 8, hw[0], hw[1]}, out.MustSize())
		x.MustDrop()
		out.MustDrop()
	}
}

func TestConvBlockProjection(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	blk := base.NewConvBlock(vs.Root().Sub("blk"), 3, 8, 4)
	require.NotNil(t, blk.Proj)
	assert.Equal(t, int64(4), blk.OutChannels())

	x := ts.MustRand([]int64{1, 3, 16, 16}, gotch.Float, gotch.CPU)
	out := blk.ForwardT(x, true)
	assert.Equal(t, []int64{1, 4, 16, 16}, out.MustSize())

	for _, v := range out.Float64Values() {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	x.MustDrop()
	out.MustDrop()
}

func TestConvBlockInvalid(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	assert.Panics(t, func() {
		base.NewConvBlock(vs.Root().Sub("blk"), 0, 8, 8)
	})
}

func TestUpDoubles(t *testing.T) {
	for _, bilinear := range []bool{false, true} {
		vs := nn.NewVarStore(gotch.CPU)
		up := base.NewUp(vs.Root().Sub("up"), 6, bilinear)
		assert.Equal(t, bilinear, up.Bilinear())

		x := ts.MustRand([]int64{1, 6, 5, 7}, gotch.Float, gotch.CPU)
		out := up.ForwardT(x, false)
		assert.Equal(t, []int64{1, 6, 10, 14}, out.MustSize())
		x.MustDrop()
		out.MustDrop()
	}
}

func TestUpBilinearHasNoParams(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	base.NewUp(vs.Root().Sub("up"), 6, true)
	assert.Empty(t, vs.Variables())
}

func TestUpBilinearAlignsCorners(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	up := base.NewUp(vs.Root(), 1, true)

	x := ts.MustRand([]int64{1, 1, 4, 4}, gotch.Float, gotch.CPU)
	out := up.ForwardT(x, false)
	xv := x.Float64Values()
	ov := out.Float64Values()

	// corners of a 4x4 input land on corners of the 8x8 output
	assert.InDelta(t, xv[0], ov[0], 1e-6)
	assert.InDelta(t, xv[3], ov[7], 1e-6)
	assert.InDelta(t, xv[12], ov[56], 1e-6)
	assert.InDelta(t, xv[15], ov[63], 1e-6)
	x.MustDrop()
	out.MustDrop()
}

func TestChannelAttentionRange(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	ca := base.NewChannelAttention(vs.Root().Sub("ca"), 32, 4)

	x := ts.MustRandn([]int64{2, 32, 9, 11}, gotch.Float, gotch.CPU).MustMul1(ts.FloatScalar(1000), true)
	gate := ca.ForwardT(x, false)
	assert.Equal(t, []int64{2, 32, 1, 1}, gate.MustSize())
	for _, v := range gate.Float64Values() {
		require.False(t, math.IsNaN(v))
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	x.MustDrop()
	gate.MustDrop()
}

func TestChannelAttentionRatio(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	// different ratios on different widths
	a := base.NewChannelAttention(vs.Root().Sub("a"), 96, 16)
	b := base.NewChannelAttention(vs.Root().Sub("b"), 16, 4)
	assert.Equal(t, []int64{6, 96, 1, 1}, a.Fc1.Ws.MustSize())
	assert.Equal(t, []int64{4, 16, 1, 1}, b.Fc1.Ws.MustSize())

	assert.Panics(t, func() {
		base.NewChannelAttention(vs.Root().Sub("c"), 8, 16)
	})
	assert.Panics(t, func() {
		base.NewChannelAttention(vs.Root().Sub("d"), 8, 0)
	})
}

func TestBatchNormInit(t *testing.T) {
	base.ManualSeed(11)
	vs := nn.NewVarStore(gotch.CPU)
	base.NewConvBlock(vs.Root().Sub("blk"), 3, 16, 16)

	for _, bn := range []string{"blk.bn1", "blk.bn2"} {
		for _, v := range variable(t, vs, bn+".weight") {
			assert.Equal(t, 1.0, v)
		}
		for _, v := range variable(t, vs, bn+".bias") {
			assert.Equal(t, 0.0, v)
		}
	}
}

func TestConvFanOutInit(t *testing.T) {
	base.ManualSeed(11)
	vs := nn.NewVarStore(gotch.CPU)
	base.NewConvBlock(vs.Root().Sub("blk"), 64, 64, 64)

	w := variable(t, vs, "blk.conv2.weight")
	require.Len(t, w, 64*64*3*3)

	var sum, sq float64
	for _, v := range w {
		sum += v
		sq += v * v
	}
	n := float64(len(w))
	mean := sum / n
	std := math.Sqrt(sq/n - mean*mean)

	want := math.Sqrt(2.0 / (64 * 3 * 3))
	assert.InDelta(t, 0.0, mean, 0.005)
	assert.InEpsilon(t, want, std, 0.05)
}

func TestConvFiltersDiffer(t *testing.T) {
	base.ManualSeed(11)
	vs := nn.NewVarStore(gotch.CPU)
	base.NewConvBlock(vs.Root().Sub("blk"), 4, 8, 8)
	ca := base.NewChannelAttention(vs.Root().Sub("ca"), 16, 4)
	head := base.NewClassifierHead(vs.Root().Sub("head"), 16, 2)

	// weight is [cOut cIn k k]; each filter is one cOut slice
	filters := func(name string, filterSize int) (first, second []float64) {
		w := variable(t, vs, name)
		return w[:filterSize], w[filterSize : 2*filterSize]
	}

	a, b := filters("blk.conv1.weight", 4*3*3)
	assert.NotEqual(t, a, b)
	a, b = filters("blk.conv2.weight", 8*3*3)
	assert.NotEqual(t, a, b)
	a, b = filters("head.weight", 16)
	assert.NotEqual(t, a, b)

	fc1 := ca.Fc1.Ws.Float64Values()
	assert.NotEqual(t, fc1[:16], fc1[16:32])

	// no two elements of a large layer share a value
	w := variable(t, vs, "blk.conv2.weight")
	seen := make(map[float64]bool, len(w))
	for _, v := range w {
		seen[v] = true
	}
	assert.Greater(t, len(seen), len(w)*9/10)
}

func TestUpTransposedInit(t *testing.T) {
	base.ManualSeed(11)
	vs := nn.NewVarStore(gotch.CPU)
	base.NewUp(vs.Root().Sub("up"), 8, false)

	bound := 1.0 / math.Sqrt(8*2*2)
	w := variable(t, vs, "up.up.weight")
	require.Len(t, w, 8*8*2*2)
	for _, v := range w {
		assert.LessOrEqual(t, math.Abs(v), bound+1e-6)
	}
	assert.NotEqual(t, w[:4], w[4:8])
	for _, v := range variable(t, vs, "up.up.bias") {
		assert.LessOrEqual(t, math.Abs(v), bound+1e-6)
	}
}

func buildBlocks(seed int64) *nn.VarStore {
	base.ManualSeed(seed)
	vs := nn.NewVarStore(gotch.CPU)
	base.NewConvBlock(vs.Root().Sub("blk"), 3, 8, 8)
	base.NewUp(vs.Root().Sub("up"), 8, false)
	base.NewChannelAttention(vs.Root().Sub("ca"), 8, 4)
	return vs
}

func TestInitDeterministic(t *testing.T) {
	vs1 := buildBlocks(42)
	vs2 := buildBlocks(42)
	vars1 := vs1.Variables()
	require.Equal(t, len(vars1), len(vs2.Variables()))
	for name := range vars1 {
		assert.Equal(t, variable(t, vs1, name), variable(t, vs2, name), name)
	}
}

func TestInitSeedMatters(t *testing.T) {
	vs1 := buildBlocks(42)
	vs2 := buildBlocks(43)
	for _, name := range []string{"blk.conv1.weight", "blk.conv2.weight", "up.up.weight", "ca.fc1.weight"} {
		assert.NotEqual(t, variable(t, vs1, name), variable(t, vs2, name), name)
	}
	// BatchNorm init ignores the seed
	assert.Equal(t, variable(t, vs1, "blk.bn1.weight"), variable(t, vs2, "blk.bn1.weight"))
}
