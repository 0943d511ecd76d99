package encoder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/snunet/encoder"
)

func TestSiameseEncoderLevels(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	var enc encoder.Encoder = encoder.NewSiameseEncoder(vs.Root(), 3, []int64{8, 16, 32, 64})

	x := ts.MustRand([]int64{2, 3, 32, 48}, gotch.Float, gotch.CPU)
	features := enc.ForwardAll(x, false)
	require.Len(t, features, 4)

	want := [][]int64{
		{2, 8, 32, 48},
		{2, 16, 16, 24},
		{2, 32, 8, 12},
		{2, 64, 4, 6},
	}
	for i, f := range features {
		assert.Equal(t, want[i], f.MustSize())
		f.MustDrop()
	}
	x.MustDrop()
}

func TestSiameseEncoderSharesWeights(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	enc := encoder.NewSiameseEncoder(vs.Root(), 3, []int64{8, 16})

	// one parameter set: 2 levels x (2 conv + 2 bn)
	names := make(map[string]bool)
	for n := range vs.Variables() {
		names[n] = true
	}
	assert.True(t, names["conv0_0.conv1.weight"])
	assert.True(t, names["conv1_0.conv2.weight"])
	assert.False(t, names["conv2_0.conv1.weight"])

	x := ts.MustRand([]int64{1, 3, 16, 16}, gotch.Float, gotch.CPU)
	featA, featB := enc.ForwardPair(x, x, false)
	for i := range featA {
		assert.Equal(t, featA[i].Float64Values(), featB[i].Float64Values())
		featA[i].MustDrop()
		featB[i].MustDrop()
	}
	x.MustDrop()
}
