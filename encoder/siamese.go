package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/snunet/base"
)

// SiameseEncoder is a plain nested-UNet encoder column
// (conv0_0, conv1_0, ... convN_0 with 2x2 max-pooling in between).
// A single instance is applied to both images of a pair, so both
// towers share one parameter set.
type SiameseEncoder struct {
	levels []*base.ConvBlock
	widths []int64
}

// NewSiameseEncoder creates an encoder with len(widths) levels.
// Level i maps widths[i-1] (cIn for level 0) to widths[i] channels.
func NewSiameseEncoder(p *nn.Path, cIn int64, widths []int64) *SiameseEncoder {
	if len(widths) == 0 {
		panic("SiameseEncoder: expected at least one level")
	}

	levels := make([]*base.ConvBlock, len(widths))
	prev := cIn
	for i, w := range widths {
		levels[i] = base.NewConvBlock(p.Sub(fmt.Sprintf("conv%d_0", i)), prev, w, w)
		prev = w
	}

	return &SiameseEncoder{
		levels: levels,
		widths: append([]int64{}, widths...),
	}
}

// Widths returns the channel count of each level.
func (e *SiameseEncoder) Widths() []int64 {
	return append([]int64{}, e.widths...)
}

func pool(x *ts.Tensor) *ts.Tensor {
	// ksize = 2; stride=2; padding=0; dilation=1; ceil=false
	return x.MustMaxPool2d([]int64{2, 2}, []int64{2, 2}, []int64{0, 0}, []int64{1, 1}, false, false)
}

// ForwardAll implements Encoder interface for SiameseEncoder.
// Level i has spatial size H/2^i x W/2^i.
func (e *SiameseEncoder) ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor {
	features := make([]*ts.Tensor, len(e.levels))
	features[0] = e.levels[0].ForwardT(x, train)
	for i := 1; i < len(e.levels); i++ {
		down := pool(features[i-1])
		features[i] = e.levels[i].ForwardT(down, train)
		down.MustDrop()
	}

	return features
}

// ForwardPair runs the shared encoder on both images.
func (e *SiameseEncoder) ForwardPair(xA, xB *ts.Tensor, train bool) (featA, featB []*ts.Tensor) {
	return e.ForwardAll(xA, train), e.ForwardAll(xB, train)
}
