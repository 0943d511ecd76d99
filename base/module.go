package base

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// Conv2d creates Conv2D module.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}
	config.WsInit = KaimingFanOut(cOut, ksize)

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// Conv2dNoBias creates Conv2D with no bias.
func Conv2dNoBias(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Bias = false
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}
	config.WsInit = KaimingFanOut(cOut, ksize)

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// BatchNorm2d creates a BatchNorm with scale 1 and shift 0.
func BatchNorm2d(p *nn.Path, c int64) *nn.BatchNorm {
	config := nn.DefaultBatchNormConfig()
	config.WsInit = nn.NewConstInit(1.0)
	config.BsInit = nn.NewConstInit(0.0)

	return nn.BatchNorm2D(p, c, config)
}

// ConvBlock is the nested-UNet building block: two 3x3 conv+BN layers whose
// output is added to the first conv's raw output before the last ReLU.
//
//	t = conv1(x); id = t
//	t = relu(bn1(t)); t = bn2(conv2(t))
//	out = relu(t + id)
//
// When cMid != cOut the identity is projected to cOut with a 1x1 conv.
type ConvBlock struct {
	Conv1 *nn.Conv2D
	Bn1   *nn.BatchNorm
	Conv2 *nn.Conv2D
	Bn2   *nn.BatchNorm
	Proj  *nn.Conv2D // nil when cMid == cOut

	cOut int64
}

// NewConvBlock creates a ConvBlock mapping cIn channels to cOut channels.
func NewConvBlock(p *nn.Path, cIn, cMid, cOut int64) *ConvBlock {
	if cIn <= 0 || cMid <= 0 || cOut <= 0 {
		panic(fmt.Sprintf("ConvBlock: channels must be positive. Got in=%v, mid=%v, out=%v", cIn, cMid, cOut))
	}

	b := &ConvBlock{
		Conv1: Conv2d(p.Sub("conv1"), cIn, cMid, 3, 1, 1),
		Bn1:   BatchNorm2d(p.Sub("bn1"), cMid),
		Conv2: Conv2d(p.Sub("conv2"), cMid, cOut, 3, 1, 1),
		Bn2:   BatchNorm2d(p.Sub("bn2"), cOut),
		cOut:  cOut,
	}
	if cMid != cOut {
		b.Proj = Conv2dNoBias(p.Sub("proj"), cMid, cOut, 1, 0, 1)
	}

	return b
}

// OutChannels returns number of channels the block produces.
func (b *ConvBlock) OutChannels() int64 {
	return b.cOut
}

// ForwardT implements ts.ModuleT for ConvBlock.
func (b *ConvBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c1 := b.Conv1.ForwardT(x, train)
	bn1 := b.Bn1.ForwardT(c1, train)
	relu := bn1.MustRelu(true)
	c2 := b.Conv2.ForwardT(relu, train)
	relu.MustDrop()
	bn2 := b.Bn2.ForwardT(c2, train)
	c2.MustDrop()

	identity := c1
	if b.Proj != nil {
		identity = b.Proj.ForwardT(c1, train)
		c1.MustDrop()
	}

	sum := bn2.MustAdd(identity, true)
	identity.MustDrop()

	return sum.MustRelu(true)
}

// Up doubles height and width of a feature map, either with a learned
// ConvTranspose2d(k=2, s=2) or with bilinear interpolation (align corners).
type Up struct {
	Deconv *nn.ConvTranspose2D // nil in bilinear mode
}

// NewUp creates an Up layer. The mode is fixed here, not per call.
func NewUp(p *nn.Path, channels int64, bilinear bool) *Up {
	if bilinear {
		return &Up{}
	}

	// fan_in of a transposed conv weight is out_channels * k * k
	fanIn := channels * 2 * 2
	config := &nn.ConvTranspose2DConfig{
		Stride:        []int64{2, 2},
		Padding:       []int64{0, 0},
		OutputPadding: []int64{0, 0},
		Dilation:      []int64{1, 1},
		Groups:        1,
		Bias:          true,
		WsInit:        FanInUniform(fanIn),
		BsInit:        FanInUniform(fanIn),
	}
	deconv := nn.NewConvTranspose2D(p.Sub("up"), channels, channels, []int64{2, 2}, config)

	return &Up{Deconv: deconv}
}

// Bilinear reports whether the layer interpolates instead of learning.
func (u *Up) Bilinear() bool {
	return u.Deconv == nil
}

// ForwardT implements ts.ModuleT for Up.
func (u *Up) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	if u.Deconv == nil {
		size := x.MustSize()
		outSize := []int64{size[2] * 2, size[3] * 2}
		return x.MustUpsampleBilinear2d(outSize, true, nil, nil, false)
	}

	return u.Deconv.Forward(x)
}

// ChannelAttention produces a per-channel gate in [0, 1]:
//
//	sigmoid(fc2(relu(fc1(avgpool(x)))) + fc2(relu(fc1(maxpool(x)))))
//
// fc1 and fc2 are shared bias-free 1x1 convs (channels -> channels/ratio -> channels).
// Output shape is [B C 1 1] and broadcasts over H and W.
type ChannelAttention struct {
	Fc1 *nn.Conv2D
	Fc2 *nn.Conv2D
}

// NewChannelAttention creates ChannelAttention. ratio varies per instance.
func NewChannelAttention(p *nn.Path, channels, ratio int64) *ChannelAttention {
	if channels <= 0 || ratio <= 0 {
		panic(fmt.Sprintf("ChannelAttention: channels and ratio must be positive. Got channels=%v, ratio=%v", channels, ratio))
	}
	hidden := channels / ratio
	if hidden < 1 {
		panic(fmt.Sprintf("ChannelAttention: channels/ratio must be >= 1. Got %v/%v", channels, ratio))
	}

	return &ChannelAttention{
		Fc1: Conv2dNoBias(p.Sub("fc1"), channels, hidden, 1, 0, 1),
		Fc2: Conv2dNoBias(p.Sub("fc2"), hidden, channels, 1, 0, 1),
	}
}

func (a *ChannelAttention) excite(pooled *ts.Tensor, train bool) *ts.Tensor {
	h := a.Fc1.ForwardT(pooled, train)
	relu := h.MustRelu(true)
	out := a.Fc2.ForwardT(relu, train)
	relu.MustDrop()

	return out
}

// ForwardT implements ts.ModuleT for ChannelAttention.
func (a *ChannelAttention) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	size := x.MustSize()
	// global max pooling: kernel covers the whole HxW plane
	kernel := []int64{size[2], size[3]}

	avg := x.MustAdaptiveAvgPool2d([]int64{1, 1}, false)
	max := x.MustMaxPool2d(kernel, kernel, []int64{0, 0}, []int64{1, 1}, false, false)

	avgOut := a.excite(avg, train)
	avg.MustDrop()
	maxOut := a.excite(max, train)
	max.MustDrop()

	sum := avgOut.MustAdd(maxOut, true)
	maxOut.MustDrop()

	return sum.MustSigmoid(true)
}
