package snunet

import (
	"fmt"

	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/snunet/base"
)

// Config holds SNUNet-CD/ECAM hyper-parameters.
type Config struct {
	InChannels  int64 // channels of each input image
	OutChannels int64 // number of classes
	BaseWidth   int64 // n1, width of the finest encoder level
	HeadWidth   int64 // width of every depth-0 decoder stage
	Depth       int64 // decoder depth; the encoder has Depth+1 levels
	Bilinear    bool  // bilinear upsampling instead of ConvTranspose2d
	Ratio       int64 // ChannelAttention ratio over the concatenated outputs
	IntraRatio  int64 // ChannelAttention ratio over the summed outputs
	Seed        int64 // weight initialization seed
}

// DefaultConfig returns the reference configuration:
// filters [24 48 96 192 384 16], transposed-conv upsampling, ratios 16 and 4.
func DefaultConfig(inCh, outCh int64) Config {
	return Config{
		InChannels:  inCh,
		OutChannels: outCh,
		BaseWidth:   24,
		HeadWidth:   16,
		Depth:       3,
		Bilinear:    false,
		Ratio:       16,
		IntraRatio:  16 / 4,
		Seed:        base.DefaultSeed,
	}
}

// Filters returns BaseWidth*2^i for i in [0, Depth+1] followed by HeadWidth.
// The last encoder width is declared but unused by the network.
func (c Config) Filters() []int64 {
	filters := make([]int64, 0, c.Depth+3)
	w := c.BaseWidth
	for i := int64(0); i <= c.Depth+1; i++ {
		filters = append(filters, w)
		w *= 2
	}
	return append(filters, c.HeadWidth)
}

// EncoderWidths returns the widths of the Depth+1 encoder levels.
func (c Config) EncoderWidths() []int64 {
	return c.Filters()[:c.Depth+1]
}

// NodeWidth returns the channel count of node (d, s) in the nested pyramid.
// s == 0 is the encoder output at depth d.
func (c Config) NodeWidth(d, s int64) int64 {
	switch {
	case s == 0:
		return c.BaseWidth << uint(d)
	case d == 0:
		return c.HeadWidth
	default:
		return c.BaseWidth << uint(d)
	}
}

// StageInput returns the input width of decoder stage (d, s): both encoder
// maps at depth d, stages (d, 1..s-1) and the upsampled node (d+1, s-1).
func (c Config) StageInput(d, s int64) int64 {
	cIn := 2 * c.NodeWidth(d, 0)
	for j := int64(1); j < s; j++ {
		cIn += c.NodeWidth(d, j)
	}
	return cIn + c.NodeWidth(d+1, s-1)
}

// FusedWidth returns width of the concatenated depth-0 outputs of both pyramids.
func (c Config) FusedWidth() int64 {
	return 2 * c.Depth * c.HeadWidth
}

// Stride returns the factor input height and width must be divisible by.
func (c Config) Stride() int64 {
	return 1 << uint(c.Depth)
}

// Validate checks the config describes a buildable graph.
func (c Config) Validate() error {
	switch {
	case c.InChannels <= 0:
		return fmt.Errorf("InChannels must be positive. Got %v", c.InChannels)
	case c.OutChannels <= 0:
		return fmt.Errorf("OutChannels must be positive. Got %v", c.OutChannels)
	case c.BaseWidth <= 0:
		return fmt.Errorf("BaseWidth must be positive. Got %v", c.BaseWidth)
	case c.HeadWidth <= 0:
		return fmt.Errorf("HeadWidth must be positive. Got %v", c.HeadWidth)
	case c.Depth < 1 || c.Depth > 8:
		return fmt.Errorf("Depth must be in [1, 8]. Got %v", c.Depth)
	case c.Ratio <= 0 || c.FusedWidth()/c.Ratio < 1:
		return fmt.Errorf("Ratio %v too large for fused width %v", c.Ratio, c.FusedWidth())
	case c.IntraRatio <= 0 || c.HeadWidth/c.IntraRatio < 1:
		return fmt.Errorf("IntraRatio %v too large for head width %v", c.IntraRatio, c.HeadWidth)
	}

	return nil
}

// CheckInputs verifies an image pair can be fed to a network built from c.
func (c Config) CheckInputs(xA, xB *ts.Tensor) error {
	if xA == nil || xB == nil {
		return fmt.Errorf("input tensors must not be nil")
	}

	sizeA := xA.MustSize()
	sizeB := xB.MustSize()
	if len(sizeA) != 4 {
		return fmt.Errorf("xA: expected 4D input [batch channel height width]. Got shape %v", sizeA)
	}
	if len(sizeB) != 4 {
		return fmt.Errorf("xB: expected 4D input [batch channel height width]. Got shape %v", sizeB)
	}
	for i := range sizeA {
		if sizeA[i] != sizeB[i] {
			return fmt.Errorf("xA and xB must have identical shapes. Got %v and %v", sizeA, sizeB)
		}
	}
	if sizeA[0] < 1 {
		return fmt.Errorf("batch size must be positive. Got shape %v", sizeA)
	}
	if sizeA[1] != c.InChannels {
		return fmt.Errorf("expected %v input channels. Got %v (shape %v)", c.InChannels, sizeA[1], sizeA)
	}

	stride := c.Stride()
	h, w := sizeA[2], sizeA[3]
	if h < stride || h%stride != 0 {
		return fmt.Errorf("height %v must be a positive multiple of %v", h, stride)
	}
	if w < stride || w%stride != 0 {
		return fmt.Errorf("width %v must be a positive multiple of %v", w, stride)
	}

	return nil
}
