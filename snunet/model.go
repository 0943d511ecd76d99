package snunet

import (
	"fmt"
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/snunet/base"
	"github.com/sugarme/snunet/encoder"
)

// SNUNetECAM is a siamese nested UNet for change detection with an ensemble
// channel attention module (ECAM) fusing the decoder outputs.
// Ref: https://ieeexplore.ieee.org/document/9355573
type SNUNetECAM struct {
	cfg Config

	encoder  *encoder.SiameseEncoder
	encUps   []*base.Up // encUps[d] upsamples encoder level d; index 0 unused
	pyramidB *Pyramid   // image A first
	pyramidA *Pyramid   // image B first

	ca   *base.ChannelAttention // over concatenated outputs
	ca1  *base.ChannelAttention // over summed outputs
	head *nn.Conv2D
}

// New creates SNUNetECAM from cfg. Every conv weight is drawn from
// N(0, 2/fan_out) and every BatchNorm starts at (1, 0). The initializers are
// reseeded with cfg.Seed, so equal configs give identical parameters.
func New(p *nn.Path, cfg Config) (*SNUNetECAM, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("snunet: invalid config: %w", err)
	}

	base.ManualSeed(cfg.Seed)

	enc := encoder.NewSiameseEncoder(p, cfg.InChannels, cfg.EncoderWidths())

	encUps := make([]*base.Up, cfg.Depth+1)
	for d := int64(1); d <= cfg.Depth; d++ {
		encUps[d] = base.NewUp(p.Sub(fmt.Sprintf("up%d_0", d)), cfg.NodeWidth(d, 0), cfg.Bilinear)
	}

	fused := cfg.FusedWidth()

	return &SNUNetECAM{
		cfg:      cfg,
		encoder:  enc,
		encUps:   encUps,
		pyramidB: NewPyramid(p.Sub("decoder_b"), cfg, AFirst),
		pyramidA: NewPyramid(p.Sub("decoder_a"), cfg, BFirst),
		ca:       base.NewChannelAttention(p.Sub("ca"), fused, cfg.Ratio),
		ca1:      base.NewChannelAttention(p.Sub("ca1"), cfg.HeadWidth, cfg.IntraRatio),
		head:     base.NewClassifierHead(p.Sub("conv_final"), fused, cfg.OutChannels),
	}, nil
}

// NewSNUNetECAM creates SNUNetECAM with default widths for inCh-channel
// images and outCh classes.
func NewSNUNetECAM(p *nn.Path, inCh, outCh int64) *SNUNetECAM {
	net, err := New(p, DefaultConfig(inCh, outCh))
	if err != nil {
		log.Fatal(err)
	}

	return net
}

// Config returns the config the network was built with.
func (n *SNUNetECAM) Config() Config {
	return n.cfg
}

// Encoder returns the shared encoder.
func (n *SNUNetECAM) Encoder() *encoder.SiameseEncoder {
	return n.encoder
}

// Forward validates the image pair and returns raw per-class scores of
// shape [batch OutChannels H W]. No softmax is applied.
func (n *SNUNetECAM) Forward(xA, xB *ts.Tensor, train bool) (*ts.Tensor, error) {
	if err := n.cfg.CheckInputs(xA, xB); err != nil {
		return nil, fmt.Errorf("snunet: %w", err)
	}

	return n.forward(xA, xB, train), nil
}

// ForwardPair is Forward that panics on malformed inputs.
func (n *SNUNetECAM) ForwardPair(xA, xB *ts.Tensor, train bool) *ts.Tensor {
	out, err := n.Forward(xA, xB, train)
	if err != nil {
		panic(err)
	}

	return out
}

func (n *SNUNetECAM) forward(xA, xB *ts.Tensor, train bool) *ts.Tensor {
	featA, featB := n.encoder.ForwardPair(xA, xB, train)

	outB := n.pyramidB.ForwardFeatures(featA, featB, n.encUps, train)
	outA := n.pyramidA.ForwardFeatures(featA, featB, n.encUps, train)

	for i := range featA {
		featA[i].MustDrop()
		featB[i].MustDrop()
	}

	// interleave: [B1 A1 B2 A2 B3 A3]
	stages := make([]*ts.Tensor, 0, 2*len(outB))
	for i := range outB {
		stages = append(stages, outB[i], outA[i])
	}

	logits := n.fuse(stages, train)
	for _, s := range stages {
		s.MustDrop()
	}

	return logits
}

// fuse applies the ECAM head:
//
//	out   = cat(stages)
//	intra = sum(stages)
//	out   = ca(out) * (out + repeat(ca1(intra)))
//	logit = conv_final(out)
func (n *SNUNetECAM) fuse(stages []*ts.Tensor, train bool) *ts.Tensor {
	parts := make([]ts.Tensor, len(stages))
	for i, s := range stages {
		parts[i] = *s
	}
	out := ts.MustCat(parts, 1)

	intra := stages[0].MustAdd(stages[1], false)
	for _, s := range stages[2:] {
		intra = intra.MustAdd(s, true)
	}

	ca1 := n.ca1.ForwardT(intra, train)
	intra.MustDrop()
	// [B head 1 1] -> [B fused 1 1]: one copy per stage, fused = len(stages) * head
	tiled := ca1.MustRepeat([]int64{1, int64(len(stages)), 1, 1}, true)
	injected := out.MustAdd(tiled, false)
	tiled.MustDrop()

	gate := n.ca.ForwardT(out, train)
	out.MustDrop()
	gated := gate.MustMul(injected, true)
	injected.MustDrop()

	logits := n.head.ForwardT(gated, train)
	gated.MustDrop()

	return logits
}
