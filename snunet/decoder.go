package snunet

import (
	"fmt"
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/snunet/base"
)

// Order selects which image's features lead every concatenation of a Pyramid.
type Order int

const (
	// AFirst concatenates image A before image B and upsamples image B's
	// deeper encoder maps.
	AFirst Order = iota
	// BFirst concatenates image B before image A and upsamples image A's
	// deeper encoder maps.
	BFirst
)

func (o Order) String() string {
	switch o {
	case AFirst:
		return "AFirst"
	case BFirst:
		return "BFirst"
	default:
		return fmt.Sprintf("Order(%d)", int(o))
	}
}

// Stage is decoder node (d, s) of the nested pyramid.
type Stage struct {
	Conv *base.ConvBlock
	Up   *base.Up // upsamples this node for stage (d-1, s+1); nil at depth 0
}

// Pyramid is one nested (UNet++) decoder with dense skip connections.
// Stage (d, s) consumes, in order:
//
//	lead[d], follow[d], node(d, 1) ... node(d, s-1), up(node(d+1, s-1))
//
// where node(d, 0) is follow[d]. Depth-0 stages are the pyramid's outputs.
type Pyramid struct {
	order  Order
	depth  int64
	stages [][]*Stage // stages[d][s-1]
}

// NewPyramid creates a decoder pyramid for cfg.
func NewPyramid(p *nn.Path, cfg Config, order Order) *Pyramid {
	stages := make([][]*Stage, cfg.Depth)
	for d := int64(0); d < cfg.Depth; d++ {
		stages[d] = make([]*Stage, cfg.Depth-d)
		for s := int64(1); d+s <= cfg.Depth; s++ {
			w := cfg.NodeWidth(d, s)
			stage := &Stage{
				Conv: base.NewConvBlock(p.Sub(fmt.Sprintf("conv%d_%d", d, s)), cfg.StageInput(d, s), w, w),
			}
			if d > 0 {
				stage.Up = base.NewUp(p.Sub(fmt.Sprintf("up%d_%d", d, s)), w, cfg.Bilinear)
			}
			stages[d][s-1] = stage
		}
	}

	return &Pyramid{
		order:  order,
		depth:  cfg.Depth,
		stages: stages,
	}
}

// Order returns the concatenation order of the pyramid.
func (p *Pyramid) Order() Order {
	return p.order
}

// Stage returns decoder node (d, s), s >= 1.
func (p *Pyramid) Stage(d, s int64) *Stage {
	if d < 0 || s < 1 || d+s > p.depth {
		log.Fatalf("Invalid pyramid stage (%v, %v) for depth %v\n", d, s, p.depth)
	}
	return p.stages[d][s-1]
}

// ForwardFeatures decodes the encoder features of both images.
//
// featA and featB hold depth+1 encoder levels each. encUps[d] upsamples
// encoder level d (index 0 unused); it is shared between pyramids.
// Returns the depth-0 outputs for steps 1..depth.
func (p *Pyramid) ForwardFeatures(featA, featB []*ts.Tensor, encUps []*base.Up, train bool) []*ts.Tensor {
	if int64(len(featA)) != p.depth+1 || int64(len(featB)) != p.depth+1 {
		log.Fatalf("Expected %v encoder levels per image. Got %v and %v\n", p.depth+1, len(featA), len(featB))
	}

	lead, follow := featA, featB
	if p.order == BFirst {
		lead, follow = featB, featA
	}

	// nodes[d][s]; nodes[d][0] stays nil, encoder maps are read from lead/follow.
	nodes := make([][]*ts.Tensor, p.depth)
	for d := range nodes {
		nodes[d] = make([]*ts.Tensor, p.depth-int64(d)+1)
	}

	// walk anti-diagonals k = d+s so (d+1, s-1) and (d, <s) already exist
	for k := int64(1); k <= p.depth; k++ {
		for d := k - 1; d >= 0; d-- {
			s := k - d
			parts := []ts.Tensor{*lead[d], *follow[d]}
			for j := int64(1); j < s; j++ {
				parts = append(parts, *nodes[d][j])
			}

			var up *ts.Tensor
			if s == 1 {
				up = encUps[d+1].ForwardT(follow[d+1], train)
			} else {
				up = p.stages[d+1][s-2].Up.ForwardT(nodes[d+1][s-1], train)
			}
			parts = append(parts, *up)

			cat := ts.MustCat(parts, 1)
			up.MustDrop()
			nodes[d][s] = p.stages[d][s-1].Conv.ForwardT(cat, train)
			cat.MustDrop()
		}
	}

	for d := int64(1); d < p.depth; d++ {
		for s := int64(1); d+s <= p.depth; s++ {
			nodes[d][s].MustDrop()
		}
	}

	return nodes[0][1:]
}
