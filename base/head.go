package base

import "github.com/sugarme/gotch/nn"

// NewClassifierHead creates the 1x1 projection from fused features to
// per-pixel class scores. No activation is applied.
func NewClassifierHead(p *nn.Path, cIn, classes int64) *nn.Conv2D {
	return Conv2d(p, cIn, classes, 1, 0, 1)
}
