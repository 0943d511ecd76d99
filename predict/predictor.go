package predict

import (
	"fmt"
	"image"
	"image/color"

	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
	"github.com/sugarme/gotch/vision"

	"github.com/sugarme/snunet/imgutil"
	"github.com/sugarme/snunet/snunet"
)

// Predictor runs a SNUNetECAM model on co-registered image pairs.
type Predictor struct {
	net    *snunet.SNUNetECAM
	device gotch.Device
}

// NewPredictor creates a Predictor. The model's parameters must live on device.
func NewPredictor(net *snunet.SNUNetECAM, device gotch.Device) *Predictor {
	return &Predictor{net: net, device: device}
}

// Result is a per-pixel prediction at model resolution.
type Result struct {
	Width   int
	Height  int
	Classes []uint8   // argmax class per pixel, row-major
	Change  []float64 // 1 - p(class 0) per pixel, row-major
}

// Predict classifies every pixel of the pair (a, b). Both images must have
// the same size; they are resized to the model stride first.
func (p *Predictor) Predict(a, b image.Image) (*Result, error) {
	sizeA, sizeB := a.Bounds().Size(), b.Bounds().Size()
	if sizeA != sizeB {
		return nil, fmt.Errorf("images must be co-registered. Got sizes %v and %v", sizeA, sizeB)
	}

	cfg := p.net.Config()
	stride := int(cfg.Stride())
	xA, err := p.toInput(imgutil.FitStride(a, stride), int(cfg.InChannels))
	if err != nil {
		return nil, err
	}
	defer xA.MustDrop()
	xB, err := p.toInput(imgutil.FitStride(b, stride), int(cfg.InChannels))
	if err != nil {
		return nil, err
	}
	defer xB.MustDrop()

	var (
		probs []float64
		shape []int64
	)
	ts.NoGrad(func() {
		var logits *ts.Tensor
		logits, err = p.net.Forward(xA, xB, false)
		if err != nil {
			return
		}
		shape = logits.MustSize()
		softmax := logits.MustSoftmax(1, gotch.Double, true)
		probs = softmax.Float64Values()
		softmax.MustDrop()
	})
	if err != nil {
		return nil, err
	}

	return newResult(probs, int(shape[1]), int(shape[2]), int(shape[3])), nil
}

func (p *Predictor) toInput(img image.Image, channels int) (*ts.Tensor, error) {
	x, err := imgutil.ToTensor(img, channels)
	if err != nil {
		return nil, err
	}

	return x.MustTo(p.device, true), nil
}

// newResult reads softmax probabilities laid out as [1 classes h w].
func newResult(probs []float64, classes, h, w int) *Result {
	plane := h * w
	r := &Result{
		Width:   w,
		Height:  h,
		Classes: make([]uint8, plane),
		Change:  make([]float64, plane),
	}

	for i := 0; i < plane; i++ {
		best := 0
		for c := 1; c < classes; c++ {
			if probs[c*plane+i] > probs[best*plane+i] {
				best = c
			}
		}
		r.Classes[i] = uint8(best)
		r.Change[i] = 1 - probs[i]
	}

	return r
}

// ChangedPixels returns number of pixels not classified as class 0.
func (r *Result) ChangedPixels() int {
	n := 0
	for _, c := range r.Classes {
		if c != 0 {
			n++
		}
	}
	return n
}

// ChangeRatio returns the fraction of changed pixels.
func (r *Result) ChangeRatio() float64 {
	if len(r.Classes) == 0 {
		return 0
	}
	return float64(r.ChangedPixels()) / float64(len(r.Classes))
}

// MeanChange returns the average change score.
func (r *Result) MeanChange() float64 {
	if len(r.Change) == 0 {
		return 0
	}
	var sum float64
	for _, v := range r.Change {
		sum += v
	}
	return sum / float64(len(r.Change))
}

// Mask returns a binary change mask: 255 where changed, 0 elsewhere.
func (r *Result) Mask() *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
	for i, c := range r.Classes {
		if c != 0 {
			mask.SetGray(i%r.Width, i/r.Width, color.Gray{Y: 255})
		}
	}
	return mask
}

// SaveMask writes the binary change mask as an image file.
func (r *Result) SaveMask(path string) error {
	mask := r.Mask()
	imgTs, err := ts.NewTensorFromData(mask.Pix, []int64{1, int64(r.Height), int64(r.Width)})
	if err != nil {
		return err
	}
	defer imgTs.MustDrop()

	return vision.Save(imgTs, path)
}

// Summarize reports the result under id.
func (r *Result) Summarize(id string) Summary {
	return Summary{
		ID:            id,
		Width:         r.Width,
		Height:        r.Height,
		ChangedPixels: r.ChangedPixels(),
		ChangeRatio:   r.ChangeRatio(),
		MeanScore:     r.MeanChange(),
		RLE:           RLEString(EncodeRLE(r.Classes, r.Width, r.Height)),
	}
}
