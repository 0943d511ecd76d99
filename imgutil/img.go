package imgutil

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	ts "github.com/sugarme/gotch/tensor"
	"golang.org/x/image/draw"
)

// ReadImage reads image from file.
func ReadImage(filename string) (image.Image, error) {
	ext := filepath.Ext(filename)
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var img image.Image
	switch ext {
	case ".png", ".PNG":
		img, err = png.Decode(f)
	case ".jpg", ".jpeg", ".JPG", ".JPEG":
		img, err = jpeg.Decode(f)
	case ".tiff", ".tif", ".TIFF", ".TIF":
		img, err = tiff.Decode(f)
	default:
		return nil, fmt.Errorf("Unsupported image format: %v", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %v: %w", filename, err)
	}

	return img, nil
}

// SavePNG encodes img to a png file.
func SavePNG(img image.Image, filename string) error {
	out, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}

// FitStride resizes img down to the nearest multiple of stride in each
// dimension (at least stride). Images already aligned are returned as is.
func FitStride(img image.Image, stride int) image.Image {
	size := img.Bounds().Size()
	w := fitDim(size.X, stride)
	h := fitDim(size.Y, stride)
	if w == size.X && h == size.Y {
		return img
	}

	return imaging.Resize(img, w, h, imaging.Lanczos)
}

func fitDim(n, stride int) int {
	if n < stride {
		return stride
	}
	return n - n%stride
}

// ToNRGBA copies img into a zero-origin NRGBA buffer.
func ToNRGBA(img image.Image) *image.NRGBA {
	size := img.Bounds().Size()
	rec := image.Rectangle{image.Point{}, size}
	dst := image.NewNRGBA(rec)
	draw.Copy(dst, image.Point{}, img, img.Bounds(), draw.Src, nil)

	return dst
}

// ToTensor converts img to a float tensor of shape [1 channels H W]
// with values in [0, 1]. channels is 3 (RGB) or 1 (luminosity).
func ToTensor(img image.Image, channels int) (*ts.Tensor, error) {
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("Unsupported channel count: %v. Expected 1 or 3", channels)
	}

	src := ToNRGBA(img)
	size := src.Bounds().Size()
	w, h := size.X, size.Y
	plane := w * h
	data := make([]float32, channels*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.NRGBAAt(x, y)
			i := y*w + x
			if channels == 1 {
				data[i] = float32(toGrayScale(float64(c.R), float64(c.G), float64(c.B)))
				continue
			}
			data[i] = float32(c.R) / 255
			data[plane+i] = float32(c.G) / 255
			data[2*plane+i] = float32(c.B) / 255
		}
	}

	return ts.NewTensorFromData(data, []int64{1, int64(channels), int64(h), int64(w)})
}

// toGrayScale converts RGB values to a [0, 1] luminosity.
func toGrayScale(r, g, b float64) float64 {
	lum := 0.299*r + 0.587*g + 0.114*b
	return lum / 255
}

// ResizeMask scales a class mask to w x h without mixing labels.
func ResizeMask(mask image.Image, w, h int) image.Image {
	return resize.Resize(uint(w), uint(h), mask, resize.NearestNeighbor)
}

// Overlay tints the pixels of img where mask is non-zero in red with the
// given opacity. mask must have img's size.
func Overlay(img, mask image.Image, opacity uint8) *image.RGBA {
	size := img.Bounds().Size()
	rec := image.Rectangle{image.Point{}, size}
	dst := image.NewRGBA(rec)
	draw.Draw(dst, rec, img, img.Bounds().Min, draw.Src)

	alpha := image.NewAlpha(rec)
	mb := mask.Bounds()
	for y := 0; y < size.Y && y < mb.Dy(); y++ {
		for x := 0; x < size.X && x < mb.Dx(); x++ {
			g := color.GrayModel.Convert(mask.At(mb.Min.X+x, mb.Min.Y+y)).(color.Gray)
			if g.Y > 0 {
				alpha.SetAlpha(x, y, color.Alpha{A: opacity})
			}
		}
	}

	red := image.NewUniform(color.RGBA{R: 255, A: 255})
	draw.DrawMask(dst, rec, red, image.Point{}, alpha, image.Point{}, draw.Over)

	return dst
}
