package base

import (
	"log"
	"math"
	"sync"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultSeed seeds the initializers until ManualSeed is called.
const DefaultSeed int64 = 42

// Every initializer in this package draws from one source. Building the same
// layers after the same ManualSeed call yields identical parameters.
var (
	srcMu sync.Mutex
	src   rand.Source = rand.NewSource(uint64(DefaultSeed))
)

// ManualSeed resets the source shared by the initializers of this package.
func ManualSeed(seed int64) {
	srcMu.Lock()
	src = rand.NewSource(uint64(seed))
	srcMu.Unlock()
}

type rander interface {
	Rand() float64
}

// draw samples n values from the distribution dist builds over the shared source.
func draw(n int, dist func(src rand.Source) rander) []float32 {
	srcMu.Lock()
	defer srcMu.Unlock()

	d := dist(src)
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(d.Rand())
	}
	return data
}

func fromValues(data []float32, dims []int64, device gotch.Device) *ts.Tensor {
	x, err := ts.NewTensorFromData(data, dims)
	if err != nil {
		log.Fatalf("Init tensor %v error: %v\n", dims, err)
	}

	return x.MustTo(device, true)
}

func set(x *ts.Tensor, data []float32) {
	src := fromValues(data, x.MustSize(), x.MustDevice())
	x.Copy_(src)
	src.MustDrop()
}

// normalInit draws N(mean, std^2).
type normalInit struct {
	mean, std float64
}

// NewNormalInit creates a seeded normal initializer.
func NewNormalInit(mean, std float64) nn.Init {
	return normalInit{mean: mean, std: std}
}

func (n normalInit) dist(src rand.Source) rander {
	return distuv.Normal{Mu: n.mean, Sigma: n.std, Src: src}
}

func (n normalInit) InitTensor(dims []int64, device gotch.Device) *ts.Tensor {
	return fromValues(draw(ts.FlattenDim(dims), n.dist), dims, device)
}

func (n normalInit) Set(x *ts.Tensor) {
	set(x, draw(ts.FlattenDim(x.MustSize()), n.dist))
}

// uniformInit draws U(lo, up).
type uniformInit struct {
	lo, up float64
}

// NewUniformInit creates a seeded uniform initializer.
func NewUniformInit(lo, up float64) nn.Init {
	return uniformInit{lo: lo, up: up}
}

func (u uniformInit) dist(src rand.Source) rander {
	return distuv.Uniform{Min: u.lo, Max: u.up, Src: src}
}

func (u uniformInit) InitTensor(dims []int64, device gotch.Device) *ts.Tensor {
	return fromValues(draw(ts.FlattenDim(dims), u.dist), dims, device)
}

func (u uniformInit) Set(x *ts.Tensor) {
	set(x, draw(ts.FlattenDim(x.MustSize()), u.dist))
}

// KaimingFanOut returns a normal initializer N(0, 2/fan_out) where
// fan_out = cOut * ksize * ksize, i.e. He init in fan-out mode with ReLU gain.
func KaimingFanOut(cOut, ksize int64) nn.Init {
	fanOut := float64(cOut * ksize * ksize)
	return NewNormalInit(0.0, math.Sqrt(2.0/fanOut))
}

// FanInUniform returns U(-1/sqrt(fan_in), 1/sqrt(fan_in)), the torch default
// for layers left out of Kaiming init (transposed convs).
func FanInUniform(fanIn int64) nn.Init {
	bound := 1.0 / math.Sqrt(float64(fanIn))
	return NewUniformInit(-bound, bound)
}
