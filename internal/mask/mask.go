// Package mask turns the low resolution output of a segmentation model into a
// full resolution alpha mask and extracts the background colour planes of the
// current frame.
package mask

import (
	"fmt"
	"math"

	"github.com/andresmejia3/backdrop/internal/blur"
	"github.com/andresmejia3/backdrop/internal/types"
	"github.com/andresmejia3/backdrop/internal/yuv"
)

// Default blur strengths.
const (
	DefaultSigmaMask       = 1.2
	DefaultSigmaBackground = 6.0
)

// Builder owns the per-frame mask and background buffers. They are rebuilt
// by every Build call and reused between frames. A Builder is not safe for
// concurrent use.
type Builder struct {
	width, height int
	sigmaMask     float64
	sigmaBg       float64

	alpha   []float32
	bgY     []float32
	bgU     []float32
	bgV     []float32
	scratch []float32

	// Destination column to tensor column, cached per tensor width.
	xmap    []int
	xmapFor int
}

// NewBuilder allocates buffers for frames of the given geometry.
func NewBuilder(width, height int, sigmaMask, sigmaBg float64) (*Builder, error) {
	if err := yuv.CheckGeometry(width, height); err != nil {
		return nil, err
	}
	n := width * height
	return &Builder{
		width:     width,
		height:    height,
		sigmaMask: sigmaMask,
		sigmaBg:   sigmaBg,
		alpha:     make([]float32, n),
		bgY:       make([]float32, n),
		bgU:       make([]float32, n),
		bgV:       make([]float32, n),
		scratch:   make([]float32, n),
		xmap:      make([]int, width),
	}, nil
}

// Alpha returns the person weight of every luma sample, row-major, in [0, 1].
func (b *Builder) Alpha() []float32 { return b.alpha }

// Background returns the Y, U and V planes of the last frame, normalized to [0, 1].
func (b *Builder) Background() (y, u, v []float32) { return b.bgY, b.bgU, b.bgV }

// Build decodes t, upscales it to the frame geometry with nearest-neighbour
// sampling and blurs the result. The frame's colour planes are copied at full
// resolution and, when blurBackground is set, blurred as well.
func (b *Builder) Build(t types.Tensor, frame yuv.Frame, blurBackground bool) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if frame.Width != b.width || frame.Height != b.height {
		return fmt.Errorf("%w: frame is %dx%d, mask builder expects %dx%d", types.ErrGeometry, frame.Width, frame.Height, b.width, b.height)
	}

	if b.xmapFor != t.Width {
		for x := range b.xmap {
			b.xmap[x] = x * t.Width / b.width
		}
		b.xmapFor = t.Width
	}

	w, h := b.width, b.height
	for y := 0; y < h; y++ {
		sy := y * t.Height / h
		srcRow := sy * t.Width
		row := y * w
		for x := 0; x < w; x++ {
			si := srcRow + b.xmap[x]
			switch t.Kind {
			case types.Logits:
				b.alpha[row+x] = Softmax(t.Data[2*si], t.Data[2*si+1])
			default:
				b.alpha[row+x] = unit(t.Data[si])
			}

			ly, lu, lv := frame.At(x, y)
			b.bgY[row+x] = float32(ly) / 255
			b.bgU[row+x] = float32(lu) / 255
			b.bgV[row+x] = float32(lv) / 255
		}
	}

	blur.FastGaussianBlur(b.alpha, b.scratch, w, h, b.sigmaMask)
	// float rounding in the running sums can step just outside [0, 1]
	for i, a := range b.alpha {
		b.alpha[i] = unit(a)
	}

	if blurBackground {
		for _, plane := range [...][]float32{b.bgY, b.bgU, b.bgV} {
			blur.FastGaussianBlur(plane, b.scratch, w, h, b.sigmaBg)
		}
	}
	return nil
}

// Softmax returns the person probability of a (background, person) logit
// pair. The larger logit is subtracted first so large magnitudes cannot overflow.
func Softmax(bg, person float32) float32 {
	shift := math.Max(float64(bg), float64(person))
	eb := math.Exp(float64(bg) - shift)
	ep := math.Exp(float64(person) - shift)
	p := float32(ep / (eb + ep))
	if p != p {
		return 0
	}
	return p
}

func unit(v float32) float32 {
	switch {
	case v != v || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
