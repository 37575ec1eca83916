package effects

import (
	"github.com/andresmejia3/backdrop/internal/yuv"
)

// layers carries the per-frame inputs a background strategy may read.
type layers struct {
	planeY, planeU, planeV []float32
	image                  *yuv.AYUV
}

// backgroundStrategy yields the background colour behind luma sample i on
// the 0..255 scale. Every mode except bypass is one strategy value; they all
// share the blend loop in composite.
type backgroundStrategy interface {
	background(l *layers, i int) (y, u, v float32)
}

// flatColour replaces the background with one colour.
type flatColour struct{ y, u, v float32 }

func (c flatColour) background(_ *layers, _ int) (float32, float32, float32) {
	return c.y, c.u, c.v
}

// framePlanes samples the frame's own normalized background planes, which
// may have been blurred or snowed on.
type framePlanes struct{ scale float32 }

func (p framePlanes) background(l *layers, i int) (float32, float32, float32) {
	return l.planeY[i] * p.scale, l.planeU[i] * p.scale, l.planeV[i] * p.scale
}

// sourceImage samples the loaded AYUV background, skipping its alpha channel.
type sourceImage struct{}

func (sourceImage) background(l *layers, i int) (float32, float32, float32) {
	y, u, v := l.image.YUV(i)
	return float32(y), float32(u), float32(v)
}

// strategyFor returns the strategy of m, or nil for bypass.
func strategyFor(m Mode, cfg Config) backgroundStrategy {
	switch m {
	case White:
		return flatColour{y: 0xFF, u: 0x80, v: 0x80}
	case Black:
		return flatColour{y: 0x00, u: 0x80, v: 0x80}
	case BlurBackground:
		return framePlanes{scale: 255}
	case Snowflakes:
		return framePlanes{scale: float32(cfg.SnowScale)}
	case SnowflakesBlur:
		return framePlanes{scale: float32(cfg.SnowBlurScale)}
	case VirtualBackground, VirtualBackgroundBlurred, ExternalImage:
		return sourceImage{}
	}
	return nil
}

// composite blends the frame over the background in place:
// out = frame*a + background*(1-a). Luma is blended per sample. Each chroma
// sample covers a 2x2 luma block and is blended once with the block's mean
// alpha and mean background chroma.
func composite(frame yuv.Frame, alpha []float32, bg backgroundStrategy, l *layers) {
	w := frame.Width
	cw := frame.ChromaStride()
	luma, cu, cv := frame.Y(), frame.U(), frame.V()

	for by := 0; by < frame.Height; by += 2 {
		for bx := 0; bx < w; bx += 2 {
			var sa, su, sv float32
			for _, i := range [4]int{by*w + bx, by*w + bx + 1, (by+1)*w + bx, (by+1)*w + bx + 1} {
				a := alpha[i]
				y, u, v := bg.background(l, i)
				luma[i] = blend(luma[i], y, a)
				sa += a
				su += u
				sv += v
			}
			ci := (by/2)*cw + bx/2
			a := sa / 4
			cu[ci] = blend(cu[ci], su/4, a)
			cv[ci] = blend(cv[ci], sv/4, a)
		}
	}
}

func blend(fg byte, bg, a float32) byte {
	return yuv.Clamp8(float64(float32(fg)*a + bg*(1-a)))
}
