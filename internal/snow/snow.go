// Package snow simulates a fixed population of falling translucent disks and
// rasterizes them into background colour planes.
package snow

import (
	"math"
	"math/rand/v2"

	"github.com/andresmejia3/backdrop/internal/yuv"
)

const (
	// DefaultCount is the population size used by render sessions.
	DefaultCount = 500

	shapeFactor   = 1000
	timeStep      = 0.0004
	swayFrequency = 10
	swayAmplitude = 200
	baseSpeed     = 0.5
	sizeSpeed     = 0.04 * 200

	// Flakes larger than this are also drawn over the subject.
	foregroundRadius = 5.5
)

// Particle is one snowflake.
type Particle struct {
	X, Y    float64
	Size    float64
	Radius  float64
	Anchor  float64
	Opacity float64
}

// Field is the particle population of one render session. It is created once
// and mutated by every Step. A Field is not safe for concurrent use.
type Field struct {
	width, height int
	particles     []Particle
	t             float64
}

// NewField scatters count particles uniformly over a width x height frame.
// The same seed always produces the same population.
func NewField(width, height, count int, seed uint64) *Field {
	rng := rand.New(rand.NewPCG(seed, seed^0x5f3759df))
	ps := make([]Particle, count)
	for i := range ps {
		x := rng.Float64() * float64(width)
		y := rng.Float64() * float64(height)
		size := Exp2Like(rng.Float64(), shapeFactor)
		ps[i] = Particle{
			X:       x,
			Y:       y,
			Size:    size,
			Radius:  2 + 4*size,
			Anchor:  math.Trunc(x),
			Opacity: rng.Float64(),
		}
	}
	return &Field{width: width, height: height, particles: ps}
}

// Particles exposes the population for inspection.
func (f *Field) Particles() []Particle { return f.particles }

// Step advances the simulation by one frame. Vertical motion accumulates and
// wraps at the bottom edge; horizontal position is recomputed from each
// particle's anchor so it sways without drifting.
func (f *Field) Step() {
	w, h := float64(f.width), float64(f.height)
	sway := math.Sin(f.t*swayFrequency) * swayAmplitude
	for i := range f.particles {
		p := &f.particles[i]
		p.Y = wrap(p.Y+baseSpeed+sizeSpeed*p.Size, h)
		p.X = wrap(p.Anchor+sway, w)
	}
	f.t += timeStep
}

// Render draws every particle into the background planes, which hold studio
// range Y, U and V normalized to [0, 1]. Large particles are also drawn onto
// frame. Only pixels inside a particle's radius are written.
func (f *Field) Render(bgY, bgU, bgV []float32, frame yuv.Frame) {
	w, h := f.width, f.height
	for _, p := range f.particles {
		x0u := int(p.X-p.Radius) - 1
		y0u := int(p.Y-p.Radius) - 1
		x0, x1 := clampSpan(x0u, int(float64(x0u)+2.5*p.Radius+2), w)
		y0, y1 := clampSpan(y0u, int(float64(y0u)+2.5*p.Radius+2), h)
		front := p.Radius > foregroundRadius

		for py := y0; py < y1; py++ {
			for px := x0; px < x1; px++ {
				i := py*w + px
				dx, dy := float64(px)-p.X, float64(py)-p.Y
				var d float64
				if i&1 == 0 {
					d = Octagonal(dx, dy)
				} else {
					d = Euclidean(dx, dy)
				}
				if d >= p.Radius {
					continue
				}
				cov := (1 - Exp2Like(d/p.Radius, shapeFactor)) * p.Opacity

				y, u, v := whiten(float64(bgY[i])*255, float64(bgU[i])*255, float64(bgV[i])*255, cov)
				bgY[i], bgU[i], bgV[i] = unit(y/255), unit(u/255), unit(v/255)

				if front {
					drawForeground(frame, px, py, cov)
				}
			}
		}
	}
}

// drawForeground blends white into the frame at (x, y). A chroma sample is
// shared by a 2x2 block, so it is only updated from the block's top-left pixel.
func drawForeground(frame yuv.Frame, x, y int, cov float64) {
	fy, fu, fv := frame.At(x, y)
	ny, nu, nv := whiten(float64(fy), float64(fu), float64(fv), cov)
	frame.Data[frame.YIndex(x, y)] = yuv.Clamp8(math.Round(ny))
	if x&1 == 0 && y&1 == 0 {
		frame.Data[frame.UIndex(x, y)] = yuv.Clamp8(math.Round(nu))
		frame.Data[frame.VIndex(x, y)] = yuv.Clamp8(math.Round(nv))
	}
}

// whiten composites white with weight cov over a studio range YUV sample.
func whiten(y, u, v, cov float64) (float64, float64, float64) {
	r, g, b := yuv.StudioToRGB(y, u, v)
	r += (255 - r) * cov
	g += (255 - g) * cov
	b += (255 - b) * cov
	return yuv.StudioFromRGB(r, g, b)
}

// Exp2Like maps v in [0, 1] onto [0, 1] with an exponential curve biased
// towards small values. Larger factors bend the curve harder.
func Exp2Like(v, factor float64) float64 {
	return (math.Exp2(v*math.Log2(factor+1)) - 1) / factor
}

const octagonalScale = (1 + 1/(4-2*math.Sqrt2)) / 2

// Octagonal approximates the Euclidean length of (dx, dy) without a square root.
func Octagonal(dx, dy float64) float64 {
	ax, ay := math.Abs(dx), math.Abs(dy)
	return octagonalScale * math.Min((ax+ay)/math.Sqrt2, math.Max(ax, ay))
}

// Euclidean returns the length of (dx, dy).
func Euclidean(dx, dy float64) float64 {
	return math.Sqrt(dx*dx + dy*dy)
}

func wrap(v, n float64) float64 {
	v = math.Mod(v, n)
	if v < 0 {
		v += n
	}
	if v >= n {
		v = 0
	}
	return v
}

func clampSpan(lo, hi, n int) (int, int) {
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func unit(v float64) float32 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 1:
		return 1
	}
	return float32(v)
}
