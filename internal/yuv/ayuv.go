package yuv

import (
	"fmt"

	"github.com/andresmejia3/backdrop/internal/types"
)

// AYUVStride is the number of interleaved bytes per AYUV pixel.
const AYUVStride = 4

// AYUV is an interleaved alpha, luma, chroma image (channel order A, Y, U, V)
// at full resolution for every channel.
type AYUV struct {
	Width  int
	Height int
	Pix    []byte
}

// NewAYUV wraps pix as a width x height AYUV image without copying.
func NewAYUV(pix []byte, width, height int) (*AYUV, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", types.ErrGeometry, width, height)
	}
	if need := width * height * AYUVStride; len(pix) != need {
		return nil, fmt.Errorf("%w: AYUV buffer has %d bytes, %dx%d needs %d", types.ErrGeometry, len(pix), width, height, need)
	}
	return &AYUV{Width: width, Height: height, Pix: pix}, nil
}

// Len returns the number of pixels.
func (a *AYUV) Len() int { return a.Width * a.Height }

// At returns the four channels of pixel i (row-major).
func (a *AYUV) At(i int) (alpha, y, u, v byte) {
	p := a.Pix[i*AYUVStride : i*AYUVStride+AYUVStride : i*AYUVStride+AYUVStride]
	return p[0], p[1], p[2], p[3]
}

// YUV returns the colour channels of pixel i, skipping alpha.
func (a *AYUV) YUV(i int) (y, u, v byte) {
	p := a.Pix[i*AYUVStride+1 : i*AYUVStride+AYUVStride : i*AYUVStride+AYUVStride]
	return p[0], p[1], p[2]
}

// Set writes the four channels of pixel i.
func (a *AYUV) Set(i int, alpha, y, u, v byte) {
	p := a.Pix[i*AYUVStride : i*AYUVStride+AYUVStride : i*AYUVStride+AYUVStride]
	p[0], p[1], p[2], p[3] = alpha, y, u, v
}

// SetYUV writes the colour channels of pixel i and leaves alpha untouched.
func (a *AYUV) SetYUV(i int, y, u, v byte) {
	p := a.Pix[i*AYUVStride+1 : i*AYUVStride+AYUVStride : i*AYUVStride+AYUVStride]
	p[0], p[1], p[2] = y, u, v
}

// Clone returns a deep copy.
func (a *AYUV) Clone() *AYUV {
	return &AYUV{Width: a.Width, Height: a.Height, Pix: append([]byte(nil), a.Pix...)}
}

// CopyFrom overwrites a with the pixels of src. Both must share a geometry.
func (a *AYUV) CopyFrom(src *AYUV) {
	if a.Width != src.Width || a.Height != src.Height {
		panic(fmt.Sprintf("yuv: CopyFrom %dx%d into %dx%d", src.Width, src.Height, a.Width, a.Height))
	}
	copy(a.Pix, src.Pix)
}
