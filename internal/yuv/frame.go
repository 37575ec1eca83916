// Package yuv holds the pixel layouts the pipeline moves around: planar I420
// camera frames and interleaved AYUV background images, plus the colour
// conversions between them and RGB.
package yuv

import (
	"fmt"

	"github.com/andresmejia3/backdrop/internal/types"
)

// FrameSize returns the byte length of an I420 frame of the given geometry.
func FrameSize(width, height int) int {
	return width*height + 2*(width/2)*(height/2)
}

// CheckGeometry rejects dimensions the I420 layout cannot represent.
func CheckGeometry(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", types.ErrGeometry, width, height)
	}
	if width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("%w: dimensions must be even for I420, got %dx%d", types.ErrGeometry, width, height)
	}
	return nil
}

// Frame wraps an I420 buffer: a full resolution luma plane followed by two
// quarter resolution chroma planes. It never copies or resizes Data.
type Frame struct {
	Width  int
	Height int
	Data   []byte

	uOff    int
	vOff    int
	cStride int
}

// NewFrame validates the geometry and buffer length and wraps data without copying.
func NewFrame(data []byte, width, height int) (Frame, error) {
	if err := CheckGeometry(width, height); err != nil {
		return Frame{}, err
	}
	if need := FrameSize(width, height); len(data) < need {
		return Frame{}, fmt.Errorf("%w: frame buffer has %d bytes, %dx%d needs %d", types.ErrGeometry, len(data), width, height, need)
	}
	return Frame{
		Width:   width,
		Height:  height,
		Data:    data,
		uOff:    width * height,
		vOff:    width*height + (width/2)*(height/2),
		cStride: width / 2,
	}, nil
}

// YIndex returns the offset of the luma sample at (x, y).
func (f Frame) YIndex(x, y int) int {
	return y*f.Width + x
}

// UIndex returns the offset of the first chroma sample covering (x, y).
func (f Frame) UIndex(x, y int) int {
	return f.uOff + (y/2)*f.cStride + x/2
}

// VIndex returns the offset of the second chroma sample covering (x, y).
func (f Frame) VIndex(x, y int) int {
	return f.vOff + (y/2)*f.cStride + x/2
}

// At returns the Y, U and V samples covering (x, y).
func (f Frame) At(x, y int) (byte, byte, byte) {
	c := (y/2)*f.cStride + x/2
	return f.Data[y*f.Width+x], f.Data[f.uOff+c], f.Data[f.vOff+c]
}

// Y returns the luma plane.
func (f Frame) Y() []byte { return f.Data[:f.uOff] }

// U returns the first chroma plane.
func (f Frame) U() []byte { return f.Data[f.uOff:f.vOff] }

// V returns the second chroma plane.
func (f Frame) V() []byte { return f.Data[f.vOff : f.vOff+(f.vOff-f.uOff)] }

// ChromaStride returns the row length of the chroma planes.
func (f Frame) ChromaStride() int { return f.cStride }
