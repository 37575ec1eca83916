package yuv

import (
	"fmt"
	"math"

	"github.com/andresmejia3/backdrop/internal/types"
)

// RGBToYUV8 converts an 8-bit RGB triple to BT.601 studio range YUV using
// the integer approximation used for background import.
func RGBToYUV8(r, g, b uint8) (y, u, v uint8) {
	R, G, B := int(r), int(g), int(b)
	y = uint8(((66*R + 129*G + 25*B + 128) >> 8) + 16)
	u = uint8(((-38*R - 74*G + 112*B + 128) >> 8) + 128)
	v = uint8(((112*R - 94*G - 18*B + 128) >> 8) + 128)
	return y, u, v
}

// YUVToRGB8 inverts RGBToYUV8, rounding and clamping to 8 bits.
func YUVToRGB8(y, u, v uint8) (r, g, b uint8) {
	R, G, B := StudioToRGB(float64(y), float64(u), float64(v))
	return Clamp8(math.Round(R)), Clamp8(math.Round(G)), Clamp8(math.Round(B))
}

// StudioToRGB converts studio range YUV (0..255 scale) to RGB (0..255 scale)
// without clamping.
func StudioToRGB(y, u, v float64) (r, g, b float64) {
	l := 1.164 * (y - 16)
	r = l + 1.596*(v-128)
	g = l - 0.813*(v-128) - 0.391*(u-128)
	b = l + 2.018*(u-128)
	return r, g, b
}

// StudioFromRGB converts RGB (0..255 scale) to studio range YUV without clamping.
func StudioFromRGB(r, g, b float64) (y, u, v float64) {
	y = 0.257*r + 0.504*g + 0.098*b + 16
	u = -0.148*r - 0.291*g + 0.439*b + 128
	v = 0.439*r - 0.368*g - 0.071*b + 128
	return y, u, v
}

// FullRangeToRGB converts a full range YUV sample to RGB with the JFIF
// coefficients, truncating each product and clamping the result to 0..255.
func FullRangeToRGB(y, u, v int) (r, g, b int) {
	r = y + int(1.402*float64(v-128))
	g = y - int(0.344*float64(u-128)+0.714*float64(v-128))
	b = y + int(1.772*float64(u-128))
	return clampInt(r), clampInt(g), clampInt(b)
}

// Clamp8 truncates f into the byte range.
func Clamp8(f float64) uint8 {
	switch {
	case f <= 0 || math.IsNaN(f):
		return 0
	case f >= 255:
		return 255
	}
	return uint8(f)
}

func clampInt(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// RGBAToAYUV converts interleaved RGBA bytes in src into interleaved AYUV
// bytes in dst. Alpha is passed through unchanged.
func RGBAToAYUV(dst, src []byte) error {
	if err := checkInterleaved(dst, src); err != nil {
		return err
	}
	for i := 0; i < len(src); i += 4 {
		y, u, v := RGBToYUV8(src[i], src[i+1], src[i+2])
		dst[i], dst[i+1], dst[i+2], dst[i+3] = src[i+3], y, u, v
	}
	return nil
}

// AYUVToRGBA converts interleaved AYUV bytes in src into interleaved RGBA bytes in dst.
func AYUVToRGBA(dst, src []byte) error {
	if err := checkInterleaved(dst, src); err != nil {
		return err
	}
	for i := 0; i < len(src); i += 4 {
		r, g, b := YUVToRGB8(src[i+1], src[i+2], src[i+3])
		dst[i], dst[i+1], dst[i+2], dst[i+3] = r, g, b, src[i]
	}
	return nil
}

// RGBAToPackedYUV drops alpha and returns packed 3-byte YUV samples.
func RGBAToPackedYUV(src []byte) ([]byte, error) {
	if len(src)%4 != 0 {
		return nil, fmt.Errorf("%w: RGBA buffer length %d is not a multiple of 4", types.ErrGeometry, len(src))
	}
	out := make([]byte, 0, len(src)/4*3)
	for i := 0; i < len(src); i += 4 {
		y, u, v := RGBToYUV8(src[i], src[i+1], src[i+2])
		out = append(out, y, u, v)
	}
	return out, nil
}

func checkInterleaved(dst, src []byte) error {
	if len(src)%4 != 0 {
		return fmt.Errorf("%w: interleaved buffer length %d is not a multiple of 4", types.ErrGeometry, len(src))
	}
	if len(dst) < len(src) {
		return fmt.Errorf("%w: destination has %d bytes, need %d", types.ErrGeometry, len(dst), len(src))
	}
	return nil
}
