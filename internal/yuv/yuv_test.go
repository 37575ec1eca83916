package yuv

import (
	"errors"
	"testing"

	"github.com/andresmejia3/backdrop/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrame_Geometry(t *testing.T) {
	tests := []struct {
		name    string
		w, h    int
		size    int
		wantErr bool
	}{
		{name: "valid 4x4", w: 4, h: 4, size: 24},
		{name: "larger buffer is accepted", w: 4, h: 4, size: 32},
		{name: "short buffer", w: 4, h: 4, size: 23, wantErr: true},
		{name: "zero width", w: 0, h: 4, size: 24, wantErr: true},
		{name: "negative height", w: 4, h: -2, size: 24, wantErr: true},
		{name: "odd width", w: 5, h: 4, size: 64, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrame(make([]byte, tt.size), tt.w, tt.h)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, types.ErrGeometry))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestFrame_IndexFormulas(t *testing.T) {
	const w, h = 16, 8
	f, err := NewFrame(make([]byte, FrameSize(w, h)), w, h)
	require.NoError(t, err)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			assert.Equal(t, y*w+x, f.YIndex(x, y))
			assert.Equal(t, w*h+(y/2)*(w/2)+x/2, f.UIndex(x, y))
			assert.Equal(t, int(float64(w*h)*1.25+float64((y/2)*(w/2)+x/2)), f.VIndex(x, y))
		}
	}
	assert.Len(t, f.Y(), w*h)
	assert.Len(t, f.U(), w*h/4)
	assert.Len(t, f.V(), w*h/4)
}

func TestRoundTrip_LumaAndAlpha(t *testing.T) {
	// Gray ramp with varying alpha
	src := make([]byte, 0, 256*4)
	for g := 0; g < 256; g++ {
		src = append(src, byte(g), byte(g), byte(g), byte(255-g))
	}

	ayuv := make([]byte, len(src))
	require.NoError(t, RGBAToAYUV(ayuv, src))
	rgba := make([]byte, len(src))
	require.NoError(t, AYUVToRGBA(rgba, ayuv))
	again := make([]byte, len(src))
	require.NoError(t, RGBAToAYUV(again, rgba))

	for i := 0; i < len(src); i += 4 {
		assert.Equal(t, src[i+3], ayuv[i], "alpha passthrough at pixel %d", i/4)
		assert.Equal(t, src[i+3], rgba[i+3], "alpha restored at pixel %d", i/4)
		diff := int(again[i+1]) - int(ayuv[i+1])
		assert.LessOrEqual(t, diff, 1, "luma drift at pixel %d", i/4)
		assert.GreaterOrEqual(t, diff, -1, "luma drift at pixel %d", i/4)
	}
}

func TestRGBToYUV8_KnownValues(t *testing.T) {
	y, u, v := RGBToYUV8(0, 0, 0)
	assert.Equal(t, [3]uint8{16, 128, 128}, [3]uint8{y, u, v})

	y, u, v = RGBToYUV8(255, 255, 255)
	assert.Equal(t, [3]uint8{235, 128, 128}, [3]uint8{y, u, v})

	y, u, v = RGBToYUV8(255, 0, 0)
	assert.Equal(t, [3]uint8{82, 90, 240}, [3]uint8{y, u, v})
}

func TestFullRangeToRGB(t *testing.T) {
	for _, l := range []int{0, 17, 128, 255} {
		r, g, b := FullRangeToRGB(l, 128, 128)
		assert.Equal(t, [3]int{l, l, l}, [3]int{r, g, b})
	}

	// Saturated chroma is clamped rather than wrapping
	r, _, _ := FullRangeToRGB(250, 128, 255)
	assert.Equal(t, 255, r)
	_, _, b := FullRangeToRGB(10, 0, 128)
	assert.Equal(t, 0, b)
}

func TestAYUV_Accessors(t *testing.T) {
	img, err := NewAYUV(make([]byte, 2*2*4), 2, 2)
	require.NoError(t, err)

	img.Set(3, 1, 2, 3, 4)
	a, y, u, v := img.At(3)
	assert.Equal(t, [4]byte{1, 2, 3, 4}, [4]byte{a, y, u, v})

	img.SetYUV(3, 9, 8, 7)
	y, u, v = img.YUV(3)
	assert.Equal(t, [3]byte{9, 8, 7}, [3]byte{y, u, v})
	a, _, _, _ = img.At(3)
	assert.Equal(t, byte(1), a, "SetYUV must not touch alpha")

	_, err = NewAYUV(make([]byte, 15), 2, 2)
	assert.True(t, errors.Is(err, types.ErrGeometry))
}

func TestInterleavedLengthChecks(t *testing.T) {
	assert.Error(t, RGBAToAYUV(make([]byte, 8), make([]byte, 7)))
	assert.Error(t, AYUVToRGBA(make([]byte, 4), make([]byte, 8)))

	out, err := RGBAToPackedYUV([]byte{0, 0, 0, 255, 255, 255, 255, 0})
	require.NoError(t, err)
	assert.Equal(t, []byte{16, 128, 128, 235, 128, 128}, out)
}
