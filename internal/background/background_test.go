package background

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/andresmejia3/backdrop/internal/types"
	"github.com/andresmejia3/backdrop/internal/yuv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidAYUV(t *testing.T, w, h int, luma byte) *yuv.AYUV {
	t.Helper()
	pix := make([]byte, w*h*yuv.AYUVStride)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = 255, luma, 128, 128
	}
	img, err := yuv.NewAYUV(pix, w, h)
	require.NoError(t, err)
	return img
}

func TestLoad_RawAndCompressed(t *testing.T) {
	dir := t.TempDir()
	img := solidAYUV(t, 4, 2, 77)

	for _, name := range []string{"bg.ayuv", "bg.ayuv.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, Save(path, img))
			got, err := Load(path, 4, 2)
			require.NoError(t, err)
			assert.Equal(t, img.Pix, got.Pix)
		})
	}
}

func TestLoad_RawWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bg.ayuv")
	require.NoError(t, os.WriteFile(path, make([]byte, 10), 0644))
	_, err := Load(path, 4, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrGeometry))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.png"), 4, 4)
	assert.Error(t, err)
}

func TestDecodeImage_ScalesToFrame(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 3; x++ {
			src.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	img, err := DecodeImage(&buf, 8, 6)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Width)
	assert.Equal(t, 6, img.Height)
	for i := 0; i < img.Len(); i++ {
		a, y, u, v := img.At(i)
		assert.Equal(t, [4]byte{255, 235, 128, 128}, [4]byte{a, y, u, v}, "pixel %d", i)
	}
}

func TestDecodeImage_Garbage(t *testing.T) {
	_, err := DecodeImage(bytes.NewReader([]byte("not an image")), 4, 4)
	assert.Error(t, err)
}

func TestLoadSequence(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		name := strconv.Itoa(i) + ExtAYUV
		if i == 1 {
			name = strconv.Itoa(i) + ExtAYUVZstd
		}
		require.NoError(t, Save(filepath.Join(dir, name), solidAYUV(t, 2, 2, byte(10*i))))
	}

	frames, err := LoadSequence(dir, 3, 2, 2)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	for i, f := range frames {
		_, y, _, _ := f.At(0)
		assert.Equal(t, byte(10*i), y)
	}

	_, err = LoadSequence(dir, 4, 2, 2)
	assert.Error(t, err, "frame 3 does not exist")
}

func TestSource_Static(t *testing.T) {
	img := solidAYUV(t, 2, 2, 1)
	s, err := Static(img)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.Same(t, img, s.Next())
	}
	assert.False(t, s.IsAnimated())
	assert.Equal(t, 0, s.Cursor())

	_, err = Static(nil)
	assert.True(t, errors.Is(err, types.ErrModeBackground))
}

func TestSource_AnimatedWraps(t *testing.T) {
	frames := []*yuv.AYUV{solidAYUV(t, 2, 2, 0), solidAYUV(t, 2, 2, 1), solidAYUV(t, 2, 2, 2)}
	s, err := Animated(frames)
	require.NoError(t, err)

	for round := 0; round < 2; round++ {
		for i := range frames {
			assert.Same(t, frames[i], s.Next())
		}
	}
	assert.Equal(t, 0, s.Cursor())

	_, err = Animated(nil)
	assert.True(t, errors.Is(err, types.ErrModeBackground))
	_, err = Animated([]*yuv.AYUV{frames[0], solidAYUV(t, 4, 2, 0)})
	assert.True(t, errors.Is(err, types.ErrModeBackground))
}
