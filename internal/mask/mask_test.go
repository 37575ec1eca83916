package mask

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/andresmejia3/backdrop/internal/types"
	"github.com/andresmejia3/backdrop/internal/yuv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFrame(t *testing.T, w, h int, luma, chroma byte) yuv.Frame {
	t.Helper()
	data := make([]byte, yuv.FrameSize(w, h))
	for i := range data {
		if i < w*h {
			data[i] = luma
		} else {
			data[i] = chroma
		}
	}
	f, err := yuv.NewFrame(data, w, h)
	require.NoError(t, err)
	return f
}

func TestSoftmax(t *testing.T) {
	for _, l := range []float32{-80, -1, 0, 3.5, 1e4} {
		assert.Equal(t, float32(0.5), Softmax(l, l), "equal logits %v", l)
	}
	assert.Greater(t, Softmax(0, 10), float32(0.99))
	assert.Less(t, Softmax(10, 0), float32(0.01))
	// Huge magnitudes must not overflow into NaN
	assert.Equal(t, float32(1), Softmax(-1e30, 1e30))
}

func TestBuild_AlphaInUnitRange(t *testing.T) {
	const w, h = 64, 48
	rng := rand.New(rand.NewPCG(3, 4))

	tests := []struct {
		name   string
		tensor types.Tensor
	}{
		{name: "logits", tensor: types.Tensor{Width: 16, Height: 9, Kind: types.Logits}},
		{name: "probability", tensor: types.Tensor{Width: 16, Height: 16, Kind: types.Probability}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.tensor.Width * tt.tensor.Height * tt.tensor.Kind.Channels()
			tt.tensor.Data = make([]float32, n)
			for i := range tt.tensor.Data {
				// Out of range probabilities and NaN are clamped
				tt.tensor.Data[i] = rng.Float32()*40 - 20
			}
			tt.tensor.Data[0] = float32(math.NaN())

			b, err := NewBuilder(w, h, DefaultSigmaMask, DefaultSigmaBackground)
			require.NoError(t, err)
			require.NoError(t, b.Build(tt.tensor, newTestFrame(t, w, h, 90, 128), true))

			for i, a := range b.Alpha() {
				require.GreaterOrEqual(t, a, float32(0), "sample %d", i)
				require.LessOrEqual(t, a, float32(1), "sample %d", i)
			}
		})
	}
}

func TestBuild_EqualLogitsGiveHalf(t *testing.T) {
	const w, h = 8, 8
	tensor := types.Tensor{Width: 4, Height: 2, Kind: types.Logits, Data: make([]float32, 4*2*2)}
	for i := range tensor.Data {
		tensor.Data[i] = 1.5
	}
	b, err := NewBuilder(w, h, DefaultSigmaMask, DefaultSigmaBackground)
	require.NoError(t, err)
	require.NoError(t, b.Build(tensor, newTestFrame(t, w, h, 0, 0), false))
	for _, a := range b.Alpha() {
		assert.InDelta(t, 0.5, a, 1e-6)
	}
}

func TestBuild_NearestNeighbourUpscale(t *testing.T) {
	const w, h = 8, 4
	// Left half background, right half person
	tensor := types.Tensor{Width: 2, Height: 1, Kind: types.Probability, Data: []float32{0, 1}}
	b, err := NewBuilder(w, h, 0, 0)
	require.NoError(t, err)
	require.NoError(t, b.Build(tensor, newTestFrame(t, w, h, 0, 0), false))

	alpha := b.Alpha()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			want := float32(0)
			if x >= w/2 {
				want = 1
			}
			assert.Equal(t, want, alpha[y*w+x], "pixel (%d,%d)", x, y)
		}
	}
}

func TestBuild_BackgroundPlanes(t *testing.T) {
	const w, h = 6, 4
	frame := newTestFrame(t, w, h, 51, 204)
	tensor := types.Tensor{Width: 1, Height: 1, Kind: types.Probability, Data: []float32{0}}

	b, err := NewBuilder(w, h, DefaultSigmaMask, DefaultSigmaBackground)
	require.NoError(t, err)
	require.NoError(t, b.Build(tensor, frame, true))

	by, bu, bv := b.Background()
	for i := range by {
		// Blurring a uniform plane leaves it uniform
		assert.InDelta(t, 0.2, by[i], 1e-4)
		assert.InDelta(t, 0.8, bu[i], 1e-4)
		assert.InDelta(t, 0.8, bv[i], 1e-4)
	}
}

func TestBuild_Errors(t *testing.T) {
	b, err := NewBuilder(8, 8, DefaultSigmaMask, DefaultSigmaBackground)
	require.NoError(t, err)
	frame := newTestFrame(t, 8, 8, 0, 128)

	err = b.Build(types.Tensor{Width: 2, Height: 2, Kind: types.Logits, Data: make([]float32, 4)}, frame, false)
	assert.True(t, errors.Is(err, types.ErrTensorShape))

	err = b.Build(types.Tensor{Width: 0, Height: 2, Kind: types.Probability}, frame, false)
	assert.True(t, errors.Is(err, types.ErrTensorShape))

	other := newTestFrame(t, 4, 4, 0, 128)
	err = b.Build(types.Tensor{Width: 1, Height: 1, Kind: types.Probability, Data: []float32{1}}, other, false)
	assert.True(t, errors.Is(err, types.ErrGeometry))

	_, err = NewBuilder(7, 8, 1, 1)
	assert.True(t, errors.Is(err, types.ErrGeometry))
}
