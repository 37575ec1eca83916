// Package segment describes the person segmentation models and prepares their
// input tensors. Inference itself runs in an external engine behind the
// Segmenter interface.
package segment

import (
	"fmt"
	"strings"

	"github.com/andresmejia3/backdrop/internal/types"
	"github.com/andresmejia3/backdrop/internal/yuv"
)

// Model is a segmentation network with a fixed input resolution.
type Model struct {
	Name   string
	File   string
	Width  int
	Height int
	Kind   types.TensorKind
}

// Models lists the supported networks. The first entry is the default.
var Models = []Model{
	{Name: "meet-full", File: "models/segm_full_v679.tflite", Width: 256, Height: 144, Kind: types.Logits},
	{Name: "meet-lite", File: "models/segm_lite_v681.tflite", Width: 160, Height: 96, Kind: types.Logits},
	{Name: "mlkit", File: "models/selfiesegmentation_mlkit-256x256-2021_01_19-v1215.f16.tflite", Width: 256, Height: 256, Kind: types.Probability},
}

// LookupModel finds a model by name.
func LookupModel(name string) (Model, error) {
	for _, m := range Models {
		if strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("unknown model %q", name)
}

// Input is an RGB tensor: Width*Height pixels of three interleaved float32
// channels in [0, 1], row-major.
type Input struct {
	Width  int
	Height int
	Data   []float32
}

// NewInput allocates an input tensor for m.
func NewInput(m Model) Input {
	return Input{Width: m.Width, Height: m.Height, Data: make([]float32, m.Width*m.Height*3)}
}

// Segmenter runs inference on one input tensor.
type Segmenter interface {
	Segment(in Input) (types.Tensor, error)
	Close() error
}

// KindForChannels maps a channel count reported by an engine to a tensor kind.
func KindForChannels(ch int) (types.TensorKind, error) {
	switch ch {
	case 1:
		return types.Probability, nil
	case 2:
		return types.Logits, nil
	}
	return 0, fmt.Errorf("%w: %d output channels", types.ErrTensorShape, ch)
}

// FillInput samples frame at in's resolution with nearest-neighbour
// selection and writes the RGB result into in.Data.
func FillInput(in Input, frame yuv.Frame) error {
	if in.Width <= 0 || in.Height <= 0 || len(in.Data) != in.Width*in.Height*3 {
		return fmt.Errorf("%w: input %dx%d with %d values", types.ErrTensorShape, in.Width, in.Height, len(in.Data))
	}
	invW := 1 / float32(in.Width)
	invH := 1 / float32(in.Height)
	out := in.Data
	for y := 0; y < in.Height; y++ {
		sy := int(float32(y) * invH * float32(frame.Height))
		for x := 0; x < in.Width; x++ {
			sx := int(float32(x) * invW * float32(frame.Width))
			fy, fu, fv := frame.At(sx, sy)
			r, g, b := yuv.FullRangeToRGB(int(fy), int(fu), int(fv))
			out[0] = float32(r) / 255
			out[1] = float32(g) / 255
			out[2] = float32(b) / 255
			out = out[3:]
		}
	}
	return nil
}
